package speech

import "strings"

// ErrorCode classifies dictation failures surfaced to the caller.
// Every code is recoverable; the caller may attempt Start again.
type ErrorCode string

const (
	CodeUnsupportedPlatform ErrorCode = "unsupported_platform"
	CodePermissionDenied    ErrorCode = "permission_denied"
	CodeNoSpeechDetected    ErrorCode = "no_speech_detected"
	CodeAudioCaptureFailed  ErrorCode = "audio_capture_failed"
	CodeNetworkFailure      ErrorCode = "network_failure"
	CodeAborted             ErrorCode = "aborted"
)

// Error is a classified dictation failure.
type Error struct {
	Code    ErrorCode
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Message
}

// CodeFromPlatform maps a raw platform error name (the Web Speech API
// error vocabulary) to a classified code.
func CodeFromPlatform(name string) ErrorCode {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "not-allowed", "service-not-allowed":
		return CodePermissionDenied
	case "no-speech":
		return CodeNoSpeechDetected
	case "audio-capture":
		return CodeAudioCaptureFailed
	case "network":
		return CodeNetworkFailure
	case "aborted":
		return CodeAborted
	default:
		return CodeAudioCaptureFailed
	}
}

package playback

import "sync"

// RequestState describes a playback request's lifecycle. Transitions are
// monotonic: Pending -> Playing -> {Completed | Failed}, never backwards.
type RequestState string

const (
	StatePending   RequestState = "pending"
	StatePlaying   RequestState = "playing"
	StateCompleted RequestState = "completed"
	StateFailed    RequestState = "failed"
)

// FailureReason classifies a failed playback request.
type FailureReason string

const (
	FailureNone               FailureReason = ""
	FailureNotAllowed         FailureReason = "not_allowed"
	FailureNotSupportedFormat FailureReason = "not_supported_format"
	FailureAborted            FailureReason = "aborted"
	FailureUnknown            FailureReason = "unknown"
)

// UserMessage returns the user-facing description for a failure class.
// Each class gets a distinct message; none of them are fatal.
func (r FailureReason) UserMessage() string {
	switch r {
	case FailureNotAllowed:
		return "Audio was blocked by the browser. Click or tap the page, then try again."
	case FailureNotSupportedFormat:
		return "The audio returned by the backend is in a format this browser cannot play."
	case FailureAborted:
		return "Audio playback was interrupted."
	default:
		return "Audio playback failed."
	}
}

// Request is one unit of audio rendering. A request is terminal once
// Completed or Failed and is never reused.
type Request struct {
	ID     string
	Source string

	mu     sync.Mutex
	state  RequestState
	reason FailureReason
}

func newRequest(id string, source string) *Request {
	return &Request{ID: id, Source: source, state: StatePending}
}

// State returns the current request state.
func (r *Request) State() RequestState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// FailureReason returns the failure class for a failed request.
func (r *Request) FailureReason() FailureReason {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reason
}

func (r *Request) markPlaying() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StatePending {
		return false
	}
	r.state = StatePlaying
	return true
}

func (r *Request) markCompleted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StatePlaying {
		return false
	}
	r.state = StateCompleted
	return true
}

func (r *Request) markFailed(reason FailureReason) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateCompleted || r.state == StateFailed {
		return false
	}
	r.state = StateFailed
	r.reason = reason
	return true
}

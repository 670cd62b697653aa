package speech

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type fakeRecognizer struct {
	events   RecognizerEvents
	language string

	mu      sync.Mutex
	started int
	stopped int
}

func (r *fakeRecognizer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
	return nil
}

func (r *fakeRecognizer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped++
}

func (r *fakeRecognizer) stopCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

type fakeFactory struct {
	unsupported bool

	mu      sync.Mutex
	created []*fakeRecognizer
}

func (f *fakeFactory) New(languageTag string, events RecognizerEvents) (Recognizer, error) {
	if f.unsupported {
		return nil, errors.New("dictation capability absent")
	}
	rec := &fakeRecognizer{events: events, language: languageTag}
	f.mu.Lock()
	f.created = append(f.created, rec)
	f.mu.Unlock()
	return rec, nil
}

func (f *fakeFactory) last() *fakeRecognizer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.created) == 0 {
		return nil
	}
	return f.created[len(f.created)-1]
}

type recordedEvents struct {
	mu          sync.Mutex
	transcripts []string
	errors      []ErrorCode
}

func (e *recordedEvents) Transcript(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.transcripts = append(e.transcripts, text)
}

func (e *recordedEvents) SpeechError(code ErrorCode, message string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errors = append(e.errors, code)
}

func (e *recordedEvents) transcriptCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.transcripts)
}

func newTestController(factory *fakeFactory) (*Controller, *recordedEvents) {
	events := &recordedEvents{}
	return NewController(factory, events, nil), events
}

func TestControllerTranscriptSingleShot(t *testing.T) {
	factory := &fakeFactory{}
	c, events := newTestController(factory)

	if err := c.Start(context.Background(), "hi-IN"); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if got := c.State(); got != StateListening {
		t.Fatalf("state=%s, want %s", got, StateListening)
	}

	rec := factory.last()
	rec.events.Result("kya haal hai")
	rec.events.End()

	if got := c.State(); got != StateIdle {
		t.Fatalf("state=%s, want %s", got, StateIdle)
	}
	events.mu.Lock()
	defer events.mu.Unlock()
	if len(events.transcripts) != 1 || events.transcripts[0] != "kya haal hai" {
		t.Fatalf("transcripts=%v, want exactly one %q", events.transcripts, "kya haal hai")
	}
	if len(events.errors) != 0 {
		t.Fatalf("errors=%v, want none", events.errors)
	}
}

func TestControllerStartWhileListeningStopsPrevious(t *testing.T) {
	factory := &fakeFactory{}
	c, _ := newTestController(factory)

	if err := c.Start(context.Background(), "hi-IN"); err != nil {
		t.Fatalf("Start(hi-IN) returned error: %v", err)
	}
	first := factory.last()

	if err := c.Start(context.Background(), "en"); err != nil {
		t.Fatalf("Start(en) returned error: %v", err)
	}
	if first.stopCount() == 0 {
		t.Fatal("first recognizer was not stopped before the second began")
	}
	if got := c.LanguageTag(); got != "en" {
		t.Fatalf("language=%q, want %q", got, "en")
	}
	if got := c.State(); got != StateListening {
		t.Fatalf("state=%s, want %s", got, StateListening)
	}

	// A late result from the superseded session must be dropped.
	first.events.Result("stale")
	if got := c.State(); got != StateListening {
		t.Fatalf("state after stale result=%s, want %s", got, StateListening)
	}
}

func TestControllerStopBeatsResult(t *testing.T) {
	factory := &fakeFactory{}
	c, events := newTestController(factory)

	if err := c.Start(context.Background(), "en"); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	rec := factory.last()

	c.Stop()
	rec.events.Result("too late")

	if got := events.transcriptCount(); got != 0 {
		t.Fatalf("transcripts delivered=%d, want 0", got)
	}
	if got := c.State(); got != StateIdle {
		t.Fatalf("state=%s, want %s", got, StateIdle)
	}
}

func TestControllerStopIdleIsNoop(t *testing.T) {
	factory := &fakeFactory{}
	c, _ := newTestController(factory)
	c.Stop()
	c.Stop()
	if got := c.State(); got != StateIdle {
		t.Fatalf("state=%s, want %s", got, StateIdle)
	}
}

func TestControllerPlatformErrorReturnsToIdle(t *testing.T) {
	factory := &fakeFactory{}
	c, events := newTestController(factory)

	if err := c.Start(context.Background(), "en"); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	rec := factory.last()
	rec.events.Error(CodePermissionDenied, "not-allowed")

	if got := c.State(); got != StateIdle {
		t.Fatalf("state=%s, want %s", got, StateIdle)
	}
	events.mu.Lock()
	defer events.mu.Unlock()
	if len(events.errors) != 1 || events.errors[0] != CodePermissionDenied {
		t.Fatalf("errors=%v, want [%s]", events.errors, CodePermissionDenied)
	}

	// Recoverable: a fresh Start must succeed.
	if err := c.Start(context.Background(), "en"); err != nil {
		t.Fatalf("Start after error returned error: %v", err)
	}
}

func TestControllerUnsupportedPlatformStaysIdle(t *testing.T) {
	factory := &fakeFactory{unsupported: true}
	c, events := newTestController(factory)

	err := c.Start(context.Background(), "en")
	if err == nil {
		t.Fatal("Start error=nil, want non-nil")
	}
	var serr *Error
	if !errors.As(err, &serr) || serr.Code != CodeUnsupportedPlatform {
		t.Fatalf("err=%v, want code %s", err, CodeUnsupportedPlatform)
	}
	if got := c.State(); got != StateIdle {
		t.Fatalf("state=%s, want %s", got, StateIdle)
	}
	events.mu.Lock()
	defer events.mu.Unlock()
	if len(events.errors) != 1 || events.errors[0] != CodeUnsupportedPlatform {
		t.Fatalf("errors=%v, want [%s]", events.errors, CodeUnsupportedPlatform)
	}
}

func TestCodeFromPlatform(t *testing.T) {
	tests := []struct {
		in   string
		want ErrorCode
	}{
		{in: "not-allowed", want: CodePermissionDenied},
		{in: "service-not-allowed", want: CodePermissionDenied},
		{in: "no-speech", want: CodeNoSpeechDetected},
		{in: " NETWORK ", want: CodeNetworkFailure},
		{in: "aborted", want: CodeAborted},
		{in: "audio-capture", want: CodeAudioCaptureFailed},
		{in: "something-else", want: CodeAudioCaptureFailed},
	}
	for _, tt := range tests {
		if got := CodeFromPlatform(tt.in); got != tt.want {
			t.Fatalf("CodeFromPlatform(%q)=%s, want %s", tt.in, got, tt.want)
		}
	}
}

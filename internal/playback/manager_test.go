package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

type fakeElement struct {
	playErr error
	done    chan error

	mu       sync.Mutex
	detached bool
}

func newFakeElement(playErr error) *fakeElement {
	return &fakeElement{playErr: playErr, done: make(chan error, 1)}
}

func (e *fakeElement) Play(ctx context.Context) error { return e.playErr }

func (e *fakeElement) Done() <-chan error { return e.done }

func (e *fakeElement) Detach() {
	e.mu.Lock()
	e.detached = true
	e.mu.Unlock()
}

func (e *fakeElement) isDetached() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.detached
}

type fakeSurface struct {
	attachErr error

	mu       sync.Mutex
	elements []*fakeElement
	playErr  error
}

func (s *fakeSurface) Attach(ctx context.Context, payload []byte) (Element, error) {
	if s.attachErr != nil {
		return nil, s.attachErr
	}
	e := newFakeElement(s.playErr)
	s.mu.Lock()
	s.elements = append(s.elements, e)
	s.mu.Unlock()
	return e, nil
}

func (s *fakeSurface) last() *fakeElement {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.elements) == 0 {
		return nil
	}
	return s.elements[len(s.elements)-1]
}

type endedRecorder struct {
	mu    sync.Mutex
	ended []*Request
}

func (r *endedRecorder) PlaybackEnded(req *Request) {
	r.mu.Lock()
	r.ended = append(r.ended, req)
	r.mu.Unlock()
}

func (r *endedRecorder) wait(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		got := len(r.ended)
		r.mu.Unlock()
		if got >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d ended events", n)
}

func TestPlayCompletesAndDetachesWithinGrace(t *testing.T) {
	mock := clock.NewMock()
	surface := &fakeSurface{}
	recorder := &endedRecorder{}
	m := NewManager(surface, nil, WithClock(mock), WithEvents(recorder))

	req, err := m.Play(context.Background(), []byte("mp3-bytes"), "manual chat")
	if err != nil {
		t.Fatalf("Play returned error: %v", err)
	}
	if got := req.State(); got != StatePlaying {
		t.Fatalf("state=%s, want %s", got, StatePlaying)
	}

	element := surface.last()
	element.done <- nil
	recorder.wait(t, 1)

	if got := req.State(); got != StateCompleted {
		t.Fatalf("state=%s, want %s", got, StateCompleted)
	}
	if element.isDetached() {
		t.Fatal("element detached before the grace window elapsed")
	}
	mock.Add(DefaultGracePeriod)
	if !element.isDetached() {
		t.Fatal("element not detached after the grace window")
	}
}

func TestSilentClientDetachedAtPlaybackCap(t *testing.T) {
	mock := clock.NewMock()
	surface := &fakeSurface{}
	recorder := &endedRecorder{}
	m := NewManager(surface, nil,
		WithClock(mock),
		WithMaxPlayback(2*time.Minute),
		WithEvents(recorder),
	)

	req, err := m.Play(context.Background(), []byte("mp3-bytes"), "auto-speak chat")
	if err != nil {
		t.Fatalf("Play returned error: %v", err)
	}
	element := surface.last()

	// The element never reports a terminal outcome. Let the outcome
	// goroutine arm its timer before moving the clock.
	time.Sleep(10 * time.Millisecond)
	mock.Add(2 * time.Minute)
	recorder.wait(t, 1)

	if got := req.State(); got != StateFailed {
		t.Fatalf("state=%s, want %s", got, StateFailed)
	}
	if got := req.FailureReason(); got != FailureAborted {
		t.Fatalf("reason=%s, want %s", got, FailureAborted)
	}
	if element.isDetached() {
		t.Fatal("element detached before the grace window elapsed")
	}
	mock.Add(DefaultGracePeriod)
	if !element.isDetached() {
		t.Fatal("element not detached after the cap plus grace window")
	}
}

func TestPlayRejectedNotAllowed(t *testing.T) {
	mock := clock.NewMock()
	surface := &fakeSurface{playErr: fmt.Errorf("autoplay blocked: %w", ErrNotAllowed)}
	m := NewManager(surface, nil, WithClock(mock))

	req, err := m.Play(context.Background(), []byte("mp3-bytes"), "auto-speak chat")
	if err == nil {
		t.Fatal("Play error=nil, want non-nil")
	}
	if got := req.State(); got != StateFailed {
		t.Fatalf("state=%s, want %s", got, StateFailed)
	}
	if got := req.FailureReason(); got != FailureNotAllowed {
		t.Fatalf("reason=%s, want %s", got, FailureNotAllowed)
	}
	if msg := req.FailureReason().UserMessage(); msg == FailureUnknown.UserMessage() {
		t.Fatal("not-allowed failure produced the generic unknown message")
	}

	element := surface.last()
	mock.Add(DefaultGracePeriod)
	if !element.isDetached() {
		t.Fatal("element not detached after a rejected play")
	}
}

func TestPlayAttachFailure(t *testing.T) {
	surface := &fakeSurface{attachErr: errors.New("no document")}
	m := NewManager(surface, nil, WithClock(clock.NewMock()))

	req, err := m.Play(context.Background(), []byte("mp3-bytes"), "humor panel")
	if err == nil {
		t.Fatal("Play error=nil, want non-nil")
	}
	if got := req.FailureReason(); got != FailureUnknown {
		t.Fatalf("reason=%s, want %s", got, FailureUnknown)
	}
}

func TestPlaybackErrorClassification(t *testing.T) {
	tests := []struct {
		err  error
		want FailureReason
	}{
		{err: nil, want: FailureNone},
		{err: ErrNotAllowed, want: FailureNotAllowed},
		{err: fmt.Errorf("wrapped: %w", ErrNotSupported), want: FailureNotSupportedFormat},
		{err: ErrAborted, want: FailureAborted},
		{err: errors.New("mystery"), want: FailureUnknown},
	}
	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.want {
			t.Fatalf("Classify(%v)=%s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestConcurrentRequestsAreIndependent(t *testing.T) {
	mock := clock.NewMock()
	surface := &fakeSurface{}
	recorder := &endedRecorder{}
	m := NewManager(surface, nil, WithClock(mock), WithEvents(recorder))

	first, err := m.Play(context.Background(), []byte("a"), "auto-speak chat")
	if err != nil {
		t.Fatalf("Play(first) returned error: %v", err)
	}
	firstElement := surface.last()

	second, err := m.Play(context.Background(), []byte("b"), "humor panel")
	if err != nil {
		t.Fatalf("Play(second) returned error: %v", err)
	}
	secondElement := surface.last()

	// Failing the second request must not touch the first.
	secondElement.done <- ErrAborted
	recorder.wait(t, 1)
	if got := second.State(); got != StateFailed {
		t.Fatalf("second state=%s, want %s", got, StateFailed)
	}
	if got := first.State(); got != StatePlaying {
		t.Fatalf("first state=%s, want %s", got, StatePlaying)
	}

	firstElement.done <- nil
	recorder.wait(t, 2)
	if got := first.State(); got != StateCompleted {
		t.Fatalf("first state=%s, want %s", got, StateCompleted)
	}
}

func TestRequestStateMonotonic(t *testing.T) {
	req := newRequest("id", "manual chat")
	if !req.markPlaying() {
		t.Fatal("markPlaying from pending=false, want true")
	}
	if !req.markCompleted() {
		t.Fatal("markCompleted from playing=false, want true")
	}
	if req.markFailed(FailureAborted) {
		t.Fatal("markFailed after completed=true, want false")
	}
	if got := req.State(); got != StateCompleted {
		t.Fatalf("state=%s, want %s", got, StateCompleted)
	}
}

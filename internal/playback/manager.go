package playback

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultGracePeriod keeps the backing resource attached after a request
// reaches a terminal state so trailing platform events can settle.
const DefaultGracePeriod = 3 * time.Second

// DefaultMaxPlayback bounds how long a started request may run without
// reporting a terminal outcome. A client that never delivers one would
// otherwise leave the element attached forever.
const DefaultMaxPlayback = 5 * time.Minute

// Events receives terminal playback outcomes. Implementations must not
// block; events fire from the request's own goroutine.
type Events interface {
	PlaybackEnded(req *Request)
}

// Manager renders one piece of audio per request with deterministic
// cleanup. Requests are independent: each gets its own element and never
// interferes with another request's resource. Callers that must not spam
// overlapping requests (the feed engine) dedupe on their side.
type Manager struct {
	surface Surface
	events  Events
	clock   clock.Clock
	grace   time.Duration
	maxPlay time.Duration
	logger  *zap.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock substitutes the wall clock, for tests.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithGracePeriod overrides the post-terminal detach delay.
func WithGracePeriod(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.grace = d
		}
	}
}

// WithMaxPlayback overrides the cap on how long a request may play
// without a terminal outcome.
func WithMaxPlayback(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.maxPlay = d
		}
	}
}

// WithEvents registers a terminal-outcome sink.
func WithEvents(events Events) Option {
	return func(m *Manager) { m.events = events }
}

// NewManager creates a playback manager over the given surface.
func NewManager(surface Surface, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		surface: surface,
		clock:   clock.New(),
		grace:   DefaultGracePeriod,
		maxPlay: DefaultMaxPlayback,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Play attaches a fresh element for payload and begins playback. It
// returns once playback has started, or immediately with a classified
// failure; playback then proceeds asynchronously and self-cleans.
func (m *Manager) Play(ctx context.Context, payload []byte, source string) (*Request, error) {
	req := newRequest(uuid.NewString(), source)

	element, err := m.surface.Attach(ctx, payload)
	if err != nil {
		m.fail(req, nil, err)
		return req, err
	}

	if err := element.Play(ctx); err != nil {
		m.fail(req, element, err)
		return req, err
	}

	req.markPlaying()
	m.logger.Debug("playback started",
		zap.String("request_id", req.ID),
		zap.String("source", req.Source),
	)

	go m.awaitOutcome(req, element)
	return req, nil
}

// awaitOutcome waits for the element's terminal outcome, bounded by the
// max-playback cap so a silent client can never pin the element forever.
// Either way the element is detached after the grace window.
func (m *Manager) awaitOutcome(req *Request, element Element) {
	timer := m.clock.Timer(m.maxPlay)
	defer timer.Stop()

	select {
	case err := <-element.Done():
		if err == nil {
			req.markCompleted()
			m.logger.Debug("playback completed", zap.String("request_id", req.ID))
		} else {
			req.markFailed(Classify(err))
			m.logger.Warn("playback failed",
				zap.String("request_id", req.ID),
				zap.String("source", req.Source),
				zap.String("reason", string(req.FailureReason())),
				zap.Error(err),
			)
		}
	case <-timer.C:
		req.markFailed(FailureAborted)
		m.logger.Warn("playback outcome never reported",
			zap.String("request_id", req.ID),
			zap.String("source", req.Source),
			zap.Duration("cap", m.maxPlay),
		)
	}
	m.scheduleDetach(element)
	m.emit(req)
}

func (m *Manager) fail(req *Request, element Element, err error) {
	reason := Classify(err)
	req.markFailed(reason)
	m.logger.Warn("playback rejected",
		zap.String("request_id", req.ID),
		zap.String("source", req.Source),
		zap.String("reason", string(reason)),
		zap.Error(err),
	)
	if element != nil {
		m.scheduleDetach(element)
	}
	m.emit(req)
}

func (m *Manager) scheduleDetach(element Element) {
	m.clock.AfterFunc(m.grace, element.Detach)
}

func (m *Manager) emit(req *Request) {
	if m.events != nil {
		m.events.PlaybackEnded(req)
	}
}

// Classify maps a surface rejection to a failure class.
func Classify(err error) FailureReason {
	switch {
	case err == nil:
		return FailureNone
	case errors.Is(err, ErrNotAllowed):
		return FailureNotAllowed
	case errors.Is(err, ErrNotSupported):
		return FailureNotSupportedFormat
	case errors.Is(err, ErrAborted):
		return FailureAborted
	default:
		return FailureUnknown
	}
}

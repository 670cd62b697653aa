package speech

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Recognizer is one constructed platform dictation session. Utterances are
// single-shot: the recognizer reports at most one result before ending.
type Recognizer interface {
	Start(ctx context.Context) error
	Stop()
}

// RecognizerEvents is how a recognizer reports back to the controller.
// Events may arrive on any goroutine and may race with Stop.
type RecognizerEvents interface {
	Result(text string)
	End()
	Error(code ErrorCode, message string)
}

// RecognizerFactory constructs recognizers bound to one language tag.
// It returns an error when the platform capability is absent.
type RecognizerFactory interface {
	New(languageTag string, events RecognizerEvents) (Recognizer, error)
}

// Events receives controller outcomes. At most one of Transcript or
// SpeechError fires per capture session.
type Events interface {
	Transcript(text string)
	SpeechError(code ErrorCode, message string)
}

// Controller owns exactly one dictation lifecycle per active language and
// turns raw recognizer events into transcript strings.
type Controller struct {
	factory RecognizerFactory
	events  Events
	logger  *zap.Logger

	mu          sync.Mutex
	machine     *Machine
	recognizer  Recognizer
	languageTag string
	gen         uint64
}

// NewController creates an idle controller.
func NewController(factory RecognizerFactory, events Events, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		factory: factory,
		events:  events,
		logger:  logger,
		machine: NewMachine(),
	}
}

// State returns the current capture state.
func (c *Controller) State() State {
	return c.machine.State()
}

// LanguageTag returns the language the current recognizer is bound to.
func (c *Controller) LanguageTag() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.languageTag
}

// Start begins a capture session bound to languageTag. A session already
// listening is stopped first, so at most one recognizer is ever active.
// Changing the language reconstructs the underlying recognizer.
func (c *Controller) Start(ctx context.Context, languageTag string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.machine.State() == StateListening {
		c.stopLocked()
	}

	// Each session gets a fresh recognizer under a fresh generation so
	// stale events from a superseded session stay dead.
	c.gen++
	rec, err := c.factory.New(languageTag, &sessionEvents{controller: c, gen: c.gen})
	if err != nil {
		c.logger.Warn("recognizer construction failed",
			zap.String("language", languageTag),
			zap.Error(err),
		)
		c.events.SpeechError(CodeUnsupportedPlatform, err.Error())
		return &Error{Code: CodeUnsupportedPlatform, Message: err.Error()}
	}
	c.recognizer = rec
	c.languageTag = languageTag

	if err := c.recognizer.Start(ctx); err != nil {
		code := CodeAudioCaptureFailed
		var serr *Error
		if errors.As(err, &serr) {
			code = serr.Code
		}
		c.events.SpeechError(code, err.Error())
		return err
	}

	c.machine.OnListenStart()
	c.logger.Debug("capture session listening", zap.String("language", languageTag))
	return nil
}

// Stop ends the active capture session. Safe to call when no session is
// active; a result racing with Stop is dropped, Stop is authoritative.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

// Close releases the microphone. Must be called on disposal.
func (c *Controller) Close() {
	c.Stop()
}

func (c *Controller) stopLocked() {
	if c.machine.State() != StateListening {
		return
	}
	c.gen++
	if c.recognizer != nil {
		c.recognizer.Stop()
	}
	c.machine.OnStop()
}

// sessionEvents pins recognizer callbacks to the generation that created
// them so events from a superseded session cannot fire twice.
type sessionEvents struct {
	controller *Controller
	gen        uint64
}

func (s *sessionEvents) Result(text string) {
	s.controller.handleResult(s.gen, text)
}

func (s *sessionEvents) End() {
	s.controller.handleEnd(s.gen)
}

func (s *sessionEvents) Error(code ErrorCode, message string) {
	s.controller.handleError(s.gen, code, message)
}

func (c *Controller) handleResult(gen uint64, text string) {
	c.mu.Lock()
	if gen != c.gen || c.machine.State() != StateListening {
		c.mu.Unlock()
		return
	}
	c.gen++
	rec := c.recognizer
	c.machine.OnTranscript()
	c.mu.Unlock()

	if rec != nil {
		rec.Stop()
	}
	c.events.Transcript(text)
}

func (c *Controller) handleEnd(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.machine.State() != StateListening {
		c.mu.Unlock()
		return
	}
	c.gen++
	c.machine.OnStop()
	c.mu.Unlock()
}

func (c *Controller) handleError(gen uint64, code ErrorCode, message string) {
	c.mu.Lock()
	if gen != c.gen || c.machine.State() != StateListening {
		c.mu.Unlock()
		return
	}
	c.gen++
	c.machine.OnPlatformError()
	c.mu.Unlock()

	c.logger.Debug("capture session error",
		zap.String("code", string(code)),
		zap.String("message", message),
	)
	c.events.SpeechError(code, message)

	c.mu.Lock()
	// Settle back to idle unless a newer session already took over.
	if c.gen == gen+1 {
		c.machine.OnErrorSettled()
	}
	c.mu.Unlock()
}

package ws

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adityadhimaann/brocode-realtime/internal/feed"
	"github.com/adityadhimaann/brocode-realtime/internal/playback"
	"github.com/adityadhimaann/brocode-realtime/internal/speech"
)

// playAckTimeout bounds how long a playback start waits for the client
// to report whether the audio element actually began playing.
const playAckTimeout = 10 * time.Second

// wsRecognizer drives the client's speech recognizer over the socket.
// The session relays recognizer events from the client back into the
// events sink registered at construction time.
type wsRecognizer struct {
	session  *session
	language string
}

func (r *wsRecognizer) Start(ctx context.Context) error {
	return r.session.sendJSON(map[string]any{
		"type":     "recognizer-start",
		"language": r.language,
	})
}

func (r *wsRecognizer) Stop() {
	if err := r.session.sendJSON(map[string]any{"type": "recognizer-stop"}); err != nil {
		r.session.logger.Debug("recognizer stop send failed",
			zap.String("session_id", r.session.clientUID),
			zap.Error(err),
		)
	}
}

// New implements speech.RecognizerFactory. The session refuses to hand
// out a recognizer when the client reported no speech support, which
// keeps the capture controller in Idle on unsupported platforms.
func (s *session) New(languageTag string, events speech.RecognizerEvents) (speech.Recognizer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.speechSupported {
		return nil, errors.New("client platform has no speech recognizer")
	}
	s.recEvents = events
	return &wsRecognizer{session: s, language: languageTag}, nil
}

// wsElement is one client-side audio element, addressed by id. The
// client reports play acknowledgement and the terminal outcome as
// socket events which the session routes into the channels here.
type wsElement struct {
	id      string
	session *session

	started chan error
	done    chan error

	detachOnce sync.Once
}

func (e *wsElement) Play(ctx context.Context) error {
	if err := e.session.sendJSON(map[string]any{
		"type":       "audio-play",
		"element_id": e.id,
	}); err != nil {
		return err
	}
	select {
	case err := <-e.started:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(playAckTimeout):
		return fmt.Errorf("no playback acknowledgement for element %s", e.id)
	}
}

func (e *wsElement) Done() <-chan error {
	return e.done
}

func (e *wsElement) Detach() {
	e.detachOnce.Do(func() {
		e.session.dropElement(e.id)
		if err := e.session.sendJSON(map[string]any{
			"type":       "audio-detach",
			"element_id": e.id,
		}); err != nil {
			e.session.logger.Debug("audio detach send failed",
				zap.String("session_id", e.session.clientUID),
				zap.Error(err),
			)
		}
	})
}

// Attach implements playback.Surface. The payload travels to the client
// as base64 so it can be wrapped in a blob URL on the other side.
func (s *session) Attach(ctx context.Context, payload []byte) (playback.Element, error) {
	element := &wsElement{
		id:      uuid.NewString(),
		session: s,
		started: make(chan error, 1),
		done:    make(chan error, 1),
	}
	s.mu.Lock()
	s.elements[element.id] = element
	s.mu.Unlock()

	if err := s.sendJSON(map[string]any{
		"type":       "audio-attach",
		"element_id": element.id,
		"payload":    base64.StdEncoding.EncodeToString(payload),
	}); err != nil {
		s.dropElement(element.id)
		return nil, err
	}
	return element, nil
}

func (s *session) dropElement(id string) {
	s.mu.Lock()
	delete(s.elements, id)
	s.mu.Unlock()
}

func (s *session) lookupElement(id string) *wsElement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elements[id]
}

// playbackError maps the client's media error names onto the playback
// sentinel errors so the manager can classify the failure.
func playbackError(name, message string) error {
	if message == "" {
		message = name
	}
	switch name {
	case "NotAllowedError", "not-allowed":
		return fmt.Errorf("%s: %w", message, playback.ErrNotAllowed)
	case "NotSupportedError", "not-supported":
		return fmt.Errorf("%s: %w", message, playback.ErrNotSupported)
	case "AbortError", "aborted":
		return fmt.Errorf("%s: %w", message, playback.ErrAborted)
	default:
		return errors.New(message)
	}
}

// Measure implements feed.Measurer from the layout reports the client
// pushes whenever a panel's geometry changes.
func (s *session) Measure(panelID string) (feed.Measurement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.layouts[panelID]
	if !ok {
		return feed.Measurement{}, fmt.Errorf("no layout report for panel %s", panelID)
	}
	return m, nil
}

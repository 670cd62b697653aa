package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/adityadhimaann/brocode-realtime/internal/backend"
	appconfig "github.com/adityadhimaann/brocode-realtime/internal/config"
	"github.com/adityadhimaann/brocode-realtime/internal/feed"
	"github.com/adityadhimaann/brocode-realtime/internal/playback"
	"github.com/adityadhimaann/brocode-realtime/internal/speech"
)

// Handler upgrades client connections and runs one session per socket.
type Handler struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader
	config   appconfig.Config
	backend  *backend.Client
	sessions map[string]*session
	mu       sync.Mutex
}

// wsConn is the slice of the websocket connection the session uses.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteJSON(v any) error
	Close() error
}

// session is one connected client. It owns the capture controller, the
// playback manager and the two feed engines, and bridges their platform
// ports over the socket.
type session struct {
	conn      wsConn
	sendMu    sync.Mutex
	logger    *zap.Logger
	handler   *Handler
	clientUID string

	controller *speech.Controller
	player     *playback.Manager
	panels     *feed.Registry

	mu              sync.Mutex
	speechSupported bool
	recEvents       speech.RecognizerEvents
	elements        map[string]*wsElement
	layouts         map[string]feed.Measurement
	language        string
	persona         string
	autoSpeak       bool
	history         []backend.ChatTurn
}

// sessionHistoryLimit bounds the in-memory chat context kept per socket.
const sessionHistoryLimit = 10

// NewHandler creates a websocket handler.
func NewHandler(logger *zap.Logger, cfg appconfig.Config, client *backend.Client) *Handler {
	return &Handler{
		logger:   logger,
		config:   cfg,
		backend:  client,
		sessions: make(map[string]*session),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Handle upgrades the request and runs the session read loop until the
// client disconnects.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess := h.newSession(conn)
	h.registerSession(sess)
	sess.logger.Info("ws session opened",
		zap.String("session_id", sess.clientUID),
		zap.String("language", sess.language),
		zap.String("persona", sess.persona),
	)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			sess.logger.Debug("ws connection closed", zap.Error(err))
			break
		}
		var msg incomingMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			sess.sendJSON(map[string]any{"type": "error", "message": "invalid json"})
			continue
		}
		if msg.Type != "heartbeat" {
			sess.logger.Debug("ws incoming message",
				zap.String("session_id", sess.clientUID),
				zap.String("type", msg.Type),
			)
		}
		sess.handleIncoming(ctx, msg)
	}

	sess.controller.Close()
	h.unregisterSession(sess.clientUID)
	sess.logger.Info("ws session closed", zap.String("session_id", sess.clientUID))
}

func (h *Handler) newSession(conn wsConn) *session {
	sess := &session{
		conn:      conn,
		logger:    h.logger,
		handler:   h,
		clientUID: uuid.NewString(),
		elements:  make(map[string]*wsElement),
		layouts:   make(map[string]feed.Measurement),
		language:  h.config.Speech.DefaultLanguage,
		persona:   h.config.DefaultPersona,
		autoSpeak: h.config.AutoSpeak,
	}
	sess.controller = speech.NewController(sess, sess, h.logger)
	sess.player = playback.NewManager(sess, h.logger,
		playback.WithGracePeriod(h.config.Playback.GracePeriod()),
		playback.WithEvents(sess),
	)
	tuning := feed.WithTuning(h.config.Feed.Tuning())
	sess.panels = feed.NewRegistry()
	sess.panels.Add(feed.NewEngine("left", feed.DirectionDown, sess, &panelSpeaker{session: sess}, h.logger, tuning))
	sess.panels.Add(feed.NewEngine("right", feed.DirectionUp, sess, &panelSpeaker{session: sess}, h.logger, tuning))
	return sess
}

func (h *Handler) registerSession(sess *session) {
	h.mu.Lock()
	h.sessions[sess.clientUID] = sess
	h.mu.Unlock()
}

func (h *Handler) unregisterSession(clientUID string) {
	h.mu.Lock()
	delete(h.sessions, clientUID)
	h.mu.Unlock()
}

func (s *session) sendJSON(payload any) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	err := s.conn.WriteJSON(payload)
	if err != nil {
		s.logger.Debug("ws send failed",
			zap.String("session_id", s.clientUID),
			zap.Error(err),
		)
	}
	return err
}

func (s *session) systemMessage(level string, text string) {
	s.sendJSON(map[string]any{"type": "system-message", "level": level, "text": text})
}

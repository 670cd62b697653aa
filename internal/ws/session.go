package ws

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/adityadhimaann/brocode-realtime/internal/backend"
	appconfig "github.com/adityadhimaann/brocode-realtime/internal/config"
	"github.com/adityadhimaann/brocode-realtime/internal/feed"
	"github.com/adityadhimaann/brocode-realtime/internal/playback"
	"github.com/adityadhimaann/brocode-realtime/internal/speech"
)

func (s *session) handleIncoming(ctx context.Context, msg incomingMessage) {
	switch msg.Type {
	case "hello":
		s.handleHello(msg)
	case "speech-start":
		s.handleSpeechStart(ctx)
	case "speech-stop":
		s.controller.Stop()
	case "speech-result":
		if ev := s.recognizerSink(); ev != nil {
			ev.Result(msg.Transcript)
		}
	case "speech-end":
		if ev := s.recognizerSink(); ev != nil {
			ev.End()
		}
	case "speech-error":
		if ev := s.recognizerSink(); ev != nil {
			ev.Error(speech.CodeFromPlatform(msg.ErrorName), msg.Message)
		}
	case "audio-play-result":
		s.handlePlayResult(msg)
	case "audio-ended":
		s.handleAudioEnded(msg.ElementID, nil)
	case "audio-error":
		s.handleAudioEnded(msg.ElementID, playbackError(msg.ErrorName, msg.Message))
	case "text-input":
		text := strings.TrimSpace(msg.Text)
		if text == "" {
			return
		}
		go s.runChat(ctx, text)
	case "speak-audio":
		go s.playEncoded(ctx, msg.Payload, "manual chat")
	case "set-language":
		s.handleSetLanguage(msg.Language)
	case "set-persona":
		s.handleSetPersona(msg.Persona)
	case "set-auto-speak":
		if msg.Enabled != nil {
			s.mu.Lock()
			s.autoSpeak = *msg.Enabled
			s.mu.Unlock()
		}
	case "humor-refresh":
		go s.refreshPanels(ctx)
	case "panel-layout":
		s.handlePanelLayout(msg)
	case "feed-hover":
		s.handleFeedHover(msg)
	case "feed-scroll":
		if engine := s.panels.Get(msg.PanelID); engine != nil {
			engine.ManualScroll()
			s.sendTimeline(engine)
		}
	case "feed-timeline":
		if engine := s.panels.Get(msg.PanelID); engine != nil {
			s.sendTimeline(engine)
		}
	case "feed-listen":
		s.handleFeedListen(ctx, msg.PanelID, msg.ItemID)
	case "roast-request":
		go s.runRoast(ctx)
	case "meme-request":
		go s.runMeme(ctx)
	case "task-request":
		go s.runTask(ctx)
	case "achievement-request":
		go s.runAchievement(ctx)
	case "fetch-personas":
		s.sendPersonas()
	case "heartbeat":
		return
	default:
		s.logger.Debug("ws unknown message type",
			zap.String("session_id", s.clientUID),
			zap.String("type", msg.Type),
		)
	}
}

func (s *session) handleHello(msg incomingMessage) {
	supported := msg.SpeechSupported != nil && *msg.SpeechSupported
	s.mu.Lock()
	s.speechSupported = supported
	language := s.language
	persona := s.persona
	autoSpeak := s.autoSpeak
	s.mu.Unlock()

	s.sendJSON(map[string]any{
		"type":             "init",
		"client_uid":       s.clientUID,
		"languages":        s.handler.config.Speech.Languages,
		"language":         language,
		"personas":         s.scanPersonas(),
		"persona":          persona,
		"auto_speak":       autoSpeak,
		"speech_supported": supported,
	})
}

// handleSpeechStart kicks off a capture session. Start failures already
// surface to the client through the SpeechError sink.
func (s *session) handleSpeechStart(ctx context.Context) {
	if err := s.controller.Start(ctx, recognizerLanguage(s.currentLanguage())); err != nil {
		s.logger.Debug("speech start rejected",
			zap.String("session_id", s.clientUID),
			zap.Error(err),
		)
	}
}

// recognizerSink returns the events target of the active recognizer.
// Stale events for a finished session are discarded by the controller's
// own generation check, so a best-effort read is enough here.
func (s *session) recognizerSink() speech.RecognizerEvents {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recEvents
}

func (s *session) handlePlayResult(msg incomingMessage) {
	element := s.lookupElement(msg.ElementID)
	if element == nil {
		return
	}
	var outcome error
	if msg.OK == nil || !*msg.OK {
		outcome = playbackError(msg.ErrorName, msg.Message)
	}
	select {
	case element.started <- outcome:
	default:
	}
}

func (s *session) handleAudioEnded(elementID string, outcome error) {
	element := s.lookupElement(elementID)
	if element == nil {
		return
	}
	select {
	case element.done <- outcome:
	default:
	}
}

// Transcript implements speech.Events.
func (s *session) Transcript(text string) {
	s.sendJSON(map[string]any{"type": "transcript", "text": text})
}

// SpeechError implements speech.Events.
func (s *session) SpeechError(code speech.ErrorCode, message string) {
	s.sendJSON(map[string]any{
		"type":    "speech-error",
		"code":    string(code),
		"message": message,
	})
}

// PlaybackEnded implements playback.Events.
func (s *session) PlaybackEnded(req *playback.Request) {
	payload := map[string]any{
		"type":       "playback-ended",
		"request_id": req.ID,
		"source":     req.Source,
		"state":      string(req.State()),
	}
	if req.State() == playback.StateFailed {
		reason := req.FailureReason()
		payload["reason"] = string(reason)
		s.systemMessage("error", reason.UserMessage())
	}
	s.sendJSON(payload)
}

func (s *session) runChat(ctx context.Context, text string) {
	s.mu.Lock()
	language := s.language
	persona := s.persona
	autoSpeak := s.autoSpeak
	history := append([]backend.ChatTurn(nil), s.history...)
	s.appendHistoryLocked(backend.ChatTurn{Text: text, Sender: "user"})
	s.mu.Unlock()

	resp, err := s.handler.backend.Chat(ctx, backend.ChatRequest{
		Text:        text,
		Language:    language,
		VoiceStyle:  persona,
		PersonaMode: persona,
		History:     history,
		UserID:      s.clientUID,
		AppID:       "brocode-web",
	})
	if err != nil {
		s.logger.Warn("chat request failed",
			zap.String("session_id", s.clientUID),
			zap.Error(err),
		)
		s.systemMessage("error", "Bro, my brain lagged. Try again.")
		return
	}

	s.mu.Lock()
	s.appendHistoryLocked(backend.ChatTurn{Text: resp.Text, Sender: "bot"})
	s.mu.Unlock()

	s.sendJSON(map[string]any{
		"type":  "chat-response",
		"text":  resp.Text,
		"audio": resp.Audio,
	})

	if autoSpeak && resp.Audio != "" {
		s.playEncoded(ctx, resp.Audio, "chat reply")
	}
}

// appendHistoryLocked trims the chat context to the trailing window.
// Callers hold s.mu.
func (s *session) appendHistoryLocked(turn backend.ChatTurn) {
	s.history = append(s.history, turn)
	if len(s.history) > sessionHistoryLimit {
		s.history = s.history[len(s.history)-sessionHistoryLimit:]
	}
}

func (s *session) playEncoded(ctx context.Context, encoded string, source string) {
	data, err := backend.DecodeAudio(encoded)
	if err != nil {
		s.systemMessage("error", playback.FailureNotSupportedFormat.UserMessage())
		return
	}
	if len(data) == 0 {
		return
	}
	// Playback failures surface through the PlaybackEnded sink.
	s.player.Play(ctx, data, source)
}

func (s *session) handleSetLanguage(language string) {
	language = strings.TrimSpace(language)
	if language == "" {
		return
	}
	allowed := s.handler.config.Speech.Languages
	if len(allowed) > 0 && !containsString(allowed, language) {
		s.logger.Debug("rejected language",
			zap.String("session_id", s.clientUID),
			zap.String("language", language),
		)
		return
	}
	s.mu.Lock()
	s.language = language
	s.mu.Unlock()

	// A listening recognizer stays bound to the old language tag, so the
	// session must end; the next start reconstructs it with the new tag.
	// Stop sends recognizer-stop, which also resets the client's mic UI.
	if s.controller.State() == speech.StateListening {
		s.controller.Stop()
	}
}

func (s *session) handleSetPersona(persona string) {
	persona = strings.TrimSpace(persona)
	if persona == "" {
		return
	}
	s.mu.Lock()
	s.persona = persona
	s.mu.Unlock()
}

func (s *session) refreshPanels(ctx context.Context) {
	items, err := s.handler.backend.Humor(ctx, s.currentLanguage())
	if err != nil {
		s.logger.Warn("humor fetch failed",
			zap.String("session_id", s.clientUID),
			zap.Error(err),
		)
		for _, engine := range s.panels.List() {
			engine.SetUnavailable(err)
			s.sendPanel(engine)
		}
		s.systemMessage("error", "The humor feed is down. Tragic.")
		return
	}

	var left, right []feed.Item
	for i, item := range items {
		if i%2 == 0 {
			left = append(left, item)
		} else {
			right = append(right, item)
		}
	}
	s.applyPanelItems("left", left)
	s.applyPanelItems("right", right)
}

func (s *session) applyPanelItems(panelID string, items []feed.Item) {
	engine := s.panels.Get(panelID)
	if engine == nil {
		return
	}
	engine.SetItems(items)
	s.sendPanel(engine)
}

func (s *session) handlePanelLayout(msg incomingMessage) {
	if msg.PanelID == "" {
		return
	}
	s.mu.Lock()
	s.layouts[msg.PanelID] = feed.Measurement{
		ContentHeight:  msg.ContentHeight,
		ViewportHeight: msg.ViewportHeight,
	}
	s.mu.Unlock()
	if engine := s.panels.Get(msg.PanelID); engine != nil {
		engine.Refresh()
		s.sendTimeline(engine)
	}
}

func (s *session) handleFeedHover(msg incomingMessage) {
	engine := s.panels.Get(msg.PanelID)
	if engine == nil || msg.Hovering == nil {
		return
	}
	if *msg.Hovering {
		engine.HoverEnter()
	} else {
		engine.HoverLeave()
	}
	s.sendTimeline(engine)
}

func (s *session) handleFeedListen(ctx context.Context, panelID string, itemID string) {
	engine := s.panels.Get(panelID)
	if engine == nil {
		return
	}
	err := engine.Listen(ctx, itemID)
	switch {
	case err == nil:
	case errors.Is(err, feed.ErrListenBusy):
		// Duplicate taps on an in-flight item are ignored.
		s.logger.Debug("listen already in flight",
			zap.String("session_id", s.clientUID),
			zap.String("panel_id", panelID),
			zap.String("item_id", itemID),
		)
	case errors.Is(err, feed.ErrUnknownItem):
		s.systemMessage("error", "That one scrolled away. Refresh the feed.")
	default:
		s.systemMessage("error", err.Error())
	}
}

func (s *session) runRoast(ctx context.Context) {
	text, err := s.handler.backend.Roast(ctx, s.currentLanguage())
	if err != nil {
		s.systemMessage("error", "The roast oven is cold. Try again.")
		return
	}
	s.sendJSON(map[string]any{"type": "roast-response", "text": text})
}

func (s *session) runMeme(ctx context.Context) {
	meme, err := s.handler.backend.Meme(ctx, s.currentLanguage())
	if err != nil {
		s.systemMessage("error", "Meme generator tripped over itself. Try again.")
		return
	}
	s.sendJSON(map[string]any{
		"type":      "meme-response",
		"caption":   meme.Caption,
		"image_url": meme.ImageURL,
	})
}

func (s *session) runTask(ctx context.Context) {
	card, err := s.handler.backend.AssignTask(ctx, s.clientUID, s.currentLanguage())
	if err != nil {
		s.systemMessage("error", "No tasks today. Consider yourself spared.")
		return
	}
	s.sendJSON(map[string]any{
		"type":        "task-response",
		"title":       card.Title,
		"description": card.Description,
	})
}

func (s *session) runAchievement(ctx context.Context) {
	card, err := s.handler.backend.UnlockAchievement(ctx, s.clientUID, s.currentLanguage())
	if err != nil {
		s.systemMessage("error", "No achievements earned. That tracks.")
		return
	}
	s.sendJSON(map[string]any{
		"type":        "achievement-response",
		"title":       card.Title,
		"description": card.Description,
	})
}

func (s *session) sendPersonas() {
	s.sendJSON(map[string]any{"type": "persona-files", "personas": s.scanPersonas()})
}

func (s *session) scanPersonas() []appconfig.PersonaInfo {
	return appconfig.ScanPersonaFiles(s.handler.config.PersonasDir)
}

func (s *session) sendPanel(engine *feed.Engine) {
	s.sendJSON(map[string]any{
		"type":      "feed-items",
		"panel_id":  engine.PanelID(),
		"direction": string(engine.Direction()),
		"items":     engine.Rendered(),
		"status":    engine.Status(),
	})
}

func (s *session) sendTimeline(engine *feed.Engine) {
	s.sendJSON(map[string]any{
		"type":         "feed-timeline",
		"panel_id":     engine.PanelID(),
		"direction":    string(engine.Direction()),
		"loop_seconds": engine.LoopDuration().Seconds(),
		"offset":       engine.Offset(),
		"suspended":    engine.Suspended(),
	})
}

func (s *session) currentLanguage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.language
}

func (s *session) currentSettings() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.language, s.persona
}

// recognizerLanguage maps the UI language selection onto a BCP 47 tag the
// platform recognizer accepts. Hinglish dictation rides on the Hindi
// recognizer model.
func recognizerLanguage(language string) string {
	if language == "hinglish" {
		return "hi-IN"
	}
	return language
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}

// panelSpeaker chains a feed item's text through the text-to-speech
// collaborator into the playback manager.
type panelSpeaker struct {
	session *session
}

func (p *panelSpeaker) Speak(ctx context.Context, text string) error {
	s := p.session
	language, persona := s.currentSettings()
	result, err := s.handler.backend.SpeakText(ctx, text, language, persona)
	if err != nil {
		s.systemMessage("error", "Could not reach the voice service.")
		return err
	}
	data, err := backend.DecodeAudio(result.Audio)
	if err != nil {
		s.systemMessage("error", playback.FailureNotSupportedFormat.UserMessage())
		return err
	}
	if len(data) == 0 {
		// A silent result is a valid outcome, not a failure.
		s.systemMessage("info", "No audio came back for this one. Read it with your own dramatic flair.")
		return nil
	}
	_, err = s.player.Play(ctx, data, "humor panel")
	return err
}

package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adityadhimaann/brocode-realtime/internal/feed"
)

const (
	defaultTimeout       = 30 * time.Second
	defaultHistoryWindow = 5
)

// Config holds inference backend connection settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client talks to the inference backend. It only relays data contracts;
// prompt construction, meme retrieval and persona logic live server-side.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a backend client.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("backend base url is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: base,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

// ChatTurn is one prior exchange included as context with a chat send.
type ChatTurn struct {
	Text   string `json:"text"`
	Sender string `json:"sender"`
}

// ChatRequest is a chat send.
type ChatRequest struct {
	Text        string     `json:"text"`
	Language    string     `json:"language"`
	VoiceStyle  string     `json:"voice_style"`
	PersonaMode string     `json:"persona_mode"`
	History     []ChatTurn `json:"history"`
	UserID      string     `json:"user_id"`
	AppID       string     `json:"app_id"`
}

// ChatResponse is the backend reply. Audio is base64-encoded and may be
// empty when no speech was synthesized.
type ChatResponse struct {
	Text  string `json:"text"`
	Audio string `json:"audio,omitempty"`
}

// SpeakResult is a text-to-speech outcome. An empty Audio is a valid,
// non-error outcome the caller must message distinctly from a failure.
type SpeakResult struct {
	Audio string `json:"audio"`
}

// Meme is generated meme content for the modal surface.
type Meme struct {
	Caption  string `json:"caption"`
	ImageURL string `json:"image_url"`
}

// Chat posts a message and returns the reply. History is truncated to the
// trailing window the backend expects.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("chat text is empty")
	}
	if len(req.History) > defaultHistoryWindow {
		req.History = req.History[len(req.History)-defaultHistoryWindow:]
	}
	var out ChatResponse
	if err := c.post(ctx, "/chat", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SpeakText requests synthesized speech for arbitrary text.
func (c *Client) SpeakText(ctx context.Context, text string, language string, voiceStyle string) (*SpeakResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("speak text is empty")
	}
	payload := map[string]string{
		"text":        text,
		"language":    language,
		"voice_style": voiceStyle,
	}
	var out SpeakResult
	if err := c.post(ctx, "/speak_text", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type humorItem struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Content  string `json:"content"`
	ImageURL string `json:"image_url"`
}

// Humor fetches one panel's worth of humor items. Items missing an id get
// one assigned so item-scoped listen dedup works.
func (c *Client) Humor(ctx context.Context, language string) ([]feed.Item, error) {
	payload := map[string]string{"language": language}
	var raw []humorItem
	if err := c.post(ctx, "/get_humor", payload, &raw); err != nil {
		return nil, err
	}
	items := make([]feed.Item, 0, len(raw))
	for _, entry := range raw {
		if strings.TrimSpace(entry.Content) == "" {
			continue
		}
		id := entry.ID
		if id == "" {
			id = uuid.NewString()
		}
		kind := feed.ItemJoke
		if entry.Type == string(feed.ItemMeme) {
			kind = feed.ItemMeme
		}
		items = append(items, feed.Item{
			ID:       id,
			Type:     kind,
			Content:  entry.Content,
			ImageRef: entry.ImageURL,
		})
	}
	return items, nil
}

// Roast fetches a generated roast line.
func (c *Client) Roast(ctx context.Context, language string) (string, error) {
	payload := map[string]string{"language": language}
	var out struct {
		Roast string `json:"roast"`
	}
	if err := c.post(ctx, "/roast_me", payload, &out); err != nil {
		return "", err
	}
	return out.Roast, nil
}

// Meme fetches generated meme content.
func (c *Client) Meme(ctx context.Context, language string) (*Meme, error) {
	payload := map[string]string{"language": language}
	var out struct {
		Meme     string `json:"meme"`
		Caption  string `json:"caption"`
		ImageURL string `json:"image_url"`
	}
	if err := c.post(ctx, "/generate_brocode_meme", payload, &out); err != nil {
		return nil, err
	}
	caption := out.Meme
	if caption == "" {
		caption = out.Caption
	}
	return &Meme{Caption: caption, ImageURL: out.ImageURL}, nil
}

// Card is a generated task or achievement card.
type Card struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// AssignTask fetches a sarcastic task card for the user.
func (c *Client) AssignTask(ctx context.Context, userID string, language string) (*Card, error) {
	payload := map[string]string{"user_id": userID, "language": language}
	var out Card
	if err := c.post(ctx, "/assign_task", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UnlockAchievement fetches a sarcastic achievement card for the user.
func (c *Client) UnlockAchievement(ctx context.Context, userID string, language string) (*Card, error) {
	payload := map[string]string{"user_id": userID, "language": language}
	var out Card
	if err := c.post(ctx, "/unlock_achievement", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}

	c.logger.Debug("backend request",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("backend %s: %s", path, apiErr.Error)
		}
		return fmt.Errorf("backend %s: status %d", path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// DecodeAudio decodes a base64 audio payload from the backend.
func DecodeAudio(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode audio payload: %w", err)
	}
	return data, nil
}

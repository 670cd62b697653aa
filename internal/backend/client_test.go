package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/adityadhimaann/brocode-realtime/internal/feed"
)

func newTestServer(t *testing.T, path string, status int, body any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != path {
			t.Errorf("path=%s, want %s", r.URL.Path, path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("method=%s, want POST", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
}

func TestChatTruncatesHistory(t *testing.T) {
	var gotHistory int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		gotHistory = len(req.History)
		_ = json.NewEncoder(w).Encode(ChatResponse{Text: "arre bhai", Audio: "bW9jaw=="})
	}))
	defer server.Close()

	c, err := NewClient(Config{BaseURL: server.URL}, nil)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	history := make([]ChatTurn, 9)
	resp, err := c.Chat(context.Background(), ChatRequest{Text: "hello", History: history})
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if resp.Text != "arre bhai" {
		t.Fatalf("text=%q, want %q", resp.Text, "arre bhai")
	}
	if gotHistory != defaultHistoryWindow {
		t.Fatalf("history sent=%d, want %d", gotHistory, defaultHistoryWindow)
	}
}

func TestChatEmptyText(t *testing.T) {
	c, err := NewClient(Config{BaseURL: "http://localhost:1"}, nil)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	if _, err := c.Chat(context.Background(), ChatRequest{Text: "  "}); err == nil {
		t.Fatal("Chat with empty text error=nil, want non-nil")
	}
}

func TestSpeakTextNoAudioIsNotAnError(t *testing.T) {
	server := newTestServer(t, "/speak_text", http.StatusOK, map[string]any{"audio": nil})
	defer server.Close()

	c, err := NewClient(Config{BaseURL: server.URL}, nil)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	result, err := c.SpeakText(context.Background(), "some joke", "hi-IN", "savage")
	if err != nil {
		t.Fatalf("SpeakText returned error: %v", err)
	}
	if result.Audio != "" {
		t.Fatalf("audio=%q, want empty", result.Audio)
	}
}

func TestBackendErrorBodySurfaced(t *testing.T) {
	server := newTestServer(t, "/speak_text", http.StatusInternalServerError, map[string]string{"error": "tts exploded"})
	defer server.Close()

	c, err := NewClient(Config{BaseURL: server.URL}, nil)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	_, err = c.SpeakText(context.Background(), "some joke", "en", "classic")
	if err == nil {
		t.Fatal("SpeakText error=nil, want non-nil")
	}
	if want := "tts exploded"; !strings.Contains(err.Error(), want) {
		t.Fatalf("err=%q, want it to mention %q", err.Error(), want)
	}
}

func TestHumorAssignsMissingIDs(t *testing.T) {
	body := []map[string]string{
		{"type": "joke", "content": "first joke"},
		{"id": "kept", "type": "meme", "content": "caption", "image_url": "http://img"},
		{"type": "joke", "content": ""},
	}
	server := newTestServer(t, "/get_humor", http.StatusOK, body)
	defer server.Close()

	c, err := NewClient(Config{BaseURL: server.URL}, nil)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	items, err := c.Humor(context.Background(), "hinglish")
	if err != nil {
		t.Fatalf("Humor returned error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items=%d, want 2 (blank content dropped)", len(items))
	}
	if items[0].ID == "" {
		t.Fatal("first item id not assigned")
	}
	if items[1].ID != "kept" {
		t.Fatalf("second item id=%q, want %q", items[1].ID, "kept")
	}
	if items[1].Type != feed.ItemMeme || items[1].ImageRef != "http://img" {
		t.Fatalf("meme item not preserved: %+v", items[1])
	}
}

func TestMemeFallsBackToCaptionField(t *testing.T) {
	server := newTestServer(t, "/generate_brocode_meme", http.StatusOK, map[string]string{
		"caption":   "desi caption",
		"image_url": "http://img",
	})
	defer server.Close()

	c, err := NewClient(Config{BaseURL: server.URL}, nil)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	meme, err := c.Meme(context.Background(), "en")
	if err != nil {
		t.Fatalf("Meme returned error: %v", err)
	}
	if meme.Caption != "desi caption" {
		t.Fatalf("caption=%q, want %q", meme.Caption, "desi caption")
	}
}

func TestAssignTaskSendsUserAndLanguage(t *testing.T) {
	var got map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/assign_task" {
			t.Errorf("path=%s, want /assign_task", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(Card{Title: "Hydrate", Description: "Drink water, legend."})
	}))
	defer server.Close()

	c, err := NewClient(Config{BaseURL: server.URL}, nil)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	card, err := c.AssignTask(context.Background(), "bro-42", "hinglish")
	if err != nil {
		t.Fatalf("AssignTask returned error: %v", err)
	}
	if card.Title != "Hydrate" || card.Description != "Drink water, legend." {
		t.Fatalf("card=%+v, want Hydrate card", card)
	}
	if got["user_id"] != "bro-42" || got["language"] != "hinglish" {
		t.Fatalf("request body=%v, want user_id and language", got)
	}
}

func TestUnlockAchievementParsesCard(t *testing.T) {
	server := newTestServer(t, "/unlock_achievement", http.StatusOK, Card{
		Title:       "Certified Bro",
		Description: "Opened the app twice.",
	})
	defer server.Close()

	c, err := NewClient(Config{BaseURL: server.URL}, nil)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	card, err := c.UnlockAchievement(context.Background(), "bro-42", "en")
	if err != nil {
		t.Fatalf("UnlockAchievement returned error: %v", err)
	}
	if card.Title != "Certified Bro" {
		t.Fatalf("title=%q, want %q", card.Title, "Certified Bro")
	}
}

func TestDecodeAudio(t *testing.T) {
	data, err := DecodeAudio("bW9jaw==")
	if err != nil {
		t.Fatalf("DecodeAudio returned error: %v", err)
	}
	if string(data) != "mock" {
		t.Fatalf("decoded=%q, want %q", data, "mock")
	}
	if data, err := DecodeAudio(""); err != nil || data != nil {
		t.Fatalf("DecodeAudio(empty)=%v,%v, want nil,nil", data, err)
	}
	if _, err := DecodeAudio("!!!"); err == nil {
		t.Fatal("DecodeAudio(garbage) error=nil, want non-nil")
	}
}

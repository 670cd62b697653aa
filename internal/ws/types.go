package ws

// incomingMessage is the envelope for every client-to-server message.
type incomingMessage struct {
	Type string `json:"type"`

	// chat
	Text    string `json:"text,omitempty"`
	Payload string `json:"payload,omitempty"`

	// settings
	Language string `json:"language,omitempty"`
	Persona  string `json:"persona,omitempty"`
	Enabled  *bool  `json:"enabled,omitempty"`

	// platform capability report
	SpeechSupported *bool `json:"speech_supported,omitempty"`

	// speech platform events
	Transcript string `json:"transcript,omitempty"`
	ErrorName  string `json:"error_name,omitempty"`
	Message    string `json:"message,omitempty"`

	// audio platform events
	ElementID string `json:"element_id,omitempty"`
	OK        *bool  `json:"ok,omitempty"`

	// feed
	PanelID        string  `json:"panel_id,omitempty"`
	ItemID         string  `json:"item_id,omitempty"`
	ContentHeight  float64 `json:"content_height,omitempty"`
	ViewportHeight float64 `json:"viewport_height,omitempty"`
	Hovering       *bool   `json:"hovering,omitempty"`
}

package feed

// ItemType distinguishes the two humor content kinds.
type ItemType string

const (
	ItemJoke ItemType = "joke"
	ItemMeme ItemType = "meme"
)

// Item is one display entry in a scrolling panel.
type Item struct {
	ID       string   `json:"id"`
	Type     ItemType `json:"type"`
	Content  string   `json:"content"`
	ImageRef string   `json:"image_ref,omitempty"`
}

// Direction is the scroll direction of a panel.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// PanelState describes what a panel should render. An error state is
// distinct from "no items" so a broken panel never masquerades as empty.
type PanelState string

const (
	PanelReady PanelState = "ready"
	PanelEmpty PanelState = "empty"
	PanelError PanelState = "error"
)

// Status is a point-in-time panel snapshot handed to the rendering layer.
type Status struct {
	State        PanelState `json:"state"`
	Error        string     `json:"error,omitempty"`
	ItemCount    int        `json:"item_count"`
	LoopSeconds  float64    `json:"loop_seconds"`
	Suspended    bool       `json:"suspended"`
	OffsetPixels float64    `json:"offset_pixels"`
}

package feed

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/bep/debounce"
	"go.uber.org/zap"
)

// Measurement is the rendered size of one copy of a panel's items plus the
// visible frame, in CSS pixels.
type Measurement struct {
	ContentHeight  float64
	ViewportHeight float64
}

// Measurer reports layout measurements for a panel. The production
// implementation caches reports pushed by the browser; tests return
// synthetic numbers.
type Measurer interface {
	Measure(panelID string) (Measurement, error)
}

// Speaker turns an item's text into rendered audio. The production
// implementation chains the text-to-speech collaborator into the playback
// manager.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// ErrListenBusy reports a re-entrant listen on an item whose previous
// request is still outstanding.
var ErrListenBusy = errors.New("listen already in flight for item")

// ErrUnknownItem reports a listen for an item the panel does not hold.
var ErrUnknownItem = errors.New("unknown feed item")

// Tuning holds the measurement-driven animation constants.
type Tuning struct {
	// ScrollSpeed is the fixed scroll rate in pixels per second.
	ScrollSpeed float64
	// SafetyFactor disables looping when one content copy does not exceed
	// the viewport by this margin.
	SafetyFactor float64
	// MinLoopSeconds is the loop duration floor.
	MinLoopSeconds float64
	// Copies is how many times the item list is rendered contiguously so
	// the loop boundary never shows a visible seam.
	Copies int
	// ScrollIdle is how long after the last manual scroll gesture the
	// animation auto-resumes.
	ScrollIdle time.Duration
}

// DefaultTuning mirrors the production panel behavior.
func DefaultTuning() Tuning {
	return Tuning{
		ScrollSpeed:    80,
		SafetyFactor:   1.3,
		MinLoopSeconds: 8,
		Copies:         3,
		ScrollIdle:     3 * time.Second,
	}
}

type cycleParams struct {
	contentHeight float64
	duration      time.Duration
}

// Engine drives one scrolling panel: it derives a loop duration from
// measured content height and exposes a continuously repeating offset that
// survives suspension without snapping back to the loop start.
type Engine struct {
	panelID   string
	direction Direction
	measurer  Measurer
	speaker   Speaker
	clock     clock.Clock
	tuning    Tuning
	logger    *zap.Logger
	debounced func(func())

	mu          sync.Mutex
	items       []Item
	unavailable error

	params       cycleParams
	epoch        time.Time
	frozenOffset float64
	hoverPaused  bool
	scrollPaused bool

	// pending holds recomputed params applied at the next cycle boundary so
	// a mid-loop content change never produces a visible snap.
	pending        *cycleParams
	pendingAtCycle int64

	busy map[string]struct{}
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClock substitutes the wall clock, for tests.
func WithClock(c clock.Clock) EngineOption {
	return func(e *Engine) { e.clock = c }
}

// WithTuning overrides the animation constants.
func WithTuning(t Tuning) EngineOption {
	return func(e *Engine) { e.tuning = t }
}

// NewEngine creates a panel engine with no items and animation disabled.
func NewEngine(panelID string, direction Direction, measurer Measurer, speaker Speaker, logger *zap.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		panelID:   panelID,
		direction: direction,
		measurer:  measurer,
		speaker:   speaker,
		clock:     clock.New(),
		tuning:    DefaultTuning(),
		logger:    logger,
		busy:      make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.debounced = debounce.New(e.tuning.ScrollIdle)
	return e
}

// PanelID returns the panel identifier.
func (e *Engine) PanelID() string { return e.panelID }

// Direction returns the panel scroll direction.
func (e *Engine) Direction() Direction { return e.direction }

// SetItems replaces the panel content and recomputes the loop. It clears
// any previous fetch failure.
func (e *Engine) SetItems(items []Item) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.items = items
	e.unavailable = nil
	e.recomputeLocked()
}

// SetUnavailable marks the panel as broken by a fetch failure. The panel
// renders an explicit error with a retry affordance instead of appearing
// empty; animation is disabled.
func (e *Engine) SetUnavailable(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.unavailable = err
	e.items = nil
	e.applyParamsLocked(cycleParams{})
}

// Refresh re-measures the panel after a layout change and recomputes the
// loop duration.
func (e *Engine) Refresh() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recomputeLocked()
}

// Items returns the source item list.
func (e *Engine) Items() []Item {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Item, len(e.items))
	copy(out, e.items)
	return out
}

// Rendered returns the item sequence repeated enough times that a full
// loop completes without a visible seam.
func (e *Engine) Rendered() []Item {
	e.mu.Lock()
	defer e.mu.Unlock()
	copies := e.tuning.Copies
	if copies < 2 {
		copies = 2
	}
	out := make([]Item, 0, len(e.items)*copies)
	for i := 0; i < copies; i++ {
		out = append(out, e.items...)
	}
	return out
}

// LoopDuration returns the active loop duration; zero means the panel does
// not animate.
func (e *Engine) LoopDuration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rollCycleLocked()
	return e.params.duration
}

// Offset returns the current scroll displacement in pixels within [0, H),
// where H is the measured height of one content copy. Interpretation is
// direction-dependent: Down panels translate by -Offset, Up panels by
// Offset-H.
func (e *Engine) Offset() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.offsetLocked()
}

// Suspended reports whether the animation is halted by hover or manual
// scrolling.
func (e *Engine) Suspended() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hoverPaused || e.scrollPaused
}

// HoverEnter halts the animation in place while the pointer is over the
// panel.
func (e *Engine) HoverEnter() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.suspendLocked()
	e.hoverPaused = true
}

// HoverLeave resumes the animation from its current offset.
func (e *Engine) HoverLeave() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hoverPaused = false
	e.maybeResumeLocked()
}

// ManualScroll registers a manual scroll gesture: the animation halts in
// place and auto-resumes after the idle window with no further gestures.
func (e *Engine) ManualScroll() {
	e.mu.Lock()
	e.suspendLocked()
	e.scrollPaused = true
	e.mu.Unlock()

	e.debounced(func() {
		e.mu.Lock()
		e.scrollPaused = false
		e.maybeResumeLocked()
		e.mu.Unlock()
	})
}

// Listen speaks one item's text through the playback chain. Re-entrant
// listens on the same item are rejected while a request is outstanding;
// different items proceed independently.
func (e *Engine) Listen(ctx context.Context, itemID string) error {
	e.mu.Lock()
	var item *Item
	for i := range e.items {
		if e.items[i].ID == itemID {
			item = &e.items[i]
			break
		}
	}
	if item == nil {
		e.mu.Unlock()
		return ErrUnknownItem
	}
	if _, inFlight := e.busy[itemID]; inFlight {
		e.mu.Unlock()
		return ErrListenBusy
	}
	e.busy[itemID] = struct{}{}
	content := item.Content
	e.mu.Unlock()

	go func() {
		defer func() {
			e.mu.Lock()
			delete(e.busy, itemID)
			e.mu.Unlock()
		}()
		if err := e.speaker.Speak(ctx, content); err != nil {
			e.logger.Warn("feed listen failed",
				zap.String("panel", e.panelID),
				zap.String("item_id", itemID),
				zap.Error(err),
			)
		}
	}()
	return nil
}

// ListenBusy reports whether a listen request for itemID is outstanding.
func (e *Engine) ListenBusy(itemID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, inFlight := e.busy[itemID]
	return inFlight
}

// Status returns the panel snapshot for the rendering layer.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Status{
		ItemCount:    len(e.items),
		LoopSeconds:  e.params.duration.Seconds(),
		Suspended:    e.hoverPaused || e.scrollPaused,
		OffsetPixels: e.offsetLocked(),
	}
	switch {
	case e.unavailable != nil:
		s.State = PanelError
		s.Error = e.unavailable.Error()
	case len(e.items) == 0:
		s.State = PanelEmpty
	default:
		s.State = PanelReady
	}
	return s
}

func (e *Engine) recomputeLocked() {
	m, err := e.measurer.Measure(e.panelID)
	if err != nil {
		e.logger.Debug("panel measurement unavailable",
			zap.String("panel", e.panelID),
			zap.Error(err),
		)
		e.applyParamsLocked(cycleParams{})
		return
	}
	next := cycleParams{
		contentHeight: m.ContentHeight,
		duration:      e.loopDurationFor(m),
	}
	e.applyParamsLocked(next)
}

// loopDurationFor derives the loop duration from a measurement. Zero means
// there is not enough content to loop without dead space.
func (e *Engine) loopDurationFor(m Measurement) time.Duration {
	if len(e.items) == 0 {
		return 0
	}
	if m.ContentHeight <= 0 || m.ViewportHeight <= 0 {
		return 0
	}
	if m.ContentHeight < m.ViewportHeight*e.tuning.SafetyFactor {
		return 0
	}
	seconds := m.ContentHeight / e.tuning.ScrollSpeed
	if seconds < e.tuning.MinLoopSeconds {
		seconds = e.tuning.MinLoopSeconds
	}
	return time.Duration(seconds * float64(time.Second))
}

// applyParamsLocked installs new cycle params. A panel animating mid-loop
// defers them to the next cycle boundary; otherwise they apply at once.
func (e *Engine) applyParamsLocked(next cycleParams) {
	animating := e.params.duration > 0 && !e.hoverPaused && !e.scrollPaused
	if !animating {
		e.params = next
		e.epoch = e.clock.Now()
		e.frozenOffset = 0
		e.pending = nil
		return
	}
	if next == e.params {
		e.pending = nil
		return
	}
	e.pending = &next
	e.pendingAtCycle = e.cycleIndexLocked()
}

func (e *Engine) cycleIndexLocked() int64 {
	if e.params.duration <= 0 {
		return 0
	}
	return int64(e.clock.Since(e.epoch) / e.params.duration)
}

// rollCycleLocked applies deferred params once the cycle that was running
// when they arrived has completed. The swap happens at a loop boundary
// where the offset is zero, so no snap is visible.
func (e *Engine) rollCycleLocked() {
	if e.pending == nil || e.params.duration <= 0 {
		return
	}
	if e.hoverPaused || e.scrollPaused {
		return
	}
	current := e.cycleIndexLocked()
	if current <= e.pendingAtCycle {
		return
	}
	boundary := e.epoch.Add(time.Duration(e.pendingAtCycle+1) * e.params.duration)
	e.params = *e.pending
	e.pending = nil
	e.epoch = boundary
	e.frozenOffset = 0
}

func (e *Engine) offsetLocked() float64 {
	e.rollCycleLocked()
	if e.params.duration <= 0 || e.params.contentHeight <= 0 {
		return 0
	}
	if e.hoverPaused || e.scrollPaused {
		return e.frozenOffset
	}
	// Integer remainder keeps the cycle fraction exact at loop
	// boundaries; float Mod accumulates error across cycles.
	elapsed := e.clock.Since(e.epoch)
	rem := elapsed % e.params.duration
	if rem < 0 {
		rem += e.params.duration
	}
	return float64(rem) / float64(e.params.duration) * e.params.contentHeight
}

func (e *Engine) suspendLocked() {
	if e.hoverPaused || e.scrollPaused {
		return
	}
	e.frozenOffset = e.offsetLocked()
}

// maybeResumeLocked rebases the timeline so the offset continues from the
// frozen value rather than resetting to the loop start.
func (e *Engine) maybeResumeLocked() {
	if e.hoverPaused || e.scrollPaused {
		return
	}
	if e.params.duration <= 0 || e.params.contentHeight <= 0 {
		return
	}
	frac := e.frozenOffset / e.params.contentHeight
	rewind := time.Duration(frac * float64(e.params.duration))
	e.epoch = e.clock.Now().Add(-rewind)
	if e.pending != nil {
		e.pendingAtCycle = e.cycleIndexLocked()
	}
}

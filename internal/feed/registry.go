package feed

import "sync"

// Registry tracks the panel engines belonging to one client connection.
type Registry struct {
	mu     sync.Mutex
	panels map[string]*Engine
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{panels: make(map[string]*Engine)}
}

// Add registers a panel engine, replacing any previous engine under the
// same panel id.
func (r *Registry) Add(engine *Engine) {
	if engine == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.panels[engine.PanelID()] = engine
}

// Get returns the engine for panelID, or nil.
func (r *Registry) Get(panelID string) *Engine {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.panels[panelID]
}

// Remove drops the engine for panelID.
func (r *Registry) Remove(panelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.panels, panelID)
}

// List returns all registered engines.
func (r *Registry) List() []*Engine {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Engine, 0, len(r.panels))
	for _, engine := range r.panels {
		out = append(out, engine)
	}
	return out
}

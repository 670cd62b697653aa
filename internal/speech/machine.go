package speech

import (
	"fmt"
	"sync"
)

// State describes the capture lifecycle for one controller instance.
type State string

const (
	StateIdle      State = "idle"
	StateListening State = "listening"
	StateErroring  State = "erroring"
)

// Machine is a lightweight deterministic capture state machine.
type Machine struct {
	mu    sync.RWMutex
	state State
}

// NewMachine creates a state machine in the idle state.
func NewMachine() *Machine {
	return &Machine{state: StateIdle}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// OnListenStart moves the session into listening.
func (m *Machine) OnListenStart() {
	m.transition(StateListening)
}

// OnTranscript marks a successful utterance; the session returns to idle.
func (m *Machine) OnTranscript() {
	m.transition(StateIdle)
}

// OnStop marks an explicit stop or end-of-utterance.
func (m *Machine) OnStop() {
	m.transition(StateIdle)
}

// OnPlatformError marks a platform failure.
func (m *Machine) OnPlatformError() {
	m.transition(StateErroring)
}

// OnErrorSettled returns the session to idle after the error was surfaced.
func (m *Machine) OnErrorSettled() {
	m.transition(StateIdle)
}

// Force sets state unconditionally.
func (m *Machine) Force(state State) error {
	switch state {
	case StateIdle, StateListening, StateErroring:
		m.transition(state)
		return nil
	default:
		return fmt.Errorf("invalid state: %s", state)
	}
}

func (m *Machine) transition(state State) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}

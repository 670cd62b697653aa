package speech

import "testing"

func TestMachineDefault(t *testing.T) {
	m := NewMachine()
	if got := m.State(); got != StateIdle {
		t.Fatalf("state=%s, want %s", got, StateIdle)
	}
}

func TestMachineTranscriptLifecycle(t *testing.T) {
	m := NewMachine()
	m.OnListenStart()
	if got := m.State(); got != StateListening {
		t.Fatalf("state=%s, want %s", got, StateListening)
	}
	m.OnTranscript()
	if got := m.State(); got != StateIdle {
		t.Fatalf("state=%s, want %s", got, StateIdle)
	}
}

func TestMachineErrorLifecycle(t *testing.T) {
	m := NewMachine()
	m.OnListenStart()
	m.OnPlatformError()
	if got := m.State(); got != StateErroring {
		t.Fatalf("state=%s, want %s", got, StateErroring)
	}
	m.OnErrorSettled()
	if got := m.State(); got != StateIdle {
		t.Fatalf("state=%s, want %s", got, StateIdle)
	}
}

func TestMachineInvalidForce(t *testing.T) {
	m := NewMachine()
	if err := m.Force(State("unknown")); err == nil {
		t.Fatal("Force(unknown) error=nil, want non-nil")
	}
}

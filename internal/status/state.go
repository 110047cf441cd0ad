// Package status tracks the lifecycle of the server connection.
package status

import (
	"errors"
	"fmt"
	"sync"

	"github.com/matheus3301/simchat/internal/bus"
)

// State is the lifecycle state of the server connection.
type State string

const (
	Disconnected State = "DISCONNECTED"
	Connecting   State = "CONNECTING"
	Open         State = "OPEN"
)

// ErrInvalidTransition is matched by every *TransitionError.
var ErrInvalidTransition = errors.New("invalid state transition")

// TransitionError reports a refused move between two states.
type TransitionError struct {
	From, To State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid state transition %s -> %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// CanMove reports whether the connection may go from s to next. A failed
// dial falls back from Connecting to Disconnected.
func (s State) CanMove(next State) bool {
	switch s {
	case Disconnected:
		return next == Connecting
	case Connecting:
		return next == Open || next == Disconnected
	case Open:
		return next == Disconnected
	}
	return false
}

// Change is published as conn.state_changed. Opens counts how many times
// the connection has reached Open, this change included.
type Change struct {
	From  State `json:"from"`
	To    State `json:"to"`
	Opens int   `json:"opens"`
}

// Machine serializes state changes and announces each one on the bus.
type Machine struct {
	bus *bus.Bus

	mu      sync.RWMutex
	current State
	opens   int
}

// NewMachine returns a Machine in Disconnected. b may be nil.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{bus: b, current: Disconnected}
}

func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Opens returns how many times the connection has been opened.
func (m *Machine) Opens() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.opens
}

// Transition moves to next or returns a *TransitionError leaving the state
// unchanged.
func (m *Machine) Transition(next State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.current.CanMove(next) {
		return &TransitionError{From: m.current, To: next}
	}
	if next == Open {
		m.opens++
	}
	change := Change{From: m.current, To: next, Opens: m.opens}
	m.current = next
	m.bus.Publish(bus.Event{Kind: bus.KindStateChanged, Payload: change})
	return nil
}

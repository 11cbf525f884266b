package supervisor

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// State is the lifecycle state of one worker slot.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateRestarting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateRestarting:
		return "restarting"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var ErrIllegalTransition = errors.New("illegal slot state transition")

var transitions = map[State][]State{
	StateIdle:       {StateStarting, StateStopped},
	StateStarting:   {StateRunning, StateRestarting, StateStopped},
	StateRunning:    {StateRestarting, StateStopped},
	StateRestarting: {StateStarting, StateStopped},
}

// CanTransition reports whether a slot may move from one state to another.
func CanTransition(from, to State) bool {
	return slices.Contains(transitions[from], to)
}

// slotState is the guarded state of one slot.
type slotState struct {
	mu       sync.Mutex
	state    State
	restarts int
	pid      int
}

func (s *slotState) transition(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !CanTransition(s.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, s.state, to)
	}
	if to == StateRestarting {
		s.restarts++
	}
	s.state = to
	return nil
}

func (s *slotState) setPID(pid int) {
	s.mu.Lock()
	s.pid = pid
	s.mu.Unlock()
}

// SlotStatus is a point-in-time view of a slot.
type SlotStatus struct {
	Slot     int
	State    State
	Restarts int
	PID      int
}

func (s *slotState) status(slot int) SlotStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SlotStatus{Slot: slot, State: s.state, Restarts: s.restarts, PID: s.pid}
}

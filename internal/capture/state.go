package capture

import (
	"errors"
	"fmt"
)

var ErrInvalidTransition = errors.New("invalid state transition")

// State is the capture state of the session.
type State int

const (
	Idle State = iota
	Connected
	Capturing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Connected:
		return "Connected"
	case Capturing:
		return "Capturing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "Idle":
		*s = Idle
	case "Connected":
		*s = Connected
	case "Capturing":
		*s = Capturing
	default:
		return fmt.Errorf("unknown state %q", text)
	}
	return nil
}

// StateMachine gates the acquisition pipeline:
//
//	Idle --connect--> Connected --start--> Capturing --stop--> Connected
//
// There is no way back to Idle. Rejected transitions leave the state as is.
type StateMachine struct {
	state State
}

func (m *StateMachine) State() State {
	return m.state
}

// Connect records a successful device connection.
func (m *StateMachine) Connect() error {
	return m.transition(Idle, Connected, "connect")
}

func (m *StateMachine) Start() error {
	return m.transition(Connected, Capturing, "start capture")
}

func (m *StateMachine) Stop() error {
	return m.transition(Capturing, Connected, "stop capture")
}

func (m *StateMachine) transition(from, to State, op string) error {
	if m.state != from {
		return fmt.Errorf("%w: cannot %s while %s", ErrInvalidTransition, op, m.state)
	}
	m.state = to
	return nil
}

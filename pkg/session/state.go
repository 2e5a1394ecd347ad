// ABOUTME: Session states and lifecycle errors
// ABOUTME: Defines the state enum and its transitions' failure modes
package session

import "errors"

var (
	// ErrNotPrepared is returned by Connect before Prepare
	ErrNotPrepared = errors.New("session not prepared")

	// ErrInvalidState is returned when an operation is not allowed in the current state
	ErrInvalidState = errors.New("invalid session state")
)

// State is a lifecycle state
type State int32

const (
	Idle State = iota
	Prepared
	Connected
	Running
	Stopped
)

// States lists every state in lifecycle order
var States = []State{Idle, Prepared, Connected, Running, Stopped}

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Prepared:
		return "prepared"
	case Connected:
		return "connected"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

func stateNames() []string {
	names := make([]string, len(States))
	for i, s := range States {
		names[i] = s.String()
	}
	return names
}

package supervisor

import "fmt"

// State is the supervisor's position in its connection lifecycle. The
// supervisor is in exactly one State at any instant.
type State int

const (
	// AwaitingNetwork is the startup state and the state entered when
	// the network health predicate goes false while Active.
	AwaitingNetwork State = iota
	// AwaitingEndpoint is entered as soon as the network reports healthy.
	AwaitingEndpoint
	// Active means the network was last observed healthy and an
	// endpoint session exists.
	Active
)

// String returns the snake_case name used in logs, metrics labels, and
// the state journal.
func (s State) String() string {
	switch s {
	case AwaitingNetwork:
		return "awaiting_network"
	case AwaitingEndpoint:
		return "awaiting_endpoint"
	case Active:
		return "active"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// States lists every valid State in lifecycle order.
func States() []State {
	return []State{AwaitingNetwork, AwaitingEndpoint, Active}
}

package supervisor

import (
	"errors"
	"fmt"
)

// ErrNoEndpoint is returned when an [EndpointDriver] reports success but
// hands back a nil session.
var ErrNoEndpoint = errors.New("endpoint driver returned no session")

// ConnectError wraps a failed network join or endpoint connect. Network
// connect errors are transient and only logged; endpoint connect errors
// halt the supervisor.
type ConnectError struct {
	Op  string // "network" or "endpoint"
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Op, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// PublishError wraps a failed publish of the sequence number Seq.
type PublishError struct {
	Topic string
	Seq   uint64
	Err   error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s (seq %d): %v", e.Topic, e.Seq, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

package supervisor

import (
	"context"
	"time"
)

// NetworkDriver joins and reports on the local network link.
type NetworkDriver interface {
	// ConnectNetwork starts a join attempt. It must be idempotent and
	// safe to call repeatedly. The supervisor logs its error but only
	// NetworkConnected decides progress.
	ConnectNetwork(ctx context.Context) error

	// NetworkConnected reports whether the link is currently usable.
	NetworkConnected(ctx context.Context) bool
}

// AddressReporter is optionally implemented by a [NetworkDriver] to
// report the addresses assigned once the link comes up.
type AddressReporter interface {
	Addresses(ctx context.Context) ([]string, error)
}

// EndpointDriver establishes a session with the upstream broker.
type EndpointDriver interface {
	ConnectEndpoint(ctx context.Context, broker string) (Endpoint, error)
}

// Endpoint is an established broker session.
type Endpoint interface {
	Publish(ctx context.Context, topic string, payload []byte, qos QoS, retain bool) error
}

// EndpointHealth is optionally implemented by an [Endpoint]. The
// supervisor reports it in logs but never acts on it.
type EndpointHealth interface {
	Healthy() bool
}

// EndpointCloser is optionally implemented by an [Endpoint] that needs
// an orderly shutdown.
type EndpointCloser interface {
	Close(ctx context.Context) error
}

// Clock is the supervisor's time source. Sleep returns ctx.Err() if
// ctx is cancelled before d elapses.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the wall-clock [Clock].
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// Sleep blocks for d or until ctx is cancelled.
func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

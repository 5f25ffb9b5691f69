package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultPollInterval is the fixed delay between network health polls.
const DefaultPollInterval = time.Second

// FailurePolicy decides what happens when a publish fails.
type FailurePolicy string

const (
	// FailFatal returns the [PublishError] from [Supervisor.Run].
	FailFatal FailurePolicy = "fatal"
	// FailSkip logs the failure and tries again at the next interval.
	FailSkip FailurePolicy = "skip"
)

// Config configures a Supervisor.
type Config struct {
	// Broker is passed verbatim to [EndpointDriver.ConnectEndpoint].
	Broker string

	// PollInterval is the delay between network polls while awaiting
	// the network, and the longest sleep while Active (default: 1s).
	PollInterval time.Duration

	// OnPublishFailure selects the publish failure policy (default: FailFatal).
	OnPublishFailure FailurePolicy

	// Clock is the time source. Uses [SystemClock] if nil.
	Clock Clock

	// Observer receives transition and publish events. Optional.
	Observer Observer

	// Logger for structured logging. Uses slog.Default() if nil.
	Logger *slog.Logger
}

// Supervisor owns the connection state, the network and endpoint
// drivers, the endpoint session, and the publish task. It is not safe
// for concurrent use; all methods are meant to be called from the one
// goroutine running the control loop.
type Supervisor struct {
	cfg      Config
	network  NetworkDriver
	endpoint EndpointDriver
	task     *PublishTask

	state       State
	session     Endpoint
	lastAttempt time.Time
}

// New creates a Supervisor in the [AwaitingNetwork] state. It does not
// touch the network; call [Supervisor.Run] to start the loop.
func New(cfg Config, network NetworkDriver, endpoint EndpointDriver, task *PublishTask) (*Supervisor, error) {
	if network == nil {
		return nil, errors.New("supervisor: network driver must not be nil")
	}
	if endpoint == nil {
		return nil, errors.New("supervisor: endpoint driver must not be nil")
	}
	if task == nil {
		return nil, errors.New("supervisor: publish task must not be nil")
	}
	if cfg.Broker == "" {
		return nil, errors.New("supervisor: broker must not be empty")
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	switch cfg.OnPublishFailure {
	case "":
		cfg.OnPublishFailure = FailFatal
	case FailFatal, FailSkip:
	default:
		return nil, fmt.Errorf("supervisor: unknown publish failure policy %q", cfg.OnPublishFailure)
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Supervisor{
		cfg:      cfg,
		network:  network,
		endpoint: endpoint,
		task:     task,
		state:    AwaitingNetwork,
	}, nil
}

// State returns the current connection state.
func (s *Supervisor) State() State { return s.state }

// Published returns the number of successful publishes.
func (s *Supervisor) Published() uint64 { return s.task.Count() }

// Run drives the control loop until a fatal error occurs or ctx is
// cancelled. Fatal errors are an endpoint connect failure and, under
// [FailFatal], a publish failure. On cancellation Run returns ctx.Err().
func (s *Supervisor) Run(ctx context.Context) error {
	s.cfg.Logger.Info("supervisor started",
		"state", s.state.String(),
		"broker", s.cfg.Broker,
		"topic", s.task.Topic(),
		"interval", s.task.Interval().String(),
		"qos", s.task.QoS().String(),
		"retain", s.task.Retain(),
	)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Step(ctx); err != nil {
			if ctx.Err() == nil {
				s.cfg.Logger.Error("supervisor halted",
					"state", s.state.String(),
					"published", s.task.Count(),
					"error", err,
				)
			}
			return err
		}
	}
}

// Step evaluates the current state once. In [AwaitingNetwork] that
// means polling until the network is up; in [Active] it means one poll
// cycle including at most one publish and one sleep.
func (s *Supervisor) Step(ctx context.Context) error {
	switch s.state {
	case AwaitingNetwork:
		return s.awaitNetwork(ctx)
	case AwaitingEndpoint:
		return s.establishEndpoint(ctx)
	case Active:
		return s.cycle(ctx)
	default:
		return fmt.Errorf("supervisor: invalid state %s", s.state)
	}
}

// Close shuts down the endpoint session if it supports it.
func (s *Supervisor) Close(ctx context.Context) error {
	if s.session == nil {
		return nil
	}
	closer, ok := s.session.(EndpointCloser)
	if !ok {
		return nil
	}
	if err := closer.Close(ctx); err != nil {
		return fmt.Errorf("close endpoint: %w", err)
	}
	return nil
}

func (s *Supervisor) awaitNetwork(ctx context.Context) error {
	logger := s.cfg.Logger

	for attempt := 1; !s.network.NetworkConnected(ctx); attempt++ {
		if err := s.network.ConnectNetwork(ctx); err != nil {
			logger.Debug("network connect attempt failed",
				"attempt", attempt,
				"error", &ConnectError{Op: "network", Err: err},
			)
		}
		logger.Info("waiting for network", "attempt", attempt)

		if err := s.cfg.Clock.Sleep(ctx, s.cfg.PollInterval); err != nil {
			return err
		}
	}

	fields := []any{}
	if r, ok := s.network.(AddressReporter); ok {
		if addrs, err := r.Addresses(ctx); err != nil {
			logger.Debug("network address lookup failed", "error", err)
		} else {
			fields = append(fields, "addresses", addrs)
		}
	}
	logger.Info("connected to network", fields...)

	s.transition(AwaitingEndpoint)
	return nil
}

func (s *Supervisor) establishEndpoint(ctx context.Context) error {
	logger := s.cfg.Logger

	if s.session != nil {
		// The session outlives network outages; it is never rebuilt.
		fields := []any{"broker", s.cfg.Broker}
		if h, ok := s.session.(EndpointHealth); ok {
			fields = append(fields, "healthy", h.Healthy())
		}
		logger.Info("reusing endpoint session", fields...)
		s.transition(Active)
		return nil
	}

	session, err := s.endpoint.ConnectEndpoint(ctx, s.cfg.Broker)
	if err != nil {
		return &ConnectError{Op: "endpoint", Err: err}
	}
	if session == nil {
		return &ConnectError{Op: "endpoint", Err: ErrNoEndpoint}
	}
	s.session = session
	logger.Info("connected to endpoint", "broker", s.cfg.Broker)

	s.transition(Active)
	return nil
}

func (s *Supervisor) cycle(ctx context.Context) error {
	logger := s.cfg.Logger

	if !s.network.NetworkConnected(ctx) {
		logger.Warn("disconnected from network", "published", s.task.Count())
		s.transition(AwaitingNetwork)
		return nil
	}

	clock := s.cfg.Clock
	if s.due(clock.Now()) {
		if err := s.publish(ctx); err != nil {
			return err
		}
	}

	return clock.Sleep(ctx, s.nextWait(clock.Now()))
}

// due reports whether the publish interval has elapsed since the last
// attempt. The first cycle in Active is always due.
func (s *Supervisor) due(now time.Time) bool {
	return s.lastAttempt.IsZero() || now.Sub(s.lastAttempt) >= s.task.Interval()
}

// nextWait is the time until the next publish is due, capped at the
// poll interval so the network predicate is checked at least that often.
func (s *Supervisor) nextWait(now time.Time) time.Duration {
	wait := s.cfg.PollInterval
	if s.lastAttempt.IsZero() {
		return wait
	}
	remaining := s.task.Interval() - now.Sub(s.lastAttempt)
	if remaining < wait {
		wait = remaining
	}
	if wait < 0 {
		wait = 0
	}
	return wait
}

func (s *Supervisor) publish(ctx context.Context) error {
	start := s.cfg.Clock.Now()
	s.lastAttempt = start

	seq, err := s.task.run(ctx, s.session)
	elapsed := s.cfg.Clock.Now().Sub(start)
	s.cfg.Observer.OnPublish(seq, elapsed, err)

	if err != nil {
		if s.cfg.OnPublishFailure == FailSkip {
			s.cfg.Logger.Warn("publish failed, will retry next interval",
				"topic", s.task.Topic(),
				"seq", seq,
				"error", err,
			)
			return nil
		}
		return err
	}

	s.cfg.Logger.Info("sent message",
		"topic", s.task.Topic(),
		"seq", seq,
		"elapsed", elapsed.String(),
	)
	return nil
}

func (s *Supervisor) transition(to State) {
	from := s.state
	s.state = to
	s.cfg.Logger.Debug("state transition", "from", from.String(), "to", to.String())
	s.cfg.Observer.OnTransition(from, to)
}

package supervisor

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// fakeClock advances only when slept on.
type fakeClock struct {
	now     time.Time
	sleeps  []time.Duration
	onSleep func(n int)
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	if c.onSleep != nil {
		c.onSleep(len(c.sleeps))
	}
	return ctx.Err()
}

// scriptedNetwork returns the scripted predicate values in order and
// repeats the last one once the script runs out.
type scriptedNetwork struct {
	script     []bool
	polls      int
	connects   int
	connectErr error
	last       bool
}

func (n *scriptedNetwork) ConnectNetwork(context.Context) error {
	n.connects++
	return n.connectErr
}

func (n *scriptedNetwork) NetworkConnected(context.Context) bool {
	i := n.polls
	n.polls++
	if len(n.script) == 0 {
		n.last = true
		return true
	}
	if i >= len(n.script) {
		i = len(n.script) - 1
	}
	n.last = n.script[i]
	return n.last
}

type publishCall struct {
	topic   string
	payload string
	qos     QoS
	retain  bool
}

type fakeSession struct {
	calls  []publishCall
	fail   func(n int) error
	closed bool
}

func (s *fakeSession) Publish(_ context.Context, topic string, payload []byte, qos QoS, retain bool) error {
	n := len(s.calls) + 1
	s.calls = append(s.calls, publishCall{topic: topic, payload: string(payload), qos: qos, retain: retain})
	if s.fail != nil {
		return s.fail(n)
	}
	return nil
}

func (s *fakeSession) Healthy() bool { return true }

func (s *fakeSession) Close(context.Context) error {
	s.closed = true
	return nil
}

type fakeEndpointDriver struct {
	session *fakeSession
	err     error
	nilOK   bool
	calls   int
	brokers []string
}

func (d *fakeEndpointDriver) ConnectEndpoint(_ context.Context, broker string) (Endpoint, error) {
	d.calls++
	d.brokers = append(d.brokers, broker)
	if d.err != nil {
		return nil, d.err
	}
	if d.nilOK {
		return nil, nil
	}
	return d.session, nil
}

type recordingObserver struct {
	transitions [][2]State
	publishes   []uint64
	errs        []error
}

func (o *recordingObserver) OnTransition(from, to State) {
	o.transitions = append(o.transitions, [2]State{from, to})
}

func (o *recordingObserver) OnPublish(seq uint64, _ time.Duration, err error) {
	o.publishes = append(o.publishes, seq)
	o.errs = append(o.errs, err)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func statusTask(t interface{ Fatalf(string, ...any) }, interval time.Duration) *PublishTask {
	task, err := NewPublishTask("status", FormatPayload("Hello! i = %d"), interval, AtLeastOnce, true)
	if err != nil {
		t.Fatalf("NewPublishTask() error = %v", err)
	}
	return task
}

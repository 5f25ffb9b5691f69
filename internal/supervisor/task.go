package supervisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// QoS is the MQTT delivery guarantee requested for a publish.
type QoS byte

// MQTT Quality of Service levels.
const (
	// AtMostOnce (QoS 0): fire and forget.
	AtMostOnce QoS = 0
	// AtLeastOnce (QoS 1): acknowledged delivery, duplicates possible.
	AtLeastOnce QoS = 1
	// ExactlyOnce (QoS 2): four-step handshake, no duplicates.
	ExactlyOnce QoS = 2
)

// ParseQoS converts a numeric QoS level from configuration.
func ParseQoS(n int) (QoS, error) {
	if n < 0 || n > 2 {
		return 0, fmt.Errorf("invalid qos %d (valid: 0, 1, 2)", n)
	}
	return QoS(n), nil
}

func (q QoS) String() string {
	switch q {
	case AtMostOnce:
		return "at_most_once"
	case AtLeastOnce:
		return "at_least_once"
	case ExactlyOnce:
		return "exactly_once"
	default:
		return fmt.Sprintf("qos(%d)", byte(q))
	}
}

// PayloadFunc builds the payload for the publish with sequence number
// seq. The first publish has seq 1.
type PayloadFunc func(seq uint64) []byte

// FormatPayload returns a PayloadFunc that renders format with the
// sequence number, e.g. "Hello! i = %d".
func FormatPayload(format string) PayloadFunc {
	return func(seq uint64) []byte {
		return []byte(fmt.Sprintf(format, seq))
	}
}

// PublishTask describes the periodic status publish. Its fields are
// fixed at construction; only the success counter changes.
type PublishTask struct {
	topic    string
	payload  PayloadFunc
	interval time.Duration
	qos      QoS
	retain   bool

	count uint64
}

// NewPublishTask validates and builds a PublishTask.
func NewPublishTask(topic string, payload PayloadFunc, interval time.Duration, qos QoS, retain bool) (*PublishTask, error) {
	if topic == "" {
		return nil, errors.New("publish topic must not be empty")
	}
	if strings.ContainsAny(topic, "+#") {
		return nil, fmt.Errorf("publish topic %q must not contain wildcards", topic)
	}
	if payload == nil {
		return nil, errors.New("publish payload producer must not be nil")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("publish interval must be positive, got %s", interval)
	}
	if qos > ExactlyOnce {
		return nil, fmt.Errorf("invalid qos %d", byte(qos))
	}
	return &PublishTask{
		topic:    topic,
		payload:  payload,
		interval: interval,
		qos:      qos,
		retain:   retain,
	}, nil
}

// Topic returns the publish topic.
func (t *PublishTask) Topic() string { return t.topic }

// Interval returns the publish cadence.
func (t *PublishTask) Interval() time.Duration { return t.interval }

// QoS returns the requested delivery guarantee.
func (t *PublishTask) QoS() QoS { return t.qos }

// Retain reports whether messages are published with the retain flag.
func (t *PublishTask) Retain() bool { return t.retain }

// Count returns the number of successful publishes so far.
func (t *PublishTask) Count() uint64 { return t.count }

// run publishes the next message through ep. The counter advances only
// when the publish succeeds.
func (t *PublishTask) run(ctx context.Context, ep Endpoint) (uint64, error) {
	seq := t.count + 1
	if err := ep.Publish(ctx, t.topic, t.payload(seq), t.qos, t.retain); err != nil {
		return seq, &PublishError{Topic: t.topic, Seq: seq, Err: err}
	}
	t.count = seq
	return seq, nil
}

package mqtt

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/nugget/tether/internal/supervisor"
)

// Session is an established broker connection. It implements
// [supervisor.Endpoint], [supervisor.EndpointHealth], and
// [supervisor.EndpointCloser].
type Session struct {
	driver  *Driver
	cm      *autopaho.ConnectionManager
	cancel  context.CancelFunc
	limiter *messageRateLimiter
	up      atomic.Bool
}

// Publish sends one message and, for QoS 1 and 2, waits for the
// broker's acknowledgement, bounded by the publish timeout.
func (s *Session) Publish(ctx context.Context, topic string, payload []byte, qos supervisor.QoS, retain bool) error {
	ctx, cancel := context.WithTimeout(ctx, s.driver.publishTimeout)
	defer cancel()

	if _, err := s.cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     byte(qos),
		Retain:  retain,
	}); err != nil {
		return fmt.Errorf("mqtt publish: %w", err)
	}
	return nil
}

// Healthy reports whether the broker connection is currently up.
func (s *Session) Healthy() bool {
	return s.up.Load()
}

// Close publishes "offline" to the availability topic and disconnects.
// ctx bounds how long the publish and disconnect may take.
func (s *Session) Close(ctx context.Context) error {
	defer s.cancel()
	s.publishAvailability(ctx, s.cm, "offline")
	if err := s.cm.Disconnect(ctx); err != nil {
		return fmt.Errorf("mqtt disconnect: %w", err)
	}
	return nil
}

// onConnectionUp runs on every (re-)connect.
func (s *Session) onConnectionUp(ctx context.Context, cm *autopaho.ConnectionManager) {
	d := s.driver
	if d.cfg.DiscoveryPrefix != "" {
		s.publishDiscovery(ctx, cm)
	}
	s.publishAvailability(ctx, cm, "online")

	if len(d.cfg.Subscriptions) == 0 {
		return
	}
	subs := make([]paho.SubscribeOptions, 0, len(d.cfg.Subscriptions))
	for _, sub := range d.cfg.Subscriptions {
		subs = append(subs, paho.SubscribeOptions{Topic: sub.Topic, QoS: byte(sub.QoS)})
	}
	if _, err := cm.Subscribe(ctx, &paho.Subscribe{Subscriptions: subs}); err != nil {
		d.logger.Warn("mqtt subscribe failed", "topics", len(subs), "error", err)
		return
	}
	d.logger.Info("mqtt subscribed", "topics", len(subs))
}

func (s *Session) onPublishReceived(pr paho.PublishReceived) (bool, error) {
	if pr.Packet == nil {
		return false, nil
	}
	if !s.limiter.allow() {
		return true, nil
	}
	s.driver.handler(pr.Packet.Topic, pr.Packet.Payload)
	return true, nil
}

func (s *Session) publishDiscovery(ctx context.Context, cm *autopaho.ConnectionManager) {
	d := s.driver
	payload, err := d.discoveryPayload()
	if err != nil {
		d.logger.Error("mqtt marshal discovery payload", "error", err)
		return
	}

	topic := d.discoveryTopic()
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     1,
		Retain:  true,
	}); err != nil {
		d.logger.Warn("mqtt discovery publish failed", "topic", topic, "error", err)
		return
	}
	d.logger.Debug("mqtt discovery published", "topic", topic)
}

func (s *Session) publishAvailability(ctx context.Context, cm *autopaho.ConnectionManager, status string) {
	d := s.driver
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   d.availabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		d.logger.Warn("mqtt availability publish failed", "status", status, "error", err)
		return
	}
	d.logger.Info("mqtt availability published", "status", status)
}

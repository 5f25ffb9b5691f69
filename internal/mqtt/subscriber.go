package mqtt

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
	"unicode/utf8"
)

// MessageHandler is called for each message received on a subscribed
// topic. It runs on the paho client's goroutine, not the supervisor's.
type MessageHandler func(topic string, payload []byte)

// maxLoggedPayload bounds how much of an inbound payload is logged.
const maxLoggedPayload = 256

// logMessageHandler logs every inbound message. Printable payloads are
// logged verbatim (truncated); binary payloads only by size.
func logMessageHandler(logger *slog.Logger) MessageHandler {
	return func(topic string, payload []byte) {
		fields := []any{
			"topic", topic,
			"payload_size", len(payload),
		}
		if utf8.Valid(payload) {
			p := payload
			if len(p) > maxLoggedPayload {
				p = p[:maxLoggedPayload]
			}
			fields = append(fields, "payload", string(p))
		}
		logger.Info("mqtt message received", fields...)
	}
}

// messageRateLimiter drops inbound messages once more than limit
// arrive within one interval. Counters are atomic because paho
// delivers on its own goroutine.
type messageRateLimiter struct {
	count    atomic.Int64
	dropped  atomic.Int64
	limit    int64
	interval time.Duration
	logger   *slog.Logger
}

func newMessageRateLimiter(limit int64, interval time.Duration, logger *slog.Logger) *messageRateLimiter {
	return &messageRateLimiter{
		limit:    limit,
		interval: interval,
		logger:   logger,
	}
}

// start resets the window every interval until ctx is cancelled,
// reporting any drops from the window that just closed.
func (r *messageRateLimiter) start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reset()
		}
	}
}

func (r *messageRateLimiter) reset() {
	count := r.count.Swap(0)
	dropped := r.dropped.Swap(0)
	if dropped > 0 {
		r.logger.Warn("mqtt messages dropped due to rate limit",
			"received", count,
			"dropped", dropped,
			"interval", r.interval.String(),
			"limit", r.limit,
		)
	}
}

// allow counts a message and reports whether it fits in the window.
func (r *messageRateLimiter) allow() bool {
	if r.count.Add(1) > r.limit {
		r.dropped.Add(1)
		return false
	}
	return true
}

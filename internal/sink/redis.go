package sink

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// RedisSink publishes event envelopes to Redis PubSub channels, one
// channel per event type and epic:
//
//	pub:engine:{type}:{epic}
//
// Subscribers (dashboards, alert bridges) attach with PSUBSCRIBE
// pub:engine:*. Publish errors are counted and logged, never surfaced.
type RedisSink struct {
	rdb     *goredis.Client
	timeout time.Duration

	// OnDrop is called when a publish fails (metrics hook).
	OnDrop func()
}

// NewRedisSink creates a sink over an existing Redis client.
func NewRedisSink(rdb *goredis.Client) *RedisSink {
	return &RedisSink{
		rdb:     rdb,
		timeout: 2 * time.Second,
	}
}

func (s *RedisSink) channel(ev Event) string {
	return fmt.Sprintf("pub:engine:%s:%s", ev.Type, ev.Epic)
}

// Publish sends the envelope with a bounded timeout.
func (s *RedisSink) Publish(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.rdb.Publish(ctx, s.channel(ev), ev.JSON()).Err(); err != nil {
		if s.OnDrop != nil {
			s.OnDrop()
		}
		slog.Warn("sink publish failed",
			slog.String("channel", s.channel(ev)),
			slog.Any("error", err))
	}
}

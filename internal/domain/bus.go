package domain

import (
	"context"
	"time"
)

// StreamMessage is one durable entry appended to a signal stream.
type StreamMessage struct {
	ID      string
	Channel string
	Payload []byte
	At      time.Time
}

// SignalBus fans protection events and price updates out to subscribers and
// appends them to a durable stream for late consumers.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan StreamMessage, func(), error)
	Append(ctx context.Context, stream string, payload []byte) (string, error)
	Range(ctx context.Context, stream, fromID string, count int64) ([]StreamMessage, error)
	Close() error
}

// RateLimiter answers whether a caller identified by key may proceed.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// ListOpts bounds paginated listings.
type ListOpts struct {
	Limit  int
	Offset int
}

// Clamp normalises the options to sane bounds.
func (o ListOpts) Clamp(maxLimit int) ListOpts {
	if o.Limit <= 0 || o.Limit > maxLimit {
		o.Limit = maxLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

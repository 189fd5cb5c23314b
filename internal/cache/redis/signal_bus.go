package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Najnomics/fheap/internal/domain"
)

// streamMaxLen bounds each stream via XADD MAXLEN ~.
const streamMaxLen int64 = 10_000

// SignalBus carries protection events over Redis: pub/sub for live
// subscribers, streams for replayable history.
type SignalBus struct {
	rdb *redis.Client
}

// NewSignalBus builds a bus on the given client.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{rdb: c.rdb}
}

// Publish sends a payload to a pub/sub channel.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe opens a pub/sub subscription. Messages arrive on the returned
// channel until the context ends or the cancel function is called; the
// channel is closed at that point.
func (sb *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan domain.StreamMessage, func(), error) {
	pubsub := sb.rdb.Subscribe(ctx, channel)
	// Receive the subscription confirmation before handing the channel out.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	out := make(chan domain.StreamMessage, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				sm := domain.StreamMessage{
					Channel: msg.Channel,
					Payload: []byte(msg.Payload),
					At:      time.Now(),
				}
				select {
				case out <- sm:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return out, cancel, nil
}

// Append adds a payload to a durable stream, returning the assigned id.
func (sb *SignalBus) Append(ctx context.Context, stream string, payload []byte) (string, error) {
	id, err := sb.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"payload": payload},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("redis: stream append %s: %w", stream, err)
	}
	return id, nil
}

// Range reads up to count messages after fromID. Use "0" for the start or
// "$" for only new entries. No messages is an empty slice, not an error.
func (sb *SignalBus) Range(ctx context.Context, stream, fromID string, count int64) ([]domain.StreamMessage, error) {
	if fromID == "" {
		fromID = "0"
	}
	results, err := sb.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{stream, fromID},
		Count:   count,
		Block:   -1,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: stream read %s: %w", stream, err)
	}

	var messages []domain.StreamMessage
	for _, s := range results {
		for _, msg := range s.Messages {
			payload, ok := msg.Values["payload"]
			if !ok {
				continue
			}
			var data []byte
			switch v := payload.(type) {
			case string:
				data = []byte(v)
			case []byte:
				data = v
			default:
				continue
			}
			messages = append(messages, domain.StreamMessage{
				ID:      msg.ID,
				Channel: stream,
				Payload: data,
			})
		}
	}
	return messages, nil
}

// Close is a no-op; the lifecycle belongs to the shared Client.
func (sb *SignalBus) Close() error { return nil }

// Compile-time interface check.
var _ domain.SignalBus = (*SignalBus)(nil)

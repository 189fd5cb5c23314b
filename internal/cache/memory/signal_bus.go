// Package memory provides an in-process signal bus for standalone runs and
// tests where no Redis is configured. Semantics mirror the Redis bus:
// pub/sub fan-out to live subscribers, a bounded per-stream history for
// Range.
package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/Najnomics/fheap/internal/domain"
)

const (
	subscriberBuffer = 128
	streamMaxLen     = 10_000
)

// SignalBus is a single-process bus. Slow subscribers drop messages rather
// than blocking publishers, matching pub/sub delivery guarantees.
type SignalBus struct {
	mu      sync.Mutex
	subs    map[string]map[int]chan domain.StreamMessage
	streams map[string][]domain.StreamMessage
	nextSub int
	nextID  uint64
	closed  bool
}

// NewSignalBus builds an empty bus.
func NewSignalBus() *SignalBus {
	return &SignalBus{
		subs:    make(map[string]map[int]chan domain.StreamMessage),
		streams: make(map[string][]domain.StreamMessage),
	}
}

// Publish fans a payload out to the channel's current subscribers.
func (b *SignalBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("memory: bus closed")
	}

	msg := domain.StreamMessage{Channel: channel, Payload: payload, At: time.Now()}
	for _, ch := range b.subs[channel] {
		select {
		case ch <- msg:
		default:
			// Subscriber is full; drop rather than block the publisher.
		}
	}
	return nil
}

// Subscribe registers a subscriber. The cancel function (or the context)
// removes it and closes the returned channel.
func (b *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan domain.StreamMessage, func(), error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, nil, fmt.Errorf("memory: bus closed")
	}
	id := b.nextSub
	b.nextSub++
	ch := make(chan domain.StreamMessage, subscriberBuffer)
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[int]chan domain.StreamMessage)
	}
	b.subs[channel][id] = ch
	b.mu.Unlock()

	// Close happens under the lock and only by whoever still finds the
	// subscriber registered, so cancel and Close cannot double-close.
	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if subs, ok := b.subs[channel]; ok {
			if _, present := subs[id]; present {
				delete(subs, id)
				close(ch)
			}
		}
	}

	go func() {
		<-ctx.Done()
		cancel()
	}()

	return ch, cancel, nil
}

// Append adds a message to a stream's bounded history.
func (b *SignalBus) Append(_ context.Context, stream string, payload []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return "", fmt.Errorf("memory: bus closed")
	}

	b.nextID++
	id := strconv.FormatUint(b.nextID, 10)
	entries := append(b.streams[stream], domain.StreamMessage{
		ID:      id,
		Channel: stream,
		Payload: payload,
		At:      time.Now(),
	})
	if len(entries) > streamMaxLen {
		entries = entries[len(entries)-streamMaxLen:]
	}
	b.streams[stream] = entries
	return id, nil
}

// Range returns up to count messages with ids strictly after fromID.
func (b *SignalBus) Range(_ context.Context, stream, fromID string, count int64) ([]domain.StreamMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var from uint64
	if fromID != "" && fromID != "0" {
		parsed, err := strconv.ParseUint(fromID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("memory: bad stream id %q: %w", fromID, err)
		}
		from = parsed
	}

	var out []domain.StreamMessage
	for _, m := range b.streams[stream] {
		id, _ := strconv.ParseUint(m.ID, 10, 64)
		if id <= from {
			continue
		}
		out = append(out, m)
		if count > 0 && int64(len(out)) >= count {
			break
		}
	}
	return out, nil
}

// Close shuts the bus down and closes every subscriber channel.
func (b *SignalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, subs := range b.subs {
		for id, ch := range subs {
			delete(subs, id)
			close(ch)
		}
	}
	return nil
}

// Compile-time interface check.
var _ domain.SignalBus = (*SignalBus)(nil)

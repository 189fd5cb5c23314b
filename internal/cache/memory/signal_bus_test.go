package memory

import (
	"context"
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	ctx := context.Background()
	bus := NewSignalBus()
	defer bus.Close()

	ch, cancel, err := bus.Subscribe(ctx, "events")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cancel()

	if err := bus.Publish(ctx, "events", []byte("hello")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case msg := <-ch:
		if string(msg.Payload) != "hello" {
			t.Errorf("payload = %q, want hello", msg.Payload)
		}
		if msg.Channel != "events" {
			t.Errorf("channel = %q", msg.Channel)
		}
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}

	// Other channels do not leak in.
	if err := bus.Publish(ctx, "other", []byte("nope")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case msg := <-ch:
		t.Errorf("unexpected cross-channel delivery: %q", msg.Payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	ctx := context.Background()
	bus := NewSignalBus()
	defer bus.Close()

	ch, cancel, err := bus.Subscribe(ctx, "events")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	cancel()
	cancel() // idempotent

	if _, ok := <-ch; ok {
		t.Error("channel not closed after cancel")
	}
	if err := bus.Publish(ctx, "events", []byte("x")); err != nil {
		t.Errorf("publish after cancel: %v", err)
	}
}

func TestStreamAppendAndRange(t *testing.T) {
	ctx := context.Background()
	bus := NewSignalBus()
	defer bus.Close()

	var ids []string
	for _, p := range []string{"one", "two", "three"} {
		id, err := bus.Append(ctx, "history", []byte(p))
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		ids = append(ids, id)
	}

	all, err := bus.Range(ctx, "history", "0", 0)
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d messages, want 3", len(all))
	}
	if string(all[0].Payload) != "one" || string(all[2].Payload) != "three" {
		t.Errorf("order wrong: %q ... %q", all[0].Payload, all[2].Payload)
	}

	after, err := bus.Range(ctx, "history", ids[0], 0)
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(after) != 2 || string(after[0].Payload) != "two" {
		t.Errorf("range after first id = %d messages", len(after))
	}

	limited, err := bus.Range(ctx, "history", "0", 2)
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("limited range = %d messages, want 2", len(limited))
	}
}

func TestCloseShutsSubscribers(t *testing.T) {
	bus := NewSignalBus()
	ch, cancel, err := bus.Subscribe(context.Background(), "events")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cancel()

	if err := bus.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := <-ch; ok {
		t.Error("subscriber channel open after Close")
	}
	if err := bus.Publish(context.Background(), "events", nil); err == nil {
		t.Error("publish on closed bus succeeded")
	}
	if err := bus.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

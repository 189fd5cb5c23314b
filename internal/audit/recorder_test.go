package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/Najnomics/fheap/internal/domain"
)

type memStore struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
	failAt  int // fail the Nth record call (1-based), 0 disables
	calls   int
}

func (s *memStore) Record(_ context.Context, e domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failAt > 0 && s.calls == s.failAt {
		return errors.New("store down")
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *memStore) List(_ context.Context, boundary string, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range s.entries {
		if boundary == "" || e.Boundary == boundary {
			out = append(out, e)
		}
	}
	return out, nil
}

type memBlob struct {
	mu     sync.Mutex
	writes map[string][]byte
}

func (b *memBlob) Write(_ context.Context, key, _ string, body []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.writes == nil {
		b.writes = make(map[string][]byte)
	}
	b.writes[key] = body
	return "mem://" + key, nil
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestFlushPersistsAndArchives(t *testing.T) {
	store := &memStore{}
	blob := &memBlob{}
	r := New(discard(), store, blob)

	r.RecordReveal("protection.decision", "bool")
	r.RecordReveal("oracle.ingest", "require")
	if r.Pending() != 2 {
		t.Fatalf("pending = %d, want 2", r.Pending())
	}

	if err := r.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if r.Pending() != 0 {
		t.Errorf("pending after flush = %d", r.Pending())
	}
	if len(store.entries) != 2 {
		t.Fatalf("stored %d entries, want 2", len(store.entries))
	}
	if store.entries[0].Boundary != "protection.decision" {
		t.Errorf("boundary = %s", store.entries[0].Boundary)
	}
	if len(blob.writes) != 1 {
		t.Errorf("archived %d objects, want 1", len(blob.writes))
	}
}

func TestFlushRetriesFailedEntries(t *testing.T) {
	store := &memStore{failAt: 2}
	r := New(discard(), store, nil)

	r.RecordReveal("a", "uint")
	r.RecordReveal("b", "uint")
	r.RecordReveal("c", "uint")

	if err := r.Flush(context.Background()); err == nil {
		t.Fatal("flush with failing store succeeded")
	}
	// Entry "a" persisted; "b" and "c" went back on the queue.
	if r.Pending() != 2 {
		t.Errorf("pending = %d, want 2", r.Pending())
	}

	if err := r.Flush(context.Background()); err != nil {
		t.Fatalf("retry flush: %v", err)
	}
	if len(store.entries) != 3 {
		t.Errorf("stored %d entries after retry, want 3", len(store.entries))
	}
}

func TestFlushEmptyIsNoOp(t *testing.T) {
	r := New(discard(), &memStore{}, nil)
	if err := r.Flush(context.Background()); err != nil {
		t.Errorf("empty flush: %v", err)
	}
}

func TestNilSinks(t *testing.T) {
	r := New(discard(), nil, nil)
	r.RecordReveal("x", "uint")
	if err := r.Flush(context.Background()); err != nil {
		t.Errorf("flush with nil sinks: %v", err)
	}
	if r.Pending() != 0 {
		t.Errorf("pending = %d, want 0", r.Pending())
	}
}

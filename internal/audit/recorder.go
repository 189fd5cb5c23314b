// Package audit records every reveal-boundary crossing. Entries go to the
// structured log immediately and accumulate in a batch that is flushed to
// the durable store and, optionally, archived as a JSON object.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Najnomics/fheap/internal/domain"
)

// Recorder implements the scheme's reveal auditor. store and blob may be
// nil; the log sink is always on.
type Recorder struct {
	logger *slog.Logger
	store  domain.AuditStore
	blob   domain.BlobWriter

	mu      sync.Mutex
	pending []domain.AuditEntry
}

// New builds a recorder.
func New(logger *slog.Logger, store domain.AuditStore, blob domain.BlobWriter) *Recorder {
	return &Recorder{
		logger: logger.With("component", "audit"),
		store:  store,
		blob:   blob,
	}
}

// RecordReveal is called by the scheme on every plaintext exit. It must not
// block: the durable write happens at the next Flush.
func (r *Recorder) RecordReveal(boundary, detail string) {
	e := domain.AuditEntry{
		ID:        uuid.New(),
		Boundary:  boundary,
		Detail:    detail,
		CreatedAt: time.Now(),
	}
	r.logger.Debug("reveal", "boundary", boundary, "detail", detail)

	r.mu.Lock()
	r.pending = append(r.pending, e)
	r.mu.Unlock()
}

// Flush drains the pending batch into the durable store and archives the
// batch as one JSON object. Entries that fail to persist are put back so
// the next flush retries them.
func (r *Recorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	batch := r.pending
	r.pending = nil
	r.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	if r.store != nil {
		for i, e := range batch {
			if err := r.store.Record(ctx, e); err != nil {
				r.mu.Lock()
				r.pending = append(batch[i:], r.pending...)
				r.mu.Unlock()
				return fmt.Errorf("audit: flushing entry %d of %d: %w", i, len(batch), err)
			}
		}
	}

	if r.blob != nil {
		payload, err := json.Marshal(batch)
		if err != nil {
			return fmt.Errorf("audit: encoding batch: %w", err)
		}
		key := fmt.Sprintf("audit/%s/%s.json",
			batch[0].CreatedAt.UTC().Format("2006/01/02"), batch[0].ID)
		loc, err := r.blob.Write(ctx, key, "application/json", payload)
		if err != nil {
			// The store already has the entries; archival is best effort.
			r.logger.WarnContext(ctx, "audit archive failed", "error", err)
		} else {
			r.logger.DebugContext(ctx, "audit batch archived", "location", loc, "entries", len(batch))
		}
	}
	return nil
}

// Run flushes on the given interval until the context ends, with one final
// flush on the way out.
func (r *Recorder) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := r.Flush(flushCtx); err != nil {
				r.logger.Warn("final audit flush failed", "error", err)
			}
			return ctx.Err()
		case <-ticker.C:
			if err := r.Flush(ctx); err != nil {
				r.logger.WarnContext(ctx, "audit flush failed", "error", err)
			}
		}
	}
}

// Pending reports the number of unflushed entries.
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

package protection

import (
	"sync"

	"github.com/Najnomics/fheap/internal/domain"
	"github.com/Najnomics/fheap/internal/fhe"
)

// marketState is the per-market protection state. The confidential fields
// stay encrypted for the life of the market; active is only opened at the
// two decision points, the accumulators only through sealed getters.
//
// Mutating operations work on a copy and assign it back once every step has
// succeeded, so a failure halfway through an evaluation leaves the market
// exactly as it was.
type marketState struct {
	homeSource string

	threshold       fhe.CipherUint
	active          fhe.CipherBool
	pendingCaptured fhe.CipherUint
	totalCaptured   fhe.CipherUint
	totalFees       fhe.CipherUint
	totalRewards    fhe.CipherUint
	lastMEVEstimate fhe.CipherUint

	lastTriggerBlock uint64
	cooldownUntil    uint64
	paused           bool

	tradesScreened     uint64
	protectionsApplied uint64
}

// entry pairs a state with its lock. The manager map only grows; individual
// markets are locked independently so one market's scan never blocks
// another's.
type entry struct {
	mu    sync.Mutex
	state marketState
}

// eventRing is a fixed-size window over recent protection events. Old
// events fall off; durable event history is out of scope here.
type eventRing struct {
	mu   sync.Mutex
	buf  []domain.ProtectionEvent
	next int
	full bool
}

func newEventRing(size int) *eventRing {
	return &eventRing{buf: make([]domain.ProtectionEvent, size)}
}

func (r *eventRing) add(e domain.ProtectionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = e
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

// recent returns up to limit events, newest first.
func (r *eventRing) recent(limit int) []domain.ProtectionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.next
	if r.full {
		n = len(r.buf)
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]domain.ProtectionEvent, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (r.next - 1 - i + len(r.buf)) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}

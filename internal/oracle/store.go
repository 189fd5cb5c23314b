// Package oracle aggregates encrypted price submissions from registered
// sources. Sources, markets, and timestamps are plaintext bookkeeping; the
// prices themselves never leave the encrypted domain here.
package oracle

import (
	"log/slog"
	"sync"
	"time"

	"github.com/Najnomics/fheap/internal/domain"
	"github.com/Najnomics/fheap/internal/engine"
	"github.com/Najnomics/fheap/internal/fhe"
)

// Config tunes the store.
type Config struct {
	// MaxSourcesPerKind caps active registrations per source kind.
	MaxSourcesPerKind int
	// InitialReputation is assigned at registration; MaxReputation caps
	// the per-update bump; MinReputation gates cross-source aggregation.
	InitialReputation int
	MaxReputation     int
	MinReputation     int
	// Staleness is the record age beyond which reads refuse the record.
	// The boundary is inclusive: a record aged exactly Staleness is
	// still fresh.
	Staleness time.Duration
	// PriceScale is the fixed-point unit of submitted prices (1.0 ==
	// PriceScale). It anchors the derived inverse-price table.
	PriceScale uint64
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxSourcesPerKind: 8,
		InitialReputation: 50,
		MaxReputation:     100,
		MinReputation:     25,
		Staleness:         5 * time.Minute,
		PriceScale:        1_000_000,
	}
}

// recordKey addresses one stored price.
type recordKey struct {
	source    string
	market    domain.MarketKey
	direction domain.Direction
}

// PriceRecord is one stored observation. Price stays encrypted; everything
// else is public bookkeeping.
type PriceRecord struct {
	SourceID   string
	Market     domain.MarketKey
	Direction  domain.Direction
	Price      fhe.CipherUint
	ObservedAt time.Time
	Block      uint64
	Valid      bool
}

// SourcePrice pairs a source with its current encrypted price for a market.
type SourcePrice struct {
	SourceID string
	Price    fhe.CipherUint
}

// Store owns source registrations and price records. A single mutex
// serialises all mutation, mirroring the serialized invocation model of the
// execution platform.
type Store struct {
	mu     sync.Mutex
	scheme *fhe.Scheme
	engine *engine.Engine
	clock  domain.BlockClock
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	sources map[string]*domain.SourceRegistration
	order   []string
	records map[recordKey]PriceRecord
}

// New builds a store.
func New(scheme *fhe.Scheme, eng *engine.Engine, clock domain.BlockClock, cfg Config, logger *slog.Logger) *Store {
	return &Store{
		scheme:  scheme,
		engine:  eng,
		clock:   clock,
		cfg:     cfg,
		logger:  logger.With("component", "oracle"),
		now:     time.Now,
		sources: make(map[string]*domain.SourceRegistration),
		records: make(map[recordKey]PriceRecord),
	}
}

// PriceScale returns the fixed-point unit submitted prices are expressed in.
func (s *Store) PriceScale() uint64 {
	return s.cfg.PriceScale
}

// fresh reports whether a record observed at t is still usable at now.
func (s *Store) fresh(observed, now time.Time) bool {
	return now.Sub(observed) <= s.cfg.Staleness
}

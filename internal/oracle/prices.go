package oracle

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Najnomics/fheap/internal/domain"
	"github.com/Najnomics/fheap/internal/fhe"
)

// IngestEntry is one price submission.
type IngestEntry struct {
	SourceID string
	Market   domain.MarketKey
	Price    fhe.CipherUint
}

// stagedRecord is a validated pair of records awaiting commit.
type stagedRecord struct {
	forward PriceRecord
	inverse PriceRecord
}

// stage validates an entry and builds its forward and derived inverse
// records without touching store state. Caller holds the lock.
func (s *Store) stage(entry IngestEntry, now time.Time, block uint64) (stagedRecord, error) {
	reg, ok := s.sources[entry.SourceID]
	if !ok || !reg.Active {
		return stagedRecord{}, fmt.Errorf("oracle: ingest from %s: %w",
			entry.SourceID, domain.ErrSourceNotRegistered)
	}
	if entry.Market.IsZero() {
		return stagedRecord{}, fmt.Errorf("oracle: ingest from %s: empty market: %w",
			entry.SourceID, domain.ErrInvalidPrice)
	}

	zero, err := s.scheme.EncryptUint(0, entry.Price.Width())
	if err != nil {
		return stagedRecord{}, err
	}
	positive, err := s.scheme.Gt(entry.Price, zero)
	if err != nil {
		return stagedRecord{}, fmt.Errorf("oracle: ingest from %s: %w", entry.SourceID, err)
	}
	if err := s.scheme.Require(positive, "oracle.ingest"); err != nil {
		return stagedRecord{}, err
	}

	inverse, err := s.deriveInverse(entry.Price)
	if err != nil {
		return stagedRecord{}, err
	}

	return stagedRecord{
		forward: PriceRecord{
			SourceID:   entry.SourceID,
			Market:     entry.Market,
			Direction:  domain.DirectionForward,
			Price:      entry.Price,
			ObservedAt: now,
			Block:      block,
			Valid:      true,
		},
		inverse: PriceRecord{
			SourceID:   entry.SourceID,
			Market:     entry.Market.Invert(),
			Direction:  domain.DirectionReverse,
			Price:      inverse,
			ObservedAt: now,
			Block:      block,
			Valid:      true,
		},
	}, nil
}

// commit writes staged records and bumps the source counters. Caller holds
// the lock and has already validated the source.
func (s *Store) commit(st stagedRecord, now time.Time) {
	s.records[recordKey{st.forward.SourceID, st.forward.Market, st.forward.Direction}] = st.forward
	s.records[recordKey{st.inverse.SourceID, st.inverse.Market, st.inverse.Direction}] = st.inverse

	reg := s.sources[st.forward.SourceID]
	reg.UpdateCount++
	reg.LastUpdateAt = now
	if reg.Reputation < s.cfg.MaxReputation {
		reg.Reputation++
	}
}

// IngestPrice stores one encrypted price observation and its derived
// inverse-market record.
func (s *Store) IngestPrice(ctx context.Context, sourceID string, market domain.MarketKey, price fhe.CipherUint) error {
	block, err := s.clock.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("oracle: block number: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	st, err := s.stage(IngestEntry{SourceID: sourceID, Market: market, Price: price}, now, block)
	if err != nil {
		return err
	}
	s.commit(st, now)
	ingestsTotal.Inc()
	s.logger.DebugContext(ctx, "price ingested", "source", sourceID, "market", market.String(), "block", block)
	return nil
}

// BatchIngest stores several observations atomically: every entry is
// validated before any is committed, so one bad entry leaves the store
// untouched.
func (s *Store) BatchIngest(ctx context.Context, entries []IngestEntry) error {
	if len(entries) == 0 {
		return nil
	}
	block, err := s.clock.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("oracle: block number: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	staged := make([]stagedRecord, 0, len(entries))
	for i, entry := range entries {
		st, err := s.stage(entry, now, block)
		if err != nil {
			return fmt.Errorf("oracle: batch entry %d: %w", i, err)
		}
		staged = append(staged, st)
	}
	for _, st := range staged {
		s.commit(st, now)
	}
	ingestsTotal.Add(float64(len(staged)))
	s.logger.DebugContext(ctx, "batch ingested", "entries", len(staged), "block", block)
	return nil
}

// Record returns the stored record for one source, market, and direction.
func (s *Store) Record(sourceID string, market domain.MarketKey, dir domain.Direction) (PriceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[recordKey{sourceID, market, dir}]
	if !ok || !rec.Valid {
		return PriceRecord{}, fmt.Errorf("oracle: %s %s: %w", sourceID, market.String(), domain.ErrRecordNotFound)
	}
	return rec, nil
}

// GetSpread computes the encrypted spread between two sources' current
// forward prices for a market. Stale records are refused rather than
// silently skewing the spread.
func (s *Store) GetSpread(ctx context.Context, sourceA, sourceB string, market domain.MarketKey) (fhe.CipherUint, error) {
	s.mu.Lock()
	a, okA := s.records[recordKey{sourceA, market, domain.DirectionForward}]
	b, okB := s.records[recordKey{sourceB, market, domain.DirectionForward}]
	now := s.now()
	s.mu.Unlock()

	if !okA || !a.Valid {
		return fhe.CipherUint{}, fmt.Errorf("oracle: spread %s/%s: %s: %w",
			sourceA, sourceB, sourceA, domain.ErrRecordNotFound)
	}
	if !okB || !b.Valid {
		return fhe.CipherUint{}, fmt.Errorf("oracle: spread %s/%s: %s: %w",
			sourceA, sourceB, sourceB, domain.ErrRecordNotFound)
	}
	if !s.fresh(a.ObservedAt, now) {
		return fhe.CipherUint{}, fmt.Errorf("oracle: spread: %s: %w", sourceA, domain.ErrStalePrice)
	}
	if !s.fresh(b.ObservedAt, now) {
		return fhe.CipherUint{}, fmt.Errorf("oracle: spread: %s: %w", sourceB, domain.ErrStalePrice)
	}

	return s.engine.Spread(a.Price, b.Price)
}

// CrossSourcePrices returns the current prices for a market from every
// active source whose reputation clears the configured minimum and whose
// record is fresh and valid, in registration order. The order is part of
// the contract: downstream scans are deterministic because of it.
func (s *Store) CrossSourcePrices(ctx context.Context, market domain.MarketKey) ([]SourcePrice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var out []SourcePrice
	for _, id := range s.order {
		reg := s.sources[id]
		if !reg.Active || reg.Reputation < s.cfg.MinReputation {
			continue
		}
		rec, ok := s.records[recordKey{id, market, domain.DirectionForward}]
		if !ok || !rec.Valid || !s.fresh(rec.ObservedAt, now) {
			continue
		}
		out = append(out, SourcePrice{SourceID: id, Price: rec.Price})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("oracle: %s: %w", market.String(), domain.ErrNoValidPrices)
	}
	return out, nil
}

// RecordInfos lists plaintext metadata for every record of a market, for
// the presentation layer.
func (s *Store) RecordInfos(market domain.MarketKey) []domain.PriceRecordInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var out []domain.PriceRecordInfo
	for _, id := range s.order {
		for _, dir := range []domain.Direction{domain.DirectionForward, domain.DirectionReverse} {
			key := recordKey{id, market, dir}
			if dir == domain.DirectionReverse {
				key.market = market.Invert()
			}
			rec, ok := s.records[key]
			if !ok {
				continue
			}
			out = append(out, domain.PriceRecordInfo{
				SourceID:        rec.SourceID,
				Market:          rec.Market.String(),
				Direction:       rec.Direction,
				ObservedAt:      rec.ObservedAt,
				ObservedAtBlock: rec.Block,
				Valid:           rec.Valid,
				Fresh:           s.fresh(rec.ObservedAt, now),
			})
		}
	}
	return out
}

// AllRecordInfos lists plaintext metadata for every stored record across all
// markets, in source registration order.
func (s *Store) AllRecordInfos() []domain.PriceRecordInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	bySource := make(map[string][]PriceRecord, len(s.sources))
	for key, rec := range s.records {
		bySource[key.source] = append(bySource[key.source], rec)
	}

	var out []domain.PriceRecordInfo
	for _, id := range s.order {
		recs := bySource[id]
		sort.Slice(recs, func(i, j int) bool {
			if recs[i].Market != recs[j].Market {
				return recs[i].Market.String() < recs[j].Market.String()
			}
			return recs[i].Direction < recs[j].Direction
		})
		for _, rec := range recs {
			out = append(out, domain.PriceRecordInfo{
				SourceID:        rec.SourceID,
				Market:          rec.Market.String(),
				Direction:       rec.Direction,
				ObservedAt:      rec.ObservedAt,
				ObservedAtBlock: rec.Block,
				Valid:           rec.Valid,
				Fresh:           s.fresh(rec.ObservedAt, now),
			})
		}
	}
	return out
}

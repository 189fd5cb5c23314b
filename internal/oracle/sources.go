package oracle

import (
	"context"
	"fmt"

	"github.com/Najnomics/fheap/internal/domain"
)

// RegisterSource adds a price source. Registration order is preserved and
// determines aggregation order for the life of the store.
func (s *Store) RegisterSource(ctx context.Context, id, displayName string, kind domain.SourceKind) error {
	if id == "" {
		return fmt.Errorf("oracle: empty source id: %w", domain.ErrInvalidPrice)
	}
	if !kind.Valid() {
		return fmt.Errorf("oracle: unknown source kind %q", kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sources[id]; ok {
		return fmt.Errorf("oracle: register %s: %w", id, domain.ErrDuplicateSource)
	}

	active := 0
	for _, reg := range s.sources {
		if reg.Active && reg.Kind == kind {
			active++
		}
	}
	if active >= s.cfg.MaxSourcesPerKind {
		return fmt.Errorf("oracle: register %s: kind %s at limit %d: %w",
			id, kind, s.cfg.MaxSourcesPerKind, domain.ErrCapacityExceeded)
	}

	s.sources[id] = &domain.SourceRegistration{
		ID:           id,
		DisplayName:  displayName,
		Kind:         kind,
		Active:       true,
		Reputation:   s.cfg.InitialReputation,
		RegisteredAt: s.now(),
	}
	s.order = append(s.order, id)
	s.logger.InfoContext(ctx, "source registered", "source", id, "kind", kind)
	return nil
}

// RemoveSource deactivates a source. Its price records are retained for
// provenance but it no longer contributes to aggregation; the id stays
// reserved and cannot be re-registered.
func (s *Store) RemoveSource(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.sources[id]
	if !ok {
		return fmt.Errorf("oracle: remove %s: %w", id, domain.ErrUnknownSource)
	}
	reg.Active = false
	reg.Reputation = 0
	s.logger.InfoContext(ctx, "source removed", "source", id)
	return nil
}

// Source returns a registration snapshot.
func (s *Store) Source(id string) (domain.SourceRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.sources[id]
	if !ok {
		return domain.SourceRegistration{}, fmt.Errorf("oracle: source %s: %w", id, domain.ErrUnknownSource)
	}
	return *reg, nil
}

// Sources lists all registrations in registration order.
func (s *Store) Sources() []domain.SourceRegistration {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.SourceRegistration, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.sources[id])
	}
	return out
}

// Package memory provides in-process implementations of the audit and grant
// stores for runs without PostgreSQL attached.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Najnomics/fheap/internal/domain"
)

// AuditStore implements domain.AuditStore in memory.
type AuditStore struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

// NewAuditStore creates an empty in-memory audit store.
func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

var _ domain.AuditStore = (*AuditStore)(nil)

// Record appends one reveal audit entry.
func (s *AuditStore) Record(ctx context.Context, e domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

// List returns audit entries for one boundary, newest first. An empty
// boundary matches all entries.
func (s *AuditStore) List(ctx context.Context, boundary string, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []domain.AuditEntry
	for _, e := range s.entries {
		if boundary == "" || e.Boundary == boundary {
			matched = append(matched, e)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[opts.Offset:]
	}
	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}

	out := make([]domain.AuditEntry, len(matched))
	copy(out, matched)
	return out, nil
}

type grantKey struct {
	subject    common.Address
	capability domain.Capability
}

// GrantStore implements domain.GrantStore in memory.
type GrantStore struct {
	mu     sync.Mutex
	grants map[grantKey]domain.AccessGrant
}

// NewGrantStore creates an empty in-memory grant store.
func NewGrantStore() *GrantStore {
	return &GrantStore{grants: make(map[grantKey]domain.AccessGrant)}
}

var _ domain.GrantStore = (*GrantStore)(nil)

// Put inserts or replaces the grant for (subject, capability).
func (s *GrantStore) Put(ctx context.Context, g domain.AccessGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[grantKey{g.Subject, g.Capability}] = g
	return nil
}

// Get retrieves the grant for (subject, capability).
func (s *GrantStore) Get(ctx context.Context, subject common.Address, capability domain.Capability) (domain.AccessGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.grants[grantKey{subject, capability}]
	if !ok {
		return domain.AccessGrant{}, domain.ErrNotFound
	}
	return g, nil
}

// Delete removes the grant for (subject, capability).
func (s *GrantStore) Delete(ctx context.Context, subject common.Address, capability domain.Capability) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := grantKey{subject, capability}
	if _, ok := s.grants[k]; !ok {
		return domain.ErrNotFound
	}
	delete(s.grants, k)
	return nil
}

// List returns grants ordered by grant time, newest first.
func (s *GrantStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AccessGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.AccessGrant, 0, len(s.grants))
	for _, g := range s.grants {
		out = append(out, g)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].GrantedAt.After(out[j].GrantedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

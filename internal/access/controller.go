// Package access manages capability grants: which subject may view which
// slice of sealed data, and under which viewing key. Grants are an owned
// collection on the controller, optionally persisted through a GrantStore.
package access

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/Najnomics/fheap/internal/domain"
)

// viewingKeyLen is the length of generated viewing keys.
const viewingKeyLen = 32

// Controller owns the grant collection. All methods are safe for concurrent
// use. When a GrantStore is configured the collection is write-through; the
// in-memory copy stays authoritative for reads.
type Controller struct {
	mu     sync.RWMutex
	grants map[grantKey]domain.AccessGrant
	store  domain.GrantStore
	logger *slog.Logger
	now    func() time.Time
}

type grantKey struct {
	subject    common.Address
	capability domain.Capability
}

// New builds a controller. store may be nil for purely in-memory operation.
// The admin address receives the admin capability immediately so the system
// is never born unmanageable.
func New(ctx context.Context, admin common.Address, store domain.GrantStore, logger *slog.Logger) (*Controller, error) {
	c := &Controller{
		grants: make(map[grantKey]domain.AccessGrant),
		store:  store,
		logger: logger.With("component", "access"),
		now:    time.Now,
	}

	if store != nil {
		persisted, err := store.List(ctx, domain.ListOpts{}.Clamp(1000))
		if err != nil {
			return nil, fmt.Errorf("access: loading grants: %w", err)
		}
		for _, g := range persisted {
			c.grants[grantKey{g.Subject, g.Capability}] = g
		}
	}

	if _, err := c.Grant(ctx, admin, domain.CapabilityAdmin, admin); err != nil &&
		!errors.Is(err, errAlreadyGranted) {
		return nil, err
	}
	return c, nil
}

var errAlreadyGranted = errors.New("access: capability already granted")

// Grant issues a capability to a subject with a fresh random viewing key.
// Granting an existing (subject, capability) pair is rejected so an
// established viewing key cannot be silently rotated away from its holder.
func (c *Controller) Grant(ctx context.Context, subject common.Address, capability domain.Capability, grantedBy common.Address) (domain.AccessGrant, error) {
	if !capability.Valid() {
		return domain.AccessGrant{}, fmt.Errorf("access: unknown capability %q", capability)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := grantKey{subject, capability}
	if _, ok := c.grants[key]; ok {
		return domain.AccessGrant{}, fmt.Errorf("%w: %s for %s", errAlreadyGranted, capability, subject.Hex())
	}

	vk := make([]byte, viewingKeyLen)
	if _, err := rand.Read(vk); err != nil {
		return domain.AccessGrant{}, fmt.Errorf("access: generating viewing key: %w", err)
	}

	g := domain.AccessGrant{
		ID:         uuid.New(),
		Subject:    subject,
		Capability: capability,
		ViewingKey: vk,
		GrantedBy:  grantedBy,
		GrantedAt:  c.now(),
	}
	if c.store != nil {
		if err := c.store.Put(ctx, g); err != nil {
			return domain.AccessGrant{}, fmt.Errorf("access: persisting grant: %w", err)
		}
	}
	c.grants[key] = g
	c.logger.InfoContext(ctx, "capability granted",
		"subject", subject.Hex(), "capability", capability, "granted_by", grantedBy.Hex())
	return g, nil
}

// Revoke removes a grant. Sealed blobs already issued under the viewing key
// stay readable; revocation only stops new ones.
func (c *Controller) Revoke(ctx context.Context, subject common.Address, capability domain.Capability) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := grantKey{subject, capability}
	if _, ok := c.grants[key]; !ok {
		return fmt.Errorf("access: revoke %s for %s: %w", capability, subject.Hex(), domain.ErrGrantNotFound)
	}
	if c.store != nil {
		if err := c.store.Delete(ctx, subject, capability); err != nil {
			return fmt.Errorf("access: deleting grant: %w", err)
		}
	}
	delete(c.grants, key)
	c.logger.InfoContext(ctx, "capability revoked", "subject", subject.Hex(), "capability", capability)
	return nil
}

// HasCapability reports whether the subject holds an unexpired grant for
// the capability. Admin implies every other capability.
func (c *Controller) HasCapability(subject common.Address, capability domain.Capability) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	if g, ok := c.grants[grantKey{subject, domain.CapabilityAdmin}]; ok && !g.Expired(now) {
		return true
	}
	g, ok := c.grants[grantKey{subject, capability}]
	return ok && !g.Expired(now)
}

// ViewingKey returns the key sealed output for this subject and capability
// must be encrypted under.
func (c *Controller) ViewingKey(subject common.Address, capability domain.Capability) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	g, ok := c.grants[grantKey{subject, capability}]
	if !ok || g.Expired(c.now()) {
		// Fall back to an admin grant, which implies every view.
		g, ok = c.grants[grantKey{subject, domain.CapabilityAdmin}]
		if !ok || g.Expired(c.now()) {
			return nil, fmt.Errorf("access: %s for %s: %w", capability, subject.Hex(), domain.ErrGrantNotFound)
		}
	}
	return g.ViewingKey, nil
}

// Grants lists the current grant collection.
func (c *Controller) Grants() []domain.AccessGrant {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.AccessGrant, 0, len(c.grants))
	for _, g := range c.grants {
		out = append(out, g)
	}
	return out
}

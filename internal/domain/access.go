package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Capability names one slice of sealed data a grant holder may view.
type Capability string

const (
	CapabilityAdmin         Capability = "admin"
	CapabilityRewardView    Capability = "reward-view"
	CapabilityMEVDataView   Capability = "mev-data-view"
	CapabilityArbDataView   Capability = "arbitrage-data-view"
	CapabilityPriceDataView Capability = "price-data-view"
	CapabilityThresholdView Capability = "threshold-view"
)

// Valid reports whether the capability is a known enum value.
func (c Capability) Valid() bool {
	switch c {
	case CapabilityAdmin, CapabilityRewardView, CapabilityMEVDataView,
		CapabilityArbDataView, CapabilityPriceDataView, CapabilityThresholdView:
		return true
	}
	return false
}

// AccessGrant authorizes one subject to receive data under one capability,
// sealed to the subject's viewing key. Revocation deletes the grant; sealed
// blobs already handed out stay readable, so reveals are audited at the
// boundary rather than at the grant.
type AccessGrant struct {
	ID         uuid.UUID      `json:"id"`
	Subject    common.Address `json:"subject"`
	Capability Capability     `json:"capability"`
	ViewingKey []byte         `json:"-"`
	GrantedBy  common.Address `json:"granted_by"`
	GrantedAt  time.Time      `json:"granted_at"`
	ExpiresAt  time.Time      `json:"expires_at,omitzero"`
}

// Expired reports whether the grant has lapsed at the given instant.
// A zero ExpiresAt means the grant does not expire.
func (g AccessGrant) Expired(now time.Time) bool {
	return !g.ExpiresAt.IsZero() && now.After(g.ExpiresAt)
}

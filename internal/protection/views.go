package protection

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Najnomics/fheap/internal/domain"
	"github.com/Najnomics/fheap/internal/fhe"
)

// sealedView seals one confidential field to a subject holding the given
// capability. The plaintext never surfaces here: the value moves straight
// from the scheme's domain into the viewer's.
func (m *Manager) sealedView(market domain.MarketKey, subject common.Address,
	capability domain.Capability, pick func(marketState) fhe.CipherUint) (fhe.SealedBlob, error) {

	if !m.access.HasCapability(subject, capability) {
		return fhe.SealedBlob{}, fmt.Errorf("protection: %s view by %s: %w",
			capability, subject.Hex(), domain.ErrUnauthorized)
	}
	vk, err := m.access.ViewingKey(subject, capability)
	if err != nil {
		return fhe.SealedBlob{}, err
	}
	e, err := m.entryFor(market)
	if err != nil {
		return fhe.SealedBlob{}, err
	}

	e.mu.Lock()
	value := pick(e.state)
	e.mu.Unlock()

	if value.IsZero() {
		return fhe.SealedBlob{}, fmt.Errorf("protection: %s: no value recorded yet: %w",
			market.String(), domain.ErrNotFound)
	}
	return m.scheme.Seal(value, vk)
}

// SealedCaptured returns the lifetime captured value, sealed to the
// subject's arbitrage-data viewing key.
func (m *Manager) SealedCaptured(market domain.MarketKey, subject common.Address) (fhe.SealedBlob, error) {
	return m.sealedView(market, subject, domain.CapabilityArbDataView,
		func(st marketState) fhe.CipherUint { return st.totalCaptured })
}

// SealedFees returns the lifetime collected protection fees, sealed to the
// subject's arbitrage-data viewing key.
func (m *Manager) SealedFees(market domain.MarketKey, subject common.Address) (fhe.SealedBlob, error) {
	return m.sealedView(market, subject, domain.CapabilityArbDataView,
		func(st marketState) fhe.CipherUint { return st.totalFees })
}

// SealedRewards returns the lifetime distributed rewards, sealed to the
// subject's reward viewing key.
func (m *Manager) SealedRewards(market domain.MarketKey, subject common.Address) (fhe.SealedBlob, error) {
	return m.sealedView(market, subject, domain.CapabilityRewardView,
		func(st marketState) fhe.CipherUint { return st.totalRewards })
}

// SealedThreshold returns the market's confidential threshold, sealed to
// the subject's threshold viewing key.
func (m *Manager) SealedThreshold(market domain.MarketKey, subject common.Address) (fhe.SealedBlob, error) {
	return m.sealedView(market, subject, domain.CapabilityThresholdView,
		func(st marketState) fhe.CipherUint { return st.threshold })
}

// SealedMEVEstimate returns the estimate computed at the latest trigger,
// sealed to the subject's MEV-data viewing key.
func (m *Manager) SealedMEVEstimate(market domain.MarketKey, subject common.Address) (fhe.SealedBlob, error) {
	return m.sealedView(market, subject, domain.CapabilityMEVDataView,
		func(st marketState) fhe.CipherUint { return st.lastMEVEstimate })
}

// ParticipantReward computes one liquidity provider's slice of the market's
// distributed rewards from its (encrypted) pool share. Per-participant
// bookkeeping and payout live with the external distribution collaborator;
// this is the primitive it calls.
func (m *Manager) ParticipantReward(ctx context.Context, market domain.MarketKey,
	lpLiquidity, totalLiquidity fhe.CipherUint) (fhe.CipherUint, error) {

	e, err := m.entryFor(market)
	if err != nil {
		return fhe.CipherUint{}, err
	}
	e.mu.Lock()
	total := e.state.totalRewards
	e.mu.Unlock()

	return m.engine.IndividualReward(total, lpLiquidity, totalLiquidity)
}

// MarketStatus is the plaintext view of one market's protection state.
type MarketStatus struct {
	Market             string `json:"market"`
	HomeSource         string `json:"home_source"`
	Paused             bool   `json:"paused"`
	LastTriggerBlock   uint64 `json:"last_trigger_block"`
	CooldownUntil      uint64 `json:"cooldown_until"`
	TradesScreened     uint64 `json:"trades_screened"`
	ProtectionsApplied uint64 `json:"protections_applied"`
}

// Status returns the plaintext bookkeeping for one market. Confidential
// fields are absent; they are served sealed, never inline.
func (m *Manager) Status(market domain.MarketKey) (MarketStatus, error) {
	e, err := m.entryFor(market)
	if err != nil {
		return MarketStatus{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.state
	return MarketStatus{
		Market:             market.String(),
		HomeSource:         st.homeSource,
		Paused:             st.paused,
		LastTriggerBlock:   st.lastTriggerBlock,
		CooldownUntil:      st.cooldownUntil,
		TradesScreened:     st.tradesScreened,
		ProtectionsApplied: st.protectionsApplied,
	}, nil
}

// Markets lists every protected market's status.
func (m *Manager) Markets() []MarketStatus {
	m.mu.RLock()
	keys := make([]domain.MarketKey, 0, len(m.markets))
	for k := range m.markets {
		keys = append(keys, k)
	}
	m.mu.RUnlock()

	out := make([]MarketStatus, 0, len(keys))
	for _, k := range keys {
		if st, err := m.Status(k); err == nil {
			out = append(out, st)
		}
	}
	return out
}

// Stats aggregates across markets for the dashboard.
func (m *Manager) Stats() domain.ProtectionStats {
	var s domain.ProtectionStats
	for _, st := range m.Markets() {
		s.MarketsProtected++
		s.TradesScreened += st.TradesScreened
		s.ProtectionsApplied += st.ProtectionsApplied
	}
	if s.TradesScreened > 0 {
		s.ProtectionRate = float64(s.ProtectionsApplied) / float64(s.TradesScreened)
	}
	return s
}

// Events returns up to limit recent protection events, newest first.
func (m *Manager) Events(limit int) []domain.ProtectionEvent {
	return m.events.recent(limit)
}

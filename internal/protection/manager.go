// Package protection runs the per-market decision state machine: it scans
// aggregated prices on trade intents, decides privately whether an
// arbitrage opportunity exists, charges protection fees, and routes
// captured value to liquidity providers. Only the two decision bits ever
// leave the encrypted domain, each through a named audited boundary; fee,
// reward, and captured magnitudes stay encrypted and are served sealed.
package protection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/Najnomics/fheap/internal/domain"
	"github.com/Najnomics/fheap/internal/engine"
	"github.com/Najnomics/fheap/internal/fhe"
	"github.com/Najnomics/fheap/internal/oracle"
)

// Reveal boundaries crossed by the state machine.
const (
	boundaryDecision  = "protection.decision"
	boundaryThreshold = "protection.threshold"
)

// EventChannel is the signal-bus channel protection events are published on.
const EventChannel = "protection.events"

// PriceSource provides the aggregated cross-source view of a market.
type PriceSource interface {
	CrossSourcePrices(ctx context.Context, market domain.MarketKey) ([]oracle.SourcePrice, error)
}

// AccessController answers capability questions for privileged operations
// and sealed views.
type AccessController interface {
	HasCapability(subject common.Address, capability domain.Capability) bool
	ViewingKey(subject common.Address, capability domain.Capability) ([]byte, error)
}

// Manager owns every market's protection state.
type Manager struct {
	scheme   *fhe.Scheme
	engine   *engine.Engine
	prices   PriceSource
	access   AccessController
	clock    domain.BlockClock
	bus      domain.SignalBus
	notifier domain.Notifier
	cfg      Config
	logger   *slog.Logger

	mu      sync.RWMutex
	markets map[domain.MarketKey]*entry

	events *eventRing
}

// New builds a manager. bus and notifier may be nil.
func New(scheme *fhe.Scheme, eng *engine.Engine, prices PriceSource, access AccessController,
	clock domain.BlockClock, bus domain.SignalBus, notifier domain.Notifier,
	cfg Config, logger *slog.Logger) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Manager{
		scheme:   scheme,
		engine:   eng,
		prices:   prices,
		access:   access,
		clock:    clock,
		bus:      bus,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With("component", "protection"),
		markets:  make(map[domain.MarketKey]*entry),
		events:   newEventRing(cfg.EventRingSize),
	}, nil
}

// InitializeMarket brings a market under protection with the default
// confidential threshold and zeroed accumulators. homeSource names the
// venue whose price represents the market itself in cross-source scans.
func (m *Manager) InitializeMarket(ctx context.Context, market domain.MarketKey, homeSource string) error {
	if market.IsZero() {
		return fmt.Errorf("protection: empty market key")
	}
	if homeSource == "" {
		return fmt.Errorf("protection: empty home source")
	}

	threshold, err := m.scheme.EncryptUint(m.cfg.DefaultThreshold, fhe.Wide)
	if err != nil {
		return err
	}
	inactive, err := m.scheme.EncryptBool(false)
	if err != nil {
		return err
	}
	zeroed := func() (fhe.CipherUint, error) { return m.scheme.EncryptUint(0, fhe.Wide) }
	pending, err := zeroed()
	if err != nil {
		return err
	}
	captured, err := zeroed()
	if err != nil {
		return err
	}
	fees, err := zeroed()
	if err != nil {
		return err
	}
	rewards, err := zeroed()
	if err != nil {
		return err
	}

	m.mu.Lock()
	if _, ok := m.markets[market]; ok {
		m.mu.Unlock()
		return fmt.Errorf("protection: %s: %w", market.String(), domain.ErrMarketExists)
	}
	m.markets[market] = &entry{state: marketState{
		homeSource:      homeSource,
		threshold:       threshold,
		active:          inactive,
		pendingCaptured: pending,
		totalCaptured:   captured,
		totalFees:       fees,
		totalRewards:    rewards,
	}}
	m.mu.Unlock()

	m.emit(ctx, domain.ProtectionEvent{
		Type:   domain.EventMarketInitialized,
		Market: market.String(),
		Detail: "home source " + homeSource,
	}, false)
	m.logger.InfoContext(ctx, "market initialized", "market", market.String(), "home_source", homeSource)
	return nil
}

func (m *Manager) entryFor(market domain.MarketKey) (*entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.markets[market]
	if !ok {
		return nil, fmt.Errorf("protection: %s: %w", market.String(), domain.ErrMarketNotFound)
	}
	return e, nil
}

// OnTradeIntent screens a pending trade. Inside the cooldown window it is a
// no-op; otherwise aggregated prices are scanned against the market's home
// price under the configured policy and the opportunity bit is revealed at
// the decision boundary. On a hit the trade is charged a protection fee,
// the market goes active, and the captured value starts accumulating.
func (m *Manager) OnTradeIntent(ctx context.Context, market domain.MarketKey, trader common.Address, tradeSize fhe.CipherUint) error {
	e, err := m.entryFor(market)
	if err != nil {
		return err
	}
	block, err := m.clock.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("protection: block number: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.state // copy, committed only on success

	if block < st.cooldownUntil {
		m.logger.DebugContext(ctx, "trade intent inside cooldown",
			"market", market.String(), "block", block, "cooldown_until", st.cooldownUntil)
		return nil
	}

	prices, err := m.prices.CrossSourcePrices(ctx, market)
	if err != nil {
		if errors.Is(err, domain.ErrNoValidPrices) {
			m.logger.DebugContext(ctx, "no prices to scan", "market", market.String())
			return nil
		}
		return err
	}

	var home *oracle.SourcePrice
	others := make([]oracle.SourcePrice, 0, len(prices))
	for i := range prices {
		if prices[i].SourceID == st.homeSource {
			home = &prices[i]
			continue
		}
		others = append(others, prices[i])
	}
	if home == nil || len(others) == 0 {
		m.logger.DebugContext(ctx, "scan needs home price and at least one other source",
			"market", market.String(), "sources", len(prices))
		return nil
	}

	triggered, spread, against, err := m.scan(home.Price, others, st.threshold, tradeSize)
	if err != nil {
		return err
	}

	st.tradesScreened++
	if !triggered {
		e.state = st
		tradesScreenedTotal.Inc()
		m.emit(ctx, domain.ProtectionEvent{
			Type:        domain.EventTradePassed,
			Market:      market.String(),
			Trader:      trader,
			BlockNumber: block,
		}, false)
		return nil
	}

	maxFee, err := m.scheme.EncryptUint(m.cfg.MaxFee, fhe.Wide)
	if err != nil {
		return err
	}
	fee, err := m.engine.ProtectionFee(spread, maxFee)
	if err != nil {
		return err
	}
	mev, err := m.engine.MEVEstimate(spread, tradeSize)
	if err != nil {
		return err
	}

	// The MEV estimate joins both the pending pot (distributed on
	// completion) and the lifetime captured total; the fee lands in its
	// own accumulator. All three stay encrypted and are served through
	// sealed views only.
	pending, err := m.scheme.Add(st.pendingCaptured, mev)
	if err != nil {
		return err
	}
	total, err := m.scheme.Add(st.totalCaptured, mev)
	if err != nil {
		return err
	}
	fees, err := m.scheme.Add(st.totalFees, fee)
	if err != nil {
		return err
	}
	activeTrue, err := m.scheme.EncryptBool(true)
	if err != nil {
		return err
	}

	st.lastMEVEstimate = mev
	st.pendingCaptured = pending
	st.totalCaptured = total
	st.totalFees = fees
	st.active = activeTrue
	st.lastTriggerBlock = block
	st.cooldownUntil = block + m.cfg.CooldownBlocks
	st.protectionsApplied++
	e.state = st

	tradesScreenedTotal.Inc()
	protectionsTotal.Inc()

	m.emit(ctx, domain.ProtectionEvent{
		Type:        domain.EventProtectionApplied,
		Market:      market.String(),
		Trader:      trader,
		BlockNumber: block,
		Detail:      "spread vs " + against,
	}, true)
	m.logger.InfoContext(ctx, "protection applied",
		"market", market.String(), "trader", trader.Hex(), "block", block, "against", against)
	return nil
}

// scan evaluates the configured policy and reveals only the final
// opportunity bit per candidate (first_match) or once overall (max_spread).
// It returns the winning spread still encrypted.
func (m *Manager) scan(home fhe.CipherUint, others []oracle.SourcePrice, threshold, tradeSize fhe.CipherUint) (bool, fhe.CipherUint, string, error) {
	minVolume, err := m.scheme.EncryptUint(m.cfg.MinTradeVolume, fhe.Wide)
	if err != nil {
		return false, fhe.CipherUint{}, "", err
	}

	switch m.cfg.ScanPolicy {
	case ScanFirstMatch:
		for _, other := range others {
			spread, err := m.engine.Spread(home, other.Price)
			if err != nil {
				return false, fhe.CipherUint{}, "", err
			}
			cond, err := m.engine.HasAdvancedOpportunity(spread, threshold, tradeSize, minVolume)
			if err != nil {
				return false, fhe.CipherUint{}, "", err
			}
			hit, err := m.scheme.RevealBool(cond, boundaryDecision)
			if err != nil {
				return false, fhe.CipherUint{}, "", err
			}
			if hit {
				return true, spread, other.SourceID, nil
			}
		}
		return false, fhe.CipherUint{}, "", nil

	case ScanMaxSpread:
		best, err := m.scheme.EncryptUint(0, fhe.Wide)
		if err != nil {
			return false, fhe.CipherUint{}, "", err
		}
		for _, other := range others {
			spread, err := m.engine.Spread(home, other.Price)
			if err != nil {
				return false, fhe.CipherUint{}, "", err
			}
			greater, err := m.scheme.Gt(spread, best)
			if err != nil {
				return false, fhe.CipherUint{}, "", err
			}
			best, err = m.scheme.Select(greater, spread, best)
			if err != nil {
				return false, fhe.CipherUint{}, "", err
			}
		}
		cond, err := m.engine.HasAdvancedOpportunity(best, threshold, tradeSize, minVolume)
		if err != nil {
			return false, fhe.CipherUint{}, "", err
		}
		hit, err := m.scheme.RevealBool(cond, boundaryDecision)
		if err != nil {
			return false, fhe.CipherUint{}, "", err
		}
		return hit, best, "max-spread scan", nil

	default:
		return false, fhe.CipherUint{}, "", fmt.Errorf("protection: unknown scan policy %q", m.cfg.ScanPolicy)
	}
}

// OnTradeComplete settles a screened trade. The active bit is revealed at
// the decision boundary; when set, the pending captured value is split to
// liquidity providers at the configured share, the reward total
// accumulated, and the market returns to idle.
func (m *Manager) OnTradeComplete(ctx context.Context, market domain.MarketKey) error {
	e, err := m.entryFor(market)
	if err != nil {
		return err
	}
	block, err := m.clock.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("protection: block number: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.state

	wasActive, err := m.scheme.RevealBool(st.active, boundaryDecision)
	if err != nil {
		return err
	}
	if !wasActive {
		return nil
	}

	reward, err := m.engine.LPRewards(st.pendingCaptured, m.engine.Params().ShareBps)
	if err != nil {
		return err
	}
	totalRewards, err := m.scheme.Add(st.totalRewards, reward)
	if err != nil {
		return err
	}
	zero, err := m.scheme.EncryptUint(0, fhe.Wide)
	if err != nil {
		return err
	}
	inactive, err := m.scheme.EncryptBool(false)
	if err != nil {
		return err
	}

	st.totalRewards = totalRewards
	st.pendingCaptured = zero
	st.active = inactive
	e.state = st

	rewardsTotal.Inc()

	m.emit(ctx, domain.ProtectionEvent{
		Type:        domain.EventRewardDistributed,
		Market:      market.String(),
		BlockNumber: block,
	}, false)
	m.logger.InfoContext(ctx, "rewards distributed", "market", market.String(), "block", block)
	return nil
}

// UpdateThreshold replaces a market's confidential threshold. Only admin
// grant holders may call it, and the new threshold must sit inside the
// public bounds, asserted without revealing it.
func (m *Manager) UpdateThreshold(ctx context.Context, market domain.MarketKey, newThreshold fhe.CipherUint, requester common.Address) error {
	if !m.access.HasCapability(requester, domain.CapabilityAdmin) {
		return fmt.Errorf("protection: update threshold by %s: %w", requester.Hex(), domain.ErrUnauthorized)
	}
	e, err := m.entryFor(market)
	if err != nil {
		return err
	}

	lo, err := m.scheme.EncryptUint(m.cfg.MinThreshold, fhe.Wide)
	if err != nil {
		return err
	}
	hi, err := m.scheme.EncryptUint(m.cfg.MaxThreshold, fhe.Wide)
	if err != nil {
		return err
	}
	aboveMin, err := m.scheme.Gte(newThreshold, lo)
	if err != nil {
		return err
	}
	belowMax, err := m.scheme.Lte(newThreshold, hi)
	if err != nil {
		return err
	}
	inRange, err := m.scheme.And(aboveMin, belowMax)
	if err != nil {
		return err
	}
	if err := m.scheme.Require(inRange, boundaryThreshold); err != nil {
		return err
	}

	e.mu.Lock()
	e.state.threshold = newThreshold
	e.mu.Unlock()

	m.emit(ctx, domain.ProtectionEvent{
		Type:   domain.EventThresholdUpdated,
		Market: market.String(),
		Trader: requester,
	}, false)
	m.logger.InfoContext(ctx, "threshold updated", "market", market.String(), "by", requester.Hex())
	return nil
}

// EmergencyPause forces a market inactive and extends its cooldown far
// beyond the normal window. Admin only.
func (m *Manager) EmergencyPause(ctx context.Context, market domain.MarketKey, requester common.Address) error {
	if !m.access.HasCapability(requester, domain.CapabilityAdmin) {
		return fmt.Errorf("protection: pause by %s: %w", requester.Hex(), domain.ErrUnauthorized)
	}
	e, err := m.entryFor(market)
	if err != nil {
		return err
	}
	block, err := m.clock.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("protection: block number: %w", err)
	}
	inactive, err := m.scheme.EncryptBool(false)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.state.active = inactive
	e.state.paused = true
	e.state.cooldownUntil = block + m.cfg.PauseBlocks
	e.mu.Unlock()

	m.emit(ctx, domain.ProtectionEvent{
		Type:        domain.EventEmergencyPause,
		Market:      market.String(),
		Trader:      requester,
		BlockNumber: block,
	}, true)
	m.logger.WarnContext(ctx, "market paused", "market", market.String(), "by", requester.Hex(), "until", block+m.cfg.PauseBlocks)
	return nil
}

// Resume lifts an emergency pause, restoring the normal cooldown schedule.
func (m *Manager) Resume(ctx context.Context, market domain.MarketKey, requester common.Address) error {
	if !m.access.HasCapability(requester, domain.CapabilityAdmin) {
		return fmt.Errorf("protection: resume by %s: %w", requester.Hex(), domain.ErrUnauthorized)
	}
	e, err := m.entryFor(market)
	if err != nil {
		return err
	}
	block, err := m.clock.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("protection: block number: %w", err)
	}

	e.mu.Lock()
	e.state.paused = false
	e.state.cooldownUntil = block
	e.mu.Unlock()

	m.emit(ctx, domain.ProtectionEvent{
		Type:        domain.EventEmergencyResume,
		Market:      market.String(),
		Trader:      requester,
		BlockNumber: block,
	}, false)
	m.logger.InfoContext(ctx, "market resumed", "market", market.String(), "by", requester.Hex())
	return nil
}

// emit records an event in the ring, publishes it on the signal bus, and
// optionally notifies operators.
func (m *Manager) emit(ctx context.Context, ev domain.ProtectionEvent, notify bool) {
	ev.ID = uuid.New()
	ev.OccurredAt = time.Now()
	m.events.add(ev)

	if m.bus != nil {
		payload, err := json.Marshal(ev)
		if err == nil {
			if err := m.bus.Publish(ctx, EventChannel, payload); err != nil {
				m.logger.WarnContext(ctx, "event publish failed", "error", err)
			}
		}
	}
	if notify && m.notifier != nil {
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.NotifyTimeout)
		defer cancel()
		subject := fmt.Sprintf("%s on %s", ev.Type, ev.Market)
		body := fmt.Sprintf("block %d", ev.BlockNumber)
		if ev.Detail != "" {
			body += ", " + ev.Detail
		}
		if err := m.notifier.Notify(nctx, subject, body); err != nil {
			m.logger.WarnContext(ctx, "notification failed", "error", err)
		}
	}
}

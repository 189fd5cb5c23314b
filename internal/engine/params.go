package engine

import (
	"errors"
	"fmt"
)

// BpsDenominator is the basis-point scale shared by every ratio parameter.
const BpsDenominator = 10_000

// Params is the tunable table the engine evaluates against. All members are
// plaintext configuration; only the operands they are combined with are
// encrypted.
type Params struct {
	// FeeTierBoundaries are the spread magnitudes (price units) separating
	// the three fee tiers. Must be strictly increasing.
	FeeTierBoundaries [2]uint64

	// FeeTierAmounts are the flat base fees charged in each tier, lowest
	// tier first.
	FeeTierAmounts [3]uint64

	// DynamicFeeShift is the right shift applied to the spread excess over
	// the top tier boundary to derive the variable fee component.
	DynamicFeeShift uint

	// ShareBps is the share of captured value routed to liquidity
	// providers, in basis points.
	ShareBps uint32

	// MEVEfficiencyBps scales spread into an extractable-value estimate.
	MEVEfficiencyBps uint32

	// MEVVolumeTier is the trade volume above which the estimate gets a
	// 1.5x bump.
	MEVVolumeTier uint64

	// MEVCap bounds the estimate.
	MEVCap uint64

	// DecayPerBlock and MaxDecayBlocks shape the time decay applied to a
	// spread observed MaxDecayBlocks or more blocks ago.
	DecayPerBlock  uint64
	MaxDecayBlocks uint64
}

// DefaultParams returns the production defaults.
func DefaultParams() Params {
	return Params{
		FeeTierBoundaries: [2]uint64{50_000_000, 200_000_000},
		FeeTierAmounts:    [3]uint64{1_000_000, 5_000_000, 20_000_000},
		DynamicFeeShift:   4,
		ShareBps:          8_000,
		MEVEfficiencyBps:  3_000,
		MEVVolumeTier:     1_000_000_000,
		MEVCap:            500_000_000,
		DecayPerBlock:     100_000,
		MaxDecayBlocks:    100,
	}
}

// Validate checks internal consistency of the table.
func (p Params) Validate() error {
	if p.FeeTierBoundaries[0] >= p.FeeTierBoundaries[1] {
		return fmt.Errorf("engine: fee tier boundaries must be strictly increasing, got %d >= %d",
			p.FeeTierBoundaries[0], p.FeeTierBoundaries[1])
	}
	if p.ShareBps > BpsDenominator {
		return fmt.Errorf("engine: share %d bps exceeds %d", p.ShareBps, BpsDenominator)
	}
	if p.MEVEfficiencyBps > BpsDenominator {
		return fmt.Errorf("engine: MEV efficiency %d bps exceeds %d", p.MEVEfficiencyBps, BpsDenominator)
	}
	if p.MEVCap == 0 {
		return errors.New("engine: MEV cap must be positive")
	}
	if p.MaxDecayBlocks == 0 {
		return errors.New("engine: max decay blocks must be positive")
	}
	return nil
}

// Package engine computes arbitrage spreads, protection fees, and reward
// splits over encrypted operands. Every function is stateless: state lives
// with the callers, the engine only combines ciphertexts through the scheme.
//
// The substrate offers no ciphertext multiplication or division, so every
// proportional quantity here is an explicit approximation with a documented
// error bound rather than an exact product.
package engine

import (
	"fmt"

	"github.com/Najnomics/fheap/internal/fhe"
)

// Engine evaluates the arbitrage calculations against a parameter table.
type Engine struct {
	scheme *fhe.Scheme
	params Params
	ratio  RatioApproximator
}

// New builds an engine. The ratio strategy follows the scheme: substrates
// with exact scalar division get ExactRatio, everything else the shift-add
// approximation.
func New(scheme *fhe.Scheme, params Params) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	var ratio RatioApproximator
	if scheme.SupportsExactRatio() {
		ratio = ExactRatio{Scheme: scheme}
	} else {
		ratio = BinaryRatio{Scheme: scheme}
	}
	return &Engine{scheme: scheme, params: params, ratio: ratio}, nil
}

// Params returns the table the engine was built with.
func (e *Engine) Params() Params { return e.params }

// RatioStrategy names the active ratio approximation, for status reporting.
func (e *Engine) RatioStrategy() string { return e.ratio.Name() }

// Spread returns |a-b| without revealing either price or the sign. The
// larger operand is picked privately before subtracting, so the difference
// never wraps.
func (e *Engine) Spread(a, b fhe.CipherUint) (fhe.CipherUint, error) {
	aGreater, err := e.scheme.Gt(a, b)
	if err != nil {
		return fhe.CipherUint{}, fmt.Errorf("engine: spread: %w", err)
	}
	hi, err := e.scheme.Select(aGreater, a, b)
	if err != nil {
		return fhe.CipherUint{}, err
	}
	lo, err := e.scheme.Select(aGreater, b, a)
	if err != nil {
		return fhe.CipherUint{}, err
	}
	return e.scheme.Sub(hi, lo)
}

// HasOpportunity reports, encrypted, whether the spread strictly exceeds the
// threshold. A spread equal to the threshold is not an opportunity.
func (e *Engine) HasOpportunity(spread, threshold fhe.CipherUint) (fhe.CipherBool, error) {
	return e.scheme.Gt(spread, threshold)
}

// HasAdvancedOpportunity additionally requires the trade volume to strictly
// exceed the configured minimum.
func (e *Engine) HasAdvancedOpportunity(spread, threshold, volume, minVolume fhe.CipherUint) (fhe.CipherBool, error) {
	spreadOK, err := e.scheme.Gt(spread, threshold)
	if err != nil {
		return fhe.CipherBool{}, fmt.Errorf("engine: opportunity spread: %w", err)
	}
	volumeOK, err := e.scheme.Gt(volume, minVolume)
	if err != nil {
		return fhe.CipherBool{}, fmt.Errorf("engine: opportunity volume: %w", err)
	}
	return e.scheme.And(spreadOK, volumeOK)
}

// ProtectionFee derives the fee charged to a protected trade: a flat base
// selected from the three-tier schedule by spread magnitude, plus a variable
// component proportional to the spread excess over the top boundary, all
// capped at maxFee. The whole schedule is walked privately; only the final
// encrypted fee comes out.
func (e *Engine) ProtectionFee(spread, maxFee fhe.CipherUint) (fhe.CipherUint, error) {
	w := spread.Width()
	encBoundary := func(v uint64) (fhe.CipherUint, error) { return e.scheme.EncryptUint(v, w) }

	t1, err := encBoundary(e.params.FeeTierBoundaries[0])
	if err != nil {
		return fhe.CipherUint{}, err
	}
	t2, err := encBoundary(e.params.FeeTierBoundaries[1])
	if err != nil {
		return fhe.CipherUint{}, err
	}
	feeLow, err := encBoundary(e.params.FeeTierAmounts[0])
	if err != nil {
		return fhe.CipherUint{}, err
	}
	feeMid, err := encBoundary(e.params.FeeTierAmounts[1])
	if err != nil {
		return fhe.CipherUint{}, err
	}
	feeHigh, err := encBoundary(e.params.FeeTierAmounts[2])
	if err != nil {
		return fhe.CipherUint{}, err
	}

	aboveT1, err := e.scheme.Gt(spread, t1)
	if err != nil {
		return fhe.CipherUint{}, fmt.Errorf("engine: fee tier 1: %w", err)
	}
	aboveT2, err := e.scheme.Gt(spread, t2)
	if err != nil {
		return fhe.CipherUint{}, fmt.Errorf("engine: fee tier 2: %w", err)
	}

	// base = aboveT2 ? high : (aboveT1 ? mid : low)
	lowerBase, err := e.scheme.Select(aboveT1, feeMid, feeLow)
	if err != nil {
		return fhe.CipherUint{}, err
	}
	base, err := e.scheme.Select(aboveT2, feeHigh, lowerBase)
	if err != nil {
		return fhe.CipherUint{}, err
	}

	// Variable component: (spread - t2) >> shift above the top tier, zero
	// below it. The subtraction operand is ordered by the same comparison
	// so it cannot wrap.
	safeHi, err := e.scheme.Select(aboveT2, spread, t2)
	if err != nil {
		return fhe.CipherUint{}, err
	}
	excess, err := e.scheme.Sub(safeHi, t2)
	if err != nil {
		return fhe.CipherUint{}, err
	}
	variable, err := e.scheme.Shr(excess, e.params.DynamicFeeShift)
	if err != nil {
		return fhe.CipherUint{}, err
	}

	fee, err := e.scheme.Add(base, variable)
	if err != nil {
		return fhe.CipherUint{}, err
	}
	return e.scheme.Min(fee, maxFee)
}

// LPRewards returns the liquidity providers' share of the captured value.
// shareBps is load-bearing: the split tracks the configured share through
// the active ratio strategy, it is never a hard-wired constant.
func (e *Engine) LPRewards(captured fhe.CipherUint, shareBps uint32) (fhe.CipherUint, error) {
	out, err := e.ratio.Apply(captured, shareBps)
	if err != nil {
		return fhe.CipherUint{}, fmt.Errorf("engine: lp rewards: %w", err)
	}
	return out, nil
}

// MEVEstimate approximates the value extractable from a spread: the spread
// scaled by the configured efficiency ratio, bumped by half again for
// high-volume trades, capped at the configured ceiling. This is a bounded
// estimate, not spread times volume times efficiency.
func (e *Engine) MEVEstimate(spread, volume fhe.CipherUint) (fhe.CipherUint, error) {
	base, err := e.ratio.Apply(spread, e.params.MEVEfficiencyBps)
	if err != nil {
		return fhe.CipherUint{}, fmt.Errorf("engine: mev base: %w", err)
	}

	tier, err := e.scheme.EncryptUint(e.params.MEVVolumeTier, volume.Width())
	if err != nil {
		return fhe.CipherUint{}, err
	}
	highVolume, err := e.scheme.Gt(volume, tier)
	if err != nil {
		return fhe.CipherUint{}, err
	}
	half, err := e.scheme.Shr(base, 1)
	if err != nil {
		return fhe.CipherUint{}, err
	}
	bumped, err := e.scheme.Add(base, half)
	if err != nil {
		return fhe.CipherUint{}, err
	}
	estimate, err := e.scheme.Select(highVolume, bumped, base)
	if err != nil {
		return fhe.CipherUint{}, err
	}

	ceiling, err := e.scheme.EncryptUint(e.params.MEVCap, spread.Width())
	if err != nil {
		return fhe.CipherUint{}, err
	}
	return e.scheme.Min(estimate, ceiling)
}

// IndividualReward splits the aggregate reward for one provider: a provider
// holding a strict majority of the pool gets half the total, everyone else a
// quarter. Exact proportionality would need ciphertext division; the binary
// split keeps the payout monotone in liquidity share without it.
func (e *Engine) IndividualReward(totalRewards, lpLiquidity, totalLiquidity fhe.CipherUint) (fhe.CipherUint, error) {
	doubled, err := e.scheme.Add(lpLiquidity, lpLiquidity)
	if err != nil {
		return fhe.CipherUint{}, fmt.Errorf("engine: reward split: %w", err)
	}
	majority, err := e.scheme.Gt(doubled, totalLiquidity)
	if err != nil {
		return fhe.CipherUint{}, err
	}
	half, err := e.scheme.Shr(totalRewards, 1)
	if err != nil {
		return fhe.CipherUint{}, err
	}
	quarter, err := e.scheme.Shr(totalRewards, 2)
	if err != nil {
		return fhe.CipherUint{}, err
	}
	return e.scheme.Select(majority, half, quarter)
}

// TimeDecay ages a spread observed blocksElapsed blocks ago. The decay
// amount is plaintext (block counts are public), the clamp at zero is
// evaluated privately so the caller cannot tell a decayed-to-zero spread
// from a zero one.
func (e *Engine) TimeDecay(baseSpread fhe.CipherUint, blocksElapsed uint64) (fhe.CipherUint, error) {
	blocks := min(blocksElapsed, e.params.MaxDecayBlocks)
	decay, err := e.scheme.EncryptUint(blocks*e.params.DecayPerBlock, baseSpread.Width())
	if err != nil {
		return fhe.CipherUint{}, err
	}
	zero, err := e.scheme.EncryptUint(0, baseSpread.Width())
	if err != nil {
		return fhe.CipherUint{}, err
	}
	remains, err := e.scheme.Gt(baseSpread, decay)
	if err != nil {
		return fhe.CipherUint{}, fmt.Errorf("engine: decay: %w", err)
	}
	// Order the subtraction by the comparison so it cannot wrap.
	safeBase, err := e.scheme.Select(remains, baseSpread, decay)
	if err != nil {
		return fhe.CipherUint{}, err
	}
	decayed, err := e.scheme.Sub(safeBase, decay)
	if err != nil {
		return fhe.CipherUint{}, err
	}
	return e.scheme.Select(remains, decayed, zero)
}

// CompoundMax scans every price pair and returns the largest spread found.
// Ties keep the earlier pair's value; the comparison is strict so the
// running max only moves on a strictly greater spread.
func (e *Engine) CompoundMax(prices []fhe.CipherUint) (fhe.CipherUint, error) {
	if len(prices) == 0 {
		return fhe.CipherUint{}, fmt.Errorf("engine: compound max over empty price set")
	}
	best, err := e.scheme.EncryptUint(0, prices[0].Width())
	if err != nil {
		return fhe.CipherUint{}, err
	}
	for i := 0; i < len(prices); i++ {
		for j := i + 1; j < len(prices); j++ {
			spread, err := e.Spread(prices[i], prices[j])
			if err != nil {
				return fhe.CipherUint{}, fmt.Errorf("engine: compound max pair (%d,%d): %w", i, j, err)
			}
			greater, err := e.scheme.Gt(spread, best)
			if err != nil {
				return fhe.CipherUint{}, err
			}
			best, err = e.scheme.Select(greater, spread, best)
			if err != nil {
				return fhe.CipherUint{}, err
			}
		}
	}
	return best, nil
}

// ValidateParameters reveals only the positivity of each operand at the
// validation boundary and reports whether all three are positive. The
// magnitudes stay encrypted.
func (e *Engine) ValidateParameters(spread, threshold, volume fhe.CipherUint) (bool, error) {
	positive := func(v fhe.CipherUint, what string) (bool, error) {
		zero, err := e.scheme.EncryptUint(0, v.Width())
		if err != nil {
			return false, err
		}
		gt, err := e.scheme.Gt(v, zero)
		if err != nil {
			return false, fmt.Errorf("engine: validate %s: %w", what, err)
		}
		return e.scheme.RevealBool(gt, "engine.validate")
	}

	sOK, err := positive(spread, "spread")
	if err != nil {
		return false, err
	}
	tOK, err := positive(threshold, "threshold")
	if err != nil {
		return false, err
	}
	vOK, err := positive(volume, "volume")
	if err != nil {
		return false, err
	}
	return sOK && tOK && vOK, nil
}

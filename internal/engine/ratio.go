package engine

import (
	"fmt"

	"github.com/Najnomics/fheap/internal/fhe"
)

// RatioApproximator applies a plaintext basis-point ratio to an encrypted
// value. The two implementations trade exactness against substrate demands:
// BinaryRatio needs only shifts and additions, ExactRatio needs the scalar
// multiply-divide primitive.
type RatioApproximator interface {
	// Apply returns approximately v*numBps/10000.
	Apply(v fhe.CipherUint, numBps uint32) (fhe.CipherUint, error)
	Name() string
}

const (
	// fracBits is the fixed-point precision of the binary expansion.
	fracBits = 16
	// maxTerms bounds the shift-add chain length. Eight terms keep the
	// dropped mass of the expansion below 2^-8 of the input.
	maxTerms = 8
)

// BinaryRatio approximates v*numBps/10000 as a sum of right shifts of v,
// following the binary expansion of the ratio. Each term also truncates, so
// the result undershoots the exact ratio by at most v/2^8 plus maxTerms
// units. Ratios of 10000 bps or more return v unchanged.
type BinaryRatio struct {
	Scheme *fhe.Scheme
}

func (r BinaryRatio) Name() string { return "binary" }

func (r BinaryRatio) Apply(v fhe.CipherUint, numBps uint32) (fhe.CipherUint, error) {
	if numBps >= BpsDenominator {
		// Cap at 100%: re-randomize rather than hand back the input blob.
		zero, err := r.Scheme.EncryptUint(0, v.Width())
		if err != nil {
			return fhe.CipherUint{}, err
		}
		return r.Scheme.Add(v, zero)
	}

	acc, err := r.Scheme.EncryptUint(0, v.Width())
	if err != nil {
		return fhe.CipherUint{}, err
	}
	if numBps == 0 {
		return acc, nil
	}

	// frac is the ratio in 0.16 fixed point; bit k (from the top) set
	// means the term v>>(k+1) contributes.
	frac := (uint64(numBps) << fracBits) / BpsDenominator
	terms := 0
	for k := uint(1); k <= fracBits && terms < maxTerms; k++ {
		if frac&(1<<(fracBits-k)) == 0 {
			continue
		}
		term, err := r.Scheme.Shr(v, k)
		if err != nil {
			return fhe.CipherUint{}, fmt.Errorf("engine: ratio term: %w", err)
		}
		acc, err = r.Scheme.Add(acc, term)
		if err != nil {
			return fhe.CipherUint{}, fmt.Errorf("engine: ratio sum: %w", err)
		}
		terms++
	}
	return acc, nil
}

// ExactRatio computes v*numBps/10000 exactly through the scheme's scalar
// multiply-divide primitive. Only valid on schemes reporting
// SupportsExactRatio.
type ExactRatio struct {
	Scheme *fhe.Scheme
}

func (r ExactRatio) Name() string { return "exact" }

func (r ExactRatio) Apply(v fhe.CipherUint, numBps uint32) (fhe.CipherUint, error) {
	return r.Scheme.MulDivScalar(v, uint64(numBps), BpsDenominator)
}

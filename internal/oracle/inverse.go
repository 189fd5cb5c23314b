package oracle

import (
	"fmt"

	"github.com/Najnomics/fheap/internal/fhe"
)

// reciprocalTiers is the number of doubling tiers in the inverse-price
// table. Prices above PriceScale<<reciprocalTiers share the top tier.
const reciprocalTiers = 16

// deriveInverse approximates PriceScale^2/price without division: a
// piecewise-constant reciprocal over doubling price tiers, walked with
// Gt+Select so the tier the price lands in is never revealed. A price in
// (scale<<k, scale<<(k+1)] maps to scale>>(k+1), the lower bound of its
// true reciprocal range, so the approximation undershoots by at most 2x
// within a tier. Prices at or below scale map to scale itself.
func (s *Store) deriveInverse(price fhe.CipherUint) (fhe.CipherUint, error) {
	scale := s.cfg.PriceScale

	inv, err := s.scheme.EncryptUint(scale, price.Width())
	if err != nil {
		return fhe.CipherUint{}, err
	}
	for k := 0; k < reciprocalTiers; k++ {
		boundary, err := s.scheme.EncryptUint(scale<<k, price.Width())
		if err != nil {
			return fhe.CipherUint{}, err
		}
		above, err := s.scheme.Gt(price, boundary)
		if err != nil {
			return fhe.CipherUint{}, fmt.Errorf("oracle: inverse tier %d: %w", k, err)
		}
		tierValue, err := s.scheme.EncryptUint(scale>>(k+1), price.Width())
		if err != nil {
			return fhe.CipherUint{}, err
		}
		inv, err = s.scheme.Select(above, tierValue, inv)
		if err != nil {
			return fhe.CipherUint{}, err
		}
	}
	return inv, nil
}

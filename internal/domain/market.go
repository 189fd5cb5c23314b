// Package domain contains the shared plaintext types, interfaces, and error
// taxonomy for the FHEAP confidential arbitrage protection service. Nothing in
// this package holds ciphertext; confidential state lives with the components
// that own it (oracle records, protection state).
package domain

import "strings"

// MarketKey identifies a trading pair as an ordered pair of asset symbols.
// The forward direction prices Base in units of Quote.
type MarketKey struct {
	Base  string
	Quote string
}

// NewMarketKey builds a MarketKey from two asset symbols, upper-casing and
// trimming them so equivalent spellings collide on the same map key.
func NewMarketKey(base, quote string) MarketKey {
	return MarketKey{
		Base:  strings.ToUpper(strings.TrimSpace(base)),
		Quote: strings.ToUpper(strings.TrimSpace(quote)),
	}
}

// ParseMarketKey parses a "BASE-QUOTE" pair string.
func ParseMarketKey(s string) (MarketKey, bool) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
		return MarketKey{}, false
	}
	return NewMarketKey(parts[0], parts[1]), true
}

// String returns the pair symbol (e.g. "ETH-USDC").
func (k MarketKey) String() string {
	return k.Base + "-" + k.Quote
}

// Invert returns the reverse-direction pair (e.g. ETH-USDC -> USDC-ETH).
func (k MarketKey) Invert() MarketKey {
	return MarketKey{Base: k.Quote, Quote: k.Base}
}

// IsZero reports whether the key is empty.
func (k MarketKey) IsZero() bool {
	return k.Base == "" && k.Quote == ""
}

// Direction distinguishes the stored forward record from the derived
// reverse-direction record.
type Direction string

const (
	DirectionForward Direction = "forward"
	DirectionReverse Direction = "reverse"
)

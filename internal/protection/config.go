package protection

import (
	"fmt"
	"time"
)

// ScanPolicy selects how cross-source prices are scanned on a trade intent.
type ScanPolicy string

const (
	// ScanFirstMatch stops at the first source pair whose spread clears
	// the threshold, in registration order.
	ScanFirstMatch ScanPolicy = "first_match"
	// ScanMaxSpread scans every pair and decides once on the largest
	// spread found.
	ScanMaxSpread ScanPolicy = "max_spread"
)

func (p ScanPolicy) Valid() bool {
	return p == ScanFirstMatch || p == ScanMaxSpread
}

// Config tunes the protection manager.
type Config struct {
	// CooldownBlocks is how many blocks after a trigger the market skips
	// scanning entirely.
	CooldownBlocks uint64

	// PauseBlocks is the extended cooldown applied by an emergency pause.
	PauseBlocks uint64

	// DefaultThreshold seeds each market's confidential spread threshold.
	// MinThreshold and MaxThreshold bound later updates; the bounds are
	// public, the threshold itself is not.
	DefaultThreshold uint64
	MinThreshold     uint64
	MaxThreshold     uint64

	// MaxFee caps the protection fee charged on any single trade.
	MaxFee uint64

	// MinTradeVolume is the volume below which a trade is never treated
	// as an arbitrage opportunity.
	MinTradeVolume uint64

	// ScanPolicy picks the cross-source scan strategy.
	ScanPolicy ScanPolicy

	// EventRingSize bounds the in-memory window of recent events.
	EventRingSize int

	// NotifyTimeout bounds an operator notification attempt.
	NotifyTimeout time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		CooldownBlocks:   10,
		PauseBlocks:      1_000,
		DefaultThreshold: 10_000_000,
		MinThreshold:     1_000_000,
		MaxThreshold:     1_000_000_000,
		MaxFee:           100_000_000,
		MinTradeVolume:   1_000_000,
		ScanPolicy:       ScanFirstMatch,
		EventRingSize:    256,
		NotifyTimeout:    5 * time.Second,
	}
}

// Validate checks internal consistency.
func (c Config) Validate() error {
	if !c.ScanPolicy.Valid() {
		return fmt.Errorf("protection: unknown scan policy %q", c.ScanPolicy)
	}
	if c.MinThreshold >= c.MaxThreshold {
		return fmt.Errorf("protection: threshold bounds inverted: %d >= %d", c.MinThreshold, c.MaxThreshold)
	}
	if c.DefaultThreshold < c.MinThreshold || c.DefaultThreshold > c.MaxThreshold {
		return fmt.Errorf("protection: default threshold %d outside [%d, %d]",
			c.DefaultThreshold, c.MinThreshold, c.MaxThreshold)
	}
	if c.MaxFee == 0 {
		return fmt.Errorf("protection: max fee must be positive")
	}
	if c.EventRingSize <= 0 {
		return fmt.Errorf("protection: event ring size must be positive")
	}
	return nil
}

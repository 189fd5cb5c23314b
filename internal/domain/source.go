package domain

import "time"

// SourceKind classifies a price source.
type SourceKind string

const (
	SourceKindDEX        SourceKind = "dex"
	SourceKindCEX        SourceKind = "cex"
	SourceKindOracle     SourceKind = "oracle"
	SourceKindAggregator SourceKind = "aggregator"
)

// Valid reports whether the kind is one of the known enum values.
func (k SourceKind) Valid() bool {
	switch k {
	case SourceKindDEX, SourceKindCEX, SourceKindOracle, SourceKindAggregator:
		return true
	}
	return false
}

// SourceRegistration is the plaintext bookkeeping record for a price source.
// Reputation and activity gate whether the source contributes to cross-source
// aggregation; removal is a soft delete (Active=false, Reputation=0) so
// historical price records keep their provenance.
type SourceRegistration struct {
	ID           string     `json:"id"`
	DisplayName  string     `json:"display_name"`
	Kind         SourceKind `json:"kind"`
	Active       bool       `json:"active"`
	Reputation   int        `json:"reputation"`
	UpdateCount  uint64     `json:"update_count"`
	RegisteredAt time.Time  `json:"registered_at"`
	LastUpdateAt time.Time  `json:"last_update_at,omitzero"`
}

// PriceRecordInfo is the plaintext metadata of a stored price record, exposed
// to the presentation layer. The price itself never appears here; sensitive
// magnitudes leave the service only as sealed blobs.
type PriceRecordInfo struct {
	SourceID        string    `json:"source_id"`
	Market          string    `json:"market"`
	Direction       Direction `json:"direction"`
	ObservedAt      time.Time `json:"observed_at"`
	ObservedAtBlock uint64    `json:"observed_at_block"`
	Valid           bool      `json:"valid"`
	Fresh           bool      `json:"fresh"`
}

package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// ProtectionEventType labels the decision outcomes a market can emit.
type ProtectionEventType string

const (
	EventMarketInitialized ProtectionEventType = "market_initialized"
	EventProtectionApplied ProtectionEventType = "protection_applied"
	EventTradePassed       ProtectionEventType = "trade_passed"
	EventRewardDistributed ProtectionEventType = "reward_distributed"
	EventThresholdUpdated  ProtectionEventType = "threshold_updated"
	EventEmergencyPause    ProtectionEventType = "emergency_pause"
	EventEmergencyResume   ProtectionEventType = "emergency_resume"
)

// ProtectionEvent is the plaintext record of one decision taken at a reveal
// boundary. It carries only the boolean outcome and public bookkeeping; fee
// and reward magnitudes stay encrypted and are served through sealed views.
type ProtectionEvent struct {
	ID          uuid.UUID           `json:"id"`
	Type        ProtectionEventType `json:"type"`
	Market      string              `json:"market"`
	Trader      common.Address      `json:"trader,omitzero"`
	BlockNumber uint64              `json:"block_number"`
	OccurredAt  time.Time           `json:"occurred_at"`
	Detail      string              `json:"detail,omitempty"`
}

// ProtectionStats is the aggregate view served to the dashboard.
type ProtectionStats struct {
	MarketsProtected   int     `json:"markets_protected"`
	TradesScreened     uint64  `json:"trades_screened"`
	ProtectionsApplied uint64  `json:"protections_applied"`
	ProtectionRate     float64 `json:"protection_rate"`
}

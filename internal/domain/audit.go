package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// AuditEntry records one reveal that crossed a trust boundary: which named
// boundary, who asked, and over which market. Revealed magnitudes are not
// stored here; the entry proves the reveal happened, not what it said.
type AuditEntry struct {
	ID        uuid.UUID      `json:"id"`
	Boundary  string         `json:"boundary"`
	Market    string         `json:"market,omitempty"`
	Subject   common.Address `json:"subject,omitzero"`
	Detail    string         `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists reveal audit entries.
type AuditStore interface {
	Record(ctx context.Context, e AuditEntry) error
	List(ctx context.Context, boundary string, opts ListOpts) ([]AuditEntry, error)
}

// GrantStore persists access grants.
type GrantStore interface {
	Put(ctx context.Context, g AccessGrant) error
	Get(ctx context.Context, subject common.Address, capability Capability) (AccessGrant, error)
	Delete(ctx context.Context, subject common.Address, capability Capability) error
	List(ctx context.Context, opts ListOpts) ([]AccessGrant, error)
}

// BlobWriter archives an opaque object under a key, returning its location.
type BlobWriter interface {
	Write(ctx context.Context, key string, contentType string, body []byte) (string, error)
}

// BlockClock reports the current block number of the chain the protection
// cooldowns are anchored to.
type BlockClock interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// Notifier delivers operator alerts for decision events.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

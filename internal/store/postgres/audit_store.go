package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Najnomics/fheap/internal/domain"
)

// AuditStore implements domain.AuditStore using PostgreSQL.
type AuditStore struct {
	pool *pgxpool.Pool
}

// NewAuditStore creates a new AuditStore backed by the given connection pool.
func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

var _ domain.AuditStore = (*AuditStore)(nil)

// Record appends one reveal audit entry.
func (s *AuditStore) Record(ctx context.Context, e domain.AuditEntry) error {
	const query = `
		INSERT INTO audit_entries (id, boundary, market, subject, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.pool.Exec(ctx, query,
		e.ID, e.Boundary, e.Market, e.Subject.Bytes(), e.Detail, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record audit entry %s: %w", e.Boundary, err)
	}
	return nil
}

// List returns audit entries for one boundary, newest first. An empty
// boundary matches all entries.
func (s *AuditStore) List(ctx context.Context, boundary string, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	query := `SELECT id, boundary, market, subject, detail, created_at FROM audit_entries`
	args := []any{}
	argIdx := 1

	if boundary != "" {
		query += fmt.Sprintf(" WHERE boundary = $%d", argIdx)
		args = append(args, boundary)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var subject []byte

		if err := rows.Scan(&e.ID, &e.Boundary, &e.Market, &subject, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan audit entry: %w", err)
		}
		e.Subject = common.BytesToAddress(subject)

		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list audit entries rows: %w", err)
	}
	return entries, nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Najnomics/fheap/internal/domain"
)

// GrantStore implements domain.GrantStore using PostgreSQL.
type GrantStore struct {
	pool *pgxpool.Pool
}

// NewGrantStore creates a new GrantStore backed by the given connection pool.
func NewGrantStore(pool *pgxpool.Pool) *GrantStore {
	return &GrantStore{pool: pool}
}

var _ domain.GrantStore = (*GrantStore)(nil)

const grantCols = `id, subject, capability, viewing_key, granted_by, granted_at, expires_at`

// Put inserts or replaces the grant for (subject, capability).
func (s *GrantStore) Put(ctx context.Context, g domain.AccessGrant) error {
	const query = `
		INSERT INTO access_grants (
			id, subject, capability, viewing_key, granted_by, granted_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (subject, capability) DO UPDATE SET
			id          = EXCLUDED.id,
			viewing_key = EXCLUDED.viewing_key,
			granted_by  = EXCLUDED.granted_by,
			granted_at  = EXCLUDED.granted_at,
			expires_at  = EXCLUDED.expires_at`

	var expiresAt any
	if !g.ExpiresAt.IsZero() {
		expiresAt = g.ExpiresAt
	}

	_, err := s.pool.Exec(ctx, query,
		g.ID, g.Subject.Bytes(), string(g.Capability), g.ViewingKey,
		g.GrantedBy.Bytes(), g.GrantedAt, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: put grant %s/%s: %w", g.Subject, g.Capability, err)
	}
	return nil
}

// Get retrieves the grant for (subject, capability).
func (s *GrantStore) Get(ctx context.Context, subject common.Address, capability domain.Capability) (domain.AccessGrant, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+grantCols+` FROM access_grants WHERE subject = $1 AND capability = $2`,
		subject.Bytes(), string(capability),
	)
	g, err := scanGrant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AccessGrant{}, domain.ErrNotFound
		}
		return domain.AccessGrant{}, fmt.Errorf("postgres: get grant %s/%s: %w", subject, capability, err)
	}
	return g, nil
}

// Delete removes the grant for (subject, capability). Deleting a missing
// grant returns domain.ErrNotFound.
func (s *GrantStore) Delete(ctx context.Context, subject common.Address, capability domain.Capability) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM access_grants WHERE subject = $1 AND capability = $2`,
		subject.Bytes(), string(capability),
	)
	if err != nil {
		return fmt.Errorf("postgres: delete grant %s/%s: %w", subject, capability, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// List returns grants ordered by grant time, newest first.
func (s *GrantStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AccessGrant, error) {
	query := `SELECT ` + grantCols + ` FROM access_grants ORDER BY granted_at DESC`
	args := []any{}
	argIdx := 1

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
		return nil, fmt.Errorf("postgres: list grants: %w", err)
	}
	defer rows.Close()

	var grants []domain.AccessGrant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan grant: %w", err)
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list grants rows: %w", err)
	}
	return grants, nil
}

func scanGrant(row pgx.Row) (domain.AccessGrant, error) {
	var g domain.AccessGrant
	var subject, grantedBy []byte
	var capability string
	var expiresAt *time.Time

	err := row.Scan(&g.ID, &subject, &capability, &g.ViewingKey, &grantedBy, &g.GrantedAt, &expiresAt)
	if err != nil {
		return domain.AccessGrant{}, err
	}
	g.Subject = common.BytesToAddress(subject)
	g.Capability = domain.Capability(capability)
	g.GrantedBy = common.BytesToAddress(grantedBy)
	if expiresAt != nil {
		g.ExpiresAt = *expiresAt
	}
	return g, nil
}

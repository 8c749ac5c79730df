package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/reeltap/internal/domain"
)

// RevocationStore is the durable set of revoked token ids. It is the only shared
// mutable state of the API; every call is keyed by a single jti.
type RevocationStore interface {
	// Revoke records the entry. Revoking a known jti is a no-op.
	Revoke(ctx context.Context, entry domain.RevocationEntry) error
	// IsRevoked reports whether a live entry exists for jti.
	IsRevoked(ctx context.Context, jti string) (bool, error)
	// Purge drops entries that expired at or before now.
	Purge(ctx context.Context, now time.Time) (int64, error)
	Ping(ctx context.Context) error
}

type postgresRevocationStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresRevocationStore stores revocations in the revoked_tokens table.
func NewPostgresRevocationStore(pool *pgxpool.Pool) RevocationStore {
	return &postgresRevocationStore{pool: pool, now: time.Now}
}

func (s *postgresRevocationStore) Revoke(ctx context.Context, entry domain.RevocationEntry) error {
	const query = `
        INSERT INTO revoked_tokens (jti, subject_id, expires_at, created_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (jti) DO NOTHING`

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}
	_, err := s.pool.Exec(ctx, query, entry.JTI, entry.SubjectID, entry.ExpiresAt, entry.CreatedAt)
	return err
}

func (s *postgresRevocationStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	const query = `
        SELECT EXISTS (
            SELECT 1 FROM revoked_tokens WHERE jti=$1 AND expires_at > $2
        )`

	var revoked bool
	if err := s.pool.QueryRow(ctx, query, jti, s.now().UTC()).Scan(&revoked); err != nil {
		return false, err
	}
	return revoked, nil
}

func (s *postgresRevocationStore) Purge(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM revoked_tokens WHERE expires_at <= $1`

	cmd, err := s.pool.Exec(ctx, query, now.UTC())
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (s *postgresRevocationStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

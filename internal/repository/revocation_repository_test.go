package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/reeltap/internal/domain"
)

func entryExpiringIn(d time.Duration) domain.RevocationEntry {
	return domain.RevocationEntry{
		JTI:       uuid.NewString(),
		SubjectID: "user-1",
		ExpiresAt: time.Now().Add(d),
	}
}

// exerciseStore runs the behavior every backend must share.
func exerciseStore(t *testing.T, store RevocationStore) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.Ping(ctx))

	live := entryExpiringIn(time.Hour)
	revoked, err := store.IsRevoked(ctx, live.JTI)
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, store.Revoke(ctx, live))
	revoked, err = store.IsRevoked(ctx, live.JTI)
	require.NoError(t, err)
	assert.True(t, revoked, "revoke must be visible to the next lookup")

	// idempotent
	require.NoError(t, store.Revoke(ctx, live))
	revoked, err = store.IsRevoked(ctx, live.JTI)
	require.NoError(t, err)
	assert.True(t, revoked)

	dead := entryExpiringIn(-time.Minute)
	require.NoError(t, store.Revoke(ctx, dead))
	revoked, err = store.IsRevoked(ctx, dead.JTI)
	require.NoError(t, err)
	assert.False(t, revoked, "entries past expiry never count")
}

func TestMemoryRevocationStore(t *testing.T) {
	exerciseStore(t, NewMemoryRevocationStore())
}

func TestMemoryRevocationStore_Purge(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	store := newMemoryRevocationStore(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, store.Revoke(ctx, domain.RevocationEntry{JTI: "a", ExpiresAt: now.Add(time.Minute)}))
	require.NoError(t, store.Revoke(ctx, domain.RevocationEntry{JTI: "b", ExpiresAt: now.Add(time.Hour)}))

	purged, err := store.Purge(ctx, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 1, purged)

	revoked, err := store.IsRevoked(ctx, "b")
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestMemoryRevocationStore_CanceledContext(t *testing.T) {
	store := NewMemoryRevocationStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.IsRevoked(ctx, "x")
	require.ErrorIs(t, err, context.Canceled)
}

func newMiniRedisStore(t *testing.T) (RevocationStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRevocationStore(client), mr
}

func TestRedisRevocationStore(t *testing.T) {
	store, _ := newMiniRedisStore(t)
	exerciseStore(t, store)
}

func TestRedisRevocationStore_KeyExpiresWithToken(t *testing.T) {
	store, mr := newMiniRedisStore(t)
	ctx := context.Background()

	entry := entryExpiringIn(time.Minute)
	require.NoError(t, store.Revoke(ctx, entry))
	require.True(t, mr.Exists(revokedKey(entry.JTI)))

	ttl := mr.TTL(revokedKey(entry.JTI))
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)

	mr.FastForward(2 * time.Minute)
	revoked, err := store.IsRevoked(ctx, entry.JTI)
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRedisRevocationStore_UnavailableSurfacesError(t *testing.T) {
	store, mr := newMiniRedisStore(t)
	mr.Close()

	_, err := store.IsRevoked(context.Background(), "x")
	require.Error(t, err)
	require.Error(t, store.Ping(context.Background()))
}

func TestPostgresRevocationStore(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS revoked_tokens (
            jti TEXT PRIMARY KEY,
            subject_id TEXT NOT NULL,
            expires_at TIMESTAMPTZ NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`)
	require.NoError(t, err)

	store := NewPostgresRevocationStore(pool)
	exerciseStore(t, store)

	purged, err := store.Purge(ctx, time.Now())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, purged, int64(1))
}

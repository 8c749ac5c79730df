package persistence

import (
	"context"
	"database/sql"
	"io/fs"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/reeltap/internal/config"
	"github.com/spec-kit/reeltap/internal/persistence/migrations"
)

func TestMigrationsAreEmbeddedInOrder(t *testing.T) {
	names, err := fs.Glob(migrations.FS, "*.sql")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"00001_create_users.sql",
		"00002_create_revoked_tokens.sql",
	}, names)

	for _, name := range names {
		body, err := fs.ReadFile(migrations.FS, name)
		require.NoError(t, err)
		assert.Contains(t, string(body), "-- +goose Up")
		assert.Contains(t, string(body), "-- +goose Down")
	}
}

func TestRunMigrations_NilPoolIsSkipped(t *testing.T) {
	called := false
	orig := gooseUp
	gooseUp = func(context.Context, *sql.DB, string, ...goose.OptionsFunc) error {
		called = true
		return nil
	}
	t.Cleanup(func() { gooseUp = orig })

	require.NoError(t, RunMigrations(context.Background(), nil, zap.NewNop()))
	assert.False(t, called)
}

func TestPostgres_WithoutDSN(t *testing.T) {
	pg, err := NewPostgres(context.Background(), config.PostgresConfig{}, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, pg.Enabled())
	require.ErrorIs(t, pg.Ping(context.Background()), ErrNotConfigured)
	pg.Close()
}

func TestRedis_PingFollowsServer(t *testing.T) {
	mr := miniredis.RunT(t)
	r := NewRedis(context.Background(), config.RedisConfig{Addr: mr.Addr()}, time.Second, zap.NewNop())
	t.Cleanup(r.Close)

	require.NoError(t, r.Ping(context.Background()))
	mr.Close()
	require.Error(t, r.Ping(context.Background()))
}

package db

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	appErr "github.com/corpusd/corpusd/internal/pkg/errors"
)

// sql.Open is lazy, so a pool over an unreachable server still exercises the
// acquire path: any failure must come from the dial, never from a timeout
// that expired before the dial was attempted.
func openUnreachable(t *testing.T) *sql.DB {
	t.Helper()
	handle, err := sql.Open("postgres", "host=127.0.0.1 port=1 user=x dbname=x sslmode=disable connect_timeout=1")
	require.NoError(t, err)
	t.Cleanup(func() { _ = handle.Close() })
	return handle
}

func TestAcquireZeroTimeoutIsNotPoolExhausted(t *testing.T) {
	pool := &Pool{db: openUnreachable(t)}

	conn, err := pool.Acquire(context.Background())
	require.Error(t, err)
	require.False(t, errors.Is(err, appErr.ErrPoolExhausted))
	require.Nil(t, conn)
}

func TestAcquireCanceledCallerContextIsNotPoolExhausted(t *testing.T) {
	pool := &Pool{db: openUnreachable(t), acquireTimeout: time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	conn, err := pool.Acquire(ctx)
	require.Error(t, err)
	require.False(t, errors.Is(err, appErr.ErrPoolExhausted))
	require.Nil(t, conn)
}

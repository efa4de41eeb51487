package repo_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corpusd/corpusd/internal/model"
	appErr "github.com/corpusd/corpusd/internal/pkg/errors"
	"github.com/corpusd/corpusd/internal/repo"
	"github.com/corpusd/corpusd/test/testutil"
)

func TestCheckpointEnsureAndUpdate(t *testing.T) {
	pool, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()

	checkpoints := repo.NewCheckpointRepo(pool)
	require.NoError(t, checkpoints.Ensure(ctx, model.MigrationSourceLegacyCatalog))
	require.NoError(t, checkpoints.Ensure(ctx, model.MigrationSourceLegacyCatalog))

	cp, err := checkpoints.Get(ctx, model.MigrationSourceLegacyCatalog)
	require.NoError(t, err)
	require.Equal(t, model.MigrationSourceLegacyCatalog, cp.Source)

	cp.Status = model.MigrationStatusMigrating
	cp.Offset = 42
	cp.Total = 100
	cp.Processed = 42
	require.NoError(t, checkpoints.Update(ctx, cp))

	stored, err := checkpoints.Get(ctx, model.MigrationSourceLegacyCatalog)
	require.NoError(t, err)
	require.Equal(t, int64(42), stored.Offset)
	require.Equal(t, model.MigrationStatusMigrating, stored.Status)
}

func TestCheckpointRunLockExcludesSecondRunner(t *testing.T) {
	pool, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()

	checkpoints := repo.NewCheckpointRepo(pool)
	conn, err := checkpoints.AcquireRunLock(ctx, model.MigrationSourceLegacyVectors)
	require.NoError(t, err)

	_, err = checkpoints.AcquireRunLock(ctx, model.MigrationSourceLegacyVectors)
	require.ErrorIs(t, err, appErr.ErrConflict)

	checkpoints.ReleaseRunLock(ctx, conn, model.MigrationSourceLegacyVectors)
	conn2, err := checkpoints.AcquireRunLock(ctx, model.MigrationSourceLegacyVectors)
	require.NoError(t, err)
	checkpoints.ReleaseRunLock(ctx, conn2, model.MigrationSourceLegacyVectors)
}

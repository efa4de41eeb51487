package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/corpusd/corpusd/internal/model"
	"github.com/corpusd/corpusd/internal/repo"
	"github.com/corpusd/corpusd/test/testutil"
)

func TestConfigSingletonsSeedAndRead(t *testing.T) {
	pool, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()

	configs := repo.NewConfigRepo(pool)
	require.NoError(t, configs.UpsertStatic(ctx, &model.StaticConfig{
		ID:              model.StaticConfigID,
		DeploymentName:  "test",
		EmbeddingModel:  "static",
		EmbeddingDim:    testutil.TestEmbeddingDim,
		ChunkSize:       1600,
		ChunkOverlap:    200,
		DistanceMetric:  "cosine",
		InstalledModels: []string{"m1", "m2"},
	}))
	require.NoError(t, configs.SeedDynamic(ctx))

	static, err := configs.GetStatic(ctx)
	require.NoError(t, err)
	require.Equal(t, testutil.TestEmbeddingDim, static.EmbeddingDim)
	require.Equal(t, []string{"m1", "m2"}, static.InstalledModels)

	dynamic, err := configs.GetDynamic(ctx)
	require.NoError(t, err)
	require.GreaterOrEqual(t, dynamic.Version, int64(1))
	require.Positive(t, dynamic.RetrieveCount)
}

func TestConfigSecondRowRejected(t *testing.T) {
	pool, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	_, err := pool.Handle().ExecContext(context.Background(),
		`INSERT INTO dynamic_config (id) VALUES (2)`)
	require.Error(t, err)
}

func TestConfigUpdateBumpsVersionAndWritesAudit(t *testing.T) {
	pool, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()

	configs := repo.NewConfigRepo(pool)
	require.NoError(t, configs.SeedDynamic(ctx))
	before, err := configs.GetDynamic(ctx)
	require.NoError(t, err)

	next := *before
	next.Temperature = 1.5
	next.UpdatedBy = "test-admin"
	next.Mtime = time.Now().UnixMilli()
	updated, err := configs.UpdateDynamic(ctx, &next, []model.ConfigAuditEntry{{
		Actor: "test-admin", Field: "temperature", OldValue: "0.7", NewValue: "1.5", Ctime: next.Mtime,
	}})
	require.NoError(t, err)
	require.Equal(t, before.Version+1, updated.Version)
	require.Equal(t, 1.5, updated.Temperature)

	version, err := configs.GetDynamicVersion(ctx)
	require.NoError(t, err)
	require.Equal(t, updated.Version, version)

	audits, err := configs.ListAudit(ctx, 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, audits)
	require.Equal(t, "temperature", audits[0].Field)
	require.Equal(t, "test-admin", audits[0].Actor)
}

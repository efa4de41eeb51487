package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/corpusd/corpusd/internal/model"
	appErr "github.com/corpusd/corpusd/internal/pkg/errors"
	"github.com/corpusd/corpusd/internal/repo"
	"github.com/corpusd/corpusd/test/testutil"
)

func TestDocumentUpsertByContentHash(t *testing.T) {
	pool, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()

	docs := repo.NewDocumentRepo(pool)
	hash := newTestID()
	first, err := docs.Upsert(ctx, &model.Document{
		ContentHash: hash,
		DisplayName: "original name",
		SourceType:  model.SourceTypeWeb,
		SourceURL:   "https://wiki/page",
	})
	require.NoError(t, err)
	require.NotZero(t, first.ID)
	require.Equal(t, model.DocumentStateNormal, first.State)

	second, err := docs.Upsert(ctx, &model.Document{
		ContentHash: hash,
		DisplayName: "renamed",
		SourceType:  model.SourceTypeWeb,
		SourceURL:   "https://wiki/page",
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "renamed", second.DisplayName)
}

func TestDocumentUpsertKeepsDeletedState(t *testing.T) {
	pool, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()

	docs := repo.NewDocumentRepo(pool)
	doc := mustRegisterDoc(t, pool)
	require.NoError(t, docs.SetState(ctx, doc.ContentHash, model.DocumentStateDeleted, time.Now().UnixMilli()))

	// a collector re-registering the same content must not resurrect it
	after, err := docs.Upsert(ctx, &model.Document{
		ContentHash: doc.ContentHash,
		DisplayName: doc.DisplayName,
		SourceType:  doc.SourceType,
	})
	require.NoError(t, err)
	require.Equal(t, model.DocumentStateDeleted, after.State)
}

func TestDocumentHardDeleteCascades(t *testing.T) {
	pool, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()

	docs := repo.NewDocumentRepo(pool)
	chunks := repo.NewChunkRepo(pool, false, testutil.TestEmbeddingDim)
	doc := mustRegisterDoc(t, pool)
	require.NoError(t, chunks.Replace(ctx, doc.ID, testChunks(doc.ID, 2)))

	require.NoError(t, docs.HardDelete(ctx, doc.ContentHash))
	_, err := docs.GetByHash(ctx, doc.ContentHash)
	require.ErrorIs(t, err, appErr.ErrNotFound)

	orphans, err := chunks.ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Empty(t, orphans)
}

func TestDocumentListStale(t *testing.T) {
	pool, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()

	docs := repo.NewDocumentRepo(pool)
	stale := mustRegisterDoc(t, pool)
	fresh := mustRegisterDoc(t, pool)
	require.NoError(t, docs.StampIndexed(ctx, fresh.ID, time.Now().Add(time.Hour).UnixMilli()))

	listed, err := docs.ListStale(ctx, 1000)
	require.NoError(t, err)
	ids := make(map[int64]bool, len(listed))
	for _, d := range listed {
		ids[d.ID] = true
	}
	require.True(t, ids[stale.ID])
	require.False(t, ids[fresh.ID])
}

package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/corpusd/corpusd/internal/model"
	"github.com/corpusd/corpusd/internal/pkg/errors"
	"github.com/corpusd/corpusd/internal/repo"
	"github.com/corpusd/corpusd/test/testutil"
)

func testVector(axis int) []float32 {
	vec := make([]float32, testutil.TestEmbeddingDim)
	vec[axis%testutil.TestEmbeddingDim] = 1
	return vec
}

func testChunks(docID int64, n int) []model.Chunk {
	chunks := make([]model.Chunk, 0, n)
	for i := 0; i < n; i++ {
		chunks = append(chunks, model.Chunk{
			DocumentID: docID,
			ChunkIndex: i,
			Content:    "chunk content number",
			Embedding:  testVector(i),
		})
	}
	return chunks
}

func TestChunkReplaceAndSearch(t *testing.T) {
	pool, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()

	chunks := repo.NewChunkRepo(pool, testutil.LexicalOK(pool), testutil.TestEmbeddingDim)
	doc := mustRegisterDoc(t, pool)
	require.NoError(t, chunks.Replace(ctx, doc.ID, testChunks(doc.ID, 3)))

	stored, err := chunks.ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	require.Equal(t, 0, stored[0].ChunkIndex)

	results, err := chunks.SemanticSearch(ctx, testVector(1), []int64{doc.ID}, 10)
	require.NoError(t, err)
	require.Len(t, results, 3)
	// exact match on axis 1 scores 1, orthogonal vectors score 0
	require.Equal(t, 1, results[0].ChunkIndex)
	require.InDelta(t, 1.0, results[0].Semantic, 1e-6)
	require.Greater(t, results[0].Semantic, results[1].Semantic)
}

func TestChunkReplaceRollsBackOnFailure(t *testing.T) {
	pool, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()

	chunks := repo.NewChunkRepo(pool, false, testutil.TestEmbeddingDim)
	doc := mustRegisterDoc(t, pool)
	require.NoError(t, chunks.Replace(ctx, doc.ID, testChunks(doc.ID, 2)))

	bad := testChunks(doc.ID, 2)
	bad[1].ChunkIndex = 0 // collides with bad[0]
	require.Error(t, chunks.Replace(ctx, doc.ID, bad))

	stored, err := chunks.ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
}

func TestChunkReplaceRejectsWrongDimension(t *testing.T) {
	pool, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()

	chunks := repo.NewChunkRepo(pool, false, testutil.TestEmbeddingDim)
	doc := mustRegisterDoc(t, pool)
	require.NoError(t, chunks.Replace(ctx, doc.ID, testChunks(doc.ID, 2)))

	bad := testChunks(doc.ID, 2)
	bad[1].Embedding = bad[1].Embedding[:testutil.TestEmbeddingDim-1]
	var dimErr *errors.DimensionMismatchError
	require.ErrorAs(t, chunks.Replace(ctx, doc.ID, bad), &dimErr)
	require.Equal(t, testutil.TestEmbeddingDim, dimErr.Want)
	require.ErrorAs(t, chunks.Append(ctx, doc.ID, bad), &dimErr)

	stored, err := chunks.ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
}

func TestChunkAppendIsIdempotent(t *testing.T) {
	pool, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()

	chunks := repo.NewChunkRepo(pool, false, testutil.TestEmbeddingDim)
	doc := mustRegisterDoc(t, pool)

	require.NoError(t, chunks.Append(ctx, doc.ID, testChunks(doc.ID, 2)))
	updated := testChunks(doc.ID, 2)
	updated[1].Content = "revised content"
	require.NoError(t, chunks.Append(ctx, doc.ID, updated))

	stored, err := chunks.ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	require.Equal(t, "revised content", stored[1].Content)
}

func TestSoftDeletedDocumentHiddenFromSearch(t *testing.T) {
	pool, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()

	docs := repo.NewDocumentRepo(pool)
	chunks := repo.NewChunkRepo(pool, false, testutil.TestEmbeddingDim)
	doc := mustRegisterDoc(t, pool)
	require.NoError(t, chunks.Replace(ctx, doc.ID, testChunks(doc.ID, 2)))

	require.NoError(t, docs.SetState(ctx, doc.ContentHash, model.DocumentStateDeleted, time.Now().UnixMilli()))
	results, err := chunks.SemanticSearch(ctx, testVector(0), []int64{doc.ID}, 10)
	require.NoError(t, err)
	require.Empty(t, results)

	require.NoError(t, docs.SetState(ctx, doc.ContentHash, model.DocumentStateNormal, 0))
	results, err = chunks.SemanticSearch(ctx, testVector(0), []int64{doc.ID}, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestLexicalSearchMatchesQueryTerms(t *testing.T) {
	pool, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	if !testutil.LexicalOK(pool) {
		t.Skip("lexical index unavailable")
	}
	ctx := context.Background()

	chunks := repo.NewChunkRepo(pool, true, testutil.TestEmbeddingDim)
	doc := mustRegisterDoc(t, pool)
	set := testChunks(doc.ID, 2)
	set[0].Content = "postgres advisory locks guard concurrent migrations"
	set[1].Content = "cosine similarity ranks embedded chunks"
	require.NoError(t, chunks.Replace(ctx, doc.ID, set))

	results, err := chunks.LexicalSearch(ctx, "advisory locks", []int64{doc.ID}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, 0, results[0].ChunkIndex)
	require.Positive(t, results[0].Lexical)
}

package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/corpusd/corpusd/internal/ai"
	"github.com/corpusd/corpusd/internal/filestore"
	"github.com/corpusd/corpusd/internal/model"
	"github.com/corpusd/corpusd/internal/pkg/errors"
	"github.com/corpusd/corpusd/internal/repo"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// IndexService turns a document body into embedded chunks. It is the only
// writer of document_chunks outside the migration.
type IndexService struct {
	docs     *repo.DocumentRepo
	chunks   *repo.ChunkRepo
	store    filestore.Store
	chunker  *ai.Chunker
	embedder ai.IEmbedder
	dim      int
}

func NewIndexService(docs *repo.DocumentRepo, chunks *repo.ChunkRepo, store filestore.Store, chunker *ai.Chunker, embedder ai.IEmbedder, dim int) *IndexService {
	return &IndexService{docs: docs, chunks: chunks, store: store, chunker: chunker, embedder: embedder, dim: dim}
}

// IndexDocument fetches the stored body, chunks it, embeds every chunk and
// swaps the document's chunk set in one transaction. The indexed stamp moves
// only after the swap commits.
func (s *IndexService) IndexDocument(ctx context.Context, doc *model.Document) error {
	body, err := s.store.Open(ctx, doc.Location)
	if err != nil {
		return fmt.Errorf("open body of %s: %w", doc.ContentHash, err)
	}
	raw, err := io.ReadAll(body)
	body.Close()
	if err != nil {
		return fmt.Errorf("read body of %s: %w", doc.ContentHash, err)
	}

	pieces := s.chunker.Split(string(raw))
	chunks := make([]model.Chunk, 0, len(pieces))
	for i, piece := range pieces {
		vec, err := s.embedder.Embed(ctx, piece.Content, ai.TaskRetrievalDocument)
		if err != nil {
			return fmt.Errorf("embed chunk %d of %s: %w", i, doc.ContentHash, err)
		}
		if len(vec) != s.dim {
			return &errors.DimensionMismatchError{Want: s.dim, Got: len(vec)}
		}
		chunks = append(chunks, model.Chunk{
			DocumentID:  doc.ID,
			ChunkIndex:  i,
			Content:     piece.Content,
			Embedding:   vec,
			StartOffset: piece.Start,
			EndOffset:   piece.End,
		})
	}

	if err := s.chunks.Replace(ctx, doc.ID, chunks); err != nil {
		return fmt.Errorf("replace chunks of %s: %w", doc.ContentHash, err)
	}
	if err := s.docs.StampIndexed(ctx, doc.ID, time.Now().UnixMilli()); err != nil {
		return err
	}
	logutil.GetLogger(ctx).Info("document indexed",
		zap.String("content_hash", doc.ContentHash),
		zap.Int("chunks", len(chunks)))
	return nil
}

// ReindexStale indexes up to limit documents whose body changed after their
// last successful indexing. One document failing does not stop the rest.
func (s *IndexService) ReindexStale(ctx context.Context, limit int) (int, error) {
	docs, err := s.docs.ListStale(ctx, limit)
	if err != nil {
		return 0, err
	}
	var done int
	for i := range docs {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		if err := s.IndexDocument(ctx, &docs[i]); err != nil {
			logutil.GetLogger(ctx).Warn("reindex failed",
				zap.String("content_hash", docs[i].ContentHash), zap.Error(err))
			continue
		}
		done++
	}
	return done, nil
}

package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/corpusd/corpusd/internal/db"
	"github.com/corpusd/corpusd/internal/model"
	"github.com/corpusd/corpusd/internal/pkg/dbutil"
	appErr "github.com/corpusd/corpusd/internal/pkg/errors"
)

type ChunkRepo struct {
	pool             *db.Pool
	db               *sql.DB
	lexicalAvailable bool
	dim              int
}

func NewChunkRepo(pool *db.Pool, lexicalAvailable bool, dim int) *ChunkRepo {
	return &ChunkRepo{pool: pool, db: pool.Handle(), lexicalAvailable: lexicalAvailable, dim: dim}
}

// checkDims rejects a write-set containing any vector whose length differs
// from the provisioned column, before the transaction opens. Letting such a
// row reach the server would surface as an opaque data exception instead.
func (r *ChunkRepo) checkDims(chunks []model.Chunk) error {
	for _, chunk := range chunks {
		if len(chunk.Embedding) != r.dim {
			return &appErr.DimensionMismatchError{Want: r.dim, Got: len(chunk.Embedding)}
		}
	}
	return nil
}

// LexicalAvailable reports whether the lexical ranking path was usable at
// startup. Retrieval degrades to semantic-only when false.
func (r *ChunkRepo) LexicalAvailable() bool {
	return r.lexicalAvailable
}

// Replace swaps the full chunk set of a document in one transaction. Any
// failure (including a duplicate chunk index) rolls back, leaving the prior
// chunks intact.
func (r *ChunkRepo) Replace(ctx context.Context, documentID int64, chunks []model.Chunk) error {
	if err := r.checkDims(chunks); err != nil {
		return err
	}
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return dbutil.Classify(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM document_chunks WHERE document_id = $1`, documentID); err != nil {
		return dbutil.Classify(err)
	}
	const insert = `
		INSERT INTO document_chunks (document_id, chunk_index, content, embedding, start_offset, end_offset, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for _, chunk := range chunks {
		metadata, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return err
		}
		if chunk.Metadata == nil {
			metadata = []byte("{}")
		}
		if _, err := tx.ExecContext(ctx, insert,
			documentID,
			chunk.ChunkIndex,
			chunk.Content,
			pgvector.NewVector(chunk.Embedding),
			chunk.StartOffset,
			chunk.EndOffset,
			string(metadata),
		); err != nil {
			return fmt.Errorf("insert chunk %d: %w", chunk.ChunkIndex, dbutil.Classify(err))
		}
	}
	return dbutil.Classify(tx.Commit())
}

// Append upserts chunks by (document_id, chunk_index) without touching the
// rest of the document's chunk set. The migration uses it so a resumed run
// can safely re-apply records around its last checkpoint.
func (r *ChunkRepo) Append(ctx context.Context, documentID int64, chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := r.checkDims(chunks); err != nil {
		return err
	}
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return dbutil.Classify(err)
	}
	defer tx.Rollback()

	const upsert = `
		INSERT INTO document_chunks (document_id, chunk_index, content, embedding, start_offset, end_offset, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (document_id, chunk_index) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			start_offset = EXCLUDED.start_offset,
			end_offset = EXCLUDED.end_offset,
			metadata = EXCLUDED.metadata
	`
	for _, chunk := range chunks {
		metadata, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return err
		}
		if chunk.Metadata == nil {
			metadata = []byte("{}")
		}
		if _, err := tx.ExecContext(ctx, upsert,
			documentID,
			chunk.ChunkIndex,
			chunk.Content,
			pgvector.NewVector(chunk.Embedding),
			chunk.StartOffset,
			chunk.EndOffset,
			string(metadata),
		); err != nil {
			return fmt.Errorf("upsert chunk %d: %w", chunk.ChunkIndex, dbutil.Classify(err))
		}
	}
	return dbutil.Classify(tx.Commit())
}

func (r *ChunkRepo) ListByDocument(ctx context.Context, documentID int64) ([]model.Chunk, error) {
	const query = `
		SELECT id, document_id, chunk_index, content, embedding, start_offset, end_offset
		FROM document_chunks
		WHERE document_id = $1
		ORDER BY chunk_index ASC
	`
	rows, err := r.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	chunks := make([]model.Chunk, 0)
	for rows.Next() {
		var chunk model.Chunk
		var embedding pgvector.Vector
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.ChunkIndex, &chunk.Content,
			&embedding, &chunk.StartOffset, &chunk.EndOffset); err != nil {
			return nil, err
		}
		chunk.Embedding = embedding.Slice()
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// SemanticSearch ranks chunks of the eligible live documents by cosine
// similarity; the reported score is already 1 - distance, in [0,1].
func (r *ChunkRepo) SemanticSearch(ctx context.Context, queryVec []float32, documentIDs []int64, limit int) ([]model.ScoredChunk, error) {
	if len(documentIDs) == 0 {
		return []model.ScoredChunk{}, nil
	}
	const query = `
		SELECT c.id, c.document_id, d.content_hash, d.display_name, c.chunk_index, c.content,
			1 - (c.embedding <=> $1) AS score
		FROM document_chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE d.state = $2 AND c.document_id = ANY($3)
		ORDER BY c.embedding <=> $1
		LIMIT $4
	`
	rows, err := r.db.QueryContext(ctx, query,
		pgvector.NewVector(queryVec), model.DocumentStateNormal, pq.Array(documentIDs), limit)
	if err != nil {
		return nil, dbutil.Classify(err)
	}
	defer rows.Close()
	return scanScored(rows, func(c *model.ScoredChunk, score float64) {
		c.Semantic = clamp01(score)
	})
}

// LexicalSearch ranks the same eligible scope by text relevance. Raw scores
// come back as reported by the ranker; normalization happens per batch in
// the retriever.
func (r *ChunkRepo) LexicalSearch(ctx context.Context, queryText string, documentIDs []int64, limit int) ([]model.ScoredChunk, error) {
	if !r.lexicalAvailable {
		return nil, fmt.Errorf("%w: lexical index unavailable", appErr.ErrInternal)
	}
	if len(documentIDs) == 0 {
		return []model.ScoredChunk{}, nil
	}
	const query = `
		SELECT c.id, c.document_id, d.content_hash, d.display_name, c.chunk_index, c.content,
			ts_rank_cd(c.tsv, websearch_to_tsquery('english', $1)) AS score
		FROM document_chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE d.state = $2 AND c.document_id = ANY($3)
			AND c.tsv @@ websearch_to_tsquery('english', $1)
		ORDER BY score DESC
		LIMIT $4
	`
	rows, err := r.db.QueryContext(ctx, query,
		queryText, model.DocumentStateNormal, pq.Array(documentIDs), limit)
	if err != nil {
		return nil, dbutil.Classify(err)
	}
	defer rows.Close()
	return scanScored(rows, func(c *model.ScoredChunk, score float64) {
		c.Lexical = score
	})
}

func (r *ChunkRepo) DeleteByDocument(ctx context.Context, documentID int64) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM document_chunks WHERE document_id = $1`, documentID)
	return err
}

func scanScored(rows *sql.Rows, assign func(*model.ScoredChunk, float64)) ([]model.ScoredChunk, error) {
	results := make([]model.ScoredChunk, 0)
	for rows.Next() {
		var chunk model.ScoredChunk
		var score float64
		if err := rows.Scan(&chunk.ChunkID, &chunk.DocumentID, &chunk.DocumentHash,
			&chunk.DocumentName, &chunk.ChunkIndex, &chunk.Content, &score); err != nil {
			return nil, err
		}
		assign(&chunk, score)
		results = append(results, chunk)
	}
	return results, rows.Err()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/didi/gendry/builder"

	"github.com/corpusd/corpusd/internal/db"
	"github.com/corpusd/corpusd/internal/model"
	"github.com/corpusd/corpusd/internal/pkg/dbutil"
	appErr "github.com/corpusd/corpusd/internal/pkg/errors"
)

const documentColumns = `id, content_hash, location, display_name, source_type, source_url,
	ticket_id, repo, commit_hash, size_bytes, mime_type, metadata, ctime, mtime,
	indexed_at, state, deleted_at`

type DocumentRepo struct {
	db *sql.DB
}

func NewDocumentRepo(pool *db.Pool) *DocumentRepo {
	return &DocumentRepo{db: pool.Handle()}
}

// Upsert inserts or updates the row keyed by content hash. The soft-delete
// state is never touched implicitly: a re-ingested deleted document stays
// deleted until explicitly restored.
func (r *DocumentRepo) Upsert(ctx context.Context, doc *model.Document) (*model.Document, error) {
	now := time.Now().UnixMilli()
	if doc.Ctime == 0 {
		doc.Ctime = now
	}
	if doc.Mtime == 0 {
		doc.Mtime = now
	}
	metadata, err := json.Marshal(doc.Metadata)
	if err != nil {
		return nil, err
	}
	if doc.Metadata == nil {
		metadata = []byte("{}")
	}
	const query = `
		INSERT INTO documents (
			content_hash, location, display_name, source_type, source_url, ticket_id,
			repo, commit_hash, size_bytes, mime_type, metadata, ctime, mtime
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (content_hash) DO UPDATE SET
			location = EXCLUDED.location,
			display_name = EXCLUDED.display_name,
			source_type = EXCLUDED.source_type,
			source_url = EXCLUDED.source_url,
			ticket_id = EXCLUDED.ticket_id,
			repo = EXCLUDED.repo,
			commit_hash = EXCLUDED.commit_hash,
			size_bytes = EXCLUDED.size_bytes,
			mime_type = EXCLUDED.mime_type,
			metadata = EXCLUDED.metadata,
			mtime = EXCLUDED.mtime
		RETURNING ` + documentColumns
	row := r.db.QueryRowContext(ctx, query,
		doc.ContentHash,
		doc.Location,
		doc.DisplayName,
		doc.SourceType,
		doc.SourceURL,
		doc.TicketID,
		doc.Repo,
		doc.CommitHash,
		doc.SizeBytes,
		doc.MimeType,
		string(metadata),
		doc.Ctime,
		doc.Mtime,
	)
	out, err := scanDocument(row)
	if err != nil {
		return nil, dbutil.Classify(err)
	}
	return out, nil
}

func (r *DocumentRepo) GetByHash(ctx context.Context, hash string) (*model.Document, error) {
	const query = `SELECT ` + documentColumns + ` FROM documents WHERE content_hash = $1`
	doc, err := scanDocument(r.db.QueryRowContext(ctx, query, hash))
	if err == sql.ErrNoRows {
		return nil, appErr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *DocumentRepo) GetByID(ctx context.Context, id int64) (*model.Document, error) {
	const query = `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	doc, err := scanDocument(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, appErr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// SetState flips the soft-delete flag. Retrieval joins on state, so the
// change is visible to the next query with no cache to bust.
func (r *DocumentRepo) SetState(ctx context.Context, hash string, state int, deletedAt int64) error {
	const query = `UPDATE documents SET state = $1, deleted_at = $2 WHERE content_hash = $3`
	result, err := r.db.ExecContext(ctx, query, state, deletedAt, hash)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

// HardDelete removes the row; chunks cascade at the schema level.
func (r *DocumentRepo) HardDelete(ctx context.Context, hash string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE content_hash = $1`, hash)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func (r *DocumentRepo) StampIndexed(ctx context.Context, id int64, indexedAt int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE documents SET indexed_at = $1 WHERE id = $2`, indexedAt, id)
	return err
}

func (r *DocumentRepo) List(ctx context.Context, filter model.DocumentFilter) ([]model.Document, error) {
	where := map[string]interface{}{
		"_orderby": "ctime desc",
	}
	if !filter.IncludeDeleted {
		where["state"] = model.DocumentStateNormal
	}
	if filter.SourceType != "" {
		where["source_type"] = filter.SourceType
	}
	if filter.NameContains != "" {
		where["display_name like"] = "%" + filter.NameContains + "%"
	}
	if filter.Limit > 0 {
		where["_limit"] = []uint{filter.Offset, filter.Limit}
	}
	sqlStr, args, err := builder.BuildSelect("documents", where, []string{
		"id", "content_hash", "location", "display_name", "source_type", "source_url",
		"ticket_id", "repo", "commit_hash", "size_bytes", "mime_type", "metadata",
		"ctime", "mtime", "indexed_at", "state", "deleted_at",
	})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	docs := make([]model.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// ListStale returns live documents whose content changed after the last
// index pass, for the background reindex job.
func (r *DocumentRepo) ListStale(ctx context.Context, limit int) ([]model.Document, error) {
	const query = `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE state = $1 AND (indexed_at = 0 OR mtime > indexed_at)
		ORDER BY mtime ASC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, model.DocumentStateNormal, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	docs := make([]model.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*model.Document, error) {
	var doc model.Document
	var metadata []byte
	err := row.Scan(
		&doc.ID,
		&doc.ContentHash,
		&doc.Location,
		&doc.DisplayName,
		&doc.SourceType,
		&doc.SourceURL,
		&doc.TicketID,
		&doc.Repo,
		&doc.CommitHash,
		&doc.SizeBytes,
		&doc.MimeType,
		&metadata,
		&doc.Ctime,
		&doc.Mtime,
		&doc.IndexedAt,
		&doc.State,
		&doc.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		_ = json.Unmarshal(metadata, &doc.Metadata)
	}
	return &doc, nil
}

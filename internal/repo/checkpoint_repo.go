package repo

import (
	"context"
	"database/sql"
	"hash/fnv"
	"time"

	"github.com/corpusd/corpusd/internal/db"
	"github.com/corpusd/corpusd/internal/model"
	"github.com/corpusd/corpusd/internal/pkg/dbutil"
	appErr "github.com/corpusd/corpusd/internal/pkg/errors"
)

type CheckpointRepo struct {
	pool *db.Pool
	db   *sql.DB
}

func NewCheckpointRepo(pool *db.Pool) *CheckpointRepo {
	return &CheckpointRepo{pool: pool, db: pool.Handle()}
}

func (r *CheckpointRepo) Ensure(ctx context.Context, source string) error {
	const query = `
		INSERT INTO migration_checkpoints (source, status, mtime)
		VALUES ($1, $2, $3)
		ON CONFLICT (source) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query, source, model.MigrationStatusPending, time.Now().UnixMilli())
	return dbutil.Classify(err)
}

func (r *CheckpointRepo) Get(ctx context.Context, source string) (*model.MigrationCheckpoint, error) {
	const query = `
		SELECT source, status, batch_offset, total, processed, last_error, mtime
		FROM migration_checkpoints WHERE source = $1
	`
	row := r.db.QueryRowContext(ctx, query, source)
	var cp model.MigrationCheckpoint
	err := row.Scan(&cp.Source, &cp.Status, &cp.Offset, &cp.Total, &cp.Processed, &cp.LastError, &cp.Mtime)
	if err == sql.ErrNoRows {
		return nil, appErr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

// Update commits the checkpoint row; calling this after each batch is what
// makes the migration resumable.
func (r *CheckpointRepo) Update(ctx context.Context, cp *model.MigrationCheckpoint) error {
	const query = `
		UPDATE migration_checkpoints
		SET status = $1, batch_offset = $2, total = $3, processed = $4, last_error = $5, mtime = $6
		WHERE source = $7
	`
	result, err := r.db.ExecContext(ctx, query,
		cp.Status, cp.Offset, cp.Total, cp.Processed, cp.LastError, time.Now().UnixMilli(), cp.Source)
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

// AcquireRunLock takes the per-source advisory lock on a pinned connection.
// It does not block: a second concurrent run is rejected with ErrConflict.
// The lock lives for the connection's lifetime; release with ReleaseRunLock
// and then close the connection.
func (r *CheckpointRepo) AcquireRunLock(ctx context.Context, source string) (*sql.Conn, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	var locked bool
	if err := conn.QueryRowContext(ctx,
		`SELECT pg_try_advisory_lock($1)`, advisoryKey(source)).Scan(&locked); err != nil {
		conn.Close()
		return nil, err
	}
	if !locked {
		conn.Close()
		return nil, appErr.ErrConflict
	}
	return conn, nil
}

func (r *CheckpointRepo) ReleaseRunLock(ctx context.Context, conn *sql.Conn, source string) {
	var released bool
	_ = conn.QueryRowContext(ctx,
		`SELECT pg_advisory_unlock($1)`, advisoryKey(source)).Scan(&released)
	conn.Close()
}

func advisoryKey(source string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("migration:" + source))
	return int64(h.Sum64())
}

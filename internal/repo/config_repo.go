package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/corpusd/corpusd/internal/db"
	"github.com/corpusd/corpusd/internal/model"
	"github.com/corpusd/corpusd/internal/pkg/dbutil"
	appErr "github.com/corpusd/corpusd/internal/pkg/errors"
)

type ConfigRepo struct {
	pool *db.Pool
	db   *sql.DB
}

func NewConfigRepo(pool *db.Pool) *ConfigRepo {
	return &ConfigRepo{pool: pool, db: pool.Handle()}
}

// UpsertStatic writes the single static row, insert-or-replace.
func (r *ConfigRepo) UpsertStatic(ctx context.Context, cfg *model.StaticConfig) error {
	const query = `
		INSERT INTO static_config (
			id, deployment_name, embedding_model, embedding_dim, chunk_size, chunk_overlap,
			distance_metric, installed_pipelines, installed_models, installed_providers,
			auth_enabled, mtime
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			deployment_name = EXCLUDED.deployment_name,
			embedding_model = EXCLUDED.embedding_model,
			embedding_dim = EXCLUDED.embedding_dim,
			chunk_size = EXCLUDED.chunk_size,
			chunk_overlap = EXCLUDED.chunk_overlap,
			distance_metric = EXCLUDED.distance_metric,
			installed_pipelines = EXCLUDED.installed_pipelines,
			installed_models = EXCLUDED.installed_models,
			installed_providers = EXCLUDED.installed_providers,
			auth_enabled = EXCLUDED.auth_enabled,
			mtime = EXCLUDED.mtime
	`
	_, err := r.db.ExecContext(ctx, query,
		model.StaticConfigID,
		cfg.DeploymentName,
		cfg.EmbeddingModel,
		cfg.EmbeddingDim,
		cfg.ChunkSize,
		cfg.ChunkOverlap,
		cfg.DistanceMetric,
		pq.Array(cfg.InstalledPipelines),
		pq.Array(cfg.InstalledModels),
		pq.Array(cfg.InstalledProviders),
		cfg.AuthEnabled,
		cfg.Mtime,
	)
	return dbutil.Classify(err)
}

func (r *ConfigRepo) GetStatic(ctx context.Context) (*model.StaticConfig, error) {
	const query = `
		SELECT id, deployment_name, embedding_model, embedding_dim, chunk_size, chunk_overlap,
			distance_metric, installed_pipelines, installed_models, installed_providers,
			auth_enabled, mtime
		FROM static_config WHERE id = $1
	`
	row := r.db.QueryRowContext(ctx, query, model.StaticConfigID)
	var cfg model.StaticConfig
	err := row.Scan(
		&cfg.ID,
		&cfg.DeploymentName,
		&cfg.EmbeddingModel,
		&cfg.EmbeddingDim,
		&cfg.ChunkSize,
		&cfg.ChunkOverlap,
		&cfg.DistanceMetric,
		pq.Array(&cfg.InstalledPipelines),
		pq.Array(&cfg.InstalledModels),
		pq.Array(&cfg.InstalledProviders),
		&cfg.AuthEnabled,
		&cfg.Mtime,
	)
	if err == sql.ErrNoRows {
		return nil, appErr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SeedDynamic inserts the dynamic singleton with schema defaults if missing.
func (r *ConfigRepo) SeedDynamic(ctx context.Context) error {
	const query = `INSERT INTO dynamic_config (id, mtime) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`
	_, err := r.db.ExecContext(ctx, query, model.DynamicConfigID, time.Now().UnixMilli())
	return dbutil.Classify(err)
}

func (r *ConfigRepo) GetDynamic(ctx context.Context) (*model.DynamicConfig, error) {
	const query = `
		SELECT id, active_model, active_pipeline, temperature, max_tokens, top_p, top_k,
			active_prompt, retrieve_count, hybrid_enabled, semantic_weight, lexical_weight,
			updated_by, mtime, version
		FROM dynamic_config WHERE id = $1
	`
	row := r.db.QueryRowContext(ctx, query, model.DynamicConfigID)
	var cfg model.DynamicConfig
	err := row.Scan(
		&cfg.ID,
		&cfg.ActiveModel,
		&cfg.ActivePipeline,
		&cfg.Temperature,
		&cfg.MaxTokens,
		&cfg.TopP,
		&cfg.TopK,
		&cfg.ActivePrompt,
		&cfg.RetrieveCount,
		&cfg.HybridEnabled,
		&cfg.SemanticWeight,
		&cfg.LexicalWeight,
		&cfg.UpdatedBy,
		&cfg.Mtime,
		&cfg.Version,
	)
	if err == sql.ErrNoRows {
		return nil, appErr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GetDynamicVersion is the cheap read every cached reader compares against.
func (r *ConfigRepo) GetDynamicVersion(ctx context.Context) (int64, error) {
	var version int64
	err := r.db.QueryRowContext(ctx,
		`SELECT version FROM dynamic_config WHERE id = $1`, model.DynamicConfigID).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, appErr.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return version, nil
}

// UpdateDynamic writes the new row values and the audit entries in one
// transaction; the row-level lock on the singleton serializes writers.
func (r *ConfigRepo) UpdateDynamic(ctx context.Context, cfg *model.DynamicConfig, audits []model.ConfigAuditEntry) (*model.DynamicConfig, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, dbutil.Classify(err)
	}
	defer tx.Rollback()

	const update = `
		UPDATE dynamic_config SET
			active_model = $1, active_pipeline = $2, temperature = $3, max_tokens = $4,
			top_p = $5, top_k = $6, active_prompt = $7, retrieve_count = $8,
			hybrid_enabled = $9, semantic_weight = $10, lexical_weight = $11,
			updated_by = $12, mtime = $13, version = version + 1
		WHERE id = $14
		RETURNING version
	`
	var version int64
	err = tx.QueryRowContext(ctx, update,
		cfg.ActiveModel,
		cfg.ActivePipeline,
		cfg.Temperature,
		cfg.MaxTokens,
		cfg.TopP,
		cfg.TopK,
		cfg.ActivePrompt,
		cfg.RetrieveCount,
		cfg.HybridEnabled,
		cfg.SemanticWeight,
		cfg.LexicalWeight,
		cfg.UpdatedBy,
		cfg.Mtime,
		model.DynamicConfigID,
	).Scan(&version)
	if err == sql.ErrNoRows {
		return nil, appErr.ErrNotFound
	}
	if err != nil {
		return nil, dbutil.Classify(err)
	}

	const insertAudit = `
		INSERT INTO config_audit (actor, field, old_value, new_value, ctime)
		VALUES ($1, $2, $3, $4, $5)
	`
	for _, entry := range audits {
		if _, err := tx.ExecContext(ctx, insertAudit,
			entry.Actor, entry.Field, entry.OldValue, entry.NewValue, entry.Ctime); err != nil {
			return nil, dbutil.Classify(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, dbutil.Classify(err)
	}
	out := *cfg
	out.ID = model.DynamicConfigID
	out.Version = version
	return &out, nil
}

func (r *ConfigRepo) ListAudit(ctx context.Context, limit, offset uint) ([]model.ConfigAuditEntry, error) {
	const query = `
		SELECT id, actor, field, old_value, new_value, ctime
		FROM config_audit
		ORDER BY id DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := make([]model.ConfigAuditEntry, 0)
	for rows.Next() {
		var entry model.ConfigAuditEntry
		if err := rows.Scan(&entry.ID, &entry.Actor, &entry.Field, &entry.OldValue, &entry.NewValue, &entry.Ctime); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

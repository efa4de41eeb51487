package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/corpusd/corpusd/internal/config"
	appErr "github.com/corpusd/corpusd/internal/pkg/errors"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Pool bounds the connection set and makes acquisition fail with
// ErrPoolExhausted after the configured timeout instead of queuing forever.
type Pool struct {
	db             *sql.DB
	acquireTimeout time.Duration
}

func Open(cfg config.DatabaseConfig) (*Pool, error) {
	dsn := cfg.DSN
	if dsn == "" {
		sslmode := cfg.SSLMode
		if sslmode == "" {
			sslmode = "disable"
		}
		dsn = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslmode)
	}
	handle, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	handle.SetMaxOpenConns(cfg.MaxConns)
	handle.SetMaxIdleConns(cfg.MinIdleConns)
	handle.SetConnMaxLifetime(time.Duration(cfg.ConnLifetimeSec) * time.Second)
	if err := handle.Ping(); err != nil {
		return nil, err
	}
	return &Pool{
		db:             handle,
		acquireTimeout: time.Duration(cfg.AcquireTimeoutMS) * time.Millisecond,
	}, nil
}

// Handle exposes the underlying *sql.DB for read paths; those rely on the
// pool bounds set at Open plus the caller's context.
func (p *Pool) Handle() *sql.DB {
	return p.db
}

// Acquire pins one connection, waiting at most the acquire timeout.
// A non-positive timeout means the caller's context is the only deadline.
func (p *Pool) Acquire(ctx context.Context) (*sql.Conn, error) {
	acquireCtx := ctx
	if p.acquireTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, p.acquireTimeout)
		defer cancel()
	}
	conn, err := p.db.Conn(acquireCtx)
	if err != nil {
		if acquireCtx.Err() != nil && ctx.Err() == nil {
			return nil, appErr.ErrPoolExhausted
		}
		return nil, err
	}
	return conn, nil
}

func (p *Pool) Close() error {
	return p.db.Close()
}

func ApplyMigrations(db *sql.DB) error {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	for _, file := range files {
		content, err := fs.ReadFile(migrationsFS, "migrations/"+file)
		if err != nil {
			return err
		}
		queries := strings.Split(string(content), ";")
		for _, q := range queries {
			q = strings.TrimSpace(q)
			if q == "" {
				continue
			}
			if _, err := db.Exec(q); err != nil {
				if strings.Contains(err.Error(), "already exists") {
					continue
				}
				return fmt.Errorf("execute query in %s: %w", file, err)
			}
		}
	}
	return nil
}

// EnsureVectorSchema creates the embedding column and its graph index with
// the deployed dimension. Kept out of the static migrations because the
// dimension comes from configuration, and hnsw needs no training pass so
// indexing proceeds incrementally as documents arrive.
func EnsureVectorSchema(db *sql.DB, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("invalid embedding dimension: %d", dim)
	}
	stmts := []string{
		fmt.Sprintf(`ALTER TABLE document_chunks ADD COLUMN IF NOT EXISTS embedding vector(%d)`, dim),
		`CREATE INDEX IF NOT EXISTS idx_document_chunks_embedding ON document_chunks USING hnsw (embedding vector_cosine_ops)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("ensure vector schema: %w", err)
		}
	}
	return nil
}

// ProbeLexical checks whether the server supports the lexical ranking path.
// A false result is not fatal: retrieval degrades to semantic-only.
func ProbeLexical(ctx context.Context, db *sql.DB) bool {
	var ok bool
	err := db.QueryRowContext(ctx,
		`SELECT websearch_to_tsquery('english', 'probe') IS NOT NULL`).Scan(&ok)
	if err != nil {
		return false
	}
	var hasColumn bool
	err = db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.columns
			WHERE table_name = 'document_chunks' AND column_name = 'tsv'
		)`).Scan(&hasColumn)
	return err == nil && ok && hasColumn
}

package repo

import (
	"context"
	"database/sql"

	"github.com/corpusd/corpusd/internal/db"
	"github.com/corpusd/corpusd/internal/model"
	"github.com/corpusd/corpusd/internal/pkg/dbutil"
	appErr "github.com/corpusd/corpusd/internal/pkg/errors"
)

type CredentialRepo struct {
	db *sql.DB
}

func NewCredentialRepo(pool *db.Pool) *CredentialRepo {
	return &CredentialRepo{db: pool.Handle()}
}

func (r *CredentialRepo) Upsert(ctx context.Context, cred *model.Credential) error {
	const query = `
		INSERT INTO user_credentials (user_id, provider, ciphertext, ctime, mtime)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			ciphertext = EXCLUDED.ciphertext,
			mtime = EXCLUDED.mtime
	`
	_, err := r.db.ExecContext(ctx, query,
		cred.UserID, cred.Provider, cred.Ciphertext, cred.Ctime, cred.Mtime)
	return dbutil.Classify(err)
}

func (r *CredentialRepo) Get(ctx context.Context, userID, provider string) (*model.Credential, error) {
	const query = `
		SELECT user_id, provider, ciphertext, ctime, mtime
		FROM user_credentials
		WHERE user_id = $1 AND provider = $2
	`
	row := r.db.QueryRowContext(ctx, query, userID, provider)
	var cred model.Credential
	err := row.Scan(&cred.UserID, &cred.Provider, &cred.Ciphertext, &cred.Ctime, &cred.Mtime)
	if err == sql.ErrNoRows {
		return nil, appErr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

func (r *CredentialRepo) Delete(ctx context.Context, userID, provider string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM user_credentials WHERE user_id = $1 AND provider = $2`, userID, provider)
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

// ListProviders reports which providers have a stored key, never the values.
func (r *CredentialRepo) ListProviders(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT provider FROM user_credentials WHERE user_id = $1 ORDER BY provider`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	providers := make([]string, 0)
	for rows.Next() {
		var provider string
		if err := rows.Scan(&provider); err != nil {
			return nil, err
		}
		providers = append(providers, provider)
	}
	return providers, rows.Err()
}

// Count backs the startup check: vault rows without a vault key are fatal.
func (r *CredentialRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_credentials`).Scan(&count)
	return count, err
}

package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/didi/gendry/builder"

	"github.com/corpusd/corpusd/internal/db"
	"github.com/corpusd/corpusd/internal/model"
	"github.com/corpusd/corpusd/internal/pkg/dbutil"
	appErr "github.com/corpusd/corpusd/internal/pkg/errors"
)

type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(pool *db.Pool) *UserRepo {
	return &UserRepo{db: pool.Handle()}
}

// Ensure creates the user row on first interaction if it does not exist.
func (r *UserRepo) Ensure(ctx context.Context, userID string) error {
	now := time.Now().UnixMilli()
	const query = `
		INSERT INTO users (id, ctime, mtime) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query, userID, now, now)
	return dbutil.Classify(err)
}

func (r *UserRepo) Get(ctx context.Context, userID string) (*model.User, error) {
	const query = `
		SELECT id, email, display_name, theme, preferred_model, preferred_temperature, ctime, mtime
		FROM users WHERE id = $1
	`
	row := r.db.QueryRowContext(ctx, query, userID)
	var user model.User
	err := row.Scan(&user.ID, &user.Email, &user.DisplayName, &user.Theme,
		&user.PreferredModel, &user.PreferredTemperature, &user.Ctime, &user.Mtime)
	if err == sql.ErrNoRows {
		return nil, appErr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepo) UpdatePreferences(ctx context.Context, user *model.User) error {
	where := map[string]interface{}{
		"id": user.ID,
	}
	update := map[string]interface{}{
		"email":                 user.Email,
		"display_name":          user.DisplayName,
		"theme":                 user.Theme,
		"preferred_model":       user.PreferredModel,
		"preferred_temperature": user.PreferredTemperature,
		"mtime":                 time.Now().UnixMilli(),
	}
	sqlStr, args, err := builder.BuildUpdate("users", where, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
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

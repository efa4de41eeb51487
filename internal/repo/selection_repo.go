package repo

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"github.com/corpusd/corpusd/internal/db"
	"github.com/corpusd/corpusd/internal/model"
	"github.com/corpusd/corpusd/internal/pkg/dbutil"
)

type SelectionRepo struct {
	db *sql.DB
}

func NewSelectionRepo(pool *db.Pool) *SelectionRepo {
	return &SelectionRepo{db: pool.Handle()}
}

func (r *SelectionRepo) SetUserDefault(ctx context.Context, d *model.UserDocumentDefault) error {
	const query = `
		INSERT INTO user_document_defaults (user_id, document_id, enabled, mtime)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, document_id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			mtime = EXCLUDED.mtime
	`
	_, err := r.db.ExecContext(ctx, query, d.UserID, d.DocumentID, d.Enabled, d.Mtime)
	return dbutil.Classify(err)
}

func (r *SelectionRepo) ClearUserDefault(ctx context.Context, userID string, documentID int64) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM user_document_defaults WHERE user_id = $1 AND document_id = $2`,
		userID, documentID)
	return err
}

func (r *SelectionRepo) SetConversationOverride(ctx context.Context, o *model.ConversationDocumentOverride) error {
	const query = `
		INSERT INTO conversation_document_overrides (conversation_id, document_id, enabled, mtime)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (conversation_id, document_id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			mtime = EXCLUDED.mtime
	`
	_, err := r.db.ExecContext(ctx, query, o.ConversationID, o.DocumentID, o.Enabled, o.Mtime)
	return dbutil.Classify(err)
}

func (r *SelectionRepo) ClearConversationOverride(ctx context.Context, conversationID string, documentID int64) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM conversation_document_overrides WHERE conversation_id = $1 AND document_id = $2`,
		conversationID, documentID)
	return err
}

// Effective resolves the three-tier chain for a batch of documents in one
// read-only query: override, else user default, else enabled.
func (r *SelectionRepo) Effective(ctx context.Context, userID, conversationID string, documentIDs []int64) ([]model.EffectiveSelection, error) {
	if len(documentIDs) == 0 {
		return []model.EffectiveSelection{}, nil
	}
	const query = `
		SELECT d.id,
			COALESCE(o.enabled, u.enabled, TRUE) AS enabled,
			CASE
				WHEN o.enabled IS NOT NULL THEN 'conversation'
				WHEN u.enabled IS NOT NULL THEN 'user'
				ELSE 'system'
			END AS source
		FROM documents d
		LEFT JOIN conversation_document_overrides o
			ON o.document_id = d.id AND o.conversation_id = $1
		LEFT JOIN user_document_defaults u
			ON u.document_id = d.id AND u.user_id = $2
		WHERE d.id = ANY($3)
	`
	rows, err := r.db.QueryContext(ctx, query, conversationID, userID, pq.Array(documentIDs))
	if err != nil {
		return nil, dbutil.Classify(err)
	}
	defer rows.Close()
	results := make([]model.EffectiveSelection, 0, len(documentIDs))
	for rows.Next() {
		var sel model.EffectiveSelection
		if err := rows.Scan(&sel.DocumentID, &sel.Enabled, &sel.Source); err != nil {
			return nil, err
		}
		results = append(results, sel)
	}
	return results, rows.Err()
}

// EligibleDocumentIDs returns every live document the (user, conversation)
// pair may retrieve from, resolved with the same single-query coalesce.
func (r *SelectionRepo) EligibleDocumentIDs(ctx context.Context, userID, conversationID string) ([]int64, error) {
	const query = `
		SELECT d.id
		FROM documents d
		LEFT JOIN conversation_document_overrides o
			ON o.document_id = d.id AND o.conversation_id = $1
		LEFT JOIN user_document_defaults u
			ON u.document_id = d.id AND u.user_id = $2
		WHERE d.state = $3 AND COALESCE(o.enabled, u.enabled, TRUE)
	`
	rows, err := r.db.QueryContext(ctx, query, conversationID, userID, model.DocumentStateNormal)
	if err != nil {
		return nil, dbutil.Classify(err)
	}
	defer rows.Close()
	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

package service

import (
	"context"
	"time"

	"github.com/corpusd/corpusd/internal/model"
	"github.com/corpusd/corpusd/internal/repo"
)

// SelectionService manages per-user and per-conversation document toggles.
// Missing rows mean "inherit": conversation falls back to user, user falls
// back to the system default of enabled.
type SelectionService struct {
	selections *repo.SelectionRepo
	users      *repo.UserRepo
	docs       *repo.DocumentRepo
}

func NewSelectionService(selections *repo.SelectionRepo, users *repo.UserRepo, docs *repo.DocumentRepo) *SelectionService {
	return &SelectionService{selections: selections, users: users, docs: docs}
}

func (s *SelectionService) SetUserDefault(ctx context.Context, userID string, documentID int64, enabled bool) error {
	if _, err := s.docs.GetByID(ctx, documentID); err != nil {
		return err
	}
	if err := s.users.Ensure(ctx, userID); err != nil {
		return err
	}
	return s.selections.SetUserDefault(ctx, &model.UserDocumentDefault{
		UserID:     userID,
		DocumentID: documentID,
		Enabled:    enabled,
		Mtime:      time.Now().UnixMilli(),
	})
}

// ClearUserDefault removes the stored row so the document inherits the
// system default again.
func (s *SelectionService) ClearUserDefault(ctx context.Context, userID string, documentID int64) error {
	return s.selections.ClearUserDefault(ctx, userID, documentID)
}

func (s *SelectionService) SetConversationOverride(ctx context.Context, userID, conversationID string, documentID int64, enabled bool) error {
	if _, err := s.docs.GetByID(ctx, documentID); err != nil {
		return err
	}
	if err := s.users.Ensure(ctx, userID); err != nil {
		return err
	}
	return s.selections.SetConversationOverride(ctx, &model.ConversationDocumentOverride{
		ConversationID: conversationID,
		DocumentID:     documentID,
		Enabled:        enabled,
		Mtime:          time.Now().UnixMilli(),
	})
}

func (s *SelectionService) ClearConversationOverride(ctx context.Context, conversationID string, documentID int64) error {
	return s.selections.ClearConversationOverride(ctx, conversationID, documentID)
}

// Effective resolves enablement plus the deciding tier. An empty documentIDs
// resolves the whole live catalog.
func (s *SelectionService) Effective(ctx context.Context, userID, conversationID string, documentIDs []int64) ([]model.EffectiveSelection, error) {
	if len(documentIDs) == 0 {
		docs, err := s.docs.List(ctx, model.DocumentFilter{Limit: 500})
		if err != nil {
			return nil, err
		}
		for _, d := range docs {
			documentIDs = append(documentIDs, d.ID)
		}
		if len(documentIDs) == 0 {
			return []model.EffectiveSelection{}, nil
		}
	}
	return s.selections.Effective(ctx, userID, conversationID, documentIDs)
}

// IsEnabled answers for a single document.
func (s *SelectionService) IsEnabled(ctx context.Context, userID, conversationID string, documentID int64) (bool, error) {
	resolved, err := s.selections.Effective(ctx, userID, conversationID, []int64{documentID})
	if err != nil {
		return false, err
	}
	if len(resolved) == 0 {
		return true, nil
	}
	return resolved[0].Enabled, nil
}

// EligibleDocumentIDs is the retrieval-side view: live documents whose
// resolved enablement is true.
func (s *SelectionService) EligibleDocumentIDs(ctx context.Context, userID, conversationID string) ([]int64, error) {
	return s.selections.EligibleDocumentIDs(ctx, userID, conversationID)
}

package repo_test

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/corpusd/corpusd/internal/db"
	"github.com/corpusd/corpusd/internal/model"
	"github.com/corpusd/corpusd/internal/repo"
	"github.com/corpusd/corpusd/test/testutil"
)

func newTestID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func mustRegisterDoc(t *testing.T, pool *db.Pool) *model.Document {
	t.Helper()
	docs := repo.NewDocumentRepo(pool)
	doc, err := docs.Upsert(context.Background(), &model.Document{
		ContentHash: newTestID(),
		DisplayName: "doc-" + newTestID()[:8],
		SourceType:  model.SourceTypeLocalFile,
	})
	require.NoError(t, err)
	return doc
}

func mustEnsureUser(t *testing.T, pool *db.Pool) string {
	t.Helper()
	userID := "user-" + newTestID()[:12]
	require.NoError(t, repo.NewUserRepo(pool).Ensure(context.Background(), userID))
	return userID
}

// Every combination of (override, default) must resolve with the override
// first, then the user default, then enabled.
func TestSelectionResolutionTiers(t *testing.T) {
	pool, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()

	selections := repo.NewSelectionRepo(pool)
	userID := mustEnsureUser(t, pool)
	conversationID := "conv-" + newTestID()[:12]
	now := time.Now().UnixMilli()

	cases := []struct {
		name       string
		override   *bool
		userDef    *bool
		wantOn     bool
		wantSource string
	}{
		{"no rows", nil, nil, true, model.SelectionSourceSystem},
		{"user on", nil, boolPtr(true), true, model.SelectionSourceUser},
		{"user off", nil, boolPtr(false), false, model.SelectionSourceUser},
		{"override on", boolPtr(true), nil, true, model.SelectionSourceConversation},
		{"override off", boolPtr(false), nil, false, model.SelectionSourceConversation},
		{"override on beats user off", boolPtr(true), boolPtr(false), true, model.SelectionSourceConversation},
		{"override off beats user on", boolPtr(false), boolPtr(true), false, model.SelectionSourceConversation},
		{"both on", boolPtr(true), boolPtr(true), true, model.SelectionSourceConversation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc := mustRegisterDoc(t, pool)
			if tc.userDef != nil {
				require.NoError(t, selections.SetUserDefault(ctx, &model.UserDocumentDefault{
					UserID: userID, DocumentID: doc.ID, Enabled: *tc.userDef, Mtime: now,
				}))
			}
			if tc.override != nil {
				require.NoError(t, selections.SetConversationOverride(ctx, &model.ConversationDocumentOverride{
					ConversationID: conversationID, DocumentID: doc.ID, Enabled: *tc.override, Mtime: now,
				}))
			}
			resolved, err := selections.Effective(ctx, userID, conversationID, []int64{doc.ID})
			require.NoError(t, err)
			require.Len(t, resolved, 1)
			require.Equal(t, tc.wantOn, resolved[0].Enabled)
			require.Equal(t, tc.wantSource, resolved[0].Source)
		})
	}
}

func TestSelectionClearRestoresInheritance(t *testing.T) {
	pool, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()

	selections := repo.NewSelectionRepo(pool)
	userID := mustEnsureUser(t, pool)
	conversationID := "conv-" + newTestID()[:12]
	doc := mustRegisterDoc(t, pool)
	now := time.Now().UnixMilli()

	require.NoError(t, selections.SetUserDefault(ctx, &model.UserDocumentDefault{
		UserID: userID, DocumentID: doc.ID, Enabled: false, Mtime: now,
	}))
	require.NoError(t, selections.SetConversationOverride(ctx, &model.ConversationDocumentOverride{
		ConversationID: conversationID, DocumentID: doc.ID, Enabled: true, Mtime: now,
	}))

	require.NoError(t, selections.ClearConversationOverride(ctx, conversationID, doc.ID))
	resolved, err := selections.Effective(ctx, userID, conversationID, []int64{doc.ID})
	require.NoError(t, err)
	require.Equal(t, model.SelectionSourceUser, resolved[0].Source)
	require.False(t, resolved[0].Enabled)

	require.NoError(t, selections.ClearUserDefault(ctx, userID, doc.ID))
	resolved, err = selections.Effective(ctx, userID, conversationID, []int64{doc.ID})
	require.NoError(t, err)
	require.Equal(t, model.SelectionSourceSystem, resolved[0].Source)
	require.True(t, resolved[0].Enabled)
}

func TestEligibleDocumentIDsExcludesDisabledAndDeleted(t *testing.T) {
	pool, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()

	docs := repo.NewDocumentRepo(pool)
	selections := repo.NewSelectionRepo(pool)
	userID := mustEnsureUser(t, pool)
	conversationID := "conv-" + newTestID()[:12]
	now := time.Now().UnixMilli()

	enabled := mustRegisterDoc(t, pool)
	disabledByUser := mustRegisterDoc(t, pool)
	disabledByConv := mustRegisterDoc(t, pool)
	deleted := mustRegisterDoc(t, pool)

	require.NoError(t, selections.SetUserDefault(ctx, &model.UserDocumentDefault{
		UserID: userID, DocumentID: disabledByUser.ID, Enabled: false, Mtime: now,
	}))
	require.NoError(t, selections.SetConversationOverride(ctx, &model.ConversationDocumentOverride{
		ConversationID: conversationID, DocumentID: disabledByConv.ID, Enabled: false, Mtime: now,
	}))
	require.NoError(t, docs.SetState(ctx, deleted.ContentHash, model.DocumentStateDeleted, now))

	ids, err := selections.EligibleDocumentIDs(ctx, userID, conversationID)
	require.NoError(t, err)
	require.Contains(t, ids, enabled.ID)
	require.NotContains(t, ids, disabledByUser.ID)
	require.NotContains(t, ids, disabledByConv.ID)
	require.NotContains(t, ids, deleted.ID)
}

func boolPtr(v bool) *bool { return &v }

package model

// Enablement tiers, strongest first: conversation override, user default,
// system default (enabled). Only disagreements with the tier above are stored.
const (
	SelectionSourceConversation = "conversation"
	SelectionSourceUser         = "user"
	SelectionSourceSystem       = "system"
)

type UserDocumentDefault struct {
	UserID     string `json:"user_id"`
	DocumentID int64  `json:"document_id"`
	Enabled    bool   `json:"enabled"`
	Mtime      int64  `json:"mtime"`
}

type ConversationDocumentOverride struct {
	ConversationID string `json:"conversation_id"`
	DocumentID     int64  `json:"document_id"`
	Enabled        bool   `json:"enabled"`
	Mtime          int64  `json:"mtime"`
}

// EffectiveSelection is the resolved enablement for one document plus the
// tier that decided it.
type EffectiveSelection struct {
	DocumentID int64  `json:"document_id"`
	Enabled    bool   `json:"enabled"`
	Source     string `json:"source"`
}

package model

const (
	DocumentStateNormal  = 1
	DocumentStateDeleted = 2
)

const (
	SourceTypeLocalFile = "local_file"
	SourceTypeWeb       = "web"
	SourceTypeTicket    = "ticket"
	SourceTypeGit       = "git"
	SourceTypeUnknown   = "unknown"
)

func ValidSourceType(s string) bool {
	switch s {
	case SourceTypeLocalFile, SourceTypeWeb, SourceTypeTicket, SourceTypeGit, SourceTypeUnknown:
		return true
	}
	return false
}

// Document is a catalog row. ContentHash is the stable identity; collectors
// create these and never write storage themselves.
type Document struct {
	ID          int64             `json:"id"`
	ContentHash string            `json:"content_hash"`
	Location    string            `json:"location"`
	DisplayName string            `json:"display_name"`
	SourceType  string            `json:"source_type"`
	SourceURL   string            `json:"source_url,omitempty"`
	TicketID    string            `json:"ticket_id,omitempty"`
	Repo        string            `json:"repo,omitempty"`
	CommitHash  string            `json:"commit_hash,omitempty"`
	SizeBytes   int64             `json:"size_bytes"`
	MimeType    string            `json:"mime_type"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Ctime       int64             `json:"ctime"`
	Mtime       int64             `json:"mtime"`
	IndexedAt   int64             `json:"indexed_at"`
	State       int               `json:"state"`
	DeletedAt   int64             `json:"deleted_at,omitempty"`
}

type DocumentFilter struct {
	SourceType     string
	NameContains   string
	IncludeDeleted bool
	Limit          uint
	Offset         uint
}

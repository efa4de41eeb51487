package model

const (
	MigrationSourceLegacyVectors = "legacy_vectors"
	MigrationSourceLegacyCatalog = "legacy_catalog"
)

const (
	MigrationStatusPending   = "pending"
	MigrationStatusAnalyzing = "analyzing"
	MigrationStatusMigrating = "migrating"
	MigrationStatusCompleted = "completed"
	MigrationStatusFailed    = "failed"
)

func ValidMigrationSource(s string) bool {
	return s == MigrationSourceLegacyVectors || s == MigrationSourceLegacyCatalog
}

// MigrationCheckpoint records per-source progress. Offset is the number of
// legacy records already committed, so a re-invocation resumes rather than
// restarting.
type MigrationCheckpoint struct {
	Source    string `json:"source"`
	Status    string `json:"status"`
	Offset    int64  `json:"offset"`
	Total     int64  `json:"total"`
	Processed int64  `json:"processed"`
	LastError string `json:"last_error,omitempty"`
	Mtime     int64  `json:"mtime"`
}

package model

// StaticConfigID and DynamicConfigID pin both config tables to one row each;
// the schema backs this with a CHECK constraint.
const (
	StaticConfigID  = 1
	DynamicConfigID = 1
)

// StaticConfig is the deploy-time configuration singleton. It is loaded once
// at process start and immutable afterwards.
type StaticConfig struct {
	ID                 int64    `json:"id"`
	DeploymentName     string   `json:"deployment_name"`
	EmbeddingModel     string   `json:"embedding_model"`
	EmbeddingDim       int      `json:"embedding_dim"`
	ChunkSize          int      `json:"chunk_size"`
	ChunkOverlap       int      `json:"chunk_overlap"`
	DistanceMetric     string   `json:"distance_metric"`
	InstalledPipelines []string `json:"installed_pipelines"`
	InstalledModels    []string `json:"installed_models"`
	InstalledProviders []string `json:"installed_providers"`
	AuthEnabled        bool     `json:"auth_enabled"`
	Mtime              int64    `json:"mtime"`
}

// DynamicConfig is the runtime-mutable configuration singleton. Version is
// bumped on every committed update and drives cache invalidation.
type DynamicConfig struct {
	ID             int64   `json:"id"`
	ActiveModel    string  `json:"active_model"`
	ActivePipeline string  `json:"active_pipeline"`
	Temperature    float64 `json:"temperature"`
	MaxTokens      int     `json:"max_tokens"`
	TopP           float64 `json:"top_p"`
	TopK           int     `json:"top_k"`
	ActivePrompt   string  `json:"active_prompt"`
	RetrieveCount  int     `json:"retrieve_count"`
	HybridEnabled  bool    `json:"hybrid_enabled"`
	SemanticWeight float64 `json:"semantic_weight"`
	LexicalWeight  float64 `json:"lexical_weight"`
	UpdatedBy      string  `json:"updated_by"`
	Mtime          int64   `json:"mtime"`
	Version        int64   `json:"version"`
}

// DynamicConfigPatch carries only the fields an update wants to change.
type DynamicConfigPatch struct {
	ActiveModel    *string  `json:"active_model,omitempty"`
	ActivePipeline *string  `json:"active_pipeline,omitempty"`
	Temperature    *float64 `json:"temperature,omitempty"`
	MaxTokens      *int     `json:"max_tokens,omitempty"`
	TopP           *float64 `json:"top_p,omitempty"`
	TopK           *int     `json:"top_k,omitempty"`
	ActivePrompt   *string  `json:"active_prompt,omitempty"`
	RetrieveCount  *int     `json:"retrieve_count,omitempty"`
	HybridEnabled  *bool    `json:"hybrid_enabled,omitempty"`
	SemanticWeight *float64 `json:"semantic_weight,omitempty"`
	LexicalWeight  *float64 `json:"lexical_weight,omitempty"`
}

type ConfigAuditEntry struct {
	ID       int64  `json:"id"`
	Actor    string `json:"actor"`
	Field    string `json:"field"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
	Ctime    int64  `json:"ctime"`
}

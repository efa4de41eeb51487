package model

// Chunk is one embedded slice of a document. ChunkIndex is zero-based and
// unique within the parent document; Embedding length must equal the
// deployed dimension.
type Chunk struct {
	ID          int64             `json:"id"`
	DocumentID  int64             `json:"document_id"`
	ChunkIndex  int               `json:"chunk_index"`
	Content     string            `json:"content"`
	Embedding   []float32         `json:"-"`
	StartOffset int               `json:"start_offset"`
	EndOffset   int               `json:"end_offset"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ScoredChunk is a retrieval candidate with per-signal and fused scores.
type ScoredChunk struct {
	ChunkID      int64   `json:"chunk_id"`
	DocumentID   int64   `json:"document_id"`
	DocumentHash string  `json:"document_hash"`
	DocumentName string  `json:"document_name"`
	ChunkIndex   int     `json:"chunk_index"`
	Content      string  `json:"content"`
	Semantic     float64 `json:"semantic_score"`
	Lexical      float64 `json:"lexical_score"`
	Combined     float64 `json:"combined_score"`
}

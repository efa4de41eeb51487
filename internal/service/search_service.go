package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/corpusd/corpusd/internal/ai"
	"github.com/corpusd/corpusd/internal/model"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// overfetch doubles both candidate pools so fusion has enough overlap to
// reorder before the final cut.
const overfetch = 2

// VectorRetriever is the slice of chunk storage the search path needs.
type VectorRetriever interface {
	SemanticSearch(ctx context.Context, queryVec []float32, documentIDs []int64, limit int) ([]model.ScoredChunk, error)
	LexicalSearch(ctx context.Context, queryText string, documentIDs []int64, limit int) ([]model.ScoredChunk, error)
	LexicalAvailable() bool
}

type eligibilityResolver interface {
	EligibleDocumentIDs(ctx context.Context, userID, conversationID string) ([]int64, error)
}

type dynamicProvider interface {
	Dynamic(ctx context.Context) (*model.DynamicConfig, error)
}

// SearchService runs hybrid retrieval: semantic and lexical signals fetched
// against the caller's eligible document set, fused by configured weights.
type SearchService struct {
	retriever VectorRetriever
	resolver  eligibilityResolver
	cfg       dynamicProvider
	embedder  ai.IEmbedder

	lexicalWarn sync.Once
}

func NewSearchService(retriever VectorRetriever, resolver eligibilityResolver, cfg dynamicProvider, embedder ai.IEmbedder) *SearchService {
	return &SearchService{retriever: retriever, resolver: resolver, cfg: cfg, embedder: embedder}
}

// Search retrieves the top chunks for the query. limit <= 0 means the
// configured retrieve count. An eligibility failure is a hard error; a
// missing signal degrades to the other one.
func (s *SearchService) Search(ctx context.Context, userID, conversationID, query string, limit int) ([]model.ScoredChunk, error) {
	if strings.TrimSpace(query) == "" {
		return []model.ScoredChunk{}, nil
	}
	cfg, err := s.cfg.Dynamic(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = cfg.RetrieveCount
	}
	if limit > 100 {
		limit = 100
	}

	// Never guess eligibility. If the selection lookup fails the search
	// fails with it rather than exposing documents the caller turned off.
	docIDs, err := s.resolver.EligibleDocumentIDs(ctx, userID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("resolve eligible documents: %w", err)
	}
	if len(docIDs) == 0 {
		return []model.ScoredChunk{}, nil
	}

	pool := limit * overfetch
	useLexical := cfg.HybridEnabled && s.retriever.LexicalAvailable()
	if cfg.HybridEnabled && !s.retriever.LexicalAvailable() {
		s.lexicalWarn.Do(func() {
			logutil.GetLogger(ctx).Warn("full-text search unavailable, serving semantic-only results")
		})
	}

	var semantic []model.ScoredChunk
	queryVec, err := s.embedder.Embed(ctx, query, ai.TaskRetrievalQuery)
	switch {
	case err == nil:
		semantic, err = s.retriever.SemanticSearch(ctx, queryVec, docIDs, pool)
		if err != nil {
			return nil, fmt.Errorf("semantic search: %w", err)
		}
	case stderrors.Is(err, ai.ErrUnavailable) && useLexical:
		logutil.GetLogger(ctx).Warn("embedding provider unavailable, serving lexical-only results", zap.Error(err))
	default:
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var lexical []model.ScoredChunk
	if useLexical {
		lexical, err = s.retriever.LexicalSearch(ctx, query, docIDs, pool)
		if err != nil {
			if semantic == nil {
				return nil, fmt.Errorf("lexical search: %w", err)
			}
			logutil.GetLogger(ctx).Warn("lexical search failed, serving semantic-only results", zap.Error(err))
			lexical = nil
		}
	}

	fused := fuse(semantic, lexical, cfg.SemanticWeight, cfg.LexicalWeight)
	if len(fused) > limit {
		fused = fused[:limit]
	}
	return fused, nil
}

// fuse merges both candidate lists by chunk id. Lexical scores are rescaled
// by the batch maximum so both signals live on [0, 1]; a chunk missing from
// one list scores zero on that side. Ties break toward the earlier chunk of
// the lower-numbered document, keeping result order stable across runs.
func fuse(semantic, lexical []model.ScoredChunk, semanticWeight, lexicalWeight float64) []model.ScoredChunk {
	merged := make(map[int64]*model.ScoredChunk, len(semantic)+len(lexical))
	for i := range semantic {
		c := semantic[i]
		c.Lexical = 0
		merged[c.ChunkID] = &c
	}

	var maxLex float64
	for i := range lexical {
		if lexical[i].Lexical > maxLex {
			maxLex = lexical[i].Lexical
		}
	}
	for i := range lexical {
		c := lexical[i]
		if maxLex > 0 {
			c.Lexical = c.Lexical / maxLex
		}
		if existing, ok := merged[c.ChunkID]; ok {
			existing.Lexical = c.Lexical
		} else {
			c.Semantic = 0
			merged[c.ChunkID] = &c
		}
	}

	out := make([]model.ScoredChunk, 0, len(merged))
	for _, c := range merged {
		c.Combined = semanticWeight*c.Semantic + lexicalWeight*c.Lexical
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Combined != out[j].Combined {
			return out[i].Combined > out[j].Combined
		}
		if out[i].ChunkIndex != out[j].ChunkIndex {
			return out[i].ChunkIndex < out[j].ChunkIndex
		}
		return out[i].DocumentID < out[j].DocumentID
	})
	return out
}

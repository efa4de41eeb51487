package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/corpusd/corpusd/internal/ai"
)

// WrapLRU caches embeddings in process memory; query-side embedding of hot
// search terms never leaves the process.
func WrapLRU(e ai.IEmbedder, size int, ttl time.Duration) ai.IEmbedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	return &lruEmbedder{
		next:  e,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

type lruEmbedder struct {
	next  ai.IEmbedder
	cache *expirable.LRU[string, []float32]
}

func (l *lruEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	key, _, _ := cacheKey(l.next.ModelName(), taskType, text)
	if cached, ok := l.cache.Get(key); ok {
		logutil.GetLogger(ctx).Debug("embedding cache hit (lru)", zap.String("task_type", taskType))
		return cloneVector(cached), nil
	}
	values, err := l.next.Embed(ctx, text, taskType)
	if err != nil {
		return nil, err
	}
	l.cache.Add(key, cloneVector(values))
	return values, nil
}

func (l *lruEmbedder) ModelName() string {
	return l.next.ModelName()
}

func cacheKey(modelName, taskType, text string) (string, string, string) {
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		modelName = "unknown"
	}
	hash := sha256.Sum256([]byte(text))
	contentHash := hex.EncodeToString(hash[:])
	return "embed:" + modelName + ":" + taskType + ":" + contentHash, contentHash, modelName
}

func cloneVector(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}

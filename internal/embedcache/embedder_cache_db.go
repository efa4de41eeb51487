package embedcache

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/corpusd/corpusd/internal/ai"
	"github.com/corpusd/corpusd/internal/model"
	"github.com/corpusd/corpusd/internal/repo"
)

// WrapDB persists embeddings keyed by content hash, so re-indexing unchanged
// chunks after a restart costs no provider calls. Stacks under WrapLRU.
func WrapDB(e ai.IEmbedder, cacheRepo *repo.EmbeddingCacheRepo) ai.IEmbedder {
	if e == nil || cacheRepo == nil {
		return e
	}
	return &dbEmbedder{next: e, repo: cacheRepo}
}

type dbEmbedder struct {
	next ai.IEmbedder
	repo *repo.EmbeddingCacheRepo
}

func (d *dbEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	_, contentHash, modelName := cacheKey(d.next.ModelName(), taskType, text)
	values, ok, err := d.repo.Get(ctx, modelName, taskType, contentHash)
	if err != nil {
		return nil, err
	}
	if ok {
		logutil.GetLogger(ctx).Debug("embedding cache hit (db)", zap.String("task_type", taskType))
		return values, nil
	}
	values, err = d.next.Embed(ctx, text, taskType)
	if err != nil {
		return nil, err
	}
	if err := d.repo.Save(ctx, &model.EmbeddingCache{
		ModelName:   modelName,
		TaskType:    taskType,
		ContentHash: contentHash,
		Embedding:   values,
		Ctime:       time.Now().Unix(),
	}); err != nil {
		logutil.GetLogger(ctx).Warn("failed to cache embedding", zap.Error(err))
	}
	return values, nil
}

func (d *dbEmbedder) ModelName() string {
	return d.next.ModelName()
}

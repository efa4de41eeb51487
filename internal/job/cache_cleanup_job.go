package job

import (
	"context"
	"time"

	"github.com/corpusd/corpusd/internal/repo"
)

type CacheCleanupJob struct {
	cache      *repo.EmbeddingCacheRepo
	maxAgeDays int
}

func NewCacheCleanupJob(cache *repo.EmbeddingCacheRepo, maxAgeDays int) *CacheCleanupJob {
	return &CacheCleanupJob{cache: cache, maxAgeDays: maxAgeDays}
}

func (j *CacheCleanupJob) Name() string {
	return "embedding_cache_cleanup"
}

func (j *CacheCleanupJob) Run(ctx context.Context) error {
	if j.cache == nil {
		return nil
	}
	maxAgeDays := j.maxAgeDays
	if maxAgeDays <= 0 {
		maxAgeDays = 30
	}
	cutoff := time.Now().Add(-time.Duration(maxAgeDays) * 24 * time.Hour).Unix()
	_, err := j.cache.DeleteBefore(ctx, cutoff)
	return err
}

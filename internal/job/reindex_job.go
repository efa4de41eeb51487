package job

import (
	"context"

	"github.com/corpusd/corpusd/internal/service"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// ReindexJob re-embeds documents whose body changed after their last
// successful indexing, including registrations whose inline indexing failed.
type ReindexJob struct {
	indexer *service.IndexService
	batch   int
}

func NewReindexJob(indexer *service.IndexService, batch int) *ReindexJob {
	if batch <= 0 {
		batch = 50
	}
	return &ReindexJob{indexer: indexer, batch: batch}
}

func (j *ReindexJob) Name() string {
	return "document_reindex"
}

func (j *ReindexJob) Run(ctx context.Context) error {
	done, err := j.indexer.ReindexStale(ctx, j.batch)
	if done > 0 {
		logutil.GetLogger(ctx).Info("reindexed stale documents", zap.Int("count", done))
	}
	return err
}

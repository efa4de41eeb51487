package schedule

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type Scheduler interface {
	AddJob(job Job, spec string) error
	Start(ctx context.Context)
	Stop()
}

// CronScheduler fires registered jobs on cron specs. Every run gets a context
// derived from the one passed to Start, so Stop cancels in-flight work
// instead of only blocking new ticks.
type CronScheduler struct {
	cron    *cron.Cron
	entries map[string]cron.EntryID

	mu     sync.Mutex
	root   context.Context
	cancel context.CancelFunc
}

func NewCronScheduler() *CronScheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return &CronScheduler{
		cron:    cron.New(cron.WithParser(parser)),
		entries: make(map[string]cron.EntryID),
	}
}

func (c *CronScheduler) AddJob(job Job, spec string) error {
	name := job.Name()
	logger := logutil.GetLogger(context.Background()).With(zap.String("job", name), zap.String("spec", spec))
	entryID, err := c.cron.AddFunc(spec, c.wrap(job, spec))
	if err != nil {
		logger.Error("schedule job failed", zap.Error(err))
		return err
	}
	c.entries[name] = entryID
	logger.Info("job scheduled")
	return nil
}

func (c *CronScheduler) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.Lock()
	c.root, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()
	c.cron.Start()
}

// Stop cancels any run still going, then waits for the cron loop to drain.
func (c *CronScheduler) Stop() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()
	ctx := c.cron.Stop()
	<-ctx.Done()
}

func (c *CronScheduler) runContext() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.root == nil {
		return context.Background()
	}
	return c.root
}

// wrap serializes each job with itself: a tick that fires while the previous
// run is still going is skipped, not queued.
func (c *CronScheduler) wrap(job Job, spec string) func() {
	var running atomic.Bool
	return func() {
		logger := logutil.GetLogger(context.Background()).With(
			zap.String("job", job.Name()),
			zap.String("spec", spec),
		)
		if !running.CompareAndSwap(false, true) {
			logger.Info("job skipped: still running")
			return
		}
		defer running.Store(false)

		start := time.Now()
		logger.Info("job started")
		err := job.Run(c.runContext())
		elapsed := time.Since(start)
		if err != nil {
			logger.Error("job finished", zap.Error(err), zap.Duration("duration", elapsed))
			return
		}
		logger.Info("job finished", zap.Duration("duration", elapsed))
	}
}

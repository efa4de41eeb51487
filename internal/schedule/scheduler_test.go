package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type blockingJob struct {
	started  chan struct{}
	finished chan error
}

func (j *blockingJob) Name() string { return "blocking" }

func (j *blockingJob) Run(ctx context.Context) error {
	close(j.started)
	<-ctx.Done()
	err := ctx.Err()
	j.finished <- err
	return err
}

func TestStopCancelsInFlightRun(t *testing.T) {
	s := NewCronScheduler()
	s.Start(context.Background())

	job := &blockingJob{started: make(chan struct{}), finished: make(chan error, 1)}
	go s.wrap(job, "* * * * *")()

	select {
	case <-job.started:
	case <-time.After(time.Second):
		t.Fatal("job never started")
	}
	s.Stop()

	select {
	case err := <-job.finished:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("job not canceled by Stop")
	}
}

type countingJob struct {
	runs    atomic.Int32
	release chan struct{}
}

func (j *countingJob) Name() string { return "counting" }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	<-j.release
	return nil
}

func TestOverlappingTickIsSkipped(t *testing.T) {
	s := NewCronScheduler()
	s.Start(context.Background())
	defer s.Stop()

	job := &countingJob{release: make(chan struct{})}
	tick := s.wrap(job, "* * * * *")

	done := make(chan struct{})
	go func() {
		tick()
		close(done)
	}()
	require.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	// fires while the first run still holds the slot
	tick()
	require.Equal(t, int32(1), job.runs.Load())

	close(job.release)
	<-done

	tick()
	require.Equal(t, int32(2), job.runs.Load())
}

package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func TestJob_StartAndStop(t *testing.T) {
	t.Run("should start and stop cleanly", func(t *testing.T) {
		var callCount atomic.Int32
		job := NewJob(JobConfig{
			Name:     "test-job",
			Interval: 10 * time.Millisecond,
		}, func(ctx context.Context) error {
			callCount.Add(1)
			return nil
		}, testLogger())

		ctx := context.Background()
		job.Start(ctx)

		time.Sleep(50 * time.Millisecond)
		job.Stop()

		assert.Greater(t, callCount.Load(), int32(0))
	})
}

func TestJob_RunAtStart(t *testing.T) {
	t.Run("should run once before the first tick when configured", func(t *testing.T) {
		var callCount atomic.Int32
		job := NewJob(JobConfig{
			Name:       "immediate-job",
			Interval:   1 * time.Hour,
			RunAtStart: true,
		}, func(ctx context.Context) error {
			callCount.Add(1)
			return nil
		}, testLogger())

		ctx := context.Background()
		job.Start(ctx)
		time.Sleep(50 * time.Millisecond)
		job.Stop()

		assert.Equal(t, int32(1), callCount.Load())
	})
}

func TestJob_BackoffOnError(t *testing.T) {
	t.Run("should stretch the interval while runs keep failing", func(t *testing.T) {
		var callCount atomic.Int32

		job := NewJob(JobConfig{
			Name:           "backoff-job",
			Interval:       10 * time.Millisecond,
			InitialBackoff: 50 * time.Millisecond,
			MaxBackoff:     100 * time.Millisecond,
		}, func(ctx context.Context) error {
			callCount.Add(1)
			return errors.New("upstream unavailable")
		}, testLogger())

		ctx := context.Background()
		job.Start(ctx)

		// With a 10ms interval and no backoff we would see ~10 calls in
		// 100ms. Backoff starting at 50ms keeps it to a handful.
		time.Sleep(100 * time.Millisecond)
		job.Stop()

		assert.LessOrEqual(t, callCount.Load(), int32(4))
	})
}

func TestJob_Status(t *testing.T) {
	t.Run("should track runs and failures", func(t *testing.T) {
		failing := errors.New("send failed")
		job := NewJob(JobConfig{
			Name:       "status-job",
			Interval:   1 * time.Hour,
			RunAtStart: true,
		}, func(ctx context.Context) error {
			return failing
		}, testLogger())

		job.Start(context.Background())
		time.Sleep(30 * time.Millisecond)
		job.Stop()

		status := job.Status()
		assert.Equal(t, "status-job", status.Name)
		assert.Equal(t, int64(1), status.Runs)
		assert.Equal(t, int64(1), status.Failures)
		assert.Equal(t, "send failed", status.LastError)
		assert.False(t, status.LastRun.IsZero())
	})
}

func TestJob_PanicRecovery(t *testing.T) {
	t.Run("should recover from panics", func(t *testing.T) {
		job := NewJob(JobConfig{
			Name:     "panic-job",
			Interval: 10 * time.Millisecond,
		}, func(ctx context.Context) error {
			panic("test panic")
		}, testLogger())

		ctx := context.Background()
		job.Start(ctx)

		time.Sleep(30 * time.Millisecond)
		job.Stop()
	})
}

func TestJob_ContextCancellation(t *testing.T) {
	t.Run("should stop when context is canceled", func(t *testing.T) {
		var callCount atomic.Int32
		job := NewJob(JobConfig{
			Name:     "cancel-job",
			Interval: 10 * time.Millisecond,
		}, func(ctx context.Context) error {
			callCount.Add(1)
			return nil
		}, testLogger())

		ctx, cancel := context.WithCancel(context.Background())
		job.Start(ctx)
		time.Sleep(50 * time.Millisecond)

		beforeCancel := callCount.Load()
		cancel()
		time.Sleep(30 * time.Millisecond)

		afterCancel := callCount.Load()
		assert.LessOrEqual(t, afterCancel-beforeCancel, int32(1))
	})
}

func TestJob_NextBackoff(t *testing.T) {
	job := NewJob(JobConfig{
		InitialBackoff: 30 * time.Second,
		MaxBackoff:     5 * time.Minute,
	}, nil, testLogger())

	t.Run("should return initial backoff when current is 0", func(t *testing.T) {
		assert.Equal(t, 30*time.Second, job.nextBackoff(0))
	})

	t.Run("should double backoff", func(t *testing.T) {
		assert.Equal(t, 60*time.Second, job.nextBackoff(30*time.Second))
	})

	t.Run("should cap at max backoff", func(t *testing.T) {
		assert.Equal(t, 5*time.Minute, job.nextBackoff(4*time.Minute))
	})
}

func TestJobGroup(t *testing.T) {
	t.Run("should start and stop all jobs", func(t *testing.T) {
		var count1, count2 atomic.Int32

		ctx := context.Background()
		group := NewJobGroup(ctx, testLogger())
		group.Add(NewJob(JobConfig{
			Name:     "job-1",
			Interval: 10 * time.Millisecond,
		}, func(ctx context.Context) error {
			count1.Add(1)
			return nil
		}, testLogger()))

		group.Add(NewJob(JobConfig{
			Name:     "job-2",
			Interval: 10 * time.Millisecond,
		}, func(ctx context.Context) error {
			count2.Add(1)
			return nil
		}, testLogger()))

		time.Sleep(50 * time.Millisecond)
		group.StopAll()

		require.Greater(t, count1.Load(), int32(0))
		require.Greater(t, count2.Load(), int32(0))
	})

	t.Run("should snapshot every job", func(t *testing.T) {
		group := NewJobGroup(context.Background(), testLogger())
		group.Add(NewJob(JobConfig{Name: "a", Interval: time.Hour}, func(ctx context.Context) error { return nil }, testLogger()))
		group.Add(NewJob(JobConfig{Name: "b", Interval: time.Hour}, func(ctx context.Context) error { return nil }, testLogger()))
		defer group.StopAll()

		statuses := group.Statuses()
		require.Len(t, statuses, 2)
		assert.Equal(t, "a", statuses[0].Name)
		assert.Equal(t, "b", statuses[1].Name)
	})
}

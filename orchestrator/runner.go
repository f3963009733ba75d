// ABOUTME: This file manages periodic background jobs with error-driven backoff.
// ABOUTME: Each job reports its last run outcome for the status endpoint.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// JobConfig configures a periodic job.
type JobConfig struct {
	Name           string
	Interval       time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	RunAtStart     bool // Run once before the first tick
}

// JobStatus is a point-in-time snapshot of a job's health.
type JobStatus struct {
	Name      string    `json:"name"`
	LastRun   time.Time `json:"last_run"`
	LastError string    `json:"last_error,omitempty"`
	Runs      int64     `json:"runs"`
	Failures  int64     `json:"failures"`
}

// Job runs a function on an interval. When a run fails the interval is
// stretched with exponential backoff until a run succeeds again.
type Job struct {
	config JobConfig
	fn     func(ctx context.Context) error
	logger *slog.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	lastRun  time.Time
	lastErr  error
	runs     int64
	failures int64
}

// NewJob creates a periodic job. It does not start running until Start.
func NewJob(config JobConfig, fn func(ctx context.Context) error, logger *slog.Logger) *Job {
	return &Job{
		config: config,
		fn:     fn,
		logger: logger,
	}
}

// Start launches the job loop in a goroutine.
func (j *Job) Start(ctx context.Context) {
	jobCtx, cancel := context.WithCancel(ctx)
	j.cancel = cancel

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		j.loop(jobCtx)
	}()
}

// Stop cancels the job and waits for the current run to finish.
func (j *Job) Stop() {
	if j.cancel != nil {
		j.cancel()
	}
	j.wg.Wait()
}

// Status returns a snapshot of the job's run history.
func (j *Job) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()

	status := JobStatus{
		Name:     j.config.Name,
		LastRun:  j.lastRun,
		Runs:     j.runs,
		Failures: j.failures,
	}
	if j.lastErr != nil {
		status.LastError = j.lastErr.Error()
	}
	return status
}

func (j *Job) loop(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			j.logger.ErrorContext(ctx, "panic in job", "job", j.config.Name, "panic", rec)
		}
	}()

	if j.config.RunAtStart {
		j.runOnce(ctx)
	}

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	backoff := time.Duration(0)

	for {
		select {
		case <-ctx.Done():
			j.logger.InfoContext(ctx, "job stopped", "job", j.config.Name)
			return
		case <-ticker.C:
			if err := j.runOnce(ctx); err != nil {
				backoff = j.nextBackoff(backoff)
				j.logger.WarnContext(ctx, "job backing off",
					"job", j.config.Name, "backoff", backoff, "error", err)
				ticker.Reset(backoff)
				continue
			}
			if backoff > 0 {
				j.logger.InfoContext(ctx, "job recovered, resuming normal interval",
					"job", j.config.Name)
				backoff = 0
				ticker.Reset(j.config.Interval)
			}
		}
	}
}

func (j *Job) runOnce(ctx context.Context) error {
	err := j.fn(ctx)

	j.mu.Lock()
	j.lastRun = time.Now().UTC()
	j.lastErr = err
	j.runs++
	if err != nil {
		j.failures++
	}
	j.mu.Unlock()

	if err != nil {
		j.logger.ErrorContext(ctx, "job run failed", "job", j.config.Name, "error", err)
	}
	return err
}

func (j *Job) nextBackoff(current time.Duration) time.Duration {
	initial := j.config.InitialBackoff
	if initial == 0 {
		initial = 30 * time.Second
	}
	maxB := j.config.MaxBackoff
	if maxB == 0 {
		maxB = 5 * time.Minute
	}

	if current == 0 {
		return initial
	}
	next := current * 2
	if next > maxB {
		return maxB
	}
	return next
}

// JobGroup owns a set of jobs sharing one lifecycle.
type JobGroup struct {
	jobs   []*Job
	ctx    context.Context
	logger *slog.Logger
}

// NewJobGroup creates a job group. The context is inherited by every job
// added via Add.
func NewJobGroup(ctx context.Context, logger *slog.Logger) *JobGroup {
	return &JobGroup{ctx: ctx, logger: logger}
}

// Add registers a job in the group and starts it immediately.
func (g *JobGroup) Add(job *Job) {
	g.jobs = append(g.jobs, job)
	g.logger.InfoContext(g.ctx, "starting job", "job", job.config.Name)
	job.Start(g.ctx)
}

// Statuses returns a snapshot for every job in the group.
func (g *JobGroup) Statuses() []JobStatus {
	statuses := make([]JobStatus, 0, len(g.jobs))
	for _, job := range g.jobs {
		statuses = append(statuses, job.Status())
	}
	return statuses
}

// StopAll stops every job and waits for them to finish.
func (g *JobGroup) StopAll() {
	for _, job := range g.jobs {
		job.Stop()
	}
}

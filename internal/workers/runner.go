// Package workers drains the integration job queue.
package workers

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"conduit/internal/engine/jobs"
	"conduit/internal/pkg/logger"
	"conduit/internal/pkg/metrics"
	"conduit/internal/platform/config"
	"conduit/internal/platform/models"
)

// Handler runs one claimed job. A returned error fails the attempt.
type Handler func(ctx context.Context, job *models.Job) error

// Runner polls the queue with a fixed number of pollers and dispatches
// claimed jobs by job_type.
type Runner struct {
	queue       *jobs.Queue
	handlers    map[string]Handler
	backoff     jobs.BackoffPolicy
	maxAttempts int

	concurrency  int
	pollInterval time.Duration
	jobTimeout   time.Duration

	log zerolog.Logger
	now func() time.Time
}

func NewRunner(queue *jobs.Queue, cfg config.WorkerConfig, qcfg config.QueueConfig) (*Runner, error) {
	policy, err := jobs.NewBackoffPolicy(qcfg.Backoff, qcfg.BackoffBase, qcfg.BackoffMax, qcfg.BackoffJitter)
	if err != nil {
		return nil, err
	}

	r := &Runner{
		queue:        queue,
		handlers:     make(map[string]Handler),
		backoff:      policy,
		maxAttempts:  qcfg.MaxAttempts,
		concurrency:  cfg.Concurrency,
		pollInterval: cfg.PollInterval,
		jobTimeout:   cfg.JobTimeout,
		log:          logger.Component("worker"),
		now:          time.Now,
	}
	if r.concurrency <= 0 {
		r.concurrency = 1
	}
	if r.pollInterval <= 0 {
		r.pollInterval = 5 * time.Second
	}
	return r, nil
}

// Register binds a handler to a job type. Later registrations win.
func (r *Runner) Register(jobType string, h Handler) {
	r.handlers[jobType] = h
}

// Run blocks until ctx is cancelled. Jobs already claimed are finished
// before it returns.
func (r *Runner) Run(ctx context.Context) {
	r.log.Info().Int("concurrency", r.concurrency).Dur("poll_interval", r.pollInterval).Msg("worker started")

	var wg sync.WaitGroup
	for i := 0; i < r.concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			r.poll(ctx, id)
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		r.reportDepth(ctx)
	}()

	wg.Wait()
	r.log.Info().Msg("worker stopped")
}

func (r *Runner) poll(ctx context.Context, id int) {
	log := r.log.With().Int("poller", id).Logger()
	for {
		if ctx.Err() != nil {
			return
		}

		worked, err := r.RunOnce(ctx)
		if err != nil {
			log.Error().Err(err).Msg("poll failed")
		}
		if worked {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(r.pollInterval):
		}
	}
}

// RunOnce claims and processes at most one job. It reports whether a job
// was claimed.
func (r *Runner) RunOnce(ctx context.Context) (bool, error) {
	job, err := r.queue.ClaimNext(ctx, r.now())
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	metrics.JobsClaimedTotal.WithLabelValues(job.JobType).Inc()
	return true, r.process(ctx, job)
}

func (r *Runner) process(ctx context.Context, job *models.Job) error {
	log := r.log.With().Str("job_id", job.ID).Str("job_type", job.JobType).Int("attempt", job.Attempts).Logger()

	metrics.JobsInFlight.Inc()
	defer metrics.JobsInFlight.Dec()
	start := time.Now()

	runErr := r.invoke(ctx, job)
	metrics.JobDuration.WithLabelValues(job.JobType).Observe(time.Since(start).Seconds())

	// The outcome is recorded even when shutdown cancelled ctx.
	storeCtx := context.WithoutCancel(ctx)

	if runErr == nil {
		if err := r.queue.Complete(storeCtx, job.ID); err != nil {
			return err
		}
		metrics.JobsProcessedTotal.WithLabelValues(job.JobType, "succeeded").Inc()
		log.Info().Msg("job succeeded")
		return nil
	}

	delay := r.backoff.Delay(job.Attempts)
	err := r.queue.Fail(storeCtx, jobs.FailInput{
		JobID:          job.ID,
		Attempts:       job.Attempts,
		Error:          runErr.Error(),
		MaxAttempts:    r.maxAttempts,
		BackoffSeconds: jobs.Seconds(delay),
	})
	if err != nil {
		return err
	}

	outcome := "retry"
	limit := r.maxAttempts
	if limit <= 0 {
		limit = jobs.DefaultMaxAttempts
	}
	if job.Attempts >= limit {
		outcome = "dead"
	}
	metrics.JobsProcessedTotal.WithLabelValues(job.JobType, outcome).Inc()
	log.Warn().Err(runErr).Str("outcome", outcome).Dur("backoff", delay).Msg("job failed")
	return nil
}

func (r *Runner) invoke(ctx context.Context, job *models.Job) (err error) {
	h, ok := r.handlers[job.JobType]
	if !ok {
		return fmt.Errorf("no handler for job type %q", job.JobType)
	}

	if r.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.jobTimeout)
		defer cancel()
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Str("job_id", job.ID).Bytes("stack", debug.Stack()).Msg("job panicked")
			err = fmt.Errorf("panic: %v", rec)
		}
	}()

	return h(ctx, job)
}

func (r *Runner) reportDepth(ctx context.Context) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		counts, err := r.queue.CountByStatus(ctx)
		if err == nil {
			for _, s := range []models.JobStatus{models.JobQueued, models.JobRunning, models.JobSucceeded, models.JobFailed, models.JobDead} {
				metrics.JobsByStatus.WithLabelValues(string(s)).Set(float64(counts[s]))
			}
		} else if ctx.Err() == nil {
			r.log.Warn().Err(err).Msg("failed to count jobs")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

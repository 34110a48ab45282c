// Package jobs is a database-backed work queue. Workers claim jobs with a
// conditional update, so two pollers never run the same job at once.
package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	"conduit/internal/platform/models"
)

const (
	DefaultMaxAttempts    = 10
	DefaultBackoffSeconds = 60
)

// Job types enqueued by the API.
const (
	TypeContactsSync   = "contacts.sync"
	TypeWebhookProcess = "webhook.process"
)

const jobColumns = `id, provider_id, tenant_id, connection_id, job_type, payload, status,
	attempts, run_at, last_error, created_at, updated_at`

type EnqueueInput struct {
	ProviderID   string `validate:"required"`
	TenantID     *string
	ConnectionID *string
	JobType      string `validate:"required"`
	Payload      map[string]any
	RunAt        time.Time
}

// FailInput carries the attempt count observed at claim time. Zero
// MaxAttempts and BackoffSeconds fall back to the defaults.
type FailInput struct {
	JobID          string
	Attempts       int
	Error          string
	MaxAttempts    int
	BackoffSeconds int
}

type Queue struct {
	db       *sqlx.DB
	validate *validator.Validate
	now      func() time.Time
}

func NewQueue(db *sqlx.DB) *Queue {
	return &Queue{db: db, validate: validator.New(), now: time.Now}
}

func (q *Queue) Enqueue(ctx context.Context, in EnqueueInput) (*models.Job, error) {
	if err := q.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	now := q.now()
	runAt := in.RunAt
	if runAt.IsZero() {
		runAt = now
	}

	job := &models.Job{
		ID:           models.NewID(models.PrefixJob),
		ProviderID:   in.ProviderID,
		TenantID:     in.TenantID,
		ConnectionID: in.ConnectionID,
		JobType:      in.JobType,
		Payload:      models.JSONMap(in.Payload),
		Status:       models.JobQueued,
		Attempts:     0,
		RunAt:        runAt.Unix(),
		CreatedAt:    now.Unix(),
		UpdatedAt:    now.Unix(),
	}
	if job.Payload == nil {
		job.Payload = models.JSONMap{}
	}

	_, err := q.db.NamedExecContext(ctx, `
		INSERT INTO integration_jobs (
			id, provider_id, tenant_id, connection_id, job_type, payload, status,
			attempts, run_at, last_error, created_at, updated_at
		) VALUES (
			:id, :provider_id, :tenant_id, :connection_id, :job_type, :payload, :status,
			:attempts, :run_at, :last_error, :created_at, :updated_at
		)`, job)
	if err != nil {
		return nil, fmt.Errorf("enqueue %s job: %w", in.JobType, err)
	}
	return job, nil
}

// ClaimNext picks the oldest runnable job and moves it to running. When
// another worker wins the conditional update it returns nil, nil; callers
// simply poll again.
func (q *Queue) ClaimNext(ctx context.Context, now time.Time) (*models.Job, error) {
	var id string
	err := q.db.GetContext(ctx, &id, q.db.Rebind(`
		SELECT id FROM integration_jobs
		WHERE status = ? AND run_at <= ?
		ORDER BY run_at, created_at
		LIMIT 1`), models.JobQueued, now.Unix())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select next job: %w", err)
	}

	res, err := q.db.ExecContext(ctx, q.db.Rebind(`
		UPDATE integration_jobs
		SET status = ?, attempts = attempts + 1, updated_at = ?
		WHERE id = ? AND status = ?`),
		models.JobRunning, q.now().Unix(), id, models.JobQueued)
	if err != nil {
		return nil, fmt.Errorf("claim job %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("claim job %s: %w", id, err)
	}
	if n == 0 {
		return nil, nil
	}

	return q.Get(ctx, id)
}

// Complete marks a job succeeded regardless of its current status. Only the
// worker holding the claim may call it.
func (q *Queue) Complete(ctx context.Context, jobID string) error {
	_, err := q.db.ExecContext(ctx, q.db.Rebind(`
		UPDATE integration_jobs SET status = ?, last_error = NULL, updated_at = ? WHERE id = ?`),
		models.JobSucceeded, q.now().Unix(), jobID)
	if err != nil {
		return fmt.Errorf("complete job %s: %w", jobID, err)
	}
	return nil
}

// Fail dead-letters the job once Attempts reaches MaxAttempts, otherwise
// requeues it BackoffSeconds from now. Only running jobs are touched, so a
// dead or succeeded job never returns to the queue.
func (q *Queue) Fail(ctx context.Context, in FailInput) error {
	maxAttempts := in.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	backoff := in.BackoffSeconds
	if backoff <= 0 {
		backoff = DefaultBackoffSeconds
	}

	now := q.now()

	if in.Attempts >= maxAttempts {
		_, err := q.db.ExecContext(ctx, q.db.Rebind(`
			UPDATE integration_jobs SET status = ?, last_error = ?, updated_at = ?
			WHERE id = ? AND status = ?`),
			models.JobDead, in.Error, now.Unix(), in.JobID, models.JobRunning)
		if err != nil {
			return fmt.Errorf("dead-letter job %s: %w", in.JobID, err)
		}
		return nil
	}

	runAt := now.Add(time.Duration(backoff) * time.Second)
	_, err := q.db.ExecContext(ctx, q.db.Rebind(`
		UPDATE integration_jobs SET status = ?, run_at = ?, last_error = ?, updated_at = ?
		WHERE id = ? AND status = ?`),
		models.JobQueued, runAt.Unix(), in.Error, now.Unix(), in.JobID, models.JobRunning)
	if err != nil {
		return fmt.Errorf("requeue job %s: %w", in.JobID, err)
	}
	return nil
}

func (q *Queue) Get(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	err := q.db.GetContext(ctx, &job, q.db.Rebind(`SELECT `+jobColumns+` FROM integration_jobs WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return &job, nil
}

// CountByStatus returns the number of jobs in each status that has any.
func (q *Queue) CountByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	var rows []struct {
		Status models.JobStatus `db:"status"`
		Count  int              `db:"n"`
	}
	err := q.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS n FROM integration_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}

	out := make(map[models.JobStatus]int, len(rows))
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out, nil
}

package models

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
	JobDead      JobStatus = "dead"
)

type Job struct {
	ID           string    `db:"id" json:"id"`
	ProviderID   string    `db:"provider_id" json:"provider_id"`
	TenantID     *string   `db:"tenant_id" json:"tenant_id,omitempty"`
	ConnectionID *string   `db:"connection_id" json:"connection_id,omitempty"`
	JobType      string    `db:"job_type" json:"job_type"`
	Payload      JSONMap   `db:"payload" json:"payload"`
	Status       JobStatus `db:"status" json:"status"`
	Attempts     int       `db:"attempts" json:"attempts"`
	RunAt        int64     `db:"run_at" json:"run_at"`
	LastError    *string   `db:"last_error" json:"last_error,omitempty"`
	CreatedAt    int64     `db:"created_at" json:"created_at"`
	UpdatedAt    int64     `db:"updated_at" json:"updated_at"`
}

// Package jobs defines the asynchronous job model: reprocessing a receipt
// happens in the background, the API only enqueues and reports status.
package jobs

import (
	"context"
	"time"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeReprocessReceipt re-scans a stored receipt file and replaces
	// the receipt's derived data.
	JobTypeReprocessReceipt JobType = "reprocess_receipt"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusRetrying  JobStatus = "retrying"
)

// ReprocessReceiptJob asks a worker to re-scan one receipt.
type ReprocessReceiptJob struct {
	JobID     string `json:"job_id"`
	ReceiptID string `json:"receipt_id"`

	Status JobStatus `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error holds the failure detail once the job has exhausted retries.
	Error string `json:"error,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`
}

// Job is the generic view the queue machinery needs.
type Job interface {
	GetID() string
	GetType() JobType
	GetStatus() JobStatus
}

func (j *ReprocessReceiptJob) GetID() string        { return j.JobID }
func (j *ReprocessReceiptJob) GetType() JobType     { return JobTypeReprocessReceipt }
func (j *ReprocessReceiptJob) GetStatus() JobStatus { return j.Status }

// Publisher enqueues jobs. Different backends (in-memory, Cloud Tasks,
// Pub/Sub) can sit behind this interface.
type Publisher interface {
	// PublishReprocess enqueues a receipt reprocessing job.
	PublishReprocess(ctx context.Context, job *ReprocessReceiptJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer drains jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs, calling handler for each one.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes one job. A returned error marks the job for retry.
type JobHandler func(ctx context.Context, job Job) error

// JobStore tracks job state so callers can poll for the outcome.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *ReprocessReceiptJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*ReprocessReceiptJob, error)

	// ListJobs retrieves jobs matching the filter.
	ListJobs(ctx context.Context, filter JobFilter) ([]*ReprocessReceiptJob, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	ReceiptID string
	Status    JobStatus
	Limit     int
	Offset    int
}

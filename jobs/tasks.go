package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/comercia/comercia/internal/pipeline"
	"github.com/comercia/comercia/internal/quotes"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskQuoteSent notifies the commercial team that a quote left the building.
	TaskQuoteSent = "notify:quote_sent"
	// TaskProjectCreated notifies operations that a won deal opened a project.
	TaskProjectCreated = "notify:project_created"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// NewQuoteSentTask wraps a quotes.SentEvent.
func NewQuoteSentTask(event quotes.SentEvent) (*asynq.Task, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal quote sent: %w", err)
	}
	return asynq.NewTask(TaskQuoteSent, data, asynq.MaxRetry(5)), nil
}

// NewProjectCreatedTask wraps a pipeline.ProjectCreatedEvent.
func NewProjectCreatedTask(event pipeline.ProjectCreatedEvent) (*asynq.Task, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal project created: %w", err)
	}
	return asynq.NewTask(TaskProjectCreated, data, asynq.MaxRetry(5)), nil
}

// IdempotencyCleanupPayload carries the retention window of one cleanup run.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewIdempotencyCleanupTask builds the cron task for the cleanup job.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}

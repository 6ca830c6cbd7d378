package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/comercia/comercia/internal/fiscal"
	jobmetrics "github.com/comercia/comercia/internal/jobs"
	"github.com/comercia/comercia/internal/pipeline"
	"github.com/comercia/comercia/internal/quotes"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// NotificationJob delivers commercial notifications. Delivery is a structured
// log line addressed to Recipient until a mail transport is configured.
type NotificationJob struct {
	Recipient string
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// HandleQuoteSent processes TaskQuoteSent.
func (j *NotificationJob) HandleQuoteSent(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil {
		return errors.New("quote sent: handler not configured")
	}
	var event quotes.SentEvent
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.metrics().Track(TaskQuoteSent)
	defer func() { err = tracker.End(err) }()

	j.logger().Info("quote sent",
		slog.String("to", j.Recipient),
		slog.String("workspace_id", event.WorkspaceID.String()),
		slog.Int64("quote_id", event.QuoteID),
		slog.String("consecutive", event.Consecutive),
		slog.String("total", fiscal.FormatCOPFloat(event.Total)),
		slog.Time("valid_until", event.ValidUntil))
	return nil
}

// HandleProjectCreated processes TaskProjectCreated.
func (j *NotificationJob) HandleProjectCreated(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil {
		return errors.New("project created: handler not configured")
	}
	var event pipeline.ProjectCreatedEvent
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.metrics().Track(TaskProjectCreated)
	defer func() { err = tracker.End(err) }()

	j.logger().Info("project created",
		slog.String("to", j.Recipient),
		slog.String("workspace_id", event.WorkspaceID.String()),
		slog.Int64("project_id", event.ProjectID),
		slog.Int64("opportunity_id", event.OpportunityID),
		slog.String("name", event.Name),
		slog.String("budget", fiscal.FormatCOPFloat(event.TotalBudget)),
		slog.Float64("estimated_hours", event.EstimatedHours))
	return nil
}

func (j *NotificationJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *NotificationJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comercia/comercia/internal/fiscal"
	jobmetrics "github.com/comercia/comercia/internal/jobs"
	"github.com/comercia/comercia/internal/pipeline"
	"github.com/comercia/comercia/internal/quotes"
)

type recordingEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (r *recordingEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.tasks = append(r.tasks, task)
	return &asynq.TaskInfo{Type: task.Type(), Queue: QueueDefault}, nil
}

func (r *recordingEnqueuer) Close() error { return nil }

func TestClientEnqueuesNotifications(t *testing.T) {
	enq := &recordingEnqueuer{}
	client := &Client{client: enq}
	ws := uuid.New()

	require.NoError(t, client.QuoteSent(context.Background(), quotes.SentEvent{
		WorkspaceID: ws, QuoteID: 7, Consecutive: "COT-0007", Total: 11900000,
	}))
	require.NoError(t, client.ProjectCreated(context.Background(), pipeline.ProjectCreatedEvent{
		WorkspaceID: ws, ProjectID: 3, OpportunityID: 9, Name: "Bodega", TotalBudget: 2500000,
	}))

	require.Len(t, enq.tasks, 2)
	assert.Equal(t, TaskQuoteSent, enq.tasks[0].Type())
	assert.Equal(t, TaskProjectCreated, enq.tasks[1].Type())

	var sent quotes.SentEvent
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &sent))
	assert.Equal(t, "COT-0007", sent.Consecutive)
	assert.Equal(t, ws, sent.WorkspaceID)
}

func TestClientPropagatesEnqueueFailure(t *testing.T) {
	boom := errors.New("redis down")
	client := &Client{client: &recordingEnqueuer{err: boom}}
	err := client.QuoteSent(context.Background(), quotes.SentEvent{QuoteID: 1})
	assert.ErrorIs(t, err, boom)
}

func TestNotificationJobLogsFormattedAmounts(t *testing.T) {
	var buf bytes.Buffer
	job := &NotificationJob{
		Recipient: "ventas@example.com",
		Logger:    slog.New(slog.NewJSONHandler(&buf, nil)),
		Metrics:   jobmetrics.NewMetrics(prometheus.NewRegistry()),
	}

	task, err := NewProjectCreatedTask(pipeline.ProjectCreatedEvent{
		ProjectID: 3, OpportunityID: 9, Name: "Bodega", TotalBudget: 2500000, EstimatedHours: 40,
	})
	require.NoError(t, err)
	require.NoError(t, job.HandleProjectCreated(context.Background(), task))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "project created", line["msg"])
	assert.Equal(t, "ventas@example.com", line["to"])
	assert.Equal(t, fiscal.FormatCOPFloat(2500000), line["budget"])
}

func TestNotificationJobSkipsBadPayload(t *testing.T) {
	job := &NotificationJob{Metrics: jobmetrics.NewMetrics(prometheus.NewRegistry())}
	err := job.HandleQuoteSent(context.Background(), asynq.NewTask(TaskQuoteSent, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

type stubCleaner struct {
	got    time.Duration
	purged int64
	err    error
}

func (s *stubCleaner) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.got = olderThan
	return s.purged, s.err
}

func TestIdempotencyCleanupUsesPayloadRetention(t *testing.T) {
	store := &stubCleaner{purged: 4}
	job := &IdempotencyCleanupJob{
		Store:     store,
		Retention: 24 * time.Hour,
		Metrics:   jobmetrics.NewMetrics(prometheus.NewRegistry()),
	}

	task, err := NewIdempotencyCleanupTask(48 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 48*time.Hour, store.got)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil)))
	assert.Equal(t, 24*time.Hour, store.got)
}

func TestIdempotencyCleanupReturnsStoreError(t *testing.T) {
	boom := errors.New("db down")
	job := &IdempotencyCleanupJob{
		Store:     &stubCleaner{err: boom},
		Retention: time.Hour,
		Metrics:   jobmetrics.NewMetrics(prometheus.NewRegistry()),
	}
	err := job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil))
	assert.ErrorIs(t, err, boom)
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestHealthReportsQueue(t *testing.T) {
	h := &Handler{inspector: stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 2, Retry: 1}}, logger: slog.Default()}
	r := chi.NewRouter()
	r.Route("/jobs", h.MountRoutes)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"queue":"default","pending":2,"retry":1}`, rr.Body.String())
}

func TestHealthUnavailable(t *testing.T) {
	h := &Handler{inspector: stubInspector{err: errors.New("down")}, logger: slog.Default()}
	r := chi.NewRouter()
	r.Route("/jobs", h.MountRoutes)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestHealthWithoutInspector(t *testing.T) {
	h := NewHandler(nil, slog.Default())
	r := chi.NewRouter()
	r.Route("/jobs", h.MountRoutes)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"queue":"default","pending":0,"retry":0}`, rr.Body.String())
}

package jobs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nia-ro/workdesk/internal/platform/httpx"
	"github.com/nia-ro/workdesk/internal/rbac"
)

type fakePurger struct {
	before  time.Time
	deleted int64
	err     error
	calls   int
}

func (f *fakePurger) Purge(ctx context.Context, before time.Time) (int64, error) {
	f.calls++
	f.before = before
	return f.deleted, f.err
}

func newPurgeJob(store AuditPurger, retention time.Duration) *AuditPurgeJob {
	job := NewAuditPurgeJob(store, retention, nil, nil)
	job.clock = func() time.Time { return time.Date(2025, 6, 30, 2, 0, 0, 0, time.UTC) }
	return job
}

func TestAuditPurgeUsesConfiguredRetention(t *testing.T) {
	store := &fakePurger{deleted: 42}
	job := newPurgeJob(store, 90*24*time.Hour)
	task, err := NewAuditPurgeTask(0)
	require.NoError(t, err)
	assert.Equal(t, TaskAuditPurge, task.Type())

	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, time.Date(2025, 4, 1, 2, 0, 0, 0, time.UTC), store.before)
}

func TestAuditPurgePayloadOverridesRetention(t *testing.T) {
	store := &fakePurger{}
	job := newPurgeJob(store, 90*24*time.Hour)
	task, err := NewAuditPurgeTask(48 * time.Hour)
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, time.Date(2025, 6, 28, 2, 0, 0, 0, time.UTC), store.before)
}

func TestAuditPurgeRejectsShortRetention(t *testing.T) {
	store := &fakePurger{}
	job := newPurgeJob(store, time.Hour)
	err := job.Handle(context.Background(), asynq.NewTask(TaskAuditPurge, nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
	assert.Zero(t, store.calls)
}

func TestAuditPurgeBadPayloadSkipsRetry(t *testing.T) {
	job := newPurgeJob(&fakePurger{}, 90*24*time.Hour)
	err := job.Handle(context.Background(), asynq.NewTask(TaskAuditPurge, []byte("{")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestAuditPurgeStoreErrorIsRetried(t *testing.T) {
	boom := errors.New("db down")
	job := newPurgeJob(&fakePurger{err: boom}, 90*24*time.Hour)
	err := job.Handle(context.Background(), asynq.NewTask(TaskAuditPurge, nil))
	assert.ErrorIs(t, err, boom)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(ctx context.Context) error { return s.err }

type passGuard struct{}

func (passGuard) API(action string, perms ...rbac.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler { return next }
}

func serveHealth(t *testing.T, h *Handler) (*httptest.ResponseRecorder, healthResponse) {
	t.Helper()
	r := chi.NewRouter()
	r.Route("/api/jobs", h.MountRoutes)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/jobs/health", nil))
	var body healthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return rr, body
}

func TestHealthReportsQueueAndDocuments(t *testing.T) {
	inspector := stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 3, Retry: 1}}
	h := NewHandler(HandlerDeps{Inspector: inspector, Documents: stubPinger{}}, passGuard{}, httpx.NewFinisher(false, nil), nil)

	rr, body := serveHealth(t, h)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "ok", body.Documents)
	require.NotNil(t, body.Queue)
	assert.Equal(t, 3, body.Queue.Pending)
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
}

func TestHealthDegraded(t *testing.T) {
	h := NewHandler(HandlerDeps{Inspector: stubInspector{err: errors.New("redis: connection refused")}, Documents: stubPinger{err: errors.New("dial")}}, passGuard{}, httpx.NewFinisher(false, nil), nil)

	rr, body := serveHealth(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "unavailable", body.Documents)
	assert.NotContains(t, rr.Body.String(), "connection refused")
}

func TestHealthWithoutDependencies(t *testing.T) {
	rr, body := serveHealth(t, NewHandler(HandlerDeps{}, passGuard{}, httpx.NewFinisher(false, nil), nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "not-configured", body.Documents)
	assert.Nil(t, body.Queue)
}

type stubEnqueuer struct {
	err   error
	calls int
}

func (s *stubEnqueuer) EnqueueAuditPurge(ctx context.Context, retention time.Duration) (*asynq.TaskInfo, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &asynq.TaskInfo{ID: "task-1", Queue: QueueDefault, Type: TaskAuditPurge}, nil
}

func postPurge(h *Handler) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Route("/api/jobs", h.MountRoutes)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/jobs/audit-purge", nil))
	return rr
}

func TestTriggerPurge(t *testing.T) {
	enq := &stubEnqueuer{}
	rr := postPurge(NewHandler(HandlerDeps{Enqueuer: enq}, passGuard{}, httpx.NewFinisher(false, nil), nil))
	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.JSONEq(t, `{"task_id":"task-1","queue":"default"}`, rr.Body.String())
	assert.Equal(t, 1, enq.calls)

	rr = postPurge(NewHandler(HandlerDeps{Enqueuer: &stubEnqueuer{err: errors.New("redis gone")}}, passGuard{}, httpx.NewFinisher(false, nil), nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "redis gone")

	rr = postPurge(NewHandler(HandlerDeps{}, passGuard{}, httpx.NewFinisher(false, nil), nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

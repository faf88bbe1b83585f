package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/userdesk/internal/audit"
	jobmetrics "github.com/odyssey-erp/userdesk/internal/jobs"
)

type fakeStore struct {
	events    []audit.Event
	cutoff    time.Time
	recordErr error
}

func (s *fakeStore) Record(_ context.Context, ev audit.Event) error {
	if s.recordErr != nil {
		return s.recordErr
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *fakeStore) Prune(_ context.Context, olderThan time.Time) (int64, error) {
	s.cutoff = olderThan
	return 3, nil
}

type fakeQueue struct {
	tasks []*asynq.Task
	err   error
}

func (q *fakeQueue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if q.err != nil {
		return nil, q.err
	}
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func newTestJob(store AuditStore) *AuditJob {
	return NewAuditJob(store, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
}

func TestAuditRecorderEnqueuesEvent(t *testing.T) {
	queue := &fakeQueue{}
	rec := NewAuditRecorder(queue)

	err := rec.Record(context.Background(), audit.Event{Action: audit.ActionUserDelete, Actor: "eve.holt@reqres.in", SessionID: "s1", TargetID: "9"})
	require.NoError(t, err)
	require.Len(t, queue.tasks, 1)
	assert.Equal(t, TaskAuditRecord, queue.tasks[0].Type())

	var ev audit.Event
	require.NoError(t, json.Unmarshal(queue.tasks[0].Payload(), &ev))
	assert.Equal(t, "9", ev.TargetID)
	assert.False(t, ev.OccurredAt.IsZero())
}

func TestAuditRecorderRejectsInvalidEvent(t *testing.T) {
	queue := &fakeQueue{}
	err := NewAuditRecorder(queue).Record(context.Background(), audit.Event{Action: audit.ActionLogin})
	assert.ErrorIs(t, err, audit.ErrInvalidEvent)
	assert.Empty(t, queue.tasks)
}

func TestHandleRecordRoundTripsTask(t *testing.T) {
	store := &fakeStore{}
	task, err := NewAuditRecordTask(audit.Event{Action: audit.ActionLogin, Actor: "eve.holt@reqres.in", SessionID: "s1"})
	require.NoError(t, err)

	require.NoError(t, newTestJob(store).HandleRecord(context.Background(), task))
	require.Len(t, store.events, 1)
	assert.Equal(t, audit.ActionLogin, store.events[0].Action)
}

func TestHandleRecordSkipsRetryOnMalformedPayload(t *testing.T) {
	store := &fakeStore{}
	err := newTestJob(store).HandleRecord(context.Background(), asynq.NewTask(TaskAuditRecord, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = newTestJob(store).HandleRecord(context.Background(), asynq.NewTask(TaskAuditRecord, []byte(`{"action":"auth.login"}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, store.events)
}

func TestHandleRecordReturnsStoreError(t *testing.T) {
	boom := errors.New("db down")
	task, err := NewAuditRecordTask(audit.Event{Action: audit.ActionLogout, SessionID: "s1"})
	require.NoError(t, err)

	err = newTestJob(&fakeStore{recordErr: boom}).HandleRecord(context.Background(), task)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestHandlePruneUsesRetention(t *testing.T) {
	store := &fakeStore{}
	job := newTestJob(store)
	now := time.Date(2024, 5, 1, 3, 0, 0, 0, time.UTC)
	job.clock = func() time.Time { return now }

	task, err := NewAuditPruneTask(48 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.HandlePrune(context.Background(), task))
	assert.Equal(t, now.Add(-48*time.Hour), store.cutoff)

	zero, err := NewAuditPruneTask(0)
	require.NoError(t, err)
	assert.ErrorIs(t, job.HandlePrune(context.Background(), zero), asynq.SkipRetry)
}

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return f.info, f.err
}

func serveHealth(t *testing.T, h *Handler) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Route("/jobs", h.MountRoutes)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	return rr
}

func TestJobsHealth(t *testing.T) {
	rr := serveHealth(t, NewHandler(fakeInspector{info: &asynq.QueueInfo{Queue: "default", Pending: 4, Retry: 1}}, nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"queue":"default","enabled":true,"pending":4,"retry":1,"failed":0}`, rr.Body.String())

	rr = serveHealth(t, NewHandler(nil, nil))
	assert.JSONEq(t, `{"queue":"default","enabled":false,"pending":0,"retry":0,"failed":0}`, rr.Body.String())

	rr = serveHealth(t, NewHandler(fakeInspector{err: errors.New("redis")}, nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

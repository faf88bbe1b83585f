package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/userdesk/internal/audit"
	jobmetrics "github.com/odyssey-erp/userdesk/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// AuditStore is the persistence used by the audit handlers.
type AuditStore interface {
	Record(ctx context.Context, ev audit.Event) error
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

// AuditJob handles audit:record and audit:prune tasks.
type AuditJob struct {
	Store   AuditStore
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewAuditJob wires dependencies for the audit handlers.
func NewAuditJob(store AuditStore, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditJob {
	return &AuditJob{
		Store:   store,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// HandleRecord persists the event carried by an audit:record task.
func (j *AuditJob) HandleRecord(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Store == nil {
		return errors.New("audit record: handler not configured")
	}
	var ev audit.Event
	if err := json.Unmarshal(t.Payload(), &ev); err != nil {
		j.logger().Warn("discard malformed audit payload", slog.Any("error", err))
		return fmt.Errorf("audit record: %v: %w", err, asynq.SkipRetry)
	}
	if err := ev.Validate(); err != nil {
		j.logger().Warn("discard invalid audit event", slog.String("action", ev.Action))
		return fmt.Errorf("audit record: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskAuditRecord)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	if err := j.Store.Record(ctx, ev); err != nil {
		j.logger().Error("record audit event", slog.String("action", ev.Action), slog.Any("error", err))
		return err
	}
	return nil
}

// HandlePrune deletes events older than the payload's retention.
func (j *AuditJob) HandlePrune(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Store == nil {
		return errors.New("audit prune: handler not configured")
	}
	var payload AuditPrunePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("audit prune: %v: %w", err, asynq.SkipRetry)
	}
	if payload.Retention <= 0 {
		return fmt.Errorf("audit prune: retention must be positive: %w", asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskAuditPrune)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	cutoff := j.now().Add(-payload.Retention)
	removed, err := j.Store.Prune(ctx, cutoff)
	if err != nil {
		j.logger().Error("prune audit log", slog.Any("error", err))
		return err
	}
	j.logger().Info("pruned audit log", slog.Int64("removed", removed), slog.Time("cutoff", cutoff))
	return nil
}

func (j *AuditJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *AuditJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *AuditJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// Enqueuer is the part of asynq.Client used to submit tasks.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AuditRecorder implements audit.Recorder by enqueueing audit:record tasks.
type AuditRecorder struct {
	queue Enqueuer
}

// NewAuditRecorder builds an AuditRecorder on top of q.
func NewAuditRecorder(q Enqueuer) *AuditRecorder {
	return &AuditRecorder{queue: q}
}

// Record enqueues ev for the worker.
func (r *AuditRecorder) Record(ctx context.Context, ev audit.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	task, err := NewAuditRecordTask(ev)
	if err != nil {
		return err
	}
	_, err = r.queue.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
	return err
}

var _ audit.Recorder = (*AuditRecorder)(nil)

package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/userdesk/internal/audit"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuditRecord persists one audit event.
	TaskAuditRecord = "audit:record"
	// TaskAuditPrune deletes audit events past the retention window.
	TaskAuditPrune = "audit:prune"

	// AuditPruneSchedule runs the prune task daily at 03:00 UTC.
	AuditPruneSchedule = "0 3 * * *"
)

// AuditPrunePayload configures a prune run.
type AuditPrunePayload struct {
	Retention time.Duration `json:"retention"`
}

// NewAuditRecordTask constructs an audit:record task carrying ev.
func NewAuditRecordTask(ev audit.Event) (*asynq.Task, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditRecord, data, asynq.MaxRetry(5), asynq.Timeout(30*time.Second)), nil
}

// NewAuditPruneTask constructs an audit:prune task.
func NewAuditPruneTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(AuditPrunePayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditPrune, data), nil
}

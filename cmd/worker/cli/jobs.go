// Package cli holds the manual queue helpers exposed by the worker binary.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/userdesk/jobs"
)

// Inspector is the part of asynq.Inspector the CLI reads from.
type Inspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// JobsCLI wraps manual management helpers for the audit queue.
type JobsCLI struct {
	client    jobs.Enqueuer
	inspector Inspector
}

// NewJobsCLI builds the helpers over an already opened client and inspector.
func NewJobsCLI(client jobs.Enqueuer, inspector Inspector) *JobsCLI {
	return &JobsCLI{client: client, inspector: inspector}
}

// Trigger enqueues a supported job by name.
func (c *JobsCLI) Trigger(ctx context.Context, name string, retention time.Duration) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	switch name {
	case jobs.TaskAuditPrune:
		if retention <= 0 {
			return nil, fmt.Errorf("jobs cli: retention must be positive, got %s", retention)
		}
		task, err := jobs.NewAuditPruneTask(retention)
		if err != nil {
			return nil, err
		}
		return c.client.EnqueueContext(ctx, task, asynq.MaxRetry(3))
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Archived  int
}

// InspectQueue reports the metrics of the default queue.
func (c *JobsCLI) InspectQueue() (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
		stats.Archived = info.Archived
	}
	return stats, nil
}

// Print writes stats in a single line.
func (s QueueStats) Print(w io.Writer) error {
	_, err := fmt.Fprintf(w, "queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
		s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived)
	return err
}

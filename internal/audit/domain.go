// Package audit records who did what through the admin client.
package audit

import (
	"context"
	"errors"
	"time"
)

// Actions recorded by userdesk.
const (
	ActionLogin      = "auth.login"
	ActionLogout     = "auth.logout"
	ActionUserUpdate = "users.update"
	ActionUserDelete = "users.delete"
)

// ErrInvalidEvent is returned for events missing required fields.
var ErrInvalidEvent = errors.New("audit: event requires action and session")

// Event is a single audit record.
type Event struct {
	Action     string         `json:"action"`
	Actor      string         `json:"actor"`
	SessionID  string         `json:"session_id"`
	TargetID   string         `json:"target_id,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Validate checks required fields.
func (e Event) Validate() error {
	if e.Action == "" || e.SessionID == "" {
		return ErrInvalidEvent
	}
	return nil
}

// Recorder accepts audit events.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// NopRecorder drops every event. Used when no audit database is configured.
type NopRecorder struct{}

// Record implements Recorder.
func (NopRecorder) Record(context.Context, Event) error { return nil }

package audit

import (
	"context"
	"log/slog"

	"github.com/odyssey-erp/userdesk/internal/shared"
)

// SessionListener turns session token transitions into login/logout events.
type SessionListener struct {
	recorder Recorder
	logger   *slog.Logger
}

// NewSessionListener builds a SessionListener.
func NewSessionListener(recorder Recorder, logger *slog.Logger) *SessionListener {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionListener{recorder: recorder, logger: logger}
}

// OnTokenEvent implements shared.TokenListener. Failures are logged only.
func (l *SessionListener) OnTokenEvent(ctx context.Context, ev shared.TokenEvent) {
	if l == nil || l.recorder == nil {
		return
	}
	action := ActionLogin
	if ev.Kind == shared.TokenCleared {
		action = ActionLogout
	}
	err := l.recorder.Record(ctx, Event{
		Action:     action,
		Actor:      ev.User,
		SessionID:  ev.SessionID,
		OccurredAt: ev.At,
	})
	if err != nil {
		l.logger.Warn("audit session event", slog.String("action", action), slog.Any("error", err))
	}
}

var _ shared.TokenListener = (*SessionListener)(nil)

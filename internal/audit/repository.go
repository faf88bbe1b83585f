package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS admin_audit_log (
	id          BIGSERIAL PRIMARY KEY,
	action      TEXT        NOT NULL,
	actor       TEXT        NOT NULL DEFAULT '',
	session_id  TEXT        NOT NULL,
	target_id   TEXT        NOT NULL DEFAULT '',
	meta        JSONB       NOT NULL DEFAULT '{}'::jsonb,
	occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS admin_audit_log_occurred_at_idx ON admin_audit_log (occurred_at);
`

// DB is the subset of pgxpool.Pool used by PGRepository.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PGRepository stores audit events in PostgreSQL.
type PGRepository struct {
	db DB
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(db DB) *PGRepository {
	return &PGRepository{db: db}
}

// EnsureSchema creates the audit table when missing.
func (r *PGRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, schemaSQL)
	return err
}

// Record persists ev.
func (r *PGRepository) Record(ctx context.Context, ev Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	meta := ev.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	var at *time.Time
	if !ev.OccurredAt.IsZero() {
		t := ev.OccurredAt.UTC()
		at = &t
	}
	_, err = r.db.Exec(ctx,
		`INSERT INTO admin_audit_log (action, actor, session_id, target_id, meta, occurred_at) VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`,
		ev.Action, ev.Actor, ev.SessionID, ev.TargetID, metaJSON, at)
	return err
}

// Prune deletes events older than the cutoff and returns how many went.
func (r *PGRepository) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM admin_audit_log WHERE occurred_at < $1`, olderThan.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Recent returns the latest events, newest first.
func (r *PGRepository) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.Query(ctx,
		`SELECT action, actor, session_id, target_id, meta, occurred_at FROM admin_audit_log ORDER BY occurred_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		var meta []byte
		if err := rows.Scan(&ev.Action, &ev.Actor, &ev.SessionID, &ev.TargetID, &meta, &ev.OccurredAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &ev.Meta); err != nil {
				return nil, err
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

var _ Recorder = (*PGRepository)(nil)

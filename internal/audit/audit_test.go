package audit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/userdesk/internal/shared"
)

type execCall struct {
	sql  string
	args []any
}

type fakeDB struct {
	execs []execCall
	tag   pgconn.CommandTag
	rows  pgx.Rows
	err   error
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, execCall{sql: sql, args: args})
	return f.tag, f.err
}

func (f *fakeDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rows, nil
}

type fakeRows struct {
	data [][]any
	i    int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return r.data[r.i-1], nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.i >= len(r.data) {
		return false
	}
	r.i++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.i-1]
	*dest[0].(*string) = row[0].(string)
	*dest[1].(*string) = row[1].(string)
	*dest[2].(*string) = row[2].(string)
	*dest[3].(*string) = row[3].(string)
	*dest[4].(*[]byte) = row[4].([]byte)
	*dest[5].(*time.Time) = row[5].(time.Time)
	return nil
}

func TestRecordInsertsEvent(t *testing.T) {
	db := &fakeDB{}
	repo := NewRepository(db)
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	err := repo.Record(context.Background(), Event{
		Action: ActionUserUpdate, Actor: "eve.holt@reqres.in", SessionID: "s1", TargetID: "2",
		Meta: map[string]any{"first_name": "Janet"}, OccurredAt: at,
	})
	require.NoError(t, err)
	require.Len(t, db.execs, 1)
	assert.Contains(t, db.execs[0].sql, "INSERT INTO admin_audit_log")
	args := db.execs[0].args
	assert.Equal(t, ActionUserUpdate, args[0])
	assert.Equal(t, "2", args[3])
	assert.JSONEq(t, `{"first_name":"Janet"}`, string(args[4].([]byte)))
	assert.Equal(t, at, *args[5].(*time.Time))
}

func TestRecordRejectsIncompleteEvent(t *testing.T) {
	db := &fakeDB{}
	err := NewRepository(db).Record(context.Background(), Event{Action: ActionLogin})
	assert.ErrorIs(t, err, ErrInvalidEvent)
	assert.Empty(t, db.execs)
}

func TestPruneReportsRowsAffected(t *testing.T) {
	db := &fakeDB{tag: pgconn.NewCommandTag("DELETE 7")}
	n, err := NewRepository(db).Prune(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.True(t, strings.HasPrefix(db.execs[0].sql, "DELETE FROM admin_audit_log"))
}

func TestEnsureSchemaCreatesTable(t *testing.T) {
	db := &fakeDB{}
	require.NoError(t, NewRepository(db).EnsureSchema(context.Background()))
	assert.Contains(t, db.execs[0].sql, "CREATE TABLE IF NOT EXISTS admin_audit_log")
}

func TestRecentDecodesRows(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	db := &fakeDB{rows: &fakeRows{data: [][]any{
		{ActionUserDelete, "eve.holt@reqres.in", "s1", "9", []byte(`{}`), at},
		{ActionLogin, "eve.holt@reqres.in", "s1", "", []byte(nil), at.Add(-time.Minute)},
	}}}

	events, err := NewRepository(db).Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "9", events[0].TargetID)
	assert.Equal(t, ActionLogin, events[1].Action)
}

type memRecorder struct {
	events []Event
	err    error
}

func (m *memRecorder) Record(_ context.Context, ev Event) error {
	m.events = append(m.events, ev)
	return m.err
}

func TestSessionListenerMapsTokenEvents(t *testing.T) {
	rec := &memRecorder{}
	l := NewSessionListener(rec, nil)
	at := time.Now().UTC()

	l.OnTokenEvent(context.Background(), shared.TokenEvent{Kind: shared.TokenSet, SessionID: "s1", User: "eve.holt@reqres.in", At: at})
	l.OnTokenEvent(context.Background(), shared.TokenEvent{Kind: shared.TokenCleared, SessionID: "s1", User: "eve.holt@reqres.in", At: at})

	require.Len(t, rec.events, 2)
	assert.Equal(t, ActionLogin, rec.events[0].Action)
	assert.Equal(t, ActionLogout, rec.events[1].Action)
	assert.Equal(t, "eve.holt@reqres.in", rec.events[1].Actor)
}

func TestSessionListenerSwallowsFailures(t *testing.T) {
	rec := &memRecorder{err: errors.New("queue down")}
	assert.NotPanics(t, func() {
		NewSessionListener(rec, nil).OnTokenEvent(context.Background(), shared.TokenEvent{Kind: shared.TokenSet, SessionID: "s1"})
	})
}

type stubLister struct {
	events []Event
	limit  int
}

func (s *stubLister) Recent(_ context.Context, limit int) ([]Event, error) {
	s.limit = limit
	return s.events, nil
}

func TestHandlerListsRecentEvents(t *testing.T) {
	lister := &stubLister{events: []Event{{Action: ActionLogin, SessionID: "s1"}}}
	r := chi.NewRouter()
	r.Route("/audit", NewHandler(lister, nil).MountRoutes)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/audit/?limit=5", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 5, lister.limit)
	assert.Contains(t, rr.Body.String(), `"action":"auth.login"`)

	r = chi.NewRouter()
	r.Route("/audit", NewHandler(nil, nil).MountRoutes)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/audit/", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

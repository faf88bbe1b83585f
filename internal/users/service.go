package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/odyssey-erp/userdesk/internal/audit"
	"github.com/odyssey-erp/userdesk/internal/directory"
	"github.com/odyssey-erp/userdesk/internal/shared"
)

// Directory is the part of the upstream API client used by Service.
type Directory interface {
	ListUsers(ctx context.Context, token string, page int) (directory.Page, error)
	UpdateUser(ctx context.Context, token string, id int64, upd directory.UserUpdate) error
	DeleteUser(ctx context.Context, token string, id int64) error
}

// Actor identifies the session a call is made for.
type Actor struct {
	SessionID string
	Token     string
	User      string
}

// Service coordinates the upstream directory with the per-session listing.
type Service struct {
	dir      Directory
	listings *ListingStore
	audit    audit.Recorder
	logger   *slog.Logger
}

// NewService builds Service instance. recorder may be nil.
func NewService(dir Directory, listings *ListingStore, recorder audit.Recorder, logger *slog.Logger) *Service {
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{dir: dir, listings: listings, audit: recorder, logger: logger}
}

// LoadPage fetches page from the API and stores it as the session listing.
// stale reports that a newer fetch was dispatched meanwhile; the returned
// listing is then not stored.
func (s *Service) LoadPage(ctx context.Context, actor Actor, page int) (l Listing, stale bool, err error) {
	if page < 1 {
		page = 1
	}
	seq, err := s.listings.Dispatch(ctx, actor.SessionID)
	if err != nil {
		return Listing{}, false, err
	}
	p, err := s.dir.ListUsers(ctx, actor.Token, page)
	if err != nil {
		return Listing{}, false, err
	}
	l = listingFromPage(p, seq)
	if l.Page < 1 {
		l.Page = page
	}
	stored, err := s.listings.Commit(ctx, actor.SessionID, l)
	if err != nil {
		return Listing{}, false, err
	}
	if !stored {
		s.logger.Debug("discard stale page", slog.Int("page", page), slog.Int64("seq", seq))
	}
	return l, !stored, nil
}

// Current returns the session listing, fetching page 1 when none is loaded.
func (s *Service) Current(ctx context.Context, actor Actor) (Listing, error) {
	loaded, err := s.listings.Load(ctx, actor.SessionID)
	if err != nil {
		return Listing{}, err
	}
	if loaded != nil {
		return *loaded, nil
	}
	l, stale, err := s.LoadPage(ctx, actor, 1)
	if err != nil || !stale {
		return l, err
	}
	if newer, err := s.listings.Load(ctx, actor.SessionID); err == nil && newer != nil {
		return *newer, nil
	}
	return l, nil
}

// Search filters the loaded page. No API call is made once a page is loaded.
func (s *Service) Search(ctx context.Context, actor Actor, query string) (Listing, []Record, error) {
	l, err := s.Current(ctx, actor)
	if err != nil {
		return Listing{}, nil, err
	}
	return l, Filter(l.Records, query), nil
}

// Find returns the record with id from the loaded page.
func (s *Service) Find(ctx context.Context, actor Actor, id int64) (Record, error) {
	l, err := s.listings.Load(ctx, actor.SessionID)
	if err != nil {
		return Record{}, err
	}
	rec, ok := l.Find(id)
	if !ok {
		return Record{}, fmt.Errorf("user %d: %w", id, shared.ErrNotFound)
	}
	return rec, nil
}

// Update sends the edit upstream and, on success, renames the loaded record.
// On failure the listing is left as it was.
func (s *Service) Update(ctx context.Context, actor Actor, id int64, in EditInput) error {
	if _, err := s.Find(ctx, actor, id); err != nil {
		return err
	}
	if err := s.dir.UpdateUser(ctx, actor.Token, id, directory.UserUpdate{FirstName: in.FirstName, Job: in.Job}); err != nil {
		return err
	}
	if _, err := s.listings.Mutate(ctx, actor.SessionID, func(l *Listing) bool {
		return l.Rename(id, in.FirstName)
	}); err != nil && !errors.Is(err, ErrNoListing) {
		return err
	}
	meta := map[string]any{"first_name": in.FirstName}
	if in.Job != "" {
		meta["job"] = in.Job
	}
	s.record(ctx, actor, audit.ActionUserUpdate, id, meta)
	return nil
}

// Delete removes the user upstream and, on success, from the loaded page.
func (s *Service) Delete(ctx context.Context, actor Actor, id int64) error {
	if _, err := s.Find(ctx, actor, id); err != nil {
		return err
	}
	if err := s.dir.DeleteUser(ctx, actor.Token, id); err != nil {
		return err
	}
	if _, err := s.listings.Mutate(ctx, actor.SessionID, func(l *Listing) bool {
		return l.Remove(id)
	}); err != nil && !errors.Is(err, ErrNoListing) {
		return err
	}
	s.record(ctx, actor, audit.ActionUserDelete, id, nil)
	return nil
}

// Reset forgets the session listing. Called on login and logout.
func (s *Service) Reset(ctx context.Context, sessionID string) error {
	return s.listings.Clear(ctx, sessionID)
}

func (s *Service) record(ctx context.Context, actor Actor, action string, id int64, meta map[string]any) {
	err := s.audit.Record(ctx, audit.Event{
		Action:     action,
		Actor:      actor.User,
		SessionID:  actor.SessionID,
		TargetID:   strconv.FormatInt(id, 10),
		Meta:       meta,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNoListing is returned by Mutate when the session has no loaded page.
var ErrNoListing = errors.New("users: no listing loaded")

const mutateRetries = 3

// commitIfLatest stores the snapshot only when its sequence number is not
// older than the latest dispatched one.
var commitIfLatest = redis.NewScript(`
local latest = tonumber(redis.call('GET', KEYS[1]) or '0')
if tonumber(ARGV[1]) < latest then
  return 0
end
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
return 1
`)

// ListingStore keeps the loaded page of each session in Redis, together with
// a per-session counter of dispatched page fetches.
type ListingStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewListingStore builds a ListingStore. ttl should match the session TTL.
func NewListingStore(client *redis.Client, ttl time.Duration) *ListingStore {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &ListingStore{client: client, ttl: ttl}
}

// Dispatch allocates the sequence number for a new page fetch.
func (s *ListingStore) Dispatch(ctx context.Context, sessionID string) (int64, error) {
	key := s.seqKey(sessionID)
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("users: dispatch: %w", err)
	}
	return incr.Val(), nil
}

// Commit stores l unless a newer fetch was dispatched after l.Seq. It reports
// whether l was stored.
func (s *ListingStore) Commit(ctx context.Context, sessionID string, l Listing) (bool, error) {
	data, err := json.Marshal(l)
	if err != nil {
		return false, err
	}
	stored, err := commitIfLatest.Run(ctx, s.client,
		[]string{s.seqKey(sessionID), s.key(sessionID)},
		l.Seq, data, s.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("users: commit listing: %w", err)
	}
	return stored == 1, nil
}

// Load returns the stored listing, or nil when none exists.
func (s *ListingStore) Load(ctx context.Context, sessionID string) (*Listing, error) {
	raw, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("users: load listing: %w", err)
	}
	var l Listing
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, fmt.Errorf("users: decode listing: %w", err)
	}
	return &l, nil
}

// Mutate applies fn to the stored listing under optimistic locking. fn returns
// false to leave the listing untouched.
func (s *ListingStore) Mutate(ctx context.Context, sessionID string, fn func(*Listing) bool) (*Listing, error) {
	key := s.key(sessionID)
	var result *Listing
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNoListing
		}
		if err != nil {
			return err
		}
		var l Listing
		if err := json.Unmarshal(raw, &l); err != nil {
			return err
		}
		result = &l
		if !fn(&l) {
			return nil
		}
		data, err := json.Marshal(l)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}
	for i := 0; i < mutateRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, fmt.Errorf("users: mutate listing: %w", redis.TxFailedErr)
}

// Clear forgets the session's listing. The sequence counter is bumped, not
// deleted, so fetches still in flight cannot repopulate it.
func (s *ListingStore) Clear(ctx context.Context, sessionID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(sessionID))
	pipe.Incr(ctx, s.seqKey(sessionID))
	pipe.Expire(ctx, s.seqKey(sessionID), s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *ListingStore) key(sessionID string) string {
	return "listing:" + sessionID
}

func (s *ListingStore) seqKey(sessionID string) string {
	return "listing:" + sessionID + ":seq"
}

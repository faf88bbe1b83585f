package users

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*ListingStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewListingStore(client, time.Hour), mr
}

func TestListingStoreLoadMissing(t *testing.T) {
	store, _ := newTestStore(t)
	l, err := store.Load(context.Background(), "s1")
	require.NoError(t, err)
	assert.Nil(t, l)
}

func TestListingStoreRejectsStaleCommit(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	first, err := store.Dispatch(ctx, "s1")
	require.NoError(t, err)
	second, err := store.Dispatch(ctx, "s1")
	require.NoError(t, err)
	require.Greater(t, second, first)

	stored, err := store.Commit(ctx, "s1", Listing{Page: 2, Seq: second, Records: sampleRecords()[:1]})
	require.NoError(t, err)
	assert.True(t, stored)

	stored, err = store.Commit(ctx, "s1", Listing{Page: 1, Seq: first, Records: sampleRecords()})
	require.NoError(t, err)
	assert.False(t, stored)

	l, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, 2, l.Page)
}

func TestListingStoreIsolatesSessions(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	seqA, err := store.Dispatch(ctx, "a")
	require.NoError(t, err)
	_, err = store.Dispatch(ctx, "b")
	require.NoError(t, err)
	_, err = store.Dispatch(ctx, "b")
	require.NoError(t, err)

	stored, err := store.Commit(ctx, "a", Listing{Page: 1, Seq: seqA})
	require.NoError(t, err)
	assert.True(t, stored)
}

func TestListingStoreClearInvalidatesInFlight(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	seq, err := store.Dispatch(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, store.Clear(ctx, "s1"))

	stored, err := store.Commit(ctx, "s1", Listing{Page: 1, Seq: seq})
	require.NoError(t, err)
	assert.False(t, stored)
}

func TestListingStoreMutate(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Mutate(ctx, "s1", func(*Listing) bool { return true })
	assert.ErrorIs(t, err, ErrNoListing)

	seq, err := store.Dispatch(ctx, "s1")
	require.NoError(t, err)
	_, err = store.Commit(ctx, "s1", Listing{Page: 1, Seq: seq, Records: sampleRecords()})
	require.NoError(t, err)

	l, err := store.Mutate(ctx, "s1", func(l *Listing) bool { return l.Remove(1) })
	require.NoError(t, err)
	assert.Len(t, l.Records, 3)

	loaded, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3, 4}, ids(loaded.Records))
}

func TestListingStoreAppliesTTL(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	seq, err := store.Dispatch(ctx, "s1")
	require.NoError(t, err)
	_, err = store.Commit(ctx, "s1", Listing{Page: 1, Seq: seq})
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)
	l, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, l)
}

package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celerix-dev/drinklog/internal/engine"
	"github.com/celerix-dev/drinklog/pkg/schema"
	"github.com/celerix-dev/drinklog/pkg/sdk"
)

func waitUpdate(t *testing.T, m *Mirror) MirrorSnapshot {
	t.Helper()
	select {
	case <-m.Updated():
		return m.Snapshot()
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for mirror update")
	}
	return MirrorSnapshot{}
}

// waitVersion waits until the mirror published at least version v.
func waitVersion(t *testing.T, m *Mirror, v uint64) MirrorSnapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if snap := m.Snapshot(); snap.Version >= v {
			return snap
		}
		select {
		case <-m.Updated():
		case <-deadline:
			t.Fatalf("timed out waiting for version %d", v)
		}
	}
}

func TestMirror_SubscribesNewestFirst(t *testing.T) {
	store := &mockStore{Feed: newFakeFeed()}
	m := NewMirror(store, quiet)
	defer m.Close()

	assert.True(t, m.Snapshot().Loading)
	require.NoError(t, m.Start(context.Background()))
	require.Len(t, store.Queries, 1)
	assert.Equal(t, schema.Query{Collection: "drinks", OrderBy: "timestamp", Direction: schema.Desc}, store.Queries[0])

	assert.ErrorIs(t, m.Start(context.Background()), ErrMirrorStarted)
}

func TestMirror_ReplacesSnapshotOnEveryDelivery(t *testing.T) {
	feed := newFakeFeed()
	m := NewMirror(&mockStore{Feed: feed}, quiet)
	defer m.Close()
	require.NoError(t, m.Start(context.Background()))

	older := drink("1", "Al", schema.Beer, "IPA", "Pub", "2026-03-01", "20:00")
	newer := drink("2", "Al", schema.Wine, "Merlot", "Cellar", "2026-03-01", "21:00")

	// Deliberately delivered oldest first.
	feed.push(documents(older, newer))
	snap := waitUpdate(t, m)
	assert.False(t, snap.Loading)
	assert.NoError(t, snap.Err)
	assert.Equal(t, uint64(1), snap.Version)
	assert.Equal(t, []string{"2", "1"}, recordIDs(snap.Records))
	require.NoError(t, m.WaitReady(context.Background()))

	feed.push(documents(newer))
	snap = waitUpdate(t, m)
	assert.Equal(t, uint64(2), snap.Version)
	assert.Equal(t, []string{"2"}, recordIDs(snap.Records))
}

func TestMirror_EqualTimestampsKeepFeedOrder(t *testing.T) {
	feed := newFakeFeed()
	m := NewMirror(&mockStore{Feed: feed}, quiet)
	defer m.Close()
	require.NoError(t, m.Start(context.Background()))

	a := drink("a", "Al", schema.Beer, "IPA", "Pub", "2026-03-01", "20:00")
	b := drink("b", "Bo", schema.Beer, "IPA", "Pub", "2026-03-01", "20:00")
	c := drink("c", "Cy", schema.Beer, "IPA", "Pub", "2026-03-01", "19:00")

	feed.push(documents(c, b, a))
	snap := waitUpdate(t, m)
	assert.Equal(t, []string{"b", "a", "c"}, recordIDs(snap.Records))
}

func TestMirror_SkipsUndecodableDocuments(t *testing.T) {
	feed := newFakeFeed()
	m := NewMirror(&mockStore{Feed: feed}, quiet)
	defer m.Close()
	require.NoError(t, m.Start(context.Background()))

	docs := documents(drink("1", "Al", schema.Beer, "IPA", "Pub", "2026-03-01", "20:00"))
	docs = append(docs,
		schema.Document{ID: "bad-type", Fields: map[string]any{"type": "cider", "timestamp": "2026-03-01T20:00:00.000Z"}},
		schema.Document{ID: "no-time", Fields: map[string]any{"type": "beer"}},
	)
	feed.push(docs)

	snap := waitUpdate(t, m)
	assert.Equal(t, []string{"1"}, recordIDs(snap.Records))
}

func TestMirror_SubscribeFailure(t *testing.T) {
	store := &mockStore{SubscribeErr: errors.New("permission denied")}
	m := NewMirror(store, quiet)
	defer m.Close()

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.True(t, IsSubscriptionError(err))

	snap := m.Snapshot()
	assert.False(t, snap.Loading, "loading must end on failure")
	assert.True(t, IsSubscriptionError(snap.Err))
	assert.Empty(t, snap.Records)

	waitErr := m.WaitReady(context.Background())
	assert.True(t, IsSubscriptionError(waitErr))
}

func TestMirror_FeedErrorKeepsStaleSnapshot(t *testing.T) {
	feed := newFakeFeed()
	m := NewMirror(&mockStore{Feed: feed}, quiet)
	defer m.Close()
	require.NoError(t, m.Start(context.Background()))

	feed.push(documents(drink("1", "Al", schema.Beer, "IPA", "Pub", "2026-03-01", "20:00")))
	waitVersion(t, m, 1)

	cause := errors.New("connection reset")
	feed.fail(cause)

	deadline := time.After(2 * time.Second)
	for m.Snapshot().Err == nil {
		select {
		case <-m.Updated():
		case <-deadline:
			t.Fatal("timed out waiting for terminal error")
		}
	}
	snap := m.Snapshot()
	assert.True(t, IsSubscriptionError(snap.Err))
	assert.ErrorIs(t, snap.Err, cause)
	assert.False(t, snap.Loading)
	assert.Equal(t, []string{"1"}, recordIDs(snap.Records))
	assert.Equal(t, uint64(1), snap.Version)
}

func TestMirror_CloseIsIdempotentAndFinal(t *testing.T) {
	feed := newFakeFeed()
	m := NewMirror(&mockStore{Feed: feed}, quiet)
	require.NoError(t, m.Start(context.Background()))

	feed.push(documents(drink("1", "Al", schema.Beer, "IPA", "Pub", "2026-03-01", "20:00")))
	waitVersion(t, m, 1)

	m.Close()
	m.Close()

	assert.Equal(t, 1, feed.cancelCount())
	assert.NoError(t, m.Snapshot().Err, "cancellation is not a feed failure")
	assert.Equal(t, uint64(1), m.Snapshot().Version)
	assert.ErrorIs(t, m.Start(context.Background()), ErrMirrorClosed)
}

func TestMirror_CloseBeforeStart(t *testing.T) {
	m := NewMirror(&mockStore{Feed: newFakeFeed()}, quiet)
	m.Close()
	assert.ErrorIs(t, m.Start(context.Background()), ErrMirrorClosed)
}

func TestMirror_TracksEmbeddedStore(t *testing.T) {
	store := sdk.NewEmbedded(engine.NewMemStore(nil, nil))
	defer store.Close()
	ctx := context.Background()

	m := NewMirror(store, quiet)
	defer m.Close()
	require.NoError(t, m.Start(ctx))
	require.NoError(t, m.WaitReady(ctx))
	assert.Empty(t, m.Snapshot().Records)

	gw := NewGateway(store, quiet, WithLocation(time.UTC))
	first, err := gw.Submit(ctx, schema.Draft{UserName: "Al", Type: schema.Beer, Name: "IPA", Location: "Pub", Date: "2026-03-01", Time: "20:00"})
	require.NoError(t, err)
	_, err = gw.Submit(ctx, schema.Draft{UserName: "Al", Type: schema.Wine, Name: "Merlot", Location: "Cellar", Date: "2026-03-01", Time: "21:00"})
	require.NoError(t, err)

	snap := waitFor(t, m, 2)
	assert.Equal(t, "Merlot", snap.Records[0].Name)
	board := Leaderboard(snap.Records, "Al")
	require.Len(t, board, 1)
	assert.Equal(t, 2, board[0].Total)

	require.NoError(t, gw.Remove(ctx, first))
	snap = waitFor(t, m, 1)
	board = Leaderboard(snap.Records, "Al")
	require.Len(t, board, 1)
	assert.Equal(t, 1, board[0].Total)
	assert.Zero(t, ComputePersonal(Partition(snap.Records, "Al")).Counts.Beer)
}

func TestMirror_StoreShutdownIsSubscriptionError(t *testing.T) {
	store := sdk.NewEmbedded(engine.NewMemStore(nil, nil))
	ctx := context.Background()

	m := NewMirror(store, quiet)
	defer m.Close()
	require.NoError(t, m.Start(ctx))
	require.NoError(t, m.WaitReady(ctx))

	require.NoError(t, store.Close())

	deadline := time.After(2 * time.Second)
	for m.Snapshot().Err == nil {
		select {
		case <-m.Updated():
		case <-deadline:
			t.Fatal("timed out waiting for terminal error")
		}
	}
	assert.ErrorIs(t, m.Snapshot().Err, sdk.ErrFeedClosed)
}

// waitFor waits until the mirror holds n records.
func waitFor(t *testing.T, m *Mirror, n int) MirrorSnapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if snap := m.Snapshot(); !snap.Loading && len(snap.Records) == n {
			return snap
		}
		select {
		case <-m.Updated():
		case <-deadline:
			t.Fatalf("timed out waiting for %d records", n)
		}
	}
}

package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celerix-dev/drinklog/pkg/schema"
)

func TestSession_ReadsIdentityOnce(t *testing.T) {
	prefs := &memPrefs{values: map[string]string{IdentityKey: "Al"}}
	s, err := NewSession(prefs, NewMirror(&mockStore{}, quiet), nil)
	require.NoError(t, err)

	assert.Equal(t, "Al", s.Identity())
	assert.Equal(t, "Al", s.Identity())
	assert.Equal(t, 1, prefs.gets)
}

func TestSession_SetIdentity(t *testing.T) {
	prefs := &memPrefs{}
	s, err := NewSession(prefs, NewMirror(&mockStore{}, quiet), nil)
	require.NoError(t, err)
	assert.Empty(t, s.Identity())

	require.NoError(t, s.SetIdentity("  Bo "))
	assert.Equal(t, "Bo", s.Identity())
	assert.Equal(t, "Bo", prefs.values[IdentityKey])

	err = s.SetIdentity("   ")
	assert.True(t, IsValidationError(err))
	assert.Equal(t, "Bo", s.Identity())

	prefs.setErr = errors.New("disk full")
	err = s.SetIdentity("Cy")
	assert.True(t, IsWriteError(err))
	assert.Equal(t, "Bo", s.Identity(), "identity only changes once persisted")
}

func TestSession_NewDraft(t *testing.T) {
	s, err := NewSession(&memPrefs{values: map[string]string{IdentityKey: "Al"}}, NewMirror(&mockStore{}, quiet), nil)
	require.NoError(t, err)

	d := s.NewDraft(time.Date(2026, 3, 1, 20, 15, 0, 0, time.UTC))
	assert.Equal(t, schema.Draft{UserName: "Al", Type: schema.Beer, Date: "2026-03-01", Time: "20:15"}, d)
}

func TestSession_Dashboard(t *testing.T) {
	feed := newFakeFeed()
	mirror := NewMirror(&mockStore{Feed: feed}, quiet)
	defer mirror.Close()
	clock := newFakeClock()
	notice := NewNotice(clock, NoticeDuration)

	s, err := NewSession(&memPrefs{values: map[string]string{IdentityKey: "Al"}}, mirror, notice)
	require.NoError(t, err)
	assert.Same(t, mirror, s.Mirror())

	d, err := s.Dashboard("")
	require.NoError(t, err)
	assert.True(t, d.Loading)
	assert.Empty(t, d.History)

	require.NoError(t, mirror.Start(context.Background()))
	feed.push(documents(
		drink("3", "Bo", schema.Beer, "Lager", "Pub", "2026-03-02", "22:00"),
		drink("2", "Al", schema.Wine, "Merlot", "Cellar", "2026-03-01", "21:00"),
	))
	waitVersion(t, mirror, 1)
	notice.Show("Wine logged!")

	d, err = s.Dashboard("all")
	require.NoError(t, err)
	assert.False(t, d.Loading)
	assert.Equal(t, uint64(1), d.Version)
	assert.Equal(t, "Al", d.Identity)
	assert.Equal(t, []string{"2"}, recordIDs(d.History))
	assert.Len(t, d.Leaderboard, 2)
	assert.Equal(t, "Wine logged!", d.Notice)
	assert.Empty(t, d.Error)

	clock.Advance(NoticeDuration)
	d, _ = s.Dashboard("all")
	assert.Empty(t, d.Notice)

	feed.fail(errors.New("gone"))
	deadline := time.After(2 * time.Second)
	for mirror.Snapshot().Err == nil {
		select {
		case <-mirror.Updated():
		case <-deadline:
			t.Fatal("timed out waiting for terminal error")
		}
	}
	d, _ = s.Dashboard("all")
	assert.Contains(t, d.Error, "gone")
	assert.Len(t, d.Leaderboard, 2, "stale snapshot stays in place")
}

func TestErrorFormatting(t *testing.T) {
	err := validationError("submit", "location", schema.ErrMissingLocation)
	assert.Equal(t, "submit VALIDATION (location): location is required", err.Error())

	err = writeError("remove", errors.New("unavailable"))
	assert.Equal(t, "remove WRITE: unavailable", err.Error())
	assert.False(t, IsSubscriptionError(err))
	assert.False(t, IsWriteError(errors.New("plain")))
}

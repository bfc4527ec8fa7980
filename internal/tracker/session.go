package tracker

import (
	"strings"
	"sync"
	"time"

	"github.com/celerix-dev/drinklog/pkg/schema"
	"github.com/celerix-dev/drinklog/pkg/sdk"
)

// IdentityKey is the preference key of the local identity.
const IdentityKey = "userName"

// Session is the per-device context: the local identity, the mirror it reads from
// and the success notice.
type Session struct {
	prefs  sdk.KVStore
	mirror *Mirror
	notice *Notice

	mu       sync.RWMutex
	identity string
}

// NewSession reads the stored identity once. A missing identity is not an error.
// notice may be nil.
func NewSession(prefs sdk.KVStore, mirror *Mirror, notice *Notice) (*Session, error) {
	identity, _, err := prefs.Get(IdentityKey)
	if err != nil {
		return nil, err
	}
	return &Session{prefs: prefs, mirror: mirror, notice: notice, identity: identity}, nil
}

// Identity returns the local identity, or "" when none was chosen.
func (s *Session) Identity() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// SetIdentity trims name, persists it and makes it the local identity.
func (s *Session) SetIdentity(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return validationError("identity", IdentityKey, schema.ErrMissingUser)
	}
	if err := s.prefs.Set(IdentityKey, name); err != nil {
		return writeError("identity", err)
	}
	s.mu.Lock()
	s.identity = name
	s.mu.Unlock()
	return nil
}

// Mirror returns the mirror the session reads from.
func (s *Session) Mirror() *Mirror {
	return s.mirror
}

// NewDraft returns an empty draft owned by the local identity.
func (s *Session) NewDraft(now time.Time) schema.Draft {
	return schema.NewDraft(s.Identity(), now)
}

// Dashboard recomputes every view from the latest mirror snapshot.
func (s *Session) Dashboard(filter string) (Dashboard, error) {
	snap := s.mirror.Snapshot()
	d, err := BuildDashboard(snap.Records, s.Identity(), filter)
	if err != nil {
		return d, err
	}
	d.Loading = snap.Loading
	d.Version = snap.Version
	if snap.Err != nil {
		d.Error = snap.Err.Error()
	}
	if s.notice != nil {
		if st := s.notice.State(); st.Visible {
			d.Notice = st.Message
		}
	}
	return d, nil
}

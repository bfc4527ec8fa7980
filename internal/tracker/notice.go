package tracker

import (
	"sync"
	"time"
)

// NoticeDuration is how long a success notice stays visible.
const NoticeDuration = 3 * time.Second

// Timer is the part of *time.Timer the notice needs.
type Timer interface {
	Stop() bool
}

// Clock abstracts time for the notice.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// NoticeState is what the presentation layer renders.
type NoticeState struct {
	Visible bool
	Message string
	Since   time.Time
}

// Notice is a transient success indicator. Each Show makes it visible for exactly
// the configured duration, counted from that Show; nothing else hides it.
type Notice struct {
	clock    Clock
	duration time.Duration

	mu      sync.Mutex
	state   NoticeState
	timer   Timer
	gen     uint64
	changed chan struct{}
}

// NewNotice returns a hidden notice. A nil clock means SystemClock and a
// non-positive duration means NoticeDuration.
func NewNotice(clock Clock, d time.Duration) *Notice {
	if clock == nil {
		clock = SystemClock
	}
	if d <= 0 {
		d = NoticeDuration
	}
	return &Notice{clock: clock, duration: d, changed: make(chan struct{}, 1)}
}

// Show displays message and restarts the dismissal window.
func (n *Notice) Show(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.timer != nil {
		n.timer.Stop()
	}
	n.gen++
	gen := n.gen
	n.state = NoticeState{Visible: true, Message: message, Since: n.clock.Now()}
	n.timer = n.clock.AfterFunc(n.duration, func() { n.dismiss(gen) })
	n.notify()
}

// dismiss hides the notice unless a later Show replaced it.
func (n *Notice) dismiss(gen uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if gen != n.gen {
		return
	}
	n.state = NoticeState{}
	n.timer = nil
	n.notify()
}

func (n *Notice) notify() {
	select {
	case n.changed <- struct{}{}:
	default:
	}
}

// State returns the current notice.
func (n *Notice) State() NoticeState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Visible reports whether the notice is shown.
func (n *Notice) Visible() bool {
	return n.State().Visible
}

// Changed receives a value after the notice was shown or dismissed.
func (n *Notice) Changed() <-chan struct{} {
	return n.changed
}

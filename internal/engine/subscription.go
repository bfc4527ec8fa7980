package engine

import (
	"sync"

	"github.com/celerix-dev/drinklog/pkg/schema"
)

// Subscription is a live change feed for one query.
//
// The channel holds at most one pending snapshot. Because every snapshot is the full
// result set, a pending snapshot that has not been received yet is replaced by the
// newer one instead of blocking the writer.
type Subscription struct {
	query schema.Query
	store *MemStore

	mu     sync.Mutex
	ch     chan []schema.Document
	closed bool
	once   sync.Once
}

// Query returns the normalized query of the feed.
func (s *Subscription) Query() schema.Query {
	return s.query
}

// C delivers snapshots. It is closed by Cancel.
func (s *Subscription) C() <-chan []schema.Document {
	return s.ch
}

// Cancel releases the subscription. It is safe to call more than once; after it
// returns no further snapshot is delivered.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.store.unsubscribe(s)
		s.mu.Lock()
		s.closed = true
		select {
		case <-s.ch:
		default:
		}
		close(s.ch)
		s.mu.Unlock()
	})
}

// Closed reports whether the feed has ended, either by Cancel or because the store
// was closed.
func (s *Subscription) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Subscription) offer(snap []schema.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case <-s.ch:
	default:
	}
	s.ch <- snap
}

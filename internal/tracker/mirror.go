// Package tracker is the drink log core: a live mirror of the drinks collection,
// the per-identity partition, the derived statistics and the mutation gateway.
package tracker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/celerix-dev/drinklog/pkg/schema"
	"github.com/celerix-dev/drinklog/pkg/sdk"
)

var (
	ErrMirrorStarted = errors.New("mirror already started")
	ErrMirrorClosed  = errors.New("mirror closed")
)

// MirrorSnapshot is one published state of the mirror. Records is shared between
// readers and must not be modified.
type MirrorSnapshot struct {
	Records []schema.Drink
	// Loading is true until the first delivery or a terminal error.
	Loading bool
	// Err is the terminal SubscriptionError, if any. Records are stale once it is set.
	Err error
	// Version increases with every accepted delivery.
	Version uint64
}

// Mirror keeps a local copy of the drinks collection in sync with the store's
// change feed.
type Mirror struct {
	store  sdk.Subscriber
	query  schema.Query
	logger *slog.Logger

	mu      sync.RWMutex
	snap    MirrorSnapshot
	feed    sdk.Feed
	started bool
	closed  bool

	updated   chan struct{}
	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	closeOnce sync.Once
}

// MirrorOption configures a Mirror.
type MirrorOption func(*Mirror)

// WithCollection mirrors a collection other than "drinks".
func WithCollection(name string) MirrorOption {
	return func(m *Mirror) { m.query.Collection = name }
}

// NewMirror returns an unstarted mirror of the drinks collection ordered by
// timestamp, newest first.
func NewMirror(store sdk.Subscriber, logger *slog.Logger, opts ...MirrorOption) *Mirror {
	m := &Mirror{
		store: store,
		query: schema.Query{
			Collection: schema.DrinksCollection,
			OrderBy:    schema.TimestampField,
			Direction:  schema.Desc,
		},
		logger:  logger.With("component", "mirror"),
		snap:    MirrorSnapshot{Records: []schema.Drink{}, Loading: true},
		updated: make(chan struct{}, 1),
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start subscribes to the store. A failed subscription is recorded as the terminal
// error of the mirror and also returned.
func (m *Mirror) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrMirrorClosed
	}
	if m.started {
		m.mu.Unlock()
		return ErrMirrorStarted
	}
	m.started = true
	m.mu.Unlock()

	feed, err := m.store.Subscribe(ctx, m.query)
	if err != nil {
		serr := subscriptionError("subscribe", err)
		m.logger.Error("subscription failed", "query", m.query.String(), "error", err)
		m.fail(serr)
		close(m.done)
		return serr
	}

	m.mu.Lock()
	if m.closed {
		// Closed while subscribing.
		m.mu.Unlock()
		feed.Cancel()
		close(m.done)
		return ErrMirrorClosed
	}
	m.feed = feed
	m.mu.Unlock()

	go m.pump(feed)
	return nil
}

func (m *Mirror) pump(feed sdk.Feed) {
	defer close(m.done)

	for docs := range feed.Snapshots() {
		records := m.decode(docs)

		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return
		}
		m.snap = MirrorSnapshot{
			Records: records,
			Version: m.snap.Version + 1,
		}
		m.mu.Unlock()

		m.markReady()
		m.signal()
	}

	cause := feed.Err()
	if cause == nil {
		cause = sdk.ErrFeedClosed
	}
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return
	}
	m.logger.Error("feed terminated", "query", m.query.String(), "error", cause)
	m.fail(subscriptionError("feed", cause))
}

// decode converts documents in feed order and re-sorts them newest first. Records
// with equal timestamps keep the feed order.
func (m *Mirror) decode(docs []schema.Document) []schema.Drink {
	records := make([]schema.Drink, 0, len(docs))
	for _, doc := range docs {
		d, err := schema.DrinkFromDocument(doc)
		if err != nil {
			m.logger.Warn("skipping undecodable document", "id", doc.ID, "error", err)
			continue
		}
		records = append(records, d)
	}
	sortNewestFirst(records)
	return records
}

// fail keeps the last records, ends loading and signals once.
func (m *Mirror) fail(err error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.snap.Err = err
	m.snap.Loading = false
	m.mu.Unlock()

	m.markReady()
	m.signal()
}

func (m *Mirror) markReady() {
	m.readyOnce.Do(func() { close(m.ready) })
}

func (m *Mirror) signal() {
	select {
	case m.updated <- struct{}{}:
	default:
	}
}

// Snapshot returns the latest published state.
func (m *Mirror) Snapshot() MirrorSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap
}

// Updated receives a value after the snapshot changed. Signals coalesce: one
// receive may stand for several updates.
func (m *Mirror) Updated() <-chan struct{} {
	return m.updated
}

// WaitReady blocks until the first snapshot arrived or the mirror failed. It returns
// the terminal error, if any.
func (m *Mirror) WaitReady(ctx context.Context) error {
	select {
	case <-m.ready:
		return m.Snapshot().Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close releases the subscription. It is idempotent; once it returns the snapshot
// no longer changes and no further signal is sent.
func (m *Mirror) Close() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		feed, started := m.feed, m.started
		m.mu.Unlock()

		if feed != nil {
			feed.Cancel()
		}
		if started {
			<-m.done
		}
		m.logger.Debug("mirror closed")
	})
}

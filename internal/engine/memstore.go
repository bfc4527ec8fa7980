package engine

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/celerix-dev/drinklog/internal/metrics"
	"github.com/celerix-dev/drinklog/pkg/schema"
)

type entry struct {
	doc schema.Document
	seq uint64
}

// MemStore is the thread-safe in-memory document store.
// Every mutation is pushed to subscribers as a full snapshot and persisted in the
// background.
type MemStore struct {
	mu sync.RWMutex
	// Structure: [collection][id]entry
	data   map[string]map[string]entry
	seq    uint64
	subs   map[*Subscription]struct{}
	closed bool

	persister Persister
	persistMu sync.Mutex
	saved     map[string]uint64 // highest seq persisted per collection
	wg        sync.WaitGroup

	logger  *slog.Logger
	metrics *metrics.StoreMetrics
	newID   func() string
}

// Option configures a MemStore.
type Option func(*MemStore)

// WithLogger sets the logger used for background persistence failures.
func WithLogger(l *slog.Logger) Option {
	return func(m *MemStore) { m.logger = l.With("component", "memstore") }
}

// WithMetrics records store activity.
func WithMetrics(sm *metrics.StoreMetrics) Option {
	return func(m *MemStore) { m.metrics = sm }
}

// WithIDGenerator replaces the uuid based id generator.
func WithIDGenerator(f func() string) Option {
	return func(m *MemStore) { m.newID = f }
}

// NewMemStore initializes a store.
// It accepts existing data (from LoadAll) and an optional persister.
func NewMemStore(initialData map[string][]schema.Document, p Persister, opts ...Option) *MemStore {
	m := &MemStore{
		data:      make(map[string]map[string]entry),
		subs:      make(map[*Subscription]struct{}),
		persister: p,
		saved:     make(map[string]uint64),
		logger:    slog.Default().With("component", "memstore"),
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	for name, docs := range initialData {
		coll := make(map[string]entry, len(docs))
		for _, d := range docs {
			m.seq++
			coll[d.ID] = entry{doc: schema.Document{ID: d.ID, Fields: copyFields(d.Fields)}, seq: m.seq}
		}
		m.data[name] = coll
	}
	return m
}

// Wait waits for all background persistence tasks to complete.
func (m *MemStore) Wait() {
	m.wg.Wait()
}

// Close cancels every subscription, rejects further writes and waits for pending
// persistence.
func (m *MemStore) Close() {
	m.mu.Lock()
	m.closed = true
	subs := make([]*Subscription, 0, len(m.subs))
	for s := range m.subs {
		subs = append(subs, s)
	}
	m.mu.Unlock()

	for _, s := range subs {
		s.Cancel()
	}
	m.Wait()
}

// Insert stores a new document and returns its assigned id.
func (m *MemStore) Insert(collection string, fields map[string]any) (string, error) {
	if !validName(collection) {
		return "", ErrInvalidCollection
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrClosed
	}
	id := m.newID()
	m.seq++
	if m.data[collection] == nil {
		m.data[collection] = make(map[string]entry)
	}
	m.data[collection][id] = entry{doc: schema.Document{ID: id, Fields: copyFields(fields)}, seq: m.seq}
	m.broadcastLocked(collection)
	docs, version := m.collectionLocked(collection), m.seq
	m.mu.Unlock()

	m.metrics.Inserted(collection)
	m.persist(collection, docs, version)
	return id, nil
}

// DeleteByID removes a document. Deleting an unknown id succeeds and does not notify
// subscribers.
func (m *MemStore) DeleteByID(collection, id string) error {
	if !validName(collection) {
		return ErrInvalidCollection
	}
	if id == "" {
		return ErrInvalidID
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	coll, ok := m.data[collection]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	if _, ok := coll[id]; !ok {
		m.mu.Unlock()
		return nil
	}
	delete(coll, id)
	m.seq++
	m.broadcastLocked(collection)
	docs, version := m.collectionLocked(collection), m.seq
	m.mu.Unlock()

	m.metrics.Deleted(collection)
	m.persist(collection, docs, version)
	return nil
}

// Snapshot returns the current ordered result set of q. Unknown collections are
// empty. The returned documents must be treated as read-only.
func (m *MemStore) Snapshot(q schema.Query) ([]schema.Document, error) {
	q, err := normalizeQuery(q)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.orderedLocked(q), nil
}

// Collections returns the names of all collections holding at least one document.
func (m *MemStore) Collections() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]string, 0, len(m.data))
	for name, coll := range m.data {
		if len(coll) > 0 {
			list = append(list, name)
		}
	}
	sort.Strings(list)
	return list
}

// Subscribe registers a change feed for q. The current snapshot is delivered
// immediately.
func (m *MemStore) Subscribe(q schema.Query) (*Subscription, error) {
	q, err := normalizeQuery(q)
	if err != nil {
		return nil, err
	}
	s := &Subscription{
		query: q,
		store: m,
		ch:    make(chan []schema.Document, 1),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	m.subs[s] = struct{}{}
	m.metrics.SubscriberAdded()
	s.offer(m.orderedLocked(q))
	m.metrics.Delivered()
	return s, nil
}

func (m *MemStore) unsubscribe(s *Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[s]; ok {
		delete(m.subs, s)
		m.metrics.SubscriberRemoved()
	}
}

// broadcastLocked offers a fresh snapshot to every subscriber of collection.
// It MUST be called while holding m.mu.Lock so deliveries follow mutation order.
func (m *MemStore) broadcastLocked(collection string) {
	cache := make(map[schema.Query][]schema.Document)
	for s := range m.subs {
		if s.query.Collection != collection {
			continue
		}
		snap, ok := cache[s.query]
		if !ok {
			snap = m.orderedLocked(s.query)
			cache[s.query] = snap
		}
		s.offer(snap)
		m.metrics.Delivered()
	}
}

// orderedLocked sorts by the query field; equal values keep insertion order.
// It MUST be called while holding m.mu.
func (m *MemStore) orderedLocked(q schema.Query) []schema.Document {
	coll := m.data[q.Collection]
	entries := make([]entry, 0, len(coll))
	for _, e := range coll {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if q.OrderBy != "" {
			c := compareValues(entries[i].doc.Fields[q.OrderBy], entries[j].doc.Fields[q.OrderBy])
			if q.Direction == schema.Desc {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return entries[i].seq < entries[j].seq
	})

	docs := make([]schema.Document, len(entries))
	for i, e := range entries {
		docs[i] = e.doc
	}
	return docs
}

// collectionLocked returns the collection in insertion order for persistence.
// It MUST be called while holding m.mu.
func (m *MemStore) collectionLocked(collection string) []schema.Document {
	return m.orderedLocked(schema.Query{Collection: collection})
}

// persist writes the collection in the background. A save that completes after a
// newer one for the same collection is skipped.
func (m *MemStore) persist(collection string, docs []schema.Document, version uint64) {
	if m.persister == nil {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.persistMu.Lock()
		defer m.persistMu.Unlock()
		if version <= m.saved[collection] {
			return
		}
		if err := m.persister.SaveCollection(collection, docs); err != nil {
			m.logger.Error("failed to persist collection", "collection", collection, "error", err)
			return
		}
		m.saved[collection] = version
	}()
}

func copyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

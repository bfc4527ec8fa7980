package tracker

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/celerix-dev/drinklog/pkg/schema"
	"github.com/celerix-dev/drinklog/pkg/sdk"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// drink builds a stored record with a UTC timestamp taken from date and clock.
func drink(id, user string, c schema.Category, name, location, date, clock string) schema.Drink {
	ts, err := time.Parse(schema.DateLayout+" "+schema.ClockLayout, date+" "+clock)
	if err != nil {
		panic(err)
	}
	return schema.Drink{
		ID:        id,
		UserName:  user,
		Type:      c,
		Name:      name,
		Location:  location,
		Date:      date,
		Time:      clock,
		Timestamp: ts,
	}
}

func documents(drinks ...schema.Drink) []schema.Document {
	docs := make([]schema.Document, len(drinks))
	for i, d := range drinks {
		docs[i] = schema.Document{ID: d.ID, Fields: d.Fields()}
	}
	return docs
}

func recordIDs(records []schema.Drink) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

// fakeFeed is a Feed driven by the test.
type fakeFeed struct {
	ch chan []schema.Document

	mu        sync.Mutex
	err       error
	closed    bool
	cancelled int
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{ch: make(chan []schema.Document)}
}

func (f *fakeFeed) Snapshots() <-chan []schema.Document { return f.ch }

func (f *fakeFeed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeFeed) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled++
	if !f.closed {
		f.closed = true
		f.err = nil
		close(f.ch)
	}
}

// push blocks until the mirror received docs.
func (f *fakeFeed) push(docs []schema.Document) {
	f.ch <- docs
}

// fail ends the feed with err.
func (f *fakeFeed) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
	f.closed = true
	close(f.ch)
}

func (f *fakeFeed) cancelCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}

// mockStore records writes and hands out a fake feed.
type mockStore struct {
	mu           sync.Mutex
	Feed         *fakeFeed
	SubscribeErr error
	InsertErr    error
	DeleteErr    error
	Inserted     []map[string]any
	Deleted      []string
	Queries      []schema.Query
}

func (m *mockStore) Subscribe(ctx context.Context, q schema.Query) (sdk.Feed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Queries = append(m.Queries, q)
	if m.SubscribeErr != nil {
		return nil, m.SubscribeErr
	}
	return m.Feed, nil
}

func (m *mockStore) Insert(ctx context.Context, collection string, fields map[string]any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InsertErr != nil {
		return "", m.InsertErr
	}
	m.Inserted = append(m.Inserted, fields)
	return "new-id", nil
}

func (m *mockStore) DeleteByID(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	m.Deleted = append(m.Deleted, id)
	return nil
}

// fakeClock fires timers only when advanced.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Advance moves time forward and runs every timer that became due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

// memPrefs is an in-memory KVStore.
type memPrefs struct {
	values map[string]string
	gets   int
	setErr error
}

func (p *memPrefs) Get(key string) (string, bool, error) {
	p.gets++
	v, ok := p.values[key]
	return v, ok, nil
}

func (p *memPrefs) Set(key, value string) error {
	if p.setErr != nil {
		return p.setErr
	}
	if p.values == nil {
		p.values = map[string]string{}
	}
	p.values[key] = value
	return nil
}

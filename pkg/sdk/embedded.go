package sdk

import (
	"context"
	"errors"
	"sync"

	"github.com/celerix-dev/drinklog/internal/engine"
	"github.com/celerix-dev/drinklog/pkg/schema"
)

// Embedded runs the store inside the calling process.
// It implements the Store interface on top of an engine.MemStore.
type Embedded struct {
	store   *engine.MemStore
	closers []func() error
}

// NewEmbedded wraps store. The closers run after the store has flushed, in order.
func NewEmbedded(store *engine.MemStore, closers ...func() error) *Embedded {
	return &Embedded{store: store, closers: closers}
}

// Engine exposes the underlying store for in-process servers.
func (e *Embedded) Engine() *engine.MemStore {
	return e.store
}

func (e *Embedded) Insert(ctx context.Context, collection string, fields map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return e.store.Insert(collection, fields)
}

func (e *Embedded) DeleteByID(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.store.DeleteByID(collection, id)
}

func (e *Embedded) Snapshot(ctx context.Context, q schema.Query) ([]schema.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.store.Snapshot(q)
}

func (e *Embedded) Collections(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.store.Collections(), nil
}

func (e *Embedded) Subscribe(ctx context.Context, q schema.Query) (Feed, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub, err := e.store.Subscribe(q)
	if err != nil {
		return nil, err
	}
	return &localFeed{sub: sub}, nil
}

// Close stops every feed, waits for pending persistence and releases the backend.
func (e *Embedded) Close() error {
	e.store.Close()
	var errs []error
	for _, c := range e.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type localFeed struct {
	sub *engine.Subscription

	mu        sync.Mutex
	cancelled bool
}

func (f *localFeed) Snapshots() <-chan []schema.Document { return f.sub.C() }

// Err reports ErrFeedClosed when the store shut the feed down.
func (f *localFeed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.cancelled && f.sub.Closed() {
		return ErrFeedClosed
	}
	return nil
}

func (f *localFeed) Cancel() {
	f.mu.Lock()
	f.cancelled = true
	f.mu.Unlock()
	f.sub.Cancel()
}

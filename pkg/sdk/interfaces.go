package sdk

import (
	"context"
	"errors"

	"github.com/celerix-dev/drinklog/pkg/schema"
)

// ErrFeedClosed is reported by a Feed whose transport went away without a more
// specific cause.
var ErrFeedClosed = errors.New("feed closed by server")

// --- Functional Interfaces (Interface Segregation) ---

// Subscriber opens live change feeds.
type Subscriber interface {
	Subscribe(ctx context.Context, q schema.Query) (Feed, error)
}

// Writer defines the per-document mutations of the store.
type Writer interface {
	Insert(ctx context.Context, collection string, fields map[string]any) (string, error)
	DeleteByID(ctx context.Context, collection, id string) error
}

// Reader defines one-shot reads.
type Reader interface {
	Snapshot(ctx context.Context, q schema.Query) ([]schema.Document, error)
	Collections(ctx context.Context) ([]string, error)
}

// --- Composite Interfaces ---

// DocumentStore is what the tracker needs from a remote document store.
type DocumentStore interface {
	Subscriber
	Writer
}

// Store is the full client surface, implemented by the remote Client and the
// embedded adapter alike.
type Store interface {
	DocumentStore
	Reader
	Close() error
}

// Feed is a live query subscription. Every value received from Snapshots is the
// complete ordered result set.
type Feed interface {
	Snapshots() <-chan []schema.Document
	// Err reports why Snapshots was closed. It is nil after Cancel.
	Err() error
	// Cancel stops deliveries. It is idempotent and returns once no further snapshot
	// will be sent.
	Cancel()
}

// KVStore is a small local key-value store for device preferences.
type KVStore interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

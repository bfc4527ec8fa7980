// Package engine implements the drinklog document store: named collections of
// documents with store-assigned ids, per-document atomic insert and delete, and a push
// change feed that delivers the full ordered result set after every mutation.
package engine

import (
	"errors"
	"strings"

	"github.com/celerix-dev/drinklog/pkg/schema"
)

var (
	// ErrInvalidCollection is returned for empty collection names or names containing
	// whitespace.
	ErrInvalidCollection = errors.New("invalid collection name")
	// ErrInvalidQuery is returned when a query cannot be evaluated.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrInvalidID is returned for empty document ids.
	ErrInvalidID = errors.New("invalid document id")
	// ErrClosed is returned once the store has been closed.
	ErrClosed = errors.New("store closed")
)

// Persister stores whole collections. Implementations must tolerate being called from
// background goroutines.
type Persister interface {
	// SaveCollection replaces the stored contents of a collection. Documents are passed
	// in insertion order.
	SaveCollection(name string, docs []schema.Document) error
	// LoadAll returns every stored collection with documents in insertion order.
	LoadAll() (map[string][]schema.Document, error)
}

func validName(s string) bool {
	return s != "" && !strings.ContainsAny(s, " \t\r\n")
}

func normalizeQuery(q schema.Query) (schema.Query, error) {
	if !validName(q.Collection) {
		return q, ErrInvalidCollection
	}
	if q.OrderBy != "" && !validName(q.OrderBy) {
		return q, ErrInvalidQuery
	}
	switch q.Direction {
	case "":
		q.Direction = schema.Asc
	case schema.Asc, schema.Desc:
	default:
		return q, ErrInvalidQuery
	}
	return q, nil
}

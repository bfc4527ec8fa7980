// Package schema defines the data structures shared by the drinklog store, its clients
// and the tracker core.
package schema

import (
	"fmt"
	"strings"
)

// Document is a single record of a store collection as seen on the wire.
// The ID is assigned by the store on insert and never changes.
type Document struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// Direction is the sort direction of a collection query.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// ParseDirection accepts "asc" or "desc" in any letter case.
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(s)) {
	case Asc:
		return Asc, nil
	case Desc:
		return Desc, nil
	}
	return "", fmt.Errorf("invalid direction %q: must be asc or desc", s)
}

// Query selects a whole collection ordered by one field.
type Query struct {
	Collection string    `json:"collection"`
	OrderBy    string    `json:"order_by"`
	Direction  Direction `json:"direction"`
}

// String renders the query in the argument order used by the TCP protocol.
func (q Query) String() string {
	return fmt.Sprintf("%s %s %s", q.Collection, q.OrderBy, q.Direction)
}

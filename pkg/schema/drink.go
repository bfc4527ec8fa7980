package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DrinksCollection is the store collection holding every logged drink.
const DrinksCollection = "drinks"

// TimestampField is the document field used for chronological ordering.
const TimestampField = "timestamp"

const (
	// DateLayout is the calendar date format of Drink.Date.
	DateLayout = "2006-01-02"
	// ClockLayout is the time-of-day format of Drink.Time.
	ClockLayout = "15:04"
	// TimestampLayout has a fixed width so lexical order equals chronological order.
	TimestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

var (
	ErrMissingUser     = errors.New("user name is required")
	ErrInvalidCategory = errors.New("invalid drink type")
	ErrMissingName     = errors.New("drink name is required")
	ErrMissingLocation = errors.New("location is required")
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidTime     = errors.New("invalid time")
	ErrInvalidRecord   = errors.New("invalid drink record")
)

// Category is the kind of beverage.
type Category string

const (
	Beer     Category = "beer"
	Wine     Category = "wine"
	Cocktail Category = "cocktail"
)

// Categories lists every category in priority order. Ties between categories are
// always resolved in this order.
var Categories = []Category{Beer, Wine, Cocktail}

// ParseCategory returns the category named by s.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
	}
	return c, nil
}

// Valid reports whether c is one of Categories.
func (c Category) Valid() bool {
	switch c {
	case Beer, Wine, Cocktail:
		return true
	}
	return false
}

var titleCaser = cases.Title(language.English)

// Title returns the display name, e.g. "Beer".
func (c Category) Title() string {
	return titleCaser.String(string(c))
}

// Drink is one logged beverage. Records are immutable once stored; a correction is a
// delete followed by a new insert.
type Drink struct {
	ID       string   `json:"id" yaml:"id"`
	UserName string   `json:"userName" yaml:"userName"`
	Type     Category `json:"type" yaml:"type"`
	Name     string   `json:"name" yaml:"name"`
	Location string   `json:"location" yaml:"location"`
	Date     string   `json:"date" yaml:"date"`
	Time     string   `json:"time" yaml:"time"`
	// Timestamp is fixed at creation from Date and Time and is the only field used for
	// ordering.
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// Fields returns the document representation stored in the drinks collection.
func (d Drink) Fields() map[string]any {
	return map[string]any{
		"userName":     d.UserName,
		"type":         string(d.Type),
		"name":         d.Name,
		"location":     d.Location,
		"date":         d.Date,
		"time":         d.Time,
		TimestampField: d.Timestamp.UTC().Format(TimestampLayout),
	}
}

// DrinkFromDocument decodes a store document. Documents with an unknown type or
// without a timestamp are rejected with ErrInvalidRecord.
func DrinkFromDocument(doc Document) (Drink, error) {
	var d Drink
	raw, err := json.Marshal(doc.Fields)
	if err != nil {
		return d, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return d, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	d.ID = doc.ID
	if !d.Type.Valid() {
		return d, fmt.Errorf("%w: unknown type %q", ErrInvalidRecord, d.Type)
	}
	if d.Timestamp.IsZero() {
		return d, fmt.Errorf("%w: missing timestamp", ErrInvalidRecord)
	}
	return d, nil
}

// Draft is a drink that has not been stored yet.
type Draft struct {
	UserName string   `json:"userName"`
	Type     Category `json:"type"`
	Name     string   `json:"name"`
	Location string   `json:"location"`
	Date     string   `json:"date"`
	Time     string   `json:"time"`
}

// Validate checks the draft without touching the network. Name and location must be
// non-empty after trimming.
func (d Draft) Validate() error {
	if d.UserName == "" {
		return ErrMissingUser
	}
	if !d.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, d.Type)
	}
	if strings.TrimSpace(d.Name) == "" {
		return ErrMissingName
	}
	if strings.TrimSpace(d.Location) == "" {
		return ErrMissingLocation
	}
	if _, err := time.Parse(DateLayout, d.Date); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDate, d.Date)
	}
	if _, err := time.Parse(ClockLayout, d.Time); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidTime, d.Time)
	}
	return nil
}

// OccurredAt combines Date and Time in loc.
func (d Draft) OccurredAt(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	ts, err := time.ParseInLocation(DateLayout+" "+ClockLayout, d.Date+" "+d.Time, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidDate, err)
	}
	return ts, nil
}

// Record validates the draft and fixes its timestamp. The returned drink has no ID.
func (d Draft) Record(loc *time.Location) (Drink, error) {
	if err := d.Validate(); err != nil {
		return Drink{}, err
	}
	ts, err := d.OccurredAt(loc)
	if err != nil {
		return Drink{}, err
	}
	return Drink{
		UserName:  d.UserName,
		Type:      d.Type,
		Name:      d.Name,
		Location:  d.Location,
		Date:      d.Date,
		Time:      d.Time,
		Timestamp: ts,
	}, nil
}

// NewDraft returns a beer draft for the current date and minute.
func NewDraft(userName string, now time.Time) Draft {
	return Draft{
		UserName: userName,
		Type:     Beer,
		Date:     now.Format(DateLayout),
		Time:     now.Format(ClockLayout),
	}
}

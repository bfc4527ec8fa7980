package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/celerix-dev/drinklog/pkg/schema"
	"github.com/celerix-dev/drinklog/pkg/sdk"
)

// Gateway issues inserts and deletes against the store. It never touches local
// state: results become visible through the mirror's next snapshot.
type Gateway struct {
	store      sdk.Writer
	collection string
	location   *time.Location
	notice     *Notice
	logger     *slog.Logger
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithLocation sets the time zone in which draft dates and times are read.
func WithLocation(loc *time.Location) GatewayOption {
	return func(g *Gateway) { g.location = loc }
}

// WithNotice shows a success notice after every stored submission.
func WithNotice(n *Notice) GatewayOption {
	return func(g *Gateway) { g.notice = n }
}

// WithGatewayCollection writes to a collection other than "drinks".
func WithGatewayCollection(name string) GatewayOption {
	return func(g *Gateway) { g.collection = name }
}

func NewGateway(store sdk.Writer, logger *slog.Logger, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		store:      store,
		collection: schema.DrinksCollection,
		location:   time.Local,
		logger:     logger.With("component", "gateway"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Submit validates draft, fixes its timestamp and inserts it. It returns the id
// assigned by the store.
func (g *Gateway) Submit(ctx context.Context, draft schema.Draft) (string, error) {
	rec, err := draft.Record(g.location)
	if err != nil {
		return "", validationError("submit", draftField(err), err)
	}

	id, err := g.store.Insert(ctx, g.collection, rec.Fields())
	if err != nil {
		g.logger.Error("insert failed", "user", rec.UserName, "error", err)
		return "", writeError("submit", err)
	}

	g.logger.Debug("drink logged", "id", id, "user", rec.UserName, "type", rec.Type)
	if g.notice != nil {
		g.notice.Show(fmt.Sprintf("%s logged!", rec.Type.Title()))
	}
	return id, nil
}

// Remove deletes the record with id.
func (g *Gateway) Remove(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return validationError("remove", "id", errors.New("id is required"))
	}
	if err := g.store.DeleteByID(ctx, g.collection, id); err != nil {
		g.logger.Error("delete failed", "id", id, "error", err)
		return writeError("remove", err)
	}
	g.logger.Debug("drink removed", "id", id)
	return nil
}

func draftField(err error) string {
	switch {
	case errors.Is(err, schema.ErrMissingUser):
		return "userName"
	case errors.Is(err, schema.ErrInvalidCategory):
		return "type"
	case errors.Is(err, schema.ErrMissingName):
		return "name"
	case errors.Is(err, schema.ErrMissingLocation):
		return "location"
	case errors.Is(err, schema.ErrInvalidDate):
		return "date"
	case errors.Is(err, schema.ErrInvalidTime):
		return "time"
	}
	return ""
}

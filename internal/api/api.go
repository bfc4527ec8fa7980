package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/celerix-dev/drinklog/internal/engine"
	"github.com/celerix-dev/drinklog/internal/metrics"
	"github.com/celerix-dev/drinklog/internal/tracker"
	"github.com/celerix-dev/drinklog/pkg/schema"
	"github.com/celerix-dev/drinklog/pkg/sdk"
)

type Handler struct {
	Store   sdk.Store
	Mirror  *tracker.Mirror
	Gateway *tracker.Gateway
	Metrics *metrics.StoreMetrics
	Logger  *slog.Logger
}

func (h *Handler) ListCollections(c *gin.Context) {
	list, err := h.Store.Collections(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) GetCollection(c *gin.Context) {
	q, err := queryFrom(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	docs, err := h.Store.Snapshot(c.Request.Context(), q)
	if err != nil {
		c.JSON(storeStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, docs)
}

func (h *Handler) InsertDocument(c *gin.Context) {
	var fields map[string]any
	if err := c.ShouldBindJSON(&fields); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := h.Store.Insert(c.Request.Context(), c.Param("collection"), fields)
	if err != nil {
		c.JSON(storeStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (h *Handler) DeleteDocument(c *gin.Context) {
	if err := h.Store.DeleteByID(c.Request.Context(), c.Param("collection"), c.Param("id")); err != nil {
		c.JSON(storeStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// Dashboard renders every derived view for ?user= from the daemon's mirror.
func (h *Handler) Dashboard(c *gin.Context) {
	snap := h.Mirror.Snapshot()
	d, err := tracker.BuildDashboard(snap.Records, c.Query("user"), c.Query("type"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d.Loading = snap.Loading
	d.Version = snap.Version
	if snap.Err != nil {
		d.Error = snap.Err.Error()
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) SubmitDrink(c *gin.Context) {
	var draft schema.Draft
	if err := c.ShouldBindJSON(&draft); err != nil {
		h.Metrics.Rejected("validation")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// Date and time default to now, as in a fresh form.
	now := schema.NewDraft(draft.UserName, time.Now())
	if draft.Date == "" {
		draft.Date = now.Date
	}
	if draft.Time == "" {
		draft.Time = now.Time
	}

	id, err := h.Gateway.Submit(c.Request.Context(), draft)
	if err != nil {
		h.writeFailed(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (h *Handler) RemoveDrink(c *gin.Context) {
	if err := h.Gateway.Remove(c.Request.Context(), c.Param("id")); err != nil {
		h.writeFailed(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *Handler) writeFailed(c *gin.Context, err error) {
	var te *tracker.Error
	field := ""
	if errors.As(err, &te) {
		field = te.Field
	}
	switch {
	case tracker.IsValidationError(err):
		h.Metrics.Rejected("validation")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "field": field})
	default:
		h.Metrics.Rejected("store")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}

// Health reports 503 once the mirror lost its feed.
func (h *Handler) Health(c *gin.Context) {
	snap := h.Mirror.Snapshot()
	if snap.Err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": snap.Err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"loading": snap.Loading,
		"records": len(snap.Records),
		"version": snap.Version,
	})
}

func queryFrom(c *gin.Context) (schema.Query, error) {
	q := schema.Query{
		Collection: c.Param("collection"),
		OrderBy:    c.Query("order_by"),
	}
	if dir := c.Query("dir"); dir != "" {
		d, err := schema.ParseDirection(dir)
		if err != nil {
			return q, err
		}
		q.Direction = d
	}
	return q, nil
}

func storeStatus(err error) int {
	var serverErr *sdk.ServerError
	switch {
	case errors.Is(err, engine.ErrInvalidCollection),
		errors.Is(err, engine.ErrInvalidQuery),
		errors.Is(err, engine.ErrInvalidID),
		errors.As(err, &serverErr):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

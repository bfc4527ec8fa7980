package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/celerix-dev/drinklog/internal/metrics"
)

// Options tune the HTTP router.
type Options struct {
	WriteRate  float64 // sustained writes per second across all clients
	WriteBurst int
	Gatherer   prometheus.Gatherer // nil disables /metrics
}

// NewRouter builds the gin engine serving the management and drink API.
func NewRouter(h *Handler, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors)

	writes := RateLimit(rate.NewLimiter(rate.Limit(opts.WriteRate), opts.WriteBurst), h.Metrics)

	r.GET("/healthz", h.Health)
	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/collections", h.ListCollections)
		apiGroup.GET("/collections/:collection", h.GetCollection)
		apiGroup.GET("/collections/:collection/watch", h.Watch)
		apiGroup.POST("/collections/:collection", writes, h.InsertDocument)
		apiGroup.DELETE("/collections/:collection/:id", writes, h.DeleteDocument)

		apiGroup.GET("/drinks/dashboard", h.Dashboard)
		apiGroup.POST("/drinks", writes, h.SubmitDrink)
		apiGroup.DELETE("/drinks/:id", writes, h.RemoveDrink)
	}

	r.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.JSON(http.StatusNotFound, gin.H{"error": "API route not found"})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	return r
}

// RateLimit rejects requests beyond the limiter's budget with 429.
func RateLimit(l *rate.Limiter, m *metrics.StoreMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow() {
			m.Rejected("rate_limited")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func cors(c *gin.Context) {
	c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
	c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")
	c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding")
	if c.Request.Method == http.MethodOptions {
		c.AbortWithStatus(http.StatusNoContent)
		return
	}
	c.Next()
}

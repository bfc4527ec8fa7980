package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// StoreMetrics holds the Prometheus metrics of the store daemon.
// A nil *StoreMetrics is valid and records nothing.
type StoreMetrics struct {
	InsertsTotal      *prometheus.CounterVec
	DeletesTotal      *prometheus.CounterVec
	DeliveriesTotal   prometheus.Counter
	Subscribers       prometheus.Gauge
	WriteRejectsTotal *prometheus.CounterVec
}

// NewStoreMetrics creates the metrics and registers them with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewStoreMetrics(reg prometheus.Registerer) *StoreMetrics {
	f := promauto.With(reg)
	return &StoreMetrics{
		InsertsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "drinklog",
			Subsystem: "store",
			Name:      "inserts_total",
			Help:      "Total number of inserted documents by collection.",
		}, []string{"collection"}),
		DeletesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "drinklog",
			Subsystem: "store",
			Name:      "deletes_total",
			Help:      "Total number of deleted documents by collection.",
		}, []string{"collection"}),
		DeliveriesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: "drinklog",
			Subsystem: "feed",
			Name:      "snapshots_delivered_total",
			Help:      "Total number of snapshots offered to subscribers.",
		}),
		Subscribers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "drinklog",
			Subsystem: "feed",
			Name:      "subscribers",
			Help:      "Number of live change feed subscriptions.",
		}),
		WriteRejectsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "drinklog",
			Subsystem: "api",
			Name:      "write_rejects_total",
			Help:      "Total number of rejected HTTP writes by reason.",
		}, []string{"reason"}), // reason: validation, rate_limited, store
	}
}

func (m *StoreMetrics) Inserted(collection string) {
	if m != nil {
		m.InsertsTotal.WithLabelValues(collection).Inc()
	}
}

func (m *StoreMetrics) Deleted(collection string) {
	if m != nil {
		m.DeletesTotal.WithLabelValues(collection).Inc()
	}
}

func (m *StoreMetrics) Delivered() {
	if m != nil {
		m.DeliveriesTotal.Inc()
	}
}

func (m *StoreMetrics) SubscriberAdded() {
	if m != nil {
		m.Subscribers.Inc()
	}
}

func (m *StoreMetrics) SubscriberRemoved() {
	if m != nil {
		m.Subscribers.Dec()
	}
}

func (m *StoreMetrics) Rejected(reason string) {
	if m != nil {
		m.WriteRejectsTotal.WithLabelValues(reason).Inc()
	}
}

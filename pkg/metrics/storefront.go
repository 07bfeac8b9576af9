package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StorefrontMetrics records cart reconciliation and order placement outcomes.
type StorefrontMetrics struct {
	cartSync          *prometheus.CounterVec
	placementDuration *prometheus.HistogramVec
	placement         *prometheus.CounterVec
}

// Cart sync results.
const (
	SyncApplied = "applied"
	SyncStale   = "stale"
	SyncFailed  = "failed"
)

// NewStorefrontMetrics registers the storefront metrics on the provided registerer.
func NewStorefrontMetrics(reg prometheus.Registerer) *StorefrontMetrics {
	if reg == nil {
		return &StorefrontMetrics{}
	}
	cartSync := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_sync_total",
		Help: "Remote cart reconciliation outcomes.",
	}, []string{"operation", "result"})
	placementDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "order_placement_duration_seconds",
		Help:    "Duration of order placement calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})
	placement := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_placement_total",
		Help: "Order placement outcomes.",
	}, []string{"result"})
	reg.MustRegister(cartSync, placementDuration, placement)
	return &StorefrontMetrics{
		cartSync:          cartSync,
		placementDuration: placementDuration,
		placement:         placement,
	}
}

// ObserveCartSync records one remote cart reconciliation outcome.
func (m *StorefrontMetrics) ObserveCartSync(operation, result string) {
	if m == nil || m.cartSync == nil {
		return
	}
	m.cartSync.WithLabelValues(normalizeLabel(operation), normalizeLabel(result)).Inc()
}

// ObservePlacement records the outcome and duration of an order placement call.
func (m *StorefrontMetrics) ObservePlacement(method, result string, duration time.Duration) {
	if m == nil {
		return
	}
	if m.placementDuration != nil {
		m.placementDuration.WithLabelValues(normalizeLabel(method)).Observe(duration.Seconds())
	}
	if m.placement != nil {
		m.placement.WithLabelValues(normalizeLabel(result)).Inc()
	}
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

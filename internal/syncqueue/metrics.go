package syncqueue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes queue activity on the registry served at /metrics
type Metrics struct {
	Delivered       prometheus.Counter
	Failed          prometheus.Counter
	Retried         prometheus.Counter
	Depth           prometheus.Gauge
	DeliverySeconds prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		Delivered: f.NewCounter(prometheus.CounterOpts{
			Namespace: "applytrack",
			Subsystem: "sync_queue",
			Name:      "delivered_total",
			Help:      "Job records delivered to the backend",
		}),
		Failed: f.NewCounter(prometheus.CounterOpts{
			Namespace: "applytrack",
			Subsystem: "sync_queue",
			Name:      "failed_total",
			Help:      "Deliveries recorded as failed jobs",
		}),
		Retried: f.NewCounter(prometheus.CounterOpts{
			Namespace: "applytrack",
			Subsystem: "sync_queue",
			Name:      "retried_total",
			Help:      "Failed jobs re-enqueued by a retry pass",
		}),
		Depth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "applytrack",
			Subsystem: "sync_queue",
			Name:      "depth",
			Help:      "Entries waiting in the in-memory queue",
		}),
		DeliverySeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "applytrack",
			Subsystem: "sync_queue",
			Name:      "delivery_seconds",
			Help:      "Duration of one delivery attempt",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "reportdesk"

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route and status code.",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	SyncCycles = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "cycles_total",
		Help:      "Completed report sync cycles.",
	})

	SyncCyclePanics = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "cycle_panics_total",
		Help:      "Sync cycles or fetches aborted by a recovered panic.",
	})

	// result is one of updated, fetch_failed, store_failed
	SyncFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "fetches_total",
		Help:      "Per-report upstream status fetches by outcome.",
	}, []string{"result"})

	SyncPending = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "pending_reports",
		Help:      "Non-terminal reports seen at the start of the last cycle.",
	})

	SyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "cycle_duration_seconds",
		Help:      "Wall time of one sync cycle.",
		Buckets:   []float64{.1, .5, 1, 2.5, 5, 10, 30, 60},
	})

	SerialRedemptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "serial_redemptions_total",
		Help:      "Serial validation attempts by outcome.",
	}, []string{"result"})

	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_events_total",
		Help:      "Provider webhook deliveries by outcome.",
	}, []string{"result"})

	LedgerExports = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_exports_total",
		Help:      "Ledger CSV exports by outcome.",
	}, []string{"result"})
)

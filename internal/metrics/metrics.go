package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus collectors.
type Metrics struct {
	eventsObserved       *prometheus.CounterVec
	notificationsSent    prometheus.Counter
	notificationsDropped *prometheus.CounterVec
	snapshotsBuilt       *prometheus.CounterVec
	seenSetSize          prometheus.Gauge
	errors               prometheus.Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// Init initializes global metrics (idempotent).
func Init() *Metrics {
	once.Do(func() {
		metrics = &Metrics{
			eventsObserved: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "counter_watch_events_observed_total",
				Help: "Counter change events observed by incremental scans",
			}, []string{"reason"}),
			notificationsSent: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "counter_watch_notifications_sent_total",
				Help: "Total number of notifications delivered to sinks",
			}),
			notificationsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "counter_watch_notifications_dropped_total",
				Help: "Notifications dropped before delivery",
			}, []string{"cause"}),
			snapshotsBuilt: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "counter_watch_snapshots_built_total",
				Help: "Full-history aggregations computed",
			}, []string{"source"}),
			seenSetSize: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "counter_watch_seen_set_size",
				Help: "Event identities currently held by the notification seen-set",
			}),
			errors: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "counter_watch_errors_total",
				Help: "Total number of errors encountered",
			}),
		}
		prometheus.MustRegister(
			metrics.eventsObserved,
			metrics.notificationsSent,
			metrics.notificationsDropped,
			metrics.snapshotsBuilt,
			metrics.seenSetSize,
			metrics.errors,
		)
	})
	return metrics
}

// EventObserved counts one new event by its resolved reason.
func (m *Metrics) EventObserved(reason string) {
	if m != nil {
		m.eventsObserved.WithLabelValues(reason).Inc()
	}
}

// NotificationSent increments the delivered notifications counter.
func (m *Metrics) NotificationSent() {
	if m != nil {
		m.notificationsSent.Inc()
	}
}

// NotificationDropped counts a notification skipped for cause (duplicate, own_caller, rate_limited, filtered).
func (m *Metrics) NotificationDropped(cause string) {
	if m != nil {
		m.notificationsDropped.WithLabelValues(cause).Inc()
	}
}

// SnapshotBuilt counts one full aggregation for a source.
func (m *Metrics) SnapshotBuilt(sourceID string) {
	if m != nil {
		m.snapshotsBuilt.WithLabelValues(sourceID).Inc()
	}
}

// SeenSetSize records the current size of the seen-set.
func (m *Metrics) SeenSetSize(n int) {
	if m != nil {
		m.seenSetSize.Set(float64(n))
	}
}

// Errors increments the errors counter.
func (m *Metrics) Errors() {
	if m != nil {
		m.errors.Inc()
	}
}

// Handler returns an HTTP handler for /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

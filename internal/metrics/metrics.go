// Package metrics exposes Prometheus collectors for the connection service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "connect"

// Outcome label values.
const (
	OutcomeOK           = "ok"
	OutcomeNotFound     = "not_found"
	OutcomeInvalid      = "invalid"
	OutcomeConflict     = "conflict"
	OutcomeForbidden    = "forbidden"
	OutcomeStoreFailure = "store_failure"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	RequestOps      *prometheus.CounterVec
	FeedSize        prometheus.Histogram
	EventsPublished *prometheus.CounterVec
	EventsConsumed  *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_operations_total",
			Help:      "Connection request operations by action and outcome.",
		}, []string{"action", "outcome"}),
		FeedSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "feed_size_users",
			Help:      "Number of users returned per feed computation.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Request lifecycle events handed to the broker.",
		}, []string{"type", "result"}),
		EventsConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_consumed_total",
			Help:      "Request lifecycle events processed by the reconciler.",
		}, []string{"type", "result"}),
	}
	reg.MustRegister(m.RequestOps, m.FeedSize, m.EventsPublished, m.EventsConsumed)
	return m
}

func (m *Metrics) ObserveRequestOp(action, outcome string) {
	if m == nil {
		return
	}
	m.RequestOps.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) ObserveFeedSize(n int) {
	if m == nil {
		return
	}
	m.FeedSize.Observe(float64(n))
}

func (m *Metrics) ObserveEventPublished(eventType string, err error) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(eventType, result(err)).Inc()
}

func (m *Metrics) ObserveEventConsumed(eventType string, err error) {
	if m == nil {
		return
	}
	m.EventsConsumed.WithLabelValues(eventType, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// Package metrics exposes prometheus collectors for the relationship client
// and the local stores it feeds.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels.
const (
	OutcomeOK           = "ok"
	OutcomeNetworkError = "network_error"
	OutcomeServerError  = "server_error"
	OutcomeError        = "error"
)

// Metrics groups the collectors recorded by the client.
type Metrics struct {
	APIRequests   *prometheus.CounterVec
	APIDuration   *prometheus.HistogramVec
	StaleDiscards prometheus.Counter
	CountAdjusts  *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg skips
// registration, which keeps tests independent of the global registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		APIRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "friendsync",
			Name:      "api_requests_total",
			Help:      "Relationship service calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		APIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "friendsync",
			Name:      "api_request_duration_seconds",
			Help:      "Latency of relationship service calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		StaleDiscards: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "friendsync",
			Name:      "stale_pages_discarded_total",
			Help:      "Friend pages dropped because a reset happened while they were in flight.",
		}),
		CountAdjusts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "friendsync",
			Name:      "friends_count_adjustments_total",
			Help:      "Friend count mirror adjustments by direction.",
		}, []string{"direction"}),
	}

	if reg != nil {
		reg.MustRegister(m.APIRequests, m.APIDuration, m.StaleDiscards, m.CountAdjusts)
	}
	return m
}

// ObserveCall records one service call. Safe on a nil receiver.
func (m *Metrics) ObserveCall(op, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.APIRequests.WithLabelValues(op, outcome).Inc()
	m.APIDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// StaleDiscarded counts a dropped in-flight page. Safe on a nil receiver.
func (m *Metrics) StaleDiscarded() {
	if m == nil {
		return
	}
	m.StaleDiscards.Inc()
}

// CountAdjusted records a friend count change. Safe on a nil receiver.
func (m *Metrics) CountAdjusted(delta int) {
	if m == nil || delta == 0 {
		return
	}
	direction := "up"
	if delta < 0 {
		direction = "down"
	}
	m.CountAdjusts.WithLabelValues(direction).Inc()
}

// Package metrics exposes Prometheus collectors for the crawl engine.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsTotal    *prometheus.CounterVec
	recordsTotal     *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	anomaliesTotal   *prometheus.CounterVec
	activeIdentities prometheus.Gauge

	once sync.Once
)

// Init registers the collectors. Safe to call multiple times; the helpers
// below no-op until it has run, so packages can record unconditionally.
func Init() {
	once.Do(func() {
		sessionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawl_sessions_total",
				Help: "Finished crawl sessions, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		recordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawl_records_total",
				Help: "Records persisted, labeled by kind (heavy or light).",
			},
			[]string{"kind"},
		)

		transitionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawl_navigation_transitions_total",
				Help: "Navigation transitions attempted, labeled by screens and result.",
			},
			[]string{"from", "to", "result"},
		)

		anomaliesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawl_anomalous_screens_total",
				Help: "Screens the anomaly detector classified off-nominal.",
			},
			[]string{"class"},
		)

		activeIdentities = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawl_active_identities",
				Help: "Identities currently driving a browser session.",
			},
		)
	})
}

// ObserveSession counts one finished session.
func ObserveSession(outcome string) {
	if sessionsTotal != nil {
		sessionsTotal.WithLabelValues(outcome).Inc()
	}
}

// ObserveRecords counts persisted records of one kind.
func ObserveRecords(kind string, n int) {
	if recordsTotal != nil && n > 0 {
		recordsTotal.WithLabelValues(kind).Add(float64(n))
	}
}

// ObserveTransition counts one navigation transition attempt.
func ObserveTransition(from, to, result string) {
	if transitionsTotal != nil {
		transitionsTotal.WithLabelValues(from, to, result).Inc()
	}
}

// ObserveAnomaly counts one off-nominal screen classification.
func ObserveAnomaly(class string) {
	if anomaliesTotal != nil {
		anomaliesTotal.WithLabelValues(class).Inc()
	}
}

// IdentityStarted increments the active identity gauge.
func IdentityStarted() {
	if activeIdentities != nil {
		activeIdentities.Inc()
	}
}

// IdentityFinished decrements the active identity gauge.
func IdentityFinished() {
	if activeIdentities != nil {
		activeIdentities.Dec()
	}
}

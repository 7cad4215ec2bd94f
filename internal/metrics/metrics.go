// Package metrics exposes Prometheus counters for token issuance and scan
// redemption.  A nil *Metrics is valid and records nothing, so tests and
// tools can pass nil.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scan_rewards"

type Metrics struct {
	registry *prometheus.Registry

	scans           *prometheus.CounterVec
	scanDuration    prometheus.Histogram
	creditsAwarded  prometheus.Counter
	tokensIssued    prometheus.Counter
	tokensRotated   prometheus.Counter
	tokenCollisions prometheus.Counter
	events          *prometheus.CounterVec
	rateLimit       *prometheus.CounterVec
}

// New registers all collectors on a private registry together with the Go
// runtime collector.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Scan requests by outcome.",
		}, []string{"outcome"}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Time spent resolving a scan, transaction included.",
			Buckets:   prometheus.DefBuckets,
		}),
		creditsAwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credits_awarded_total",
			Help:      "Credits added to member balances by scans.",
		}),
		tokensIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_issued_total",
			Help:      "Scan tokens created.",
		}),
		tokensRotated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_rotated_total",
			Help:      "Stale scan tokens moved to rotated.",
		}),
		tokenCollisions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_collisions_total",
			Help:      "Unique key collisions while creating a token.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "scan.awarded events handed to the broker, by result.",
		}, []string{"result"}),
		rateLimit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_decisions_total",
			Help:      "Scan rate limiter decisions: allowed, limited or bypassed.",
		}, []string{"decision"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		m.scans, m.scanDuration, m.creditsAwarded,
		m.tokensIssued, m.tokensRotated, m.tokenCollisions, m.events, m.rateLimit,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveScan(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.scans.WithLabelValues(outcome).Inc()
	m.scanDuration.Observe(took.Seconds())
}

func (m *Metrics) CreditsAwarded(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.creditsAwarded.Add(float64(n))
}

func (m *Metrics) TokenIssued() {
	if m == nil {
		return
	}
	m.tokensIssued.Inc()
}

func (m *Metrics) TokensRotated(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.tokensRotated.Add(float64(n))
}

func (m *Metrics) TokenCollision() {
	if m == nil {
		return
	}
	m.tokenCollisions.Inc()
}

func (m *Metrics) EventPublished(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.events.WithLabelValues(result).Inc()
}

func (m *Metrics) RateLimit(decision string) {
	if m == nil {
		return
	}
	m.rateLimit.WithLabelValues(decision).Inc()
}

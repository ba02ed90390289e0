package proxy

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request outcomes recorded by the proxy.
const (
	OutcomeRelayed     = "relayed"
	OutcomeNotFound    = "not_found"
	OutcomeTooLarge    = "too_large"
	OutcomeInvalidJSON = "invalid_json"
	OutcomeMissingKey  = "missing_key"
	OutcomeProxyError  = "proxy_error"
)

// Metrics holds the Prometheus collectors of the proxy.
type Metrics struct {
	RequestsTotal     *prometheus.CounterVec
	UpstreamDuration  prometheus.Histogram
	UpstreamResponses *prometheus.CounterVec
}

var upstreamBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// NewMetrics creates and registers the proxy metrics on reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "licentra",
				Subsystem: "proxy",
				Name:      "requests_total",
				Help:      "Proxy requests by outcome",
			},
			[]string{"outcome"},
		),
		UpstreamDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "licentra",
				Subsystem: "proxy",
				Name:      "upstream_duration_seconds",
				Help:      "Duration of calls to the validation API",
				Buckets:   upstreamBuckets,
			},
		),
		UpstreamResponses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "licentra",
				Subsystem: "proxy",
				Name:      "upstream_responses_total",
				Help:      "Completed validation API calls by status code",
			},
			[]string{"code"},
		),
	}
}

func (m *Metrics) recordOutcome(outcome string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) recordUpstream(status int, d time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamDuration.Observe(d.Seconds())
	m.UpstreamResponses.WithLabelValues(strconv.Itoa(status)).Inc()
}

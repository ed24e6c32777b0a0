// Package metrics holds the Prometheus instruments for the verification
// pipeline.  All methods are safe on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	// Attempts by final result: granted, denied or failed.
	Attempts *prometheus.CounterVec

	// Failures by reason: template_format, capture_timeout, storage, ...
	Failures *prometheus.CounterVec

	MatchLatency prometheus.Histogram

	// Enrolled templates the engine skipped, by reason (decrypt, format).
	CandidatesSkipped *prometheus.CounterVec

	InFlight prometheus.Gauge

	Heartbeats *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the instruments on a fresh registry that also carries the
// Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWith(reg, reg)
}

// NewWith registers on reg and serves from g.
func NewWith(reg prometheus.Registerer, g prometheus.Gatherer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Attempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "biogate_verification_attempts_total",
			Help: "Verification attempts by final result",
		}, []string{"result"}),

		Failures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "biogate_verification_failures_total",
			Help: "Failed verification attempts by reason",
		}, []string{"reason"}),

		MatchLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "biogate_match_duration_seconds",
			Help:    "Duration of one identification over the active population",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),

		CandidatesSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "biogate_match_candidates_skipped_total",
			Help: "Enrolled templates skipped during matching by reason",
		}, []string{"reason"}),

		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "biogate_verification_in_flight",
			Help: "Verification attempts currently holding a pipeline slot",
		}),

		Heartbeats: f.NewCounterVec(prometheus.CounterOpts{
			Name: "biogate_reader_heartbeats_total",
			Help: "Reader heartbeats received by known status",
		}, []string{"known"}),

		gatherer: g,
	}
}

func (m *Metrics) IncAttempt(result string) {
	if m != nil {
		m.Attempts.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) IncFailure(reason string) {
	if m != nil {
		m.Failures.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) ObserveMatch(d time.Duration) {
	if m != nil {
		m.MatchLatency.Observe(d.Seconds())
	}
}

// CandidateSkipped has the signature of match.WithSkipHook.
func (m *Metrics) CandidateSkipped(_ string, reason string) {
	if m != nil {
		m.CandidatesSkipped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) AddInFlight(delta float64) {
	if m != nil {
		m.InFlight.Add(delta)
	}
}

func (m *Metrics) IncHeartbeat(known bool) {
	if m != nil {
		label := "false"
		if known {
			label = "true"
		}
		m.Heartbeats.WithLabelValues(label).Inc()
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

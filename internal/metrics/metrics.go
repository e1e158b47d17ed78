// Package metrics holds the Prometheus instruments for scanning and the visit ledger.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Scan outcomes.
const (
	OutcomeMatched      = "matched"
	OutcomeNoMatch      = "no_match"
	OutcomeEmptyGallery = "empty_gallery"
	OutcomeError        = "error"
)

// Oracle call outcomes.
const (
	OracleOK             = "ok"
	OracleServiceError   = "service_error"
	OracleTransportError = "transport_error"
	OracleNoConfidence   = "no_confidence"
)

// Metrics provides observability for identification requests.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Scans          *prometheus.CounterVec
	ScanDuration   *prometheus.HistogramVec
	OracleCalls    *prometheus.CounterVec
	OracleDuration prometheus.Histogram
	VisitsRecorded *prometheus.CounterVec
}

// New creates the instruments and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Scans: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "checkpoint_scans_total",
			Help: "Identification requests by section and outcome",
		}, []string{"section", "outcome"}),

		ScanDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "checkpoint_scan_duration_seconds",
			Help:    "Duration of a full gallery scan including oracle calls",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"section"}),

		OracleCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "checkpoint_oracle_calls_total",
			Help: "Comparison oracle calls by outcome",
		}, []string{"outcome"}),

		OracleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "checkpoint_oracle_call_duration_seconds",
			Help:    "Latency of a single comparison oracle call",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		}),

		VisitsRecorded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "checkpoint_visits_recorded_total",
			Help: "Visit ledger writes by section and status",
		}, []string{"section", "status"}),
	}
}

// ObserveScan records the outcome and duration of one identification request.
func (m *Metrics) ObserveScan(section, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Scans.WithLabelValues(section, outcome).Inc()
	m.ScanDuration.WithLabelValues(section).Observe(d.Seconds())
}

// ObserveOracleCall records one oracle call.
func (m *Metrics) ObserveOracleCall(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.OracleCalls.WithLabelValues(outcome).Inc()
	m.OracleDuration.Observe(d.Seconds())
}

// IncrementVisit records a ledger write attempt.
func (m *Metrics) IncrementVisit(section string, recorded bool) {
	if m == nil {
		return
	}
	status := "recorded"
	if !recorded {
		status = "failed"
	}
	m.VisitsRecorded.WithLabelValues(section, status).Inc()
}

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label for a successful analysis; failures use the error kind.
const OutcomeOK = "ok"

// Metrics holds Prometheus collectors for the motion scorer.
type Metrics struct {
	registry           *prometheus.Registry
	requestsTotal      prometheus.Counter
	requestDuration    prometheus.Histogram
	errorsTotal        prometheus.Counter
	analysesTotal      *prometheus.CounterVec
	analysisDuration   prometheus.Histogram
	referenceSequences prometheus.Gauge
	reloadsTotal       *prometheus.CounterVec
}

// New creates and registers Prometheus metrics for the motion scorer.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "motion_requests_total",
		Help: "Total number of HTTP requests received",
	})
	requestDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "motion_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "motion_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	analysesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "motion_analyses_total",
		Help: "Analyses run, by outcome (ok or error kind)",
	}, []string{"outcome"})
	analysisDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "motion_analysis_duration_seconds",
		Help:    "Wall time of one analysis from upload to result",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
	})
	referenceSequences := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "motion_reference_sequences",
		Help: "Number of reference sequences in the loaded corpus",
	})
	reloadsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "motion_reference_reloads_total",
		Help: "Reference corpus reloads, by result",
	}, []string{"result"})

	registry.MustRegister(
		requestsTotal,
		requestDuration,
		errorsTotal,
		analysesTotal,
		analysisDuration,
		referenceSequences,
		reloadsTotal,
	)

	return &Metrics{
		registry:           registry,
		requestsTotal:      requestsTotal,
		requestDuration:    requestDuration,
		errorsTotal:        errorsTotal,
		analysesTotal:      analysesTotal,
		analysisDuration:   analysisDuration,
		referenceSequences: referenceSequences,
		reloadsTotal:       reloadsTotal,
	}
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(status int, d time.Duration) {
	m.requestsTotal.Inc()
	m.requestDuration.Observe(d.Seconds())
	if status >= 400 {
		m.errorsTotal.Inc()
	}
}

// ObserveAnalysis records one finished analysis.
func (m *Metrics) ObserveAnalysis(outcome string, d time.Duration) {
	m.analysesTotal.WithLabelValues(outcome).Inc()
	m.analysisDuration.Observe(d.Seconds())
}

// SetReferenceSequences sets the reference sequence gauge.
func (m *Metrics) SetReferenceSequences(n int) {
	m.referenceSequences.Set(float64(n))
}

// IncReloads counts a corpus reload attempt.
func (m *Metrics) IncReloads(ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.reloadsTotal.WithLabelValues(result).Inc()
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. reference sequences).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}

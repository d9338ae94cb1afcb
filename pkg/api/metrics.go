package api

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ssargent/tweetdb/pkg/fault"
	"github.com/ssargent/tweetdb/pkg/ledger"
	"github.com/ssargent/tweetdb/pkg/program"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Metrics holds all Prometheus metrics for the API
type Metrics struct {
	registry *prometheus.Registry

	// HTTP request metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight *prometheus.GaugeVec

	// Instruction metrics
	instructionsTotal   *prometheus.CounterVec
	instructionDuration *prometheus.HistogramVec
	rejectionsTotal     *prometheus.CounterVec

	// API key authentication metrics
	authRequestsTotal *prometheus.CounterVec

	// Health check metrics
	healthChecksTotal *prometheus.CounterVec

	statsOnce sync.Once
}

// NewMetrics creates all metrics on reg. A nil reg gets a fresh registry
// carrying the Go and process collectors.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,

		// HTTP request metrics
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tweetdb_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tweetdb_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		httpRequestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tweetdb_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
			[]string{"method", "endpoint"},
		),

		// Instruction metrics
		instructionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tweetdb_instructions_total",
				Help: "Total number of instructions handled",
			},
			[]string{"instruction", "status"},
		),

		instructionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tweetdb_instruction_duration_seconds",
				Help:    "Instruction handling duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.00005, 4, 10),
			},
			[]string{"instruction"},
		),

		rejectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tweetdb_instruction_rejections_total",
				Help: "Rejected instructions by error kind",
			},
			[]string{"instruction", "kind"},
		),

		// Authentication metrics
		authRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tweetdb_auth_requests_total",
				Help: "Total number of authentication requests",
			},
			[]string{"status"},
		),

		// Health check metrics
		healthChecksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tweetdb_health_checks_total",
				Help: "Total number of health checks",
			},
			[]string{"status"},
		),
	}

	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the registry the metrics live on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// TrackStats exports the record count and slot read from stats at scrape
// time. Only the first call registers.
func (m *Metrics) TrackStats(stats func() ledger.Stats) {
	m.statsOnce.Do(func() {
		factory := promauto.With(m.registry)
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "tweetdb_records",
			Help: "Live records in the store",
		}, func() float64 { return float64(stats().Records) })
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "tweetdb_slot",
			Help: "Slot of the last applied transaction",
		}, func() float64 { return float64(stats().Slot) })
	})
}

// ObserveInstruction records one handled instruction; it is a ledger.Observer
func (m *Metrics) ObserveInstruction(kind program.Kind, outcome program.Outcome, elapsed time.Duration) {
	status := statusSuccess
	if !outcome.OK() {
		status = statusError
		m.rejectionsTotal.WithLabelValues(kind.String(), fault.KindOf(outcome.Err).String()).Inc()
	}
	m.instructionsTotal.WithLabelValues(kind.String(), status).Inc()
	m.instructionDuration.WithLabelValues(kind.String()).Observe(elapsed.Seconds())
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	statusCodeStr := strconv.Itoa(statusCode)

	m.httpRequestsTotal.WithLabelValues(method, endpoint, statusCodeStr).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordAuthRequest records an authentication request
func (m *Metrics) RecordAuthRequest(success bool) {
	status := statusSuccess
	if !success {
		status = statusError
	}
	m.authRequestsTotal.WithLabelValues(status).Inc()
}

// RecordHealthCheck records a health check
func (m *Metrics) RecordHealthCheck(success bool) {
	status := statusSuccess
	if !success {
		status = statusError
	}
	m.healthChecksTotal.WithLabelValues(status).Inc()
}

// InstrumentHandler instruments an HTTP handler with metrics
func (m *Metrics) InstrumentHandler(method, endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Record request in flight
		gauge := m.httpRequestsInFlight.WithLabelValues(method, endpoint)
		gauge.Inc()
		defer gauge.Dec()

		// Create response writer wrapper to capture status code
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(rw, r)

		m.RecordHTTPRequest(method, endpoint, rw.statusCode, time.Since(start))
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ssargent/pinglog/pkg/store"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Metrics holds all Prometheus metrics for the API
type Metrics struct {
	// HTTP request metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight *prometheus.GaugeVec

	// API key authentication metrics
	authRequestsTotal *prometheus.CounterVec

	// Read pass metrics
	passesTotal    *prometheus.CounterVec
	recordsDecoded prometheus.Counter
	recoveries     prometheus.Counter
	lostBytes      prometheus.Counter
	truncatedBytes prometheus.Counter
}

// NewMetrics creates all Prometheus metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pinglog_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pinglog_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		httpRequestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pinglog_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
			[]string{"method", "endpoint"},
		),

		authRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pinglog_auth_requests_total",
				Help: "Total number of authentication requests",
			},
			[]string{"status"},
		),

		passesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pinglog_read_passes_total",
				Help: "Read passes over sensor logs, by outcome",
			},
			[]string{"status"},
		),

		recordsDecoded: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pinglog_records_decoded_total",
				Help: "Records decoded from sensor logs",
			},
		),

		recoveries: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pinglog_recoveries_total",
				Help: "Times a reader lost frame alignment and resynchronized",
			},
		),

		lostBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pinglog_lost_bytes_total",
				Help: "Bytes skipped while resynchronizing",
			},
		),

		truncatedBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pinglog_truncated_bytes_total",
				Help: "Bytes of incomplete trailing records",
			},
		),
	}
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

// RecordPass adds the statistics of a finished read pass
func (m *Metrics) RecordPass(stats store.PassStats, err error) {
	status := statusSuccess
	if err != nil {
		status = statusError
	}
	m.passesTotal.WithLabelValues(status).Inc()
	m.recordsDecoded.Add(float64(stats.Records))
	m.recoveries.Add(float64(stats.Recoveries))
	m.lostBytes.Add(float64(stats.LostBytes))
	m.truncatedBytes.Add(float64(stats.TruncatedBytes))
}

// InstrumentHandler instruments an HTTP handler with metrics
func (m *Metrics) InstrumentHandler(method, endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		gauge := m.httpRequestsInFlight.WithLabelValues(method, endpoint)
		gauge.Inc()
		defer gauge.Dec()

		// Capture the status code
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(rw, r)

		m.RecordHTTPRequest(method, endpoint, rw.statusCode, time.Since(start))
	}
}

// InstrumentAuthMiddleware instruments the authentication middleware
func (m *Metrics) InstrumentAuthMiddleware(next func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hasAPIKey := r.Header.Get("X-API-Key") != ""

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next(h).ServeHTTP(rw, r)

			if hasAPIKey {
				m.RecordAuthRequest(rw.statusCode != http.StatusUnauthorized)
			}
		})
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

package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	uploadsTotal   *prometheus.CounterVec
	uploadBytes    *prometheus.HistogramVec
	callbacksTotal *prometheus.CounterVec
	triggersTotal  *prometheus.CounterVec
	deletesTotal   *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docsvc",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docsvc",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docsvc",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	uploadsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docsvc",
			Subsystem: "documents",
			Name:      "uploads_total",
			Help:      "Total accepted document uploads by storage backend.",
		},
		[]string{"service", "backend"},
	)
	uploadBytes := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docsvc",
			Subsystem: "documents",
			Name:      "upload_bytes",
			Help:      "Distribution of uploaded document sizes in bytes.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 9),
		},
		[]string{"service"},
	)
	callbacksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docsvc",
			Subsystem: "documents",
			Name:      "callbacks_total",
			Help:      "Total processing callbacks by outcome.",
		},
		[]string{"service", "outcome"},
	)
	triggersTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docsvc",
			Subsystem: "documents",
			Name:      "ingest_triggers_total",
			Help:      "Total ingestion trigger attempts by result.",
		},
		[]string{"service", "result"},
	)
	deletesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docsvc",
			Subsystem: "documents",
			Name:      "deletes_total",
			Help:      "Total document deletions.",
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		uploadsTotal,
		uploadBytes,
		callbacksTotal,
		triggersTotal,
		deletesTotal,
	)

	return &HTTPServerMetrics{
		registry:        registry,
		requestTotal:    requestTotal,
		requestDuration: requestDuration,
		requestInFlight: requestInFlight,
		uploadsTotal:    uploadsTotal,
		uploadBytes:     uploadBytes,
		callbacksTotal:  callbacksTotal,
		triggersTotal:   triggersTotal,
		deletesTotal:    deletesTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath collapses path parameters so the label cardinality stays
// bounded no matter how many documents exist.
func normalizePath(path string) string {
	switch {
	case path == "/api/documents/upload",
		path == "/api/documents/pending",
		path == "/api/documents/admin/clear-all":
		return path
	case strings.HasPrefix(path, "/api/documents/user/"):
		return "/api/documents/user/{user_id}"
	case strings.HasSuffix(path, "/status") && strings.HasPrefix(path, "/api/documents/"):
		return "/api/documents/{document_id}/status"
	case strings.HasSuffix(path, "/download") && strings.HasPrefix(path, "/api/documents/"):
		return "/api/documents/{document_id}/download"
	case strings.HasSuffix(path, "/mark-completed") && strings.HasPrefix(path, "/api/documents/"):
		return "/api/documents/{document_id}/mark-completed"
	case strings.HasSuffix(path, "/mark-failed") && strings.HasPrefix(path, "/api/documents/"):
		return "/api/documents/{document_id}/mark-failed"
	case strings.HasPrefix(path, "/api/documents/"):
		return "/api/documents/{document_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordUpload(service, backend string, sizeBytes int64) {
	if backend == "" {
		backend = "unknown"
	}
	m.uploadsTotal.WithLabelValues(service, backend).Inc()
	m.uploadBytes.WithLabelValues(service).Observe(float64(sizeBytes))
}

func (m *HTTPServerMetrics) RecordCallback(service, outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.callbacksTotal.WithLabelValues(service, outcome).Inc()
}

func (m *HTTPServerMetrics) RecordTrigger(service, result string) {
	if result == "" {
		result = "unknown"
	}
	m.triggersTotal.WithLabelValues(service, result).Inc()
}

func (m *HTTPServerMetrics) RecordDelete(service string) {
	m.deletesTotal.WithLabelValues(service).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

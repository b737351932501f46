package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	forwardTotal    *prometheus.CounterVec
	forwardDuration *prometheus.HistogramVec
	forwardInFlight prometheus.Gauge
	queueLag        *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	forwardTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docsvc",
			Subsystem: "worker",
			Name:      "ingest_forward_total",
			Help:      "Total ingest requests forwarded to the pipeline by status.",
		},
		[]string{"service", "status"},
	)
	forwardDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docsvc",
			Subsystem: "worker",
			Name:      "ingest_forward_duration_seconds",
			Help:      "Ingest forwarding duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	forwardInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docsvc",
			Subsystem: "worker",
			Name:      "ingest_forward_in_flight",
			Help:      "Number of in-flight ingest forwards.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docsvc",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between message publication and forwarding start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)

	registry.MustRegister(forwardTotal, forwardDuration, forwardInFlight, queueLag)

	return &WorkerMetrics{
		registry:        registry,
		forwardTotal:    forwardTotal,
		forwardDuration: forwardDuration,
		forwardInFlight: forwardInFlight,
		queueLag:        queueLag,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartForward() {
	m.forwardInFlight.Inc()
}

func (m *WorkerMetrics) FinishForward(service string, duration time.Duration, err error) {
	m.forwardInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.forwardTotal.WithLabelValues(service, status).Inc()
	m.forwardDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}

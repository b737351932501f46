package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/learningassistant/document-service/internal/bootstrap"
	"github.com/learningassistant/document-service/internal/config"
	"github.com/learningassistant/document-service/internal/core/domain"
	"github.com/learningassistant/document-service/internal/core/ports"
	"github.com/learningassistant/document-service/internal/infrastructure/resilience"
	"github.com/learningassistant/document-service/internal/infrastructure/trigger/direct"
	"github.com/learningassistant/document-service/internal/observability/logging"
	"github.com/learningassistant/document-service/internal/observability/metrics"
)

const (
	ingestConsumerName  = "document-ingest-forwarder"
	discardConsumerName = "document-discard-forwarder"
)

// The worker drains the durable queue and forwards each message to the
// processing pipeline over HTTP: ingest requests as triggers, discard
// requests as deletions. It only runs in queue trigger mode.
func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("document-service-worker", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TriggerMode() != config.TriggerModeQueue {
		log.Fatalf("worker requires the queue trigger: set NATS_URL")
	}
	if cfg.RAGIngestURL == "" {
		log.Fatalf("worker requires RAG_INGEST_URL to forward ingest requests")
	}

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics("document-service-worker")
	go serveMetrics(cfg.WorkerMetricsPort, workerMetrics)

	pipeline := direct.New(
		cfg.RAGIngestURL,
		time.Duration(cfg.TriggerTimeoutSeconds)*time.Second,
		resilience.NewExecutor(resilience.DefaultConfig()),
	)

	slog.Info("worker_subscribed",
		"stream", cfg.NATSStream,
		"ingest_consumer", ingestConsumerName,
		"discard_consumer", discardConsumerName,
	)

	errCh := make(chan error, 2)
	go func() {
		errCh <- app.Queue.Subscribe(ctx, ingestConsumerName, func(handlerCtx context.Context, req ports.IngestRequest, published time.Time) error {
			forwardCtx, cancel := context.WithTimeout(handlerCtx, 2*time.Minute)
			defer cancel()
			forwardCtx = domain.WithCorrelationID(forwardCtx, req.CorrelationID)

			if !published.IsZero() {
				workerMetrics.ObserveQueueLag("document-service-worker", time.Since(published))
			}

			workerMetrics.StartForward()
			start := time.Now()
			forwardErr := pipeline.Trigger(forwardCtx, req)
			workerMetrics.FinishForward("document-service-worker", time.Since(start), forwardErr)
			return forwardErr
		})
	}()
	go func() {
		errCh <- app.Queue.SubscribeDiscards(ctx, discardConsumerName, func(handlerCtx context.Context, documentID, externalReferenceID string) error {
			discardCtx, cancel := context.WithTimeout(handlerCtx, 2*time.Minute)
			defer cancel()
			return pipeline.Discard(discardCtx, documentID, externalReferenceID)
		})
	}()
	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil {
			log.Fatalf("worker subscribe error: %v", err)
		}
	}
}

func serveMetrics(port string, m *metrics.WorkerMetrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	if err := http.ListenAndServe(":"+port, mux); err != nil && err != http.ErrServerClosed {
		slog.Error("worker_metrics_server_error", "error", err)
	}
}

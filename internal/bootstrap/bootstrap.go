package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/learningassistant/document-service/internal/config"
	"github.com/learningassistant/document-service/internal/core/ports"
	"github.com/learningassistant/document-service/internal/core/usecase"
	"github.com/learningassistant/document-service/internal/infrastructure/repository/postgres"
	"github.com/learningassistant/document-service/internal/infrastructure/resilience"
	"github.com/learningassistant/document-service/internal/infrastructure/storage/gcs"
	"github.com/learningassistant/document-service/internal/infrastructure/storage/localfs"
	"github.com/learningassistant/document-service/internal/infrastructure/trigger/direct"
	"github.com/learningassistant/document-service/internal/infrastructure/trigger/disabled"
	"github.com/learningassistant/document-service/internal/infrastructure/trigger/natsqueue"
)

type App struct {
	Config config.Config

	Repo    ports.DocumentRepository
	Storage ports.BlobStorage
	Trigger ports.IngestTrigger

	Lifecycle *usecase.DocumentLifecycleUseCase

	// Queue is non-nil only in queue trigger mode; the worker consumes it.
	Queue *natsqueue.Queue

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, storageClose, err := newBlobStorage(ctx, cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	trigger, queue, triggerClose, err := newIngestTrigger(ctx, cfg)
	if err != nil {
		storageClose()
		_ = db.Close()
		return nil, err
	}

	lifecycle := usecase.NewDocumentLifecycleUseCase(repo, storage, trigger, usecase.LookupRetryPolicy{
		Retries:        cfg.CallbackLookupRetries,
		InitialBackoff: time.Duration(cfg.CallbackLookupInitialBackoffMS) * time.Millisecond,
	})

	return &App{
		Config:    cfg,
		Repo:      repo,
		Storage:   storage,
		Trigger:   trigger,
		Lifecycle: lifecycle,
		Queue:     queue,

		closeFn: func() {
			triggerClose()
			storageClose()
			_ = db.Close()
		},
	}, nil
}

func newBlobStorage(ctx context.Context, cfg config.Config) (ports.BlobStorage, func(), error) {
	switch cfg.StorageBackend {
	case config.StorageBackendGCS:
		store, err := gcs.New(ctx, gcs.Options{
			Bucket:       cfg.GCSBucket,
			Project:      cfg.GCSProject,
			SignedURLTTL: time.Duration(cfg.SignedURLTTLHours) * time.Hour,
			ClockSkew:    time.Duration(cfg.SignedURLSkewMinutes) * time.Minute,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("init gcs storage: %w", err)
		}
		if err := store.Init(ctx); err != nil {
			_ = store.Close()
			return nil, nil, fmt.Errorf("prepare gcs bucket: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	default:
		store := localfs.New(cfg.StoragePath)
		if err := store.Init(ctx); err != nil {
			return nil, nil, fmt.Errorf("prepare local storage: %w", err)
		}
		return store, func() {}, nil
	}
}

func newIngestTrigger(ctx context.Context, cfg config.Config) (ports.IngestTrigger, *natsqueue.Queue, func(), error) {
	switch cfg.TriggerMode() {
	case config.TriggerModeQueue:
		queue, err := natsqueue.New(ctx, cfg.NATSURL, cfg.NATSStream, cfg.NATSSubjectPrefix, natsqueue.Options{
			ResilienceExecutor: resilience.NewExecutor(resilience.DefaultConfig()),
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("init ingest queue: %w", err)
		}
		return queue, queue, queue.Close, nil
	case config.TriggerModeDirect:
		client := direct.New(
			cfg.RAGIngestURL,
			time.Duration(cfg.TriggerTimeoutSeconds)*time.Second,
			resilience.NewExecutor(resilience.DefaultConfig()),
		)
		return client, nil, func() {}, nil
	default:
		return disabled.New(), nil, func() {}, nil
	}
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

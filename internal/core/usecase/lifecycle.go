package usecase

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/learningassistant/document-service/internal/core/domain"
	"github.com/learningassistant/document-service/internal/core/ports"
	"github.com/learningassistant/document-service/internal/infrastructure/resilience"
)

// DocumentLifecycleUseCase owns the document state machine: it performs the
// upload-and-register flow, issues the ingestion trigger and reconciles the
// asynchronous completion/failure callbacks from the downstream pipeline.
type DocumentLifecycleUseCase struct {
	repo    ports.DocumentRepository
	storage ports.BlobStorage
	trigger ports.IngestTrigger
	lookup  *resilience.Executor

	now func() time.Time
}

type LookupRetryPolicy struct {
	// Retries after the initial lookup attempt; the delay doubles each time.
	Retries        int
	InitialBackoff time.Duration
}

func DefaultLookupRetryPolicy() LookupRetryPolicy {
	return LookupRetryPolicy{
		Retries:        3,
		InitialBackoff: 1 * time.Second,
	}
}

func NewDocumentLifecycleUseCase(
	repo ports.DocumentRepository,
	storage ports.BlobStorage,
	trigger ports.IngestTrigger,
	lookupPolicy LookupRetryPolicy,
) *DocumentLifecycleUseCase {
	// The two fields default independently: a zero backoff must not throw
	// away a deliberately configured retry count, and vice versa.
	defaults := DefaultLookupRetryPolicy()
	if lookupPolicy.Retries < 0 {
		lookupPolicy.Retries = defaults.Retries
	}
	if lookupPolicy.InitialBackoff <= 0 {
		lookupPolicy.InitialBackoff = defaults.InitialBackoff
	}
	return &DocumentLifecycleUseCase{
		repo:    repo,
		storage: storage,
		trigger: trigger,
		lookup:  resilience.NewExecutor(resilience.LookupConfig(lookupPolicy.Retries, lookupPolicy.InitialBackoff)),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (uc *DocumentLifecycleUseCase) GetByID(ctx context.Context, documentID string) (*domain.DocumentRecord, error) {
	id, err := domain.CanonicalDocumentID(documentID)
	if err != nil {
		return nil, err
	}
	return uc.repo.GetByID(ctx, id)
}

func (uc *DocumentLifecycleUseCase) ListByOwner(ctx context.Context, ownerID string) ([]domain.DocumentRecord, error) {
	return uc.repo.ListByOwner(ctx, ownerID)
}

func (uc *DocumentLifecycleUseCase) ListPending(ctx context.Context) ([]domain.DocumentRecord, error) {
	return uc.repo.ListByStatus(ctx, domain.StatusPending)
}

// Download resolves the record and opens its bytes from whichever backend
// stored them. The caller owns the reader.
func (uc *DocumentLifecycleUseCase) Download(ctx context.Context, documentID string) (*domain.DocumentRecord, io.ReadCloser, error) {
	id, err := domain.CanonicalDocumentID(documentID)
	if err != nil {
		return nil, nil, err
	}

	doc, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	body, err := uc.storage.Open(ctx, doc.StorageKey)
	if err != nil {
		return nil, nil, fmt.Errorf("open stored bytes for %s: %w", id, err)
	}
	return doc, body, nil
}

package ports

import (
	"context"
	"io"
	"time"

	"github.com/learningassistant/document-service/internal/core/domain"
)

// DocumentRepository persists and reads document lifecycle state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.DocumentRecord) error
	GetByID(ctx context.Context, id string) (*domain.DocumentRecord, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.DocumentRecord, error)
	ListByStatus(ctx context.Context, status domain.DocumentStatus) ([]domain.DocumentRecord, error)
	ListAll(ctx context.Context) ([]domain.DocumentRecord, error)

	// SetProcessing flips PENDING to PROCESSING. It is a no-op for records in
	// any other status, preserving monotonic transitions without a lock.
	SetProcessing(ctx context.Context, id string) error

	// MarkTerminal transitions a non-terminal record to status, stamping
	// processedAt and, when non-empty, the external reference id. It returns
	// false when the record was already terminal so callers can treat a
	// repeated callback as an idempotent no-op.
	MarkTerminal(ctx context.Context, id string, status domain.DocumentStatus, externalReferenceID string, processedAt time.Time) (bool, error)

	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) error
}

// BlobStorage is the durable byte store behind document records.
type BlobStorage interface {
	// Init is idempotent and creates the root container/directory if absent.
	Init(ctx context.Context) error

	// Store rejects empty payloads and returns an owner-namespaced key.
	Store(ctx context.Context, ownerID, fileName string, size int64, data io.Reader) (string, error)

	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete is best-effort: failures are logged by the implementation and
	// never propagated to the caller.
	Delete(ctx context.Context, key string)

	// URLFor returns a URL the downstream pipeline can fetch the bytes from.
	URLFor(ctx context.Context, key, ownerID string) (string, error)

	Kind() domain.StorageBackendKind
}

// IngestRequest is the one payload shape the downstream pipeline accepts
// regardless of transport.
type IngestRequest struct {
	DocumentID    string `json:"document_id"`
	OwnerID       string `json:"user_id"`
	AccessURL     string `json:"document_url"`
	DisplayName   string `json:"document_title"`
	CorrelationID string `json:"correlation_id"`
}

// IngestTrigger notifies the downstream pipeline that a stored document is
// ready. A nil error means the trigger was accepted.
type IngestTrigger interface {
	Trigger(ctx context.Context, req IngestRequest) error

	// Discard asks the pipeline to drop derived data for a deleted document.
	Discard(ctx context.Context, documentID, externalReferenceID string) error
}

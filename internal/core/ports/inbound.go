package ports

import (
	"context"
	"io"

	"github.com/learningassistant/document-service/internal/core/domain"
)

// DocumentUploader is the inbound contract for the upload-and-register flow.
type DocumentUploader interface {
	Upload(ctx context.Context, ownerID, fileName, mediaType string, size int64, body io.Reader) (*domain.DocumentRecord, error)
}

// CallbackHandler reconciles out-of-band status updates from the downstream
// pipeline. Both operations are idempotent and tolerate arriving before the
// upload transaction is visible to their read path.
type CallbackHandler interface {
	MarkCompleted(ctx context.Context, documentID, externalReferenceID string) error
	MarkFailed(ctx context.Context, documentID string) error
}

// DocumentReader is the inbound read model for document metadata/state and
// the stored bytes themselves.
type DocumentReader interface {
	GetByID(ctx context.Context, documentID string) (*domain.DocumentRecord, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.DocumentRecord, error)
	ListPending(ctx context.Context) ([]domain.DocumentRecord, error)
	Download(ctx context.Context, documentID string) (*domain.DocumentRecord, io.ReadCloser, error)
}

// DocumentDeleter removes a document, its bytes and its derived data.
type DocumentDeleter interface {
	Delete(ctx context.Context, documentID string) error
	ClearAll(ctx context.Context) error
}

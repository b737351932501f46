package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/learningassistant/document-service/internal/core/domain"
	"github.com/learningassistant/document-service/internal/core/ports"
)

// Upload stores the bytes, registers a PENDING record in a single durable
// write that is visible to subsequent reads before the method returns, and
// then triggers downstream ingestion. A rejected or failed trigger never
// fails the upload: the document is already stored and addressable, and
// ingestion can be retried out-of-band.
func (uc *DocumentLifecycleUseCase) Upload(
	ctx context.Context,
	ownerID, fileName, mediaType string,
	size int64,
	body io.Reader,
) (*domain.DocumentRecord, error) {
	if ownerID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("owner id is required"))
	}
	if size == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("file is empty"))
	}

	correlationID := domain.CorrelationIDFromContext(ctx)
	logger := slog.Default().With("owner_id", ownerID, "correlation_id", correlationID)

	storageKey, err := uc.storage.Store(ctx, ownerID, fileName, size, body)
	if err != nil {
		return nil, fmt.Errorf("store document bytes: %w", err)
	}

	doc := &domain.DocumentRecord{
		ID:             domain.NewDocumentID(),
		OwnerID:        ownerID,
		FileName:       fileName,
		MediaType:      mediaType,
		SizeBytes:      size,
		StorageKey:     storageKey,
		StorageBackend: uc.storage.Kind(),
		Status:         domain.StatusPending,
		CreatedAt:      uc.now(),
	}
	if err := uc.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("register document record: %w", err)
	}
	logger.Info("document_registered", "document_id", doc.ID, "file_name", fileName, "size_bytes", size)

	// The record is durable and visible from here on; everything below is
	// outside that boundary so a slow or unavailable pipeline cannot undo
	// the upload.
	uc.fireTrigger(ctx, doc, correlationID, logger)
	return doc, nil
}

func (uc *DocumentLifecycleUseCase) fireTrigger(ctx context.Context, doc *domain.DocumentRecord, correlationID string, logger *slog.Logger) {
	accessURL, err := uc.storage.URLFor(ctx, doc.StorageKey, doc.OwnerID)
	if err != nil {
		logger.Warn("access_url_failed", "document_id", doc.ID, "error", err)
		return
	}

	err = uc.trigger.Trigger(ctx, ports.IngestRequest{
		DocumentID:    doc.ID,
		OwnerID:       doc.OwnerID,
		AccessURL:     accessURL,
		DisplayName:   doc.FileName,
		CorrelationID: correlationID,
	})
	if err != nil {
		logger.Warn("ingest_trigger_rejected", "document_id", doc.ID, "error", err)
		return
	}

	if err := uc.repo.SetProcessing(ctx, doc.ID); err != nil {
		logger.Warn("set_processing_failed", "document_id", doc.ID, "error", err)
		return
	}
	doc.Status = domain.StatusProcessing
}

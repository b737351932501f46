package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/learningassistant/document-service/internal/core/domain"
	"github.com/learningassistant/document-service/internal/observability/logging"
)

// Delete removes the record after best-effort cleanup of the backing bytes
// and the pipeline's derived data. Cleanup failures are logged, never fatal:
// deletion of the local record must still succeed.
func (uc *DocumentLifecycleUseCase) Delete(ctx context.Context, documentID string) error {
	id, err := domain.CanonicalDocumentID(documentID)
	if err != nil {
		return err
	}

	doc, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	logger := logging.WithDocument(slog.Default(), id, domain.CorrelationIDFromContext(ctx))

	uc.storage.Delete(ctx, doc.StorageKey)
	if err := uc.trigger.Discard(ctx, doc.ID, doc.ExternalReferenceID); err != nil {
		logger.Warn("pipeline_discard_failed", "error", err)
	}

	if err := uc.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete document record: %w", err)
	}
	logger.Info("document_deleted", "owner_id", doc.OwnerID)
	return nil
}

// ClearAll is administrative/test tooling: it drops every stored blob
// best-effort and then every record. Not exposed to end users.
func (uc *DocumentLifecycleUseCase) ClearAll(ctx context.Context) error {
	docs, err := uc.repo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list documents for clear: %w", err)
	}

	for _, doc := range docs {
		uc.storage.Delete(ctx, doc.StorageKey)
	}
	if err := uc.repo.DeleteAll(ctx); err != nil {
		return fmt.Errorf("delete all document records: %w", err)
	}
	slog.Info("documents_cleared", "count", len(docs))
	return nil
}

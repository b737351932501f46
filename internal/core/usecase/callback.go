package usecase

import (
	"context"
	"log/slog"

	"github.com/learningassistant/document-service/internal/core/domain"
	"github.com/learningassistant/document-service/internal/infrastructure/resilience"
	"github.com/learningassistant/document-service/internal/observability/logging"
)

// MarkCompleted records the pipeline's success callback, attaching the
// pipeline's reference id when one is supplied. Idempotent: a repeated
// callback is a no-op and the first terminal outcome wins.
func (uc *DocumentLifecycleUseCase) MarkCompleted(ctx context.Context, documentID, externalReferenceID string) error {
	id, err := domain.CanonicalDocumentID(documentID)
	if err != nil {
		return err
	}
	return uc.finalize(ctx, id, domain.StatusCompleted, externalReferenceID)
}

// MarkFailed records the pipeline's failure callback. Same idempotency and
// visibility-race handling as MarkCompleted.
func (uc *DocumentLifecycleUseCase) MarkFailed(ctx context.Context, documentID string) error {
	id, err := domain.CanonicalDocumentID(documentID)
	if err != nil {
		return err
	}
	return uc.finalize(ctx, id, domain.StatusFailed, "")
}

func (uc *DocumentLifecycleUseCase) finalize(ctx context.Context, id string, status domain.DocumentStatus, externalReferenceID string) error {
	// A callback can overtake the visibility of its own upload transaction
	// (replica lag, pool routing), so absorb not-found with a bounded,
	// exponentially backed-off re-read before giving up.
	err := uc.lookup.Execute(ctx, "callback.lookup", func(ctx context.Context) error {
		_, err := uc.repo.GetByID(ctx, id)
		return err
	}, classifyLookupError)
	if err != nil {
		return err
	}

	logger := logging.WithDocument(slog.Default(), id, domain.CorrelationIDFromContext(ctx))

	changed, err := uc.repo.MarkTerminal(ctx, id, status, externalReferenceID, uc.now())
	if err != nil {
		return err
	}
	if !changed {
		uc.logRepeatedCallback(ctx, logger, id, status)
		return nil
	}

	logger.Info("document_finalized",
		"status", string(status),
		"external_reference_id", externalReferenceID,
	)
	return nil
}

func (uc *DocumentLifecycleUseCase) logRepeatedCallback(ctx context.Context, logger *slog.Logger, id string, requested domain.DocumentStatus) {
	current, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return
	}
	if current.Status == requested {
		logger.Info("callback_repeated", "status", string(requested))
		return
	}
	// A conflicting second callback must never rewrite history.
	logger.Warn("callback_conflict",
		"recorded_status", string(current.Status),
		"requested_status", string(requested),
	)
}

func classifyLookupError(err error) resilience.ErrorClassification {
	return resilience.ErrorClassification{
		Retryable:     domain.IsKind(err, domain.ErrDocumentNotFound),
		RecordFailure: true,
	}
}

package disabled

import (
	"context"
	"log/slog"

	"github.com/learningassistant/document-service/internal/core/ports"
)

// Trigger is the strategy used when neither a queue nor a direct ingest
// endpoint is configured: every trigger is logged and reported accepted, and
// documents stay in a non-terminal status until an external process updates
// them through the callback surface.
type Trigger struct{}

func New() Trigger {
	return Trigger{}
}

func (Trigger) Trigger(_ context.Context, req ports.IngestRequest) error {
	slog.Warn("ingest_trigger_disabled",
		"document_id", req.DocumentID,
		"correlation_id", req.CorrelationID,
	)
	return nil
}

func (Trigger) Discard(_ context.Context, documentID, _ string) error {
	slog.Warn("ingest_discard_disabled", "document_id", documentID)
	return nil
}

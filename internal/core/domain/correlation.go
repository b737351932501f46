package domain

import (
	"context"

	"github.com/google/uuid"
)

type correlationIDContextKey struct{}

// WithCorrelationID attaches the per-request correlation token so that the
// upload, the outbound trigger and the eventual callback can be joined in logs.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDContextKey{}, correlationID)
}

// CorrelationIDFromContext returns the attached token, generating a fresh one
// when the caller did not supply any.
func CorrelationIDFromContext(ctx context.Context) string {
	if ctx != nil {
		if id, _ := ctx.Value(correlationIDContextKey{}).(string); id != "" {
			return id
		}
	}
	return uuid.NewString()
}

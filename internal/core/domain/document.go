package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type DocumentStatus string

const (
	StatusPending    DocumentStatus = "PENDING"
	StatusProcessing DocumentStatus = "PROCESSING"
	StatusCompleted  DocumentStatus = "COMPLETED"
	StatusFailed     DocumentStatus = "FAILED"
)

// IsTerminal reports whether no further transition may leave the status.
func (s DocumentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// StorageBackendKind records which backend holds the document bytes, so a
// mixed deployment can resolve every record against the right store.
type StorageBackendKind string

const (
	BackendLocal StorageBackendKind = "local"
	BackendGCS   StorageBackendKind = "gcs"
)

// DocumentRecord is the durable lifecycle state of one uploaded document.
// FileName, MediaType and SizeBytes are immutable after creation.
// ProcessedAt is non-nil exactly when Status is terminal.
type DocumentRecord struct {
	ID                  string             `json:"id"`
	OwnerID             string             `json:"owner_id"`
	FileName            string             `json:"file_name"`
	MediaType           string             `json:"media_type"`
	SizeBytes           int64              `json:"size_bytes"`
	StorageKey          string             `json:"storage_key"`
	StorageBackend      StorageBackendKind `json:"storage_backend"`
	ExternalReferenceID string             `json:"external_reference_id,omitempty"`
	Status              DocumentStatus     `json:"status"`
	CreatedAt           time.Time          `json:"created_at"`
	ProcessedAt         *time.Time         `json:"processed_at,omitempty"`
}

// NewDocumentID generates a fresh identifier already in canonical form.
func NewDocumentID() string {
	return strings.ToLower(uuid.NewString())
}

// CanonicalDocumentID normalizes an externally supplied identifier so that two
// textually different spellings of the same id resolve to the same record.
// Applied before every lookup; idempotent.
func CanonicalDocumentID(id string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(id))
	if normalized == "" {
		return "", WrapError(ErrInvalidInput, "canonicalize document id", errEmptyDocumentID)
	}
	if _, err := uuid.Parse(normalized); err != nil {
		return "", WrapError(ErrInvalidInput, "canonicalize document id", err)
	}
	return normalized, nil
}

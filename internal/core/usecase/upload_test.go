package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/learningassistant/document-service/internal/core/domain"
)

func TestUploadRegistersAndTriggers(t *testing.T) {
	repo := newRepoFake()
	storage := newStorageFake()
	trigger := &triggerFake{}
	uc := newLifecycleForTest(repo, storage, trigger)

	ctx := domain.WithCorrelationID(context.Background(), "corr-1")
	doc, err := uc.Upload(ctx, "user-1", "report.pdf", "application/pdf", 10, strings.NewReader("0123456789"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if doc.Status != domain.StatusProcessing {
		t.Fatalf("status = %s, want %s after accepted trigger", doc.Status, domain.StatusProcessing)
	}
	if doc.SizeBytes != 10 || doc.OwnerID != "user-1" {
		t.Fatalf("unexpected record: %+v", doc)
	}

	// Read-your-writes: the record must be visible immediately.
	got, err := uc.GetByID(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetByID after upload: %v", err)
	}
	if got.ID != doc.ID || got.Status != domain.StatusProcessing {
		t.Fatalf("got %+v, want id %s in PROCESSING", got, doc.ID)
	}

	if len(trigger.requests) != 1 {
		t.Fatalf("trigger requests = %d, want 1", len(trigger.requests))
	}
	req := trigger.requests[0]
	if req.DocumentID != doc.ID || req.OwnerID != "user-1" || req.CorrelationID != "corr-1" {
		t.Fatalf("unexpected trigger payload: %+v", req)
	}
	if req.AccessURL != "fake://"+doc.StorageKey {
		t.Fatalf("access url = %q", req.AccessURL)
	}
}

func TestUploadRejectsEmptyFile(t *testing.T) {
	uc := newLifecycleForTest(newRepoFake(), newStorageFake(), &triggerFake{})

	_, err := uc.Upload(context.Background(), "user-1", "empty.txt", "text/plain", 0, strings.NewReader(""))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("err = %v, want invalid input", err)
	}
}

func TestUploadRejectsMissingOwner(t *testing.T) {
	uc := newLifecycleForTest(newRepoFake(), newStorageFake(), &triggerFake{})

	_, err := uc.Upload(context.Background(), "", "report.pdf", "application/pdf", 4, strings.NewReader("body"))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("err = %v, want invalid input", err)
	}
}

func TestUploadSurvivesTriggerRejection(t *testing.T) {
	repo := newRepoFake()
	storage := newStorageFake()
	trigger := &triggerFake{triggerErr: errors.New("pipeline unavailable")}
	uc := newLifecycleForTest(repo, storage, trigger)

	doc, err := uc.Upload(context.Background(), "user-1", "notes.txt", "text/plain", 5, strings.NewReader("notes"))
	if err != nil {
		t.Fatalf("Upload must not fail on trigger rejection: %v", err)
	}
	if doc.Status != domain.StatusPending {
		t.Fatalf("status = %s, want %s when trigger is rejected", doc.Status, domain.StatusPending)
	}

	got, err := uc.GetByID(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != domain.StatusPending {
		t.Fatalf("stored status = %s, want %s", got.Status, domain.StatusPending)
	}
}

func TestUploadFailsWhenRecordCannotBeSaved(t *testing.T) {
	repo := newRepoFake()
	repo.createErr = errors.New("connection refused")
	trigger := &triggerFake{}
	uc := newLifecycleForTest(repo, newStorageFake(), trigger)

	_, err := uc.Upload(context.Background(), "user-1", "a.txt", "text/plain", 1, strings.NewReader("a"))
	if err == nil {
		t.Fatal("expected error when the record cannot be saved")
	}
	if len(trigger.requests) != 0 {
		t.Fatalf("trigger fired for an unregistered document")
	}
}

func TestUploadSkipsTriggerWhenURLUnavailable(t *testing.T) {
	repo := newRepoFake()
	storage := newStorageFake()
	storage.urlErr = errors.New("signing key unavailable")
	trigger := &triggerFake{}
	uc := newLifecycleForTest(repo, storage, trigger)

	doc, err := uc.Upload(context.Background(), "user-1", "b.txt", "text/plain", 1, strings.NewReader("b"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if doc.Status != domain.StatusPending {
		t.Fatalf("status = %s, want %s", doc.Status, domain.StatusPending)
	}
	if len(trigger.requests) != 0 {
		t.Fatal("trigger fired without an access url")
	}
}

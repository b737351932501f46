package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/learningassistant/document-service/internal/core/domain"
)

func TestDeleteRemovesRecordBlobAndDownstream(t *testing.T) {
	repo := newRepoFake()
	storage := newStorageFake()
	trigger := &triggerFake{}
	uc := newLifecycleForTest(repo, storage, trigger)
	doc := uploadDocument(t, uc, "user-1")

	if err := uc.Delete(context.Background(), doc.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := uc.GetByID(context.Background(), doc.ID); !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("err = %v, want not found after delete", err)
	}
	if len(storage.deleted) != 1 || storage.deleted[0] != doc.StorageKey {
		t.Fatalf("blob delete calls = %v, want [%s]", storage.deleted, doc.StorageKey)
	}
	if len(trigger.discards) != 1 || trigger.discards[0] != doc.ID {
		t.Fatalf("discard calls = %v, want [%s]", trigger.discards, doc.ID)
	}
}

func TestDeleteLogsCarryCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	repo := newRepoFake()
	trigger := &triggerFake{discardErr: errors.New("pipeline unreachable")}
	uc := newLifecycleForTest(repo, newStorageFake(), trigger)
	doc := uploadDocument(t, uc, "user-1")

	ctx := domain.WithCorrelationID(context.Background(), "corr-delete-1")
	if err := uc.Delete(ctx, doc.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	logs := buf.String()
	for _, msg := range []string{"pipeline_discard_failed", "document_deleted"} {
		if !strings.Contains(logs, msg) {
			t.Fatalf("logs missing %q:\n%s", msg, logs)
		}
	}
	if got := strings.Count(logs, `"correlation_id":"corr-delete-1"`); got < 2 {
		t.Fatalf("correlation id attached to %d delete logs, want both:\n%s", got, logs)
	}
}

func TestDeleteSucceedsWhenDiscardFails(t *testing.T) {
	repo := newRepoFake()
	trigger := &triggerFake{discardErr: errors.New("pipeline unreachable")}
	uc := newLifecycleForTest(repo, newStorageFake(), trigger)
	doc := uploadDocument(t, uc, "user-1")

	if err := uc.Delete(context.Background(), doc.ID); err != nil {
		t.Fatalf("Delete must not fail on downstream cleanup: %v", err)
	}
	if _, err := uc.GetByID(context.Background(), doc.ID); !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("record still present after delete: %v", err)
	}
}

func TestDeleteMissingDocument(t *testing.T) {
	uc := newLifecycleForTest(newRepoFake(), newStorageFake(), &triggerFake{})

	err := uc.Delete(context.Background(), domain.NewDocumentID())
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestDeleteRejectsMalformedID(t *testing.T) {
	uc := newLifecycleForTest(newRepoFake(), newStorageFake(), &triggerFake{})

	err := uc.Delete(context.Background(), "../../etc/passwd")
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("err = %v, want invalid input", err)
	}
}

func TestClearAllRemovesEverything(t *testing.T) {
	repo := newRepoFake()
	storage := newStorageFake()
	uc := newLifecycleForTest(repo, storage, &triggerFake{})

	first := uploadDocument(t, uc, "user-1")
	_, err := uc.Upload(context.Background(), "user-2", "other.txt", "text/plain", 5, strings.NewReader("other"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if err := uc.ClearAll(context.Background()); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}

	all, err := repo.ListAll(context.Background())
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("records remaining = %d, want 0", len(all))
	}
	if len(storage.deleted) != 2 {
		t.Fatalf("blob deletes = %d, want 2", len(storage.deleted))
	}
	if _, err := uc.GetByID(context.Background(), first.ID); !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("err = %v, want not found after clear", err)
	}
}

func TestDownloadReturnsRecordAndBytes(t *testing.T) {
	repo := newRepoFake()
	storage := newStorageFake()
	uc := newLifecycleForTest(repo, storage, &triggerFake{})
	doc := uploadDocument(t, uc, "user-1")

	got, body, err := uc.Download(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	defer body.Close()

	if got.ID != doc.ID {
		t.Fatalf("record id = %s, want %s", got.ID, doc.ID)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(raw) != "0123456789" {
		t.Fatalf("body = %q", raw)
	}
}

func TestListPendingFiltersByStatus(t *testing.T) {
	repo := newRepoFake()
	trigger := &triggerFake{triggerErr: errors.New("down")} // uploads stay PENDING
	uc := newLifecycleForTest(repo, newStorageFake(), trigger)

	doc := uploadDocument(t, uc, "user-1")
	if err := repo.SetProcessing(context.Background(), doc.ID); err != nil {
		t.Fatalf("SetProcessing: %v", err)
	}
	if _, err := uc.Upload(context.Background(), "user-1", "queued.txt", "text/plain", 3, strings.NewReader("abc")); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	pending, err := uc.ListPending(context.Background())
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}
	if pending[0].FileName != "queued.txt" {
		t.Fatalf("pending doc = %+v", pending[0])
	}
}

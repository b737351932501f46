package direct

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/learningassistant/document-service/internal/core/ports"
	"github.com/learningassistant/document-service/internal/infrastructure/resilience"
)

func TestTriggerSendsIngestPayloadAndCorrelationHeader(t *testing.T) {
	var gotHeader string
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ingest" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotHeader = r.Header.Get("X-Correlation-Id")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(server.URL, time.Second, nil)
	err := client.Trigger(context.Background(), ports.IngestRequest{
		DocumentID:    "doc-1",
		OwnerID:       "u1",
		AccessURL:     "https://blobs/doc-1",
		DisplayName:   "notes.pdf",
		CorrelationID: "corr-1",
	})
	if err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}
	if gotHeader != "corr-1" {
		t.Fatalf("expected correlation header corr-1, got %q", gotHeader)
	}
	if gotBody["document_id"] != "doc-1" || gotBody["user_id"] != "u1" ||
		gotBody["document_url"] != "https://blobs/doc-1" ||
		gotBody["document_title"] != "notes.pdf" || gotBody["correlation_id"] != "corr-1" {
		t.Fatalf("unexpected payload: %v", gotBody)
	}
}

func TestTriggerRejectedOnServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "ingest backlog full", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(server.URL, time.Second, nil)
	err := client.Trigger(context.Background(), ports.IngestRequest{DocumentID: "doc-1"})
	if err == nil {
		t.Fatalf("expected rejection on 503")
	}
}

func TestTriggerRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "warming up", http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	executor := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	})
	client := New(server.URL, time.Second, executor)

	if err := client.Trigger(context.Background(), ports.IngestRequest{DocumentID: "doc-1"}); err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestDiscardPrefersExternalReference(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(server.URL, time.Second, nil)
	if err := client.Discard(context.Background(), "doc-1", "ext-9"); err != nil {
		t.Fatalf("Discard() error = %v", err)
	}
	if gotPath != "/ingest/ext-9" {
		t.Fatalf("expected /ingest/ext-9, got %s", gotPath)
	}

	if err := client.Discard(context.Background(), "doc-1", ""); err != nil {
		t.Fatalf("Discard() fallback error = %v", err)
	}
	if gotPath != "/ingest/doc-1" {
		t.Fatalf("expected fallback to document id, got %s", gotPath)
	}
}

package direct

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/learningassistant/document-service/internal/core/domain"
	"github.com/learningassistant/document-service/internal/core/ports"
	"github.com/learningassistant/document-service/internal/infrastructure/resilience"
)

const correlationIDHeader = "X-Correlation-Id"

// Client triggers the downstream pipeline with a synchronous HTTP call.
type Client struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL string, timeout time.Duration, executor *resilience.Executor) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
	}
}

func (c *Client) Trigger(ctx context.Context, req ports.IngestRequest) error {
	call := func(ctx context.Context) error {
		return c.postIngest(ctx, req)
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "ingest.trigger", call, classifyTransportError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return fmt.Errorf("trigger ingestion for %s: %w", req.DocumentID, err)
	}
	return nil
}

// Discard asks the pipeline to drop derived data. The pipeline keys its
// artifacts by its own reference id when one was assigned.
func (c *Client) Discard(ctx context.Context, documentID, externalReferenceID string) error {
	ref := externalReferenceID
	if ref == "" {
		ref = documentID
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/ingest/"+url.PathEscape(ref), nil)
	if err != nil {
		return fmt.Errorf("create discard request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "discard request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return formatPipelineHTTPError("discard", resp)
	}
	return nil
}

func (c *Client) postIngest(ctx context.Context, ingest ports.IngestRequest) error {
	body, err := json.Marshal(ingest)
	if err != nil {
		return fmt.Errorf("marshal ingest request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ingest", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create ingest request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(correlationIDHeader, ingest.CorrelationID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "ingest request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return formatPipelineHTTPError("ingest", resp)
	}

	slog.Info("ingest_triggered",
		"document_id", ingest.DocumentID,
		"correlation_id", ingest.CorrelationID,
		"status", resp.StatusCode,
	)
	return nil
}

func formatPipelineHTTPError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	msg := strings.TrimSpace(string(body))

	err := fmt.Errorf("pipeline %s status: %s", operation, resp.Status)
	if msg != "" {
		err = fmt.Errorf("pipeline %s status: %s: %s", operation, resp.Status, msg)
	}
	if resp.StatusCode >= 500 {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}

func classifyTransportError(err error) resilience.ErrorClassification {
	var netErr interface{ Timeout() bool }
	retryable := domain.IsKind(err, domain.ErrTemporary) ||
		(errors.As(err, &netErr) && netErr.Timeout())
	return resilience.ErrorClassification{
		Retryable:     retryable,
		RecordFailure: true,
	}
}

package natsqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/learningassistant/document-service/internal/core/domain"
	"github.com/learningassistant/document-service/internal/core/ports"
	"github.com/learningassistant/document-service/internal/infrastructure/resilience"
)

// Queue is the durable ingestion trigger: a trigger is accepted once
// JetStream acknowledges persistence. Publishing on a per-document subject
// keeps ingest messages for one document ordered while documents remain
// independent.
type Queue struct {
	conn     *nats.Conn
	js       jetstream.JetStream
	stream   string
	prefix   string
	executor *resilience.Executor
}

type Options struct {
	ConnectTimeout     time.Duration
	ReconnectWait      time.Duration
	MaxReconnects      int
	ResilienceExecutor *resilience.Executor
}

func New(ctx context.Context, url, stream, subjectPrefix string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}

	conn, err := nats.Connect(
		url,
		nats.Name("document-service"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("init jetstream: %w", err)
	}

	q := &Queue{
		conn:     conn,
		js:       js,
		stream:   stream,
		prefix:   subjectPrefix,
		executor: options.ResilienceExecutor,
	}
	if err := q.ensureStream(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return q, nil
}

func (q *Queue) ensureStream(ctx context.Context) error {
	_, err := q.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      q.stream,
		Subjects:  []string{q.prefix + ".>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.WorkQueuePolicy,
	})
	if err != nil {
		return fmt.Errorf("ensure stream %s: %w", q.stream, err)
	}
	return nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) Trigger(ctx context.Context, req ports.IngestRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal ingest message: %w", err)
	}

	subject := q.ingestSubject(req.DocumentID)
	if err := q.publish(ctx, "queue.trigger", subject, payload, req.DocumentID); err != nil {
		return err
	}

	slog.Info("ingest_enqueued",
		"document_id", req.DocumentID,
		"correlation_id", req.CorrelationID,
		"subject", subject,
	)
	return nil
}

// discardMessage is the wire form of a queued discard. The worker's discard
// consumer decodes it and forwards the deletion to the pipeline.
type discardMessage struct {
	DocumentID          string `json:"document_id"`
	ExternalReferenceID string `json:"external_reference_id"`
}

func (q *Queue) Discard(ctx context.Context, documentID, externalReferenceID string) error {
	payload, err := json.Marshal(discardMessage{
		DocumentID:          documentID,
		ExternalReferenceID: externalReferenceID,
	})
	if err != nil {
		return fmt.Errorf("marshal discard message: %w", err)
	}
	return q.publish(ctx, "queue.discard", q.discardSubject(documentID), payload, "discard-"+documentID)
}

func (q *Queue) publish(ctx context.Context, operation, subject string, payload []byte, msgID string) error {
	call := func(ctx context.Context) error {
		if _, err := q.js.Publish(ctx, subject, payload, jetstream.WithMsgID(msgID)); err != nil {
			return domain.WrapError(domain.ErrTemporary, "jetstream publish", err)
		}
		return nil
	}

	var err error
	if q.executor != nil {
		err = q.executor.Execute(ctx, operation, call, classifyPublishError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe delivers queued ingest requests to handler, one at a time per
// consumer, until ctx is done. The worker binary is the only caller.
// published is the broker's receive timestamp, zero when unavailable.
func (q *Queue) Subscribe(ctx context.Context, consumer string, handler func(ctx context.Context, req ports.IngestRequest, published time.Time) error) error {
	cons, err := q.js.CreateOrUpdateConsumer(ctx, q.stream, jetstream.ConsumerConfig{
		Durable:       consumer,
		FilterSubject: q.ingestFilterSubject(),
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    5,
	})
	if err != nil {
		return fmt.Errorf("ensure consumer %s: %w", consumer, err)
	}

	consumeCtx, err := cons.Consume(func(msg jetstream.Msg) {
		var req ports.IngestRequest
		if err := json.Unmarshal(msg.Data(), &req); err != nil {
			slog.Error("ingest_message_malformed", "subject", msg.Subject(), "error", err)
			_ = msg.Term()
			return
		}

		var published time.Time
		if meta, metaErr := msg.Metadata(); metaErr == nil {
			published = meta.Timestamp
		}

		if err := handler(ctx, req, published); err != nil {
			slog.Error("ingest_forward_failed",
				"document_id", req.DocumentID,
				"correlation_id", req.CorrelationID,
				"error", err,
			)
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("consume stream %s: %w", q.stream, err)
	}

	<-ctx.Done()
	consumeCtx.Stop()
	return nil
}

// SubscribeDiscards delivers queued discard requests to handler until ctx is
// done. Without a consumer on the discard subjects a work-queue stream would
// retain them forever; the worker binary runs this alongside Subscribe.
func (q *Queue) SubscribeDiscards(ctx context.Context, consumer string, handler func(ctx context.Context, documentID, externalReferenceID string) error) error {
	cons, err := q.js.CreateOrUpdateConsumer(ctx, q.stream, jetstream.ConsumerConfig{
		Durable:       consumer,
		FilterSubject: q.discardFilterSubject(),
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    5,
	})
	if err != nil {
		return fmt.Errorf("ensure consumer %s: %w", consumer, err)
	}

	consumeCtx, err := cons.Consume(func(msg jetstream.Msg) {
		var req discardMessage
		if err := json.Unmarshal(msg.Data(), &req); err != nil {
			slog.Error("discard_message_malformed", "subject", msg.Subject(), "error", err)
			_ = msg.Term()
			return
		}

		if err := handler(ctx, req.DocumentID, req.ExternalReferenceID); err != nil {
			slog.Error("discard_forward_failed", "document_id", req.DocumentID, "error", err)
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("consume stream %s: %w", q.stream, err)
	}

	<-ctx.Done()
	consumeCtx.Stop()
	return nil
}

func (q *Queue) ingestSubject(documentID string) string {
	return q.prefix + ".ingest." + documentID
}

func (q *Queue) discardSubject(documentID string) string {
	return q.prefix + ".discard." + documentID
}

func (q *Queue) ingestFilterSubject() string {
	return q.prefix + ".ingest.>"
}

func (q *Queue) discardFilterSubject() string {
	return q.prefix + ".discard.>"
}

func classifyPublishError(err error) resilience.ErrorClassification {
	return resilience.ErrorClassification{
		Retryable:     domain.IsKind(err, domain.ErrTemporary),
		RecordFailure: true,
	}
}

package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"

	"github.com/learningassistant/document-service/internal/core/domain"
)

// V4 signed URLs are capped at seven days by the storage API.
const maxSignedURLValidity = 7 * 24 * time.Hour

type Options struct {
	Bucket string
	// Project is only needed when Init has to create the bucket.
	Project string
	// SignedURLTTL bounds how long the downstream pipeline can fetch the
	// bytes without shared credentials.
	SignedURLTTL time.Duration
	// ClockSkew widens the validity window so a pipeline with a slightly
	// fast clock does not see a not-yet-valid URL.
	ClockSkew time.Duration
}

// Storage keeps document bytes in a Google Cloud Storage bucket under
// <ownerID>/<uuid><ext> object names.
type Storage struct {
	client *storage.Client
	bucket *storage.BucketHandle
	opts   Options
}

func New(ctx context.Context, opts Options) (*Storage, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("gcs: bucket name is required")
	}
	if opts.SignedURLTTL <= 0 {
		opts.SignedURLTTL = maxSignedURLValidity
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &Storage{
		client: client,
		bucket: client.Bucket(opts.Bucket),
		opts:   opts,
	}, nil
}

func (s *Storage) Close() error {
	return s.client.Close()
}

func (s *Storage) Init(ctx context.Context) error {
	_, err := s.bucket.Attrs(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrBucketNotExist) {
		return fmt.Errorf("check bucket %s: %w", s.opts.Bucket, err)
	}
	if err := s.bucket.Create(ctx, s.opts.Project, nil); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.opts.Bucket, err)
	}
	slog.Info("bucket_created", "bucket", s.opts.Bucket)
	return nil
}

func (s *Storage) Store(ctx context.Context, ownerID, fileName string, size int64, data io.Reader) (string, error) {
	if size == 0 {
		return "", domain.WrapError(domain.ErrInvalidInput, "store object", errors.New("empty payload"))
	}

	key := ownerID + "/" + uuid.NewString() + fileExtension(fileName)
	w := s.bucket.Object(key).NewWriter(ctx)
	w.Metadata = map[string]string{
		"original_filename": fileName,
		"owner_id":          ownerID,
	}

	if _, err := io.Copy(w, data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close object writer %s: %w", key, err)
	}
	return key, nil
}

func (s *Storage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := s.bucket.Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open object %s: %w", key, err)
	}
	return r, nil
}

func (s *Storage) Delete(ctx context.Context, key string) {
	if err := s.bucket.Object(key).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		slog.Warn("blob_delete_failed", "backend", "gcs", "storage_key", key, "error", err)
	}
}

// URLFor returns a read-only signed URL so the pipeline can fetch the bytes
// from outside the trust boundary. Signing failures degrade to the unsigned
// object URL rather than failing the surrounding operation.
func (s *Storage) URLFor(_ context.Context, key, _ string) (string, error) {
	validity := s.opts.SignedURLTTL + s.opts.ClockSkew
	if validity > maxSignedURLValidity {
		validity = maxSignedURLValidity
	}

	signed, err := s.bucket.SignedURL(key, &storage.SignedURLOptions{
		Method:  "GET",
		Expires: time.Now().UTC().Add(validity),
		Scheme:  storage.SigningSchemeV4,
	})
	if err != nil {
		slog.Warn("signed_url_degraded", "bucket", s.opts.Bucket, "storage_key", key, "error", err)
		return s.unsignedURL(key), nil
	}
	return signed, nil
}

func (s *Storage) Kind() domain.StorageBackendKind {
	return domain.BackendGCS
}

func (s *Storage) unsignedURL(key string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.opts.Bucket, url.PathEscape(key))
}

func fileExtension(fileName string) string {
	ext := filepath.Ext(filepath.Base(fileName))
	if len(ext) > 16 {
		return ""
	}
	return ext
}

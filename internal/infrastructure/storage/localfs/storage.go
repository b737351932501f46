package localfs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/learningassistant/document-service/internal/core/domain"
)

// Storage keeps document bytes on the local filesystem under
// <basePath>/<ownerID>/<uuid><ext>.
type Storage struct {
	basePath string
}

func New(basePath string) *Storage {
	if basePath == "" {
		basePath = "./data/uploads"
	}
	return &Storage{basePath: basePath}
}

func (s *Storage) Init(_ context.Context) error {
	if err := os.MkdirAll(s.basePath, 0o755); err != nil {
		return fmt.Errorf("create storage dir: %w", err)
	}
	return nil
}

func (s *Storage) Store(_ context.Context, ownerID, fileName string, size int64, data io.Reader) (string, error) {
	if size == 0 {
		return "", domain.WrapError(domain.ErrInvalidInput, "store file", errEmptyPayload)
	}

	key := filepath.ToSlash(filepath.Join(ownerID, uuid.NewString()+fileExtension(fileName)))
	path := filepath.Join(s.basePath, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create owner dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	written, err := io.Copy(f, data)
	if err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	if written == 0 {
		_ = os.Remove(path)
		return "", domain.WrapError(domain.ErrInvalidInput, "store file", errEmptyPayload)
	}
	return key, nil
}

func (s *Storage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.basePath, filepath.FromSlash(key)))
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

func (s *Storage) Delete(_ context.Context, key string) {
	path := filepath.Join(s.basePath, filepath.FromSlash(key))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Warn("blob_delete_failed", "backend", "local", "storage_key", key, "error", err)
	}
}

// URLFor returns the on-disk path; a co-located pipeline reads it directly.
func (s *Storage) URLFor(_ context.Context, key, _ string) (string, error) {
	abs, err := filepath.Abs(filepath.Join(s.basePath, filepath.FromSlash(key)))
	if err != nil {
		return "", fmt.Errorf("resolve file path: %w", err)
	}
	return abs, nil
}

func (s *Storage) Kind() domain.StorageBackendKind {
	return domain.BackendLocal
}

func fileExtension(fileName string) string {
	ext := filepath.Ext(filepath.Base(fileName))
	if len(ext) > 16 {
		return ""
	}
	return ext
}

var errEmptyPayload = fmt.Errorf("empty payload")

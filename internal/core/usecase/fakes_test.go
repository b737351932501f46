package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/learningassistant/document-service/internal/core/domain"
	"github.com/learningassistant/document-service/internal/core/ports"
)

// repoFake mimics the record store's semantics, including the monotonic
// transition guards. hideLookups simulates a replica that has not yet seen
// the upload transaction.
type repoFake struct {
	mu          sync.Mutex
	docs        map[string]*domain.DocumentRecord
	hideLookups int
	lookups     int

	createErr error
	deleteErr error
}

func newRepoFake() *repoFake {
	return &repoFake{docs: make(map[string]*domain.DocumentRecord)}
}

func (f *repoFake) Create(_ context.Context, doc *domain.DocumentRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	copyDoc := *doc
	f.docs[doc.ID] = &copyDoc
	return nil
}

func (f *repoFake) GetByID(_ context.Context, id string) (*domain.DocumentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.hideLookups > 0 {
		f.hideLookups--
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id %s", id))
	}
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id %s", id))
	}
	copyDoc := *doc
	return &copyDoc, nil
}

func (f *repoFake) ListByOwner(_ context.Context, ownerID string) ([]domain.DocumentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.DocumentRecord
	for _, doc := range f.docs {
		if doc.OwnerID == ownerID {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (f *repoFake) ListByStatus(_ context.Context, status domain.DocumentStatus) ([]domain.DocumentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.DocumentRecord
	for _, doc := range f.docs {
		if doc.Status == status {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (f *repoFake) ListAll(_ context.Context) ([]domain.DocumentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.DocumentRecord
	for _, doc := range f.docs {
		out = append(out, *doc)
	}
	return out, nil
}

func (f *repoFake) SetProcessing(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if doc, ok := f.docs[id]; ok && doc.Status == domain.StatusPending {
		doc.Status = domain.StatusProcessing
	}
	return nil
}

func (f *repoFake) MarkTerminal(_ context.Context, id string, status domain.DocumentStatus, externalReferenceID string, processedAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return false, domain.WrapError(domain.ErrDocumentNotFound, "mark terminal", fmt.Errorf("id %s", id))
	}
	if doc.Status.IsTerminal() {
		return false, nil
	}
	doc.Status = status
	doc.ProcessedAt = &processedAt
	if externalReferenceID != "" {
		doc.ExternalReferenceID = externalReferenceID
	}
	return true, nil
}

func (f *repoFake) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.docs[id]; !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "delete document", fmt.Errorf("id %s", id))
	}
	delete(f.docs, id)
	return nil
}

func (f *repoFake) DeleteAll(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = make(map[string]*domain.DocumentRecord)
	return nil
}

type storageFake struct {
	mu      sync.Mutex
	stored  map[string]string
	deleted []string

	storeErr error
	urlErr   error
}

func newStorageFake() *storageFake {
	return &storageFake{stored: make(map[string]string)}
}

func (f *storageFake) Init(context.Context) error { return nil }

func (f *storageFake) Store(_ context.Context, ownerID, fileName string, size int64, data io.Reader) (string, error) {
	if f.storeErr != nil {
		return "", f.storeErr
	}
	if size == 0 {
		return "", domain.WrapError(domain.ErrInvalidInput, "store", errors.New("empty payload"))
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	key := ownerID + "/" + fileName
	f.mu.Lock()
	f.stored[key] = string(raw)
	f.mu.Unlock()
	return key, nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.stored[key]
	if !ok {
		return nil, errors.New("not stored")
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (f *storageFake) Delete(_ context.Context, key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
	delete(f.stored, key)
}

func (f *storageFake) URLFor(_ context.Context, key, _ string) (string, error) {
	if f.urlErr != nil {
		return "", f.urlErr
	}
	return "fake://" + key, nil
}

func (f *storageFake) Kind() domain.StorageBackendKind { return domain.BackendLocal }

type triggerFake struct {
	mu       sync.Mutex
	requests []ports.IngestRequest
	discards []string

	triggerErr error
	discardErr error
}

func (f *triggerFake) Trigger(_ context.Context, req ports.IngestRequest) error {
	if f.triggerErr != nil {
		return f.triggerErr
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return nil
}

func (f *triggerFake) Discard(_ context.Context, documentID, _ string) error {
	if f.discardErr != nil {
		return f.discardErr
	}
	f.mu.Lock()
	f.discards = append(f.discards, documentID)
	f.mu.Unlock()
	return nil
}

func fastLookupPolicy() LookupRetryPolicy {
	return LookupRetryPolicy{Retries: 3, InitialBackoff: time.Millisecond}
}

func newLifecycleForTest(repo *repoFake, storage *storageFake, trigger *triggerFake) *DocumentLifecycleUseCase {
	return NewDocumentLifecycleUseCase(repo, storage, trigger, fastLookupPolicy())
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/learningassistant/document-service/internal/core/domain"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *DocumentRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082801)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	file_name TEXT NOT NULL,
	media_type TEXT NOT NULL,
	size_bytes BIGINT NOT NULL,
	storage_key TEXT NOT NULL,
	storage_backend TEXT NOT NULL,
	external_reference_id TEXT,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	processed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents(owner_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

const documentColumns = `id, owner_id, file_name, media_type, size_bytes, storage_key, storage_backend, external_reference_id, status, created_at, processed_at`

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.DocumentRecord) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO documents (
	id, owner_id, file_name, media_type, size_bytes, storage_key, storage_backend, external_reference_id, status, created_at, processed_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8,''),$9,$10,$11)
`,
		doc.ID, doc.OwnerID, doc.FileName, doc.MediaType, doc.SizeBytes, doc.StorageKey,
		string(doc.StorageBackend), doc.ExternalReferenceID, string(doc.Status), doc.CreatedAt, doc.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.DocumentRecord, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE id = $1
`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return doc, nil
}

func (r *DocumentRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.DocumentRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE owner_id = $1
ORDER BY created_at DESC
`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query documents by owner: %w", err)
	}
	return collectDocuments(rows)
}

func (r *DocumentRepository) ListByStatus(ctx context.Context, status domain.DocumentStatus) ([]domain.DocumentRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE status = $1
ORDER BY created_at DESC
`, string(status))
	if err != nil {
		return nil, fmt.Errorf("query documents by status: %w", err)
	}
	return collectDocuments(rows)
}

func (r *DocumentRepository) ListAll(ctx context.Context) ([]domain.DocumentRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+documentColumns+`
FROM documents
ORDER BY created_at DESC
`)
	if err != nil {
		return nil, fmt.Errorf("query all documents: %w", err)
	}
	return collectDocuments(rows)
}

// SetProcessing flips PENDING to PROCESSING. The status guard keeps the
// transition monotonic even when a callback lands first: a record that is
// already PROCESSING or terminal is left untouched.
func (r *DocumentRepository) SetProcessing(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2
WHERE id = $1 AND status = $3
`, id, string(domain.StatusProcessing), string(domain.StatusPending))
	if err != nil {
		return fmt.Errorf("set document processing: %w", err)
	}
	return nil
}

// MarkTerminal performs the single atomic write of a callback transition. The
// NOT IN guard means the first terminal outcome wins; a repeated or
// conflicting callback affects zero rows and reports changed=false.
func (r *DocumentRepository) MarkTerminal(ctx context.Context, id string, status domain.DocumentStatus, externalReferenceID string, processedAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2,
	processed_at = $3,
	external_reference_id = COALESCE(NULLIF($4, ''), external_reference_id)
WHERE id = $1 AND status NOT IN ($5, $6)
`, id, string(status), processedAt, externalReferenceID,
		string(domain.StatusCompleted), string(domain.StatusFailed))
	if err != nil {
		return false, fmt.Errorf("mark document terminal: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark document terminal rows: %w", err)
	}
	if affected > 0 {
		return true, nil
	}

	// Zero rows is either a missing record or one that is already terminal.
	if _, err := r.GetByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete document rows: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, "delete document", fmt.Errorf("id %s", id))
	}
	return nil
}

func (r *DocumentRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		return fmt.Errorf("delete all documents: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.DocumentRecord, error) {
	var (
		doc         domain.DocumentRecord
		backend     string
		status      string
		externalRef sql.NullString
		processedAt sql.NullTime
	)

	err := row.Scan(
		&doc.ID, &doc.OwnerID, &doc.FileName, &doc.MediaType, &doc.SizeBytes,
		&doc.StorageKey, &backend, &externalRef, &status, &doc.CreatedAt, &processedAt,
	)
	if err != nil {
		return nil, err
	}

	doc.StorageBackend = domain.StorageBackendKind(backend)
	doc.Status = domain.DocumentStatus(status)
	if externalRef.Valid {
		doc.ExternalReferenceID = externalRef.String
	}
	if processedAt.Valid {
		t := processedAt.Time
		doc.ProcessedAt = &t
	}
	return &doc, nil
}

func collectDocuments(rows *sql.Rows) ([]domain.DocumentRecord, error) {
	defer rows.Close()

	var docs []domain.DocumentRecord
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document row: %w", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document rows: %w", err)
	}
	return docs, nil
}

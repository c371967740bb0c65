package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements MetadataStore backed by modernc.org/sqlite
// (pure Go, no cgo).
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ MetadataStore = (*SQLiteStore)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL UNIQUE,
	path          TEXT NOT NULL,
	page_count    INTEGER NOT NULL DEFAULT 0,
	char_count    INTEGER NOT NULL DEFAULT 0,
	content_hash  TEXT NOT NULL,
	ingested_at   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
	id            TEXT PRIMARY KEY,
	document_id   TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	document_name TEXT NOT NULL,
	idx           INTEGER NOT NULL,
	text          TEXT NOT NULL,
	created_at    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);

CREATE TABLE IF NOT EXISTS state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// NewSQLiteStore opens (or creates) the metadata database at path.
// Use ":memory:" for an ephemeral store in tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// modernc.org/sqlite serializes access through a single connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// SaveDocument inserts or replaces a document row.
func (s *SQLiteStore) SaveDocument(ctx context.Context, doc *Document) error {
	if doc == nil {
		return fmt.Errorf("document is nil")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, name, path, page_count, char_count, content_hash, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			path = excluded.path,
			page_count = excluded.page_count,
			char_count = excluded.char_count,
			content_hash = excluded.content_hash,
			ingested_at = excluded.ingested_at`,
		doc.ID, doc.Name, doc.Path, doc.PageCount, doc.CharCount,
		doc.ContentHash, doc.IngestedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to save document %q: %w", doc.Name, err)
	}
	return nil
}

// GetDocumentByName returns the document with the given name, or
// (nil, nil) when it does not exist.
func (s *SQLiteStore) GetDocumentByName(ctx context.Context, name string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, path, page_count, char_count, content_hash, ingested_at
		FROM documents WHERE name = ?`, name)

	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %q: %w", name, err)
	}
	return doc, nil
}

// ListDocuments returns all documents ordered by name.
func (s *SQLiteStore) ListDocuments(ctx context.Context) ([]*Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, path, page_count, char_count, content_hash, ingested_at
		FROM documents ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document; its chunks go with it via the
// foreign key cascade.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete document %q: %w", id, err)
	}
	return nil
}

// CountDocuments returns the number of documents.
func (s *SQLiteStore) CountDocuments(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

// SaveChunks inserts chunk records in a single transaction.
func (s *SQLiteStore) SaveChunks(ctx context.Context, chunks []*ChunkRecord) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, document_name, idx, text, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_id = excluded.document_id,
			document_name = excluded.document_name,
			idx = excluded.idx,
			text = excluded.text`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, c := range chunks {
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.DocumentID, c.DocumentName, c.Index, c.Text, createdAt.Unix()); err != nil {
			return fmt.Errorf("failed to insert chunk %q: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

// GetChunks fetches chunk records by ID, returned in the order the IDs
// were requested. Unknown IDs are silently skipped.
func (s *SQLiteStore) GetChunks(ctx context.Context, ids []string) ([]*ChunkRecord, error) {
	if len(ids) == 0 {
		return []*ChunkRecord{}, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, document_id, document_name, idx, text, created_at
		FROM chunks WHERE id IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	byID := make(map[string]*ChunkRecord, len(ids))
	for rows.Next() {
		var c ChunkRecord
		var createdAt int64
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.DocumentName, &c.Index, &c.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		c.CreatedAt = time.Unix(createdAt, 0)
		byID[c.ID] = &c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]*ChunkRecord, 0, len(ids))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			result = append(result, c)
		}
	}
	return result, nil
}

// ChunkIDsByDocument returns chunk IDs for a document in chunk order.
func (s *SQLiteStore) ChunkIDsByDocument(ctx context.Context, documentID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM chunks WHERE document_id = ? ORDER BY idx`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunk IDs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan chunk ID: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteChunksByDocument removes all chunks belonging to a document.
func (s *SQLiteStore) DeleteChunksByDocument(ctx context.Context, documentID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("failed to delete chunks for document %q: %w", documentID, err)
	}
	return nil
}

// CountChunks returns the number of chunks.
func (s *SQLiteStore) CountChunks(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// GetState returns the value for a state key, or "" when unset.
func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get state %q: %w", key, err)
	}
	return value, nil
}

// SetState stores a state key-value pair.
func (s *SQLiteStore) SetState(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set state %q: %w", key, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var doc Document
	var ingestedAt int64
	if err := row.Scan(&doc.ID, &doc.Name, &doc.Path, &doc.PageCount,
		&doc.CharCount, &doc.ContentHash, &ingestedAt); err != nil {
		return nil, err
	}
	doc.IngestedAt = time.Unix(ingestedAt, 0)
	return &doc, nil
}

// Package store provides vector storage (HNSW) and document/chunk
// metadata persistence (SQLite). This is the persistence layer for all
// ingested data.
package store

import (
	"context"
	"fmt"
	"time"
)

// State keys for the metadata store. The embedding dimension and model
// are pinned at first ingest; a mismatch later means the corpus and the
// query would live in different vector spaces.
const (
	// StateKeyEmbeddingDimension stores the corpus embedding dimension.
	StateKeyEmbeddingDimension = "embedding_dimension"
	// StateKeyEmbeddingModel stores the embedding model name.
	StateKeyEmbeddingModel = "embedding_model"
)

// Document represents an ingested source document.
type Document struct {
	ID          string    // SHA256(name)[:16]
	Name        string    // display name (filename without extension)
	Path        string    // source file path
	PageCount   int       // pages in the source, 0 when unknown
	CharCount   int       // characters of extracted text
	ContentHash string    // SHA256 of extracted text, for change detection
	IngestedAt  time.Time // when ingested
}

// ChunkRecord is the persisted form of a chunk.
type ChunkRecord struct {
	ID           string // content-addressed chunk ID
	DocumentID   string // parent document ID
	DocumentName string // denormalized for result assembly
	Index        int    // position within the document
	Text         string // chunk text
	CreatedAt    time.Time
}

// MetadataStore persists documents and chunks in SQLite.
type MetadataStore interface {
	// Document operations
	SaveDocument(ctx context.Context, doc *Document) error
	GetDocumentByName(ctx context.Context, name string) (*Document, error)
	ListDocuments(ctx context.Context) ([]*Document, error)
	DeleteDocument(ctx context.Context, id string) error
	CountDocuments(ctx context.Context) (int, error)

	// Chunk operations
	SaveChunks(ctx context.Context, chunks []*ChunkRecord) error
	GetChunks(ctx context.Context, ids []string) ([]*ChunkRecord, error)
	ChunkIDsByDocument(ctx context.Context, documentID string) ([]string, error)
	DeleteChunksByDocument(ctx context.Context, documentID string) error
	CountChunks(ctx context.Context) (int, error)

	// State operations (key-value store for runtime state)
	GetState(ctx context.Context, key string) (string, error)
	SetState(ctx context.Context, key, value string) error

	// Lifecycle
	Close() error
}

// VectorResult represents a single vector search result.
type VectorResult struct {
	ID       string  // Chunk ID
	Distance float32 // Lower is more similar (0-2 for cosine)
	Score    float32 // Normalized similarity (0-1)
}

// VectorStoreConfig configures the vector store.
type VectorStoreConfig struct {
	// Dimensions is the vector dimension, fixed by the embedding model.
	Dimensions int

	// Metric is the distance metric: "cos" (cosine) or "l2" (euclidean).
	Metric string

	// M is the HNSW max connections per layer.
	M int

	// EfSearch is the HNSW query-time search width.
	EfSearch int
}

// DefaultVectorStoreConfig returns sensible defaults for the vector store.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions: dimensions,
		Metric:     "cos",
		M:          16,
		EfSearch:   32,
	}
}

// VectorStore provides nearest-neighbor search over chunk embeddings.
type VectorStore interface {
	// Add inserts vectors with their IDs. If an ID exists, it is replaced.
	Add(ctx context.Context, ids []string, vectors [][]float32) error

	// Search finds the k nearest neighbors to the query vector, ordered by
	// ascending distance with ties broken by insertion order.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)

	// Delete removes vectors by ID.
	Delete(ctx context.Context, ids []string) error

	// Contains checks if an ID exists.
	Contains(id string) bool

	// Count returns the number of vectors.
	Count() int

	// Persistence
	Save(path string) error
	Load(path string) error
	Close() error
}

// ErrDimensionMismatch indicates a vector dimension mismatch between the
// corpus and an incoming vector.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: expected %d, got %d (reingest with the current embedding model)", e.Expected, e.Got)
}

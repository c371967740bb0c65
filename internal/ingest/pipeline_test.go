package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magic-research/ragd/internal/chunk"
	"github.com/magic-research/ragd/internal/embed"
	"github.com/magic-research/ragd/internal/errors"
	"github.com/magic-research/ragd/internal/store"
)

type testPipeline struct {
	*Pipeline
	vectors  *store.HNSWStore
	metadata *store.SQLiteStore
}

func newTestPipeline(t *testing.T) *testPipeline {
	t.Helper()

	embedder := embed.NewStaticEmbedder()
	t.Cleanup(func() { _ = embedder.Close() })

	vectors, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(embedder.Dimensions()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = vectors.Close() })

	metadata, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = metadata.Close() })

	chunker := chunk.NewTextChunker(chunk.Options{})

	p := NewPipeline(chunker, embedder, vectors, metadata, Options{}, slog.New(slog.DiscardHandler))
	return &testPipeline{Pipeline: p, vectors: vectors, metadata: metadata}
}

func testDoc(name, text string) *chunk.Document {
	return &chunk.Document{Name: name, Path: "/docs/" + name + ".txt", Text: text}
}

func TestPipeline_IngestDocument(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	stats, err := p.IngestDocument(ctx, testDoc("ritual",
		"The operation of Abramelin takes six months of preparation. "+
			"The aspirant must pray at sunrise and sunset every day."))
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Documents)
	assert.Positive(t, stats.Chunks)

	// Document, chunks, and vectors are all persisted.
	doc, err := p.metadata.GetDocumentByName(ctx, "ritual")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.NotEmpty(t, doc.ContentHash)

	n, err := p.metadata.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, stats.Chunks, n)
	assert.Equal(t, stats.Chunks, p.vectors.Count())

	// Embedding state is pinned.
	dim, err := p.metadata.GetState(ctx, store.StateKeyEmbeddingDimension)
	require.NoError(t, err)
	assert.Equal(t, "256", dim)
}

func TestPipeline_UnchangedDocumentSkipped(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()
	doc := testDoc("ritual", "Same content both times. Nothing changes here at all.")

	first, err := p.IngestDocument(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Documents)

	second, err := p.IngestDocument(ctx, doc)
	require.NoError(t, err)
	assert.Zero(t, second.Documents)
	assert.Equal(t, 1, second.Skipped)
}

func TestPipeline_ChangedDocumentReplacesChunks(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	_, err := p.IngestDocument(ctx, testDoc("ritual", "Original content about the six month operation."))
	require.NoError(t, err)
	staleCount := p.vectors.Count()

	stats, err := p.IngestDocument(ctx, testDoc("ritual", "Revised content that says something different now."))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Documents)

	// Old vectors are gone; only the new chunk set remains.
	assert.Equal(t, stats.Chunks, p.vectors.Count())
	assert.NotEqual(t, 0, staleCount)

	n, err := p.metadata.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPipeline_DimensionMismatchRejected(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	require.NoError(t, p.metadata.SetState(ctx, store.StateKeyEmbeddingDimension, "768"))

	_, err := p.IngestDocument(ctx, testDoc("ritual", "Some content that will never be embedded."))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeDimensionMismatch))
}

func TestPipeline_ModelMismatchRejected(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	require.NoError(t, p.metadata.SetState(ctx, store.StateKeyEmbeddingModel, "text-embedding-3-small"))

	_, err := p.IngestDocument(ctx, testDoc("ritual", "Some content that will never be embedded."))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeDimensionMismatch))
}

// failingMetadata wraps a real store and fails selected writes.
type failingMetadata struct {
	store.MetadataStore
	failSaveDocument bool
	failSaveChunks   bool
}

func (f *failingMetadata) SaveDocument(ctx context.Context, doc *store.Document) error {
	if f.failSaveDocument {
		return fmt.Errorf("disk full")
	}
	return f.MetadataStore.SaveDocument(ctx, doc)
}

func (f *failingMetadata) SaveChunks(ctx context.Context, chunks []*store.ChunkRecord) error {
	if f.failSaveChunks {
		return fmt.Errorf("disk full")
	}
	return f.MetadataStore.SaveChunks(ctx, chunks)
}

func TestPipeline_MetadataFailureLeavesNoOrphanVectors(t *testing.T) {
	for _, tt := range []struct {
		name   string
		mutate func(*failingMetadata)
	}{
		{"document write fails", func(f *failingMetadata) { f.failSaveDocument = true }},
		{"chunk write fails", func(f *failingMetadata) { f.failSaveChunks = true }},
	} {
		t.Run(tt.name, func(t *testing.T) {
			base := newTestPipeline(t)
			failing := &failingMetadata{MetadataStore: base.metadata}
			tt.mutate(failing)
			p := NewPipeline(chunk.NewTextChunker(chunk.Options{}),
				base.embedder, base.vectors, failing, Options{}, slog.New(slog.DiscardHandler))

			_, err := p.IngestDocument(context.Background(),
				testDoc("ritual", "Content that embeds fine but never lands in metadata."))
			require.Error(t, err)

			// The vectors added before the failed write are rolled back,
			// otherwise later searches would return IDs with no chunks.
			assert.Zero(t, base.vectors.Count())
		})
	}
}

func TestPipeline_IngestDirectory(t *testing.T) {
	p := newTestPipeline(t)
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"),
		[]byte("First document with enough text to produce a chunk."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.md"),
		[]byte("Second document, also with enough text to chunk."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skip.csv"),
		[]byte("a,b,c"), 0o644))

	stats, err := p.IngestDirectory(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Documents)
	assert.Zero(t, stats.Failed)

	n, err := p.metadata.CountDocuments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestLock_SecondHolderRejected(t *testing.T) {
	dir := t.TempDir()

	release, err := Lock(dir)
	require.NoError(t, err)
	defer release()

	_, err = Lock(dir)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeIngestLocked))
}

func TestLock_ReleasedLockCanBeReacquired(t *testing.T) {
	dir := t.TempDir()

	release, err := Lock(dir)
	require.NoError(t, err)
	release()

	release2, err := Lock(dir)
	require.NoError(t, err)
	release2()
}

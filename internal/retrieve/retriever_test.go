package retrieve

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magic-research/ragd/internal/embed"
	"github.com/magic-research/ragd/internal/errors"
	"github.com/magic-research/ragd/internal/store"
)

// newTestRetriever indexes the given texts with the static embedder and
// returns a retriever over them.
func newTestRetriever(t *testing.T, opts Options, texts ...string) *Retriever {
	t.Helper()
	ctx := context.Background()

	embedder := embed.NewStaticEmbedder()
	t.Cleanup(func() { _ = embedder.Close() })

	vectors, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(embedder.Dimensions()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = vectors.Close() })

	metadata, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = metadata.Close() })

	doc := &store.Document{ID: "doc-1", Name: "testdoc", Path: "/tmp/testdoc.txt", ContentHash: "h"}
	require.NoError(t, metadata.SaveDocument(ctx, doc))

	ids := make([]string, len(texts))
	vecs := make([][]float32, len(texts))
	records := make([]*store.ChunkRecord, len(texts))
	for i, text := range texts {
		ids[i] = fmt.Sprintf("chunk-%d", i)
		v, err := embedder.Embed(ctx, text)
		require.NoError(t, err)
		vecs[i] = v
		records[i] = &store.ChunkRecord{
			ID:           ids[i],
			DocumentID:   doc.ID,
			DocumentName: doc.Name,
			Index:        i,
			Text:         text,
		}
	}
	require.NoError(t, metadata.SaveChunks(ctx, records))
	require.NoError(t, vectors.Add(ctx, ids, vecs))

	return NewRetriever(embedder, vectors, metadata, opts, slog.New(slog.DiscardHandler))
}

func TestRetriever_ReturnsMostRelevantFirst(t *testing.T) {
	r := newTestRetriever(t, Options{},
		"the ritual requires six months of preparation and prayer",
		"sqlite uses a write ahead log for concurrent readers",
		"ancient grimoires describe rituals of preparation")

	results, err := r.Retrieve(context.Background(), "ritual preparation months", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// The chunk sharing the most terms with the query comes first.
	assert.Equal(t, "chunk-0", results[0].ChunkID)
	assert.Equal(t, "testdoc", results[0].DocumentName)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
	assert.NotEmpty(t, results[0].Text)
}

func TestRetriever_KLargerThanCorpus(t *testing.T) {
	r := newTestRetriever(t, Options{}, "only one chunk here")

	results, err := r.Retrieve(context.Background(), "chunk", 5)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestRetriever_EmptyIndexYieldsEmptyResults(t *testing.T) {
	r := newTestRetriever(t, Options{})

	results, err := r.Retrieve(context.Background(), "anything at all", 3)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetriever_EmptyQueryRejected(t *testing.T) {
	r := newTestRetriever(t, Options{}, "some chunk")

	_, err := r.Retrieve(context.Background(), "   ", 3)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeQueryEmpty))
}

func TestRetriever_InvalidKRejected(t *testing.T) {
	r := newTestRetriever(t, Options{}, "some chunk")

	_, err := r.Retrieve(context.Background(), "query", 0)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput))
}

func TestRetriever_MinScoreMayShortenResults(t *testing.T) {
	// An impossible threshold filters everything out.
	r := newTestRetriever(t, Options{MinScore: 0.999},
		"completely unrelated text about databases",
		"more text about network protocols")

	results, err := r.Retrieve(context.Background(), "medieval alchemy symbolism", 2)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetriever_DimensionMismatchSurfaced(t *testing.T) {
	ctx := context.Background()
	embedder := embed.NewStaticEmbedder()
	defer embedder.Close()

	// Index built with a different dimension than the embedder produces.
	vectors, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(8))
	require.NoError(t, err)
	defer vectors.Close()
	require.NoError(t, vectors.Add(ctx, []string{"x"}, [][]float32{{1, 0, 0, 0, 0, 0, 0, 0}}))

	metadata, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer metadata.Close()

	r := NewRetriever(embedder, vectors, metadata, Options{}, slog.New(slog.DiscardHandler))

	_, err = r.Retrieve(ctx, "query", 1)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeDimensionMismatch))
}

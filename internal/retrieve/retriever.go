// Package retrieve turns a natural-language query into the most relevant
// stored chunks: embed the query, search the vector index, then join the
// hits back to their text and document metadata.
package retrieve

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strings"
	"time"

	"github.com/magic-research/ragd/internal/embed"
	"github.com/magic-research/ragd/internal/errors"
	"github.com/magic-research/ragd/internal/store"
)

// DefaultK is the number of chunks retrieved per query.
const DefaultK = 3

// Result is one retrieved chunk with its relevance score.
type Result struct {
	ChunkID      string  `json:"chunk_id"`
	DocumentName string  `json:"document"`
	ChunkIndex   int     `json:"chunk_index"`
	Text         string  `json:"text"`
	Score        float32 `json:"score"`
	Distance     float32 `json:"-"`
}

// Options configures a Retriever.
type Options struct {
	// MinScore filters out results below this similarity; 0 disables
	// the filter. The result list may come back shorter than k.
	MinScore float32
}

// Retriever performs embedding-based nearest-neighbor retrieval.
type Retriever struct {
	embedder embed.Embedder
	vectors  store.VectorStore
	metadata store.MetadataStore
	opts     Options
	logger   *slog.Logger
}

// NewRetriever wires an embedder with the vector and metadata stores.
func NewRetriever(embedder embed.Embedder, vectors store.VectorStore, metadata store.MetadataStore, opts Options, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		embedder: embedder,
		vectors:  vectors,
		metadata: metadata,
		opts:     opts,
		logger:   logger,
	}
}

// Retrieve returns up to k chunks relevant to the query, ordered by
// descending similarity. An empty index yields an empty slice, not an
// error.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.Newf(errors.ErrCodeQueryEmpty, "query must not be empty")
	}
	if k <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidInput, "k must be positive, got %d", k)
	}

	start := time.Now()

	queryVec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, errors.New(errors.ErrCodeEmbeddingFailed, "failed to embed query", err)
	}

	hits, err := r.vectors.Search(ctx, queryVec, k)
	if err != nil {
		var dimErr store.ErrDimensionMismatch
		if stderrors.As(err, &dimErr) {
			return nil, errors.New(errors.ErrCodeDimensionMismatch, dimErr.Error(), err)
		}
		return nil, errors.RetrievalUnavailable(err)
	}

	if r.opts.MinScore > 0 {
		filtered := hits[:0]
		for _, h := range hits {
			if h.Score >= r.opts.MinScore {
				filtered = append(filtered, h)
			}
		}
		hits = filtered
	}

	if len(hits) == 0 {
		return []*Result{}, nil
	}

	ids := make([]string, len(hits))
	scoreByID := make(map[string]*store.VectorResult, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
		scoreByID[h.ID] = h
	}

	records, err := r.metadata.GetChunks(ctx, ids)
	if err != nil {
		return nil, errors.RetrievalUnavailable(err)
	}

	results := make([]*Result, 0, len(records))
	for _, rec := range records {
		hit := scoreByID[rec.ID]
		results = append(results, &Result{
			ChunkID:      rec.ID,
			DocumentName: rec.DocumentName,
			ChunkIndex:   rec.Index,
			Text:         rec.Text,
			Score:        hit.Score,
			Distance:     hit.Distance,
		})
	}

	r.logger.Debug("retrieval complete",
		"query_len", len(query),
		"k", k,
		"results", len(results),
		"duration_ms", time.Since(start).Milliseconds())

	return results, nil
}

// Package ingest runs the document ingestion pipeline: load, chunk,
// embed, and persist. A file lock guarantees a single ingester per data
// directory.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/magic-research/ragd/internal/chunk"
	"github.com/magic-research/ragd/internal/embed"
	"github.com/magic-research/ragd/internal/errors"
	"github.com/magic-research/ragd/internal/source"
	"github.com/magic-research/ragd/internal/store"
)

// DefaultConcurrency bounds parallel embedding batches.
const DefaultConcurrency = 4

// embedBatchSize is the number of chunks embedded per batch.
const embedBatchSize = 32

// Stats summarizes an ingestion run.
type Stats struct {
	Documents int // documents ingested or updated
	Skipped   int // documents unchanged since last ingest
	Failed    int // documents that errored
	Chunks    int // chunks written
	Elapsed   time.Duration
}

// Pipeline ingests documents into the vector and metadata stores.
type Pipeline struct {
	chunker     chunk.Chunker
	embedder    embed.Embedder
	vectors     store.VectorStore
	metadata    store.MetadataStore
	concurrency int
	logger      *slog.Logger
}

// Options configures a Pipeline.
type Options struct {
	// Concurrency bounds parallel embedding batches; 0 means the default.
	Concurrency int
}

// NewPipeline wires the ingestion stages together.
func NewPipeline(chunker chunk.Chunker, embedder embed.Embedder, vectors store.VectorStore, metadata store.MetadataStore, opts Options, logger *slog.Logger) *Pipeline {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		chunker:     chunker,
		embedder:    embedder,
		vectors:     vectors,
		metadata:    metadata,
		concurrency: opts.Concurrency,
		logger:      logger,
	}
}

// Lock acquires the ingest lock for dataDir. The caller must release it
// with the returned function. A held lock means another ingester is
// running against the same data directory.
func Lock(dataDir string) (release func(), err error) {
	lock := flock.New(filepath.Join(dataDir, "ingest.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, errors.New(errors.ErrCodeIngestLocked, "failed to acquire ingest lock", err)
	}
	if !locked {
		return nil, errors.Newf(errors.ErrCodeIngestLocked, "another ingest is running against %s", dataDir)
	}
	return func() { _ = lock.Unlock() }, nil
}

// IngestFile loads one file and ingests it.
func (p *Pipeline) IngestFile(ctx context.Context, path string) (*Stats, error) {
	doc, err := source.Load(path)
	if err != nil {
		return nil, err
	}
	return p.IngestDocument(ctx, doc)
}

// IngestDirectory ingests every supported file under dir. Per-file
// failures are logged and counted, not fatal.
func (p *Pipeline) IngestDirectory(ctx context.Context, dir string) (*Stats, error) {
	paths, err := source.Scan(dir)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	total := &Stats{}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return total, errors.Wrap(errors.ErrCodeInternal, err)
		}

		stats, err := p.IngestFile(ctx, path)
		if err != nil {
			p.logger.Error("failed to ingest file",
				"path", path, "code", errors.GetCode(err), "error", err)
			total.Failed++
			continue
		}
		total.Documents += stats.Documents
		total.Skipped += stats.Skipped
		total.Chunks += stats.Chunks
	}
	total.Elapsed = time.Since(start)

	p.logger.Info("directory ingest complete",
		"dir", dir,
		"documents", total.Documents,
		"skipped", total.Skipped,
		"failed", total.Failed,
		"chunks", total.Chunks,
		"duration_ms", total.Elapsed.Milliseconds())
	return total, nil
}

// IngestDocument chunks, embeds, and persists one document. A document
// whose content hash matches the stored one is skipped. Re-ingesting a
// changed document replaces its chunks and vectors.
func (p *Pipeline) IngestDocument(ctx context.Context, doc *chunk.Document) (*Stats, error) {
	start := time.Now()

	if err := p.checkEmbeddingState(ctx); err != nil {
		return nil, err
	}

	contentHash := hashText(doc.Text)
	docID := documentID(doc.Name)

	existing, err := p.metadata.GetDocumentByName(ctx, doc.Name)
	if err != nil {
		return nil, errors.RetrievalUnavailable(err)
	}
	if existing != nil && existing.ContentHash == contentHash {
		p.logger.Debug("document unchanged, skipping", "name", doc.Name)
		return &Stats{Skipped: 1, Elapsed: time.Since(start)}, nil
	}

	chunks, err := p.chunker.Chunk(*doc)
	if err != nil {
		return nil, errors.New(errors.ErrCodeChunkingFailed, "failed to chunk "+doc.Name, err)
	}

	vectors, err := p.embedChunks(ctx, chunks)
	if err != nil {
		return nil, err
	}

	// Replace before insert so a re-ingest never leaves stale chunks.
	if existing != nil {
		staleIDs, err := p.metadata.ChunkIDsByDocument(ctx, existing.ID)
		if err != nil {
			return nil, errors.RetrievalUnavailable(err)
		}
		if err := p.vectors.Delete(ctx, staleIDs); err != nil {
			return nil, errors.RetrievalUnavailable(err)
		}
		if err := p.metadata.DeleteChunksByDocument(ctx, existing.ID); err != nil {
			return nil, errors.RetrievalUnavailable(err)
		}
	}

	ids := make([]string, len(chunks))
	records := make([]*store.ChunkRecord, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID()
		records[i] = &store.ChunkRecord{
			ID:           ids[i],
			DocumentID:   docID,
			DocumentName: c.DocumentName,
			Index:        c.Index,
			Text:         c.Text,
		}
	}

	if err := p.vectors.Add(ctx, ids, vectors); err != nil {
		return nil, errors.RetrievalUnavailable(err)
	}
	if err := p.metadata.SaveDocument(ctx, &store.Document{
		ID:          docID,
		Name:        doc.Name,
		Path:        doc.Path,
		PageCount:   doc.PageCount,
		CharCount:   len(doc.Text),
		ContentHash: contentHash,
		IngestedAt:  time.Now(),
	}); err != nil {
		// Vectors without chunk records would silently shrink every
		// search result, so roll back the ones just added.
		_ = p.vectors.Delete(ctx, ids)
		return nil, errors.RetrievalUnavailable(err)
	}
	if err := p.metadata.SaveChunks(ctx, records); err != nil {
		_ = p.vectors.Delete(ctx, ids)
		return nil, errors.RetrievalUnavailable(err)
	}

	if err := p.pinEmbeddingState(ctx); err != nil {
		return nil, err
	}

	p.logger.Info("document ingested",
		"name", doc.Name,
		"chunks", len(chunks),
		"chars", len(doc.Text),
		"duration_ms", time.Since(start).Milliseconds())

	return &Stats{Documents: 1, Chunks: len(chunks), Elapsed: time.Since(start)}, nil
}

// embedChunks embeds chunk texts in parallel batches, preserving order.
func (p *Pipeline) embedChunks(ctx context.Context, chunks []chunk.Chunk) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for batchStart := 0; batchStart < len(chunks); batchStart += embedBatchSize {
		batchEnd := min(batchStart+embedBatchSize, len(chunks))
		g.Go(func() error {
			texts := make([]string, batchEnd-batchStart)
			for i := range texts {
				texts[i] = chunks[batchStart+i].Text
			}
			vecs, err := p.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return errors.New(errors.ErrCodeEmbeddingFailed, "failed to embed chunk batch", err)
			}
			copy(vectors[batchStart:batchEnd], vecs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// checkEmbeddingState rejects ingestion when the store was built with a
// different embedding model or dimension.
func (p *Pipeline) checkEmbeddingState(ctx context.Context) error {
	dim, err := p.metadata.GetState(ctx, store.StateKeyEmbeddingDimension)
	if err != nil {
		return errors.RetrievalUnavailable(err)
	}
	if dim != "" && dim != strconv.Itoa(p.embedder.Dimensions()) {
		return errors.Newf(errors.ErrCodeDimensionMismatch,
			"index was built with dimension %s, embedder produces %d (reingest from scratch to switch models)",
			dim, p.embedder.Dimensions())
	}

	model, err := p.metadata.GetState(ctx, store.StateKeyEmbeddingModel)
	if err != nil {
		return errors.RetrievalUnavailable(err)
	}
	if model != "" && model != p.embedder.ModelName() {
		return errors.Newf(errors.ErrCodeDimensionMismatch,
			"index was built with model %q, embedder is %q (reingest from scratch to switch models)",
			model, p.embedder.ModelName())
	}
	return nil
}

func (p *Pipeline) pinEmbeddingState(ctx context.Context) error {
	if err := p.metadata.SetState(ctx, store.StateKeyEmbeddingDimension, strconv.Itoa(p.embedder.Dimensions())); err != nil {
		return errors.RetrievalUnavailable(err)
	}
	if err := p.metadata.SetState(ctx, store.StateKeyEmbeddingModel, p.embedder.ModelName()); err != nil {
		return errors.RetrievalUnavailable(err)
	}
	return nil
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func documentID(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}

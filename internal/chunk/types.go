// Package chunk splits document text into bounded-size passages for
// embedding and retrieval.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Chunk size defaults, matching the corpus the index was tuned on.
const (
	// DefaultTargetSize is the target chunk size in characters.
	DefaultTargetSize = 500

	// DefaultTolerance is how far past the target a chunk may run so it
	// can end on a sentence boundary instead of mid-sentence.
	DefaultTolerance = 50

	// DefaultOverlap is the character overlap between hard-cut chunks.
	DefaultOverlap = 50

	// DefaultMinLength drops fragments too short to carry meaning.
	DefaultMinLength = 20
)

// Document is the raw text of one ingested source plus identifying
// metadata. Immutable once created.
type Document struct {
	Name      string // display name (filename without extension)
	Path      string // source path, informational
	Text      string // full extracted text
	PageCount int    // pages in the source, 0 when unknown
}

// Chunk is a contiguous passage of a Document. Chunks of one Document,
// concatenated in Index order, reproduce its text up to boundary trimming.
type Chunk struct {
	DocumentName string
	Index        int
	Text         string
}

// ID returns a stable content-addressed identifier for the chunk.
func (c Chunk) ID() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%d\x00%s", c.DocumentName, c.Index, c.Text)))
	return hex.EncodeToString(sum[:8])
}

// Chunker splits a document into retrieval-sized chunks.
type Chunker interface {
	Chunk(doc Document) ([]Chunk, error)
}

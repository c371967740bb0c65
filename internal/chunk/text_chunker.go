package chunk

import (
	"regexp"
	"strings"

	"github.com/magic-research/ragd/internal/errors"
)

// Options configures the text chunker.
type Options struct {
	TargetSize int // target chunk size in characters
	Tolerance  int // allowed overrun to reach a clean boundary
	Overlap    int // overlap between hard-cut pieces
	MinLength  int // fragments shorter than this are dropped
}

// DefaultOptions returns the default chunking options.
func DefaultOptions() Options {
	return Options{
		TargetSize: DefaultTargetSize,
		Tolerance:  DefaultTolerance,
		Overlap:    DefaultOverlap,
		MinLength:  DefaultMinLength,
	}
}

// TextChunker splits prose into chunks close to a target character size,
// preferring paragraph and sentence boundaries. A hard cut at a word
// boundary is the last resort for text with no usable punctuation.
type TextChunker struct {
	opts Options
}

// Regex patterns for boundary detection.
var (
	// Sentence: run of non-terminators followed by terminators and
	// optional closing quotes/brackets, or a trailing fragment.
	sentencePattern = regexp.MustCompile(`[^.!?]+[.!?]+["')\]]*\s*|[^.!?]+$`)

	// Clause: run up to a comma, semicolon or colon (delimiter kept).
	clausePattern = regexp.MustCompile(`[^,;:]+[,;:]?`)

	paragraphPattern = regexp.MustCompile(`\n\s*\n`)
)

// NewTextChunker creates a chunker with the given options, filling in
// defaults for zero values.
func NewTextChunker(opts Options) *TextChunker {
	if opts.TargetSize <= 0 {
		opts.TargetSize = DefaultTargetSize
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = opts.TargetSize / 10
	}
	if opts.Overlap < 0 {
		opts.Overlap = 0
	}
	if opts.MinLength <= 0 {
		opts.MinLength = DefaultMinLength
	}
	return &TextChunker{opts: opts}
}

// Verify interface implementation at compile time
var _ Chunker = (*TextChunker)(nil)

// Chunk splits the document text into chunks. The result is a pure
// function of the input, so the sequence is trivially restartable.
func (c *TextChunker) Chunk(doc Document) ([]Chunk, error) {
	text := strings.TrimSpace(doc.Text)
	if text == "" {
		return nil, errors.InvalidInput("document text is empty")
	}

	maxLen := c.opts.TargetSize + c.opts.Tolerance

	var pieces []string
	for _, para := range splitParagraphs(text) {
		if len(para) <= maxLen {
			pieces = append(pieces, para)
			continue
		}
		pieces = append(pieces, c.splitParagraph(para)...)
	}

	chunks := make([]Chunk, 0, len(pieces))
	for _, p := range pieces {
		if len(p) < c.opts.MinLength {
			continue
		}
		chunks = append(chunks, Chunk{
			DocumentName: doc.Name,
			Index:        len(chunks),
			Text:         p,
		})
	}

	// A document shorter than MinLength still yields its whole text.
	if len(chunks) == 0 {
		chunks = append(chunks, Chunk{DocumentName: doc.Name, Index: 0, Text: text})
	}

	return chunks, nil
}

// splitParagraphs splits on blank lines and trims each paragraph.
func splitParagraphs(text string) []string {
	raw := paragraphPattern.Split(text, -1)
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitSentences returns the sentences of a paragraph, terminators kept.
func splitSentences(para string) []string {
	raw := sentencePattern.FindAllString(para, -1)
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// splitParagraph accumulates sentences up to the target size. A chunk may
// run into the tolerance window if that lets it end on a sentence boundary.
func (c *TextChunker) splitParagraph(para string) []string {
	target := c.opts.TargetSize
	maxLen := target + c.opts.Tolerance

	sentences := splitSentences(para)
	if len(sentences) == 0 {
		sentences = []string{para}
	}

	var out []string
	var cur string

	flush := func() {
		if cur != "" {
			out = append(out, cur)
			cur = ""
		}
	}

	for _, s := range sentences {
		if len(s) > maxLen {
			flush()
			out = append(out, c.splitLongSentence(s)...)
			continue
		}

		joined := len(cur) + len(s)
		if cur != "" {
			joined++ // joining space
		}

		switch {
		case joined <= target:
			if cur == "" {
				cur = s
			} else {
				cur += " " + s
			}
		case joined <= maxLen:
			if cur == "" {
				cur = s
			} else {
				cur += " " + s
			}
			flush()
		default:
			flush()
			cur = s
		}
	}
	flush()

	return out
}

// splitLongSentence breaks an oversized sentence at clause delimiters,
// falling back to a hard cut for clause-free runs.
func (c *TextChunker) splitLongSentence(s string) []string {
	target := c.opts.TargetSize
	maxLen := target + c.opts.Tolerance

	var out []string
	var cur string

	flush := func() {
		if cur != "" {
			out = append(out, cur)
			cur = ""
		}
	}

	for _, part := range clausePattern.FindAllString(s, -1) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if len(part) > maxLen {
			flush()
			out = append(out, c.hardCut(part)...)
			continue
		}

		joined := len(cur) + len(part)
		if cur != "" {
			joined++
		}
		if joined <= target {
			if cur == "" {
				cur = part
			} else {
				cur += " " + part
			}
		} else {
			flush()
			cur = part
		}
	}
	flush()

	return out
}

// hardCut slices text at the target size, backing up to the nearest word
// boundary and overlapping consecutive pieces.
func (c *TextChunker) hardCut(s string) []string {
	var out []string
	start := 0

	for start < len(s) {
		end := start + c.opts.TargetSize
		if end >= len(s) {
			if piece := strings.TrimSpace(s[start:]); piece != "" {
				out = append(out, piece)
			}
			break
		}

		if sp := strings.LastIndex(s[start:end], " "); sp > 0 {
			end = start + sp
		}

		if piece := strings.TrimSpace(s[start:end]); piece != "" {
			out = append(out, piece)
		}

		next := end - c.opts.Overlap
		if next <= start {
			next = end
		}
		start = next
	}

	return out
}

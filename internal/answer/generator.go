// Package answer assembles retrieved chunks into a grounded prompt and
// generates an answer through the provider fallback chain.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/magic-research/ragd/internal/errors"
	"github.com/magic-research/ragd/internal/llm"
	"github.com/magic-research/ragd/internal/retrieve"
)

// DefaultMaxContextChars bounds the assembled context. Blocks are
// dropped whole from the end rather than cut mid-chunk.
const DefaultMaxContextChars = 12000

// blockSeparator joins source blocks in the assembled context.
const blockSeparator = "\n---\n"

const promptTemplate = `You are an academic research assistant. Answer the question using ONLY the provided source content. If the sources do not contain the answer, say so explicitly instead of guessing.

Sources:
%s

Question: %s

Answer:`

// Generator turns retrieval results into an answer.
type Generator struct {
	chain           generateChain
	maxContextChars int
	logger          *slog.Logger
}

// generateChain is the surface of llm.Fallback the generator needs.
type generateChain interface {
	Generate(ctx context.Context, prompt string) (*llm.GenerateResult, error)
}

// Options configures a Generator.
type Options struct {
	// MaxContextChars bounds assembled context size; 0 means the default.
	MaxContextChars int
}

// NewGenerator creates a Generator over a provider fallback chain.
func NewGenerator(chain *llm.Fallback, opts Options, logger *slog.Logger) *Generator {
	return newGenerator(chain, opts, logger)
}

func newGenerator(chain generateChain, opts Options, logger *slog.Logger) *Generator {
	if opts.MaxContextChars <= 0 {
		opts.MaxContextChars = DefaultMaxContextChars
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		chain:           chain,
		maxContextChars: opts.MaxContextChars,
		logger:          logger,
	}
}

// Result is a generated answer with its provenance.
type Result struct {
	Text     string
	Provider string
	Model    string
	Sources  []*retrieve.Result
}

// Generate builds the grounded prompt from the chunks and runs the
// fallback chain. At least one chunk is required.
func (g *Generator) Generate(ctx context.Context, question string, chunks []*retrieve.Result) (*Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, errors.Newf(errors.ErrCodeQueryEmpty, "question must not be empty")
	}
	if len(chunks) == 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidInput, "cannot generate an answer without source chunks")
	}

	contextText, used := g.assembleContext(chunks)
	prompt := fmt.Sprintf(promptTemplate, contextText, question)

	result, err := g.chain.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	g.logger.Debug("answer generated",
		"provider", result.Provider,
		"model", result.Model,
		"chunks_used", len(used),
		"context_chars", len(contextText))

	return &Result{
		Text:     result.Text,
		Provider: result.Provider,
		Model:    result.Model,
		Sources:  used,
	}, nil
}

// assembleContext renders chunks as tagged source blocks, keeping whole
// blocks until the budget runs out. The first block is always kept even
// when it alone exceeds the budget.
func (g *Generator) assembleContext(chunks []*retrieve.Result) (string, []*retrieve.Result) {
	var sb strings.Builder
	used := make([]*retrieve.Result, 0, len(chunks))

	for _, chunk := range chunks {
		block := fmt.Sprintf("[Source: %s, Chunk %d]\n%s", chunk.DocumentName, chunk.ChunkIndex, chunk.Text)

		projected := sb.Len() + len(block)
		if sb.Len() > 0 {
			projected += len(blockSeparator)
		}
		if projected > g.maxContextChars && len(used) > 0 {
			break
		}

		if sb.Len() > 0 {
			sb.WriteString(blockSeparator)
		}
		sb.WriteString(block)
		used = append(used, chunk)
	}

	return sb.String(), used
}

// Package qa is the query service: it ties retrieval and answer
// generation together behind a single Ask operation.
package qa

import (
	"context"
	"log/slog"
	"time"

	"github.com/magic-research/ragd/internal/answer"
	"github.com/magic-research/ragd/internal/retrieve"
)

// NoResultsMessage is returned when nothing relevant was found; no
// provider is contacted in that case.
const NoResultsMessage = "No relevant content was found in the ingested documents for this question."

// Retriever is the retrieval surface the service depends on.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]*retrieve.Result, error)
}

// Generator is the answer-generation surface the service depends on.
type Generator interface {
	Generate(ctx context.Context, question string, chunks []*retrieve.Result) (*answer.Result, error)
}

// Response is the outcome of one question.
type Response struct {
	// Answered is false when retrieval found nothing relevant; Answer
	// then holds NoResultsMessage and no provider was called.
	Answered bool               `json:"answered"`
	Answer   string             `json:"answer"`
	Provider string             `json:"provider,omitempty"`
	Model    string             `json:"model,omitempty"`
	Sources  []*retrieve.Result `json:"sources"`
	Elapsed  time.Duration      `json:"-"`
}

// Service answers questions over the ingested corpus.
type Service struct {
	retriever Retriever
	generator Generator
	defaultK  int
	logger    *slog.Logger
}

// NewService creates the query service. defaultK <= 0 falls back to
// retrieve.DefaultK.
func NewService(retriever Retriever, generator Generator, defaultK int, logger *slog.Logger) *Service {
	if defaultK <= 0 {
		defaultK = retrieve.DefaultK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		retriever: retriever,
		generator: generator,
		defaultK:  defaultK,
		logger:    logger,
	}
}

// Ask retrieves relevant chunks for the question and generates a
// grounded answer. k <= 0 uses the service default. An empty retrieval
// is a valid outcome, not an error.
func (s *Service) Ask(ctx context.Context, question string, k int) (*Response, error) {
	if k <= 0 {
		k = s.defaultK
	}
	start := time.Now()

	chunks, err := s.retriever.Retrieve(ctx, question, k)
	if err != nil {
		return nil, err
	}

	if len(chunks) == 0 {
		s.logger.Info("no relevant chunks found",
			"question_len", len(question), "k", k)
		return &Response{
			Answered: false,
			Answer:   NoResultsMessage,
			Sources:  []*retrieve.Result{},
			Elapsed:  time.Since(start),
		}, nil
	}

	result, err := s.generator.Generate(ctx, question, chunks)
	if err != nil {
		return nil, err
	}

	s.logger.Info("question answered",
		"provider", result.Provider,
		"model", result.Model,
		"sources", len(result.Sources),
		"duration_ms", time.Since(start).Milliseconds())

	return &Response{
		Answered: true,
		Answer:   result.Text,
		Provider: result.Provider,
		Model:    result.Model,
		Sources:  result.Sources,
		Elapsed:  time.Since(start),
	}, nil
}

package cmd

import (
	"log/slog"
	"os"

	"github.com/magic-research/ragd/internal/answer"
	"github.com/magic-research/ragd/internal/chunk"
	"github.com/magic-research/ragd/internal/config"
	"github.com/magic-research/ragd/internal/embed"
	"github.com/magic-research/ragd/internal/errors"
	"github.com/magic-research/ragd/internal/ingest"
	"github.com/magic-research/ragd/internal/llm"
	"github.com/magic-research/ragd/internal/qa"
	"github.com/magic-research/ragd/internal/retrieve"
	"github.com/magic-research/ragd/internal/store"
)

// app holds the wired components shared by the CLI commands.
type app struct {
	cfg      *config.Config
	embedder embed.Embedder
	vectors  *store.HNSWStore
	metadata *store.SQLiteStore
	pipeline *ingest.Pipeline
	service  *qa.Service
	chain    *llm.Fallback
	logger   *slog.Logger
}

// buildApp wires stores, embedder, pipeline, and the query service from
// configuration. withProviders controls whether the generation chain is
// required; ingest-only commands run without any API keys.
func buildApp(cfg *config.Config, withProviders bool, logger *slog.Logger) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "failed to create data dir "+cfg.DataDir, err)
	}

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		return nil, err
	}

	vectors, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(embedder.Dimensions()))
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(cfg.IndexPath()); err == nil {
		if err := vectors.Load(cfg.IndexPath()); err != nil {
			return nil, errors.New(errors.ErrCodeCorruptIndex, "failed to load vector index", err)
		}
	}

	metadata, err := store.NewSQLiteStore(cfg.MetadataPath())
	if err != nil {
		return nil, err
	}

	chunker := chunk.NewTextChunker(chunk.Options{
		TargetSize: cfg.Chunking.TargetSize,
		Tolerance:  cfg.Chunking.Tolerance,
		Overlap:    cfg.Chunking.Overlap,
		MinLength:  cfg.Chunking.MinLength,
	})

	pipeline := ingest.NewPipeline(chunker, embedder, vectors, metadata, ingest.Options{}, logger)

	retriever := retrieve.NewRetriever(embedder, vectors, metadata, retrieve.Options{
		MinScore: cfg.Retrieval.MinScore,
	}, logger)

	a := &app{
		cfg:      cfg,
		embedder: embedder,
		vectors:  vectors,
		metadata: metadata,
		pipeline: pipeline,
		logger:   logger,
	}

	if withProviders {
		chain, err := buildProviderChain(cfg, logger)
		if err != nil {
			return nil, err
		}
		generator := answer.NewGenerator(chain, answer.Options{
			MaxContextChars: cfg.Providers.MaxContextChars,
		}, logger)
		a.chain = chain
		a.service = qa.NewService(retriever, generator, cfg.Retrieval.K, logger)
	}

	return a, nil
}

// buildEmbedder selects the configured embedder, wrapped in an LRU
// cache so repeated queries skip recomputation.
func buildEmbedder(cfg *config.Config) (embed.Embedder, error) {
	var inner embed.Embedder
	switch cfg.Embedding.Provider {
	case "openai":
		e, err := embed.NewOpenAIEmbedder(embed.OpenAIConfig{
			BaseURL:    cfg.Embedding.BaseURL,
			APIKey:     cfg.Embedding.APIKey,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
		})
		if err != nil {
			return nil, err
		}
		inner = e
	default:
		inner = embed.NewStaticEmbedder()
	}

	cacheSize := cfg.Embedding.CacheSize
	if cacheSize <= 0 {
		cacheSize = 512
	}
	return embed.NewCachedEmbedder(inner, cacheSize), nil
}

// buildProviderChain assembles the fallback chain in fixed order:
// OpenAI, then Groq, then Gemini. Providers without keys are skipped.
func buildProviderChain(cfg *config.Config, logger *slog.Logger) (*llm.Fallback, error) {
	var providers []llm.Provider

	if cfg.Providers.OpenAI.APIKey != "" {
		p, err := llm.NewOpenAIProvider(llm.OpenAIConfig{
			Name:        "openai",
			BaseURL:     cfg.Providers.OpenAI.BaseURL,
			APIKey:      cfg.Providers.OpenAI.APIKey,
			Model:       cfg.Providers.OpenAI.Model,
			Temperature: cfg.Providers.OpenAI.Temperature,
			MaxTokens:   cfg.Providers.OpenAI.MaxTokens,
			Timeout:     cfg.Providers.OpenAI.Timeout,
		})
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}

	if cfg.Providers.Groq.APIKey != "" {
		baseURL := cfg.Providers.Groq.BaseURL
		if baseURL == "" {
			baseURL = "https://api.groq.com/openai/v1"
		}
		model := cfg.Providers.Groq.Model
		if model == "" {
			model = "llama-3.3-70b-versatile"
		}
		p, err := llm.NewOpenAIProvider(llm.OpenAIConfig{
			Name:        "groq",
			BaseURL:     baseURL,
			APIKey:      cfg.Providers.Groq.APIKey,
			Model:       model,
			Temperature: cfg.Providers.Groq.Temperature,
			MaxTokens:   cfg.Providers.Groq.MaxTokens,
			Timeout:     cfg.Providers.Groq.Timeout,
		})
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}

	if cfg.Providers.Gemini.APIKey != "" {
		p, err := llm.NewGeminiProvider(llm.GeminiConfig{
			BaseURL:     cfg.Providers.Gemini.BaseURL,
			APIKey:      cfg.Providers.Gemini.APIKey,
			Model:       cfg.Providers.Gemini.Model,
			Temperature: cfg.Providers.Gemini.Temperature,
			MaxTokens:   cfg.Providers.Gemini.MaxTokens,
			Timeout:     cfg.Providers.Gemini.Timeout,
		})
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}

	if len(providers) == 0 {
		return nil, errors.Newf(errors.ErrCodeNoProviders,
			"no generation providers configured: set OPENAI_API_KEY, GROQ_API_KEY, or GEMINI_API_KEY")
	}

	return llm.NewFallback(providers, logger)
}

// close releases the app's resources and persists the vector index.
func (a *app) close(saveIndex bool) {
	if saveIndex {
		if err := a.vectors.Save(a.cfg.IndexPath()); err != nil {
			a.logger.Error("failed to save vector index", "error", err)
		}
	}
	_ = a.vectors.Close()
	_ = a.metadata.Close()
	_ = a.embedder.Close()
}

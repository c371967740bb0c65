// Package config loads ragd configuration from a YAML file, a .env
// file, and environment variables, in increasing order of precedence.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/magic-research/ragd/internal/errors"
)

// Defaults.
const (
	DefaultHost     = "127.0.0.1"
	DefaultPort     = 8080
	DefaultLogLevel = "info"
)

// Config is the full ragd configuration.
type Config struct {
	// DataDir holds the index, metadata database, and lock file.
	DataDir string `yaml:"data_dir"`

	// DocsDir is the directory of source documents to ingest.
	DocsDir string `yaml:"docs_dir"`

	Server    ServerConfig    `yaml:"server"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Providers ProvidersConfig `yaml:"providers"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// ChunkingConfig configures the text chunker. Zero values mean the
// chunker defaults.
type ChunkingConfig struct {
	TargetSize int `yaml:"target_size"`
	Tolerance  int `yaml:"tolerance"`
	Overlap    int `yaml:"overlap"`
	MinLength  int `yaml:"min_length"`
}

// RetrievalConfig configures retrieval behavior.
type RetrievalConfig struct {
	// K is the default number of chunks retrieved per query.
	K int `yaml:"k"`

	// MinScore filters low-similarity results; 0 disables.
	MinScore float32 `yaml:"min_score"`
}

// EmbeddingConfig selects and configures the embedder.
type EmbeddingConfig struct {
	// Provider is "static" (offline hashing) or "openai".
	Provider string `yaml:"provider"`

	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"-"` // env only, never from file
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`

	// CacheSize is the query embedding LRU size.
	CacheSize int `yaml:"cache_size"`
}

// ProviderConfig configures one generation provider.
type ProviderConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"-"` // env only, never from file
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

// ProvidersConfig holds the generation providers. Fallback order is
// fixed: OpenAI, then Groq, then Gemini. A provider without an API key
// is left out of the chain.
type ProvidersConfig struct {
	OpenAI ProviderConfig `yaml:"openai"`
	Groq   ProviderConfig `yaml:"groq"`
	Gemini ProviderConfig `yaml:"gemini"`

	// MaxContextChars bounds the assembled answer context.
	MaxContextChars int `yaml:"max_context_chars"`
}

// LoggingConfig configures logging output.
type LoggingConfig struct {
	Level string `yaml:"level"`

	// File is the log file path; empty logs to stderr only.
	File string `yaml:"file"`
}

// Default returns the configuration defaults.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		DataDir: filepath.Join(home, ".ragd"),
		DocsDir: "docs",
		Server: ServerConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Embedding: EmbeddingConfig{
			Provider:  "static",
			CacheSize: 512,
		},
		Retrieval: RetrievalConfig{
			K: 3,
		},
		Logging: LoggingConfig{
			Level: DefaultLogLevel,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file (when
// path is non-empty or ragd.yaml exists), then .env, then environment
// variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = defaultConfigPath()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.New(errors.ErrCodeConfigNotFound, "failed to read config file "+path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.ConfigError("failed to parse "+path, err)
		}
	}

	// .env is optional; a missing file is not an error.
	_ = godotenv.Load()

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables. API keys only ever come from
// the environment.
func applyEnv(cfg *Config) {
	if v := os.Getenv("RAGD_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("RAGD_DOCS_DIR"); v != "" {
		cfg.DocsDir = v
	}
	if v := os.Getenv("RAGD_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("RAGD_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("RAGD_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("RAGD_LOG_FILE"); v != "" {
		cfg.Logging.File = v
	}
	if v := os.Getenv("RAGD_RETRIEVAL_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil {
			cfg.Retrieval.K = k
		}
	}
	if v := os.Getenv("RAGD_EMBEDDING_PROVIDER"); v != "" {
		cfg.Embedding.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("RAGD_EMBEDDING_DIMENSIONS"); v != "" {
		if dims, err := strconv.Atoi(v); err == nil {
			cfg.Embedding.Dimensions = dims
		}
	}

	cfg.Embedding.APIKey = firstEnv("RAGD_EMBEDDING_API_KEY", "OPENAI_API_KEY")
	cfg.Providers.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	cfg.Providers.Groq.APIKey = os.Getenv("GROQ_API_KEY")
	cfg.Providers.Gemini.APIKey = firstEnv("GEMINI_API_KEY", "GOOGLE_API_KEY")
}

// defaultConfigPath returns ragd.yaml in the working directory, then
// the user config directory, or "" when neither exists.
func defaultConfigPath() string {
	if _, err := os.Stat("ragd.yaml"); err == nil {
		return "ragd.yaml"
	}
	if dir, err := os.UserConfigDir(); err == nil {
		candidate := filepath.Join(dir, "ragd", "config.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return errors.Newf(errors.ErrCodeConfigInvalid, "server port out of range: %d", c.Server.Port)
	}
	if c.Retrieval.K <= 0 {
		return errors.Newf(errors.ErrCodeConfigInvalid, "retrieval k must be positive: %d", c.Retrieval.K)
	}
	if c.Retrieval.MinScore < 0 || c.Retrieval.MinScore > 1 {
		return errors.Newf(errors.ErrCodeConfigInvalid, "retrieval min_score must be in [0,1]: %g", c.Retrieval.MinScore)
	}
	switch c.Embedding.Provider {
	case "static", "openai":
	default:
		return errors.Newf(errors.ErrCodeConfigInvalid, "unknown embedding provider %q (want static or openai)", c.Embedding.Provider)
	}
	if c.Embedding.Provider == "openai" && c.Embedding.APIKey == "" {
		return errors.Newf(errors.ErrCodeConfigInvalid, "embedding provider openai requires OPENAI_API_KEY or RAGD_EMBEDDING_API_KEY")
	}
	// The vector index is sized at startup, before any embedding call, so
	// the remote model's dimension must be declared up front.
	if c.Embedding.Provider == "openai" && c.Embedding.Dimensions <= 0 {
		return errors.Newf(errors.ErrCodeConfigInvalid, "embedding provider openai requires embedding.dimensions (or RAGD_EMBEDDING_DIMENSIONS) matching the model, e.g. 1536 for text-embedding-3-small")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.Newf(errors.ErrCodeConfigInvalid, "unknown log level %q", c.Logging.Level)
	}
	if c.Chunking.TargetSize < 0 || c.Chunking.Overlap < 0 {
		return errors.Newf(errors.ErrCodeConfigInvalid, "chunking sizes must not be negative")
	}
	return nil
}

// IndexPath returns the vector index file path under DataDir.
func (c *Config) IndexPath() string {
	return filepath.Join(c.DataDir, "vectors.hnsw")
}

// MetadataPath returns the metadata database path under DataDir.
func (c *Config) MetadataPath() string {
	return filepath.Join(c.DataDir, "metadata.db")
}

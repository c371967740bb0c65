// Package llm provides text generation through external model providers
// with ordered fallback. Providers are tried in configuration order and
// the first success wins.
package llm

import (
	"context"
	"time"
)

// Default generation parameters.
const (
	// DefaultTimeout bounds a single provider call.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxTokens caps completion length.
	DefaultMaxTokens = 1024

	// DefaultTemperature keeps answers grounded in the provided context.
	DefaultTemperature = 0.2
)

// Provider generates text from a prompt. Implementations wrap one
// upstream model API.
type Provider interface {
	// Name identifies the provider (e.g., "openai", "groq", "gemini").
	Name() string

	// Model returns the configured model identifier.
	Model() string

	// Generate produces a completion for the prompt. Errors carry
	// ERR_3XX codes distinguishing auth, quota, and transport failures.
	Generate(ctx context.Context, prompt string) (string, error)
}

// GenerateResult is a completion together with the provider that
// produced it.
type GenerateResult struct {
	Text     string
	Provider string
	Model    string
}

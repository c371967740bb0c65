package llm

import (
	"context"
	"log/slog"
	"strings"

	"github.com/magic-research/ragd/internal/errors"
)

// Fallback tries providers in order and returns the first successful
// completion. A provider failure is logged and the next provider is
// tried; only exhausting the whole chain is an error.
type Fallback struct {
	providers []Provider
	logger    *slog.Logger
}

// NewFallback creates a fallback chain over the given providers. Order
// matters: providers[0] is the preferred provider.
func NewFallback(providers []Provider, logger *slog.Logger) (*Fallback, error) {
	if len(providers) == 0 {
		return nil, errors.Newf(errors.ErrCodeNoProviders, "no generation providers configured")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{providers: providers, logger: logger}, nil
}

// Providers returns the provider names in fallback order.
func (f *Fallback) Providers() []string {
	names := make([]string, len(f.providers))
	for i, p := range f.providers {
		names[i] = p.Name()
	}
	return names
}

// Generate runs the fallback chain. Once a provider succeeds no further
// providers are contacted. Context cancellation stops the chain
// immediately rather than falling through to the next provider.
func (f *Fallback) Generate(ctx context.Context, prompt string) (*GenerateResult, error) {
	var failures []string

	for _, provider := range f.providers {
		if err := ctx.Err(); err != nil {
			return nil, errors.New(errors.ErrCodeAllProvidersFailed, "generation cancelled", err)
		}

		text, err := provider.Generate(ctx, prompt)
		if err == nil {
			f.logger.Debug("provider succeeded",
				"provider", provider.Name(),
				"model", provider.Model())
			return &GenerateResult{
				Text:     text,
				Provider: provider.Name(),
				Model:    provider.Model(),
			}, nil
		}

		f.logger.Warn("provider failed, trying next",
			"provider", provider.Name(),
			"model", provider.Model(),
			"code", errors.GetCode(err),
			"error", err)
		failures = append(failures, provider.Name()+": "+err.Error())
	}

	return nil, errors.Newf(errors.ErrCodeAllProvidersFailed,
		"all %d providers failed: %s", len(f.providers), strings.Join(failures, "; "))
}

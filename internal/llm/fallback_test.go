package llm

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magic-research/ragd/internal/errors"
)

// fakeProvider returns a canned answer or error and counts calls.
type fakeProvider struct {
	name  string
	text  string
	err   error
	calls int
}

func (p *fakeProvider) Name() string  { return p.name }
func (p *fakeProvider) Model() string { return p.name + "-model" }

func (p *fakeProvider) Generate(ctx context.Context, prompt string) (string, error) {
	p.calls++
	if p.err != nil {
		return "", p.err
	}
	return p.text, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestFallback_FirstProviderWins(t *testing.T) {
	first := &fakeProvider{name: "openai", text: "answer from openai"}
	second := &fakeProvider{name: "groq", text: "answer from groq"}

	f, err := NewFallback([]Provider{first, second}, quietLogger())
	require.NoError(t, err)

	result, err := f.Generate(context.Background(), "question")
	require.NoError(t, err)
	assert.Equal(t, "answer from openai", result.Text)
	assert.Equal(t, "openai", result.Provider)

	// The second provider is never contacted.
	assert.Equal(t, 1, first.calls)
	assert.Zero(t, second.calls)
}

func TestFallback_SkipsFailingProviders(t *testing.T) {
	failing := &fakeProvider{
		name: "openai",
		err:  errors.Newf(errors.ErrCodeProviderAuth, "provider openai: authentication failed"),
	}
	quota := &fakeProvider{
		name: "groq",
		err:  errors.Newf(errors.ErrCodeProviderQuota, "provider groq: rate limited"),
	}
	working := &fakeProvider{name: "gemini", text: "answer from gemini"}

	f, err := NewFallback([]Provider{failing, quota, working}, quietLogger())
	require.NoError(t, err)

	result, err := f.Generate(context.Background(), "question")
	require.NoError(t, err)
	assert.Equal(t, "gemini", result.Provider)
	assert.Equal(t, "gemini-model", result.Model)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, quota.calls)
}

func TestFallback_AllProvidersFail(t *testing.T) {
	a := &fakeProvider{name: "openai", err: errors.Newf(errors.ErrCodeProviderFailed, "boom")}
	b := &fakeProvider{name: "groq", err: errors.Newf(errors.ErrCodeProviderFailed, "also boom")}

	f, err := NewFallback([]Provider{a, b}, quietLogger())
	require.NoError(t, err)

	_, err = f.Generate(context.Background(), "question")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeAllProvidersFailed))
	assert.Contains(t, err.Error(), "openai")
	assert.Contains(t, err.Error(), "groq")
}

func TestFallback_CancelledContextStopsChain(t *testing.T) {
	a := &fakeProvider{name: "openai", text: "never reached"}

	f, err := NewFallback([]Provider{a}, quietLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = f.Generate(ctx, "question")
	require.Error(t, err)
	assert.Zero(t, a.calls)
}

func TestNewFallback_NoProviders(t *testing.T) {
	_, err := NewFallback(nil, quietLogger())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNoProviders))
}

func TestFallback_Providers(t *testing.T) {
	f, err := NewFallback([]Provider{
		&fakeProvider{name: "openai"},
		&fakeProvider{name: "gemini"},
	}, quietLogger())
	require.NoError(t, err)

	assert.Equal(t, []string{"openai", "gemini"}, f.Providers())
}

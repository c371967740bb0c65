package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magic-research/ragd/internal/errors"
)

func TestOpenAIProvider_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)

		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "  the answer  "}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(OpenAIConfig{
		Name:    "openai",
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Model:   "gpt-4o-mini",
	})
	require.NoError(t, err)

	text, err := p.Generate(context.Background(), "what is this about?")
	require.NoError(t, err)
	assert.Equal(t, "the answer", text)
}

func TestOpenAIProvider_StatusCodeMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantCode string
	}{
		{"unauthorized", http.StatusUnauthorized, errors.ErrCodeProviderAuth},
		{"forbidden", http.StatusForbidden, errors.ErrCodeProviderAuth},
		{"rate limited", http.StatusTooManyRequests, errors.ErrCodeProviderQuota},
		{"server error", http.StatusInternalServerError, errors.ErrCodeProviderFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"error":{"message":"upstream says no"}}`, tt.status)
			}))
			defer srv.Close()

			p, err := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, APIKey: "k"})
			require.NoError(t, err)

			_, err = p.Generate(context.Background(), "q")
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, errors.GetCode(err))
			assert.Contains(t, err.Error(), "upstream says no")
		})
	}
}

func TestOpenAIProvider_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, APIKey: "k"})
	require.NoError(t, err)

	_, err = p.Generate(context.Background(), "q")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeProviderFailed, errors.GetCode(err))
}

func TestNewOpenAIProvider_RequiresKey(t *testing.T) {
	_, err := NewOpenAIProvider(OpenAIConfig{})
	assert.Error(t, err)
}

func TestGeminiProvider_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/models/gemini-1.5-flash:generateContent", r.URL.Path)
		require.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		resp := map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{
					{"text": "part one "},
					{"text": "part two"},
				}}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	p, err := NewGeminiProvider(GeminiConfig{BaseURL: srv.URL, APIKey: "test-key"})
	require.NoError(t, err)

	text, err := p.Generate(context.Background(), "question")
	require.NoError(t, err)
	assert.Equal(t, "part one part two", text)
	assert.Equal(t, "gemini", p.Name())
}

func TestGeminiProvider_AuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"API key invalid"}}`, http.StatusForbidden)
	}))
	defer srv.Close()

	p, err := NewGeminiProvider(GeminiConfig{BaseURL: srv.URL, APIKey: "bad"})
	require.NoError(t, err)

	_, err = p.Generate(context.Background(), "question")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeProviderAuth, errors.GetCode(err))
}

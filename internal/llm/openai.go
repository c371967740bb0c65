package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/magic-research/ragd/internal/errors"
)

// OpenAIConfig configures an OpenAI-compatible chat completion provider.
// Groq exposes the same API surface, so one client covers both.
type OpenAIConfig struct {
	// Name labels the provider in logs and results ("openai", "groq").
	Name string

	// BaseURL is the API base, e.g. "https://api.openai.com/v1" or
	// "https://api.groq.com/openai/v1".
	BaseURL string

	// APIKey authenticates requests.
	APIKey string

	// Model is the chat model identifier.
	Model string

	// Temperature controls sampling (0 = deterministic-ish).
	Temperature float64

	// MaxTokens caps the completion length.
	MaxTokens int

	// Timeout bounds a single request.
	Timeout time.Duration
}

// OpenAIProvider calls an OpenAI-compatible /chat/completions endpoint.
type OpenAIProvider struct {
	config OpenAIConfig
	client *http.Client
}

var _ Provider = (*OpenAIProvider)(nil)

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// NewOpenAIProvider creates a provider for an OpenAI-compatible API.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.Newf(errors.ErrCodeConfigInvalid, "provider %s: API key is required", cfg.Name)
	}
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &OpenAIProvider{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Name returns the provider label.
func (p *OpenAIProvider) Name() string { return p.config.Name }

// Model returns the configured model.
func (p *OpenAIProvider) Model() string { return p.config.Model }

// Generate sends a chat completion request and returns the first choice.
func (p *OpenAIProvider) Generate(ctx context.Context, prompt string) (string, error) {
	reqBody := chatRequest{
		Model: p.config.Model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
		Temperature: p.config.Temperature,
		MaxTokens:   p.config.MaxTokens,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.config.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", errors.Newf(errors.ErrCodeNetworkTimeout, "provider %s: request timed out after %s", p.config.Name, p.config.Timeout)
		}
		return "", errors.New(errors.ErrCodeProviderFailed,
			fmt.Sprintf("provider %s: request failed", p.config.Name), err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errors.New(errors.ErrCodeProviderFailed,
			fmt.Sprintf("provider %s: reading response", p.config.Name), err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", p.statusError(resp.StatusCode, body)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", errors.New(errors.ErrCodeProviderFailed,
			fmt.Sprintf("provider %s: malformed response", p.config.Name), err)
	}
	if len(chatResp.Choices) == 0 {
		return "", errors.Newf(errors.ErrCodeProviderFailed, "provider %s: response contained no choices", p.config.Name)
	}

	text := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	if text == "" {
		return "", errors.Newf(errors.ErrCodeProviderFailed, "provider %s: empty completion", p.config.Name)
	}
	return text, nil
}

func (p *OpenAIProvider) statusError(status int, body []byte) error {
	detail := upstreamErrorMessage(body)

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errors.Newf(errors.ErrCodeProviderAuth, "provider %s: authentication failed (HTTP %d): %s", p.config.Name, status, detail)
	case status == http.StatusTooManyRequests:
		return errors.Newf(errors.ErrCodeProviderQuota, "provider %s: rate limited (HTTP %d): %s", p.config.Name, status, detail)
	default:
		return errors.Newf(errors.ErrCodeProviderFailed, "provider %s: HTTP %d: %s", p.config.Name, status, detail)
	}
}

// upstreamErrorMessage pulls the error message out of an API error body,
// falling back to a truncated raw body.
func upstreamErrorMessage(body []byte) string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

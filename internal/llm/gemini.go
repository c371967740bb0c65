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

// GeminiConfig configures the Google Gemini provider.
type GeminiConfig struct {
	// BaseURL is the API base; defaults to the public endpoint.
	BaseURL string

	// APIKey authenticates requests.
	APIKey string

	// Model is the Gemini model identifier.
	Model string

	// Temperature controls sampling.
	Temperature float64

	// MaxTokens caps the completion length.
	MaxTokens int

	// Timeout bounds a single request.
	Timeout time.Duration
}

// GeminiProvider calls the Gemini generateContent API.
type GeminiProvider struct {
	config GeminiConfig
	client *http.Client
}

var _ Provider = (*GeminiProvider)(nil)

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// NewGeminiProvider creates a Gemini provider.
func NewGeminiProvider(cfg GeminiConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.Newf(errors.ErrCodeConfigInvalid, "provider gemini: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
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

	return &GeminiProvider{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Name returns "gemini".
func (p *GeminiProvider) Name() string { return "gemini" }

// Model returns the configured model.
func (p *GeminiProvider) Model() string { return p.config.Model }

// Generate sends a generateContent request and returns the first
// candidate's text.
func (p *GeminiProvider) Generate(ctx context.Context, prompt string) (string, error) {
	reqBody := geminiRequest{
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: prompt}}},
		},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     p.config.Temperature,
			MaxOutputTokens: p.config.MaxTokens,
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	url := fmt.Sprintf("%s/models/%s:generateContent", p.config.BaseURL, p.config.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", p.config.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", errors.Newf(errors.ErrCodeNetworkTimeout, "provider gemini: request timed out after %s", p.config.Timeout)
		}
		return "", errors.New(errors.ErrCodeProviderFailed, "provider gemini: request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errors.New(errors.ErrCodeProviderFailed, "provider gemini: reading response", err)
	}

	if resp.StatusCode != http.StatusOK {
		detail := upstreamErrorMessage(body)
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return "", errors.Newf(errors.ErrCodeProviderAuth, "provider gemini: authentication failed (HTTP %d): %s", resp.StatusCode, detail)
		case http.StatusTooManyRequests:
			return "", errors.Newf(errors.ErrCodeProviderQuota, "provider gemini: rate limited (HTTP %d): %s", resp.StatusCode, detail)
		default:
			return "", errors.Newf(errors.ErrCodeProviderFailed, "provider gemini: HTTP %d: %s", resp.StatusCode, detail)
		}
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(body, &geminiResp); err != nil {
		return "", errors.New(errors.ErrCodeProviderFailed, "provider gemini: malformed response", err)
	}
	if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		return "", errors.Newf(errors.ErrCodeProviderFailed, "provider gemini: response contained no candidates")
	}

	var sb strings.Builder
	for _, part := range geminiResp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", errors.Newf(errors.ErrCodeProviderFailed, "provider gemini: empty completion")
	}
	return text, nil
}

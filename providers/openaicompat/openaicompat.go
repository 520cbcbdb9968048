// Package openaicompat adapts any endpoint speaking the OpenAI chat
// completions dialect to the balancer's provider interface. Hosted APIs
// (OpenAI, Groq, Together, Fireworks) and local gateways (vLLM, Ollama)
// all accept this shape.
package openaicompat

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	llmerrors "github.com/llmlb/llmlb/pkg/errors"
	"github.com/llmlb/llmlb/pkg/provider"
	"github.com/llmlb/llmlb/pkg/types"
)

// Defaults applied when no option overrides them.
const (
	DefaultBaseURL      = "https://api.openai.com/v1"
	DefaultCostPerToken = 0.00003
	DefaultQuality      = 0.9
)

// DefaultModels is the small-to-large model ladder used when none is
// configured. Index zero serves small preferences, the last index large.
var DefaultModels = []string{"gpt-4o-mini", "gpt-4o"}

// Provider calls an OpenAI-compatible chat completions endpoint. It is safe
// for concurrent use.
type Provider struct {
	id           string
	baseURL      string
	apiKey       string
	models       []string
	costPerToken float64
	quality      float64
	headers      map[string]string
	client       *http.Client
}

// New creates a provider with the given identifier.
func New(id string, opts ...Option) *Provider {
	p := &Provider{
		id:           id,
		baseURL:      DefaultBaseURL,
		models:       DefaultModels,
		costPerToken: DefaultCostPerToken,
		quality:      DefaultQuality,
		headers:      make(map[string]string),
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
			Timeout: 2 * time.Minute,
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewFromConfig builds a provider from registration config. Connection
// settings ride in Metadata: base_url, api_key, models (comma separated),
// quality.
func NewFromConfig(cfg provider.Config) (provider.Provider, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("openaicompat provider requires an id")
	}

	opts := []Option{}
	if cfg.CostPerToken > 0 {
		opts = append(opts, WithCostPerToken(cfg.CostPerToken))
	}

	for key, value := range cfg.Metadata {
		switch key {
		case "base_url":
			opts = append(opts, WithBaseURL(value))
		case "api_key":
			opts = append(opts, WithAPIKey(value))
		case "models":
			opts = append(opts, WithModels(strings.Split(value, ",")...))
		case "quality":
			q, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, fmt.Errorf("openaicompat provider %s: bad quality %q: %w", cfg.ID, value, err)
			}
			opts = append(opts, WithQuality(q))
		}
	}

	return New(cfg.ID, opts...), nil
}

// ID returns the provider identifier.
func (p *Provider) ID() string {
	return p.id
}

// SupportedModels returns the configured model list.
func (p *Provider) SupportedModels() []string {
	return p.models
}

// BaseCostPerToken returns the configured USD price per token.
func (p *Provider) BaseCostPerToken() float64 {
	return p.costPerToken
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Complete issues one chat completion against the upstream endpoint.
func (p *Provider) Complete(ctx context.Context, req *types.Request) (*types.Response, error) {
	payload := chatRequest{
		Model:       p.modelFor(req),
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		MaxTokens:   req.EffectiveMaxTokens(),
		Temperature: req.Temperature,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	p.setHeaders(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		// url.Error wraps context cancellation and deadline errors; the
		// balancer classifies those itself.
		return nil, err
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, p.mapError(httpResp.StatusCode, raw)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, llmerrors.NewProviderError(p.id, httpResp.StatusCode, fmt.Sprintf("malformed response: %v", err))
	}
	if len(parsed.Choices) == 0 {
		return nil, llmerrors.NewProviderError(p.id, httpResp.StatusCode, "response carried no choices")
	}

	tokens := parsed.Usage.TotalTokens
	if tokens == 0 {
		tokens = parsed.Usage.PromptTokens + parsed.Usage.CompletionTokens
	}

	return &types.Response{
		ID:           req.ID,
		Content:      parsed.Choices[0].Message.Content,
		Provider:     p.id,
		Model:        parsed.Model,
		TokensUsed:   tokens,
		CostUSD:      float64(tokens) * p.costPerToken,
		QualityScore: p.quality,
	}, nil
}

// HealthCheck probes the models listing endpoint.
func (p *Provider) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	p.setHeaders(httpReq)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()
	_, _ = io.Copy(io.Discard, httpResp.Body)

	if httpResp.StatusCode != http.StatusOK {
		return llmerrors.NewProviderError(p.id, httpResp.StatusCode, "health probe rejected")
	}
	return nil
}

func (p *Provider) setHeaders(httpReq *http.Request) {
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	for k, v := range p.headers {
		httpReq.Header.Set(k, v)
	}
}

// mapError converts an upstream error response into the taxonomy. The
// OpenAI-compatible error envelope is parsed for the message when present.
func (p *Provider) mapError(status int, body []byte) error {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}

	message := http.StatusText(status)
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		message = envelope.Error.Message
	}

	switch status {
	case http.StatusTooManyRequests:
		return llmerrors.NewRateLimitError(p.id, message)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return llmerrors.NewTimeoutError(p.id, message)
	default:
		return llmerrors.NewProviderError(p.id, status, message)
	}
}

// modelFor maps the size preference onto the configured model ladder.
func (p *Provider) modelFor(req *types.Request) string {
	if len(p.models) == 0 {
		return DefaultModels[0]
	}
	idx := 0
	switch req.ModelPreference {
	case types.ModelMedium:
		idx = len(p.models) / 2
	case types.ModelLarge:
		idx = len(p.models) - 1
	}
	return p.models[idx]
}

package openaicompat

import (
	"net/http"
	"strings"
)

// Option configures a provider at construction.
type Option func(*Provider)

// WithBaseURL sets the API endpoint root, e.g. "https://api.groq.com/openai/v1".
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		if url != "" {
			p.baseURL = strings.TrimSuffix(url, "/")
		}
	}
}

// WithAPIKey sets the bearer token sent with every request.
func WithAPIKey(key string) Option {
	return func(p *Provider) {
		p.apiKey = key
	}
}

// WithModels sets the model ladder, ordered small to large.
func WithModels(models ...string) Option {
	return func(p *Provider) {
		if len(models) > 0 {
			p.models = models
		}
	}
}

// WithCostPerToken sets the USD price per token used for cost accounting.
func WithCostPerToken(cost float64) Option {
	return func(p *Provider) {
		if cost > 0 {
			p.costPerToken = cost
		}
	}
}

// WithQuality sets the quality prior reported with every successful
// completion, in [0, 1].
func WithQuality(quality float64) Option {
	return func(p *Provider) {
		if quality > 0 && quality <= 1 {
			p.quality = quality
		}
	}
}

// WithHeader adds a header to every request, e.g. an organization ID.
func WithHeader(key, value string) Option {
	return func(p *Provider) {
		p.headers[key] = value
	}
}

// WithHTTPClient replaces the default pooled client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		if client != nil {
			p.client = client
		}
	}
}

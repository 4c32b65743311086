package anthropic

import (
	"net/http"
	"strings"
	"time"

	analyst "github.com/haowjy/meridian-analyst-go"
)

const (
	// DefaultBaseURL is the public Messages API host
	DefaultBaseURL = "https://api.anthropic.com"

	// APIVersion is sent as the anthropic-version header
	APIVersion = "2023-06-01"

	messagesPath = "/v1/messages"
)

// Provider implements the analyst.Provider interface for Anthropic (Claude) models.
// It posts the request itself and hands the raw event-stream body back to the
// caller, so the stream is decoded by analyst.Decoder rather than the SDK.
type Provider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// Option configures a Provider.
type Option func(*Provider)

// WithBaseURL points the provider at another host (e.g., a test server).
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		if url != "" {
			p.baseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		if c != nil {
			p.httpClient = c
		}
	}
}

// NewProvider creates a new Anthropic provider with the given API key.
func NewProvider(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, analyst.ErrInvalidAPIKey
	}

	p := &Provider{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		// No overall timeout: a long analysis keeps the body open for minutes.
		httpClient: &http.Client{Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: 2 * time.Minute,
		}},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() analyst.ProviderID {
	return analyst.ProviderAnthropic
}

// SupportsModel returns true if this provider supports the given model.
// Anthropic models start with "claude-"
func (p *Provider) SupportsModel(model string) bool {
	return strings.HasPrefix(model, "claude-")
}

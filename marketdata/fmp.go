// Package marketdata implements the read-only market-data collaborator
// behind the analyst tools, backed by Financial Modeling Prep.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the FMP stable API root.
const DefaultBaseURL = "https://financialmodelingprep.com/stable"

// maxBodyBytes bounds one FMP response.
const maxBodyBytes = 8 << 20

// ErrMissingAPIKey is returned by NewFMPClient without an API key.
var ErrMissingAPIKey = errors.New("marketdata: missing FMP API key")

// StatusError is a non-2xx answer from FMP.
type StatusError struct {
	Endpoint   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("FMP API error: %d (%s)", e.StatusCode, e.Endpoint)
}

// FMPClient fetches quotes, daily history and company profiles.
// It is safe for concurrent use; every request waits on a shared limiter.
type FMPClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

// Option configures an FMPClient.
type Option func(*FMPClient)

// WithBaseURL overrides the API root (e.g., a test server).
func WithBaseURL(u string) Option {
	return func(c *FMPClient) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *FMPClient) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRateLimit caps requests per second with the given burst.
// A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *FMPClient) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger sets the client logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *FMPClient) { c.logger = logger }
}

// NewFMPClient creates a client. Defaults: stable API root, 15s timeout,
// 5 requests per second.
func NewFMPClient(apiKey string, opts ...Option) (*FMPClient, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	c := &FMPClient{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(5), 5),
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// RealtimeSnapshot returns the first quote record for ticker, or nil when
// FMP has none.
func (c *FMPClient) RealtimeSnapshot(ctx context.Context, ticker string) ([]byte, error) {
	body, err := c.get(ctx, "quote", url.Values{"symbol": {ticker}})
	if err != nil {
		return nil, err
	}
	return firstElement(body), nil
}

// HistoricalPrices returns up to days daily bars, newest first, as a JSON
// array. FMP answers either with a bare array or with {"historical": [...]}.
func (c *FMPClient) HistoricalPrices(ctx context.Context, ticker string, days int) ([]byte, error) {
	body, err := c.get(ctx, "historical-price-eod/full", url.Values{
		"symbol":     {ticker},
		"timeseries": {strconv.Itoa(days)},
	})
	if err != nil {
		return nil, err
	}

	history := gjson.ParseBytes(body)
	if h := history.Get("historical"); h.Exists() {
		history = h
	}
	if !history.IsArray() {
		return []byte("[]"), nil
	}
	return []byte(history.Raw), nil
}

// TickerDetails returns the first company profile record for ticker, or nil
// when FMP has none.
func (c *FMPClient) TickerDetails(ctx context.Context, ticker string) ([]byte, error) {
	body, err := c.get(ctx, "profile", url.Values{"symbol": {ticker}})
	if err != nil {
		return nil, err
	}
	return firstElement(body), nil
}

func (c *FMPClient) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	params.Set("apikey", c.apiKey)
	u := c.baseURL + "/" + strings.TrimPrefix(endpoint, "/") + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("FMP request %s failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("symbol", params.Get("symbol")).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("FMP request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// 403 usually means a premium endpoint or a bad key
		return nil, &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read FMP response: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("FMP %s returned invalid JSON", endpoint)
	}
	return body, nil
}

// firstElement returns the first element of a JSON array, or nil.
func firstElement(body []byte) []byte {
	first := gjson.GetBytes(body, "0")
	if !first.Exists() || first.Type == gjson.Null {
		return nil
	}
	return []byte(first.Raw)
}

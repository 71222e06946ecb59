package grid

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

const (
	// DefaultFetchTimeout is the default HTTP request timeout for batch fetches.
	DefaultFetchTimeout = 30 * time.Second

	// DefaultMaxRetries is the default number of attempts.
	DefaultMaxRetries = 3

	defaultBaseBackoff = 500 * time.Millisecond

	// maxResponseBytes caps a batch body at 256 MB.
	maxResponseBytes = 256 << 20
)

// FetchOption configures FetchBatchFromAPI behavior.
type FetchOption func(*fetchConfig)

type fetchConfig struct {
	timeout     time.Duration
	maxRetries  int
	baseBackoff time.Duration
	client      *http.Client
}

func defaultFetchConfig() fetchConfig {
	return fetchConfig{
		timeout:     DefaultFetchTimeout,
		maxRetries:  DefaultMaxRetries,
		baseBackoff: defaultBaseBackoff,
	}
}

// WithTimeout sets the HTTP request timeout.
func WithTimeout(d time.Duration) FetchOption {
	return func(c *fetchConfig) {
		c.timeout = d
	}
}

// WithMaxRetries sets the maximum number of attempts.
func WithMaxRetries(n int) FetchOption {
	return func(c *fetchConfig) {
		c.maxRetries = n
	}
}

// WithBaseBackoff sets the base delay for exponential backoff between retries.
func WithBaseBackoff(d time.Duration) FetchOption {
	return func(c *fetchConfig) {
		c.baseBackoff = d
	}
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) FetchOption {
	return func(c *fetchConfig) {
		c.client = client
	}
}

// FetchBatchFromAPI downloads and decodes a batch from apiURL, retrying
// transport failures and non-200 responses with exponential backoff. Decode
// failures are returned immediately.
func FetchBatchFromAPI(ctx context.Context, apiURL string, opts ...FetchOption) (*Batch, error) {
	if apiURL == "" {
		return nil, fmt.Errorf("fetch batch: API URL is empty")
	}

	cfg := defaultFetchConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.maxRetries < 1 {
		cfg.maxRetries = 1
	}

	client := cfg.client
	if client == nil {
		client = &http.Client{Timeout: cfg.timeout}
	}

	var lastErr error
	for attempt := range cfg.maxRetries {
		if attempt > 0 {
			backoff := cfg.baseBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("fetch batch: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}

		body, err := doFetch(ctx, client, apiURL)
		if err != nil {
			lastErr = err
			continue
		}

		b, err := DecodeBatch(body)
		if err != nil {
			return nil, fmt.Errorf("fetch batch: %w", err)
		}
		return b, nil
	}

	return nil, fmt.Errorf("fetch batch: all %d attempts failed: %w", cfg.maxRetries, lastErr)
}

// doFetch performs a single HTTP GET and returns the response body bytes.
func doFetch(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP GET %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP GET %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", url, err)
	}

	return body, nil
}

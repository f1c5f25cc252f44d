// Package apiclient is the shared JSON-over-HTTP client used by the
// metadata and listing providers.
package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/amaumene/homeflix/internal/cache"
)

// ErrNotFound is returned for 404 responses
var ErrNotFound = errors.New("not found")

// StatusError is a non-retryable HTTP error response
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API request failed with status %d: %s", e.Code, e.Body)
}

// TransientError wraps a failure that persisted through every retry
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient provider error: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth retrying later
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Options configures a Client
type Options struct {
	BaseURL           string
	BearerToken       string
	Timeout           time.Duration
	MaxRetries        int
	RetryBaseDelay    time.Duration
	RetryMultiplier   float64
	RequestsPerSecond float64 // 0 disables pacing

	// Successful response bodies are cached here when set
	Cache          *cache.TieredCache
	CacheNamespace cache.Namespace
	CacheTTL       time.Duration
}

// Client performs GET requests that decode JSON, with retries, pacing and caching
type Client struct {
	opts       Options
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logrus.Logger
}

// New creates a client from opts
func New(opts Options, logger *logrus.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = time.Second
	}
	if opts.RetryMultiplier < 1 {
		opts.RetryMultiplier = 2
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}

	c := &Client{
		opts:       opts,
		httpClient: &http.Client{Timeout: opts.Timeout},
		logger:     logger,
	}
	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return c
}

// GetJSON fetches path with the given query and decodes the body into result.
// 5xx, 429 and network failures are retried with exponential backoff; other
// 4xx responses are returned immediately.
func (c *Client) GetJSON(ctx context.Context, path string, params url.Values, result any) error {
	fullURL := c.opts.BaseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	if body, ok := c.cached(fullURL); ok {
		return decode(body, result)
	}

	body, err := c.fetch(ctx, fullURL)
	if err != nil {
		return err
	}

	if err := decode(body, result); err != nil {
		return err
	}
	if c.opts.Cache != nil {
		c.opts.Cache.Set(c.opts.CacheNamespace, fullURL, body)
	}
	return nil
}

func (c *Client) cached(key string) ([]byte, bool) {
	if c.opts.Cache == nil {
		return nil, false
	}
	v, ok := c.opts.Cache.Get(c.opts.CacheNamespace, key, c.opts.CacheTTL)
	if !ok {
		return nil, false
	}
	body, ok := v.([]byte)
	return body, ok
}

func (c *Client) fetch(ctx context.Context, fullURL string) ([]byte, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.opts.RetryBaseDelay
	policy.Multiplier = c.opts.RetryMultiplier
	policy.RandomizationFactor = 0.1
	policy.MaxElapsedTime = 0

	var body []byte
	attempt := 0
	operation := func() error {
		attempt++
		var err error
		body, err = c.do(ctx, fullURL)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		c.logger.WithFields(logrus.Fields{
			"url":     fullURL,
			"attempt": attempt,
		}).WithError(err).Debug("Request failed, will retry")
		return err
	}

	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(c.opts.MaxRetries)), ctx))
	if err == nil {
		return body, nil
	}

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return nil, perm.Err
	}
	if !retryable(err) {
		return nil, err
	}
	return nil, &TransientError{Err: err}
}

func (c *Client) do(ctx context.Context, fullURL string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	c.logger.WithField("url", fullURL).Debug("Making API request")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.opts.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.BearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: truncate(string(body), 200)}
	}
	return body, nil
}

// retryable classifies errors from a single attempt
func retryable(err error) bool {
	if errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	// transport failures wrapped by do()
	var ue *url.Error
	return errors.As(err, &ue)
}

func decode(body []byte, result any) error {
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/trogers1052/twstock-service/internal/common"
)

// DefaultTimeout is the per-request HTTP timeout
const DefaultTimeout = 15 * time.Second

// browserUserAgent is sent to upstreams that reject default client agents
const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// client is the shared HTTP plumbing of every fetcher
type client struct {
	source     string
	baseURL    string
	altBaseURL string
	http       *resty.Client
	limiter    *rate.Limiter
	policy     RetryPolicy
	sleep      Sleeper
	logger     arbor.ILogger
}

// Option configures a fetcher
type Option func(*client)

// WithBaseURL overrides the upstream base URL
func WithBaseURL(baseURL string) Option {
	return func(c *client) {
		c.baseURL = baseURL
	}
}

// WithAltBaseURL overrides the secondary host used by the Yahoo history strategy
func WithAltBaseURL(baseURL string) Option {
	return func(c *client) {
		c.altBaseURL = baseURL
	}
}

// WithLogger sets the logger
func WithLogger(logger arbor.ILogger) Option {
	return func(c *client) {
		c.logger = common.OrSilent(logger)
	}
}

// WithLimiter shares a rate limiter across fetchers and workers
func WithLimiter(limiter *rate.Limiter) Option {
	return func(c *client) {
		if limiter != nil {
			c.limiter = limiter
		}
	}
}

// WithRequestInterval replaces the limiter with one allowing a request per interval
func WithRequestInterval(interval time.Duration) Option {
	return func(c *client) {
		c.limiter = NewSourceLimiter(interval)
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *client) {
		if timeout > 0 {
			c.http.SetTimeout(timeout)
		}
	}
}

// WithRetryPolicy overrides the retry policy
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *client) {
		c.policy = policy
	}
}

// WithSleeper overrides how retry waits are performed
func WithSleeper(sleep Sleeper) Option {
	return func(c *client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

func newClient(source, baseURL string, interval time.Duration, policy RetryPolicy, opts []Option) *client {
	httpClient := resty.New()
	httpClient.SetTimeout(DefaultTimeout)
	httpClient.SetHeader("User-Agent", browserUserAgent)
	httpClient.SetHeader("Accept", "application/json")

	c := &client{
		source:  source,
		baseURL: baseURL,
		http:    httpClient,
		limiter: NewSourceLimiter(interval),
		policy:  policy,
		sleep:   ContextSleep,
		logger:  common.NewSilentLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.policy.MaxAttempts < 1 {
		c.policy.MaxAttempts = 1
	}
	return c
}

// getJSON performs a rate-limited GET and decodes the body into out,
// retrying according to the client's policy
func (c *client) getJSON(ctx context.Context, url string, params map[string]string, out interface{}) error {
	var lastErr error
	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}

		kind, err := c.attempt(ctx, url, params, out)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err

		wait, retry := c.policy.wait(kind)
		if !retry || attempt == c.policy.MaxAttempts {
			break
		}

		c.logger.Warn().
			Str("source", c.source).
			Str("url", url).
			Int("attempt", attempt).
			Str("wait", wait.String()).
			Err(err).
			Msg("Upstream request failed, retrying")

		if err := c.sleep(ctx, wait); err != nil {
			return err
		}
	}
	return lastErr
}

func (c *client) attempt(ctx context.Context, url string, params map[string]string, out interface{}) (attemptKind, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(url)
	if err != nil {
		if isTimeout(err) {
			return attemptTimeout, fmt.Errorf("request timed out: %w", err)
		}
		return attemptOther, fmt.Errorf("failed to execute request: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return classifyStatus(resp.StatusCode()), &HTTPError{
			StatusCode: resp.StatusCode(),
			Source:     c.source,
			URL:        url,
		}
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return attemptOther, fmt.Errorf("failed to decode response: %w", err)
	}
	return 0, nil
}

// flexString decodes a JSON string or number as text; upstream tables mix both
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexString(n.String())
		return nil
	}
	return fmt.Errorf("cannot unmarshal %s into string", string(data))
}

func cells(row []flexString) []string {
	out := make([]string, len(row))
	for i, v := range row {
		out[i] = string(v)
	}
	return out
}

func unixString(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}

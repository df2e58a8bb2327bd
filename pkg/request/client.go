package request

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"tripreel/pkg/cache"
	"tripreel/pkg/tracker"
	"tripreel/pkg/version"
)

var defaultUserAgent = fmt.Sprintf("tripreel/%s (itinerary animator)", version.Version)

// StatusError is returned for non-retryable HTTP status codes.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api error: status %d for %s", e.Code, e.URL)
}

// IsNotFound reports whether err is a 404 StatusError.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// Options configure a Client.
type Options struct {
	Retries   int
	Timeout   time.Duration
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		Retries:   3,
		Timeout:   20 * time.Second,
		BaseDelay: 500 * time.Millisecond,
		MaxDelay:  30 * time.Second,
	}
}

// Client handles HTTP requests with queuing, caching, and tracking.
type Client struct {
	httpClient *http.Client
	cache      cache.Cacher
	tracker    *tracker.Tracker
	backoff    *ProviderBackoff
	opts       Options

	// Queues per provider (domain)
	queues  map[string]chan job
	workers map[string]int
	mu      sync.Mutex // Protects queues and workers
}

// job represents a queued request.
type job struct {
	req      *http.Request
	headers  map[string]string
	cacheKey string
	respChan chan jobResult
}

type jobResult struct {
	body []byte
	err  error
}

// New creates a new Client. A nil cache disables caching.
func New(c cache.Cacher, t *tracker.Tracker, opts Options) *Client {
	if opts.Retries <= 0 {
		opts.Retries = 1
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultOptions().BaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = DefaultOptions().MaxDelay
	}
	if t == nil {
		t = tracker.New()
	}
	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		cache:      c,
		tracker:    t,
		backoff:    NewProviderBackoff(opts.BaseDelay, opts.MaxDelay),
		opts:       opts,
		queues:     make(map[string]chan job),
		workers:    make(map[string]int),
	}
}

// Tracker returns the statistics tracker.
func (c *Client) Tracker() *tracker.Tracker {
	return c.tracker
}

// SetWorkers sets how many requests may run in parallel for provider. It
// must be called before the first request to that provider; the default is 1.
func (c *Client) SetWorkers(provider string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n < 1 {
		n = 1
	}
	c.workers[provider] = n
}

// Get performs a GET request with queuing and caching if key is provided.
func (c *Client) Get(ctx context.Context, u, cacheKey string) ([]byte, error) {
	return c.GetWithHeaders(ctx, u, nil, cacheKey)
}

// GetWithHeaders performs a GET request with custom headers and optional caching.
func (c *Client) GetWithHeaders(ctx context.Context, u string, headers map[string]string, cacheKey string) ([]byte, error) {
	parsedURL, err := url.Parse(u)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	provider := NormalizeProvider(parsedURL.Host)

	// 1. Check Cache (Only if key is provided)
	if cacheKey != "" && c.cache != nil {
		if val, hit := c.cache.GetCache(ctx, cacheKey); hit {
			c.tracker.TrackCacheHit(provider)
			slog.Debug("Cache Hit", "provider", provider, "key", cacheKey)
			return val, nil
		}
		c.tracker.TrackCacheMiss(provider)
		slog.Debug("Cache Miss", "provider", provider, "key", cacheKey)
	}

	// 2. Enqueue Request
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	respChan := make(chan jobResult, 1)
	j := job{req: req, headers: headers, cacheKey: cacheKey, respChan: respChan}

	c.dispatch(provider, j)

	// 3. Wait for Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-respChan:
		return res.body, res.err
	}
}

// NormalizeProvider groups hosts that share a rate limit under one name.
func NormalizeProvider(host string) string {
	host = strings.ToLower(host)
	if h, _, found := strings.Cut(host, ":"); found {
		host = h
	}
	if host == "stadiamaps.com" || strings.HasSuffix(host, ".stadiamaps.com") {
		return "stadia"
	}
	if host == "openstreetmap.org" || strings.HasSuffix(host, ".openstreetmap.org") {
		return "osm"
	}
	return host
}

// dispatch sends the job to the provider's queue, creating the queue/workers if needed.
func (c *Client) dispatch(provider string, j job) {
	c.mu.Lock()
	q, ok := c.queues[provider]
	if !ok {
		q = make(chan job, 100)
		c.queues[provider] = q
		n := c.workers[provider]
		if n < 1 {
			n = 1
		}
		for i := 0; i < n; i++ {
			go c.worker(provider, q)
		}
	}
	c.mu.Unlock()

	// Blocks while the queue is full, throttling the caller
	select {
	case q <- j:
	case <-j.req.Context().Done():
		j.respChan <- jobResult{err: j.req.Context().Err()}
	}
}

// worker processes requests for a specific provider.
func (c *Client) worker(provider string, q <-chan job) {
	for j := range q {
		ctx := j.req.Context()
		if ctx.Err() != nil {
			slog.Debug("Job dropped from queue (context expired)", "provider", provider, "error", ctx.Err())
			j.respChan <- jobResult{err: ctx.Err()}
			continue
		}

		if err := c.backoff.Wait(ctx, provider); err != nil {
			j.respChan <- jobResult{err: err}
			continue
		}

		uaMatch := false
		for k, v := range j.headers {
			j.req.Header.Set(k, v)
			if http.CanonicalHeaderKey(k) == "User-Agent" {
				uaMatch = true
			}
		}
		if !uaMatch {
			j.req.Header.Set("User-Agent", defaultUserAgent)
		}

		body, err := c.executeWithBackoff(provider, j.req)

		if err == nil {
			c.tracker.TrackAPISuccess(provider, len(body))
			if j.cacheKey != "" && c.cache != nil {
				if err := c.cache.SetCache(context.Background(), j.cacheKey, body); err != nil {
					slog.Error("Failed to cache response", "url", j.req.URL, "error", err)
				}
			}
		} else {
			c.tracker.TrackAPIFailure(provider)
		}

		j.respChan <- jobResult{body: body, err: err}
	}
}

// executeWithBackoff attempts the request with exponential backoff on retryable errors.
func (c *Client) executeWithBackoff(provider string, req *http.Request) ([]byte, error) {
	maxAttempts := c.opts.Retries
	baseDelay := c.opts.BaseDelay

	retry := func(attempt int) error {
		sleepDur := time.Duration(math.Pow(2, float64(attempt))) * baseDelay
		select {
		case <-time.After(sleepDur):
			return nil
		case <-req.Context().Done():
			return req.Context().Err()
		}
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if req.Context().Err() != nil {
			return nil, req.Context().Err()
		}

		slog.Debug("Network Request", "host", req.URL.Host, "path", req.URL.Path, "attempt", attempt+1)
		resp, err := c.httpClient.Do(req)

		if err != nil {
			if req.Context().Err() != nil {
				return nil, req.Context().Err()
			}
			slog.Warn("Request failed, retrying", "url", req.URL, "attempt", attempt+1, "error", err)
			if werr := retry(attempt); werr != nil {
				return nil, werr
			}
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode < 600) {
			resp.Body.Close()
			retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
			slog.Warn("API Backoff", "status", resp.StatusCode, "url", req.URL, "attempt", attempt+1, "retry_after", retryAfter)
			c.backoff.RecordFailure(provider, retryAfter)
			if werr := c.backoff.Wait(req.Context(), provider); werr != nil {
				return nil, werr
			}
			continue
		}

		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return nil, &StatusError{Code: resp.StatusCode, URL: req.URL.Redacted()}
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read error: %w", err)
		}
		c.backoff.RecordSuccess(provider)
		return body, nil
	}

	return nil, fmt.Errorf("max retries exceeded")
}

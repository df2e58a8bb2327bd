package request

import (
	"context"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ProviderBackoff holds a cooldown per provider. Tile servers answer bursts
// with 429 and a Retry-After header; the cooldown honours it and otherwise
// doubles from the base delay.
type ProviderBackoff struct {
	mu        sync.Mutex
	providers map[string]*cooldown
	baseDelay time.Duration
	maxDelay  time.Duration
	now       func() time.Time
}

type cooldown struct {
	failures int
	until    time.Time
}

// NewProviderBackoff creates a backoff with the given delay bounds.
func NewProviderBackoff(baseDelay, maxDelay time.Duration) *ProviderBackoff {
	return &ProviderBackoff{
		providers: make(map[string]*cooldown),
		baseDelay: baseDelay,
		maxDelay:  maxDelay,
		now:       time.Now,
	}
}

// Wait blocks until the provider's cooldown is over or ctx is done.
func (b *ProviderBackoff) Wait(ctx context.Context, provider string) error {
	_, until := b.Cooldown(provider)
	wait := until.Sub(b.now())
	if wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RecordFailure starts or extends the provider's cooldown. retryAfter is
// the server's hint; zero means none was given.
func (b *ProviderBackoff) RecordFailure(provider string, retryAfter time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.providers[provider]
	if !ok {
		c = &cooldown{}
		b.providers[provider] = c
	}
	c.failures++
	c.until = b.now().Add(max(b.delay(c.failures), min(retryAfter, b.maxDelay)))
}

// RecordSuccess forgets one failure; the cooldown ends with the last one.
func (b *ProviderBackoff) RecordSuccess(provider string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.providers[provider]
	if !ok {
		return
	}
	if c.failures > 0 {
		c.failures--
	}
	if c.failures == 0 {
		delete(b.providers, provider)
	}
}

// Cooldown returns the provider's failure count and the end of its cooldown.
func (b *ProviderBackoff) Cooldown(provider string) (failures int, until time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.providers[provider]; ok {
		return c.failures, c.until
	}
	return 0, time.Time{}
}

// delay is base * 2^(failures-1), capped, plus up to 10% jitter.
func (b *ProviderBackoff) delay(failures int) time.Duration {
	d := b.baseDelay
	for i := 1; i < failures && d < b.maxDelay; i++ {
		d *= 2
	}
	d = min(d, b.maxDelay)
	return d + time.Duration(rand.Float64()*0.1*float64(d))
}

// parseRetryAfter reads a Retry-After header given in seconds or as an
// HTTP date. Missing or unparsable values yield zero.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return max(time.Duration(secs)*time.Second, 0)
	}
	if t, err := http.ParseTime(value); err == nil {
		return max(t.Sub(now), 0)
	}
	return 0
}

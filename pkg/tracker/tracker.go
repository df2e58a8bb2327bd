// Package tracker counts cache and network outcomes per provider host, so
// renders and the stats endpoint can report how much of a trip's tiles and
// photos came from the cache.
package tracker

import (
	"sort"
	"sync"
	"sync/atomic"
)

// ProviderStats is a point-in-time copy of one provider's counters.
type ProviderStats struct {
	CacheHits   int64 `json:"cache_hits"`
	CacheMisses int64 `json:"cache_misses"`
	APISuccess  int64 `json:"api_success"`
	APIFailures int64 `json:"api_failures"`
	Bytes       int64 `json:"bytes"`
}

// HitRate is the cache hit percentage, 0 when nothing was looked up.
func (s ProviderStats) HitRate() int64 {
	lookups := s.CacheHits + s.CacheMisses
	if lookups == 0 {
		return 0
	}
	return s.CacheHits * 100 / lookups
}

func (s ProviderStats) add(o ProviderStats) ProviderStats {
	return ProviderStats{
		CacheHits:   s.CacheHits + o.CacheHits,
		CacheMisses: s.CacheMisses + o.CacheMisses,
		APISuccess:  s.APISuccess + o.APISuccess,
		APIFailures: s.APIFailures + o.APIFailures,
		Bytes:       s.Bytes + o.Bytes,
	}
}

type counters struct {
	hits, misses, ok, failed, bytes atomic.Int64
}

func (c *counters) load() ProviderStats {
	return ProviderStats{
		CacheHits:   c.hits.Load(),
		CacheMisses: c.misses.Load(),
		APISuccess:  c.ok.Load(),
		APIFailures: c.failed.Load(),
		Bytes:       c.bytes.Load(),
	}
}

// Tracker is safe for concurrent use by the request workers.
type Tracker struct {
	mu        sync.RWMutex
	providers map[string]*counters
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{providers: make(map[string]*counters)}
}

func (t *Tracker) of(provider string) *counters {
	t.mu.RLock()
	c, ok := t.providers[provider]
	t.mu.RUnlock()
	if ok {
		return c
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok = t.providers[provider]; !ok {
		c = &counters{}
		t.providers[provider] = c
	}
	return c
}

func (t *Tracker) TrackCacheHit(provider string) { t.of(provider).hits.Add(1) }

func (t *Tracker) TrackCacheMiss(provider string) { t.of(provider).misses.Add(1) }

func (t *Tracker) TrackAPIFailure(provider string) { t.of(provider).failed.Add(1) }

// TrackAPISuccess counts a download of n bytes.
func (t *Tracker) TrackAPISuccess(provider string, n int) {
	c := t.of(provider)
	c.ok.Add(1)
	c.bytes.Add(int64(n))
}

// Reset zeroes every counter and forgets the providers.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.providers = make(map[string]*counters)
}

// Snapshot copies the counters of every provider.
func (t *Tracker) Snapshot() map[string]ProviderStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]ProviderStats, len(t.providers))
	for name, c := range t.providers {
		out[name] = c.load()
	}
	return out
}

// Providers returns the known provider names, sorted.
func (t *Tracker) Providers() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.providers))
	for name := range t.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Totals sums the counters of all providers.
func (t *Tracker) Totals() ProviderStats {
	var total ProviderStats
	for _, s := range t.Snapshot() {
		total = total.add(s)
	}
	return total
}

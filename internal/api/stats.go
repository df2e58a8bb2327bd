package api

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"tripreel/pkg/tracker"
)

// CacheStats reports the size of the persistent cache.
type CacheStats interface {
	CacheStats(ctx context.Context) (entries, bytes int64, err error)
}

// StatsHandler reports request, cache and runtime statistics.
type StatsHandler struct {
	tracker  *tracker.Tracker
	cache    CacheStats
	sessions Sessions
	hub      *Hub
	started  time.Time
}

// NewStatsHandler creates a StatsHandler. cache, sessions and hub may be nil.
func NewStatsHandler(t *tracker.Tracker, cache CacheStats, sessions Sessions, hub *Hub) *StatsHandler {
	return &StatsHandler{tracker: t, cache: cache, sessions: sessions, hub: hub, started: time.Now()}
}

type ProviderStatsDTO struct {
	CacheHits   int64 `json:"cache_hits"`
	CacheMisses int64 `json:"cache_misses"`
	APISuccess  int64 `json:"api_success"`
	APIFailures int64 `json:"api_errors"`
	HitRate     int64 `json:"hit_rate"`
	Bytes       int64 `json:"bytes"`
}

type CacheStatsDTO struct {
	Entries int64 `json:"entries"`
	Bytes   int64 `json:"bytes"`
}

type RuntimeStats struct {
	UptimeSec  int64  `json:"uptime_sec"`
	Goroutines int    `json:"goroutines"`
	HeapMB     uint64 `json:"heap_mb"`
	SysMB      uint64 `json:"sys_mb"`
}

type PlaybackStats struct {
	State    string `json:"state"`
	Segment  int    `json:"segment"`
	Segments int    `json:"segments"`
	Running  bool   `json:"running"`
	Viewers  int    `json:"viewers"`
}

type StatsResponse struct {
	Runtime   RuntimeStats                `json:"runtime"`
	Cache     *CacheStatsDTO              `json:"cache,omitempty"`
	Playback  PlaybackStats               `json:"playback"`
	Providers map[string]ProviderStatsDTO `json:"providers"`
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	resp := StatsResponse{
		Runtime: RuntimeStats{
			UptimeSec:  int64(time.Since(h.started).Seconds()),
			Goroutines: runtime.NumGoroutine(),
			HeapMB:     bToMb(mem.HeapAlloc),
			SysMB:      bToMb(mem.Sys),
		},
		Providers: make(map[string]ProviderStatsDTO),
	}

	if h.cache != nil {
		if entries, size, err := h.cache.CacheStats(r.Context()); err == nil {
			resp.Cache = &CacheStatsDTO{Entries: entries, Bytes: size}
		}
	}
	if h.sessions != nil {
		st := h.sessions.Status()
		resp.Playback = PlaybackStats{
			State:    st.Playback.State.String(),
			Segment:  st.Playback.Segment,
			Segments: st.Playback.Segments,
			Running:  st.Running,
		}
	}
	if h.hub != nil {
		resp.Playback.Viewers = h.hub.Clients()
	}

	if h.tracker != nil {
		for provider, stats := range h.tracker.Snapshot() {
			resp.Providers[provider] = ProviderStatsDTO{
				CacheHits:   stats.CacheHits,
				CacheMisses: stats.CacheMisses,
				APISuccess:  stats.APISuccess,
				APIFailures: stats.APIFailures,
				HitRate:     stats.HitRate(),
				Bytes:       stats.Bytes,
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}

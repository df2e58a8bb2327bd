package api

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripreel/pkg/mapview"
	"tripreel/pkg/playback"
	"tripreel/pkg/tracker"
	"tripreel/pkg/version"
)

type fakeRenderer struct {
	err  error
	seen []uint64
}

func (f *fakeRenderer) Render(_ context.Context, s mapview.Snapshot) (*image.RGBA, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.seen = append(f.seen, s.Version)
	return image.NewRGBA(image.Rect(0, 0, s.Width, s.Height)), nil
}

type fakeCache struct{}

func (fakeCache) CacheStats(context.Context) (entries, bytes int64, err error) { return 12, 4096, nil }

func TestServer_Metadata(t *testing.T) {
	h := newTestServer(&fakeSessions{})

	w := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())

	w = do(t, h, http.MethodGet, "/api/version", "")
	assert.JSONEq(t, `{"version": "`+version.Version+`"}`, w.Body.String())

	w = do(t, h, http.MethodGet, "/api/styles", "")
	var styles []styleDTO
	require.NoError(t, json.NewDecoder(w.Body).Decode(&styles))
	require.Len(t, styles, 6)
	defaults := 0
	for _, s := range styles {
		if s.Default {
			defaults++
			assert.Equal(t, "osm_bright", s.Name)
		}
		if s.Name == "stamen_watercolor" {
			assert.False(t, s.Retina)
			assert.Equal(t, "jpg", s.Format)
		}
	}
	assert.Equal(t, 1, defaults)

	w = do(t, h, http.MethodGet, "/api/frame.png", "")
	assert.Equal(t, http.StatusNotFound, w.Code, "frame route is optional")
}

func TestFrameHandler(t *testing.T) {
	scene := &Scene{}
	r := &fakeRenderer{}
	pb := NewPlaybackHandler(&fakeSessions{}, playback.DefaultOptions())
	h := NewServer(":0", pb, NewFrameHandler(scene, r), nil, nil, nil).Handler

	w := do(t, h, http.MethodGet, "/api/frame.png", "")
	assert.Equal(t, http.StatusNotFound, w.Code, "no map before the first playback")

	m := mapview.New(64, 48, "osm_bright")
	scene.Set(m)
	w = do(t, h, http.MethodGet, "/api/frame.png", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	img, err := png.Decode(w.Body)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 48), img.Bounds())
	assert.Equal(t, []uint64{m.Version()}, r.seen)

	r.err = errors.New("tile server down")
	w = do(t, h, http.MethodGet, "/api/frame.png", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestStatsHandler(t *testing.T) {
	tr := tracker.New()
	tr.TrackCacheHit("tiles.stadiamaps.com")
	tr.TrackCacheHit("tiles.stadiamaps.com")
	tr.TrackCacheHit("tiles.stadiamaps.com")
	tr.TrackCacheMiss("tiles.stadiamaps.com")
	tr.TrackAPISuccess("tiles.stadiamaps.com", 2048)

	f := &fakeSessions{running: true}
	stats := NewStatsHandler(tr, fakeCache{}, f, NewHub(&Scene{}, 0))
	pb := NewPlaybackHandler(f, playback.DefaultOptions())
	h := NewServer(":0", pb, nil, stats, nil, nil).Handler

	w := do(t, h, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp StatsResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	p := resp.Providers["tiles.stadiamaps.com"]
	assert.Equal(t, int64(75), p.HitRate)
	assert.Equal(t, int64(1), p.APISuccess)
	require.NotNil(t, resp.Cache)
	assert.Equal(t, int64(12), resp.Cache.Entries)
	assert.Equal(t, "animating", resp.Playback.State)
	assert.True(t, resp.Playback.Running)
	assert.Equal(t, 0, resp.Playback.Viewers)
	assert.Greater(t, resp.Runtime.Goroutines, 0)
}

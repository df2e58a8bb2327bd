package tracker

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker(t *testing.T) {
	tr := New()
	const tiles = "tiles.stadiamaps.com"
	assert.Empty(t, tr.Snapshot())

	tr.TrackCacheHit(tiles)
	tr.TrackCacheHit(tiles)
	tr.TrackCacheHit(tiles)
	tr.TrackCacheMiss(tiles)
	tr.TrackAPISuccess(tiles, 2048)
	tr.TrackAPIFailure("photos.example.com")

	stats := tr.Snapshot()
	require.Contains(t, stats, tiles)
	assert.Equal(t, ProviderStats{CacheHits: 3, CacheMisses: 1, APISuccess: 1, Bytes: 2048}, stats[tiles])
	assert.EqualValues(t, 75, stats[tiles].HitRate())
	assert.Zero(t, stats["photos.example.com"].HitRate())

	assert.Equal(t, []string{"photos.example.com", tiles}, tr.Providers())
	assert.Equal(t, ProviderStats{CacheHits: 3, CacheMisses: 1, APISuccess: 1, APIFailures: 1, Bytes: 2048}, tr.Totals())

	tr.Reset()
	assert.Empty(t, tr.Snapshot())
	assert.Equal(t, ProviderStats{}, tr.Totals())
}

func TestTracker_Concurrent(t *testing.T) {
	tr := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.TrackCacheMiss("tiles")
			tr.TrackAPISuccess("tiles", 10)
		}()
	}
	wg.Wait()

	s := tr.Snapshot()["tiles"]
	assert.EqualValues(t, 50, s.CacheMisses)
	assert.EqualValues(t, 500, s.Bytes)
}

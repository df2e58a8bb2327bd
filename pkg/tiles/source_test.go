package tiles

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripreel/pkg/geo"
)

type fakeFetcher struct {
	mu      sync.Mutex
	calls   int32
	urls    []string
	keys    []string
	fail    map[string]bool
	workers int
}

func (f *fakeFetcher) SetWorkers(provider string, n int) { f.workers = n }

func (f *fakeFetcher) GetWithHeaders(ctx context.Context, u string, _ map[string]string, key string) ([]byte, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	f.urls = append(f.urls, u)
	f.keys = append(f.keys, key)
	fail := f.fail[key]
	f.mu.Unlock()
	if fail {
		return nil, errors.New("boom")
	}
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(0, 0, color.RGBA{1, 2, 3, 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func TestSource_TileCachesInMemory(t *testing.T) {
	f := &fakeFetcher{}
	s := NewSource(f, OSMBright, SourceOptions{Retina: true, Concurrency: 3})
	assert.Equal(t, 3, f.workers)
	assert.Equal(t, 512, s.TileSize())

	ctx := context.Background()
	img, err := s.Tile(ctx, Tile{Z: 2, X: 1, Y: 1})
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dx())

	_, err = s.Tile(ctx, Tile{Z: 2, X: 1, Y: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 1, f.calls)
	assert.Equal(t, "tile/osm_bright/2/1/1@2x", f.keys[0])

	s.SetStyle(StamenWatercolor)
	_, err = s.Tile(ctx, Tile{Z: 2, X: 1, Y: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 2, f.calls)
	assert.Equal(t, "tile/stamen_watercolor/2/1/1", f.keys[1])
	assert.Contains(t, f.urls[1], ".jpg")
}

func TestSource_WrapsAndRejects(t *testing.T) {
	f := &fakeFetcher{}
	s := NewSource(f, OSMBright, SourceOptions{})
	ctx := context.Background()

	_, err := s.Tile(ctx, Tile{Z: 2, X: -1, Y: 0})
	require.NoError(t, err)
	assert.Equal(t, "tile/osm_bright/2/3/0", f.keys[0])

	_, err = s.Tile(ctx, Tile{Z: 2, X: 0, Y: 4})
	assert.ErrorIs(t, err, ErrNoTile)
}

func TestSource_Prefetch(t *testing.T) {
	f := &fakeFetcher{fail: map[string]bool{"tile/osm_bright/3/1/1": true}}
	s := NewSource(f, OSMBright, SourceOptions{Concurrency: 2})

	tiles := []Tile{{3, 0, 0}, {3, 1, 1}, {3, 2, 2}, {3, 3, 3}}
	var progress int32
	failed, err := s.Prefetch(context.Background(), tiles, func() { atomic.AddInt32(&progress, 1) })
	require.NoError(t, err)
	assert.Equal(t, 1, failed)
	assert.EqualValues(t, 4, progress)
}

func TestCovering(t *testing.T) {
	assert.Nil(t, Covering(geo.EmptyBound(), 3))

	world := orb.Bound{
		Min: orb.Point{-geo.OriginShift + 1, -geo.OriginShift + 1},
		Max: orb.Point{geo.OriginShift - 1, geo.OriginShift - 1},
	}
	assert.Len(t, Covering(world, 0), 1)
	assert.Len(t, Covering(world, 2), 16)

	p := geo.ToProjected(orb.Point{-0.1276, 51.5072})
	single := Covering(orb.Bound{Min: p, Max: p}, 10)
	require.Len(t, single, 1)
	assert.Equal(t, Tile{Z: 10, X: 511, Y: 340}, single[0])
}

func TestViewportBound(t *testing.T) {
	b := ViewportBound(orb.Point{0, 0}, 0, 256, 256)
	assert.InDelta(t, -geo.OriginShift, b.Min[0], 1e-6)
	assert.InDelta(t, geo.OriginShift, b.Max[1], 1e-6)
	assert.Len(t, Covering(ViewportBound(orb.Point{0, 0}, 3, 500, 500), 3), 4)
}

func TestLRU(t *testing.T) {
	c := newLRU(2)
	a := image.NewRGBA(image.Rect(0, 0, 1, 1))
	c.put("a", a)
	c.put("b", a)
	_, _ = c.get("a")
	c.put("c", a)

	_, okA := c.get("a")
	_, okB := c.get("b")
	assert.True(t, okA)
	assert.False(t, okB, "least recently used entry evicted")
	assert.Equal(t, 2, c.len())
}

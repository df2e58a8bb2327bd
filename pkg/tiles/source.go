package tiles

import (
	"bytes"
	"container/list"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // tile decoders
	_ "image/png"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"

	"tripreel/pkg/geo"
)

// ErrNoTile is returned for tiles outside the world.
var ErrNoTile = errors.New("tile outside the world")

// Tile addresses a slippy-map tile.
type Tile struct {
	Z, X, Y int
}

func (t Tile) String() string {
	return fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y)
}

// Fetcher downloads (and caches) raw tile bytes. *request.Client satisfies it.
type Fetcher interface {
	GetWithHeaders(ctx context.Context, u string, headers map[string]string, cacheKey string) ([]byte, error)
}

// workerSetter is implemented by fetchers with per-provider queues.
type workerSetter interface {
	SetWorkers(provider string, n int)
}

// SourceOptions configure a Source.
type SourceOptions struct {
	APIKey      string
	Retina      bool
	Concurrency int
	MemoryTiles int // decoded tiles kept in memory
}

// Source serves decoded tiles for one style.
type Source struct {
	fetcher Fetcher
	opts    SourceOptions

	mu    sync.RWMutex
	style Style

	mem *lru
}

// NewSource creates a tile source.
func NewSource(f Fetcher, style Style, opts SourceOptions) *Source {
	if opts.Concurrency < 1 {
		opts.Concurrency = 4
	}
	if opts.MemoryTiles < 1 {
		opts.MemoryTiles = 256
	}
	if ws, ok := f.(workerSetter); ok {
		ws.SetWorkers("stadia", opts.Concurrency)
	}
	return &Source{
		fetcher: f,
		opts:    opts,
		style:   style,
		mem:     newLRU(opts.MemoryTiles),
	}
}

// Style returns the active style.
func (s *Source) Style() Style {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.style
}

// SetStyle switches the active style.
func (s *Source) SetStyle(st Style) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.style = st
}

// TileSize returns the served pixel size of tiles of the active style.
func (s *Source) TileSize() int {
	return s.Style().TileSize(s.opts.Retina)
}

func (s *Source) cacheKey(st Style, t Tile) string {
	scale := ""
	if st.TileSize(s.opts.Retina) == 512 {
		scale = "@2x"
	}
	return fmt.Sprintf("tile/%s/%d/%d/%d%s", st, t.Z, t.X, t.Y, scale)
}

// Normalize wraps X around the antimeridian. Tiles outside the world
// vertically yield ErrNoTile.
func Normalize(t Tile) (Tile, error) {
	if t.Z < 0 {
		return t, ErrNoTile
	}
	n := 1 << t.Z
	if t.Y < 0 || t.Y >= n {
		return t, ErrNoTile
	}
	t.X = ((t.X % n) + n) % n
	return t, nil
}

// Tile returns the decoded tile: memory cache, then the fetcher (which
// consults the SQLite cache), then the network.
func (s *Source) Tile(ctx context.Context, t Tile) (image.Image, error) {
	t, err := Normalize(t)
	if err != nil {
		return nil, err
	}
	st := s.Style()
	key := s.cacheKey(st, t)

	if img, ok := s.mem.get(key); ok {
		return img, nil
	}

	data, err := s.fetcher.GetWithHeaders(ctx, st.URL(t.Z, t.X, t.Y, s.opts.Retina, s.opts.APIKey), nil, key)
	if err != nil {
		return nil, fmt.Errorf("tile %s: %w", t, err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("tile %s: decode: %w", t, err)
	}

	s.mem.put(key, img)
	return img, nil
}

// Prefetch downloads tiles with bounded concurrency. Individual failures are
// logged; the returned count is the number of tiles that failed. progress,
// if set, is called once per tile.
func (s *Source) Prefetch(ctx context.Context, tiles []Tile, progress func()) (int, error) {
	var failed int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)

	for _, t := range tiles {
		t := t
		g.Go(func() error {
			if progress != nil {
				defer progress()
			}
			if _, err := s.Tile(gctx, t); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				atomic.AddInt64(&failed, 1)
				slog.Debug("Tiles: prefetch failed", "tile", t.String(), "error", err)
			}
			return nil
		})
	}
	err := g.Wait()
	return int(failed), err
}

// Covering returns the tiles at integer zoom z intersecting a projected bound.
func Covering(b orb.Bound, z int) []Tile {
	if geo.IsEmpty(b) {
		return nil
	}
	x0, y0 := geo.WorldPixel(orb.Point{b.Min[0], b.Max[1]}, float64(z), 256)
	x1, y1 := geo.WorldPixel(orb.Point{b.Max[0], b.Min[1]}, float64(z), 256)

	n := 1 << z
	tx0, ty0 := int(math.Floor(x0/256)), int(math.Floor(y0/256))
	tx1, ty1 := int(math.Floor(x1/256)), int(math.Floor(y1/256))
	ty0 = max(ty0, 0)
	ty1 = min(ty1, n-1)

	var out []Tile
	seen := make(map[Tile]struct{})
	for y := ty0; y <= ty1; y++ {
		for x := tx0; x <= tx1; x++ {
			t, err := Normalize(Tile{Z: z, X: x, Y: y})
			if err != nil {
				continue
			}
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

// ViewportBound returns the projected bound visible in a w x h viewport
// centered on a projected point at a fractional zoom.
func ViewportBound(center orb.Point, zoom float64, w, h int) orb.Bound {
	res := geo.Resolution(zoom, 256)
	hw, hh := float64(w)/2*res, float64(h)/2*res
	return orb.Bound{
		Min: orb.Point{center[0] - hw, center[1] - hh},
		Max: orb.Point{center[0] + hw, center[1] + hh},
	}
}

// lru is a small least-recently-used cache of decoded tiles.
type lru struct {
	mu    sync.Mutex
	cap   int
	ll    *list.List
	items map[string]*list.Element
}

type lruEntry struct {
	key string
	img image.Image
}

func newLRU(capacity int) *lru {
	return &lru{cap: capacity, ll: list.New(), items: make(map[string]*list.Element)}
}

func (c *lru) get(key string) (image.Image, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.ll.MoveToFront(el)
		return el.Value.(*lruEntry).img, true
	}
	return nil, false
}

func (c *lru) put(key string, img image.Image) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.ll.MoveToFront(el)
		el.Value.(*lruEntry).img = img
		return
	}
	c.items[key] = c.ll.PushFront(&lruEntry{key: key, img: img})
	for c.ll.Len() > c.cap {
		last := c.ll.Back()
		c.ll.Remove(last)
		delete(c.items, last.Value.(*lruEntry).key)
	}
}

func (c *lru) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

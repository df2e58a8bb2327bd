package render

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripreel/pkg/geo"
	"tripreel/pkg/mapview"
	"tripreel/pkg/media"
	"tripreel/pkg/timing"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func twoFrameGIF(t *testing.T, delay int) []byte {
	t.Helper()
	pal := color.Palette{color.Transparent, color.RGBA{255, 0, 0, 255}, color.RGBA{0, 0, 255, 255}}
	f1 := image.NewPaletted(image.Rect(0, 0, 4, 4), pal)
	f2 := image.NewPaletted(image.Rect(0, 0, 4, 4), pal)
	for i := range f1.Pix {
		f1.Pix[i] = 1
		f2.Pix[i] = 2
	}
	var buf bytes.Buffer
	require.NoError(t, gif.EncodeAll(&buf, &gif.GIF{
		Image: []*image.Paletted{f1, f2},
		Delay: []int{delay, delay},
	}))
	return buf.Bytes()
}

func thumb(w, h int) *media.Thumbnail {
	return &media.Thumbnail{Source: "p.jpg", Image: image.NewRGBA(image.Rect(0, 0, w, h)), DataURL: "data:image/jpeg;base64,AA"}
}

func newTestRenderer() (*Renderer, *mapview.Map, *timing.Virtual) {
	clk := timing.NewVirtual(t0, 25)
	m := mapview.New(800, 600, "osm_bright")
	return NewRenderer(m, clk), m, clk
}

func TestPhotoOffset(t *testing.T) {
	tests := []struct {
		slot int
		want [2]float64
	}{
		{0, [2]float64{-141, -62}},
		{1, [2]float64{-50.5, 40}},
		{2, [2]float64{40, -62}},
		{3, [2]float64{-141, -62}},
		{-1, [2]float64{40, -62}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PhotoOffset(tt.slot, 101, 124), "slot %d", tt.slot)
	}
}

func TestBound_Monotonic(t *testing.T) {
	r, _, _ := newTestRenderer()
	points := []orb.Point{
		geo.ToProjected(orb.Point{-74.0, 40.7}),
		geo.ToProjected(orb.Point{-0.1, 51.5}),
		geo.ToProjected(orb.Point{2.35, 48.85}),
		geo.ToProjected(orb.Point{139.7, 35.7}),
	}

	prev := r.Bound()
	assert.True(t, geo.IsEmpty(prev))
	for i, p := range points {
		if i%2 == 0 {
			r.PlaceMarker(p, nil)
		} else {
			r.PlacePhotoNear(p, thumb(101, 124), i, len(points))
		}
		next := r.Bound()
		assert.True(t, geo.ContainsBound(next, prev), "call %d shrank the bound", i)
		assert.True(t, next.Contains(p))
		prev = next
	}

	h := r.PlaceMarker(points[0], nil)
	r.MoveMarker(h, geo.ToProjected(orb.Point{170, -40}))
	r.RemoveMarker(h)
	assert.Equal(t, prev, r.Bound(), "move and remove keep the bound")
}

func TestPlaceMarker_Style(t *testing.T) {
	r, m, _ := newTestRenderer()
	icon := image.NewRGBA(image.Rect(0, 0, 8, 8))
	h := r.PlaceMarker(orb.Point{1, 2}, &MarkerStyle{Icon: icon, Label: "Paris", Color: "#000000"})

	l, ok := m.Layer(int(h))
	require.True(t, ok)
	assert.Equal(t, mapview.KindMarker, l.Kind)
	assert.Equal(t, "Paris", l.Label)
	assert.Equal(t, "#000000", l.Color)
	assert.Equal(t, float64(DefaultMarkerSize), l.Radius)
	assert.Same(t, icon, l.Image)
}

func TestPlacePhotoNear(t *testing.T) {
	r, m, _ := newTestRenderer()
	h := r.PlacePhotoNear(orb.Point{5, 5}, thumb(101, 124), 1, 3)
	l, ok := m.Layer(int(h))
	require.True(t, ok)
	assert.Equal(t, mapview.KindPhoto, l.Kind)
	assert.Equal(t, [2]float64{-50.5, 40}, l.Offset)
	assert.NotEmpty(t, l.ImageURL)
}

func TestRemoveMarker_Idempotent(t *testing.T) {
	r, m, _ := newTestRenderer()
	h := r.PlaceMarker(orb.Point{}, nil)
	assert.True(t, r.RemoveMarker(h))
	assert.False(t, r.RemoveMarker(h))
	assert.Empty(t, m.Snapshot().Layers)
}

func TestAnimatedMarker_FollowsClock(t *testing.T) {
	r, m, clk := newTestRenderer()
	a, err := DecodeGIF(bytes.NewReader(twoFrameGIF(t, 10)))
	require.NoError(t, err)
	require.Len(t, a.Frames, 2)

	h := r.PlaceAnimatedMarker(orb.Point{}, a)
	l, _ := m.Layer(int(h))
	assert.Equal(t, 0, l.Frame)

	require.NoError(t, clk.Sleep(context.Background(), 120*time.Millisecond))
	l, _ = m.Layer(int(h))
	assert.Equal(t, 1, l.Frame)

	require.NoError(t, clk.Sleep(context.Background(), 100*time.Millisecond))
	l, _ = m.Layer(int(h))
	assert.Equal(t, 0, l.Frame, "animation loops")

	r.RemoveMarker(h)
	r.Close()
	require.NoError(t, clk.Sleep(context.Background(), time.Second))
}

func TestReset(t *testing.T) {
	r, m, _ := newTestRenderer()
	r.PlaceMarker(orb.Point{1, 1}, nil)
	r.SetLine(orb.LineString{{0, 0}, {1, 1}})
	r.Reset()
	assert.True(t, geo.IsEmpty(r.Bound()))
	s := m.Snapshot()
	assert.Empty(t, s.Layers)
	assert.Empty(t, s.Line)
}

func TestDecodeGIF(t *testing.T) {
	a, err := DecodeGIF(bytes.NewReader(twoFrameGIF(t, 0)))
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{minFrameDelay, minFrameDelay}, a.Delays)
	assert.Equal(t, 200*time.Millisecond, a.Duration())

	r, _, _, _ := a.FrameAt(50 * time.Millisecond).At(0, 0).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	_, _, b, _ := a.FrameAt(150 * time.Millisecond).At(0, 0).RGBA()
	assert.Equal(t, uint32(0xffff), b)

	_, err = DecodeGIF(bytes.NewReader([]byte("not a gif")))
	assert.Error(t, err)
}

func TestFrameIndex_Static(t *testing.T) {
	a := Static(image.NewRGBA(image.Rect(0, 0, 1, 1)))
	assert.Equal(t, 0, a.FrameIndex(time.Hour))
}

func TestLoadAnimatedIcon(t *testing.T) {
	dir := t.TempDir()
	gifPath := filepath.Join(dir, "traveler.gif")
	require.NoError(t, os.WriteFile(gifPath, twoFrameGIF(t, 5), 0o644))

	a, err := LoadAnimatedIcon(gifPath, 0.5)
	require.NoError(t, err)
	require.Len(t, a.Frames, 2)
	assert.Equal(t, 2, a.Frames[0].Bounds().Dx())

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 10, 6))))
	pngPath := filepath.Join(dir, "pin.png")
	require.NoError(t, os.WriteFile(pngPath, buf.Bytes(), 0o644))

	a, err = LoadAnimatedIcon(pngPath, 1)
	require.NoError(t, err)
	require.Len(t, a.Frames, 1)
	assert.Equal(t, 10, a.Frames[0].Bounds().Dx())

	_, err = LoadAnimatedIcon(filepath.Join(dir, "missing.png"), 1)
	assert.Error(t, err)
}

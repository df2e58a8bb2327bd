package render

import (
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"io"
	"os"
	"time"
)

// minFrameDelay replaces GIF delays of 0 or 1 hundredths, as browsers do.
const minFrameDelay = 100 * time.Millisecond

// AnimatedImage is a decoded multi-frame image with fully composited frames.
type AnimatedImage struct {
	Frames []image.Image
	Delays []time.Duration
	total  time.Duration
}

// Static wraps a single image as a one-frame animation.
func Static(img image.Image) *AnimatedImage {
	return &AnimatedImage{Frames: []image.Image{img}, Delays: []time.Duration{0}}
}

// DecodeGIF decodes and composites every frame of a GIF, honouring the
// frame disposal methods.
func DecodeGIF(r io.Reader) (*AnimatedImage, error) {
	g, err := gif.DecodeAll(r)
	if err != nil {
		return nil, fmt.Errorf("decode gif: %w", err)
	}
	if len(g.Image) == 0 {
		return nil, fmt.Errorf("decode gif: no frames")
	}

	bounds := image.Rect(0, 0, g.Config.Width, g.Config.Height)
	if bounds.Empty() {
		bounds = g.Image[0].Bounds()
	}
	canvas := image.NewRGBA(bounds)
	a := &AnimatedImage{}

	for i, frame := range g.Image {
		var previous *image.RGBA
		disposal := byte(0)
		if i < len(g.Disposal) {
			disposal = g.Disposal[i]
		}
		if disposal == gif.DisposalPrevious {
			previous = cloneRGBA(canvas)
		}

		draw.Draw(canvas, frame.Bounds(), frame, frame.Bounds().Min, draw.Over)
		a.Frames = append(a.Frames, cloneRGBA(canvas))

		delay := minFrameDelay
		if i < len(g.Delay) && g.Delay[i] > 1 {
			delay = time.Duration(g.Delay[i]) * 10 * time.Millisecond
		}
		a.Delays = append(a.Delays, delay)
		a.total += delay

		switch disposal {
		case gif.DisposalBackground:
			draw.Draw(canvas, frame.Bounds(), image.Transparent, image.Point{}, draw.Src)
		case gif.DisposalPrevious:
			canvas = previous
		}
	}
	return a, nil
}

// LoadGIF decodes the GIF file at path.
func LoadGIF(path string) (*AnimatedImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeGIF(f)
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(src.Bounds())
	copy(dst.Pix, src.Pix)
	return dst
}

// FrameIndex returns the frame shown after elapsed, looping forever.
func (a *AnimatedImage) FrameIndex(elapsed time.Duration) int {
	if len(a.Frames) <= 1 || a.total <= 0 {
		return 0
	}
	if elapsed < 0 {
		elapsed = 0
	}
	t := elapsed % a.total
	for i, d := range a.Delays {
		if t < d {
			return i
		}
		t -= d
	}
	return len(a.Frames) - 1
}

// FrameAt returns the frame shown after elapsed.
func (a *AnimatedImage) FrameAt(elapsed time.Duration) image.Image {
	return a.Frames[a.FrameIndex(elapsed)]
}

// Duration is the length of one loop.
func (a *AnimatedImage) Duration() time.Duration { return a.total }

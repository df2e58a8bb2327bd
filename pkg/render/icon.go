package render

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
)

// LoadIcon reads a PNG or JPEG marker icon and scales it by scale.
func LoadIcon(path string, scale float64) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode icon %s: %w", path, err)
	}
	return Scale(img, scale), nil
}

// LoadAnimatedIcon loads a GIF as an animation or any other image as a
// single frame.
func LoadAnimatedIcon(path string, scale float64) (*AnimatedImage, error) {
	if !strings.EqualFold(filepath.Ext(path), ".gif") {
		img, err := LoadIcon(path, scale)
		if err != nil {
			return nil, err
		}
		return Static(img), nil
	}

	a, err := LoadGIF(path)
	if err != nil {
		return nil, err
	}
	for i, fr := range a.Frames {
		a.Frames[i] = Scale(fr, scale)
	}
	return a, nil
}

// Scale resizes img by factor; 1 or non-positive factors return img unchanged.
func Scale(img image.Image, factor float64) image.Image {
	if factor <= 0 || factor == 1 {
		return img
	}
	b := img.Bounds()
	w := max(1, int(float64(b.Dx())*factor+0.5))
	h := max(1, int(float64(b.Dy())*factor+0.5))
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

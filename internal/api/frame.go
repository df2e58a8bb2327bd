package api

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"log/slog"
	"net/http"
	"strconv"

	"tripreel/pkg/mapview"
)

// FrameRenderer rasterises a map snapshot.
type FrameRenderer interface {
	Render(ctx context.Context, s mapview.Snapshot) (*image.RGBA, error)
}

// FrameHandler serves the current map as a PNG.
type FrameHandler struct {
	scene    *Scene
	renderer FrameRenderer
}

// NewFrameHandler creates a FrameHandler.
func NewFrameHandler(scene *Scene, r FrameRenderer) *FrameHandler {
	return &FrameHandler{scene: scene, renderer: r}
}

// ServeHTTP handles GET /api/frame.png.
func (h *FrameHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m := h.scene.Current()
	if m == nil {
		writeError(w, http.StatusNotFound, "no playback yet")
		return
	}

	snap := m.Snapshot()
	img, err := h.renderer.Render(r.Context(), snap)
	if err != nil {
		slog.Warn("API: frame render failed", "error", err)
		writeError(w, http.StatusInternalServerError, "render failed")
		return
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		writeError(w, http.StatusInternalServerError, "encoding error")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Map-Version", strconv.FormatUint(snap.Version, 10))
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Error("Failed to write frame", "error", err)
	}
}

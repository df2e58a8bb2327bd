package api

import (
	"log/slog"
	"net/http"
	"time"

	"tripreel/pkg/tiles"
	"tripreel/pkg/version"
)

// NewServer creates and configures the HTTP server. frame, stats and hub
// are optional.
func NewServer(addr string, pb *PlaybackHandler, frame *FrameHandler, stats *StatsHandler, hub *Hub, shutdown func()) *http.Server {
	mux := http.NewServeMux()

	// 1. Health and metadata
	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /api/version", handleVersion)
	mux.HandleFunc("GET /api/styles", handleStyles)
	mux.HandleFunc("GET /api/log/latest", handleLatestLog)

	// 2. Playback
	mux.HandleFunc("POST /api/playback", pb.HandleStart)
	mux.HandleFunc("DELETE /api/playback", pb.HandleCancel)
	mux.HandleFunc("GET /api/playback/status", pb.HandleStatus)
	mux.HandleFunc("GET /api/playback/events", pb.HandleEvents)
	mux.HandleFunc("GET /api/route.geojson", pb.HandleRoute)

	// 3. Rendering
	if frame != nil {
		mux.Handle("GET /api/frame.png", frame)
	}
	if stats != nil {
		mux.Handle("GET /api/stats", stats)
	}
	if hub != nil {
		mux.Handle("GET /ws", hub)
	}

	// 4. Shutdown
	if shutdown != nil {
		mux.HandleFunc("POST /api/shutdown", func(w http.ResponseWriter, r *http.Request) {
			slog.Info("Graceful shutdown initiated via API")
			w.WriteHeader(http.StatusOK)
			if _, err := w.Write([]byte("Shutting down...")); err != nil {
				slog.Error("Failed to write shutdown response", "error", err)
			}
			go func() {
				time.Sleep(100 * time.Millisecond)
				shutdown()
			}()
		})
	}

	return &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": version.Version})
}

type styleDTO struct {
	Name    string `json:"name"`
	Retina  bool   `json:"retina"`
	Format  string `json:"format"`
	MaxZoom int    `json:"max_zoom"`
	Default bool   `json:"default"`
}

func handleStyles(w http.ResponseWriter, r *http.Request) {
	styles := tiles.Styles()
	out := make([]styleDTO, 0, len(styles))
	for _, s := range styles {
		out = append(out, styleDTO{
			Name:    string(s),
			Retina:  s.Retina(),
			Format:  s.Ext(),
			MaxZoom: s.MaxZoom(),
			Default: s == tiles.DefaultStyle,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"tripreel/pkg/config"
	"tripreel/pkg/itinerary"
	"tripreel/pkg/model"
	"tripreel/pkg/playback"
	"tripreel/pkg/session"
	"tripreel/pkg/tiles"
)

const maxBodyBytes = 8 << 20

// Sessions is the session manager seen by the API.
type Sessions interface {
	Start(ctx context.Context, waypoints []model.Waypoint, style string, opts playback.Options) (string, error)
	Cancel() bool
	Status() session.SessionStatus
	Events() []model.PlaybackEvent
	Waypoints() []model.Waypoint
}

// PlaybackHandler handles the playback endpoints.
type PlaybackHandler struct {
	sessions Sessions
	defaults playback.Options
}

// NewPlaybackHandler creates a PlaybackHandler. defaults apply to every
// request and can be overridden per request.
func NewPlaybackHandler(s Sessions, defaults playback.Options) *PlaybackHandler {
	return &PlaybackHandler{sessions: s, defaults: defaults}
}

// playOverrides are the per-request option overrides.
type playOverrides struct {
	SegmentDuration string `json:"segment_duration"`
	Fullscreen      *bool  `json:"fullscreen"`
	Audio           *bool  `json:"audio"`
	Record          *bool  `json:"record"`
}

type playRequest struct {
	Style   string        `json:"style"`
	Options playOverrides `json:"options"`
}

// HandleStart handles POST /api/playback. The body is an itinerary: a
// waypoint list or an object with waypoints, an optional style and options.
func (h *PlaybackHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	it, err := itinerary.Parse(body, "json")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req playRequest
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if q := r.URL.Query().Get("style"); q != "" {
		req.Style = q
	} else if req.Style == "" {
		req.Style = it.Style
	}

	opts, err := h.options(req.Options)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := h.sessions.Start(r.Context(), it.Waypoints, req.Style, opts)
	if err != nil {
		status := http.StatusInternalServerError
		var mce *model.MalformedCoordinatesError
		if errors.As(err, &mce) || errors.Is(err, playback.ErrNoWaypoints) || errors.Is(err, tiles.ErrInvalidMapStyle) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}

	slog.Info("API: playback started", "id", id, "waypoints", len(it.Waypoints))
	writeJSON(w, http.StatusAccepted, map[string]any{
		"id":        id,
		"waypoints": len(it.Waypoints),
	})
}

func (h *PlaybackHandler) options(o playOverrides) (playback.Options, error) {
	opts := h.defaults
	if o.SegmentDuration != "" {
		d, err := config.ParseDuration(o.SegmentDuration)
		if err != nil {
			return opts, err
		}
		if d <= 0 {
			return opts, errors.New("segment_duration must be positive")
		}
		opts.SegmentDuration = d
	}
	if o.Fullscreen != nil {
		opts.Fullscreen = *o.Fullscreen
	}
	if o.Audio != nil {
		opts.PlayAudio = *o.Audio
	}
	if o.Record != nil {
		opts.RecordVideo = *o.Record
	}
	return opts, nil
}

// HandleCancel handles DELETE /api/playback.
func (h *PlaybackHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	cancelled := h.sessions.Cancel()
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
}

// HandleStatus handles GET /api/playback/status.
func (h *PlaybackHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sessions.Status())
}

// HandleEvents handles GET /api/playback/events.
func (h *PlaybackHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	events := h.sessions.Events()
	if events == nil {
		events = []model.PlaybackEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// HandleRoute handles GET /api/route.geojson.
func (h *PlaybackHandler) HandleRoute(w http.ResponseWriter, r *http.Request) {
	fc := itinerary.RouteGeoJSON(h.sessions.Waypoints())
	data, err := fc.MarshalJSON()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encoding error")
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	if _, err := w.Write(data); err != nil {
		slog.Error("Failed to write route", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

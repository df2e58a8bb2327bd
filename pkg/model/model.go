package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/orb"
)

// Waypoint is one stop of an itinerary.
type Waypoint struct {
	ID          string     `json:"id" yaml:"id"`
	Address     string     `json:"address" yaml:"address"`
	Coordinates orb.Point  `json:"coordinates" yaml:"-"` // [lon, lat], WGS84
	Arrival     *time.Time `json:"arrival,omitempty" yaml:"-"`
	Departure   *time.Time `json:"departure,omitempty" yaml:"-"`
	Photos      []string   `json:"photos" yaml:"photos"` // URIs, data URIs or file paths
}

// waypointWire is the tolerant input shape of a Waypoint.
type waypointWire struct {
	ID          string   `json:"id" yaml:"id"`
	Address     string   `json:"address" yaml:"address"`
	Coordinates any      `json:"coordinates" yaml:"coordinates"`
	Arrival     string   `json:"arrival" yaml:"arrival"`
	Departure   string   `json:"departure" yaml:"departure"`
	Photos      []string `json:"photos" yaml:"photos"`
}

// UnmarshalJSON accepts coordinates as [lon, lat] or as a JSON string encoding of it.
func (w *Waypoint) UnmarshalJSON(data []byte) error {
	var raw waypointWire
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return w.fromWire(&raw)
}

// UnmarshalYAML decodes the same tolerant shape as UnmarshalJSON.
func (w *Waypoint) UnmarshalYAML(unmarshal func(any) error) error {
	var raw waypointWire
	if err := unmarshal(&raw); err != nil {
		return err
	}
	return w.fromWire(&raw)
}

func (w *Waypoint) fromWire(raw *waypointWire) error {
	w.ID = raw.ID
	w.Address = raw.Address
	w.Photos = raw.Photos

	pt, err := ParseCoordinates(raw.Coordinates)
	if err != nil {
		return &MalformedCoordinatesError{WaypointID: raw.ID, Value: raw.Coordinates, Err: err}
	}
	w.Coordinates = pt

	if w.Arrival, err = parseTime(raw.Arrival); err != nil {
		return fmt.Errorf("waypoint %q: invalid arrival: %w", raw.ID, err)
	}
	if w.Departure, err = parseTime(raw.Departure); err != nil {
		return fmt.Errorf("waypoint %q: invalid departure: %w", raw.ID, err)
	}
	return nil
}

// Label returns the best available display name.
func (w *Waypoint) Label() string {
	if w.Address != "" {
		return w.Address
	}
	if w.ID != "" {
		return w.ID
	}
	return fmt.Sprintf("%.4f, %.4f", w.Coordinates.Lat(), w.Coordinates.Lon())
}

func parseTime(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognised time %q", s)
}

// Event types recorded in the event log.
const (
	EventStarted   = "started"
	EventSegment   = "segment"
	EventFinished  = "finished"
	EventCancelled = "cancelled"
	EventError     = "error"
)

// PlaybackEvent is one entry of a session's history.
type PlaybackEvent struct {
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary,omitempty"`
}

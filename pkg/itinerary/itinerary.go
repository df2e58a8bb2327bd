// Package itinerary reads trip files: JSON or YAML itineraries and GPX
// waypoint, route or track files.
package itinerary

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"tripreel/pkg/model"
)

// ErrUnsupportedFormat is returned for unknown file extensions.
var ErrUnsupportedFormat = errors.New("unsupported itinerary format")

// Itinerary is a trip file: the ordered waypoints plus optional playback hints.
type Itinerary struct {
	Title     string           `json:"title" yaml:"title"`
	Style     string           `json:"style" yaml:"style"`
	Audio     string           `json:"audio" yaml:"audio"`
	Waypoints []model.Waypoint `json:"waypoints" yaml:"waypoints"`
}

// Load reads the waypoints of the itinerary at path.
func Load(path string) ([]model.Waypoint, error) {
	it, err := Open(path)
	if err != nil {
		return nil, err
	}
	return it.Waypoints, nil
}

// Open reads and validates the itinerary at path. Relative photo and audio
// paths are resolved against the file's directory.
func Open(path string) (*Itinerary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read itinerary: %w", err)
	}

	it, err := Parse(data, Format(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	it.resolve(filepath.Dir(path))
	if it.Title == "" {
		it.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return it, nil
}

// Format maps a file name to "json", "yaml" or "gpx".
func Format(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	case ".gpx":
		return "gpx"
	}
	return ""
}

// Parse decodes data in the given format. JSON and YAML accept either a
// bare list of waypoints or an object with a waypoints key.
func Parse(data []byte, format string) (*Itinerary, error) {
	var (
		it  *Itinerary
		err error
	)
	switch format {
	case "json":
		it, err = parseJSON(data)
	case "yaml":
		it, err = parseYAML(data)
	case "gpx":
		var wps []model.Waypoint
		wps, err = FromGPX(data)
		it = &Itinerary{Waypoints: wps}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}

	fillIDs(it.Waypoints)
	if err := model.ValidateWaypoints(it.Waypoints); err != nil {
		return nil, err
	}
	return it, nil
}

func parseJSON(data []byte) (*Itinerary, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var wps []model.Waypoint
		if err := json.Unmarshal(data, &wps); err != nil {
			return nil, err
		}
		return &Itinerary{Waypoints: wps}, nil
	}
	var it Itinerary
	if err := json.Unmarshal(data, &it); err != nil {
		return nil, err
	}
	return &it, nil
}

func parseYAML(data []byte) (*Itinerary, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	if len(node.Content) > 0 && node.Content[0].Kind == yaml.SequenceNode {
		var wps []model.Waypoint
		if err := node.Decode(&wps); err != nil {
			return nil, err
		}
		return &Itinerary{Waypoints: wps}, nil
	}
	var it Itinerary
	if err := node.Decode(&it); err != nil {
		return nil, err
	}
	return &it, nil
}

// fillIDs numbers waypoints that came without an id.
func fillIDs(wps []model.Waypoint) {
	for i := range wps {
		if wps[i].ID == "" {
			wps[i].ID = strconv.Itoa(i + 1)
		}
	}
}

func (it *Itinerary) resolve(dir string) {
	it.Audio = resolvePath(dir, it.Audio)
	for i := range it.Waypoints {
		for j, p := range it.Waypoints[i].Photos {
			it.Waypoints[i].Photos[j] = resolvePath(dir, p)
		}
	}
}

// resolvePath joins relative file paths onto dir. URLs, data URIs and
// absolute paths are returned unchanged.
func resolvePath(dir, p string) string {
	switch {
	case p == "",
		strings.HasPrefix(p, "data:"),
		strings.Contains(p, "://"),
		filepath.IsAbs(p):
		return p
	}
	return filepath.Join(dir, filepath.FromSlash(p))
}

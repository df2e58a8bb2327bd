package tiles

import (
	"errors"
	"fmt"
	"image/color"
	"net/url"
	"strings"
)

// Style is a map tile preset.
type Style string

// Supported styles.
const (
	StamenToner       Style = "stamen_toner"
	StamenWatercolor  Style = "stamen_watercolor"
	StamenTerrain     Style = "stamen_terrain"
	AlidadeSmoothDark Style = "alidade_smooth_dark"
	Outdoors          Style = "outdoors"
	OSMBright         Style = "osm_bright"
)

// DefaultStyle is used when no style is configured.
const DefaultStyle = OSMBright

// ErrInvalidMapStyle matches every InvalidStyleError.
var ErrInvalidMapStyle = errors.New("invalid map style")

// InvalidStyleError reports an unknown style name.
type InvalidStyleError struct {
	Name string
}

func (e *InvalidStyleError) Error() string {
	return fmt.Sprintf("invalid map style %q", e.Name)
}

// Is lets errors.Is(err, ErrInvalidMapStyle) match.
func (e *InvalidStyleError) Is(target error) bool {
	return target == ErrInvalidMapStyle
}

type preset struct {
	retina     bool
	ext        string
	maxZoom    int
	background color.RGBA
	attrib     string
}

const stadiaAttribution = "© Stadia Maps © OpenMapTiles © OpenStreetMap"

var presets = map[Style]preset{
	StamenToner:       {retina: true, ext: "png", maxZoom: 20, background: color.RGBA{255, 255, 255, 255}, attrib: stadiaAttribution + " © Stamen Design"},
	StamenWatercolor:  {retina: false, ext: "jpg", maxZoom: 16, background: color.RGBA{232, 222, 204, 255}, attrib: stadiaAttribution + " © Stamen Design"},
	StamenTerrain:     {retina: false, ext: "png", maxZoom: 18, background: color.RGBA{213, 226, 199, 255}, attrib: stadiaAttribution + " © Stamen Design"},
	AlidadeSmoothDark: {retina: true, ext: "png", maxZoom: 20, background: color.RGBA{38, 38, 42, 255}, attrib: stadiaAttribution},
	Outdoors:          {retina: true, ext: "png", maxZoom: 20, background: color.RGBA{226, 234, 216, 255}, attrib: stadiaAttribution},
	OSMBright:         {retina: true, ext: "png", maxZoom: 20, background: color.RGBA{170, 211, 223, 255}, attrib: stadiaAttribution},
}

// order is the listing order of Styles().
var order = []Style{StamenToner, StamenWatercolor, StamenTerrain, AlidadeSmoothDark, Outdoors, OSMBright}

// Styles returns every supported style.
func Styles() []Style {
	out := make([]Style, len(order))
	copy(out, order)
	return out
}

// ParseStyle looks up a style by name (case-insensitive).
func ParseStyle(name string) (Style, error) {
	s := Style(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := presets[s]; !ok {
		return "", &InvalidStyleError{Name: name}
	}
	return s, nil
}

// Retina reports whether the provider serves 2x tiles for this style.
func (s Style) Retina() bool { return presets[s].retina }

// Ext returns the tile image extension.
func (s Style) Ext() string { return presets[s].ext }

// MaxZoom returns the deepest zoom served for this style.
func (s Style) MaxZoom() int { return presets[s].maxZoom }

// Background is the colour drawn where tiles are missing.
func (s Style) Background() color.RGBA { return presets[s].background }

// Attribution is the credit line for the style.
func (s Style) Attribution() string { return presets[s].attrib }

// TileSize is the pixel size of a tile as served; retina is only honoured
// when the style supports it.
func (s Style) TileSize(retina bool) int {
	if retina && s.Retina() {
		return 512
	}
	return 256
}

// URL builds the tile URL. An empty apiKey relies on domain authentication.
func (s Style) URL(z, x, y int, retina bool, apiKey string) string {
	scale := ""
	if retina && s.Retina() {
		scale = "@2x"
	}
	u := fmt.Sprintf("https://tiles.stadiamaps.com/tiles/%s/%d/%d/%d%s.%s", s, z, x, y, scale, s.Ext())
	if apiKey != "" {
		u += "?api_key=" + url.QueryEscape(apiKey)
	}
	return u
}

package tiles

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStyle(t *testing.T) {
	tests := []struct {
		name    string
		want    Style
		wantErr bool
	}{
		{"osm_bright", OSMBright, false},
		{"STAMEN_TONER", StamenToner, false},
		{" outdoors ", Outdoors, false},
		{"stamen_watercolor", StamenWatercolor, false},
		{"satellite", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStyle(tt.name)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidMapStyle))
				var ise *InvalidStyleError
				assert.ErrorAs(t, err, &ise)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStyles(t *testing.T) {
	styles := Styles()
	assert.Len(t, styles, 6)
	for _, s := range styles {
		assert.NotEmpty(t, s.Ext())
		assert.NotZero(t, s.MaxZoom())
		assert.NotEmpty(t, s.Attribution())
	}
	// Callers cannot mutate the registry order
	styles[0] = "x"
	assert.Equal(t, StamenToner, Styles()[0])
}

func TestStyleURL(t *testing.T) {
	tests := []struct {
		name   string
		style  Style
		retina bool
		key    string
		want   string
	}{
		{"RetinaPNG", OSMBright, true, "", "https://tiles.stadiamaps.com/tiles/osm_bright/3/4/2@2x.png"},
		{"NoRetinaRequested", OSMBright, false, "", "https://tiles.stadiamaps.com/tiles/osm_bright/3/4/2.png"},
		{"WatercolorIgnoresRetina", StamenWatercolor, true, "", "https://tiles.stadiamaps.com/tiles/stamen_watercolor/3/4/2.jpg"},
		{"TerrainIgnoresRetina", StamenTerrain, true, "", "https://tiles.stadiamaps.com/tiles/stamen_terrain/3/4/2.png"},
		{"APIKey", Outdoors, false, "a b", "https://tiles.stadiamaps.com/tiles/outdoors/3/4/2.png?api_key=a+b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.style.URL(3, 4, 2, tt.retina, tt.key))
		})
	}
}

func TestTileSize(t *testing.T) {
	assert.Equal(t, 512, StamenToner.TileSize(true))
	assert.Equal(t, 256, StamenToner.TileSize(false))
	assert.Equal(t, 256, StamenWatercolor.TileSize(true))
}

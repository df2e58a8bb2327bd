package request

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeProvider(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"tiles.stadiamaps.com", "stadia"},
		{"tiles-eu.stadiamaps.com", "stadia"},
		{"stadiamaps.com", "stadia"},
		{"tile.openstreetmap.org", "osm"},
		{"a.tile.openstreetmap.org", "osm"},
		{"photos.example.com", "photos.example.com"},
		{"127.0.0.1:8080", "127.0.0.1"},
		{"Other.COM", "other.com"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeProvider(tt.host), tt.host)
	}
}

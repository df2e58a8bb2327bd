package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"10s", 10 * time.Second, false},
		{"3.5s", 3500 * time.Millisecond, false},
		{"3500ms", 3500 * time.Millisecond, false},
		{"1m30s", 90 * time.Second, false},
		{"1d", Day, false},
		{"1w", Week, false},
		{"2d2h", 50 * time.Hour, false},
		{"8", 8 * time.Second, false},
		{"0.5", 500 * time.Millisecond, false},
		{" 4s ", 4 * time.Second, false},
		{"", 0, false},
		{"invalid", 0, true},
		{"3x", 0, true},
		{"10s later", 0, true},
		{"NaN", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDuration(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{10 * time.Second, "10s"},
		{3500 * time.Millisecond, "3500ms"},
		{90 * time.Second, "1m30s"},
		{time.Minute, "1m"},
		{2 * time.Hour, "2h"},
		{90 * time.Minute, "1h30m"},
		{30 * Day, "30d"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatDuration(tt.in))
			back, err := ParseDuration(tt.want)
			require.NoError(t, err)
			assert.Equal(t, tt.in, back)
		})
	}
}

func TestDuration_YAML(t *testing.T) {
	type wrapper struct {
		Delay Duration `yaml:"delay"`
	}

	var w wrapper
	require.NoError(t, yaml.Unmarshal([]byte("delay: 6s\n"), &w))
	assert.Equal(t, 6*time.Second, w.Delay.D())

	out, err := yaml.Marshal(w)
	require.NoError(t, err)
	assert.Equal(t, "delay: 6s\n", string(out))

	err = yaml.Unmarshal([]byte("\ndelay: soon\n"), &w)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

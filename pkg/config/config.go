package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Thumbnail ThumbnailConfig `yaml:"thumbnail"`
	Render    RenderConfig    `yaml:"render"`
	Tiles     TilesConfig     `yaml:"tiles"`
	Capture   CaptureConfig   `yaml:"capture"`
	Audio     AudioConfig     `yaml:"audio"`
	Request   RequestConfig   `yaml:"request"`
	DB        DBConfig        `yaml:"db"`
	Server    ServerConfig    `yaml:"server"`
}

// PlaybackConfig holds the timing of the playback state machine.
type PlaybackConfig struct {
	SegmentDuration Duration `yaml:"segment_duration"`
	PrimingDelay    Duration `yaml:"priming_delay"`
	PhotoWindow     Duration `yaml:"photo_window"`
	ZoomDuration    Duration `yaml:"zoom_duration"`
	SettleDelay     Duration `yaml:"settle_delay"`
	FitPadding      int      `yaml:"fit_padding"` // pixels
	FitDuration     Duration `yaml:"fit_duration"`
	AudioDelay      Duration `yaml:"audio_delay"`
	InitialZoom     int      `yaml:"initial_zoom"`
	FrameRate       float64  `yaml:"frame_rate"`
}

// ThumbnailConfig holds the polaroid framing settings.
type ThumbnailConfig struct {
	Size          int `yaml:"size"`
	InnerPadding  int `yaml:"inner_padding"`
	BottomPadding int `yaml:"bottom_padding"`
	Quality       int `yaml:"quality"` // JPEG quality 1-100
}

// RenderConfig holds rasterisation settings.
type RenderConfig struct {
	Width        int     `yaml:"width"`
	Height       int     `yaml:"height"`
	Style        string  `yaml:"style"`
	PathColor    string  `yaml:"path_color"`
	PathWidth    float64 `yaml:"path_width"`
	MarkerIcon   string  `yaml:"marker_icon"`   // PNG, optional
	TravelerIcon string  `yaml:"traveler_icon"` // animated GIF, optional
	Labels       bool    `yaml:"labels"`
}

// TilesConfig holds tile provider settings.
type TilesConfig struct {
	APIKey      string   `yaml:"api_key"`
	Retina      bool     `yaml:"retina"`
	Concurrency int      `yaml:"concurrency"`
	CacheTTL    Duration `yaml:"cache_ttl"`
}

// CaptureConfig holds video capture settings.
type CaptureConfig struct {
	FFmpeg    string  `yaml:"ffmpeg"`
	Output    string  `yaml:"output"`
	Bitrate   string  `yaml:"bitrate"`
	FrameRate float64 `yaml:"frame_rate"`
}

// AudioConfig holds background audio settings.
type AudioConfig struct {
	Track  string  `yaml:"track"`
	Volume float64 `yaml:"volume"`
}

// RequestConfig holds HTTP request settings.
type RequestConfig struct {
	Retries int           `yaml:"retries"`
	Timeout Duration      `yaml:"timeout"`
	Backoff BackoffConfig `yaml:"backoff"`
}

// BackoffConfig holds exponential backoff settings.
type BackoffConfig struct {
	BaseDelay Duration `yaml:"base_delay"`
	MaxDelay  Duration `yaml:"max_delay"`
}

// DBConfig holds database settings.
type DBConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server   LogSettings `yaml:"server"`
	Requests LogSettings `yaml:"requests"`
	Events   LogSettings `yaml:"events"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Server: LogSettings{
				Path:  "./logs/server.log",
				Level: "INFO",
			},
			Requests: LogSettings{
				Path:  "./logs/requests.log",
				Level: "INFO",
			},
			Events: LogSettings{
				Path:  "./logs/events.log",
				Level: "INFO",
			},
		},
		Playback: PlaybackConfig{
			SegmentDuration: Duration(10 * time.Second),
			PrimingDelay:    Duration(5 * time.Second),
			PhotoWindow:     Duration(5 * time.Second),
			ZoomDuration:    Duration(3 * time.Second),
			SettleDelay:     Duration(6 * time.Second),
			FitPadding:      150,
			FitDuration:     Duration(3500 * time.Millisecond),
			AudioDelay:      Duration(3 * time.Second),
			InitialZoom:     2,
			FrameRate:       25,
		},
		Thumbnail: ThumbnailConfig{
			Size:          85,
			InnerPadding:  8,
			BottomPadding: 31,
			Quality:       90,
		},
		Render: RenderConfig{
			Width:     1280,
			Height:    720,
			Style:     "osm_bright",
			PathColor: "#E4572E",
			PathWidth: 4,
			Labels:    true,
		},
		Tiles: TilesConfig{
			Retina:      true,
			Concurrency: 8,
			CacheTTL:    Duration(30 * Day),
		},
		Capture: CaptureConfig{
			FFmpeg:    "ffmpeg",
			Output:    "./output/trip.mp4",
			Bitrate:   "6M",
			FrameRate: 25,
		},
		Audio: AudioConfig{
			Volume: 0.8,
		},
		Request: RequestConfig{
			Retries: 3,
			Timeout: Duration(20 * time.Second),
			Backoff: BackoffConfig{
				BaseDelay: Duration(500 * time.Millisecond),
				MaxDelay:  Duration(30 * time.Second),
			},
		},
		DB: DBConfig{
			Path: "./data/tripreel.db",
		},
		Server: ServerConfig{
			Address: "localhost:8087",
		},
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it is created with default values.
// If the file exists, it is merged over the defaults but not written back (to preserve user formatting and comments).
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	// Best effort: a missing .env is the normal case.
	_ = godotenv.Load()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}

	// Env fallback, never saved to disk
	if cfg.Tiles.APIKey == "" {
		if key := os.Getenv("STADIA_API_KEY"); key != "" {
			cfg.Tiles.APIKey = key
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Validate checks values that would otherwise fail deep inside playback.
func (c *Config) Validate() error {
	if c.Playback.SegmentDuration <= 0 {
		return fmt.Errorf("playback.segment_duration must be positive")
	}
	if c.Playback.FrameRate <= 0 {
		return fmt.Errorf("playback.frame_rate must be positive")
	}
	if c.Thumbnail.Size <= 0 {
		return fmt.Errorf("thumbnail.size must be positive")
	}
	if c.Render.Width <= 0 || c.Render.Height <= 0 {
		return fmt.Errorf("render size must be positive, got %dx%d", c.Render.Width, c.Render.Height)
	}
	if !hexColor.MatchString(c.Render.PathColor) {
		return fmt.Errorf("invalid render.path_color '%s': must be '#RRGGBB'", c.Render.PathColor)
	}
	return nil
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# tripreel configuration
# ----------------------
# Durations accept: ms, s, m, h, d (day), w (week)
# The tile API key may also be supplied as STADIA_API_KEY (environment or .env)

`)
	data = append(header, data...)

	reStyle := regexp.MustCompile(`(?m)^(\s+)style:`)
	data = reStyle.ReplaceAll(data, []byte("${1}# Options: stamen_toner, stamen_watercolor, stamen_terrain, alidade_smooth_dark, outdoors, osm_bright\n${1}style:"))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return Save(path, DefaultConfig())
}

// Package config loads runtime settings from defaults, an optional YAML
// file and VIPERS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/vipers-surveillance/vipers/internal/vision"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Config defines the runtime configuration.
type Config struct {
	// HTTP dashboard
	Addr           string        `yaml:"addr"`
	AssetsDir      string        `yaml:"assets_dir"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	StatusInterval time.Duration `yaml:"status_interval"`
	MetricsAddr    string        `yaml:"metrics_addr"`

	// Event log
	LogPath          string `yaml:"log_path"`
	DetectionKeyword string `yaml:"detection_keyword"`

	// Frame sources
	VideoPath        string `yaml:"video_path"`
	CameraDevice     int    `yaml:"camera_device"`
	LiveEnabled      bool   `yaml:"live_enabled"`
	PlaybackRealtime bool   `yaml:"playback_realtime"`
	MaxWidth         int    `yaml:"max_width"`

	// Detector
	FaceCascade  string  `yaml:"face_cascade"`
	BodyCascade  string  `yaml:"body_cascade"`
	ScaleStep    float64 `yaml:"scale_step"`
	MinNeighbors int     `yaml:"min_neighbors"`
	MinSize      int     `yaml:"min_size"`
	MaxSize      int     `yaml:"max_size"`

	// Overlay and encoding
	DrawLabels  bool `yaml:"draw_labels"`
	DrawStamp   bool `yaml:"draw_stamp"`
	JPEGQuality int  `yaml:"jpeg_quality"`

	RecordingOutputPath string `yaml:"recording_output_path"`
}

// Default returns the built-in configuration.
func Default() Config {
	params := vision.DefaultParams()
	return Config{
		Addr:                ":8080",
		AssetsDir:           filepath.Clean("./web"),
		StatusInterval:      2 * time.Second,
		LogPath:             filepath.Join("logs", "event_log.txt"),
		DetectionKeyword:    "detected",
		VideoPath:           filepath.Join("assets", "drone_footage.mp4"),
		CameraDevice:        0,
		LiveEnabled:         false,
		PlaybackRealtime:    true,
		FaceCascade:         filepath.Join("models", "haarcascade_frontalface_default.xml"),
		BodyCascade:         filepath.Join("models", "haarcascade_fullbody.xml"),
		ScaleStep:           params.ScaleStep,
		MinNeighbors:        params.MinNeighbors,
		MinSize:             params.MinSize,
		MaxSize:             params.MaxSize,
		DrawLabels:          true,
		JPEGQuality:         75,
		RecordingOutputPath: "./recordings",
	}
}

// Load returns Default overlaid with the YAML file at path (if non-empty)
// and then the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return cfg, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path. Keys absent from the file keep
// their current values; unknown keys are an error.
func (c *Config) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays VIPERS_* variables found through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs error
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str("VIPERS_ADDR", &c.Addr)
	str("VIPERS_LOG_PATH", &c.LogPath)
	str("VIPERS_VIDEO_PATH", &c.VideoPath)
	str("VIPERS_FACE_CASCADE", &c.FaceCascade)
	str("VIPERS_BODY_CASCADE", &c.BodyCascade)
	str("VIPERS_RECORDING_PATH", &c.RecordingOutputPath)
	str("VIPERS_METRICS_ADDR", &c.MetricsAddr)
	boolean("VIPERS_LIVE_ENABLED", &c.LiveEnabled)
	integer("VIPERS_CAMERA_DEVICE", &c.CameraDevice)
	if v, ok := lookup("VIPERS_ALLOWED_ORIGINS"); ok && v != "" {
		c.AllowedOrigins = splitList(v)
	}

	if errs != nil {
		return fmt.Errorf("invalid environment: %w", errs)
	}
	return nil
}

// Params returns the detector parameters.
func (c Config) Params() vision.Params {
	return vision.Params{
		ScaleStep:    c.ScaleStep,
		MinNeighbors: c.MinNeighbors,
		MinSize:      c.MinSize,
		MaxSize:      c.MaxSize,
	}
}

// Style returns the overlay style.
func (c Config) Style() vision.Style {
	return vision.Style{Thickness: 2, Labels: c.DrawLabels, Stamp: c.DrawStamp}
}

// Validate checks option ranges.
func (c Config) Validate() error {
	if err := c.Params().Validate(); err != nil {
		return err
	}
	if c.LogPath == "" {
		return errors.New("log_path must be set")
	}
	if c.DetectionKeyword == "" {
		return errors.New("detection_keyword must be set")
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("jpeg_quality must be in 1..100, got %d", c.JPEGQuality)
	}
	if c.StatusInterval <= 0 {
		return fmt.Errorf("status_interval must be positive, got %v", c.StatusInterval)
	}
	if c.MaxWidth < 0 {
		return fmt.Errorf("max_width must be >= 0, got %d", c.MaxWidth)
	}
	if c.CameraDevice < 0 {
		return fmt.Errorf("camera_device must be >= 0, got %d", c.CameraDevice)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

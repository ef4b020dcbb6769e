package webmonitor

import (
	"time"

	"github.com/vipers-surveillance/vipers/internal/config"
	"github.com/vipers-surveillance/vipers/internal/vision"
)

// Config defines the runtime configuration for the dashboard server.
type Config struct {
	Addr             string
	AssetsDir        string
	AllowedOrigins   []string
	StatusInterval   time.Duration
	DetectionKeyword string
	JPEGQuality      int
	Style            vision.Style

	// Source description for /api/camera_status
	VideoPath    string
	CameraDevice int
	LiveEnabled  bool
}

// DefaultConfig returns the dashboard defaults.
func DefaultConfig() Config {
	return ConfigFrom(config.Default())
}

// ConfigFrom extracts the dashboard settings from the application config.
func ConfigFrom(c config.Config) Config {
	return Config{
		Addr:             c.Addr,
		AssetsDir:        c.AssetsDir,
		AllowedOrigins:   c.AllowedOrigins,
		StatusInterval:   c.StatusInterval,
		DetectionKeyword: c.DetectionKeyword,
		JPEGQuality:      c.JPEGQuality,
		Style:            c.Style(),
		VideoPath:        c.VideoPath,
		CameraDevice:     c.CameraDevice,
		LiveEnabled:      c.LiveEnabled,
	}
}

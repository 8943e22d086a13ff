// Package config loads the player configuration from a YAML file and merges
// command line overrides on top.
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/janssen70/lowlatency-live/internal/element"
)

// Config is the complete player configuration.
type Config struct {
	Camera CameraConfig `yaml:"camera"`
	Player PlayerConfig `yaml:"player"`
}

// CameraConfig contains the network source settings.
type CameraConfig struct {
	RTSPURL  string `yaml:"rtsp_url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// LatencyMS is the receive buffer depth in milliseconds. Zero is valid
	// and means minimum latency.
	LatencyMS int `yaml:"latency_ms"`
	// TimeSync selects timestamp recovery: jitterbuffer (default), ntp, none
	TimeSync string `yaml:"time_sync"`
}

// PlayerConfig contains session settings.
type PlayerConfig struct {
	// Prefix is used to derive element names
	Prefix string `yaml:"prefix"`
	// RefreshIntervalS is the latency diagnostic period in seconds; 0 disables
	RefreshIntervalS int `yaml:"refresh_interval_s"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Default returns a configuration with defaults applied and no source set.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Player.Prefix == "" {
		c.Player.Prefix = "lowlat"
	}
	if c.Player.RefreshIntervalS == 0 {
		c.Player.RefreshIntervalS = 1
	}
	if c.Camera.TimeSync == "" {
		c.Camera.TimeSync = "jitterbuffer"
	}
}

// Validate checks the configuration for consistency.
func Validate(c *Config) error {
	if c.Camera.RTSPURL == "" {
		return fmt.Errorf("camera.rtsp_url is required")
	}
	if _, err := url.Parse(c.Camera.RTSPURL); err != nil {
		return fmt.Errorf("camera.rtsp_url is not a valid URL: %w", err)
	}
	if c.Camera.LatencyMS < 0 {
		return fmt.Errorf("camera.latency_ms must not be negative")
	}
	switch c.Camera.TimeSync {
	case "jitterbuffer", "ntp", "none":
	default:
		return fmt.Errorf("camera.time_sync must be jitterbuffer, ntp or none, got %q", c.Camera.TimeSync)
	}
	if c.Player.RefreshIntervalS < 0 {
		return fmt.Errorf("player.refresh_interval_s must not be negative")
	}
	return nil
}

// Source converts the camera section to the source configuration the
// pipeline core consumes.
func (c *Config) Source() element.SourceConfig {
	mode := element.SyncJitterBuffer
	switch c.Camera.TimeSync {
	case "ntp":
		mode = element.SyncNTP
	case "none":
		mode = element.SyncNone
	}

	return element.SourceConfig{
		URL:      c.Camera.RTSPURL,
		Username: c.Camera.Username,
		Password: c.Camera.Password,
		Latency:  time.Duration(c.Camera.LatencyMS) * time.Millisecond,
		TimeSync: mode,
	}
}

// RefreshInterval returns the latency diagnostic period.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Player.RefreshIntervalS) * time.Second
}

// RedactedURL returns the source URL with any userinfo removed, safe for
// logging.
func (c *Config) RedactedURL() string {
	u, err := url.Parse(c.Camera.RTSPURL)
	if err != nil {
		return c.Camera.RTSPURL
	}
	if u.User != nil {
		u.User = url.User("redacted")
	}
	return u.String()
}

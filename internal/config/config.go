// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config represents the application configuration shared by the package
// generator and the offline agent
type Config struct {
	ServerPort   string `env:"SERVER_PORT" envDefault:"8080"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	DatabasePath string `env:"DATABASE_PATH" envDefault:"offline.db"`

	// Generator side
	ContentDir     string        `env:"CONTENT_DIR" envDefault:"/var/lib/inclusiveai/offline-content"`
	TempDir        string        `env:"TEMP_DIR" envDefault:"/tmp/inclusiveai-offline"`
	CommandTimeout time.Duration `env:"COMMAND_TIMEOUT" envDefault:"5m"`
	BatchDelay     time.Duration `env:"BATCH_DELAY" envDefault:"1s"`

	// Media optimization limits
	MaxImageWidth  int `env:"MAX_IMAGE_WIDTH" envDefault:"800"`
	MaxImageHeight int `env:"MAX_IMAGE_HEIGHT" envDefault:"600"`
	JPEGQuality    int `env:"JPEG_QUALITY" envDefault:"80"`
	AudioBitrate   int `env:"AUDIO_BITRATE" envDefault:"64"`  // kbps
	VideoBitrate   int `env:"VIDEO_BITRATE" envDefault:"500"` // kbps

	// Agent side
	RemoteContentURL string        `env:"REMOTE_CONTENT_URL" envDefault:"http://localhost:8080"`
	CacheDir         string        `env:"CACHE_DIR" envDefault:"/var/lib/inclusiveai/offline-cache"`
	SyncInterval     time.Duration `env:"SYNC_INTERVAL" envDefault:"30s"`
	MaxSyncRetries   int           `env:"MAX_SYNC_RETRIES" envDefault:"5"`
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if file doesn't exist)
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	logLevel := strings.ToLower(c.LogLevel)
	isValidLevel := false
	for _, level := range validLogLevels {
		if logLevel == level {
			isValidLevel = true
			break
		}
	}
	if !isValidLevel {
		return fmt.Errorf("invalid log level %q, must be one of: %v", c.LogLevel, validLogLevels)
	}

	for name, dir := range map[string]*string{
		"CONTENT_DIR": &c.ContentDir,
		"TEMP_DIR":    &c.TempDir,
		"CACHE_DIR":   &c.CacheDir,
	} {
		if *dir == "" {
			return fmt.Errorf("%s cannot be empty", name)
		}
		cleanPath := filepath.Clean(*dir)
		if !filepath.IsAbs(cleanPath) {
			return fmt.Errorf("%s must be an absolute path, got: %s", name, *dir)
		}
		// Check if path exists and is a directory (only if it exists)
		if info, err := os.Stat(cleanPath); err == nil {
			if !info.IsDir() {
				return fmt.Errorf("%s must be a directory, got file: %s", name, cleanPath)
			}
		}
		*dir = cleanPath
	}

	if c.MaxImageWidth <= 0 || c.MaxImageHeight <= 0 {
		return fmt.Errorf("image dimension limits must be positive, got %dx%d", c.MaxImageWidth, c.MaxImageHeight)
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("JPEG_QUALITY must be in 1-100, got %d", c.JPEGQuality)
	}
	if c.AudioBitrate <= 0 || c.VideoBitrate <= 0 {
		return fmt.Errorf("bitrates must be positive, got audio=%d video=%d", c.AudioBitrate, c.VideoBitrate)
	}
	if c.MaxSyncRetries < 1 {
		return fmt.Errorf("MAX_SYNC_RETRIES must be at least 1, got %d", c.MaxSyncRetries)
	}

	return nil
}

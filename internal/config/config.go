// Package config provides configuration management for esplayer using
// Viper. It supports configuration from files, environment variables,
// and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultPreBufferSeconds  = 2 * time.Second
	defaultClockPollInterval = 500 * time.Millisecond
	defaultBufferEventPeriod = time.Second
	defaultTargetBufferDepth = 10 * time.Second
	defaultMaxVariantBytes   = 32 * 1024 * 1024 // 32MB
	defaultTargetBitrate     = 0                 // disabled: no BytesNeeded estimation
	defaultEventQueueDepth   = 32
)

// Config holds all configuration for the application.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Player  PlayerConfig  `mapstructure:"player"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// PlayerConfig holds the playback controller's tunable knobs (spec.md
// §6), expressed with the same human-readable Duration/ByteSize wrapper
// types the teacher uses for its relay buffer configuration.
type PlayerConfig struct {
	// PreBufferDuration is how much data must be queued per stream
	// before Prepare completes and playback may start.
	PreBufferDuration Duration `mapstructure:"pre_buffer_duration"`
	// TargetBufferDepth is the steady-state buffered duration each
	// stream's transfer task tries to maintain.
	TargetBufferDepth Duration `mapstructure:"target_buffer_depth"`
	// ClockPollInterval is how often the controller samples native
	// playback position while playing.
	ClockPollInterval Duration `mapstructure:"clock_poll_interval"`
	// BufferEventInterval is passed to player.Config, whose controller
	// does not consult it: buffer-status notifications reach the
	// PlayerClient as they arrive, without rate limiting.
	BufferEventInterval Duration `mapstructure:"buffer_event_interval"`
	// MaxVariantBytes caps per-stream queued packet bytes (0 =
	// unlimited, relying on the duration-based target depth only). Supports
	// human-readable values like "32MB", "1GB", or raw byte counts.
	MaxVariantBytes ByteSize `mapstructure:"max_variant_bytes"`
	// TargetBitrate, expressed as a byte rate (e.g. "500KB"), lets a
	// stream's buffer translate its duration shortfall into a
	// DataRequest.BytesNeeded estimate. Zero disables the estimate.
	TargetBitrate ByteSize `mapstructure:"target_bitrate"`
	// EventQueueDepth is validated (at least 1) but not passed to the
	// player: its event schedulers use a fixed pending-callback depth
	// of 32.
	EventQueueDepth int `mapstructure:"event_queue_depth"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with ESPLAYER_ and use underscores
// for nesting. Example: ESPLAYER_PLAYER_TARGET_BUFFER_DEPTH=15s.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	SetDefaults(v)

	// Config file settings
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/esplayer")
		v.AddConfigPath("$HOME/.esplayer")
	}

	// Environment variable settings
	v.SetEnvPrefix("ESPLAYER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Player defaults
	v.SetDefault("player.pre_buffer_duration", defaultPreBufferSeconds)
	v.SetDefault("player.target_buffer_depth", defaultTargetBufferDepth)
	v.SetDefault("player.clock_poll_interval", defaultClockPollInterval)
	v.SetDefault("player.buffer_event_interval", defaultBufferEventPeriod)
	v.SetDefault("player.max_variant_bytes", defaultMaxVariantBytes)
	v.SetDefault("player.target_bitrate", defaultTargetBitrate)
	v.SetDefault("player.event_queue_depth", defaultEventQueueDepth)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	// Player validation
	if c.Player.PreBufferDuration.Duration() <= 0 {
		return fmt.Errorf("player.pre_buffer_duration must be positive")
	}
	if c.Player.TargetBufferDepth.Duration() < c.Player.PreBufferDuration.Duration() {
		return fmt.Errorf("player.target_buffer_depth must be at least player.pre_buffer_duration")
	}
	if c.Player.ClockPollInterval.Duration() <= 0 {
		return fmt.Errorf("player.clock_poll_interval must be positive")
	}
	if c.Player.EventQueueDepth < 1 {
		return fmt.Errorf("player.event_queue_depth must be at least 1")
	}
	if c.Player.TargetBitrate.Bytes() < 0 {
		return fmt.Errorf("player.target_bitrate must not be negative")
	}

	return nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	assert.Equal(t, 2*time.Second, cfg.Player.PreBufferDuration.Duration())
	assert.Equal(t, 10*time.Second, cfg.Player.TargetBufferDepth.Duration())
	assert.Equal(t, 500*time.Millisecond, cfg.Player.ClockPollInterval.Duration())
	assert.Equal(t, time.Second, cfg.Player.BufferEventInterval.Duration())
	assert.Equal(t, int64(32*1024*1024), cfg.Player.MaxVariantBytes.Bytes())
	assert.Equal(t, int64(0), cfg.Player.TargetBitrate.Bytes())
	assert.Equal(t, 32, cfg.Player.EventQueueDepth)
}

func TestLoad_FromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: "debug"
  format: "text"

player:
  pre_buffer_duration: 3s
  target_buffer_depth: 15s
  target_bitrate: 500KB
`
	err := os.WriteFile(configPath, []byte(configContent), 0o600)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 3*time.Second, cfg.Player.PreBufferDuration.Duration())
	assert.Equal(t, 15*time.Second, cfg.Player.TargetBufferDepth.Duration())
	assert.Equal(t, int64(500*1024), cfg.Player.TargetBitrate.Bytes())
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("ESPLAYER_LOGGING_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: "info"
`
	err := os.WriteFile(configPath, []byte(configContent), 0o600)
	require.NoError(t, err)

	t.Setenv("ESPLAYER_LOGGING_LEVEL", "error")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "error", cfg.Logging.Level)
}

func validConfig() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Player: PlayerConfig{
			PreBufferDuration:   Duration(2 * time.Second),
			TargetBufferDepth:   Duration(10 * time.Second),
			ClockPollInterval:   Duration(500 * time.Millisecond),
			BufferEventInterval: Duration(time.Second),
			EventQueueDepth:     32,
		},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "invalid"
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "logging.level")
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Format = "xml"
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "logging.format")
}

func TestValidate_InvalidPreBufferDuration(t *testing.T) {
	cfg := validConfig()
	cfg.Player.PreBufferDuration = Duration(0)
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "pre_buffer_duration")
}

func TestValidate_TargetBufferDepthBelowPreBuffer(t *testing.T) {
	cfg := validConfig()
	cfg.Player.TargetBufferDepth = Duration(time.Second)
	cfg.Player.PreBufferDuration = Duration(2 * time.Second)
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "target_buffer_depth")
}

func TestValidate_InvalidClockPollInterval(t *testing.T) {
	cfg := validConfig()
	cfg.Player.ClockPollInterval = Duration(0)
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "clock_poll_interval")
}

func TestValidate_InvalidEventQueueDepth(t *testing.T) {
	cfg := validConfig()
	cfg.Player.EventQueueDepth = 0
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "event_queue_depth")
}

func TestValidate_NegativeTargetBitrate(t *testing.T) {
	cfg := validConfig()
	cfg.Player.TargetBitrate = ByteSize(-1)
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "target_bitrate")
}

func TestLoad_InvalidConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	invalidContent := `
logging:
  level: "not a number"
  invalid yaml structure
`
	err := os.WriteFile(configPath, []byte(invalidContent), 0o600)
	require.NoError(t, err)

	_, err = Load(configPath)
	assert.Error(t, err)
}

func TestLoad_NonExistentFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

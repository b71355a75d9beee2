// Package config_test tests the configuration loading for the
// audiobook-service.
package config_test

import (
	"testing"

	"github.com/book-expert/audiobook-service/internal/config"
	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	tomlData := `
[synthesis]
provider = "gemini"
voice = "Puck"
rate = "+10%"
chunk_limit = 2500
workers = 3

[gemini]
model = "gemini-2.5-flash-preview-tts"
backup_model = "gemini-2.0-flash-exp"
api_keys = ["key-one", "key-two"]
requests_per_minute = 8

[piper]
binary_path = "/usr/local/bin/piper"
voices_dir = "/opt/piper/voices"

[retry]
max_attempts = 6
base_delay_seconds = 2
cooldown_hours = 12

[cache]
backend = "fs"
dir = "/var/cache/audiobook"

[nats]
url = "nats://127.0.0.1:4222"
bucket = "AUDIOBOOK_CACHE"

[assembly]
ffmpeg_path = "/usr/bin/ffmpeg"
normalize = true

[paths]
base_logs_dir = "/var/log/audiobook"
`

	var cfg config.Config

	err := toml.Unmarshal([]byte(tomlData), &cfg)
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.Synthesis.Provider)
	assert.Equal(t, "Puck", cfg.Synthesis.Voice)
	assert.Equal(t, "+10%", cfg.Synthesis.Rate)
	assert.Equal(t, 2500, cfg.Synthesis.ChunkLimit)
	assert.Equal(t, 3, cfg.Synthesis.Workers)
	assert.Equal(t, "gemini-2.5-flash-preview-tts", cfg.Gemini.Model)
	assert.Equal(t, []string{"key-one", "key-two"}, cfg.Gemini.APIKeys)
	assert.Equal(t, 8, cfg.Gemini.RequestsPerMinute)
	assert.Equal(t, "/usr/local/bin/piper", cfg.Piper.BinaryPath)
	assert.Equal(t, 6, cfg.Retry.MaxAttempts)
	assert.Equal(t, 2, cfg.Retry.BaseDelaySeconds)
	assert.Equal(t, 12, cfg.Retry.CooldownHours)
	assert.Equal(t, "fs", cfg.Cache.Backend)
	assert.Equal(t, "/var/cache/audiobook", cfg.Cache.Dir)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
	assert.Equal(t, "/usr/bin/ffmpeg", cfg.Assembly.FFmpegPath)
	assert.True(t, cfg.Assembly.Normalize)
	assert.Equal(t, "/var/log/audiobook", cfg.Paths.BaseLogsDir)

	require.NoError(t, cfg.Validate())
}

func TestDefaultConfigIsValid(t *testing.T) {
	t.Parallel()

	cfg := config.Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "gemini", cfg.Synthesis.Provider)
	assert.Equal(t, config.CacheBackendFS, cfg.Cache.Backend)
	assert.Empty(t, cfg.Gemini.APIKeys)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Synthesis.ChunkLimit = 50
	require.ErrorIs(t, cfg.Validate(), config.ErrChunkLimitRange)

	cfg = config.Default()
	cfg.Cache.Backend = "redis"
	require.ErrorIs(t, cfg.Validate(), config.ErrUnknownBackend)

	cfg = config.Default()
	cfg.Synthesis.Workers = -1
	require.ErrorIs(t, cfg.Validate(), config.ErrWorkersNegative)

	cfg = config.Default()
	cfg.Retry.MaxAttempts = 0
	require.ErrorIs(t, cfg.Validate(), config.ErrAttemptsPositive)
}

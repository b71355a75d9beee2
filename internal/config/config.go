// Package config provides the configuration structure for the
// audiobook-service.
package config

import (
	"errors"
	"fmt"

	"github.com/book-expert/audiobook-service/internal/engine"
	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// Cache backend selectors.
const (
	CacheBackendFS   = "fs"
	CacheBackendNATS = "nats"
)

// Static errors.
var (
	ErrChunkLimitRange  = errors.New("chunk_limit out of range")
	ErrUnknownBackend   = errors.New("unknown cache backend")
	ErrWorkersNegative  = errors.New("workers must be non-negative")
	ErrAttemptsPositive = errors.New("max_attempts must be positive")
)

// SynthesisConfig holds the default conversion parameters.
type SynthesisConfig struct {
	Provider   string `toml:"provider"`
	Voice      string `toml:"voice"`
	Rate       string `toml:"rate"`
	ChunkLimit int    `toml:"chunk_limit"`
	Workers    int    `toml:"workers"`
}

// GeminiConfig holds the cloud provider settings and its credential list.
// Keys rotate in the listed order.
type GeminiConfig struct {
	BaseURL           string   `toml:"base_url"`
	Model             string   `toml:"model"`
	BackupModel       string   `toml:"backup_model"`
	APIKeys           []string `toml:"api_keys"`
	RequestsPerMinute int      `toml:"requests_per_minute"`
}

// PiperConfig holds the local provider settings.
type PiperConfig struct {
	BinaryPath string `toml:"binary_path"`
	VoicesDir  string `toml:"voices_dir"`
}

// RetryConfig tunes the per-chunk retry policy and the key pool.
type RetryConfig struct {
	MaxAttempts         int `toml:"max_attempts"`
	BaseDelaySeconds    int `toml:"base_delay_seconds"`
	MaxDelaySeconds     int `toml:"max_delay_seconds"`
	CooldownHours       int `toml:"cooldown_hours"`
	WaitIntervalSeconds int `toml:"wait_interval_seconds"`
	MaxWaitCycles       int `toml:"max_wait_cycles"`
	CallTimeoutSeconds  int `toml:"call_timeout_seconds"`
}

// CacheConfig selects and locates the audio cache.
type CacheConfig struct {
	Backend string `toml:"backend"`
	Dir     string `toml:"dir"`
}

// NATSConfig holds the connection settings for the NATS cache backend.
type NATSConfig struct {
	URL    string `toml:"url"`
	Bucket string `toml:"bucket"`
}

// AssemblyConfig tunes the external concatenation tools.
type AssemblyConfig struct {
	FFmpegPath  string `toml:"ffmpeg_path"`
	FFprobePath string `toml:"ffprobe_path"`
	Normalize   bool   `toml:"normalize"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	Synthesis SynthesisConfig `toml:"synthesis"`
	Gemini    GeminiConfig    `toml:"gemini"`
	Piper     PiperConfig     `toml:"piper"`
	Retry     RetryConfig     `toml:"retry"`
	Cache     CacheConfig     `toml:"cache"`
	NATS      NATSConfig      `toml:"nats"`
	Assembly  AssemblyConfig  `toml:"assembly"`
	Paths     PathsConfig     `toml:"paths"`
}

// Default returns the configuration used when no file is present. Without
// credentials only the local provider is usable.
func Default() *Config {
	return &Config{
		Synthesis: SynthesisConfig{
			Provider:   "gemini",
			Voice:      "",
			Rate:       "+0%",
			ChunkLimit: engine.DefaultChunkLimit,
			Workers:    0,
		},
		Gemini: GeminiConfig{
			BaseURL:           "",
			Model:             "",
			BackupModel:       "",
			APIKeys:           nil,
			RequestsPerMinute: 0,
		},
		Piper: PiperConfig{
			BinaryPath: "",
			VoicesDir:  "",
		},
		Retry: RetryConfig{
			MaxAttempts:         engine.DefaultMaxAttempts,
			BaseDelaySeconds:    1,
			MaxDelaySeconds:     60,
			CooldownHours:       24,
			WaitIntervalSeconds: 60,
			MaxWaitCycles:       10,
			CallTimeoutSeconds:  120,
		},
		Cache: CacheConfig{
			Backend: CacheBackendFS,
			Dir:     "",
		},
		NATS: NATSConfig{
			URL:    "",
			Bucket: "AUDIOBOOK_CACHE",
		},
		Assembly: AssemblyConfig{
			FFmpegPath:  "",
			FFprobePath: "",
			Normalize:   true,
		},
		Paths: PathsConfig{
			BaseLogsDir: "",
		},
	}
}

// Load loads the configuration for the audiobook-service, falling back to
// defaults when no configuration file is found.
func Load(log *logger.Logger) (*Config, error) {
	cfg := Default()

	err := configurator.Load(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	validationErr := cfg.Validate()
	if validationErr != nil {
		return nil, validationErr
	}

	return cfg, nil
}

// Validate checks the ranges the pipeline depends on.
func (c *Config) Validate() error {
	if c.Synthesis.ChunkLimit != 0 &&
		(c.Synthesis.ChunkLimit < engine.MinChunkLimit || c.Synthesis.ChunkLimit > engine.MaxChunkLimit) {
		return fmt.Errorf("%w: %d not in [%d, %d]",
			ErrChunkLimitRange, c.Synthesis.ChunkLimit, engine.MinChunkLimit, engine.MaxChunkLimit)
	}

	if c.Cache.Backend != CacheBackendFS && c.Cache.Backend != CacheBackendNATS {
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Cache.Backend)
	}

	if c.Synthesis.Workers < 0 {
		return fmt.Errorf("%w: got %d", ErrWorkersNegative, c.Synthesis.Workers)
	}

	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("%w: got %d", ErrAttemptsPositive, c.Retry.MaxAttempts)
	}

	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/audiobook-service/internal/assemble"
	"github.com/book-expert/audiobook-service/internal/cache"
	"github.com/book-expert/audiobook-service/internal/config"
	"github.com/book-expert/audiobook-service/internal/core"
	"github.com/book-expert/audiobook-service/internal/engine"
	"github.com/book-expert/audiobook-service/internal/keypool"
	"github.com/book-expert/audiobook-service/internal/objectstore"
	"github.com/book-expert/audiobook-service/internal/provider"
	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"
)

const cacheDirName = "audiobook-service"

// ErrNoCredentials indicates a keyed provider was selected without any
// configured API keys.
var ErrNoCredentials = errors.New("provider requires api_keys in configuration")

// app holds the wired collaborators for one command invocation.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	closers []func()
}

func setupLogger(logPath string) (*logger.Logger, error) {
	log, err := logger.New(logPath, "audiobook-service.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

// newApp runs the bootstrap-then-final logger sequence and loads the
// configuration. The bootstrap logger lives in the temp dir so configuration
// problems are still captured somewhere.
func newApp() (*app, error) {
	bootstrapLog, err := setupLogger(os.TempDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return nil, err
	}

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)
		_ = bootstrapLog.Close()

		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logsDir := cfg.Paths.BaseLogsDir
	if logsDir == "" {
		logsDir = os.TempDir()
	}

	finalLog, err := setupLogger(logsDir)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)
		_ = bootstrapLog.Close()

		return nil, fmt.Errorf("failed to create final logger: %w", err)
	}

	_ = bootstrapLog.Close()

	finalLog.System("Audiobook service initialized. Provider: %s, cache backend: %s",
		cfg.Synthesis.Provider, cfg.Cache.Backend)

	a := &app{cfg: cfg, log: finalLog, closers: nil}
	a.closers = append(a.closers, func() {
		_ = finalLog.Close()
	})

	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// cacheDir resolves the configured cache directory, defaulting to the user
// cache location.
func (a *app) cacheDir() (string, error) {
	if a.cfg.Cache.Dir != "" {
		return a.cfg.Cache.Dir, nil
	}

	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("resolve user cache dir: %w", err)
	}

	return filepath.Join(base, cacheDirName), nil
}

// openCache wires the configured blob backend under the SQLite index.
func (a *app) openCache(ctx context.Context) (*cache.Store, error) {
	dir, dirErr := a.cacheDir()
	if dirErr != nil {
		return nil, dirErr
	}

	var (
		blobs core.ObjectStore
		err   error
	)

	switch a.cfg.Cache.Backend {
	case config.CacheBackendNATS:
		blobs, err = a.openNatsStore()
	default:
		blobs, err = objectstore.NewFS(filepath.Join(dir, "blobs"))
	}

	if err != nil {
		return nil, err
	}

	store, openErr := cache.Open(ctx, filepath.Join(dir, "index.db"), blobs, a.log)
	if openErr != nil {
		return nil, fmt.Errorf("open cache: %w", openErr)
	}

	a.closers = append(a.closers, func() {
		_ = store.Close()
	})

	return store, nil
}

func (a *app) openNatsStore() (core.ObjectStore, error) {
	url := a.cfg.NATS.URL
	if url == "" {
		url = nats.DefaultURL
	}

	natsConnection, connectErr := nats.Connect(url)
	if connectErr != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, connectErr)
	}

	a.closers = append(a.closers, natsConnection.Close)

	jetstreamContext, jsErr := natsConnection.JetStream()
	if jsErr != nil {
		return nil, fmt.Errorf("get JetStream context: %w", jsErr)
	}

	store, storeErr := objectstore.NewNats(jetstreamContext, a.cfg.NATS.Bucket)
	if storeErr != nil {
		return nil, fmt.Errorf("open NATS object store: %w", storeErr)
	}

	return store, nil
}

// buildProvider constructs the selected synthesis backend from configuration.
func (a *app) buildProvider(id core.ProviderID) (core.Provider, error) {
	providerCfg := provider.Config{
		Gemini: provider.GeminiConfig{
			BaseURL:           a.cfg.Gemini.BaseURL,
			Model:             a.cfg.Gemini.Model,
			BackupModel:       a.cfg.Gemini.BackupModel,
			RequestsPerMinute: a.cfg.Gemini.RequestsPerMinute,
		},
		Piper: provider.PiperConfig{
			BinaryPath: a.cfg.Piper.BinaryPath,
			VoicesDir:  a.cfg.Piper.VoicesDir,
		},
		CallTimeout: time.Duration(a.cfg.Retry.CallTimeoutSeconds) * time.Second,
	}

	prov, err := provider.New(id, providerCfg, a.log)
	if err != nil {
		return nil, fmt.Errorf("build provider: %w", err)
	}

	return prov, nil
}

// buildKeyPool returns the credential pool for keyed providers, or nil for
// providers that run without credentials.
func (a *app) buildKeyPool(prov core.Provider) (*keypool.Pool, error) {
	if !prov.RequiresCredential() {
		return nil, nil
	}

	if len(a.cfg.Gemini.APIKeys) == 0 {
		return nil, fmt.Errorf("%w: provider %q", ErrNoCredentials, prov.ID())
	}

	pool, err := keypool.New(a.cfg.Gemini.APIKeys, keypool.Options{
		Cooldown:      time.Duration(a.cfg.Retry.CooldownHours) * time.Hour,
		WaitInterval:  time.Duration(a.cfg.Retry.WaitIntervalSeconds) * time.Second,
		MaxWaitCycles: a.cfg.Retry.MaxWaitCycles,
	}, a.log)
	if err != nil {
		return nil, fmt.Errorf("build key pool: %w", err)
	}

	return pool, nil
}

// probeDuration reports the finished file's play time, or zero when ffprobe
// is unavailable.
func (a *app) probeDuration(ctx context.Context, path string) time.Duration {
	probe := assemble.NewFFmpeg(assemble.Config{
		FFmpegPath:  a.cfg.Assembly.FFmpegPath,
		FFprobePath: a.cfg.Assembly.FFprobePath,
	}, a.log)

	duration, err := probe.Duration(ctx, path)
	if err != nil {
		a.log.Warn("Could not probe duration of %s: %v", path, err)

		return 0
	}

	return duration
}

// buildEngine wires provider, pool, cache, and assembler into an engine.
func (a *app) buildEngine(ctx context.Context, id core.ProviderID) (*engine.Engine, *cache.Store, error) {
	prov, provErr := a.buildProvider(id)
	if provErr != nil {
		return nil, nil, provErr
	}

	pool, poolErr := a.buildKeyPool(prov)
	if poolErr != nil {
		return nil, nil, poolErr
	}

	store, cacheErr := a.openCache(ctx)
	if cacheErr != nil {
		return nil, nil, cacheErr
	}

	assembler, _ := assemble.Detect(assemble.Config{
		FFmpegPath:  a.cfg.Assembly.FFmpegPath,
		FFprobePath: a.cfg.Assembly.FFprobePath,
		Normalize:   a.cfg.Assembly.Normalize,
	}, a.log)

	eng, engErr := engine.New(prov, pool, store, assembler, engine.Config{
		MaxAttempts: a.cfg.Retry.MaxAttempts,
		BaseDelay:   time.Duration(a.cfg.Retry.BaseDelaySeconds) * time.Second,
		MaxDelay:    time.Duration(a.cfg.Retry.MaxDelaySeconds) * time.Second,
		Workers:     a.cfg.Synthesis.Workers,
	}, a.log)
	if engErr != nil {
		return nil, nil, fmt.Errorf("build engine: %w", engErr)
	}

	return eng, store, nil
}

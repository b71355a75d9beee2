// Package engine drives the conversion pipeline. It owns the per-chunk
// state machine: cache lookup, credential acquisition, synthesis with
// bounded retries, cache write, and final assembly once every chunk is done.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/book-expert/audiobook-service/internal/cache"
	"github.com/book-expert/audiobook-service/internal/core"
	"github.com/book-expert/audiobook-service/internal/keypool"
	"github.com/book-expert/audiobook-service/internal/text"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
)

// Retry and scheduling defaults. Delays double per attempt up to the cap,
// matching the provider's observed recovery behavior.
const (
	DefaultMaxAttempts = 10
	DefaultBaseDelay   = 1 * time.Second
	DefaultMaxDelay    = 60 * time.Second
	DefaultMaxWorkers  = 4

	chunkFilePattern = "chunk_%04d.wav"
)

// Static errors.
var (
	ErrTextEmpty      = errors.New("no speakable text after normalization")
	ErrChunkLimit     = errors.New("chunk limit out of range")
	ErrNilProvider    = errors.New("provider cannot be nil")
	ErrNilCache       = errors.New("cache store cannot be nil")
	ErrNilAssembler   = errors.New("assembler cannot be nil")
	ErrCredentialPool = errors.New("provider requires credentials but no key pool was given")
)

// Chunk limit bounds, in bytes of normalized text.
const (
	MinChunkLimit     = 100
	MaxChunkLimit     = 5000
	DefaultChunkLimit = 3000
)

// Assembler concatenates ordered chunk audio files into the final output.
type Assembler interface {
	Assemble(ctx context.Context, chunkFiles []string, outputPath string) error
}

// Config tunes the retry policy and worker pool. The Sleep hook exists so
// tests can run the backoff schedule without real waiting.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Workers bounds chunk parallelism. Zero means: key pool size capped
	// at DefaultMaxWorkers, or 1 for credential-free providers.
	Workers int
	Sleep   func(ctx context.Context, d time.Duration) error
}

func (c Config) withDefaults(pool *keypool.Pool) Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}

	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}

	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}

	if c.Workers <= 0 {
		c.Workers = 1

		if pool != nil {
			c.Workers = min(pool.Len(), DefaultMaxWorkers)
		}
	}

	if c.Sleep == nil {
		c.Sleep = sleepContext
	}

	return c
}

// JobOptions describe one requested conversion.
type JobOptions struct {
	Provider   core.ProviderID
	Voice      string
	Rate       string
	Model      string
	ChunkLimit int
	OutputPath string
}

// Engine coordinates one provider, one cache, and one key pool across the
// chunks of a job.
type Engine struct {
	provider  core.Provider
	pool      *keypool.Pool
	store     *cache.Store
	assembler Assembler
	cfg       Config
	log       *logger.Logger

	mu       sync.Mutex
	inflight map[string]chan struct{}
}

// New validates the collaborators and returns a ready engine. The pool may
// be nil only when the provider does not require credentials.
func New(
	provider core.Provider,
	pool *keypool.Pool,
	store *cache.Store,
	assembler Assembler,
	cfg Config,
	log *logger.Logger,
) (*Engine, error) {
	if provider == nil {
		return nil, ErrNilProvider
	}

	if store == nil {
		return nil, ErrNilCache
	}

	if assembler == nil {
		return nil, ErrNilAssembler
	}

	if provider.RequiresCredential() && pool == nil {
		return nil, ErrCredentialPool
	}

	return &Engine{
		provider:  provider,
		pool:      pool,
		store:     store,
		assembler: assembler,
		cfg:       cfg.withDefaults(pool),
		log:       log,
		mu:        sync.Mutex{},
		inflight:  make(map[string]chan struct{}),
	}, nil
}

// NewJob normalizes and chunks the source text and computes every chunk's
// fingerprint. The returned job is immutable apart from chunk status.
func (e *Engine) NewJob(raw string, opts JobOptions) (*core.Job, error) {
	if opts.ChunkLimit == 0 {
		opts.ChunkLimit = DefaultChunkLimit
	}

	if opts.ChunkLimit < MinChunkLimit || opts.ChunkLimit > MaxChunkLimit {
		return nil, fmt.Errorf("%w: %d not in [%d, %d]",
			ErrChunkLimit, opts.ChunkLimit, MinChunkLimit, MaxChunkLimit)
	}

	normalized := text.Normalize(raw)
	if normalized == "" {
		return nil, ErrTextEmpty
	}

	pieces := text.Split(normalized, opts.ChunkLimit)
	if len(pieces) == 0 {
		return nil, ErrTextEmpty
	}

	chunks := make([]*core.Chunk, 0, len(pieces))
	for i, piece := range pieces {
		chunks = append(chunks, &core.Chunk{
			Index:       i,
			Text:        piece,
			Fingerprint: cache.Fingerprint(piece, opts.Voice, opts.Provider, opts.Rate),
			Status:      core.StatusPending,
			Err:         nil,
		})
	}

	return &core.Job{
		ID:         uuid.NewString(),
		Provider:   opts.Provider,
		Voice:      opts.Voice,
		Rate:       opts.Rate,
		Model:      opts.Model,
		ChunkLimit: opts.ChunkLimit,
		OutputPath: opts.OutputPath,
		Chunks:     chunks,
	}, nil
}

// Run processes every chunk with bounded parallelism, then assembles the
// output once all chunks are done. Failed chunks do not abort the job: the
// result records them and a re-run reuses everything already cached.
func (e *Engine) Run(ctx context.Context, job *core.Job) (*core.JobResult, error) {
	started := time.Now()

	result := &core.JobResult{
		Outcome:       core.OutcomeFailed,
		OutputPath:    "",
		CacheHits:     0,
		Synthesized:   0,
		Failures:      nil,
		Duration:      0,
		AssemblyError: nil,
	}

	e.runWorkers(ctx, job, result)

	result.Duration = time.Since(started)

	if ctx.Err() != nil {
		result.Outcome = core.OutcomePartial

		return result, fmt.Errorf("job %s cancelled: %w", job.ID, ctx.Err())
	}

	for _, chunk := range job.Chunks {
		if chunk.Status == core.StatusFailed {
			result.Failures = append(result.Failures, core.ChunkFailure{
				Index: chunk.Index,
				Err:   chunk.Err,
			})
		}
	}

	if len(result.Failures) > 0 {
		result.Outcome = core.OutcomePartial
		e.log.Warn("Job %s finished partially: %d of %d chunks failed",
			job.ID, len(result.Failures), len(job.Chunks))

		return result, nil
	}

	assembleErr := e.assemble(ctx, job)
	if assembleErr != nil {
		result.Outcome = core.OutcomeFailed
		result.AssemblyError = assembleErr
		result.Duration = time.Since(started)

		return result, nil
	}

	result.Outcome = core.OutcomeComplete
	result.OutputPath = job.OutputPath
	result.Duration = time.Since(started)

	e.log.Info("Job %s complete: %d cache hits, %d synthesized, output %s",
		job.ID, result.CacheHits, result.Synthesized, job.OutputPath)

	return result, nil
}

// runWorkers fans the chunk indices out over the worker pool and waits for
// every in-flight chunk to reach a terminal state.
func (e *Engine) runWorkers(ctx context.Context, job *core.Job, result *core.JobResult) {
	indices := make(chan int)

	var (
		wg      sync.WaitGroup
		tallyMu sync.Mutex
	)

	for range e.cfg.Workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for idx := range indices {
				hit := e.processChunk(ctx, job, job.Chunks[idx])

				tallyMu.Lock()

				switch {
				case job.Chunks[idx].Status != core.StatusDone:
				case hit:
					result.CacheHits++
				default:
					result.Synthesized++
				}

				tallyMu.Unlock()
			}
		}()
	}

	for idx, chunk := range job.Chunks {
		if chunk.Status == core.StatusDone {
			continue
		}

		if ctx.Err() != nil {
			break
		}

		indices <- idx
	}

	close(indices)
	wg.Wait()
}

// processChunk runs the full state machine for one chunk. It reports whether
// the chunk was satisfied from cache.
func (e *Engine) processChunk(ctx context.Context, job *core.Job, chunk *core.Chunk) bool {
	release, lockErr := e.lockFingerprint(ctx, chunk.Fingerprint)
	if lockErr != nil {
		return false
	}
	defer release()

	audio, found, getErr := e.store.Get(ctx, chunk.Fingerprint)
	if getErr != nil {
		e.log.Warn("Cache lookup for chunk %d degraded to miss: %v", chunk.Index, getErr)
	}

	if found && len(audio) > 0 {
		chunk.Status = core.StatusCached
		chunk.Status = core.StatusDone

		return true
	}

	chunk.Status = core.StatusSynthesizing

	synthErr := e.synthesize(ctx, job, chunk)
	if synthErr != nil {
		chunk.Status = core.StatusFailed
		chunk.Err = synthErr
		e.log.Error("Chunk %d failed: %v", chunk.Index, synthErr)

		return false
	}

	chunk.Status = core.StatusDone
	chunk.Err = nil

	return false
}

// synthesize runs the bounded retry loop for one chunk. Every attempt
// acquires a fresh credential so a cooling key is never reused.
func (e *Engine) synthesize(ctx context.Context, job *core.Job, chunk *core.Chunk) error {
	var lastErr error

	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			sleepErr := e.cfg.Sleep(ctx, e.backoff(attempt-1))
			if sleepErr != nil {
				return sleepErr
			}
		}

		attemptErr := e.attempt(ctx, job, chunk)
		if attemptErr == nil {
			return nil
		}

		if !core.Retryable(attemptErr) {
			return attemptErr
		}

		lastErr = attemptErr
		e.log.Warn("Chunk %d attempt %d/%d failed: %v",
			chunk.Index, attempt, e.cfg.MaxAttempts, attemptErr)
	}

	return fmt.Errorf("chunk %d exhausted %d attempts: %w",
		chunk.Index, e.cfg.MaxAttempts, lastErr)
}

// attempt performs one provider call, including credential acquisition,
// outcome reporting, and the cache write on success.
func (e *Engine) attempt(ctx context.Context, job *core.Job, chunk *core.Chunk) error {
	req := core.SynthesisRequest{
		Text:       chunk.Text,
		Voice:      job.Voice,
		Rate:       job.Rate,
		Model:      job.Model,
		Credential: "",
	}

	var lease keypool.Lease

	needsKey := e.provider.RequiresCredential()
	if needsKey {
		var acquireErr error

		lease, acquireErr = e.pool.Acquire(ctx)
		if acquireErr != nil {
			return acquireErr
		}

		req.Credential = lease.Secret
	}

	audio, synthErr := e.provider.Synthesize(ctx, req)

	if needsKey {
		e.reportOutcome(lease, synthErr)
	}

	if synthErr != nil {
		return synthErr
	}

	putErr := e.store.Put(ctx, chunk.Fingerprint, audio)
	if putErr != nil {
		// The audio exists but cannot be cached. The chunk is lost for
		// assembly, so treat the write failure as transient and retry.
		return fmt.Errorf("%w: cache write: %w", core.ErrTransient, putErr)
	}

	return nil
}

// reportOutcome translates a synthesis error into the pool's outcome model.
func (e *Engine) reportOutcome(lease keypool.Lease, synthErr error) {
	outcome := keypool.OutcomeSuccess

	switch {
	case synthErr == nil:
	case errors.Is(synthErr, core.ErrRateLimited):
		outcome = keypool.OutcomeQuotaExceeded
	case errors.Is(synthErr, core.ErrTransient):
		outcome = keypool.OutcomeTransientError
	}

	reportErr := e.pool.Report(lease, outcome)
	if reportErr != nil {
		e.log.Warn("Key pool report failed: %v", reportErr)
	}
}

// backoff returns the delay before retry number n (1-based), exponential
// with a cap and up to half the delay again in jitter.
func (e *Engine) backoff(n int) time.Duration {
	delay := e.cfg.BaseDelay

	for i := 1; i < n; i++ {
		delay *= 2
		if delay >= e.cfg.MaxDelay {
			delay = e.cfg.MaxDelay

			break
		}
	}

	return delay + time.Duration(rand.Int63n(int64(delay)/2+1))
}

// lockFingerprint serializes work on a fingerprint so two chunks with
// identical content are never synthesized concurrently. The second caller
// waits, then finds the first caller's result in the cache.
func (e *Engine) lockFingerprint(ctx context.Context, fingerprint string) (func(), error) {
	for {
		e.mu.Lock()

		busy, held := e.inflight[fingerprint]
		if !held {
			done := make(chan struct{})
			e.inflight[fingerprint] = done
			e.mu.Unlock()

			return func() {
				e.mu.Lock()
				delete(e.inflight, fingerprint)
				e.mu.Unlock()
				close(done)
			}, nil
		}

		e.mu.Unlock()

		select {
		case <-busy:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// assemble materializes every chunk's cached audio as an ordered file set
// and hands the list to the assembler.
func (e *Engine) assemble(ctx context.Context, job *core.Job) error {
	workDir, mkErr := os.MkdirTemp("", "audiobook-chunks-")
	if mkErr != nil {
		return fmt.Errorf("%w: create staging dir: %w", core.ErrAssembly, mkErr)
	}

	defer func() {
		_ = os.RemoveAll(workDir)
	}()

	files := make([]string, 0, len(job.Chunks))

	for _, chunk := range job.Chunks {
		audio, found, getErr := e.store.Get(ctx, chunk.Fingerprint)
		if getErr != nil || !found {
			return fmt.Errorf("%w: chunk %d audio missing from cache",
				core.ErrAssembly, chunk.Index)
		}

		path := filepath.Join(workDir, fmt.Sprintf(chunkFilePattern, chunk.Index))

		writeErr := os.WriteFile(path, audio, 0o600)
		if writeErr != nil {
			return fmt.Errorf("%w: stage chunk %d: %w",
				core.ErrAssembly, chunk.Index, writeErr)
		}

		files = append(files, path)
	}

	assembleErr := e.assembler.Assemble(ctx, files, job.OutputPath)
	if assembleErr != nil {
		return assembleErr
	}

	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("backoff interrupted: %w", ctx.Err())
	}
}

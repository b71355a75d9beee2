package core

import "errors"

// Error taxonomy for the synthesis pipeline. Providers and stores wrap these
// sentinels so the orchestrator can decide between key rotation, retry, and
// permanent chunk failure with errors.Is.
var (
	// ErrRateLimited indicates the provider rejected the call because the
	// credential's quota is exhausted. Recoverable via key rotation.
	ErrRateLimited = errors.New("rate limited")

	// ErrTransient indicates a network or timeout failure. Recoverable via
	// retry with backoff.
	ErrTransient = errors.New("transient provider error")

	// ErrFatal indicates a structurally bad request (unknown voice,
	// malformed payload). Not retryable; the chunk is marked failed.
	ErrFatal = errors.New("fatal provider error")

	// ErrAllKeysExhausted indicates every credential stayed in cooldown
	// through the configured number of wait cycles.
	ErrAllKeysExhausted = errors.New("all credentials exhausted")

	// ErrCacheIO indicates a cache storage failure. Degrades to a cache
	// miss and never fails a job.
	ErrCacheIO = errors.New("cache storage error")

	// ErrAssembly indicates the final concatenation step failed.
	ErrAssembly = errors.New("assembly failed")
)

// Retryable reports whether the orchestrator should retry the chunk after
// the given synthesis error.
func Retryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTransient)
}

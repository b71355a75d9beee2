package core

import "time"

// ChunkStatus tracks a chunk through the per-chunk state machine.
type ChunkStatus int

// Chunk states. A chunk transitions to Done exactly once, either from a
// cache hit or after a successful synthesis.
const (
	StatusPending ChunkStatus = iota
	StatusCached
	StatusSynthesizing
	StatusDone
	StatusFailed
)

// String returns the human-readable chunk status.
func (s ChunkStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusCached:
		return "cached"
	case StatusSynthesizing:
		return "synthesizing"
	case StatusDone:
		return "done"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Chunk is one bounded, ordered segment of the job's source text. Chunks are
// owned by their Job and mutated only by the orchestrator.
type Chunk struct {
	Index       int
	Text        string
	Fingerprint string
	Status      ChunkStatus
	Err         error
}

// Job is an immutable description of one conversion: the chunked source
// text plus the synthesis parameters that feed every chunk fingerprint.
type Job struct {
	ID         string
	Provider   ProviderID
	Voice      string
	Rate       string
	Model      string
	ChunkLimit int
	OutputPath string
	Chunks     []*Chunk
}

// JobOutcome summarizes how a job ended.
type JobOutcome int

// Job outcomes. A partial job is resumable: re-running it reuses every
// cached chunk and retries only the failed ones.
const (
	OutcomeComplete JobOutcome = iota
	OutcomePartial
	OutcomeFailed
)

// String returns the human-readable job outcome.
func (o JobOutcome) String() string {
	switch o {
	case OutcomeComplete:
		return "complete"
	case OutcomePartial:
		return "partial"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ChunkFailure records why a chunk ended in StatusFailed.
type ChunkFailure struct {
	Index int
	Err   error
}

// JobResult is the caller-visible summary of a finished run.
type JobResult struct {
	Outcome       JobOutcome
	OutputPath    string
	CacheHits     int
	Synthesized   int
	Failures      []ChunkFailure
	Duration      time.Duration
	AssemblyError error
}

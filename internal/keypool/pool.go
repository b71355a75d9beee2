// Package keypool manages provider credentials: rotation order, quota
// cooldowns, and failure-based suspension. The pool is the only mutable
// state shared across synthesis workers; every mutation happens inside a
// single critical section.
package keypool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/book-expert/audiobook-service/internal/core"
	"github.com/book-expert/logger"
)

// Default pool tuning. The cooldown approximates a daily quota reset; the
// wait interval matches the original product behavior of sleeping a minute
// when every key is rate limited.
const (
	DefaultCooldown         = 24 * time.Hour
	DefaultWaitInterval     = 60 * time.Second
	DefaultMaxWaitCycles    = 10
	DefaultFailureThreshold = 3
	DefaultSuspendInterval  = 5 * time.Minute
)

// Static errors.
var (
	ErrNoKeys       = errors.New("no credentials configured")
	ErrUnknownLease = errors.New("lease does not belong to this pool")
)

// Outcome reports how a synthesis call that used a leased key ended.
type Outcome int

// Report outcomes.
const (
	OutcomeSuccess Outcome = iota
	OutcomeQuotaExceeded
	OutcomeTransientError
)

// Options tunes rotation and cooldown behavior. Zero values fall back to
// the package defaults. Clock and Wait exist so tests can drive cooldown
// expiry deterministically without real waiting.
type Options struct {
	Cooldown         time.Duration
	WaitInterval     time.Duration
	MaxWaitCycles    int
	FailureThreshold int
	SuspendInterval  time.Duration
	Clock            func() time.Time
	Wait             func(ctx context.Context, d time.Duration) error
}

func (o Options) withDefaults() Options {
	if o.Cooldown <= 0 {
		o.Cooldown = DefaultCooldown
	}

	if o.WaitInterval <= 0 {
		o.WaitInterval = DefaultWaitInterval
	}

	if o.MaxWaitCycles <= 0 {
		o.MaxWaitCycles = DefaultMaxWaitCycles
	}

	if o.FailureThreshold <= 0 {
		o.FailureThreshold = DefaultFailureThreshold
	}

	if o.SuspendInterval <= 0 {
		o.SuspendInterval = DefaultSuspendInterval
	}

	if o.Clock == nil {
		o.Clock = time.Now
	}

	if o.Wait == nil {
		o.Wait = sleepWait
	}

	return o
}

// apiKey is the pool-internal credential state.
type apiKey struct {
	secret        string
	cooldownUntil time.Time
	lastUsed      time.Time
	failures      int
}

// Lease is a handle to a leased credential. Callers must hand it back
// through Report with the call outcome.
type Lease struct {
	Secret string
	index  int
}

// Pool rotates round-robin over credentials that are not cooling down.
type Pool struct {
	mu     sync.Mutex
	keys   []*apiKey
	cursor int
	opts   Options
	log    *logger.Logger
}

// New builds a pool from the configured secrets. Blank secrets are dropped.
func New(secrets []string, opts Options, log *logger.Logger) (*Pool, error) {
	keys := make([]*apiKey, 0, len(secrets))

	for _, s := range secrets {
		s = strings.TrimSpace(s)
		if s != "" {
			keys = append(keys, &apiKey{secret: s})
		}
	}

	if len(keys) == 0 {
		return nil, ErrNoKeys
	}

	return &Pool{
		keys: keys,
		opts: opts.withDefaults(),
		log:  log,
	}, nil
}

// Len returns the number of configured credentials.
func (p *Pool) Len() int {
	return len(p.keys)
}

// Acquire returns the next eligible credential. When every key is in
// cooldown it blocks for the wait interval (or until the earliest cooldown
// expiry, whichever comes first) and re-checks, up to the configured number
// of cycles before surfacing core.ErrAllKeysExhausted.
func (p *Pool) Acquire(ctx context.Context) (Lease, error) {
	for cycle := 0; ; cycle++ {
		lease, earliest, ok := p.tryAcquire()
		if ok {
			return lease, nil
		}

		if cycle >= p.opts.MaxWaitCycles {
			return Lease{}, fmt.Errorf(
				"%w after %d wait cycles", core.ErrAllKeysExhausted, cycle,
			)
		}

		waitFor := p.opts.WaitInterval
		if until := earliest.Sub(p.opts.Clock()); until > 0 && until < waitFor {
			waitFor = until
		}

		p.log.Warn(
			"All %d credentials cooling down, waiting %s (cycle %d/%d)",
			len(p.keys), waitFor, cycle+1, p.opts.MaxWaitCycles,
		)

		err := p.opts.Wait(ctx, waitFor)
		if err != nil {
			return Lease{}, fmt.Errorf("waiting for credential: %w", err)
		}
	}
}

// tryAcquire scans round-robin from the cursor for a key out of cooldown.
// On failure it reports the earliest cooldown expiry so the caller can
// bound its wait.
func (p *Pool) tryAcquire() (Lease, time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.opts.Clock()

	var earliest time.Time

	for i := range p.keys {
		idx := (p.cursor + i) % len(p.keys)
		key := p.keys[idx]

		if key.cooldownUntil.After(now) {
			if earliest.IsZero() || key.cooldownUntil.Before(earliest) {
				earliest = key.cooldownUntil
			}

			continue
		}

		key.lastUsed = now
		p.cursor = (idx + 1) % len(p.keys)

		return Lease{Secret: key.secret, index: idx}, time.Time{}, true
	}

	return Lease{}, earliest, false
}

// Report records the outcome of a call made with the leased credential.
// Success clears the consecutive-failure counter; quota exhaustion puts the
// key into cooldown; repeated transient failures suspend it temporarily,
// independent of quota state.
func (p *Pool) Report(lease Lease, outcome Outcome) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if lease.index < 0 || lease.index >= len(p.keys) || p.keys[lease.index].secret != lease.Secret {
		return ErrUnknownLease
	}

	key := p.keys[lease.index]

	switch outcome {
	case OutcomeSuccess:
		key.failures = 0
	case OutcomeQuotaExceeded:
		key.cooldownUntil = p.opts.Clock().Add(p.opts.Cooldown)
		p.log.Warn(
			"Credential %d quota exhausted, cooling down until %s",
			lease.index+1, key.cooldownUntil.Format(time.RFC3339),
		)
	case OutcomeTransientError:
		key.failures++
		if key.failures >= p.opts.FailureThreshold {
			key.cooldownUntil = p.opts.Clock().Add(p.opts.SuspendInterval)
			key.failures = 0
			p.log.Warn(
				"Credential %d suspended for %s after repeated failures",
				lease.index+1, p.opts.SuspendInterval,
			)
		}
	}

	return nil
}

// sleepWait blocks for d or until the context is cancelled.
func sleepWait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

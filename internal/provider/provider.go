// Package provider implements the synthesis backends. Every variant
// satisfies core.Provider; the orchestrator never knows which concrete
// backend it holds. Adding a backend means adding one variant here and one
// case to New.
package provider

import (
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/audiobook-service/internal/core"
	"github.com/book-expert/logger"
)

// Static errors.
var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrTextEmpty       = errors.New("text cannot be empty")
	ErrVoiceEmpty      = errors.New("voice cannot be empty")
)

// Config carries the per-backend settings needed to construct a provider.
type Config struct {
	Gemini GeminiConfig
	Piper  PiperConfig
	// CallTimeout bounds a single synthesis call for every backend.
	CallTimeout time.Duration
}

// New dispatches on the provider id and returns the matching variant.
func New(id core.ProviderID, cfg Config, log *logger.Logger) (core.Provider, error) {
	switch id {
	case core.ProviderGemini:
		return NewGemini(cfg.Gemini, cfg.CallTimeout, log), nil
	case core.ProviderPiper:
		return NewPiper(cfg.Piper, cfg.CallTimeout, log), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, id)
	}
}

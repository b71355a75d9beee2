// Package core defines the domain types and interfaces shared by the
// audiobook synthesis pipeline.
package core

import "context"

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// ProviderID identifies a concrete synthesis backend.
type ProviderID string

// Known provider identifiers.
const (
	ProviderGemini ProviderID = "gemini"
	ProviderPiper  ProviderID = "piper"
)

// SynthesisRequest carries everything a provider needs to turn one chunk of
// text into audio. Credential is empty for providers that do not require one.
type SynthesisRequest struct {
	Text       string
	Voice      string
	Rate       string
	Model      string
	Credential string
}

// Provider is the uniform synthesize capability implemented by every backend
// variant. Synthesize performs one bounded network or subprocess call and
// returns raw audio bytes; failures are classified through the error
// taxonomy in this package.
type Provider interface {
	ID() ProviderID
	RequiresCredential() bool
	Synthesize(ctx context.Context, req SynthesisRequest) ([]byte, error)
}

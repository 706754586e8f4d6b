// Package stt provides the speech-to-text boundary and its implementations.
package stt

import (
	"context"
	"errors"
	"sort"

	"go.aimuz.me/huddle/pcm"
)

// ErrNotReady is returned by Transcribe when a provider is missing its
// credentials, binary or model.
var ErrNotReady = errors.New("stt: provider not ready")

// Provider defines the interface for speech-to-text providers.
// Both local (whisper.cpp) and remote (Whisper API) implementations
// must satisfy this interface.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// DisplayName returns the human-readable provider name.
	DisplayName() string

	// IsLocal returns true if the provider runs locally without API calls.
	IsLocal() bool

	// IsReady returns true if the provider is ready to use.
	IsReady() bool

	// Transcribe converts 16-bit PCM in format f to text. An empty result
	// with a nil error means the audio held no speech.
	Transcribe(ctx context.Context, audio []byte, f pcm.Format) (string, error)

	// Close releases resources held by the provider.
	Close() error
}

// Info describes a registered provider for status reporting.
type Info struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	IsLocal     bool   `json:"isLocal"`
	IsReady     bool   `json:"isReady"`
}

// Registry holds registered STT providers.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates a new provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider to the registry, replacing one with the same name.
func (r *Registry) Register(p Provider) {
	r.providers[p.Name()] = p
}

// Get returns a provider by name.
func (r *Registry) Get(name string) Provider {
	return r.providers[name]
}

// List returns information about all registered providers, sorted by name.
func (r *Registry) List() []Info {
	result := make([]Info, 0, len(r.providers))
	for _, p := range r.providers {
		result = append(result, Info{
			Name:        p.Name(),
			DisplayName: p.DisplayName(),
			IsLocal:     p.IsLocal(),
			IsReady:     p.IsReady(),
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Close releases all providers.
func (r *Registry) Close() error {
	var errs []error
	for _, p := range r.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

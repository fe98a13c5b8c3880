// Package embedding provides pluggable text-to-vector providers and the
// process-wide registry that holds the current one.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrUnavailable wraps any provider failure: model not installed, sidecar
// not running, remote API error. Callers map it to the protocol's
// ProviderUnavailable kind.
var ErrUnavailable = errors.New("embedding provider unavailable")

// Provider turns text into fixed-length vectors under one named model.
// The interface is deliberately narrow; provider-specific knobs belong in
// the concrete constructors, not here.
type Provider interface {
	ModelName() string
	Dimensions() int
	Generate(ctx context.Context, text string) ([]float32, error)
	BatchGenerate(ctx context.Context, texts []string) ([][]float32, error)
}

// Config selects and parameterizes a provider.
type Config struct {
	Provider string // "local" (Ollama sidecar) or "openai"
	Model    string // provider's model id; empty selects the default
	APIKey   string // remote providers only
	BaseURL  string // override the provider endpoint (tests, self-hosted)
}

// Registry holds the process-wide current provider. First access
// initializes the default local provider; Configure replaces the provider
// atomically. In-flight Generate calls complete against the provider they
// started with — the lock covers only the swap.
type Registry struct {
	mu      sync.Mutex
	current Provider
}

// NewRegistry returns an empty registry; the default provider is built
// lazily on first Current call.
func NewRegistry() *Registry {
	return &Registry{}
}

// Current returns the active provider, initializing the default local
// provider if none is configured.
func (r *Registry) Current() Provider {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		r.current = NewOllamaProvider("", "")
	}
	return r.current
}

// Configure builds a provider from cfg and installs it as current.
func (r *Registry) Configure(cfg Config) (Provider, error) {
	p, err := New(cfg)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.current = p
	r.mu.Unlock()
	return p, nil
}

// Set installs a pre-built provider (tests and embedded hosts).
func (r *Registry) Set(p Provider) {
	r.mu.Lock()
	r.current = p
	r.mu.Unlock()
}

// New builds a provider from cfg without installing it.
func New(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "", "local", "ollama":
		return NewOllamaProvider(cfg.Model, cfg.BaseURL), nil
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: openai provider requires an API key", ErrUnavailable)
		}
		return NewOpenAIProvider(cfg.Model, cfg.APIKey, cfg.BaseURL), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

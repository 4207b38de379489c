// Package provider contains the upstream LLM clients the gateway routes
// completion requests to.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrNotConfigured means the provider exists but is missing credentials.
// The gateway fails fast on it: no network I/O, no retries.
var ErrNotConfigured = errors.New("provider not configured")

// ErrUnknownProvider means the requested agent name is not registered.
var ErrUnknownProvider = errors.New("unknown provider")

// Request is a provider-agnostic completion request.
type Request struct {
	Prompt      string
	Model       string
	Temperature float64
	MaxTokens   int
	Stream      bool
}

// Usage is the token accounting reported by the upstream, following the
// OpenAI usage schema.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is a provider-agnostic completion response.
type Completion struct {
	Content string
	Model   string
	Usage   *Usage
}

// Provider is one upstream LLM backend.
type Provider interface {
	Name() string
	// Complete performs a single completion call. Implementations return
	// ErrNotConfigured before any network I/O when credentials are absent,
	// and *retry.HTTPStatusError for non-2xx upstream responses so the
	// retry layer can classify them.
	Complete(ctx context.Context, req Request) (*Completion, error)
	// Ping verifies the upstream is reachable with the configured
	// credentials.
	Ping(ctx context.Context) error
}

// Config holds the settings for one upstream provider.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Registry maps agent names to providers, resolved once at construction.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry builds a registry from the given providers.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Get resolves an agent name. Returns ErrUnknownProvider for names that
// were never registered.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

// Names returns the registered agent names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

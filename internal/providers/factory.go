// Package providers dispatches chat and key-validation calls to the translator
// registered for each supported provider.
package providers

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"keyring/internal/core"
)

// Options configures a single translator instance.
type Options struct {
	// BaseURL overrides the provider's public API endpoint. Empty keeps the default.
	BaseURL string

	// HTTPClient is shared by every call the translator makes. Nil selects the
	// pooled, instrumented client for the provider.
	HTTPClient *http.Client

	// Timeout bounds each outbound call on top of the caller's context.
	Timeout time.Duration
}

// Builder constructs a translator from options.
type Builder func(opts Options) core.Translator

// Registration binds a provider identifier to the builder for its translator.
// Translator packages export one Registration per provider they serve.
type Registration struct {
	Provider core.Provider
	New      Builder
}

// ProviderFactory collects translator registrations and builds the Adapter.
type ProviderFactory struct {
	mu       sync.RWMutex
	builders map[core.Provider]Builder
}

// NewProviderFactory creates an empty factory.
func NewProviderFactory() *ProviderFactory {
	return &ProviderFactory{
		builders: make(map[core.Provider]Builder),
	}
}

// Add registers one or more translators. A later registration for the same
// provider replaces the earlier one.
func (f *ProviderFactory) Add(regs ...Registration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, reg := range regs {
		f.builders[reg.Provider] = reg.New
	}
}

// Build instantiates every translator and returns an Adapter over them.
// Every supported provider must be registered; the dispatch is closed.
func (f *ProviderFactory) Build(opts map[core.Provider]Options) (*Adapter, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	translators := make(map[core.Provider]core.Translator, len(f.builders))
	for _, p := range core.Providers() {
		builder, ok := f.builders[p]
		if !ok {
			return nil, fmt.Errorf("no translator registered for provider %q", p)
		}
		translators[p] = builder(opts[p])
	}
	return NewAdapter(translators)
}

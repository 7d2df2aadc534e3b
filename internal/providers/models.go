package providers

import "keyring/internal/core"

var defaultModels = map[core.Provider][]string{
	core.ProviderOpenRouter: {"anthropic/claude-3.5-sonnet", "openai/gpt-4o", "google/gemini-pro"},
	core.ProviderOpenAI:     {"gpt-4o", "gpt-4-turbo", "gpt-3.5-turbo"},
	core.ProviderAnthropic:  {"claude-3-5-sonnet-20241022", "claude-3-opus-20240229", "claude-3-haiku-20240307"},
	core.ProviderGoogle:     {"gemini-pro", "gemini-pro-vision"},
}

// DefaultModels returns the suggested models for a provider, or nil for an unknown one.
func DefaultModels(provider core.Provider) []string {
	models, ok := defaultModels[provider]
	if !ok {
		return nil
	}
	out := make([]string, len(models))
	copy(out, models)
	return out
}

// Info describes a provider for listing endpoints.
type Info struct {
	ID            core.Provider `json:"id"`
	Name          string        `json:"name"`
	DefaultModels []string      `json:"defaultModels"`
}

// Catalog lists every supported provider with its defaults, in display order.
func Catalog() []Info {
	providers := core.Providers()
	out := make([]Info, 0, len(providers))
	for _, p := range providers {
		out = append(out, Info{
			ID:            p,
			Name:          p.DisplayName(),
			DefaultModels: DefaultModels(p),
		})
	}
	return out
}

package core

import (
	"time"
)

// Provider identifies one of the upstream chat-completion services a user can bring a key for.
type Provider string

const (
	ProviderOpenRouter Provider = "openrouter"
	ProviderOpenAI     Provider = "openai"
	ProviderAnthropic  Provider = "anthropic"
	ProviderGoogle     Provider = "google"
)

// Providers returns the closed set of supported providers in display order.
func Providers() []Provider {
	return []Provider{ProviderOpenRouter, ProviderOpenAI, ProviderAnthropic, ProviderGoogle}
}

// ParseProvider converts a raw identifier into a Provider.
// Unknown identifiers fail with ErrUnsupportedProvider.
func ParseProvider(s string) (Provider, error) {
	p := Provider(s)
	if !p.Valid() {
		return "", NewUnsupportedProviderError(s)
	}
	return p, nil
}

// Valid reports whether p is one of the four supported providers.
func (p Provider) Valid() bool {
	switch p {
	case ProviderOpenRouter, ProviderOpenAI, ProviderAnthropic, ProviderGoogle:
		return true
	}
	return false
}

// DisplayName returns the human-readable provider name.
func (p Provider) DisplayName() string {
	switch p {
	case ProviderOpenRouter:
		return "OpenRouter"
	case ProviderOpenAI:
		return "OpenAI"
	case ProviderAnthropic:
		return "Anthropic"
	case ProviderGoogle:
		return "Google Gemini"
	}
	return string(p)
}

// Role is the speaker of a chat turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant || r == RoleSystem
}

// Message is a single turn in a conversation. Order within a conversation is
// chronological, oldest first.
type Message struct {
	ID        string    `json:"id,omitempty"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Model     string    `json:"model,omitempty"`
}

// Usage is normalized token accounting for one provider call.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// NewUsage builds a Usage. The total is always prompt plus completion; a
// provider-reported total is not consulted.
func NewUsage(prompt, completion int) *Usage {
	return &Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}

// ChatResponse is the single assistant reply produced by one adapter call.
// Usage is nil when the provider does not report token counts.
type ChatResponse struct {
	Message Message `json:"message"`
	Usage   *Usage  `json:"usage,omitempty"`
}

// Credential is a stored per-user, per-provider API key.
// Secret is opaque to the adapter; it may be sealed at rest.
type Credential struct {
	ID            string     `json:"id"`
	UserID        string     `json:"-"`
	Provider      Provider   `json:"provider"`
	Secret        string     `json:"-"`
	IsValid       bool       `json:"isValid"`
	Models        []string   `json:"models"`
	LastValidated *time.Time `json:"lastValidated,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// CloneMessages returns a copy of msgs so callers can build derived
// conversations without touching the original slice.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// Package core defines the core interfaces and types for the chat backend.
package core

import (
	"context"
)

// Translator speaks one provider's wire protocol. Implementations convert the
// normalized message list into the provider's request shape, perform exactly one
// outbound call, and normalize the reply.
type Translator interface {
	// Chat produces a single assistant reply. It must not mutate messages.
	Chat(ctx context.Context, credential, model string, messages []Message) (*ChatResponse, error)

	// ValidateKey probes the provider with a raw key and returns usable model IDs.
	ValidateKey(ctx context.Context, rawKey string) ([]string, error)
}

// ChatAdapter routes chat and validation calls to the translator for a provider.
type ChatAdapter interface {
	Chat(ctx context.Context, provider Provider, credential, model string, messages []Message) (*ChatResponse, error)
	ValidateKey(ctx context.Context, provider Provider, rawKey string) ([]string, error)
}

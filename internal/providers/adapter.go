package providers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"keyring/internal/core"
)

// Adapter implements core.ChatAdapter over a closed set of translators.
type Adapter struct {
	translators map[core.Provider]core.Translator
}

// NewAdapter creates an Adapter. It fails unless every supported provider has a translator.
func NewAdapter(translators map[core.Provider]core.Translator) (*Adapter, error) {
	a := &Adapter{translators: make(map[core.Provider]core.Translator, len(translators))}
	for _, p := range core.Providers() {
		t, ok := translators[p]
		if !ok || t == nil {
			return nil, fmt.Errorf("no translator for provider %q", p)
		}
		a.translators[p] = t
	}
	return a, nil
}

func (a *Adapter) translator(provider core.Provider) (core.Translator, error) {
	if !provider.Valid() {
		return nil, core.NewUnsupportedProviderError(string(provider))
	}
	return a.translators[provider], nil
}

// Chat sends the conversation to the provider and returns exactly one assistant reply.
// The caller's messages are never modified.
func (a *Adapter) Chat(ctx context.Context, provider core.Provider, credential, model string, messages []core.Message) (*core.ChatResponse, error) {
	t, err := a.translator(provider)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, core.ErrEmptyConversation
	}

	start := time.Now()
	resp, err := t.Chat(ctx, credential, model, core.CloneMessages(messages))
	if err != nil {
		slog.Debug("provider chat failed",
			"provider", provider,
			"model", model,
			"duration", time.Since(start),
			"error", err,
		)
		return nil, err
	}

	normalizeReply(resp, model)
	return resp, nil
}

// ValidateKey probes the provider with rawKey and returns the model IDs it can use.
func (a *Adapter) ValidateKey(ctx context.Context, provider core.Provider, rawKey string) ([]string, error) {
	t, err := a.translator(provider)
	if err != nil {
		return nil, err
	}
	return t.ValidateKey(ctx, rawKey)
}

// normalizeReply stamps the fields every reply must carry regardless of provider.
func normalizeReply(resp *core.ChatResponse, model string) {
	resp.Message.Role = core.RoleAssistant
	resp.Message.Model = model
	if resp.Message.ID == "" {
		resp.Message.ID = uuid.NewString()
	}
	if resp.Message.Timestamp.IsZero() {
		resp.Message.Timestamp = time.Now()
	}
}

var _ core.ChatAdapter = (*Adapter)(nil)

package providers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keyring/internal/core"
	"keyring/internal/providers"
	"keyring/internal/providers/anthropic"
	"keyring/internal/providers/gemini"
	"keyring/internal/providers/openai"
)

// fakeUpstream answers every provider's chat and probe endpoints deterministically.
type fakeUpstream struct {
	hits   atomic.Int32
	reject bool
}

func (f *fakeUpstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.hits.Add(1)
	if f.reject {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "bad key"}}`))
		return
	}

	switch {
	case r.URL.Path == "/chat/completions":
		_, _ = w.Write([]byte(`{"id": "cmpl-1", "choices": [{"message": {"role": "assistant", "content": "pong"}}], "usage": {"prompt_tokens": 10, "completion_tokens": 5}}`))
	case r.URL.Path == "/models":
		_, _ = w.Write([]byte(`{"data": [{"id": "gpt-4o"}]}`))
	case r.URL.Path == "/messages":
		_, _ = w.Write([]byte(`{"id": "msg-1", "content": [{"type": "text", "text": "pong"}], "usage": {"input_tokens": 10, "output_tokens": 5}}`))
	case strings.HasSuffix(r.URL.Path, ":generateContent"):
		_, _ = w.Write([]byte(`{"candidates": [{"content": {"parts": [{"text": "pong"}]}}]}`))
	default:
		http.NotFound(w, r)
	}
}

func newAdapter(t *testing.T, upstream *fakeUpstream) *providers.Adapter {
	t.Helper()
	server := httptest.NewServer(upstream)
	t.Cleanup(server.Close)

	factory := providers.NewProviderFactory()
	factory.Add(openai.Registration, openai.OpenRouterRegistration, anthropic.Registration, gemini.Registration)

	opts := make(map[core.Provider]providers.Options)
	for _, p := range core.Providers() {
		opts[p] = providers.Options{BaseURL: server.URL, HTTPClient: server.Client()}
	}
	adapter, err := factory.Build(opts)
	require.NoError(t, err)
	return adapter
}

func conversation() []core.Message {
	return []core.Message{
		{Role: core.RoleSystem, Content: "Be brief"},
		{Role: core.RoleUser, Content: "ping"},
	}
}

func TestAdapter_EveryProviderReturnsOneAssistantMessage(t *testing.T) {
	adapter := newAdapter(t, &fakeUpstream{})

	for _, p := range core.Providers() {
		t.Run(string(p), func(t *testing.T) {
			resp, err := adapter.Chat(context.Background(), p, "key", "model-x", conversation())
			require.NoError(t, err)
			assert.Equal(t, core.RoleAssistant, resp.Message.Role)
			assert.Equal(t, "model-x", resp.Message.Model)
			assert.Equal(t, "pong", resp.Message.Content)
			assert.NotEmpty(t, resp.Message.ID)
		})
	}
}

func TestAdapter_UsageNormalization(t *testing.T) {
	adapter := newAdapter(t, &fakeUpstream{})

	want := &core.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}
	for _, p := range []core.Provider{core.ProviderOpenAI, core.ProviderOpenRouter, core.ProviderAnthropic} {
		resp, err := adapter.Chat(context.Background(), p, "key", "m", conversation())
		require.NoError(t, err)
		assert.Equal(t, want, resp.Usage, p)
	}

	resp, err := adapter.Chat(context.Background(), core.ProviderGoogle, "key", "m", conversation())
	require.NoError(t, err)
	assert.Nil(t, resp.Usage)
}

func TestAdapter_Idempotent(t *testing.T) {
	adapter := newAdapter(t, &fakeUpstream{})

	for _, p := range core.Providers() {
		first, err := adapter.Chat(context.Background(), p, "key", "m", conversation())
		require.NoError(t, err)
		second, err := adapter.Chat(context.Background(), p, "key", "m", conversation())
		require.NoError(t, err)

		first.Message.ID, second.Message.ID = "", ""
		first.Message.Timestamp = second.Message.Timestamp
		assert.Equal(t, first, second, p)
	}
}

func TestAdapter_UnknownProviderNoNetwork(t *testing.T) {
	upstream := &fakeUpstream{}
	adapter := newAdapter(t, upstream)

	_, err := adapter.Chat(context.Background(), "cohere", "key", "m", conversation())
	assert.True(t, errors.Is(err, core.ErrUnsupportedProvider))

	_, err = adapter.ValidateKey(context.Background(), "cohere", "key")
	assert.True(t, errors.Is(err, core.ErrUnsupportedProvider))

	assert.Zero(t, upstream.hits.Load())
}

func TestAdapter_EmptyConversationNoNetwork(t *testing.T) {
	upstream := &fakeUpstream{}
	adapter := newAdapter(t, upstream)

	for _, p := range core.Providers() {
		_, err := adapter.Chat(context.Background(), p, "key", "m", nil)
		assert.ErrorIs(t, err, core.ErrEmptyConversation, p)

		_, err = adapter.Chat(context.Background(), p, "key", "m", []core.Message{})
		assert.ErrorIs(t, err, core.ErrEmptyConversation, p)
	}
	assert.Zero(t, upstream.hits.Load())
}

func TestAdapter_ValidateKey(t *testing.T) {
	adapter := newAdapter(t, &fakeUpstream{})
	for _, p := range core.Providers() {
		models, err := adapter.ValidateKey(context.Background(), p, "key")
		require.NoError(t, err, p)
		assert.NotEmpty(t, models, p)
	}

	rejecting := newAdapter(t, &fakeUpstream{reject: true})
	for _, p := range core.Providers() {
		_, err := rejecting.ValidateKey(context.Background(), p, "key")
		var invalid *core.InvalidCredentialError
		assert.True(t, errors.As(err, &invalid), "%s: got %v", p, err)
	}
}

func TestAdapter_SingleAttemptOnFailure(t *testing.T) {
	upstream := &fakeUpstream{reject: true}
	adapter := newAdapter(t, upstream)

	for _, p := range core.Providers() {
		before := upstream.hits.Load()
		_, err := adapter.Chat(context.Background(), p, "key", "m", conversation())

		var up *core.UpstreamError
		require.ErrorAs(t, err, &up, p)
		assert.Equal(t, core.UpstreamHTTP, up.Kind)
		assert.Equal(t, http.StatusUnauthorized, up.StatusCode)
		assert.Equal(t, before+1, upstream.hits.Load(), "%s retried", p)
	}
}

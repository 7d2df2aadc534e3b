// Package openai provides the translator for OpenAI-compatible chat APIs.
// It serves both OpenAI and OpenRouter, which differ only in base URL and
// in how the validation probe filters the model list.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"keyring/internal/core"
	"keyring/internal/httpclient"
	"keyring/internal/providers"
)

const (
	defaultBaseURL    = "https://api.openai.com/v1"
	openRouterBaseURL = "https://openrouter.ai/api/v1"

	// openRouterModelLimit caps the catalog returned by a successful probe.
	openRouterModelLimit = 20
)

// Registration provides factory registration for OpenAI.
var Registration = providers.Registration{
	Provider: core.ProviderOpenAI,
	New:      New,
}

// OpenRouterRegistration provides factory registration for OpenRouter.
var OpenRouterRegistration = providers.Registration{
	Provider: core.ProviderOpenRouter,
	New:      NewOpenRouter,
}

// Translator implements core.Translator for the inline-system policy:
// every message, system turns included, is sent in order unchanged.
type Translator struct {
	provider   core.Provider
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	pickModels func(ids []string) []string
}

// New creates the OpenAI translator.
func New(opts providers.Options) core.Translator {
	return newTranslator(core.ProviderOpenAI, defaultBaseURL, gptModels, opts)
}

// NewOpenRouter creates the OpenRouter translator.
func NewOpenRouter(opts providers.Options) core.Translator {
	return newTranslator(core.ProviderOpenRouter, openRouterBaseURL, firstModels(openRouterModelLimit), opts)
}

func newTranslator(provider core.Provider, baseURL string, pick func([]string) []string, opts providers.Options) *Translator {
	t := &Translator{
		provider:   provider,
		baseURL:    baseURL,
		httpClient: opts.HTTPClient,
		timeout:    opts.Timeout,
		pickModels: pick,
	}
	if opts.BaseURL != "" {
		t.baseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	if t.httpClient == nil {
		t.httpClient = httpclient.NewProviderHTTPClient(string(provider))
	}
	return t
}

// gptModels keeps only chat-capable OpenAI model IDs.
func gptModels(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if strings.HasPrefix(id, "gpt") {
			out = append(out, id)
		}
	}
	return out
}

func firstModels(n int) func([]string) []string {
	return func(ids []string) []string {
		if len(ids) > n {
			ids = ids[:n]
		}
		return ids
	}
}

// newClient builds a go-openai client bound to one credential. The underlying
// transport is shared; the recorder only lives for this call.
func (t *Translator) newClient(credential string) (*openai.Client, *responseRecorder) {
	next := t.httpClient.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	rec := &responseRecorder{next: next}

	cfg := openai.DefaultConfig(credential)
	cfg.BaseURL = t.baseURL
	cfg.HTTPClient = &http.Client{
		Transport: rec,
		Timeout:   t.httpClient.Timeout,
	}
	return openai.NewClientWithConfig(cfg), rec
}

func (t *Translator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.timeout > 0 {
		return context.WithTimeout(ctx, t.timeout)
	}
	return ctx, func() {}
}

// Chat sends one chat completion request.
func (t *Translator) Chat(ctx context.Context, credential, model string, messages []core.Message) (*core.ChatResponse, error) {
	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	client, rec := t.newClient(credential)

	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, msg := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	resp, err := client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, rec.upstreamError(t.provider, err)
	}

	if len(resp.Choices) == 0 {
		body, _ := json.Marshal(resp) //nolint:errcheck
		return nil, core.NewUpstreamEmptyError(t.provider, body)
	}

	return &core.ChatResponse{
		Message: core.Message{
			ID:        resp.ID,
			Role:      core.RoleAssistant,
			Content:   resp.Choices[0].Message.Content,
			Timestamp: time.Now(),
			Model:     model,
		},
		Usage: convertUsage(resp.Usage),
	}, nil
}

// convertUsage treats an all-zero usage block as not reported. The total is
// recomputed even when the provider sends one.
func convertUsage(u openai.Usage) *core.Usage {
	if u.PromptTokens == 0 && u.CompletionTokens == 0 && u.TotalTokens == 0 {
		return nil
	}
	return core.NewUsage(u.PromptTokens, u.CompletionTokens)
}

// ValidateKey lists models with the key and returns the usable subset.
func (t *Translator) ValidateKey(ctx context.Context, rawKey string) ([]string, error) {
	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	client, rec := t.newClient(rawKey)

	list, err := client.ListModels(ctx)
	if err != nil {
		return nil, core.NewInvalidCredentialError(t.provider, rec.upstreamError(t.provider, err))
	}

	ids := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		ids = append(ids, m.ID)
	}
	return t.pickModels(ids), nil
}

// responseRecorder keeps the status and raw body of the last response so
// failures can carry the provider payload verbatim. It also forwards the
// inbound request ID.
type responseRecorder struct {
	next       http.RoundTripper
	statusCode int
	body       []byte
}

func (r *responseRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	if requestID := core.GetRequestID(req.Context()); requestID != "" && isValidClientRequestID(requestID) {
		req = req.Clone(req.Context())
		req.Header.Set("X-Client-Request-Id", requestID)
	}

	resp, err := r.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	r.statusCode = resp.StatusCode
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	body, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close() //nolint:errcheck
	if readErr != nil {
		return nil, readErr
	}
	r.body = body
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}

func (r *responseRecorder) upstreamError(provider core.Provider, err error) *core.UpstreamError {
	return core.NewUpstreamHTTPError(provider, r.statusCode, r.body, err)
}

// isValidClientRequestID checks if the request ID is valid for OpenAI's X-Client-Request-Id header.
// OpenAI requires: ASCII characters only, max 512 characters.
func isValidClientRequestID(id string) bool {
	if len(id) > 512 {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] > 127 {
			return false
		}
	}
	return true
}

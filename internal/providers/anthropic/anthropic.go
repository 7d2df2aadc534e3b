// Package anthropic provides the Anthropic Messages API translator.
package anthropic

import (
	"context"
	"net/http"
	"strings"
	"time"

	"keyring/internal/core"
	"keyring/internal/llmclient"
	"keyring/internal/providers"
)

const (
	defaultBaseURL      = "https://api.anthropic.com/v1"
	anthropicAPIVersion = "2023-06-01"
	defaultMaxTokens    = 4096

	probeModel = "claude-3-haiku-20240307"
)

// validatedModels is returned after a successful probe. The API offers no
// per-key model listing, so the list is static.
var validatedModels = []string{
	"claude-3-5-sonnet-20241022",
	"claude-3-opus-20240229",
	"claude-3-sonnet-20240229",
	"claude-3-haiku-20240307",
}

// Registration provides factory registration for Anthropic.
var Registration = providers.Registration{
	Provider: core.ProviderAnthropic,
	New:      New,
}

// Translator implements core.Translator for the Anthropic Messages API.
type Translator struct {
	client *llmclient.Client
}

// New creates a new Anthropic translator.
func New(opts providers.Options) core.Translator {
	cfg := llmclient.Config{
		Provider: core.ProviderAnthropic,
		BaseURL:  defaultBaseURL,
		Timeout:  opts.Timeout,
	}
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	if opts.HTTPClient != nil {
		return &Translator{client: llmclient.NewWithHTTPClient(opts.HTTPClient, cfg)}
	}
	return &Translator{client: llmclient.New(cfg)}
}

// headers returns the credential header setter for one call.
func headers(apiKey string) llmclient.HeaderSetter {
	return func(req *http.Request) {
		req.Header.Set("x-api-key", apiKey)
		req.Header.Set("anthropic-version", anthropicAPIVersion)
	}
}

// anthropicRequest represents the Anthropic API request format
type anthropicRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	System    string             `json:"system,omitempty"`
	MaxTokens int                `json:"max_tokens"`
}

// anthropicMessage represents a message in Anthropic format
type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// anthropicResponse represents the Anthropic API response format
type anthropicResponse struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	Content    []anthropicContent `json:"content"`
	Model      string             `json:"model"`
	StopReason string             `json:"stop_reason"`
	Usage      *anthropicUsage    `json:"usage"`
}

// anthropicContent represents content in Anthropic response
type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// anthropicUsage represents token usage in Anthropic response
type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// convertToAnthropicRequest removes system turns from the conversation and
// hoists the first one into the top-level system field. Any later system
// messages are dropped.
func convertToAnthropicRequest(model string, messages []core.Message) *anthropicRequest {
	req := &anthropicRequest{
		Model:     model,
		Messages:  make([]anthropicMessage, 0, len(messages)),
		MaxTokens: defaultMaxTokens,
	}

	hoisted := false
	for _, msg := range messages {
		if msg.Role == core.RoleSystem {
			if !hoisted {
				req.System = msg.Content
				hoisted = true
			}
			continue
		}
		req.Messages = append(req.Messages, anthropicMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	return req
}

// convertFromAnthropicResponse converts an Anthropic reply to core.ChatResponse
func convertFromAnthropicResponse(resp *anthropicResponse, model string) *core.ChatResponse {
	content := ""
	if len(resp.Content) > 0 {
		content = resp.Content[0].Text
	}

	out := &core.ChatResponse{
		Message: core.Message{
			ID:        resp.ID,
			Role:      core.RoleAssistant,
			Content:   content,
			Timestamp: time.Now(),
			Model:     model,
		},
	}
	if resp.Usage != nil {
		out.Usage = core.NewUsage(resp.Usage.InputTokens, resp.Usage.OutputTokens)
	}
	return out
}

// Chat sends a Messages API request to Anthropic
func (t *Translator) Chat(ctx context.Context, credential, model string, messages []core.Message) (*core.ChatResponse, error) {
	var resp anthropicResponse
	raw, err := t.client.Do(ctx, llmclient.Request{
		Method:     http.MethodPost,
		Endpoint:   "/messages",
		Body:       convertToAnthropicRequest(model, messages),
		SetHeaders: headers(credential),
	}, &resp)
	if err != nil {
		return nil, err
	}

	// A body without a content array is not a message object.
	if resp.Content == nil {
		return nil, core.NewUpstreamEmptyError(core.ProviderAnthropic, raw.Body)
	}

	return convertFromAnthropicResponse(&resp, model), nil
}

// ValidateKey sends the smallest possible message. Anthropic has no per-key
// model listing, so success returns a fixed catalog.
func (t *Translator) ValidateKey(ctx context.Context, rawKey string) ([]string, error) {
	_, err := t.client.DoRaw(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/messages",
		Body: &anthropicRequest{
			Model:     probeModel,
			Messages:  []anthropicMessage{{Role: string(core.RoleUser), Content: "Hi"}},
			MaxTokens: 1,
		},
		SetHeaders: headers(rawKey),
	})
	if err != nil {
		return nil, core.NewInvalidCredentialError(core.ProviderAnthropic, err)
	}

	out := make([]string, len(validatedModels))
	copy(out, validatedModels)
	return out, nil
}

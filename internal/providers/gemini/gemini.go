// Package gemini provides the Google Gemini translator over the native
// generateContent API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"keyring/internal/core"
	"keyring/internal/llmclient"
	"keyring/internal/providers"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	probeModel = "gemini-pro"
)

var validatedModels = []string{"gemini-pro", "gemini-pro-vision", "gemini-1.5-pro", "gemini-1.5-flash"}

// Registration provides factory registration for Google.
var Registration = providers.Registration{
	Provider: core.ProviderGoogle,
	New:      New,
}

// Translator implements core.Translator for Gemini.
type Translator struct {
	client *llmclient.Client
}

// New creates a new Gemini translator.
func New(opts providers.Options) core.Translator {
	cfg := llmclient.Config{
		Provider: core.ProviderGoogle,
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

// headers sends the key as a header so it stays out of URLs and access logs.
func headers(apiKey string) llmclient.HeaderSetter {
	return func(req *http.Request) {
		req.Header.Set("x-goog-api-key", apiKey)
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type generationConfig struct {
	MaxOutputTokens int `json:"maxOutputTokens,omitempty"`
}

type generateRequest struct {
	Contents          []geminiContent   `json:"contents"`
	SystemInstruction *geminiContent    `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

// convertToGeminiRequest drops system turns from the conversation, maps
// every prior turn into history (user stays user, anything else is model)
// and sends the last remaining message as the new user turn. The first
// system message becomes the system instruction.
func convertToGeminiRequest(messages []core.Message) *generateRequest {
	req := &generateRequest{}

	turns := make([]core.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == core.RoleSystem {
			if req.SystemInstruction == nil {
				req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: msg.Content}}}
			}
			continue
		}
		turns = append(turns, msg)
	}

	var last core.Message
	if n := len(turns); n > 0 {
		last = turns[n-1]
		turns = turns[:n-1]
	}

	req.Contents = make([]geminiContent, 0, len(turns)+1)
	for _, msg := range turns {
		role := "model"
		if msg.Role == core.RoleUser {
			role = "user"
		}
		req.Contents = append(req.Contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: msg.Content}},
		})
	}
	req.Contents = append(req.Contents, geminiContent{
		Role:  "user",
		Parts: []geminiPart{{Text: last.Content}},
	})

	return req
}

// endpoint keeps the caller's model inside a single path segment.
func endpoint(model string) string {
	return "/models/" + url.PathEscape(model) + ":generateContent"
}

// Chat sends a generateContent request. Token usage is not reported on this path.
func (t *Translator) Chat(ctx context.Context, credential, model string, messages []core.Message) (*core.ChatResponse, error) {
	resp, err := t.client.DoRaw(ctx, llmclient.Request{
		Method:     http.MethodPost,
		Endpoint:   endpoint(model),
		Body:       convertToGeminiRequest(messages),
		SetHeaders: headers(credential),
	})
	if err != nil {
		return nil, err
	}

	if !gjson.ValidBytes(resp.Body) {
		return nil, core.NewUpstreamHTTPError(core.ProviderGoogle, resp.StatusCode, resp.Body,
			errors.New("failed to parse response"))
	}

	candidate := gjson.GetBytes(resp.Body, "candidates.0")
	if !candidate.Exists() {
		return nil, core.NewUpstreamEmptyError(core.ProviderGoogle, resp.Body)
	}

	var sb strings.Builder
	for _, part := range candidate.Get("content.parts.#.text").Array() {
		sb.WriteString(part.String())
	}

	now := time.Now()
	return &core.ChatResponse{
		Message: core.Message{
			ID:        fmt.Sprintf("gemini-%d", now.UnixMilli()),
			Role:      core.RoleAssistant,
			Content:   sb.String(),
			Timestamp: now,
			Model:     model,
		},
	}, nil
}

// ValidateKey asks gemini-pro for a single token and returns a fixed catalog on success.
func (t *Translator) ValidateKey(ctx context.Context, rawKey string) ([]string, error) {
	_, err := t.client.DoRaw(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: endpoint(probeModel),
		Body: &generateRequest{
			Contents:         []geminiContent{{Role: "user", Parts: []geminiPart{{Text: "Hi"}}}},
			GenerationConfig: &generationConfig{MaxOutputTokens: 1},
		},
		SetHeaders: headers(rawKey),
	})
	if err != nil {
		return nil, core.NewInvalidCredentialError(core.ProviderGoogle, err)
	}

	out := make([]string, len(validatedModels))
	copy(out, validatedModels)
	return out, nil
}

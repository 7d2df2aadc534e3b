package usage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"keyring/internal/core"
)

// Endpoints recorded in UsageEntry.Endpoint.
const (
	EndpointChat  = "/api/chat"
	EndpointAgent = "/api/agent/execute"
)

// NewEntry builds a usage record for a completed adapter call. It returns nil
// when the provider reported no token counts, so absent usage is never stored
// as zeros.
func NewEntry(ctx context.Context, userID string, provider core.Provider, endpoint string, resp *core.ChatResponse) *UsageEntry {
	if resp == nil || resp.Usage == nil {
		return nil
	}

	return &UsageEntry{
		ID:           uuid.NewString(),
		RequestID:    core.GetRequestID(ctx),
		UserID:       userID,
		ProviderID:   resp.Message.ID,
		Timestamp:    time.Now().UTC(),
		Provider:     string(provider),
		Model:        resp.Message.Model,
		Endpoint:     endpoint,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}
}

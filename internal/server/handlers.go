// Package server provides HTTP handlers and server setup for the keyring API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"keyring/internal/agent"
	"keyring/internal/auth"
	"keyring/internal/cache"
	"keyring/internal/core"
	"keyring/internal/memory"
	"keyring/internal/providers"
	"keyring/internal/secrets"
	"keyring/internal/store"
	"keyring/internal/usage"
)

// Store is the persistence used by the handlers.
type Store interface {
	CreateUser(ctx context.Context, email, name, passwordHash string) (*store.User, error)
	GetUser(ctx context.Context, id string) (*store.User, error)
	GetUserByEmail(ctx context.Context, email string) (*store.User, error)
	UpdateProfile(ctx context.Context, id string, upd store.ProfileUpdate) (*store.User, error)
	DeleteUser(ctx context.Context, id string) error

	UpsertKey(ctx context.Context, userID string, provider core.Provider, secret string) (*core.Credential, error)
	GetKey(ctx context.Context, userID string, provider core.Provider) (*core.Credential, error)
	ListKeys(ctx context.Context, userID string) ([]core.Credential, error)
	DeleteKey(ctx context.Context, userID string, provider core.Provider) error
	UpdateKeyModels(ctx context.Context, userID string, provider core.Provider, models []string) (*core.Credential, error)

	SaveChat(ctx context.Context, userID, title string, messages []core.Message, provider core.Provider, model string) (*store.Chat, error)
	ListChats(ctx context.Context, userID string, page int) (*store.ChatPage, error)
	SearchChats(ctx context.Context, userID, query string) ([]store.ChatSummary, error)
	GetChat(ctx context.Context, userID, id string) (*store.Chat, error)
	ListAllChats(ctx context.Context, userID string) ([]store.Chat, error)
	DeleteChat(ctx context.Context, userID, id string) error

	ListMemory(ctx context.Context, userID string, limit int) ([]memory.Entry, error)
	SetMemory(ctx context.Context, userID, key, value string) (*memory.Entry, error)
	DeleteMemory(ctx context.Context, userID, key string) error
	ClearMemory(ctx context.Context, userID string) error
}

// Tokens issues, rotates and verifies session tokens.
type Tokens interface {
	auth.AccessVerifier
	Issue(ctx context.Context, userID string) (*auth.Tokens, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.Tokens, error)
	Revoke(ctx context.Context, refreshToken string)
}

// Deps are the collaborators of the HTTP handlers. Store, Adapter and Tokens
// are required.
type Deps struct {
	Store   Store
	Adapter core.ChatAdapter
	Tokens  Tokens

	// Validator probes keys for /api/keys/validate. Defaults to Adapter.
	Validator cache.KeyValidator
	// Sealer protects stored keys. Defaults to storing them as given.
	Sealer secrets.Sealer
	// Usage records token usage of chat and agent calls.
	Usage usage.Recorder
	// UsageReader serves /api/user/usage. Nil reports an empty summary.
	UsageReader usage.UsageReader
}

// Handler holds the HTTP handlers
type Handler struct {
	store       Store
	adapter     core.ChatAdapter
	validator   cache.KeyValidator
	sealer      secrets.Sealer
	tokens      Tokens
	usage       usage.Recorder
	usageReader usage.UsageReader
	agents      *agent.Runner
}

// NewHandler creates a new handler from deps
func NewHandler(deps Deps) *Handler {
	h := &Handler{
		store:       deps.Store,
		adapter:     deps.Adapter,
		validator:   deps.Validator,
		sealer:      deps.Sealer,
		tokens:      deps.Tokens,
		usage:       deps.Usage,
		usageReader: deps.UsageReader,
		agents:      agent.NewRunner(deps.Adapter),
	}
	if h.validator == nil {
		h.validator = deps.Adapter
	}
	if h.sealer == nil {
		h.sealer, _ = secrets.New("")
	}
	if h.usage == nil {
		h.usage = usage.NoopLogger{}
	}
	return h
}

// Health handles GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

// ListProviders handles GET /api/providers
func (h *Handler) ListProviders(c echo.Context) error {
	return c.JSON(http.StatusOK, providers.Catalog())
}

type messageResponse struct {
	Message string `json:"message"`
}

func ok(c echo.Context, message string) error {
	return c.JSON(http.StatusOK, messageResponse{Message: message})
}

const (
	msgInvalidKey   = "Invalid or missing API key for this provider"
	msgRateLimited  = "Rate limit exceeded. Please try again later."
	msgTokenLimit   = "Token limit exceeded. Please reduce message length."
	msgInvalidCreds = "Invalid credentials"
)

// handleError converts errors to appropriate HTTP responses
func handleError(c echo.Context, err error) error {
	gw := toGatewayError(err)
	if gw.HTTPStatusCode() >= http.StatusInternalServerError {
		slog.Error("request failed",
			"request_id", core.GetRequestID(c.Request().Context()),
			"path", c.Path(),
			"error", err,
		)
	}
	return c.JSON(gw.HTTPStatusCode(), gw.ToJSON())
}

// toGatewayError maps domain errors onto the client error envelope.
func toGatewayError(err error) *core.GatewayError {
	var gatewayErr *core.GatewayError
	if errors.As(err, &gatewayErr) {
		return gatewayErr
	}

	var budget *memory.BudgetError
	if errors.As(err, &budget) {
		return core.NewInvalidRequestError(budget.Error(), err)
	}

	var invalidCred *core.InvalidCredentialError
	if errors.As(err, &invalidCred) {
		return core.NewInvalidRequestError(msgInvalidKey, err)
	}

	var upstream *core.UpstreamError
	if errors.As(err, &upstream) {
		if upstream.Kind == core.UpstreamHTTP {
			switch {
			case upstream.IsRateLimited():
				return core.NewRateLimitError(msgRateLimited)
			case upstream.StatusCode == http.StatusUnauthorized || upstream.StatusCode == http.StatusForbidden:
				return core.NewInvalidRequestError(msgInvalidKey, err)
			case upstream.IsTokenLimit():
				return core.NewInvalidRequestError(msgTokenLimit, err)
			}
		}
		return core.NewProviderError(upstream.Error(), err)
	}

	switch {
	case errors.Is(err, core.ErrUnsupportedProvider), errors.Is(err, core.ErrEmptyConversation):
		return core.NewInvalidRequestError(err.Error(), err)
	case errors.Is(err, agent.ErrUnknownTool):
		return core.NewInvalidRequestError(err.Error(), err)
	case errors.Is(err, auth.ErrInvalidCredentials):
		return core.NewAuthenticationError(msgInvalidCreds)
	case errors.Is(err, auth.ErrInvalidToken):
		return core.NewAuthenticationError("Invalid refresh token")
	case errors.Is(err, store.ErrNotFound):
		return core.NewNotFoundError("Resource not found")
	case errors.Is(err, store.ErrConflict):
		return core.NewConflictError("Resource already exists")
	case errors.Is(err, context.DeadlineExceeded):
		return core.NewProviderError("provider request timed out", err)
	}

	return core.NewInternalError("an unexpected error occurred", err)
}

// errorHandler renders errors that never reached a handler (unknown routes,
// oversized bodies, panics) in the same envelope.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var gw *core.GatewayError
	var he *echo.HTTPError
	if errors.As(err, &he) {
		gw = &core.GatewayError{
			Type:       errorTypeForStatus(he.Code),
			Message:    fmt.Sprint(he.Message),
			StatusCode: he.Code,
			Err:        he.Internal,
		}
	} else {
		gw = toGatewayError(err)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(gw.HTTPStatusCode())
	} else {
		err = c.JSON(gw.HTTPStatusCode(), gw.ToJSON())
	}
	if err != nil {
		slog.Error("failed to write error response", "error", err)
	}
}

func errorTypeForStatus(status int) core.ErrorType {
	switch {
	case status == http.StatusUnauthorized:
		return core.ErrorTypeAuthentication
	case status == http.StatusNotFound:
		return core.ErrorTypeNotFound
	case status == http.StatusTooManyRequests:
		return core.ErrorTypeRateLimit
	case status >= http.StatusInternalServerError:
		return core.ErrorTypeInternal
	default:
		return core.ErrorTypeInvalidRequest
	}
}

// bind decodes the request body into v.
func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return core.NewInvalidRequestError("invalid request body", err)
	}
	return nil
}

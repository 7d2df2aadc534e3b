package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"keyring/internal/auth"
	"keyring/internal/core"
	"keyring/internal/store"
)

func keyNotFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return core.NewNotFoundError("API key not found")
	}
	return err
}

// ListKeys handles GET /api/keys. Secrets are never returned.
func (h *Handler) ListKeys(c echo.Context) error {
	keys, err := h.store.ListKeys(c.Request().Context(), auth.UserID(c))
	if err != nil {
		return handleError(c, err)
	}
	if keys == nil {
		keys = []core.Credential{}
	}
	return c.JSON(http.StatusOK, keys)
}

// AddKey handles POST /api/keys. The key is sealed before it is stored.
func (h *Handler) AddKey(c echo.Context) error {
	var req addKeyRequest
	if err := bind(c, &req); err != nil {
		return handleError(c, err)
	}
	provider, err := req.validate()
	if err != nil {
		return handleError(c, err)
	}

	sealed, err := h.sealer.Seal(req.APIKey)
	if err != nil {
		return handleError(c, core.NewInternalError("Failed to add API key", err))
	}

	cred, err := h.store.UpsertKey(c.Request().Context(), auth.UserID(c), provider, sealed)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, cred)
}

type validateKeyResponse struct {
	IsValid bool     `json:"isValid"`
	Models  []string `json:"models"`
	Error   string   `json:"error,omitempty"`
}

// ValidateKey handles POST /api/keys/validate. An invalid key is a normal
// result, not an HTTP error.
func (h *Handler) ValidateKey(c echo.Context) error {
	var req validateKeyRequest
	if err := bind(c, &req); err != nil {
		return handleError(c, err)
	}
	provider, err := req.validate()
	if err != nil {
		return handleError(c, err)
	}

	models, err := h.validator.ValidateKey(c.Request().Context(), provider, req.APIKey)
	if err != nil {
		slog.Info("key validation failed",
			"request_id", core.GetRequestID(c.Request().Context()),
			"provider", provider,
			"error", err,
		)
		return c.JSON(http.StatusOK, validateKeyResponse{Models: []string{}, Error: err.Error()})
	}
	if models == nil {
		models = []string{}
	}
	return c.JSON(http.StatusOK, validateKeyResponse{IsValid: true, Models: models})
}

// DeleteKey handles DELETE /api/keys/:provider
func (h *Handler) DeleteKey(c echo.Context) error {
	provider, err := core.ParseProvider(c.Param("provider"))
	if err != nil {
		return handleError(c, err)
	}
	if err := h.store.DeleteKey(c.Request().Context(), auth.UserID(c), provider); err != nil {
		return handleError(c, keyNotFound(err))
	}
	return ok(c, "API key deleted successfully")
}

// UpdateKeyModels handles PATCH /api/keys/:provider/models
func (h *Handler) UpdateKeyModels(c echo.Context) error {
	provider, err := core.ParseProvider(c.Param("provider"))
	if err != nil {
		return handleError(c, err)
	}
	var req updateModelsRequest
	if err := bind(c, &req); err != nil {
		return handleError(c, err)
	}
	if err := req.validate(); err != nil {
		return handleError(c, err)
	}

	cred, err := h.store.UpdateKeyModels(c.Request().Context(), auth.UserID(c), provider, req.Models)
	if err != nil {
		return handleError(c, keyNotFound(err))
	}
	return c.JSON(http.StatusOK, cred)
}

// credential loads and unseals the caller's key for provider. A missing or
// invalid key is reported to the client as a bad request.
func (h *Handler) credential(c echo.Context, provider core.Provider) (string, error) {
	cred, err := h.store.GetKey(c.Request().Context(), auth.UserID(c), provider)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", core.NewInvalidRequestError(msgInvalidKey, err)
		}
		return "", err
	}
	if !cred.IsValid {
		return "", core.NewInvalidRequestError(msgInvalidKey, nil)
	}

	secret, err := h.sealer.Open(cred.Secret)
	if err != nil {
		return "", core.NewInternalError("Failed to read stored API key", err)
	}
	return secret, nil
}

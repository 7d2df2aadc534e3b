package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"keyring/internal/auth"
	"keyring/internal/core"
	"keyring/internal/store"
)

type authResponse struct {
	User *store.User `json:"user"`
	*auth.Tokens
}

// Register handles POST /api/auth/register
func (h *Handler) Register(c echo.Context) error {
	var req registerRequest
	if err := bind(c, &req); err != nil {
		return handleError(c, err)
	}
	if err := req.validate(); err != nil {
		return handleError(c, err)
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return handleError(c, err)
	}

	ctx := c.Request().Context()
	user, err := h.store.CreateUser(ctx, req.Email, req.Name, hash)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return handleError(c, core.NewConflictError("User already exists"))
		}
		return handleError(c, err)
	}

	tokens, err := h.tokens.Issue(ctx, user.ID)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusCreated, authResponse{User: user, Tokens: tokens})
}

// Login handles POST /api/auth/login
func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := bind(c, &req); err != nil {
		return handleError(c, err)
	}
	if err := req.validate(); err != nil {
		return handleError(c, err)
	}

	ctx := c.Request().Context()
	user, err := h.store.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return handleError(c, auth.ErrInvalidCredentials)
		}
		return handleError(c, err)
	}
	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		return handleError(c, err)
	}

	tokens, err := h.tokens.Issue(ctx, user.ID)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, authResponse{User: user, Tokens: tokens})
}

// Refresh handles POST /api/auth/refresh. The presented refresh token is
// revoked and a new pair is returned.
func (h *Handler) Refresh(c echo.Context) error {
	var req refreshRequest
	if err := bind(c, &req); err != nil {
		return handleError(c, err)
	}
	if req.RefreshToken == "" {
		return handleError(c, core.NewInvalidRequestError("Refresh token required", nil))
	}

	tokens, err := h.tokens.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, tokens)
}

// Logout handles POST /api/auth/logout
func (h *Handler) Logout(c echo.Context) error {
	var req refreshRequest
	if err := bind(c, &req); err != nil {
		return handleError(c, err)
	}
	if req.RefreshToken != "" {
		h.tokens.Revoke(c.Request().Context(), req.RefreshToken)
	}
	return ok(c, "Logged out successfully")
}

package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"keyring/internal/auth"
	"keyring/internal/core"
	"keyring/internal/memory"
	"keyring/internal/store"
)

// ListMemory handles GET /api/memory
func (h *Handler) ListMemory(c echo.Context) error {
	entries, err := h.store.ListMemory(c.Request().Context(), auth.UserID(c), 0)
	if err != nil {
		return handleError(c, err)
	}
	if entries == nil {
		entries = []memory.Entry{}
	}
	return c.JSON(http.StatusOK, entries)
}

// SetMemory handles POST /api/memory
func (h *Handler) SetMemory(c echo.Context) error {
	var req memoryRequest
	if err := bind(c, &req); err != nil {
		return handleError(c, err)
	}
	if err := req.validate(); err != nil {
		return handleError(c, err)
	}

	entry, err := h.store.SetMemory(c.Request().Context(), auth.UserID(c), req.Key, req.Value)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, entry)
}

// DeleteMemory handles DELETE /api/memory/:key
func (h *Handler) DeleteMemory(c echo.Context) error {
	err := h.store.DeleteMemory(c.Request().Context(), auth.UserID(c), c.Param("key"))
	if errors.Is(err, store.ErrNotFound) {
		return handleError(c, core.NewNotFoundError("Memory not found"))
	}
	if err != nil {
		return handleError(c, err)
	}
	return ok(c, "Memory deleted successfully")
}

// ClearMemory handles DELETE /api/memory
func (h *Handler) ClearMemory(c echo.Context) error {
	if err := h.store.ClearMemory(c.Request().Context(), auth.UserID(c)); err != nil {
		return handleError(c, err)
	}
	return ok(c, "All memory cleared successfully")
}

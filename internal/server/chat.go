package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"keyring/internal/auth"
	"keyring/internal/core"
	"keyring/internal/memory"
	"keyring/internal/store"
	"keyring/internal/usage"
)

// Chat handles POST /api/chat
func (h *Handler) Chat(c echo.Context) error {
	var req chatRequest
	if err := bind(c, &req); err != nil {
		return handleError(c, err)
	}
	provider, messages, err := req.validate()
	if err != nil {
		return handleError(c, err)
	}

	secret, err := h.credential(c, provider)
	if err != nil {
		return handleError(c, err)
	}

	ctx := c.Request().Context()
	userID := auth.UserID(c)
	if req.UseMemory {
		entries, err := h.store.ListMemory(ctx, userID, memory.MaxContextEntries)
		if err != nil {
			return handleError(c, err)
		}
		messages = memory.Augment(entries, messages)
	}

	resp, err := h.adapter.Chat(ctx, provider, secret, req.Model, messages)
	if err != nil {
		return handleError(c, err)
	}

	h.usage.Write(usage.NewEntry(ctx, userID, provider, usage.EndpointChat, resp))
	return c.JSON(http.StatusOK, resp)
}

// SaveChat handles POST /api/chat/save
func (h *Handler) SaveChat(c echo.Context) error {
	var req saveChatRequest
	if err := bind(c, &req); err != nil {
		return handleError(c, err)
	}
	provider, messages, err := req.validate()
	if err != nil {
		return handleError(c, err)
	}

	chat, err := h.store.SaveChat(c.Request().Context(), auth.UserID(c), strings.TrimSpace(req.Title), messages, provider, req.Model)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, chat)
}

// ChatHistory handles GET /api/chat/history?page=N
func (h *Handler) ChatHistory(c echo.Context) error {
	page, err := strconv.Atoi(c.QueryParam("page"))
	if err != nil || page < 1 {
		page = 1
	}

	result, err := h.store.ListChats(c.Request().Context(), auth.UserID(c), page)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// SearchChats handles GET /api/chat/search?query=text
func (h *Handler) SearchChats(c echo.Context) error {
	query := strings.TrimSpace(c.QueryParam("query"))
	if query == "" {
		return handleError(c, core.NewInvalidRequestError("Search query required", nil))
	}

	chats, err := h.store.SearchChats(c.Request().Context(), auth.UserID(c), query)
	if err != nil {
		return handleError(c, err)
	}
	if chats == nil {
		chats = []store.ChatSummary{}
	}
	return c.JSON(http.StatusOK, chats)
}

func chatNotFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return core.NewNotFoundError("Chat not found")
	}
	return err
}

// GetChat handles GET /api/chat/:id
func (h *Handler) GetChat(c echo.Context) error {
	chat, err := h.store.GetChat(c.Request().Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		return handleError(c, chatNotFound(err))
	}
	return c.JSON(http.StatusOK, chat)
}

// DeleteChat handles DELETE /api/chat/:id. Chats are soft-deleted.
func (h *Handler) DeleteChat(c echo.Context) error {
	if err := h.store.DeleteChat(c.Request().Context(), auth.UserID(c), c.Param("id")); err != nil {
		return handleError(c, chatNotFound(err))
	}
	return ok(c, "Chat deleted successfully")
}

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/labstack/echo/v4"

	"keyring/internal/auth"
	"keyring/internal/core"
	"keyring/internal/memory"
	"keyring/internal/store"
	"keyring/internal/usage"
)

func userNotFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return core.NewNotFoundError("User not found")
	}
	return err
}

// GetProfile handles GET /api/user/profile
func (h *Handler) GetProfile(c echo.Context) error {
	user, err := h.store.GetUser(c.Request().Context(), auth.UserID(c))
	if err != nil {
		return handleError(c, userNotFound(err))
	}
	return c.JSON(http.StatusOK, user)
}

// UpdateProfile handles PATCH /api/user/profile
func (h *Handler) UpdateProfile(c echo.Context) error {
	var req profileRequest
	if err := bind(c, &req); err != nil {
		return handleError(c, err)
	}
	if err := req.validate(); err != nil {
		return handleError(c, err)
	}

	user, err := h.store.UpdateProfile(c.Request().Context(), auth.UserID(c), store.ProfileUpdate{
		Name:      req.Name,
		Bio:       req.Bio,
		AvatarURL: req.AvatarURL,
	})
	if err != nil {
		return handleError(c, userNotFound(err))
	}
	return c.JSON(http.StatusOK, user)
}

// DeleteAccount handles DELETE /api/user/account. Keys, chats, memory and
// sessions go with the user.
func (h *Handler) DeleteAccount(c echo.Context) error {
	if err := h.store.DeleteUser(c.Request().Context(), auth.UserID(c)); err != nil {
		return handleError(c, userNotFound(err))
	}
	return ok(c, "Account deleted successfully")
}

type exportData struct {
	User           *store.User    `json:"user"`
	ChatHistories  []store.Chat   `json:"chatHistories"`
	MemoryContexts []memory.Entry `json:"memoryContexts"`
	ExportedAt     time.Time      `json:"exportedAt"`
}

// ExportData handles GET /api/user/export. The body is brotli-compressed
// when the client accepts it.
func (h *Handler) ExportData(c echo.Context) error {
	ctx := c.Request().Context()
	userID := auth.UserID(c)

	user, err := h.store.GetUser(ctx, userID)
	if err != nil {
		return handleError(c, userNotFound(err))
	}
	chats, err := h.store.ListAllChats(ctx, userID)
	if err != nil {
		return handleError(c, err)
	}
	entries, err := h.store.ListMemory(ctx, userID, 0)
	if err != nil {
		return handleError(c, err)
	}

	data := exportData{
		User:           user,
		ChatHistories:  chats,
		MemoryContexts: entries,
		ExportedAt:     time.Now().UTC(),
	}
	if data.ChatHistories == nil {
		data.ChatHistories = []store.Chat{}
	}
	if data.MemoryContexts == nil {
		data.MemoryContexts = []memory.Entry{}
	}

	if !acceptsBrotli(c.Request()) {
		return c.JSON(http.StatusOK, data)
	}

	body, err := json.Marshal(data)
	if err != nil {
		return handleError(c, err)
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	res.Header().Set(echo.HeaderContentEncoding, "br")
	res.Header().Add(echo.HeaderVary, echo.HeaderAcceptEncoding)
	res.WriteHeader(http.StatusOK)

	w := brotli.NewWriterLevel(res, brotli.DefaultCompression)
	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func acceptsBrotli(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get(echo.HeaderAcceptEncoding), ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if !strings.EqualFold(strings.TrimSpace(name), "br") {
			continue
		}
		return strings.ReplaceAll(strings.TrimSpace(params), " ", "") != "q=0"
	}
	return false
}

// GetUsage handles GET /api/user/usage?days=N. Without days all stored
// usage is summarized.
func (h *Handler) GetUsage(c echo.Context) error {
	var since time.Time
	if raw := c.QueryParam("days"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days < 1 {
			return handleError(c, core.NewValidationError([]string{`"days" must be a positive integer`}))
		}
		since = time.Now().UTC().AddDate(0, 0, -days)
	}

	if h.usageReader == nil {
		return c.JSON(http.StatusOK, &usage.Summary{Providers: []usage.ProviderUsage{}})
	}

	summary, err := h.usageReader.Summary(c.Request().Context(), auth.UserID(c), since)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, summary)
}

package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"keyring/internal/auth"
	"keyring/internal/usage"
)

// ExecuteAgent handles POST /api/agent/execute
func (h *Handler) ExecuteAgent(c echo.Context) error {
	var req agentRequest
	if err := bind(c, &req); err != nil {
		return handleError(c, err)
	}
	tool, provider, err := req.validate()
	if err != nil {
		return handleError(c, err)
	}

	secret, err := h.credential(c, provider)
	if err != nil {
		return handleError(c, err)
	}

	ctx := c.Request().Context()
	result, resp, err := h.agents.Execute(ctx, provider, secret, req.Model, tool, req.Input)
	if err != nil {
		return handleError(c, err)
	}

	h.usage.Write(usage.NewEntry(ctx, auth.UserID(c), provider, usage.EndpointAgent, resp))
	return c.JSON(http.StatusOK, result)
}

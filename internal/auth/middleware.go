package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"keyring/internal/core"
)

// UserIDKey is the echo context key holding the authenticated user ID.
const UserIDKey = "user_id"

// AccessVerifier validates access tokens.
type AccessVerifier interface {
	VerifyAccess(token string) (string, error)
}

func unauthorized(c echo.Context, message string) error {
	return c.JSON(http.StatusUnauthorized, core.NewAuthenticationError(message).ToJSON())
}

// Middleware requires a valid "Bearer <access token>" Authorization header.
// The user ID is stored on the echo context and on the request context.
func Middleware(v AccessVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return unauthorized(c, "No token provided")
			}

			const prefix = "Bearer "
			if !strings.HasPrefix(authHeader, prefix) {
				return unauthorized(c, "invalid authorization header format, expected 'Bearer <token>'")
			}

			userID, err := v.VerifyAccess(strings.TrimPrefix(authHeader, prefix))
			if err != nil {
				return unauthorized(c, "Invalid token")
			}

			c.Set(UserIDKey, userID)
			req := c.Request()
			c.SetRequest(req.WithContext(core.WithUserID(req.Context(), userID)))
			return next(c)
		}
	}
}

// UserID returns the authenticated user ID set by Middleware.
func UserID(c echo.Context) string {
	if id, ok := c.Get(UserIDKey).(string); ok {
		return id
	}
	return ""
}

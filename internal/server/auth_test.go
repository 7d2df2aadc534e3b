package server

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(http.MethodPost, "/api/auth/register", map[string]string{
		"email":    "Ada@Example.com",
		"password": "password123",
		"name":     "Ada",
	}, "")

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode[map[string]any](t, rec)
	user := body["user"].(map[string]any)
	assert.Equal(t, "ada@example.com", user["email"])
	assert.Equal(t, "Ada", user["name"])
	assert.NotContains(t, rec.Body.String(), "passwordHash")
	assert.NotContains(t, rec.Body.String(), "password123")
	assert.NotEmpty(t, body["accessToken"])
	assert.NotEmpty(t, body["refreshToken"])

	t.Run("duplicate email", func(t *testing.T) {
		rec := h.do(http.MethodPost, "/api/auth/register", map[string]string{
			"email":    "ada@example.com",
			"password": "password456",
			"name":     "Other Ada",
		}, "")

		require.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "User already exists", decodeError(t, rec).Error.Message)
	})

	t.Run("validation", func(t *testing.T) {
		rec := h.do(http.MethodPost, "/api/auth/register", map[string]string{
			"email":    "not-an-email",
			"password": "short",
			"name":     "A",
		}, "")

		require.Equal(t, http.StatusBadRequest, rec.Code)
		body := decodeError(t, rec)
		assert.Equal(t, "Validation error", body.Error.Message)
		assert.ElementsMatch(t, []string{
			`"email" must be a valid email`,
			`"password" length must be at least 8 characters long`,
			`"name" length must be at least 2 characters long`,
		}, body.Error.Details)
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := h.do(http.MethodPost, "/api/auth/register", `{"email":`, "")
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid request body", decodeError(t, rec).Error.Message)
	})
}

func TestLogin(t *testing.T) {
	h := newHarness(t, nil)
	h.register("grace@example.com")

	tests := []struct {
		name     string
		email    string
		password string
		want     int
	}{
		{"valid credentials", "grace@example.com", "password123", http.StatusOK},
		{"email is case-insensitive", "GRACE@example.com", "password123", http.StatusOK},
		{"wrong password", "grace@example.com", "password124", http.StatusUnauthorized},
		{"unknown user", "nobody@example.com", "password123", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(http.MethodPost, "/api/auth/login", map[string]string{
				"email":    tt.email,
				"password": tt.password,
			}, "")

			require.Equal(t, tt.want, rec.Code, rec.Body.String())
			if tt.want == http.StatusUnauthorized {
				body := decodeError(t, rec)
				assert.Equal(t, "authentication_error", body.Error.Type)
				assert.Equal(t, "Invalid credentials", body.Error.Message)
				return
			}
			body := decode[map[string]any](t, rec)
			assert.NotEmpty(t, body["accessToken"])
		})
	}
}

func TestRefresh_RotatesTokens(t *testing.T) {
	h := newHarness(t, nil)
	s := h.register("linus@example.com")

	rec := h.do(http.MethodPost, "/api/auth/refresh", map[string]string{"refreshToken": s.RefreshToken}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rotated := decode[map[string]string](t, rec)
	assert.NotEmpty(t, rotated["accessToken"])
	assert.NotEqual(t, s.RefreshToken, rotated["refreshToken"])

	// the new access token works
	rec = h.do(http.MethodGet, "/api/user/profile", nil, rotated["accessToken"])
	assert.Equal(t, http.StatusOK, rec.Code)

	// the old refresh token was revoked
	rec = h.do(http.MethodPost, "/api/auth/refresh", map[string]string{"refreshToken": s.RefreshToken}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid refresh token", decodeError(t, rec).Error.Message)

	// an access token is not a refresh token
	rec = h.do(http.MethodPost, "/api/auth/refresh", map[string]string{"refreshToken": s.AccessToken}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(http.MethodPost, "/api/auth/refresh", map[string]string{}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Refresh token required", decodeError(t, rec).Error.Message)
}

func TestLogout(t *testing.T) {
	h := newHarness(t, nil)
	s := h.register("ken@example.com")

	rec := h.do(http.MethodPost, "/api/auth/logout", map[string]string{"refreshToken": s.RefreshToken}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Logged out successfully", decode[messageResponse](t, rec).Message)

	rec = h.do(http.MethodPost, "/api/auth/refresh", map[string]string{"refreshToken": s.RefreshToken}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// logging out without a token still succeeds
	rec = h.do(http.MethodPost, "/api/auth/logout", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDMiddleware(t *testing.T) {
	h := newHarness(t, nil)

	t.Run("generates request ID when missing", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()

		h.srv.ServeHTTP(rec, req)

		got := rec.Header().Get("X-Request-ID")
		require.NotEmpty(t, got)
		// UUID format (8-4-4-4-12 hex digits)
		assert.Len(t, got, 36)
	})

	t.Run("preserves existing request ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("X-Request-ID", "my-custom-id")
		rec := httptest.NewRecorder()

		h.srv.ServeHTTP(rec, req)

		assert.Equal(t, "my-custom-id", req.Header.Get("X-Request-ID"))
		assert.Equal(t, "my-custom-id", rec.Header().Get("X-Request-ID"))
	})
}

func TestHealth(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(http.MethodGet, "/health", nil, "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestMetricsEndpoint(t *testing.T) {
	tests := []struct {
		name           string
		config         *Config
		requestPath    string
		expectedStatus int
		expectBody     string // substring to check in response body
	}{
		{
			name:           "metrics enabled - default endpoint accessible",
			config:         &Config{MetricsEnabled: true, MetricsEndpoint: "/metrics"},
			requestPath:    "/metrics",
			expectedStatus: http.StatusOK,
			expectBody:     "go_goroutines",
		},
		{
			name:           "metrics enabled - empty endpoint defaults to /metrics",
			config:         &Config{MetricsEnabled: true},
			requestPath:    "/metrics",
			expectedStatus: http.StatusOK,
			expectBody:     "go_goroutines",
		},
		{
			name:           "metrics disabled - endpoint returns 404",
			config:         &Config{MetricsEndpoint: "/metrics"},
			requestPath:    "/metrics",
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "nil config - metrics disabled by default",
			requestPath:    "/metrics",
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "custom metrics endpoint path",
			config:         &Config{MetricsEnabled: true, MetricsEndpoint: "/custom-metrics"},
			requestPath:    "/custom-metrics",
			expectedStatus: http.StatusOK,
			expectBody:     "go_goroutines",
		},
		{
			name:           "path traversal is normalized",
			config:         &Config{MetricsEnabled: true, MetricsEndpoint: "/a/b/../c"},
			requestPath:    "/a/c",
			expectedStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.config)

			rec := h.do(http.MethodGet, tt.requestPath, nil, "")

			assert.Equal(t, tt.expectedStatus, rec.Code)
			if tt.expectBody != "" {
				assert.Contains(t, rec.Body.String(), tt.expectBody)
			}
		})
	}
}

func TestUnknownRouteUsesErrorEnvelope(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(http.MethodGet, "/api/nope", nil, "")

	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "not_found_error", body.Error.Type)
	assert.NotEmpty(t, body.Error.Message)
}

func TestConfigurableBodySizeLimit(t *testing.T) {
	h := newHarness(t, &Config{BodySizeLimit: 1024})

	large := `{"email":"` + strings.Repeat("x", 2048) + `@example.com","password":"x"}`
	rec := h.do(http.MethodPost, "/api/auth/login", large, "")
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	small := `{"email":"nobody@example.com","password":"password123"}`
	rec = h.do(http.MethodPost, "/api/auth/login", small, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCORS(t *testing.T) {
	t.Run("wildcard by default", func(t *testing.T) {
		h := newHarness(t, nil)

		req := httptest.NewRequest(http.MethodOptions, "/api/keys", nil)
		req.Header.Set(echo.HeaderOrigin, "http://localhost:5173")
		req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodGet)
		rec := httptest.NewRecorder()
		h.srv.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "*", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	})

	t.Run("configured origins", func(t *testing.T) {
		h := newHarness(t, &Config{CORSOrigin: "https://app.example.com, https://admin.example.com"})

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(echo.HeaderOrigin, "https://admin.example.com")
		rec := httptest.NewRecorder()
		h.srv.ServeHTTP(rec, req)
		assert.Equal(t, "https://admin.example.com", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))

		req = httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(echo.HeaderOrigin, "https://evil.example.com")
		rec = httptest.NewRecorder()
		h.srv.ServeHTTP(rec, req)
		assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	})
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	h := newHarness(t, nil)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/user/profile"},
		{http.MethodGet, "/api/keys"},
		{http.MethodPost, "/api/chat"},
		{http.MethodGet, "/api/memory"},
		{http.MethodPost, "/api/agent/execute"},
		{http.MethodGet, "/api/providers"},
	}

	for _, r := range routes {
		t.Run(r.method+" "+r.path, func(t *testing.T) {
			rec := h.do(r.method, r.path, nil, "")
			require.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "No token provided", decodeError(t, rec).Error.Message)

			rec = h.do(r.method, r.path, nil, "not-a-jwt")
			require.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "Invalid token", decodeError(t, rec).Error.Message)
		})
	}
}

func TestListProviders(t *testing.T) {
	h := newHarness(t, nil)
	s := h.register("providers@example.com")

	rec := h.do(http.MethodGet, "/api/providers", nil, s.AccessToken)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[[]struct {
		ID            string   `json:"id"`
		Name          string   `json:"name"`
		DefaultModels []string `json:"defaultModels"`
	}](t, rec)
	require.Len(t, body, 4)
	assert.Equal(t, "openrouter", body[0].ID)
	assert.Equal(t, "Google Gemini", body[3].Name)
	assert.NotEmpty(t, body[1].DefaultModels)
}

package server

import (
	"context"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"keyring/config"
	"keyring/internal/auth"
	"keyring/internal/ratelimit"
)

// Server wraps the Echo server
type Server struct {
	echo    *echo.Echo
	handler *Handler
}

// Config holds server configuration options
type Config struct {
	CORSOrigin      string // Comma-separated allowed origins, "*" when empty
	MetricsEnabled  bool   // Whether to expose Prometheus metrics endpoint
	MetricsEndpoint string // HTTP path for metrics endpoint (default: /metrics)
	BodySizeLimit   int64  // Max request body size in bytes (default: 10MB)

	// Rate limit policies; zero values use the ratelimit package defaults.
	GeneralLimit    ratelimit.Policy
	ChatLimit       ratelimit.Policy
	ValidationLimit ratelimit.Policy
}

func policyOr(p, def ratelimit.Policy) ratelimit.Policy {
	if p.Requests <= 0 || p.Window <= 0 {
		return def
	}
	if p.Message == "" {
		p.Message = def.Message
	}
	return p
}

// New creates a new HTTP server
func New(deps Deps, cfg *Config) *Server {
	if cfg == nil {
		cfg = &Config{}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	handler := NewHandler(deps)

	// Global middleware stack (order matters)
	e.Use(requestID())
	e.Use(requestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(corsConfig(cfg.CORSOrigin)))

	// Body size limit (default: 10MB)
	bodySizeLimit := config.DefaultBodySizeLimit
	if cfg.BodySizeLimit > 0 {
		bodySizeLimit = cfg.BodySizeLimit
	}
	e.Use(middleware.BodyLimit(strconv.FormatInt(bodySizeLimit, 10)))

	// Public routes
	e.GET("/health", handler.Health)
	if cfg.MetricsEnabled {
		metricsPath := "/metrics"
		if cfg.MetricsEndpoint != "" {
			// Normalize path to prevent traversal attacks
			metricsPath = path.Clean(cfg.MetricsEndpoint)
		}
		e.GET(metricsPath, echo.WrapHandler(promhttp.Handler()))
	}

	general := ratelimit.Middleware(ratelimit.New(policyOr(cfg.GeneralLimit, ratelimit.General)), nil)
	chat := ratelimit.Middleware(ratelimit.New(policyOr(cfg.ChatLimit, ratelimit.Chat)), nil)
	validation := ratelimit.Middleware(ratelimit.New(policyOr(cfg.ValidationLimit, ratelimit.Validation)), nil)
	authed := auth.Middleware(deps.Tokens)

	api := e.Group("/api")

	// Authentication, limited per client IP
	api.POST("/auth/register", handler.Register, general)
	api.POST("/auth/login", handler.Login, general)
	api.POST("/auth/refresh", handler.Refresh, general)
	api.POST("/auth/logout", handler.Logout, general)

	// Everything else requires an access token and is limited per user
	api.GET("/user/profile", handler.GetProfile, authed, general)
	api.PATCH("/user/profile", handler.UpdateProfile, authed, general)
	api.DELETE("/user/account", handler.DeleteAccount, authed, general)
	api.GET("/user/export", handler.ExportData, authed, general)
	api.GET("/user/usage", handler.GetUsage, authed, general)

	api.GET("/keys", handler.ListKeys, authed, general)
	api.POST("/keys", handler.AddKey, authed, general)
	api.POST("/keys/validate", handler.ValidateKey, authed, validation)
	api.DELETE("/keys/:provider", handler.DeleteKey, authed, general)
	api.PATCH("/keys/:provider/models", handler.UpdateKeyModels, authed, general)

	api.POST("/chat", handler.Chat, authed, chat)
	api.POST("/chat/save", handler.SaveChat, authed, general)
	api.GET("/chat/history", handler.ChatHistory, authed, general)
	api.GET("/chat/search", handler.SearchChats, authed, general)
	api.GET("/chat/:id", handler.GetChat, authed, general)
	api.DELETE("/chat/:id", handler.DeleteChat, authed, general)

	api.GET("/memory", handler.ListMemory, authed, general)
	api.POST("/memory", handler.SetMemory, authed, general)
	api.DELETE("/memory", handler.ClearMemory, authed, general)
	api.DELETE("/memory/:key", handler.DeleteMemory, authed, general)

	api.POST("/agent/execute", handler.ExecuteAgent, authed, chat)

	api.GET("/providers", handler.ListProviders, authed, general)

	return &Server{
		echo:    e,
		handler: handler,
	}
}

func corsConfig(origin string) middleware.CORSConfig {
	origins := []string{"*"}
	if origin = strings.TrimSpace(origin); origin != "" && origin != "*" {
		origins = strings.Split(origin, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
	}
	return middleware.CORSConfig{
		AllowOrigins:     origins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderAuthorization, echo.HeaderContentType, echo.HeaderXRequestID},
		ExposeHeaders:    []string{echo.HeaderXRequestID, "Retry-After", "RateLimit-Limit"},
		AllowCredentials: origins[0] != "*",
	}
}

// Start starts the HTTP server on the given address
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP implements the http.Handler interface, allowing Server to be used with httptest
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"keyring/internal/auth"
	"keyring/internal/core"
	"keyring/internal/secrets"
	"keyring/internal/storage"
	"keyring/internal/store"
	"keyring/internal/usage"
)

// stubAdapter records the last call and returns canned results.
type stubAdapter struct {
	mu sync.Mutex

	reply   *core.ChatResponse
	chatErr error

	models        []string
	validateErr   error
	validateCalls int

	provider   core.Provider
	credential string
	model      string
	messages   []core.Message
}

func (a *stubAdapter) Chat(_ context.Context, provider core.Provider, credential, model string, messages []core.Message) (*core.ChatResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.provider, a.credential, a.model = provider, credential, model
	a.messages = core.CloneMessages(messages)
	if a.chatErr != nil {
		return nil, a.chatErr
	}
	return a.reply, nil
}

func (a *stubAdapter) ValidateKey(_ context.Context, _ core.Provider, _ string) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.validateCalls++
	if a.validateErr != nil {
		return nil, a.validateErr
	}
	return a.models, nil
}

type usageRecorder struct {
	mu      sync.Mutex
	entries []*usage.UsageEntry
}

func (r *usageRecorder) Write(e *usage.UsageEntry) {
	if e == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *usageRecorder) Close() error { return nil }

func (r *usageRecorder) all() []*usage.UsageEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*usage.UsageEntry(nil), r.entries...)
}

type harness struct {
	t       *testing.T
	srv     *Server
	store   *store.Store
	adapter *stubAdapter
	usage   *usageRecorder
	sealer  secrets.Sealer
}

func newHarness(t *testing.T, cfg *Config) *harness {
	return newHarnessWith(t, cfg, nil)
}

func newHarnessWith(t *testing.T, cfg *Config, edit func(*Deps)) *harness {
	t.Helper()

	db, err := storage.NewSQLite(storage.SQLiteConfig{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	st, err := store.New(context.Background(), db)
	require.NoError(t, err)

	issuer, err := auth.NewIssuer("access-secret", "refresh-secret", st)
	require.NoError(t, err)

	sealer, err := secrets.New("test-passphrase")
	require.NoError(t, err)

	adapter := &stubAdapter{
		reply: &core.ChatResponse{
			Message: core.Message{ID: "msg-1", Role: core.RoleAssistant, Content: "Hello!", Model: "gpt-4o"},
			Usage:   core.NewUsage(3, 2),
		},
		models: []string{"gpt-4o", "gpt-4o-mini"},
	}
	rec := &usageRecorder{}

	deps := Deps{
		Store:   st,
		Adapter: adapter,
		Tokens:  issuer,
		Sealer:  sealer,
		Usage:   rec,
	}
	if edit != nil {
		edit(&deps)
	}

	return &harness{
		t:       t,
		srv:     New(deps, cfg),
		store:   st,
		adapter: adapter,
		usage:   rec,
		sealer:  sealer,
	}
}

func (h *harness) do(method, path string, body any, token string) *httptest.ResponseRecorder {
	h.t.Helper()

	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(h.t, err)
		r = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	return h.serve(req)
}

func (h *harness) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.srv.ServeHTTP(rec, req)
	return rec
}

// newRequest builds a bodyless request carrying token.
func newRequest(t *testing.T, method, path, token string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	return req
}

type session struct {
	UserID       string
	AccessToken  string
	RefreshToken string
}

func (h *harness) register(email string) session {
	h.t.Helper()

	rec := h.do(http.MethodPost, "/api/auth/register", map[string]string{
		"email":    email,
		"password": "password123",
		"name":     "Test User",
	}, "")
	require.Equal(h.t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decode[struct {
		User         store.User `json:"user"`
		AccessToken  string     `json:"accessToken"`
		RefreshToken string     `json:"refreshToken"`
	}](h.t, rec)
	return session{UserID: resp.User.ID, AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken}
}

func (h *harness) addKey(token string, provider core.Provider, key string) {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/api/keys", map[string]string{"provider": string(provider), "apiKey": key}, token)
	require.Equal(h.t, http.StatusOK, rec.Code, rec.Body.String())
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type errorBody struct {
	Error struct {
		Type    string   `json:"type"`
		Message string   `json:"message"`
		Details []string `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	return decode[errorBody](t, rec)
}

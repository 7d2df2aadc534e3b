package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keyring/internal/core"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newLimiter(p Policy) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := New(p)
	l.now = clock.now
	return l, clock
}

func TestLimiter_Burst(t *testing.T) {
	l, clock := newLimiter(Policy{Requests: 3, Window: time.Minute})

	for i := 0; i < 3; i++ {
		ok, _ := l.Allow("a")
		require.True(t, ok, "request %d", i)
	}
	ok, retry := l.Allow("a")
	assert.False(t, ok)
	assert.InDelta(t, float64(20*time.Second), float64(retry), float64(time.Millisecond))

	ok, _ = l.Allow("b")
	assert.True(t, ok, "buckets are per key")

	clock.t = clock.t.Add(20 * time.Second)
	ok, _ = l.Allow("a")
	assert.True(t, ok, "one token refilled")
}

func TestLimiter_RejectionDoesNotConsume(t *testing.T) {
	l, clock := newLimiter(Policy{Requests: 1, Window: time.Minute})

	ok, _ := l.Allow("a")
	require.True(t, ok)
	for i := 0; i < 5; i++ {
		ok, _ = l.Allow("a")
		require.False(t, ok)
	}

	clock.t = clock.t.Add(time.Minute)
	ok, _ = l.Allow("a")
	assert.True(t, ok)
}

func TestLimiter_EvictsIdle(t *testing.T) {
	l, clock := newLimiter(Policy{Requests: 5, Window: time.Minute})

	l.Allow("a")
	l.Allow("b")
	assert.Equal(t, 2, l.Len())

	clock.t = clock.t.Add(2 * time.Minute)
	l.Allow("c")
	assert.Equal(t, 1, l.Len())
}

func TestPolicies(t *testing.T) {
	assert.Equal(t, 100, General.Requests)
	assert.Equal(t, time.Minute, General.Window)
	assert.Equal(t, 30, Chat.Requests)
	assert.Equal(t, 10, Validation.Requests)
	assert.Equal(t, time.Hour, Validation.Window)
}

func TestMiddleware(t *testing.T) {
	l, _ := newLimiter(Policy{Requests: 2, Window: time.Minute, Message: "slow down"})

	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, Middleware(l, nil))

	do := func(remote, user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.RemoteAddr = remote
		if user != "" {
			req = req.WithContext(core.WithUserID(req.Context(), user))
		}
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, do("10.0.0.1:1234", "").Code)
	assert.Equal(t, http.StatusOK, do("10.0.0.1:1234", "").Code)

	rec := do("10.0.0.1:1234", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	assert.Equal(t, "2", rec.Header().Get("RateLimit-Limit"))
	assert.Contains(t, rec.Body.String(), "slow down")
	assert.Contains(t, rec.Body.String(), "rate_limit_error")

	assert.Equal(t, http.StatusOK, do("10.0.0.2:1234", "").Code, "other IP")
	assert.Equal(t, http.StatusOK, do("10.0.0.1:1234", "u1").Code, "authenticated users are keyed by ID")
}

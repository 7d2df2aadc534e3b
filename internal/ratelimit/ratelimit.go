// Package ratelimit provides per-client token bucket limits for the HTTP API.
package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"keyring/internal/core"
)

// Policy is a number of requests allowed per window.
type Policy struct {
	Requests int
	Window   time.Duration
	Message  string
}

// Built-in policies.
var (
	General = Policy{
		Requests: 100,
		Window:   time.Minute,
		Message:  "Too many requests, please try again later.",
	}
	Chat = Policy{
		Requests: 30,
		Window:   time.Minute,
		Message:  "Too many chat requests, please slow down.",
	}
	Validation = Policy{
		Requests: 10,
		Window:   time.Hour,
		Message:  "Too many API key validations, please try again later.",
	}
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter keeps one token bucket per client key. The bucket holds
// Policy.Requests tokens and refills evenly over Policy.Window. Buckets idle
// for a full window are evicted since they would be full again anyway.
type Limiter struct {
	policy    Policy
	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
	now       func() time.Time
}

// New creates a Limiter for policy.
func New(policy Policy) *Limiter {
	return &Limiter{
		policy:  policy,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow takes a token for key. When the bucket is empty it returns false and
// how long until the next token is available.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.policy.Window {
		l.sweep(now)
	}

	b, ok := l.buckets[key]
	if !ok {
		every := rate.Every(l.policy.Window / time.Duration(l.policy.Requests))
		b = &bucket{limiter: rate.NewLimiter(every, l.policy.Requests)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	r := b.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (l *Limiter) sweep(now time.Time) {
	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) >= l.policy.Window {
			delete(l.buckets, k)
		}
	}
	l.lastSweep = now
}

// Len reports the number of tracked clients.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// KeyFunc picks the client identity for a request.
type KeyFunc func(c echo.Context) string

// ClientKey uses the authenticated user when there is one, otherwise the client IP.
func ClientKey(c echo.Context) string {
	if id := core.GetUserID(c.Request().Context()); id != "" {
		return "user:" + id
	}
	return "ip:" + c.RealIP()
}

// Middleware rejects requests over the limit with 429 and a Retry-After header.
func Middleware(l *Limiter, key KeyFunc) echo.MiddlewareFunc {
	if key == nil {
		key = ClientKey
	}
	limit := strconv.Itoa(l.policy.Requests)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Response().Header().Set("RateLimit-Limit", limit)

			ok, retry := l.Allow(key(c))
			if !ok {
				secs := int(math.Ceil(retry.Round(time.Millisecond).Seconds()))
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				return c.JSON(http.StatusTooManyRequests, core.NewRateLimitError(l.policy.Message).ToJSON())
			}
			return next(c)
		}
	}
}

// Package httpclient builds the pooled HTTP clients used for outbound
// provider calls.
package httpclient

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// TransportConfig tunes the connection pool behind a provider client.
// Request deadlines are not set here; callers bound each call with its
// context (see the PROVIDER_TIMEOUT setting).
type TransportConfig struct {
	MaxIdleConnsPerHost   int
	IdleConnTimeout       time.Duration
	DialTimeout           time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration

	// Provider labels outbound metrics. Empty disables instrumentation.
	Provider string
}

// DefaultTransportConfig returns pool settings sized for a handful of
// provider hosts with many concurrent users.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		MaxIdleConnsPerHost:   64,
		IdleConnTimeout:       90 * time.Second,
		DialTimeout:           10 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 5 * time.Minute,
	}
}

// NewHTTPClient creates a client over a fresh transport.
func NewHTTPClient(cfg TransportConfig) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		ForceAttemptHTTP2:     true,
	}

	var rt http.RoundTripper = transport
	if cfg.Provider != "" {
		rt = Instrument(cfg.Provider, rt)
	}
	return &http.Client{Transport: rt}
}

var shared sync.Map // provider -> *http.Client

// NewProviderHTTPClient returns the process-wide client for provider,
// creating it on first use. Every translator for the same provider reuses
// its connection pool; no per-user state lives in the client.
func NewProviderHTTPClient(provider string) *http.Client {
	if c, ok := shared.Load(provider); ok {
		return c.(*http.Client)
	}
	cfg := DefaultTransportConfig()
	cfg.Provider = provider
	c, _ := shared.LoadOrStore(provider, NewHTTPClient(cfg))
	return c.(*http.Client)
}

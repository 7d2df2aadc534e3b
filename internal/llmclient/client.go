// Package llmclient provides a base HTTP client for provider translators with:
// - Request marshaling/unmarshaling
// - Provider-specific header injection
// - Standardized upstream error construction
//
// Every call performs exactly one network attempt. Retries and circuit breaking
// are deliberately absent; callers decide what to do with an UpstreamError.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"keyring/internal/core"
	"keyring/internal/httpclient"
)

// Config holds configuration for the LLM client
type Config struct {
	// Provider identifies the provider for errors and metrics
	Provider core.Provider

	// BaseURL is the API base URL
	BaseURL string

	// Timeout bounds a single call on top of the caller's context. Zero means
	// the caller's context and the transport defaults are the only limits.
	Timeout time.Duration
}

// HeaderSetter is a function that sets headers on an HTTP request
type HeaderSetter func(req *http.Request)

// Client is a base HTTP client for provider translators
type Client struct {
	httpClient *http.Client
	config     Config
}

// New creates a new client with a pooled, instrumented transport for the provider.
func New(config Config) *Client {
	return &Client{
		httpClient: httpclient.NewProviderHTTPClient(string(config.Provider)),
		config:     config,
	}
}

// NewWithHTTPClient creates a new client with a custom HTTP client
func NewWithHTTPClient(httpClient *http.Client, config Config) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		config:     config,
	}
}

// Request represents an HTTP request to be made
type Request struct {
	Method   string
	Endpoint string
	Body     interface{} // Will be JSON marshaled if not nil
	// SetHeaders applies credential headers for this call.
	SetHeaders HeaderSetter
}

// Response represents an HTTP response
type Response struct {
	StatusCode int
	Body       []byte
}

// Do executes a request and unmarshals a 2xx body into result.
// The raw response is returned alongside so callers can attach it to errors.
func (c *Client) Do(ctx context.Context, req Request, result interface{}) (*Response, error) {
	resp, err := c.DoRaw(ctx, req)
	if err != nil {
		return nil, err
	}

	if result != nil {
		if err := json.Unmarshal(resp.Body, result); err != nil {
			return resp, core.NewUpstreamHTTPError(c.config.Provider, resp.StatusCode, resp.Body,
				fmt.Errorf("failed to unmarshal response: %w", err))
		}
	}

	return resp, nil
}

// DoRaw executes a single request and returns the raw body.
// Transport failures and non-2xx statuses become UpstreamError values.
func (c *Client) DoRaw(ctx context.Context, req Request) (*Response, error) {
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, core.NewUpstreamHTTPError(c.config.Provider, 0, nil, fmt.Errorf("failed to send request: %w", err))
	}
	defer func() {
		_ = resp.Body.Close() //nolint:errcheck
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.NewUpstreamHTTPError(c.config.Provider, resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, core.NewUpstreamHTTPError(c.config.Provider, resp.StatusCode, body, nil)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       body,
	}, nil
}

// buildRequest creates an HTTP request from a Request
func (c *Client) buildRequest(ctx context.Context, req Request) (*http.Request, error) {
	url := c.config.BaseURL + req.Endpoint

	var bodyReader io.Reader
	if req.Body != nil {
		bodyBytes, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	if req.SetHeaders != nil {
		req.SetHeaders(httpReq)
	}

	// Forward the inbound request ID for upstream correlation.
	if requestID := core.GetRequestID(ctx); requestID != "" && httpReq.Header.Get("X-Request-ID") == "" {
		httpReq.Header.Set("X-Request-ID", requestID)
	}

	return httpReq, nil
}

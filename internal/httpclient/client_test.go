package httpclient

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProviderHTTPClient_Shared(t *testing.T) {
	a := NewProviderHTTPClient("shared-test")
	b := NewProviderHTTPClient("shared-test")
	c := NewProviderHTTPClient("other-test")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Zero(t, a.Timeout, "deadlines come from the request context")
}

func TestNewProviderHTTPClient_RecordsMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	client := NewProviderHTTPClient("metrics-test")
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()

	got := testutil.ToFloat64(upstreamRequests.WithLabelValues("metrics-test", "get", "418"))
	assert.Equal(t, float64(1), got)
}

func TestNewHTTPClient_NoProviderSkipsInstrumentation(t *testing.T) {
	client := NewHTTPClient(DefaultTransportConfig())
	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok, "expected bare *http.Transport when no provider label is set")
	assert.Equal(t, 64, transport.MaxIdleConnsPerHost)
}

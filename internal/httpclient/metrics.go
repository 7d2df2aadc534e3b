package httpclient

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	upstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keyring_upstream_requests_total",
			Help: "Outbound provider requests by provider, method and status code",
		},
		[]string{"provider", "method", "code"},
	)

	upstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "keyring_upstream_request_duration_seconds",
			Help:    "Latency of outbound provider requests",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"provider", "method", "code"},
	)

	upstreamInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "keyring_upstream_requests_in_flight",
			Help: "Outbound provider requests currently waiting on a response",
		},
		[]string{"provider"},
	)
)

// Instrument wraps next so every round trip is counted and timed under provider.
func Instrument(provider string, next http.RoundTripper) http.RoundTripper {
	labels := prometheus.Labels{"provider": provider}
	return promhttp.InstrumentRoundTripperInFlight(
		upstreamInFlight.With(labels),
		promhttp.InstrumentRoundTripperCounter(
			upstreamRequests.MustCurryWith(labels),
			promhttp.InstrumentRoundTripperDuration(
				upstreamDuration.MustCurryWith(labels),
				next,
			),
		),
	)
}

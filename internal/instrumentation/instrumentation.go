// Package instrumentation exposes Prometheus metrics for API client
// requests.
package instrumentation

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RoundTripper wraps next with request metrics registered on registry:
// an in-flight gauge, a request counter partitioned by status code and
// method, and a request duration histogram partitioned by method.
//
// Metric names are fixed, so registering twice on the same registry
// panics; use one registry per instrumented client.
func RoundTripper(registry prometheus.Registerer, next http.RoundTripper) http.RoundTripper {
	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cloudpoll_api_in_flight_requests",
		Help: "Number of API requests currently in flight.",
	})
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cloudpoll_api_requests_total",
		Help: "Total number of API requests, by HTTP status code and method.",
	}, []string{"code", "method"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cloudpoll_api_request_duration_seconds",
		Help:    "API request latency in seconds, by method.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	registry.MustRegister(inFlight, requests, duration)

	return promhttp.InstrumentRoundTripperInFlight(inFlight,
		promhttp.InstrumentRoundTripperCounter(requests,
			promhttp.InstrumentRoundTripperDuration(duration, next)))
}

// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farmiot_http_requests_total",
			Help: "Total requests by route, method and status.",
		},
		[]string{"route", "method", "status"},
	)

	Registrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farmiot_registrations_total",
			Help: "Gateway and device registrations by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	DegradedReads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farmiot_degraded_reads_total",
			Help: "Reads answered empty because the time-series store failed.",
		},
		[]string{"endpoint"},
	)

	IngestedPoints = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farmiot_ingested_points_total",
			Help: "Telemetry messages received over MQTT by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(RequestCounter, Registrations, DegradedReads, IngestedPoints)
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

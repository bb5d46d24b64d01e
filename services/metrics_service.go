package services

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keeper_http_requests_total",
			Help: "Total HTTP requests handled by the control API",
		},
		[]string{"route"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "keeper_http_request_duration_seconds",
			Help:    "Duration of control API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	errorCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keeper_http_request_errors_total",
			Help: "Requests answered with a 4xx/5xx status",
		},
		[]string{"route"},
	)

	serviceStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keeper_service_starts_total",
			Help: "Successful service starts",
		},
		[]string{"service"},
	)

	serviceStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keeper_service_stops_total",
			Help: "Completed service stops",
		},
		[]string{"service"},
	)

	serviceCrashes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keeper_service_crashes_total",
			Help: "Unexpected service exits",
		},
		[]string{"service"},
	)

	// Local mirrors for the health endpoint; the prometheus client does not
	// expose counter values for reading.
	totalRequests int64
	totalErrors   int64
)

func init() {
	prometheus.MustRegister(requestCount)
	prometheus.MustRegister(requestDuration)
	prometheus.MustRegister(errorCount)
	prometheus.MustRegister(serviceStarts)
	prometheus.MustRegister(serviceStops)
	prometheus.MustRegister(serviceCrashes)
}

func IncrementRequestCount(route string) {
	requestCount.WithLabelValues(route).Inc()
	atomic.AddInt64(&totalRequests, 1)
}

func RecordRequestDuration(route string, seconds float64) {
	requestDuration.WithLabelValues(route).Observe(seconds)
}

func IncrementErrorCount(route string) {
	errorCount.WithLabelValues(route).Inc()
	atomic.AddInt64(&totalErrors, 1)
}

func GetTotalRequestCount() int64 {
	return atomic.LoadInt64(&totalRequests)
}

func GetTotalErrorCount() int64 {
	return atomic.LoadInt64(&totalErrors)
}

func IncServiceStart(service string) {
	serviceStarts.WithLabelValues(service).Inc()
}

func IncServiceStop(service string) {
	serviceStops.WithLabelValues(service).Inc()
}

func IncServiceCrash(service string) {
	serviceCrashes.WithLabelValues(service).Inc()
}

package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outgoing request metrics.
var (
	registry     = prometheus.NewRegistry()
	registerOnce sync.Once

	clientInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rentdesk_client_in_flight_requests",
		Help: "In-flight requests to the rental API.",
	})

	clientRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rentdesk_client_requests_total",
			Help: "Total number of requests sent to the rental API.",
		},
		[]string{"method", "path", "status"},
	)

	clientRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rentdesk_client_request_duration_seconds",
			Help:    "Rental API request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	tokenRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rentdesk_client_token_refresh_total",
			Help: "Token refresh attempts by outcome.",
		},
		[]string{"outcome"},
	)

	cacheEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rentdesk_cache_events_total",
			Help: "Query cache events by kind.",
		},
		[]string{"event"},
	)
)

// Registry returns the registry holding client metrics, registering them on first use.
func Registry() *prometheus.Registry {
	registerOnce.Do(func() {
		registry.MustRegister(clientInFlight, clientRequestsTotal, clientRequestDuration, tokenRefreshTotal, cacheEventsTotal)
	})
	return registry
}

// Handler exposes the client metrics in Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry(), promhttp.HandlerOpts{})
}

// RequestStarted marks a request in flight and returns a func that records its completion.
func RequestStarted(method, path string) func(status int) {
	Registry()
	clientInFlight.Inc()
	start := time.Now()
	canonical := CanonicalPath(path)
	return func(status int) {
		code := strconv.Itoa(status)
		clientRequestDuration.WithLabelValues(method, canonical, code).Observe(time.Since(start).Seconds())
		clientRequestsTotal.WithLabelValues(method, canonical, code).Inc()
		clientInFlight.Dec()
	}
}

// RefreshOutcome counts a finished token refresh ("success" or "failure").
func RefreshOutcome(outcome string) {
	Registry()
	tokenRefreshTotal.WithLabelValues(outcome).Inc()
}

// CacheEvent counts a cache lifecycle event.
func CacheEvent(kind string) {
	Registry()
	cacheEventsTotal.WithLabelValues(kind).Inc()
}

// CanonicalPath collapses identifiers in an API path so metric labels stay bounded.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if isIdentifier(p) {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}

func isIdentifier(segment string) bool {
	if segment == "" {
		return false
	}
	digits := true
	for _, r := range segment {
		if r < '0' || r > '9' {
			digits = false
			break
		}
	}
	if digits {
		return true
	}
	// uuid or ulid
	if len(segment) == 36 && strings.Count(segment, "-") == 4 {
		return true
	}
	if len(segment) == 26 && strings.ToUpper(segment) == segment && !strings.ContainsAny(segment, "-_") {
		return true
	}
	return false
}

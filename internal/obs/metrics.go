package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Shared HTTP metrics
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets, // [0.005..10]
		},
		[]string{"method", "path", "status"},
	)
)

// Domain counters
var (
	submissionsAccepted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "submissions_accepted_total",
			Help: "Accepted form submissions by kind.",
		},
		[]string{"kind"},
	)

	notificationsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notifications_failed_total",
		Help: "Notification emails that could not be delivered.",
	})

	loginAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "login_attempts_total",
			Help: "Dashboard login attempts by outcome.",
		},
		[]string{"outcome"},
	)
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		submissionsAccepted, notificationsFailed, loginAttempts,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SubmissionAccepted counts one accepted form post.
func SubmissionAccepted(kind string) {
	submissionsAccepted.WithLabelValues(kind).Inc()
}

// NotificationFailed counts one undeliverable notification email.
func NotificationFailed() {
	notificationsFailed.Inc()
}

// LoginAttempted counts a login by outcome ("ok", "denied" or "limited").
func LoginAttempted(outcome string) {
	loginAttempts.WithLabelValues(outcome).Inc()
}

// CanonicalPath collapses id segments so the path label stays low-cardinality.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	parts := strings.Split(p, "/")
	switch {
	case len(parts) >= 4 && parts[1] == "v1" && parts[2] == "submissions" && parts[3] != "":
		if len(parts) == 5 && parts[4] == "resume" {
			return "/v1/submissions/:id/resume"
		}
		if len(parts) == 4 {
			return "/v1/submissions/:id"
		}
	case len(parts) == 4 && parts[1] == "v1" && parts[2] == "admins" && parts[3] != "":
		return "/v1/admins/:id"
	}
	return p
}

// Instrument wraps a handler with RPS/latency/in-flight measurement.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter records the response code for the metrics labels.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

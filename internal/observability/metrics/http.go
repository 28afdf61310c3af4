package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "collision"

// HTTPServerMetrics instruments the estimator's HTTP surface and serves the
// registry it was registered on.
type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
	rejected *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string, registry *prometheus.Registry) *HTTPServerMetrics {
	opts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        name,
			Help:        help,
			ConstLabels: prometheus.Labels{"service": service},
		}
	}

	m := &HTTPServerMetrics{
		registry: registry,
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts(opts("requests_total", "HTTP requests by route and status.")),
			[]string{"method", "path", "status"},
		),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        "request_duration_seconds",
			Help:        "HTTP request duration by route. Estimates are dominated by the model call.",
			ConstLabels: prometheus.Labels{"service": service},
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}, []string{"method", "path"}),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts(opts("in_flight_requests", "HTTP requests currently being served.")),
		),
		rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts(opts("rejected_total", "Requests turned away by rate limiting or backpressure.")),
			[]string{"reason"},
		),
	}
	registry.MustRegister(m.requests, m.duration, m.inFlight, m.rejected)
	return m
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware must be mounted inside the chi router so the matched route
// pattern is available as the path label.
func (m *HTTPServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		m.inFlight.Inc()
		defer m.inFlight.Dec()

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		path := routePattern(r)
		m.requests.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		m.duration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// RecordRejected counts a request refused by traffic control; reason is
// "rate_limited" or "overloaded".
func (m *HTTPServerMetrics) RecordRejected(reason string) {
	m.rejected.WithLabelValues(reason).Inc()
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return normalizePath(r.URL.Path)
}

// normalizePath bounds label cardinality for requests chi did not match.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/estimates/"):
		return "/v1/estimates/{id}"
	case path == "" || path == "/":
		return "/"
	default:
		return "other"
	}
}

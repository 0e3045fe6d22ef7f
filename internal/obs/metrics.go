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

// Общие HTTP-метрики
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

// Метрики разрешения тенанта и авторизации
var (
	tenantResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantry_tenant_resolutions_total",
			Help: "Tenant resolutions by winning signal source.",
		},
		[]string{"source", "degraded"},
	)

	directoryLookupFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantry_directory_lookup_failures_total",
			Help: "Directory lookups that failed because the backend was unavailable.",
		},
		[]string{"op"},
	)

	permissionDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantry_permission_decisions_total",
			Help: "Permission evaluations by outcome.",
		},
		[]string{"outcome"},
	)
)

var initOnce sync.Once

// Регистрация метрик в default-регистре.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			tenantResolutions, directoryLookupFailures, permissionDecisions,
		)
	})
}

// Хэндлер Prometheus.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveResolution counts a finished tenant resolution.
func ObserveResolution(source string, degraded bool) {
	tenantResolutions.WithLabelValues(source, strconv.FormatBool(degraded)).Inc()
}

// ObserveLookupFailure counts a directory lookup that hit an unavailable backend.
func ObserveLookupFailure(op string) {
	directoryLookupFailures.WithLabelValues(op).Inc()
}

// ObserveDecision counts a permission evaluation.
func ObserveDecision(outcome string) {
	permissionDecisions.WithLabelValues(outcome).Inc()
}

// Обёртка для измерения RPS/latency/в полёте.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// CanonicalPath keeps the path label bounded: query strings are dropped and
// unknown paths collapse to a single label.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	switch path {
	case "/", "/healthz", "/readyz", "/metrics",
		"/v1/context", "/v1/me/permissions", "/v1/authorize", "/v1/capabilities", "/v1/tenant", "/v1/session":
		return path
	default:
		return "other"
	}
}

// statusWriter: локальная копия, чтобы знать код ответа.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

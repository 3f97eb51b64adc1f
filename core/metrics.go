package core

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the Prometheus collectors of the portal on a private registry.
type Metrics struct {
	registry      *prometheus.Registry
	LoginAttempts *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec
	HTTPDurations *prometheus.HistogramVec
	ActiveHTTP    prometheus.Gauge
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		LoginAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_login_attempts_total",
			Help: "Login verdicts by kind.",
		}, []string{"kind"}),
		FetchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "portal_credential_fetch_duration_seconds",
			Help:    "Duration of credential grid fetches.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		HTTPDurations: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "portal_http_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method", "status"}),
		ActiveHTTP: f.NewGauge(prometheus.GaugeOpts{
			Name: "portal_http_active_requests",
			Help: "HTTP requests in flight.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveLogin(kind ErrorKind) {
	m.LoginAttempts.WithLabelValues(string(kind)).Inc()
}

// Middleware records per-route latency. Unmatched routes share one label.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.ActiveHTTP.Inc()
		defer m.ActiveHTTP.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.HTTPDurations.
			WithLabelValues(path, c.Request.Method, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

// InstrumentSource wraps src so every fetch is timed.
func (m *Metrics) InstrumentSource(src GridSource) GridSource {
	return &instrumentedSource{inner: src, hist: m.FetchDuration}
}

type instrumentedSource struct {
	inner GridSource
	hist  *prometheus.HistogramVec
}

func (s *instrumentedSource) Fetch(ctx context.Context, sheetID, cellRange, apiKey string) (CredentialGrid, error) {
	start := time.Now()
	grid, err := s.inner.Fetch(ctx, sheetID, cellRange, apiKey)
	s.hist.WithLabelValues(fetchOutcome(err)).Observe(time.Since(start).Seconds())
	return grid, err
}

func fetchOutcome(err error) string {
	if err == nil {
		return "ok"
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		// one label for every "status <code>" reason
		if strings.HasPrefix(fe.Reason, "status ") {
			return "upstream-status"
		}
		return fe.Reason
	}
	return "error"
}

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "voicebatch"

// Metrics holds all Prometheus collectors on a dedicated registry.
type Metrics struct {
	reg *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	WebhookDeliveries *prometheus.CounterVec
	SyncRuns          *prometheus.CounterVec
	ResultUpserts     *prometheus.CounterVec
	BatchesCompleted  *prometheus.CounterVec

	UpstreamRequestDuration *prometheus.HistogramVec
}

// New creates a Metrics instance with its own registry, including Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		WebhookDeliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Webhook deliveries by outcome.",
		}, []string{"outcome"}),
		SyncRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "Batch sync runs by outcome.",
		}, []string{"outcome"}),
		ResultUpserts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_result_upserts_total",
			Help:      "Call result upserts by ingestion path.",
		}, []string{"source"}),
		BatchesCompleted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_completed_total",
			Help:      "Batches observed as completed, by ingestion path.",
		}, []string{"source"}),
		UpstreamRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Voice platform API latency by operation and status.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 15},
		}, []string{"op", "status"}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Middleware records per-route request counts and latency.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) WebhookOutcome(outcome string) {
	m.WebhookDeliveries.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SyncOutcome(outcome string) {
	m.SyncRuns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ResultUpserted(source string) {
	m.ResultUpserts.WithLabelValues(source).Inc()
}

func (m *Metrics) BatchCompleted(source string) {
	m.BatchesCompleted.WithLabelValues(source).Inc()
}

// ObserveUpstream matches voiceagent.Observer.
func (m *Metrics) ObserveUpstream(op string, status int, d time.Duration) {
	m.UpstreamRequestDuration.WithLabelValues(op, strconv.Itoa(status)).Observe(d.Seconds())
}

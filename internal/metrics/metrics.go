package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kmsload"

// Collector exposes per-template request metrics. A nil *Collector is a
// valid no-op so the runner can call it unconditionally.
type Collector struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	bytes    *prometheus.CounterVec
	skipped  prometheus.Counter
	inflight prometheus.Gauge
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests sent to KMS, by template name and status code.",
		}, []string{"name", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time to full response body, by template name.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"name"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "response_bytes_total",
			Help:      "Response body bytes read, by template name.",
		}, []string{"name"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_iterations_total",
			Help:      "Iterations skipped because the template's seed list was empty.",
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inflight_requests",
			Help:      "Requests currently awaiting a response.",
		}),
	}
	c.registry.MustRegister(c.requests, c.latency, c.bytes, c.skipped, c.inflight)
	return c
}

// Observe records one completed request. status 0 is a transport error.
func (c *Collector) Observe(name string, status int, bytes int64, elapsed time.Duration) {
	if c == nil {
		return
	}
	code := strconv.Itoa(status)
	if status == 0 {
		code = "error"
	}
	c.requests.WithLabelValues(name, code).Inc()
	c.latency.WithLabelValues(name).Observe(elapsed.Seconds())
	if bytes > 0 {
		c.bytes.WithLabelValues(name).Add(float64(bytes))
	}
}

func (c *Collector) Skipped() {
	if c == nil {
		return
	}
	c.skipped.Inc()
}

func (c *Collector) InflightAdd(delta float64) {
	if c == nil {
		return
	}
	c.inflight.Add(delta)
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Package cloudvm_metrics exposes engine and request metrics in the Prometheus text format.
//
// A Collector is attached to a cloudvm.Server as its RequestObserver and serves its own
// registry through an ordinary route handler, so scraping goes through the same worker pool
// as every other request.
package cloudvm_metrics

import (
	"bytes"
	"strconv"
	"time"

	"github.com/jacksonzamorano/cloudvm"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Label used for requests that never parsed.
const InvalidMethod = "INVALID"

type Config struct {
	Namespace       string
	Subsystem       string
	DurationBuckets []float64
}

func DefaultConfig() *Config {
	return &Config{
		Namespace:       "cloudvm",
		Subsystem:       "http",
		DurationBuckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}
}

// Collector records request metrics and renders the registry.
//
// Metrics:
//   - cloudvm_http_requests_total: Responses written, by method and status
//   - cloudvm_http_request_duration_seconds: Time from read to write, by method
//   - cloudvm_http_response_size_bytes: Body size of written responses
//   - cloudvm_http_pool_*: Worker pool gauges, once RegisterPool is called
type Collector struct {
	config   *Config
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	responseSize    prometheus.Histogram
}

// NewCollector registers the request metrics with registry. A nil config uses
// DefaultConfig and a nil registry creates a fresh one.
func NewCollector(cfg *Config, registry *prometheus.Registry) *Collector {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if len(cfg.DurationBuckets) == 0 {
		cfg.DurationBuckets = DefaultConfig().DurationBuckets
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		config:   cfg,
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "requests_total",
				Help:      "Total number of responses written",
			},
			[]string{"method", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "request_duration_seconds",
				Help:      "Time spent serving a request, from read to write",
				Buckets:   cfg.DurationBuckets,
			},
			[]string{"method"},
		),
		responseSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "response_size_bytes",
				Help:      "Size of response bodies in bytes",
				Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
			},
		),
	}
	registry.MustRegister(c.requestsTotal, c.requestDuration, c.responseSize)
	return c
}

// RegisterPool exposes worker pool statistics. stats is called on every scrape.
func (c *Collector) RegisterPool(stats func() cloudvm.PoolStats) {
	gauge := func(name, help string, value func(cloudvm.PoolStats) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: c.config.Namespace,
				Subsystem: c.config.Subsystem,
				Name:      name,
				Help:      help,
			},
			func() float64 { return value(stats()) },
		)
	}
	c.registry.MustRegister(
		gauge("pool_workers", "Configured number of worker goroutines",
			func(s cloudvm.PoolStats) float64 { return float64(s.Size) }),
		gauge("pool_pending_tasks", "Tasks waiting in the queue",
			func(s cloudvm.PoolStats) float64 { return float64(s.Pending) }),
		gauge("pool_active_tasks", "Tasks currently running",
			func(s cloudvm.PoolStats) float64 { return float64(s.Active) }),
		prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Namespace: c.config.Namespace,
				Subsystem: c.config.Subsystem,
				Name:      "pool_completed_tasks_total",
				Help:      "Tasks finished since the pool started",
			},
			func() float64 { return float64(stats().Completed) },
		),
	)
}

// ObserveRequest implements cloudvm.RequestObserver.
func (c *Collector) ObserveRequest(req *cloudvm.HttpRequest, res *cloudvm.HttpResponse, elapsed time.Duration) {
	method := InvalidMethod
	if req != nil {
		method = string(req.Method)
	}
	status := strconv.Itoa(int(res.StatusCode))
	c.requestsTotal.WithLabelValues(method, status).Inc()
	c.requestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
	c.responseSize.Observe(float64(len(res.Body)))
}

// Registry returns the registry the collector writes to.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler renders every registered metric family in the text exposition format.
func (c *Collector) Handler(req *cloudvm.HttpRequest, res *cloudvm.HttpResponse) error {
	families, err := c.registry.Gather()
	if err != nil {
		return err
	}
	format := expfmt.NewFormat(expfmt.TypeTextPlain)
	var buf bytes.Buffer
	encoder := expfmt.NewEncoder(&buf, format)
	for _, family := range families {
		if err := encoder.Encode(family); err != nil {
			return err
		}
	}
	res.SetStatus(cloudvm.StatusOK)
	res.SetHeader("Content-Type", string(format))
	res.Body = buf.Bytes()
	return nil
}

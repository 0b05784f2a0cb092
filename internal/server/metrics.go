package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of one server instance.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
	uploads            *prometheus.CounterVec
	deletes            *prometheus.CounterVec
	evictions          prometheus.Counter
	enforceRuns        *prometheus.CounterVec
	blobDeleteFailures *prometheus.CounterVec
}

// Gauges are read at scrape time.
type Gauges struct {
	Photos          func(ctx context.Context) (int, error)
	Subscribers     func() int
	EventsDropped   func() uint64
	EventsDelivered func() uint64
}

// NewMetrics registers collectors on a fresh registry.
func NewMetrics(g Gauges) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "photowall_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "photowall_http_request_duration_seconds",
			Help:    "HTTP request duration by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		uploads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "photowall_uploads_total",
			Help: "Upload attempts by result.",
		}, []string{"result"}),
		deletes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "photowall_deletes_total",
			Help: "Explicit photo deletions by result.",
		}, []string{"result"}),
		evictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "photowall_evictions_total",
			Help: "Catalog rows removed by capacity enforcement.",
		}),
		enforceRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "photowall_enforce_runs_total",
			Help: "Capacity enforcement runs by result.",
		}, []string{"result"}),
		blobDeleteFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "photowall_blob_delete_failures_total",
			Help: "Best-effort blob deletions that failed, by cause.",
		}, []string{"cause"}),
	}

	if g.Photos != nil {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "photowall_catalog_photos",
			Help: "Rows currently in the catalog.",
		}, func() float64 {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			n, err := g.Photos(ctx)
			if err != nil {
				return -1
			}
			return float64(n)
		})
	}
	if g.Subscribers != nil {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "photowall_event_subscribers",
			Help: "Connected live update subscribers.",
		}, func() float64 { return float64(g.Subscribers()) })
	}
	if g.EventsDropped != nil {
		factory.NewCounterFunc(prometheus.CounterOpts{
			Name: "photowall_events_dropped_total",
			Help: "Per-subscriber event deliveries dropped because the subscriber was slow.",
		}, func() float64 { return float64(g.EventsDropped()) })
	}
	if g.EventsDelivered != nil {
		factory.NewCounterFunc(prometheus.CounterOpts{
			Name: "photowall_events_delivered_total",
			Help: "Per-subscriber event deliveries queued.",
		}, func() float64 { return float64(g.EventsDelivered()) })
	}
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) observeRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) upload(result string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(result).Inc()
}

func (m *Metrics) delete(result string) {
	if m == nil {
		return
	}
	m.deletes.WithLabelValues(result).Inc()
}

func (m *Metrics) evicted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.evictions.Add(float64(n))
}

func (m *Metrics) enforceRun(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.enforceRuns.WithLabelValues(result).Inc()
}

func (m *Metrics) blobDeleteFailed(cause string) {
	if m == nil {
		return
	}
	m.blobDeleteFailures.WithLabelValues(cause).Inc()
}

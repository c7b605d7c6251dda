package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "linkbot"

// Metrics stores Prometheus collectors used by the API, batch and queue flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal      *prometheus.CounterVec
	httpRequestDuration    *prometheus.HistogramVec
	itemsCompletedTotal    *prometheus.CounterVec
	itemsFailedTotal       *prometheus.CounterVec
	scrapeDuration         *prometheus.HistogramVec
	deliveriesTotal        *prometheus.CounterVec
	deliveryFallbacksTotal *prometheus.CounterVec
	batchesInflight        *prometheus.GaugeVec
	queueMessagesTotal     *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		itemsCompletedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "items_completed_total",
				Help:      "Total number of batch items scraped successfully by content type.",
			},
			[]string{"type"},
		),
		itemsFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "items_failed_total",
				Help:      "Total number of batch items that ended in failed state.",
			},
			[]string{"reason"},
		),
		scrapeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "scrape_duration_seconds",
				Help:      "Scrape duration in seconds grouped by content type.",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"type"},
		),
		deliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deliveries_total",
				Help:      "Total number of delivery attempts by content type and outcome.",
			},
			[]string{"type", "outcome"},
		),
		deliveryFallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "delivery_fallbacks_total",
				Help:      "Total number of generic fallback deliveries by original content type.",
			},
			[]string{"type"},
		),
		batchesInflight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "batches_inflight",
				Help:      "Current number of batches being processed grouped by submit mode.",
			},
			[]string{"mode"},
		),
		queueMessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queue_messages_total",
				Help:      "Total number of queue messages handled by outcome.",
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.itemsCompletedTotal,
		m.itemsFailedTotal,
		m.scrapeDuration,
		m.deliveriesTotal,
		m.deliveryFallbacksTotal,
		m.batchesInflight,
		m.queueMessagesTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry for tests and custom exporters.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil || m.registry == nil {
		return prometheus.DefaultGatherer
	}
	return m.registry
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncItemCompleted(contentType string) {
	if m == nil {
		return
	}
	m.itemsCompletedTotal.WithLabelValues(normalizeLabel(contentType)).Inc()
}

func (m *Metrics) IncItemFailed(reason string) {
	if m == nil {
		return
	}
	m.itemsFailedTotal.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *Metrics) ObserveScrapeDuration(contentType string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.scrapeDuration.WithLabelValues(normalizeLabel(contentType)).Observe(seconds)
}

func (m *Metrics) IncDelivery(contentType string, outcome string) {
	if m == nil {
		return
	}
	m.deliveriesTotal.WithLabelValues(normalizeLabel(contentType), normalizeLabel(outcome)).Inc()
}

func (m *Metrics) IncDeliveryFallback(contentType string) {
	if m == nil {
		return
	}
	m.deliveryFallbacksTotal.WithLabelValues(normalizeLabel(contentType)).Inc()
}

func (m *Metrics) IncBatchesInFlight(mode string) {
	if m == nil {
		return
	}
	m.batchesInflight.WithLabelValues(normalizeLabel(mode)).Inc()
}

func (m *Metrics) DecBatchesInFlight(mode string) {
	if m == nil {
		return
	}
	m.batchesInflight.WithLabelValues(normalizeLabel(mode)).Dec()
}

func (m *Metrics) IncQueueMessage(outcome string) {
	if m == nil {
		return
	}
	m.queueMessagesTotal.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

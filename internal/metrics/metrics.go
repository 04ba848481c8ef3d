package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"github.com/pageinfo/pageinfo/internal/capture"
)

// Metrics records capture telemetry in Prometheus.
// It implements capture.Observer.
type Metrics struct {
	eventsCaptured *prometheus.CounterVec
	eventsDropped  *prometheus.CounterVec

	capturesTotal   *prometheus.CounterVec
	captureDuration prometheus.Histogram
	captureRequests prometheus.Histogram
	failedResources prometheus.Counter
	inFlight        prometheus.Gauge

	queueRejections prometheus.Counter
	httpRequests    *prometheus.CounterVec

	httpHandler func(*fasthttp.RequestCtx)
}

var _ capture.Observer = (*Metrics)(nil)

// New registers all collectors with the default registry
func New(namespace string, logger *zap.Logger) *Metrics {
	return NewWithRegistry(namespace, prometheus.DefaultRegisterer, logger)
}

// NewWithRegistry registers all collectors with registerer.
// The exposition handler gathers from registerer when it is also a Gatherer.
func NewWithRegistry(namespace string, registerer prometheus.Registerer, logger *zap.Logger) *Metrics {
	m := &Metrics{}

	m.eventsCaptured = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "events_total",
		Help:      "Network events appended to capture buffers",
	}, []string{"kind"}) // request, response, finished, failed

	m.eventsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "events_dropped_total",
		Help:      "Network events skipped as malformed or after the buffer was frozen",
	}, []string{"kind"})

	m.capturesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "captures_total",
		Help:      "Finished captures by outcome",
	}, []string{"outcome"})

	m.captureDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "duration_seconds",
		Help:      "Wall time of a capture from page creation to report",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10), // 0.25s to ~128s
	})

	m.captureRequests = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "requests_per_capture",
		Help:      "Requests observed per successful capture",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})

	m.failedResources = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "failed_resources_total",
		Help:      "Resources that reported a loading failure",
	})

	m.inFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "in_flight",
		Help:      "Captures currently running",
	})

	m.queueRejections = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "service",
		Name:      "queue_rejections_total",
		Help:      "Capture requests rejected because every slot was busy",
	})

	m.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "service",
		Name:      "http_requests_total",
		Help:      "HTTP requests by endpoint and status",
	}, []string{"endpoint", "status"})

	registerer.MustRegister(
		m.eventsCaptured,
		m.eventsDropped,
		m.capturesTotal,
		m.captureDuration,
		m.captureRequests,
		m.failedResources,
		m.inFlight,
		m.queueRejections,
		m.httpRequests,
	)

	gatherer, ok := registerer.(prometheus.Gatherer)
	if !ok {
		gatherer = prometheus.DefaultGatherer
	}
	m.httpHandler = fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	logger.Debug("Prometheus metrics initialized", zap.String("namespace", namespace))
	return m
}

func (m *Metrics) EventCaptured(kind capture.Kind) {
	m.eventsCaptured.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) EventDropped(kind capture.Kind) {
	m.eventsDropped.WithLabelValues(kind.String()).Inc()
}

// CaptureStarted marks a capture as running until the matching RecordCapture
func (m *Metrics) CaptureStarted() {
	m.inFlight.Inc()
}

// RecordCapture records a finished capture. report is nil for failed captures.
func (m *Metrics) RecordCapture(outcome string, duration time.Duration, report *capture.Report) {
	m.inFlight.Dec()
	m.capturesTotal.WithLabelValues(outcome).Inc()
	m.captureDuration.Observe(duration.Seconds())

	if report == nil {
		return
	}
	m.captureRequests.Observe(float64(report.TotalRequests))
	m.failedResources.Add(float64(len(report.FailedRequests)))
}

func (m *Metrics) RecordQueueRejection() {
	m.queueRejections.Inc()
}

func (m *Metrics) RecordHTTPRequest(endpoint, status string) {
	m.httpRequests.WithLabelValues(endpoint, status).Inc()
}

// ServeHTTP serves the Prometheus exposition format
func (m *Metrics) ServeHTTP(ctx *fasthttp.RequestCtx) {
	m.httpHandler(ctx)
}

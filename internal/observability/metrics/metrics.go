package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/document-validity-gateway/internal/core/domain"
)

type GatewayMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	batchesTotal         *prometheus.CounterVec
	batchItems           *prometheus.HistogramVec
	recordsTotal         *prometheus.CounterVec
	validityChecksTotal  *prometheus.CounterVec
	validRecordsTotal    *prometheus.CounterVec
	extractionDuration   *prometheus.HistogramVec
	validityDuration     *prometheus.HistogramVec
	intakeRejectionTotal *prometheus.CounterVec
}

func NewGatewayMetrics(service string) *GatewayMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dvg",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dvg",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "dvg",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	batchesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dvg",
			Subsystem: "pipeline",
			Name:      "batches_total",
			Help:      "Total batch submissions by status.",
		},
		[]string{"service", "status"},
	)
	batchItems := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dvg",
			Subsystem: "pipeline",
			Name:      "batch_items",
			Help:      "Distribution of items per submitted batch.",
			Buckets:   []float64{1, 2, 5, 10, 20, 35, 50, 75, 100},
		},
		[]string{"service"},
	)
	recordsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dvg",
			Subsystem: "pipeline",
			Name:      "records_total",
			Help:      "Total classified records by document type.",
		},
		[]string{"service", "doc_type"},
	)
	validityChecksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dvg",
			Subsystem: "pipeline",
			Name:      "validity_checks_total",
			Help:      "Total validity checks by status.",
		},
		[]string{"service", "status"},
	)
	validRecordsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dvg",
			Subsystem: "pipeline",
			Name:      "valid_records_total",
			Help:      "Total records the validity service accepted, by document type.",
		},
		[]string{"service", "doc_type"},
	)
	extractionDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dvg",
			Subsystem: "pipeline",
			Name:      "extraction_duration_seconds",
			Help:      "Extraction service round-trip duration in seconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"service"},
	)
	validityDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dvg",
			Subsystem: "pipeline",
			Name:      "validity_duration_seconds",
			Help:      "Validity service round-trip duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"service"},
	)
	intakeRejectionTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dvg",
			Subsystem: "intake",
			Name:      "rejections_total",
			Help:      "Total intake rejections by reason.",
		},
		[]string{"service", "reason"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		batchesTotal,
		batchItems,
		recordsTotal,
		validityChecksTotal,
		validRecordsTotal,
		extractionDuration,
		validityDuration,
		intakeRejectionTotal,
	)

	return &GatewayMetrics{
		registry:             registry,
		requestTotal:         requestTotal,
		requestDuration:      requestDuration,
		requestInFlight:      requestInFlight,
		batchesTotal:         batchesTotal,
		batchItems:           batchItems,
		recordsTotal:         recordsTotal,
		validityChecksTotal:  validityChecksTotal,
		validRecordsTotal:    validRecordsTotal,
		extractionDuration:   extractionDuration,
		validityDuration:     validityDuration,
		intakeRejectionTotal: intakeRejectionTotal,
	}
}

func (m *GatewayMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *GatewayMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

var (
	sessionPathPattern = regexp.MustCompile(`^/v1/sessions/[^/]+`)
	itemPathPattern    = regexp.MustCompile(`^/v1/sessions/\{session_id\}/items/[^/]+$`)
)

// normalizePath collapses per-request identifiers so the path label stays a
// closed set.
func normalizePath(path string) string {
	path = sessionPathPattern.ReplaceAllString(path, "/v1/sessions/{session_id}")
	return itemPathPattern.ReplaceAllString(path, "/v1/sessions/{session_id}/items/{item_id}")
}

func (m *GatewayMetrics) RecordBatch(service string, itemCount int, byType map[domain.DocType]int, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.batchesTotal.WithLabelValues(service, status).Inc()
	m.extractionDuration.WithLabelValues(service).Observe(duration.Seconds())
	if err != nil {
		return
	}
	m.batchItems.WithLabelValues(service).Observe(float64(itemCount))
	for docType, count := range byType {
		m.recordsTotal.WithLabelValues(service, string(docType)).Add(float64(count))
	}
}

func (m *GatewayMetrics) RecordValidityCheck(service string, validByType map[domain.DocType]int, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.validityChecksTotal.WithLabelValues(service, status).Inc()
	m.validityDuration.WithLabelValues(service).Observe(duration.Seconds())
	if err != nil {
		return
	}
	for docType, count := range validByType {
		m.validRecordsTotal.WithLabelValues(service, string(docType)).Add(float64(count))
	}
}

func (m *GatewayMetrics) RecordIntakeRejection(service, reason string) {
	if reason == "" {
		reason = "unknown"
	}
	m.intakeRejectionTotal.WithLabelValues(service, reason).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront"

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

type ServerMetrics struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
}

func NewServerMetrics(reg prometheus.Registerer, service string) *ServerMetrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: service,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"handler", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: service,
		Name:      "http_request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"handler"})

	reg.MustRegister(requests, latency)
	return &ServerMetrics{Requests: requests, LatencyMS: latency}
}

func (m *ServerMetrics) Observe(handler string, status int, took time.Duration) {
	m.Requests.WithLabelValues(handler, strconv.Itoa(status)).Inc()
	m.LatencyMS.WithLabelValues(handler).Observe(float64(took.Milliseconds()))
}

// CheckoutMetrics counts checkout attempts by outcome.
type CheckoutMetrics struct {
	Attempts     *prometheus.CounterVec
	LinesApplied prometheus.Counter
	DurationMS   prometheus.Histogram
}

func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "checkout",
		Name:      "attempts_total",
		Help:      "Checkout attempts by outcome.",
	}, []string{"outcome"})
	lines := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "checkout",
		Name:      "stock_lines_applied_total",
		Help:      "Cart lines whose stock decrement was written.",
	})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "checkout",
		Name:      "duration_ms",
		Help:      "Checkout attempt duration in milliseconds.",
		Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	})

	reg.MustRegister(attempts, lines, duration)
	return &CheckoutMetrics{Attempts: attempts, LinesApplied: lines, DurationMS: duration}
}

func (m *CheckoutMetrics) RecordCheckout(outcome string, linesApplied int, took time.Duration) {
	m.Attempts.WithLabelValues(outcome).Inc()
	m.LinesApplied.Add(float64(linesApplied))
	m.DurationMS.Observe(float64(took.Milliseconds()))
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

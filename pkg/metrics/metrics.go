// Package metrics provides Prometheus metrics for the ops HTTP server, the
// poll loop, upstream calls and chat commands.
package metrics

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lewisedginton/ctfd_announcer/pkg/logger"
)

const (
	namespace = "announcer"
)

var durationBuckets = []float64{0.1, 0.3, 0.5, 0.7, 1.0, 3.0, 5.0, 7.0, 10.0}

// Metrics owns a private registry and every collector the announcer exports.
type Metrics struct {
	reg *prometheus.Registry

	TotalHTTPRequestsCounter prometheus.Counter
	HTTPDurationHistogram    prometheus.Histogram
	httpMu                   sync.Mutex
	HTTPRequestsCounters     map[int]prometheus.Counter

	PollTicks            prometheus.Counter
	PollTickFailures     prometheus.Counter
	FirstBloodsAnnounced prometheus.Counter
	SendFailures         prometheus.Counter
	LedgerWriteFailures  prometheus.Counter
	PollTickDuration     prometheus.Histogram
	LastTickTimestamp    prometheus.Gauge

	UpstreamRequestDuration *prometheus.HistogramVec
	CommandsHandled         *prometheus.CounterVec

	customMetrics []prometheus.Collector

	log logger.Logger
}

// NewMetrics creates a Metrics instance with all collectors registered.
func NewMetrics(l logger.Logger) *Metrics {
	if l == nil {
		l = logger.NewNopLogger()
	}
	m := &Metrics{
		reg:                  prometheus.NewRegistry(),
		log:                  l,
		HTTPRequestsCounters: make(map[int]prometheus.Counter),
	}

	m.TotalHTTPRequestsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "total_http_requests",
		Help:      "Total HTTP requests served by the ops server",
	})
	m.HTTPDurationHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Ops server HTTP request duration in seconds",
		Buckets:   durationBuckets,
	})

	m.PollTicks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "poll_ticks_total",
		Help:      "Poll ticks run",
	})
	m.PollTickFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "poll_tick_failures_total",
		Help:      "Poll ticks that ended with an error",
	})
	m.FirstBloodsAnnounced = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "first_bloods_announced_total",
		Help:      "First bloods announced and recorded",
	})
	m.SendFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "announcement_send_failures_total",
		Help:      "Announcements that could not be delivered",
	})
	m.LedgerWriteFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_write_failures_total",
		Help:      "Announcements sent but not recorded in the ledger",
	})
	m.PollTickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "poll_tick_duration_seconds",
		Help:      "Duration of a poll tick in seconds",
		Buckets:   durationBuckets,
	})
	m.LastTickTimestamp = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "poll_last_tick_timestamp_seconds",
		Help:      "Unix time the last poll tick finished",
	})

	m.UpstreamRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "upstream_request_duration_seconds",
		Help:      "Scoring platform request duration in seconds",
		Buckets:   durationBuckets,
	}, []string{"endpoint", "outcome"})
	m.CommandsHandled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commands_handled_total",
		Help:      "Chat commands handled",
	}, []string{"command", "outcome"})

	m.reg.MustRegister(
		m.TotalHTTPRequestsCounter, m.HTTPDurationHistogram,
		m.PollTicks, m.PollTickFailures, m.FirstBloodsAnnounced, m.SendFailures,
		m.LedgerWriteFailures, m.PollTickDuration, m.LastTickTimestamp,
		m.UpstreamRequestDuration, m.CommandsHandled,
	)
	return m
}

// Registry exposes the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// AddCustomMetric registers a custom Prometheus collector.
func (m *Metrics) AddCustomMetric(c prometheus.Collector) {
	m.customMetrics = append(m.customMetrics, c)
	m.reg.MustRegister(m.customMetrics[len(m.customMetrics)-1])
}

// ObservePollTick records the outcome of one poll tick.
func (m *Metrics) ObservePollTick(duration time.Duration, announced, sendFailures, ledgerFailures int, failed bool) {
	m.PollTicks.Inc()
	if failed {
		m.PollTickFailures.Inc()
	}
	m.FirstBloodsAnnounced.Add(float64(announced))
	m.SendFailures.Add(float64(sendFailures))
	m.LedgerWriteFailures.Add(float64(ledgerFailures))
	m.PollTickDuration.Observe(duration.Seconds())
	m.LastTickTimestamp.SetToCurrentTime()
}

// ObserveUpstreamRequest records one scoring platform call.
func (m *Metrics) ObserveUpstreamRequest(endpoint, outcome string, duration time.Duration) {
	m.UpstreamRequestDuration.WithLabelValues(endpoint, outcome).Observe(duration.Seconds())
}

// IncCommand counts a handled chat command.
func (m *Metrics) IncCommand(command, outcome string) {
	m.CommandsHandled.WithLabelValues(command, outcome).Inc()
}

// IncrementHTTPResponseCounter increments the counter for the given HTTP status code.
func (m *Metrics) IncrementHTTPResponseCounter(code int) {
	m.httpMu.Lock()
	defer m.httpMu.Unlock()
	c, ok := m.HTTPRequestsCounters[code]
	if !ok {
		c = newTotalHTTPReqMetric(code)
		m.reg.MustRegister(c)
		m.HTTPRequestsCounters[code] = c
	}
	c.Inc()
}

func newTotalHTTPReqMetric(code int) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      fmt.Sprintf("total_%d_http_responses", code),
		Help:      fmt.Sprintf("Total %s HTTP responses returned", http.StatusText(code)),
	})
}

// HTTPMiddleware returns a Chi-compatible middleware that tracks HTTP metrics
func (m *Metrics) HTTPMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			m.TotalHTTPRequestsCounter.Inc()

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)

			m.HTTPDurationHistogram.Observe(time.Since(start).Seconds())
			m.IncrementHTTPResponseCounter(rw.statusCode)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

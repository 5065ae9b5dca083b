package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"exchange-core/internal/engine"
)

var _ engine.Metrics = (*Metrics)(nil)

// Metrics implements engine.Metrics on a prometheus registry.
type Metrics struct {
	CommandsSubmitted *prometheus.CounterVec
	CommandsProcessed *prometheus.CounterVec
	ProcessingLatency *prometheus.HistogramVec
	Backpressure      prometheus.Counter
	QueueLength       prometheus.Gauge
	TradesExecuted    *prometheus.CounterVec
	LotsTraded        *prometheus.CounterVec
	RequestCount      *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
}

func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		CommandsSubmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exchange_commands_submitted_total",
				Help: "Commands accepted into the sequencer queue.",
			},
			[]string{"command"},
		),
		CommandsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exchange_commands_processed_total",
				Help: "Commands processed by type and result code.",
			},
			[]string{"command", "code"},
		),
		ProcessingLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "exchange_command_latency_seconds",
				Help:    "Time from submission to processing in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
			},
			[]string{"command"},
		),
		Backpressure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "exchange_backpressure_rejected_total",
			Help: "Submissions rejected because the queue was full.",
		}),
		QueueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "exchange_queue_depth",
			Help: "Commands waiting in the sequencer queue.",
		}),
		TradesExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exchange_trades_executed_total",
				Help: "Trades executed by symbol.",
			},
			[]string{"symbol"},
		),
		LotsTraded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exchange_lots_traded_total",
				Help: "Lots traded by symbol.",
			},
			[]string{"symbol"},
		),
		RequestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
	}

	registry.MustRegister(
		m.CommandsSubmitted, m.CommandsProcessed, m.ProcessingLatency,
		m.Backpressure, m.QueueLength, m.TradesExecuted, m.LotsTraded,
		m.RequestCount, m.RequestDuration,
	)
	return m
}

func (m *Metrics) CommandSubmitted(command string) {
	m.CommandsSubmitted.WithLabelValues(command).Inc()
}

func (m *Metrics) CommandProcessed(command, code string, latency time.Duration) {
	m.CommandsProcessed.WithLabelValues(command, code).Inc()
	m.ProcessingLatency.WithLabelValues(command).Observe(latency.Seconds())
}

func (m *Metrics) BackpressureRejected() {
	m.Backpressure.Inc()
}

func (m *Metrics) QueueDepth(depth int) {
	m.QueueLength.Set(float64(depth))
}

func (m *Metrics) TradeExecuted(symbolID int32, size int64) {
	symbol := strconv.FormatInt(int64(symbolID), 10)
	m.TradesExecuted.WithLabelValues(symbol).Inc()
	m.LotsTraded.WithLabelValues(symbol).Add(float64(size))
}

// Middleware records request counts and durations.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := http.StatusText(c.Writer.Status())
		m.RequestCount.WithLabelValues(c.Request.Method, path, status).Inc()
		m.RequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
	}
}

func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

package engine

import (
	"time"

	"go.uber.org/zap"
)

// BackpressureMode selects what Submit does when the command queue is full.
type BackpressureMode string

const (
	BackpressureBlock    BackpressureMode = "block"
	BackpressureFailFast BackpressureMode = "fail_fast"
)

// Config holds configuration for the engine
type Config struct {
	QueueSize                int              // Command queue capacity (default: 1024)
	PublishQueueSize         int              // Processed output queue capacity (default: 1024)
	Backpressure             BackpressureMode // block or fail_fast (default: block)
	OrderBookDepth           int              // Levels per side in OrderBookEvent, 0 disables it
	AllowNegativeAdjustments bool             // Let adjustments take available below zero
}

// DefaultConfig returns default engine configuration
func DefaultConfig() *Config {
	return &Config{
		QueueSize:        1024,
		PublishQueueSize: 1024,
		Backpressure:     BackpressureBlock,
		OrderBookDepth:   10,
	}
}

func (c *Config) normalize() {
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.PublishQueueSize <= 0 {
		c.PublishQueueSize = 1024
	}
	if c.Backpressure != BackpressureFailFast {
		c.Backpressure = BackpressureBlock
	}
	if c.OrderBookDepth < 0 {
		c.OrderBookDepth = 0
	}
}

// Metrics receives engine instrumentation. Implementations must be safe for
// concurrent use.
type Metrics interface {
	CommandSubmitted(cmdType string)
	CommandProcessed(cmdType, code string, elapsed time.Duration)
	BackpressureRejected()
	QueueDepth(depth int)
	TradeExecuted(symbolID int32, lots int64)
}

type noopMetrics struct{}

func (noopMetrics) CommandSubmitted(string)                        {}
func (noopMetrics) CommandProcessed(string, string, time.Duration) {}
func (noopMetrics) BackpressureRejected()                          {}
func (noopMetrics) QueueDepth(int)                                 {}
func (noopMetrics) TradeExecuted(int32, int64)                     {}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithClock overrides the time source used for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

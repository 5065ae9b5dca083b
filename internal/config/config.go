package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"

	"exchange-core/internal/engine"
)

type HTTPConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	IdempotencyTTL  time.Duration `mapstructure:"idempotency_ttl"`
}

func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type EngineConfig struct {
	QueueSize        int    `mapstructure:"queue_size"`
	PublishQueueSize int    `mapstructure:"publish_queue_size"`
	Backpressure     string `mapstructure:"backpressure"`
	OrderBookDepth   int    `mapstructure:"order_book_depth"`
}

type LedgerConfig struct {
	AllowNegativeAdjustments bool `mapstructure:"allow_negative_adjustments"`
}

type KafkaConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Brokers  []string `mapstructure:"brokers"`
	Topic    string   `mapstructure:"topic"`
	ClientID string   `mapstructure:"client_id"`
}

type Config struct {
	ServiceName string       `mapstructure:"service_name"`
	Env         string       `mapstructure:"env"`
	LogLevel    string       `mapstructure:"log_level"`
	MetricsPath string       `mapstructure:"metrics_path"`
	HTTP        HTTPConfig   `mapstructure:"http"`
	Engine      EngineConfig `mapstructure:"engine"`
	Ledger      LedgerConfig `mapstructure:"ledger"`
	Kafka       KafkaConfig  `mapstructure:"kafka"`
}

// Load reads path (optional) and EXCHANGE_* environment variables on top of
// the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("EXCHANGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Kafka.Brokers = trimAll(cfg.Kafka.Brokers)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 {
		return fmt.Errorf("http.port must be positive")
	}
	switch engine.BackpressureMode(c.Engine.Backpressure) {
	case engine.BackpressureBlock, engine.BackpressureFailFast:
	default:
		return fmt.Errorf("engine.backpressure must be %q or %q, got %q",
			engine.BackpressureBlock, engine.BackpressureFailFast, c.Engine.Backpressure)
	}
	if c.Engine.QueueSize <= 0 || c.Engine.PublishQueueSize <= 0 {
		return fmt.Errorf("engine queue sizes must be positive")
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka brokers required")
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("kafka topic required")
		}
	}
	return nil
}

// EngineConfig converts to the engine's own config.
func (c *Config) EngineConfig() *engine.Config {
	return &engine.Config{
		QueueSize:                c.Engine.QueueSize,
		PublishQueueSize:         c.Engine.PublishQueueSize,
		Backpressure:             engine.BackpressureMode(c.Engine.Backpressure),
		OrderBookDepth:           c.Engine.OrderBookDepth,
		AllowNegativeAdjustments: c.Ledger.AllowNegativeAdjustments,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "exchange-core")
	v.SetDefault("env", "dev")
	v.SetDefault("log_level", "info")
	v.SetDefault("metrics_path", "/metrics")
	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", "5s")
	v.SetDefault("http.write_timeout", "10s")
	v.SetDefault("http.idle_timeout", "60s")
	v.SetDefault("http.request_timeout", "5s")
	v.SetDefault("http.shutdown_timeout", "10s")
	v.SetDefault("http.idempotency_ttl", "10m")
	v.SetDefault("engine.queue_size", 1024)
	v.SetDefault("engine.publish_queue_size", 1024)
	v.SetDefault("engine.backpressure", string(engine.BackpressureBlock))
	v.SetDefault("engine.order_book_depth", 10)
	v.SetDefault("ledger.allow_negative_adjustments", false)
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "exchange.events")
	v.SetDefault("kafka.client_id", "exchange-core")
}

func trimAll(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

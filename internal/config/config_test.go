package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exchange-core/internal/engine"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "exchange-core", cfg.ServiceName)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTP.Addr())
	assert.Equal(t, 5*time.Second, cfg.HTTP.RequestTimeout)
	assert.Equal(t, 10*time.Minute, cfg.HTTP.IdempotencyTTL)
	assert.Equal(t, 1024, cfg.Engine.QueueSize)
	assert.False(t, cfg.Kafka.Enabled)

	ec := cfg.EngineConfig()
	assert.Equal(t, engine.BackpressureBlock, ec.Backpressure)
	assert.Equal(t, 10, ec.OrderBookDepth)
	assert.False(t, ec.AllowNegativeAdjustments)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HTTP.Port)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
http:
  port: 9090
engine:
  queue_size: 16
  backpressure: fail_fast
ledger:
  allow_negative_adjustments: true
`), 0o600))

	t.Setenv("EXCHANGE_HTTP_PORT", "9191")
	t.Setenv("EXCHANGE_KAFKA_ENABLED", "true")
	t.Setenv("EXCHANGE_KAFKA_BROKERS", "a:9092, b:9092")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 9191, cfg.HTTP.Port, "env overrides file")
	assert.Equal(t, 16, cfg.Engine.QueueSize)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled)

	ec := cfg.EngineConfig()
	assert.Equal(t, engine.BackpressureFailFast, ec.Backpressure)
	assert.True(t, ec.AllowNegativeAdjustments)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad backpressure", map[string]string{"EXCHANGE_ENGINE_BACKPRESSURE": "drop"}},
		{"zero queue", map[string]string{"EXCHANGE_ENGINE_QUEUE_SIZE": "0"}},
		{"zero port", map[string]string{"EXCHANGE_HTTP_PORT": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http: [unclosed"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

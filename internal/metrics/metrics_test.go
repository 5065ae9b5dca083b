package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exchange-core/internal/engine"
	"exchange-core/internal/matching"
	"exchange-core/internal/symbolspec"
)

func TestEngineMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	eng := engine.NewEngine(engine.DefaultConfig(), engine.WithMetrics(m))
	eng.Start()
	t.Cleanup(eng.Stop)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	commands := []engine.Command{
		engine.BatchAddSymbols{Symbols: []symbolspec.Spec{{
			SymbolID: 241, Type: symbolspec.TypeExchangePair,
			BaseCurrency: 11, QuoteCurrency: 15,
			BaseScaleK: 1_000_000, QuoteScaleK: 10_000,
			TakerFee: 2000, MakerFee: 1000,
		}}},
		engine.AddUser{UID: 1},
		engine.AddUser{UID: 2},
		engine.AdjustBalance{UID: 1, Currency: 11, Amount: 5_000_000, TransactionID: 1},
		engine.AdjustBalance{UID: 2, Currency: 15, Amount: 1_000_000_000, TransactionID: 2},
		engine.PlaceOrder{UID: 1, SymbolID: 241, OrderID: 1, Action: matching.ActionAsk,
			OrderType: matching.OrderTypeGTC, Price: 100, Size: 5},
		engine.PlaceOrder{UID: 2, SymbolID: 241, OrderID: 2, Action: matching.ActionBid,
			OrderType: matching.OrderTypeGTC, Price: 100, Size: 3},
	}
	for _, cmd := range commands {
		res, err := eng.SubmitAndWait(ctx, cmd)
		require.NoError(t, err)
		require.True(t, res.IsSuccess(), "%T: %+v", cmd, res)
	}
	res, err := eng.SubmitAndWait(ctx, engine.SingleUserReport{UID: 99})
	require.NoError(t, err)
	require.Equal(t, engine.CodeUnknownUser, res.Code)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CommandsSubmitted.WithLabelValues(string(engine.CommandTypePlaceOrder))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandsProcessed.WithLabelValues(
		string(engine.CommandTypeSingleUserReport), string(engine.CodeUnknownUser))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TradesExecuted.WithLabelValues("241")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.LotsTraded.WithLabelValues("241")))
}

func TestBackpressureAndQueueDepth(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.BackpressureRejected()
	m.QueueDepth(7)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Backpressure))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.QueueLength))
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := prometheus.NewRegistry()
	m := New(registry)

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.GET("/metrics", gin.WrapH(Handler(registry)))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestCount.WithLabelValues(http.MethodGet, "/ping", "OK")))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
	assert.Contains(t, w.Body.String(), "exchange_queue_depth")
}

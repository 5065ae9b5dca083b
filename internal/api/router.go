package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouterConfig wires optional endpoints
type RouterConfig struct {
	Logger         *zap.Logger
	MetricsPath    string       // Defaults to /metrics
	MetricsHandler http.Handler // Served on MetricsPath when set
	Middleware     []gin.HandlerFunc
}

// NewRouter creates the gin engine with all API routes
func NewRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	r := gin.New()
	r.Use(RequestID(), Recovery(log), Logger(log))
	r.Use(cfg.Middleware...)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.MetricsHandler != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(cfg.MetricsHandler))
	}

	v1 := r.Group("/v1")

	// Account endpoints
	v1.POST("/accounts", h.AddUser)
	v1.POST("/accounts/batch", h.BatchAddAccounts)
	v1.GET("/accounts/:uid", h.GetAccount)
	v1.GET("/accounts/:uid/orders", h.ListAccountOrders)
	v1.POST("/accounts/:uid/adjustments", h.AdjustBalance)

	// Symbol endpoints
	v1.POST("/symbols", h.AddSymbols)
	v1.GET("/symbols/:id/book", h.GetBook)
	v1.GET("/symbols/:id/trades", h.ListTrades)

	// Order endpoints
	v1.POST("/orders", h.PlaceOrder)
	v1.GET("/orders/:id", h.GetOrder)
	v1.DELETE("/orders/:id", h.CancelOrder)
	v1.PATCH("/orders/:id", h.MoveOrder)
	v1.POST("/orders/:id/reduce", h.ReduceOrder)

	v1.GET("/reports/totals", h.TotalsReport)

	return r
}

package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"exchange-core/internal/engine"
	"exchange-core/internal/matching"
	"exchange-core/internal/projection"
)

const (
	defaultRequestTimeout = 5 * time.Second
	defaultIdempotencyTTL = 10 * time.Minute
	defaultBookDepth      = 10
	defaultListLimit      = 100
)

// Submitter is the part of the engine the handlers need.
type Submitter interface {
	SubmitAndWait(ctx context.Context, cmd engine.Command) (engine.CommandResult, error)
}

// HandlerConfig tunes a Handler. Zero values select defaults.
type HandlerConfig struct {
	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
	Logger         *zap.Logger
}

// Handler handles HTTP requests for the exchange API
type Handler struct {
	engine  Submitter
	orders  projection.OrderRepository
	trades  projection.TradeRepository
	idem    *IdempotencyStore
	log     *zap.Logger
	timeout time.Duration
}

// NewHandler creates a new API handler
func NewHandler(eng Submitter, orders projection.OrderRepository, trades projection.TradeRepository, cfg HandlerConfig) *Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = defaultIdempotencyTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Handler{
		engine:  eng,
		orders:  orders,
		trades:  trades,
		idem:    NewIdempotencyStore(cfg.IdempotencyTTL),
		log:     cfg.Logger,
		timeout: cfg.RequestTimeout,
	}
}

// Idempotency exposes the store so callers can schedule Cleanup.
func (h *Handler) Idempotency() *IdempotencyStore {
	return h.idem
}

// AddUser handles POST /v1/accounts
func (h *Handler) AddUser(c *gin.Context) {
	var req AddUserRequest
	if !bindJSON(c, &req) {
		return
	}
	h.run(c, engine.AddUser{UID: req.UID, Fee: req.fee()})
}

// BatchAddAccounts handles POST /v1/accounts/batch
func (h *Handler) BatchAddAccounts(c *gin.Context) {
	var req BatchAddAccountsRequest
	if !bindJSON(c, &req) {
		return
	}
	h.run(c, engine.BatchAddAccounts{Accounts: req.seeds()})
}

// AdjustBalance handles POST /v1/accounts/:uid/adjustments
func (h *Handler) AdjustBalance(c *gin.Context) {
	uid, ok := pathInt64(c, "uid")
	if !ok {
		return
	}
	var req AdjustBalanceRequest
	if !bindJSON(c, &req) {
		return
	}
	h.run(c, engine.AdjustBalance{
		UID:           uid,
		Currency:      req.Currency,
		Amount:        req.Amount,
		TransactionID: req.TransactionID,
	})
}

// GetAccount handles GET /v1/accounts/:uid
func (h *Handler) GetAccount(c *gin.Context) {
	uid, ok := pathInt64(c, "uid")
	if !ok {
		return
	}
	h.run(c, engine.SingleUserReport{UID: uid})
}

// ListAccountOrders handles GET /v1/accounts/:uid/orders
func (h *Handler) ListAccountOrders(c *gin.Context) {
	uid, ok := pathInt64(c, "uid")
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", defaultListLimit)
	if !ok {
		return
	}
	views, err := h.orders.ListByAccount(c.Request.Context(), uid, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := ListOrdersResponse{Orders: make([]OrderResponse, 0, len(views))}
	for _, v := range views {
		resp.Orders = append(resp.Orders, orderResponse(v))
	}
	c.JSON(http.StatusOK, resp)
}

// AddSymbols handles POST /v1/symbols
func (h *Handler) AddSymbols(c *gin.Context) {
	var req AddSymbolsRequest
	if !bindJSON(c, &req) {
		return
	}
	h.run(c, engine.BatchAddSymbols{Symbols: req.Symbols})
}

// GetBook handles GET /v1/symbols/:id/book
func (h *Handler) GetBook(c *gin.Context) {
	symbolID, ok := pathInt32(c, "id")
	if !ok {
		return
	}
	depth, ok := queryInt(c, "depth", defaultBookDepth)
	if !ok {
		return
	}
	h.run(c, engine.OrderBookQuery{SymbolID: symbolID, Depth: depth})
}

// ListTrades handles GET /v1/symbols/:id/trades
func (h *Handler) ListTrades(c *gin.Context) {
	symbolID, ok := pathInt32(c, "id")
	if !ok {
		return
	}
	from, ok := queryInt(c, "from_sequence", 0)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", defaultListLimit)
	if !ok {
		return
	}
	views, err := h.trades.ListBySymbol(c.Request.Context(), symbolID, int64(from), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := ListTradesResponse{Trades: make([]TradeDTO, 0, len(views))}
	for _, v := range views {
		resp.Trades = append(resp.Trades, tradeDTO(v))
	}
	c.JSON(http.StatusOK, resp)
}

// TotalsReport handles GET /v1/reports/totals
func (h *Handler) TotalsReport(c *gin.Context) {
	h.run(c, engine.TotalCurrencyBalanceReport{})
}

// PlaceOrder handles POST /v1/orders. An Idempotency-Key header makes
// retries with the same payload return the first response.
func (h *Handler) PlaceOrder(c *gin.Context) {
	var req PlaceOrderRequest
	if !bindJSON(c, &req) {
		return
	}
	orderType := strings.ToUpper(strings.TrimSpace(req.OrderType))
	if orderType == "" {
		orderType = string(matching.OrderTypeGTC)
	}
	cmd := engine.PlaceOrder{
		UID:          req.UID,
		SymbolID:     req.SymbolID,
		OrderID:      req.OrderID,
		Action:       matching.Action(strings.ToUpper(strings.TrimSpace(req.Action))),
		OrderType:    matching.OrderType(orderType),
		Price:        req.Price,
		ReservePrice: req.ReservePrice,
		Size:         req.Size,
	}

	idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if idemKey == "" {
		h.run(c, cmd)
		return
	}

	key := IdempotencyKey{UID: req.UID, Route: "place_order", Key: idemKey}
	payloadHash, err := ComputePayloadHash(cmd)
	if err != nil {
		writeError(c, err)
		return
	}
	cached, err := h.idem.Begin(key, payloadHash)
	if err != nil {
		writeError(c, err)
		return
	}
	if cached != nil {
		c.Header("Idempotent-Replayed", "true")
		c.JSON(cached.Status, cached.Body)
		return
	}

	stored := false
	defer func() {
		if !stored {
			h.idem.Release(key)
		}
	}()

	status, body := h.submit(c, cmd)
	// Transient failures are not cached so the client can retry.
	if status < http.StatusInternalServerError {
		h.idem.Store(key, payloadHash, status, body)
		stored = true
	}
	c.JSON(status, body)
}

// GetOrder handles GET /v1/orders/:id?symbol_id=
func (h *Handler) GetOrder(c *gin.Context) {
	key, ok := orderKey(c, c.Query("symbol_id"))
	if !ok {
		return
	}
	view, err := h.orders.Get(c.Request.Context(), key)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderResponse(view))
}

// CancelOrder handles DELETE /v1/orders/:id?symbol_id=&uid=
func (h *Handler) CancelOrder(c *gin.Context) {
	key, ok := orderKey(c, c.Query("symbol_id"))
	if !ok {
		return
	}
	uid, err := strconv.ParseInt(c.Query("uid"), 10, 64)
	if err != nil {
		writeInvalid(c, "uid query parameter required")
		return
	}
	h.run(c, engine.CancelOrder{UID: uid, SymbolID: key.SymbolID, OrderID: key.OrderID})
}

// MoveOrder handles PATCH /v1/orders/:id
func (h *Handler) MoveOrder(c *gin.Context) {
	orderID, ok := pathInt64(c, "id")
	if !ok {
		return
	}
	var req MoveOrderRequest
	if !bindJSON(c, &req) {
		return
	}
	h.run(c, engine.MoveOrder{UID: req.UID, SymbolID: req.SymbolID, OrderID: orderID, NewPrice: req.Price})
}

// ReduceOrder handles POST /v1/orders/:id/reduce
func (h *Handler) ReduceOrder(c *gin.Context) {
	orderID, ok := pathInt64(c, "id")
	if !ok {
		return
	}
	var req ReduceOrderRequest
	if !bindJSON(c, &req) {
		return
	}
	h.run(c, engine.ReduceOrder{UID: req.UID, SymbolID: req.SymbolID, OrderID: orderID, ReduceSize: req.Size})
}

// run submits cmd and writes the outcome.
func (h *Handler) run(c *gin.Context, cmd engine.Command) {
	status, body := h.submit(c, cmd)
	c.JSON(status, body)
}

func (h *Handler) submit(c *gin.Context, cmd engine.Command) (int, any) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	res, err := h.engine.SubmitAndWait(ctx, cmd)
	if err != nil {
		h.log.Warn("engine wait failed",
			zap.String("command", string(cmd.Type())),
			zap.String("request_id", c.GetString(requestIDHeader)),
			zap.Error(err),
		)
		status, body := MapErrorToHTTP(err)
		return status, body
	}
	if !res.IsSuccess() {
		status, body := MapResultToHTTP(res)
		return status, body
	}
	return http.StatusOK, CommandResponse{
		Sequence: res.Sequence,
		Code:     string(res.Code),
		Result:   res.Payload,
	}
}

func orderResponse(v *projection.OrderView) OrderResponse {
	return OrderResponse{
		SymbolID:     v.SymbolID,
		OrderID:      v.OrderID,
		UID:          v.UID,
		Action:       v.Action,
		Type:         v.Type,
		Price:        v.Price,
		ReservePrice: v.ReservePrice,
		Size:         v.Size,
		Filled:       v.Filled,
		Remaining:    v.Remaining,
		Status:       string(v.Status),
		CreatedAt:    v.CreatedAt,
		UpdatedAt:    v.UpdatedAt,
	}
}

func tradeDTO(v *projection.TradeView) TradeDTO {
	return TradeDTO{
		TradeID:      v.TradeID,
		SymbolID:     v.SymbolID,
		MakerOrderID: v.MakerOrderID,
		TakerOrderID: v.TakerOrderID,
		TakerAction:  v.TakerAction,
		Price:        v.Price,
		Size:         v.Size,
		MakerFee:     v.MakerFee,
		TakerFee:     v.TakerFee,
		Sequence:     v.Sequence,
		Timestamp:    v.OccurredAt,
	}
}

func orderKey(c *gin.Context, symbol string) (projection.OrderKey, bool) {
	orderID, ok := pathInt64(c, "id")
	if !ok {
		return projection.OrderKey{}, false
	}
	symbolID, err := strconv.ParseInt(symbol, 10, 32)
	if err != nil {
		writeInvalid(c, "symbol_id query parameter required")
		return projection.OrderKey{}, false
	}
	return projection.OrderKey{SymbolID: int32(symbolID), OrderID: orderID}, true
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		writeInvalid(c, "invalid request body")
		return false
	}
	return true
}

func pathInt64(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		writeInvalid(c, fmt.Sprintf("invalid %s", name))
		return 0, false
	}
	return v, true
}

func pathInt32(c *gin.Context, name string) (int32, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 32)
	if err != nil {
		writeInvalid(c, fmt.Sprintf("invalid %s", name))
		return 0, false
	}
	return int32(v), true
}

func queryInt(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		writeInvalid(c, fmt.Sprintf("invalid %s", name))
		return 0, false
	}
	return v, true
}

func writeInvalid(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Code: string(ErrorCodeInvalidArgument), Message: msg})
}

func writeError(c *gin.Context, err error) {
	status, body := MapErrorToHTTP(err)
	c.JSON(status, body)
}

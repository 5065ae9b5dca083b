package api

import (
	"time"

	"exchange-core/internal/account"
	"exchange-core/internal/symbolspec"
)

// AddUserRequest represents the request body for creating an account
type AddUserRequest struct {
	UID      int64  `json:"uid"`
	MakerFee *int64 `json:"maker_fee"` // Optional per-account fee override
	TakerFee *int64 `json:"taker_fee"`
}

// BatchAddAccountsRequest seeds several accounts with opening balances
type BatchAddAccountsRequest struct {
	Accounts []AccountSeed `json:"accounts"`
}

// AccountSeed is one account of a batch, balances keyed by currency code
type AccountSeed struct {
	UID      int64           `json:"uid"`
	Balances map[int32]int64 `json:"balances"`
}

// AdjustBalanceRequest represents a deposit (positive) or withdrawal (negative)
type AdjustBalanceRequest struct {
	Currency      int32 `json:"currency"`
	Amount        int64 `json:"amount"`
	TransactionID int64 `json:"transaction_id"`
}

// AddSymbolsRequest registers a batch of symbols atomically
type AddSymbolsRequest struct {
	Symbols []symbolspec.Spec `json:"symbols"`
}

// PlaceOrderRequest represents the request body for placing an order
type PlaceOrderRequest struct {
	UID          int64  `json:"uid"`
	SymbolID     int32  `json:"symbol_id"`
	OrderID      int64  `json:"order_id"`
	Action       string `json:"action"`        // "BID" or "ASK"
	OrderType    string `json:"order_type"`    // "GTC" (default) or "IOC"
	Price        int64  `json:"price"`         // Price in quote steps
	ReservePrice int64  `json:"reserve_price"` // Worst price a bid may move to, defaults to price
	Size         int64  `json:"size"`          // Size in lots
}

// MoveOrderRequest changes the price of a resting order
type MoveOrderRequest struct {
	UID      int64 `json:"uid"`
	SymbolID int32 `json:"symbol_id"`
	Price    int64 `json:"price"`
}

// ReduceOrderRequest shrinks a resting order
type ReduceOrderRequest struct {
	UID      int64 `json:"uid"`
	SymbolID int32 `json:"symbol_id"`
	Size     int64 `json:"size"`
}

// CommandResponse wraps a successful command result
type CommandResponse struct {
	Sequence int64  `json:"sequence"` // Sequence number assigned by the engine
	Code     string `json:"code"`
	Result   any    `json:"result,omitempty"`
}

// OrderResponse represents the projected state of an order
type OrderResponse struct {
	SymbolID     int32     `json:"symbol_id"`
	OrderID      int64     `json:"order_id"`
	UID          int64     `json:"uid"`
	Action       string    `json:"action"`
	Type         string    `json:"type"`
	Price        int64     `json:"price"`
	ReservePrice int64     `json:"reserve_price"`
	Size         int64     `json:"size"`
	Filled       int64     `json:"filled"`
	Remaining    int64     `json:"remaining"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TradeDTO represents a trade execution
type TradeDTO struct {
	TradeID      string    `json:"trade_id"`
	SymbolID     int32     `json:"symbol_id"`
	MakerOrderID int64     `json:"maker_order_id"`
	TakerOrderID int64     `json:"taker_order_id"`
	TakerAction  string    `json:"taker_action"`
	Price        int64     `json:"price"`
	Size         int64     `json:"size"`
	MakerFee     int64     `json:"maker_fee"`
	TakerFee     int64     `json:"taker_fee"`
	Sequence     int64     `json:"sequence"`
	Timestamp    time.Time `json:"timestamp"`
}

// ListTradesResponse is a page of trades
type ListTradesResponse struct {
	Trades []TradeDTO `json:"trades"`
}

// ListOrdersResponse is a page of orders
type ListOrdersResponse struct {
	Orders []OrderResponse `json:"orders"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Code     string `json:"code"`               // Error code
	Message  string `json:"message"`            // Error message
	Sequence int64  `json:"sequence,omitempty"` // Set when the command was sequenced
}

func (r AddUserRequest) fee() *account.FeeOverride {
	if r.MakerFee == nil && r.TakerFee == nil {
		return nil
	}
	fee := &account.FeeOverride{}
	if r.MakerFee != nil {
		fee.MakerFee = *r.MakerFee
	}
	if r.TakerFee != nil {
		fee.TakerFee = *r.TakerFee
	}
	return fee
}

func (r BatchAddAccountsRequest) seeds() []account.Seed {
	out := make([]account.Seed, 0, len(r.Accounts))
	for _, a := range r.Accounts {
		out = append(out, account.Seed{UID: a.UID, Balances: a.Balances})
	}
	return out
}

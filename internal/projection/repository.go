package projection

import (
	"context"
	"errors"
)

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrTradeNotFound      = errors.New("trade not found")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrSequenceRegression = errors.New("sequence regression")
	ErrSequenceGap        = errors.New("sequence gap")
	ErrTradeConflict      = errors.New("trade conflict")
)

// OrderRepository defines the interface for order read model storage
type OrderRepository interface {
	// Save creates or updates an order view
	Save(ctx context.Context, order *OrderView) error

	// Get retrieves an order by symbol and order id
	Get(ctx context.Context, key OrderKey) (*OrderView, error)

	// ListByAccount retrieves orders of uid, oldest first
	ListByAccount(ctx context.Context, uid int64, limit int) ([]*OrderView, error)

	// GetLastSequence returns the last fully applied command sequence
	GetLastSequence(ctx context.Context) (int64, error)

	// SetLastSequence updates the last fully applied command sequence
	SetLastSequence(ctx context.Context, sequence int64) error
}

// TradeRepository defines the interface for trade read model storage
type TradeRepository interface {
	// Save creates a trade view
	Save(ctx context.Context, trade *TradeView) error

	// GetByID retrieves a trade by trade_id
	GetByID(ctx context.Context, tradeID string) (*TradeView, error)

	// ListBySymbol retrieves trades for a specific symbol
	// fromSequence: if > 0, only return trades with sequence >= fromSequence
	ListBySymbol(ctx context.Context, symbolID int32, fromSequence int64, limit int) ([]*TradeView, error)

	// ListByOrder retrieves trades for a specific order
	ListByOrder(ctx context.Context, key OrderKey, limit int) ([]*TradeView, error)

	// GetLastSequence returns the last fully applied command sequence
	GetLastSequence(ctx context.Context) (int64, error)

	// SetLastSequence updates the last fully applied command sequence
	SetLastSequence(ctx context.Context, sequence int64) error
}

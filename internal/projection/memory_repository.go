package projection

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryOrderRepository is an in-memory implementation of OrderRepository
type MemoryOrderRepository struct {
	mu sync.RWMutex

	// Primary storage
	orders map[OrderKey]*OrderView

	// Index by account, in creation order
	byAccount map[int64][]OrderKey

	lastSequence int64
}

// NewMemoryOrderRepository creates a new in-memory order repository
func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{
		orders:    make(map[OrderKey]*OrderView),
		byAccount: make(map[int64][]OrderKey),
	}
}

// Save creates or updates an order view
func (r *MemoryOrderRepository) Save(ctx context.Context, order *OrderView) error {
	if order == nil {
		return ErrInvalidArgument
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	orderCopy := cloneOrderView(order)
	key := orderCopy.Key()
	if _, exists := r.orders[key]; !exists {
		r.byAccount[orderCopy.UID] = append(r.byAccount[orderCopy.UID], key)
	}
	r.orders[key] = orderCopy
	return nil
}

// Get retrieves an order by key
func (r *MemoryOrderRepository) Get(ctx context.Context, key OrderKey) (*OrderView, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, exists := r.orders[key]
	if !exists {
		return nil, fmt.Errorf("%w: symbol=%d order=%d", ErrOrderNotFound, key.SymbolID, key.OrderID)
	}
	return cloneOrderView(order), nil
}

// ListByAccount retrieves orders for a specific account
func (r *MemoryOrderRepository) ListByAccount(ctx context.Context, uid int64, limit int) ([]*OrderView, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := r.byAccount[uid]
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	out := make([]*OrderView, 0, len(keys))
	for _, k := range keys {
		out = append(out, cloneOrderView(r.orders[k]))
	}
	return out, nil
}

// GetLastSequence returns the last applied sequence number
func (r *MemoryOrderRepository) GetLastSequence(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastSequence, nil
}

// SetLastSequence updates the last applied sequence number
func (r *MemoryOrderRepository) SetLastSequence(ctx context.Context, sequence int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sequence < r.lastSequence {
		return fmt.Errorf("%w: current=%d new=%d", ErrSequenceRegression, r.lastSequence, sequence)
	}
	r.lastSequence = sequence
	return nil
}

// MemoryTradeRepository is an in-memory implementation of TradeRepository
type MemoryTradeRepository struct {
	mu sync.RWMutex

	// Primary storage: trade_id -> TradeView
	trades map[string]*TradeView

	// Indexes for efficient queries
	bySymbol map[int32][]*TradeView    // sorted by (sequence, index)
	byOrder  map[OrderKey][]*TradeView // maker and taker side

	lastSequence int64
}

// NewMemoryTradeRepository creates a new in-memory trade repository
func NewMemoryTradeRepository() *MemoryTradeRepository {
	return &MemoryTradeRepository{
		trades:   make(map[string]*TradeView),
		bySymbol: make(map[int32][]*TradeView),
		byOrder:  make(map[OrderKey][]*TradeView),
	}
}

// Save creates a trade view
func (r *MemoryTradeRepository) Save(ctx context.Context, trade *TradeView) error {
	if trade == nil {
		return ErrInvalidArgument
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tradeCopy := cloneTradeView(trade)

	// Idempotency: same trade ID should not create duplicate index entries.
	if existing, exists := r.trades[tradeCopy.TradeID]; exists {
		if *existing == *tradeCopy {
			return nil
		}
		return fmt.Errorf("%w: trade_id=%s", ErrTradeConflict, tradeCopy.TradeID)
	}

	r.trades[tradeCopy.TradeID] = tradeCopy

	list := append(r.bySymbol[tradeCopy.SymbolID], tradeCopy)
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Sequence != list[j].Sequence {
			return list[i].Sequence < list[j].Sequence
		}
		return list[i].Index < list[j].Index
	})
	r.bySymbol[tradeCopy.SymbolID] = list

	maker := OrderKey{SymbolID: tradeCopy.SymbolID, OrderID: tradeCopy.MakerOrderID}
	taker := OrderKey{SymbolID: tradeCopy.SymbolID, OrderID: tradeCopy.TakerOrderID}
	r.byOrder[maker] = append(r.byOrder[maker], tradeCopy)
	if taker != maker {
		r.byOrder[taker] = append(r.byOrder[taker], tradeCopy)
	}

	return nil
}

// GetByID retrieves a trade by trade_id
func (r *MemoryTradeRepository) GetByID(ctx context.Context, tradeID string) (*TradeView, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	trade, exists := r.trades[tradeID]
	if !exists {
		return nil, ErrTradeNotFound
	}
	return cloneTradeView(trade), nil
}

// ListBySymbol retrieves trades for a specific symbol
func (r *MemoryTradeRepository) ListBySymbol(ctx context.Context, symbolID int32, fromSequence int64, limit int) ([]*TradeView, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var filtered []*TradeView
	for _, trade := range r.bySymbol[symbolID] {
		if trade.Sequence >= fromSequence {
			filtered = append(filtered, trade)
		}
	}

	if limit > 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return cloneTradeViews(filtered), nil
}

// ListByOrder retrieves trades for a specific order
func (r *MemoryTradeRepository) ListByOrder(ctx context.Context, key OrderKey, limit int) ([]*TradeView, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	trades := r.byOrder[key]
	if limit > 0 && len(trades) > limit {
		trades = trades[:limit]
	}
	return cloneTradeViews(trades), nil
}

// GetLastSequence returns the last applied sequence number
func (r *MemoryTradeRepository) GetLastSequence(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastSequence, nil
}

// SetLastSequence updates the last applied sequence number
func (r *MemoryTradeRepository) SetLastSequence(ctx context.Context, sequence int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sequence < r.lastSequence {
		return fmt.Errorf("%w: current=%d new=%d", ErrSequenceRegression, r.lastSequence, sequence)
	}
	r.lastSequence = sequence
	return nil
}

func cloneOrderView(in *OrderView) *OrderView {
	if in == nil {
		return nil
	}
	cp := *in
	return &cp
}

func cloneTradeView(in *TradeView) *TradeView {
	if in == nil {
		return nil
	}
	cp := *in
	return &cp
}

func cloneTradeViews(in []*TradeView) []*TradeView {
	out := make([]*TradeView, 0, len(in))
	for _, v := range in {
		out = append(out, cloneTradeView(v))
	}
	return out
}

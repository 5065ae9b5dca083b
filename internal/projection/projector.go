package projection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"exchange-core/internal/engine"
	"exchange-core/internal/events"
)

// Projector consumes engine outputs and updates read models
type Projector struct {
	orderRepo OrderRepository
	tradeRepo TradeRepository
	log       *zap.Logger

	mu      sync.Mutex
	backlog []*engine.Output // outputs not yet projected, oldest first
}

// NewProjector creates a new projector
func NewProjector(orderRepo OrderRepository, tradeRepo TradeRepository, log *zap.Logger) *Projector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Projector{
		orderRepo: orderRepo,
		tradeRepo: tradeRepo,
		log:       log,
	}
}

// Consume implements engine.Subscriber. A failed output is kept and retried,
// together with everything after it, on the next call.
func (p *Projector) Consume(out *engine.Output) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.backlog = append(p.backlog, out)
	for len(p.backlog) > 0 {
		next := p.backlog[0]
		if err := p.Project(context.Background(), next); err != nil {
			p.log.Error("projection failed",
				zap.Int64("sequence", next.Sequence),
				zap.Int("backlog", len(p.backlog)),
				zap.Error(err),
			)
			return
		}
		p.backlog[0] = nil
		p.backlog = p.backlog[1:]
	}
}

// Backlog returns the number of outputs waiting to be projected.
func (p *Projector) Backlog() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.backlog)
}

// Project applies a single processed command to the read models
// Returns error if sequence validation fails or projection fails
func (p *Projector) Project(ctx context.Context, out *engine.Output) error {
	if out == nil {
		return fmt.Errorf("output is nil")
	}
	sequence := out.Sequence

	if err := p.validateSequence(ctx, sequence); err != nil {
		return err
	}

	if out.Result.IsSuccess() {
		if err := p.projectCommand(ctx, out); err != nil {
			return err
		}
		for _, ev := range out.Events {
			if err := p.projectEvent(ctx, ev); err != nil {
				return err
			}
		}
	}

	// Advance trade first, then order. Sequence validation reads orderRepo;
	// if order advanced first and trade failed, replay would be blocked.
	if err := p.tradeRepo.SetLastSequence(ctx, sequence); err != nil {
		return fmt.Errorf("failed to advance trade sequence: %w", err)
	}
	if err := p.orderRepo.SetLastSequence(ctx, sequence); err != nil {
		return fmt.Errorf("failed to advance order sequence: %w", err)
	}

	return nil
}

// validateSequence checks if the output sequence is valid (must be last + 1)
func (p *Projector) validateSequence(ctx context.Context, sequence int64) error {
	orderLastSeq, err := p.orderRepo.GetLastSequence(ctx)
	if err != nil {
		return fmt.Errorf("failed to get order last sequence: %w", err)
	}
	tradeLastSeq, err := p.tradeRepo.GetLastSequence(ctx)
	if err != nil {
		return fmt.Errorf("failed to get trade last sequence: %w", err)
	}
	if orderLastSeq < tradeLastSeq {
		// trade advanced but order did not: the output was fully applied
		// except for the final cursor write, so it is safe to re-apply.
		tradeLastSeq = orderLastSeq
	}
	if orderLastSeq != tradeLastSeq {
		return fmt.Errorf("projection sequence mismatch: order_last=%d trade_last=%d",
			orderLastSeq, tradeLastSeq)
	}
	lastSeq := orderLastSeq

	if sequence != lastSeq+1 {
		if sequence <= lastSeq {
			return fmt.Errorf("%w: last=%d output=%d", ErrSequenceRegression, lastSeq, sequence)
		}
		return fmt.Errorf("%w: last=%d output=%d", ErrSequenceGap, lastSeq, sequence)
	}

	return nil
}

func (p *Projector) projectCommand(ctx context.Context, out *engine.Output) error {
	at := out.ProcessedAt
	switch c := out.Command.(type) {
	case engine.PlaceOrder:
		if err := p.projectPlaced(ctx, c, out.Sequence, at); err != nil {
			return fmt.Errorf("failed to project PlaceOrder: %w", err)
		}
	case engine.MoveOrder:
		if err := p.projectMoved(ctx, c, out.Sequence, at); err != nil {
			return fmt.Errorf("failed to project MoveOrder: %w", err)
		}
	}
	return nil
}

func (p *Projector) projectEvent(ctx context.Context, ev events.Event) error {
	switch e := ev.(type) {
	case *events.TradeEvent:
		if err := p.projectTrade(ctx, e); err != nil {
			return fmt.Errorf("failed to project Trade: %w", err)
		}
	case *events.ReduceEvent:
		if err := p.projectReduce(ctx, e); err != nil {
			return fmt.Errorf("failed to project Reduce: %w", err)
		}
	case *events.RejectEvent:
		if err := p.projectReject(ctx, e); err != nil {
			return fmt.Errorf("failed to project Reject: %w", err)
		}
	}
	return nil
}

// projectPlaced creates a new order view
func (p *Projector) projectPlaced(ctx context.Context, c engine.PlaceOrder, seq int64, at time.Time) error {
	key := OrderKey{SymbolID: c.SymbolID, OrderID: c.OrderID}
	existing, err := p.orderRepo.Get(ctx, key)
	if err == nil {
		if existing.appliedAt(seq, -1) {
			return nil
		}
	} else if !errors.Is(err, ErrOrderNotFound) {
		return fmt.Errorf("failed to get order: %w", err)
	}

	reserve := c.ReservePrice
	if reserve == 0 {
		reserve = c.Price
	}
	order := &OrderView{
		SymbolID:     c.SymbolID,
		OrderID:      c.OrderID,
		UID:          c.UID,
		Action:       string(c.Action),
		Type:         string(c.OrderType),
		Price:        c.Price,
		ReservePrice: reserve,
		Size:         c.Size,
		Remaining:    c.Size,
		Status:       OrderStatusNew,
		CreatedAt:    at,
		UpdatedAt:    at,
		LastSequence: seq,
		LastIndex:    -1,
	}
	return p.orderRepo.Save(ctx, order)
}

func (p *Projector) projectMoved(ctx context.Context, c engine.MoveOrder, seq int64, at time.Time) error {
	order, err := p.orderRepo.Get(ctx, OrderKey{SymbolID: c.SymbolID, OrderID: c.OrderID})
	if err != nil {
		return fmt.Errorf("failed to get order: %w", err)
	}
	if order.appliedAt(seq, -1) {
		return nil
	}
	order.Price = c.NewPrice
	order.UpdatedAt = at
	order.LastSequence = seq
	order.LastIndex = -1
	return p.orderRepo.Save(ctx, order)
}

// projectTrade updates order views and creates a trade view
func (p *Projector) projectTrade(ctx context.Context, e *events.TradeEvent) error {
	symbol := e.SymbolID()

	makerOrder, err := p.orderRepo.Get(ctx, OrderKey{SymbolID: symbol, OrderID: e.MakerOrderID})
	if err != nil {
		return fmt.Errorf("failed to get maker order: %w", err)
	}
	makerOrder = applyFill(makerOrder, e)
	if err := checkFilled(makerOrder); err != nil {
		return err
	}
	if err := p.orderRepo.Save(ctx, makerOrder); err != nil {
		return fmt.Errorf("failed to update maker order: %w", err)
	}

	takerOrder, err := p.orderRepo.Get(ctx, OrderKey{SymbolID: symbol, OrderID: e.TakerOrderID})
	if err != nil {
		return fmt.Errorf("failed to get taker order: %w", err)
	}
	takerOrder = applyFill(takerOrder, e)
	if err := checkFilled(takerOrder); err != nil {
		return err
	}
	if err := p.orderRepo.Save(ctx, takerOrder); err != nil {
		return fmt.Errorf("failed to update taker order: %w", err)
	}

	trade := &TradeView{
		TradeID:      e.EventID(),
		SymbolID:     symbol,
		MakerOrderID: e.MakerOrderID,
		TakerOrderID: e.TakerOrderID,
		MakerUID:     e.MakerUID,
		TakerUID:     e.TakerUID,
		TakerAction:  string(e.TakerAction),
		Price:        e.Price,
		Size:         e.Size,
		MakerFee:     e.MakerFee,
		TakerFee:     e.TakerFee,
		OccurredAt:   e.OccurredAt(),
		Sequence:     e.Sequence(),
		Index:        e.Index(),
	}
	return p.tradeRepo.Save(ctx, trade)
}

// projectReduce handles both cancels and partial reductions
func (p *Projector) projectReduce(ctx context.Context, e *events.ReduceEvent) error {
	order, err := p.orderRepo.Get(ctx, OrderKey{SymbolID: e.SymbolID(), OrderID: e.OrderID})
	if err != nil {
		return fmt.Errorf("failed to get order: %w", err)
	}
	if order.appliedAt(e.Sequence(), e.Index()) {
		return nil
	}

	order.Remaining = e.Remaining
	if e.Reason == events.ReduceCancel || e.Remaining == 0 {
		order.Status = OrderStatusCanceled
	} else {
		order.Size -= e.ReducedSize
	}
	touch(order, e)
	return p.orderRepo.Save(ctx, order)
}

// projectReject closes the unfilled remainder of an IOC order
func (p *Projector) projectReject(ctx context.Context, e *events.RejectEvent) error {
	order, err := p.orderRepo.Get(ctx, OrderKey{SymbolID: e.SymbolID(), OrderID: e.OrderID})
	if err != nil {
		return fmt.Errorf("failed to get order: %w", err)
	}
	if order.appliedAt(e.Sequence(), e.Index()) {
		return nil
	}

	order.Remaining = 0
	order.Status = OrderStatusRejected
	touch(order, e)
	return p.orderRepo.Save(ctx, order)
}

func applyFill(order *OrderView, e *events.TradeEvent) *OrderView {
	// Idempotent retry: this event has already been applied to this order.
	if order.appliedAt(e.Sequence(), e.Index()) {
		return order
	}

	order.Filled += e.Size
	order.Remaining -= e.Size
	if order.Remaining == 0 {
		order.Status = OrderStatusFilled
	} else {
		order.Status = OrderStatusPartiallyFilled
	}
	touch(order, e)
	return order
}

func checkFilled(order *OrderView) error {
	if order.Remaining < 0 {
		return fmt.Errorf("invalid trade result: negative remaining size for order %d", order.OrderID)
	}
	if order.Filled > order.Size {
		return fmt.Errorf("invalid trade result: filled size exceeds order size for order %d", order.OrderID)
	}
	return nil
}

func touch(order *OrderView, e events.Event) {
	order.UpdatedAt = e.OccurredAt()
	order.LastSequence = e.Sequence()
	order.LastIndex = e.Index()
}

var _ engine.Subscriber = (*Projector)(nil)

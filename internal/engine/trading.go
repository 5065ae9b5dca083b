package engine

import (
	"errors"
	"fmt"

	"exchange-core/internal/account"
	"exchange-core/internal/events"
	"exchange-core/internal/matching"
	"exchange-core/internal/symbolspec"
)

func (e *Engine) tradable(symbolID int32) (symbolspec.Spec, *matching.OrderBook, error) {
	spec, err := e.registry.Get(symbolID)
	if err != nil {
		return symbolspec.Spec{}, nil, err
	}
	if spec.Type != symbolspec.TypeExchangePair {
		return symbolspec.Spec{}, nil, fmt.Errorf("%w: symbol %d is %s", ErrUnsupportedSymbolType, symbolID, spec.Type)
	}
	book, ok := e.books[symbolID]
	if !ok {
		return symbolspec.Spec{}, nil, fmt.Errorf("no order book for registered symbol %d", symbolID)
	}
	return spec, book, nil
}

// ownedOrder returns the resting order only when it belongs to uid, so callers
// cannot see other accounts' orders.
func ownedOrder(book *matching.OrderBook, orderID, uid int64) (matching.Order, error) {
	o, ok := book.Get(orderID)
	if !ok || o.UID != uid {
		return matching.Order{}, fmt.Errorf("%w: symbol=%d order=%d", matching.ErrOrderNotFound, book.SymbolID, orderID)
	}
	return o, nil
}

// resolveFees returns maker and taker fee per lot; an account override wins
// over the symbol default.
func resolveFees(spec symbolspec.Spec, acc *account.Account) (maker, taker int64) {
	if fee, ok := acc.FeeOverride(); ok {
		return fee.MakerFee, fee.TakerFee
	}
	return spec.MakerFee, spec.TakerFee
}

// holdPerLot returns the currency and amount reserved for each lot of an
// order. A bid holds quote at its reserve price plus the highest fee it may be
// charged; an ask holds base and pays fees out of proceeds, so the worst case
// proceeds must cover them.
func holdPerLot(spec symbolspec.Spec, action matching.Action, reservePrice, maxFee int64) (int32, int64, error) {
	quote, err := symbolspec.MulChecked(reservePrice, spec.QuoteScaleK)
	if err != nil {
		return 0, 0, err
	}
	if action == matching.ActionBid {
		perLot, err := symbolspec.AddChecked(quote, maxFee)
		if err != nil {
			return 0, 0, err
		}
		return spec.QuoteCurrency, perLot, nil
	}
	if maxFee > quote {
		return 0, 0, fmt.Errorf("%w: fee %d exceeds proceeds %d per lot at reserve price %d", ErrInvalidPrice, maxFee, quote, reservePrice)
	}
	return spec.BaseCurrency, spec.BaseScaleK, nil
}

func checkPrices(action matching.Action, price, reservePrice int64) (int64, error) {
	if price <= 0 {
		return 0, fmt.Errorf("%w: price must be positive", ErrInvalidPrice)
	}
	if reservePrice == 0 {
		return price, nil
	}
	if action == matching.ActionBid && reservePrice < price {
		return 0, fmt.Errorf("%w: bid reserve price %d below price %d", ErrInvalidPrice, reservePrice, price)
	}
	if action == matching.ActionAsk && (reservePrice > price || reservePrice <= 0) {
		return 0, fmt.Errorf("%w: ask reserve price %d must be in (0, %d]", ErrInvalidPrice, reservePrice, price)
	}
	return reservePrice, nil
}

func (e *Engine) placeOrder(c PlaceOrder, em *emitter) (any, error) {
	spec, book, err := e.tradable(c.SymbolID)
	if err != nil {
		return nil, err
	}
	acc, err := e.ledger.Account(c.UID)
	if err != nil {
		return nil, err
	}
	reservePrice, err := checkPrices(c.Action, c.Price, c.ReservePrice)
	if err != nil {
		return nil, err
	}
	if c.Size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive", ErrInvalidSize)
	}
	if book.Has(c.OrderID) {
		return nil, fmt.Errorf("%w: symbol=%d order=%d", matching.ErrDuplicateOrderID, c.SymbolID, c.OrderID)
	}

	makerFee, takerFee := resolveFees(spec, acc)
	currency, perLot, err := holdPerLot(spec, c.Action, reservePrice, max(makerFee, takerFee))
	if err != nil {
		return nil, err
	}
	// Every trade amount of this order is bounded by these two.
	if _, err := spec.BaseAmount(c.Size); err != nil {
		return nil, err
	}
	if _, err := spec.QuoteAmount(reservePrice, c.Size); err != nil {
		return nil, err
	}

	key := account.ReservationKey{SymbolID: c.SymbolID, OrderID: c.OrderID}
	if _, err := e.ledger.Reserve(key, c.UID, currency, perLot, c.Size); err != nil {
		if errors.Is(err, account.ErrReservationExists) {
			return nil, em.violation(err)
		}
		return nil, err
	}

	order := &matching.Order{
		OrderID:      c.OrderID,
		UID:          c.UID,
		Action:       c.Action,
		Type:         c.OrderType,
		Price:        c.Price,
		ReservePrice: reservePrice,
		Size:         c.Size,
		MakerFee:     makerFee,
		TakerFee:     takerFee,
	}
	return e.execute(spec, book, order, em)
}

// execute matches order as taker, settles every fill, then rests or discards
// the remainder. The order's reservation must already be held.
func (e *Engine) execute(spec symbolspec.Spec, book *matching.OrderBook, order *matching.Order, em *emitter) (any, error) {
	key := account.ReservationKey{SymbolID: spec.SymbolID, OrderID: order.OrderID}
	fills := book.Match(order)

	for i, f := range fills {
		takerFee, err := e.settle(spec, order, key, f)
		if err != nil {
			return nil, em.violation(err)
		}
		em.emit(&events.TradeEvent{
			Header:         em.header(events.KindTrade, spec.SymbolID),
			TakerOrderID:   order.OrderID,
			TakerUID:       order.UID,
			TakerAction:    order.Action,
			TakerCompleted: i == len(fills)-1 && order.Remaining() == 0,
			MakerOrderID:   f.MakerOrderID,
			MakerUID:       f.MakerUID,
			MakerCompleted: f.MakerCompleted,
			Price:          f.Price,
			Size:           f.Size,
			TakerFee:       takerFee,
			MakerFee:       f.MakerFee * f.Size,
		})
		e.metrics.TradeExecuted(spec.SymbolID, f.Size)
	}

	resting := false
	switch {
	case order.Remaining() == 0:
		if _, err := e.ledger.ReleaseAll(key); err != nil {
			return nil, em.violation(err)
		}
	case order.Type == matching.OrderTypeIOC:
		released, err := e.ledger.ReleaseAll(key)
		if err != nil {
			return nil, em.violation(err)
		}
		em.emit(&events.RejectEvent{
			Header:       em.header(events.KindReject, spec.SymbolID),
			OrderID:      order.OrderID,
			UID:          order.UID,
			Action:       order.Action,
			Price:        order.Price,
			Filled:       order.Filled,
			RejectedSize: order.Remaining(),
			Released:     released,
		})
	default:
		if err := book.Rest(order); err != nil {
			return nil, em.violation(err)
		}
		resting = true
	}

	if len(fills) > 0 || resting {
		if err := e.bookChanged(book, em); err != nil {
			return nil, err
		}
	}

	return OrderAck{
		SymbolID:  spec.SymbolID,
		OrderID:   order.OrderID,
		Filled:    order.Filled,
		Remaining: order.Remaining(),
		Resting:   resting,
	}, nil
}

// settle moves funds for one fill and returns the taker fee charged.
func (e *Engine) settle(spec symbolspec.Spec, taker *matching.Order, takerKey account.ReservationKey, f matching.Fill) (int64, error) {
	base, err := spec.BaseAmount(f.Size)
	if err != nil {
		return 0, err
	}
	quote, err := spec.QuoteAmount(f.Price, f.Size)
	if err != nil {
		return 0, err
	}
	takerFee, err := symbolspec.MulChecked(taker.TakerFee, f.Size)
	if err != nil {
		return 0, err
	}
	makerFee, err := symbolspec.MulChecked(f.MakerFee, f.Size)
	if err != nil {
		return 0, err
	}

	makerKey := account.ReservationKey{SymbolID: spec.SymbolID, OrderID: f.MakerOrderID}
	takerParty := account.TradeParty{UID: taker.UID, Reservation: takerKey, Fee: takerFee}
	makerParty := account.TradeParty{UID: f.MakerUID, Reservation: makerKey, Fee: makerFee}

	s := account.Settlement{
		BaseCurrency:  spec.BaseCurrency,
		QuoteCurrency: spec.QuoteCurrency,
		Lots:          f.Size,
		BaseAmount:    base,
		QuoteAmount:   quote,
	}
	if taker.Action == matching.ActionBid {
		s.Buyer, s.Seller = takerParty, makerParty
	} else {
		s.Buyer, s.Seller = makerParty, takerParty
	}

	if err := e.ledger.SettleTrade(s); err != nil {
		return 0, err
	}
	if f.MakerCompleted {
		if _, err := e.ledger.ReleaseAll(makerKey); err != nil {
			return 0, err
		}
	}
	return takerFee, nil
}

// bookChanged verifies the book after a mutation and emits an L2 update.
func (e *Engine) bookChanged(book *matching.OrderBook, em *emitter) error {
	if err := book.CheckInvariants(); err != nil {
		return em.violation(err)
	}
	if e.cfg.OrderBookDepth > 0 {
		depth := book.Depth(e.cfg.OrderBookDepth)
		em.emit(&events.OrderBookEvent{
			Header: em.header(events.KindOrderBook, book.SymbolID),
			Bids:   depth.Bids,
			Asks:   depth.Asks,
		})
	}
	return nil
}

func (e *Engine) cancelOrder(c CancelOrder, em *emitter) (any, error) {
	_, book, err := e.tradable(c.SymbolID)
	if err != nil {
		return nil, err
	}
	if _, err := ownedOrder(book, c.OrderID, c.UID); err != nil {
		return nil, err
	}

	order, err := book.Remove(c.OrderID)
	if err != nil {
		return nil, em.violation(err)
	}
	released, err := e.ledger.ReleaseAll(account.ReservationKey{SymbolID: c.SymbolID, OrderID: c.OrderID})
	if err != nil {
		return nil, em.violation(err)
	}

	em.emit(&events.ReduceEvent{
		Header:      em.header(events.KindReduce, c.SymbolID),
		OrderID:     order.OrderID,
		UID:         order.UID,
		Action:      order.Action,
		Price:       order.Price,
		ReducedSize: order.Remaining(),
		Remaining:   0,
		Reason:      events.ReduceCancel,
		Released:    released,
	})
	if err := e.bookChanged(book, em); err != nil {
		return nil, err
	}

	return OrderAck{SymbolID: c.SymbolID, OrderID: order.OrderID, Filled: order.Filled}, nil
}

func (e *Engine) moveOrder(c MoveOrder, em *emitter) (any, error) {
	spec, book, err := e.tradable(c.SymbolID)
	if err != nil {
		return nil, err
	}
	current, err := ownedOrder(book, c.OrderID, c.UID)
	if err != nil {
		return nil, err
	}
	if c.NewPrice <= 0 {
		return nil, fmt.Errorf("%w: price must be positive", ErrInvalidPrice)
	}
	if current.Action == matching.ActionBid && c.NewPrice > current.ReservePrice {
		return nil, fmt.Errorf("%w: bid %d cannot move above reserve price %d", ErrInvalidPrice, c.NewPrice, current.ReservePrice)
	}
	if current.Action == matching.ActionAsk && c.NewPrice < current.ReservePrice {
		return nil, fmt.Errorf("%w: ask %d cannot move below reserve price %d", ErrInvalidPrice, c.NewPrice, current.ReservePrice)
	}
	if c.NewPrice == current.Price {
		return OrderAck{
			SymbolID:  c.SymbolID,
			OrderID:   current.OrderID,
			Filled:    current.Filled,
			Remaining: current.Remaining(),
			Resting:   true,
		}, nil
	}

	order, err := book.Remove(c.OrderID)
	if err != nil {
		return nil, em.violation(err)
	}
	order.Price = c.NewPrice
	return e.execute(spec, book, order, em)
}

func (e *Engine) reduceOrder(c ReduceOrder, em *emitter) (any, error) {
	_, book, err := e.tradable(c.SymbolID)
	if err != nil {
		return nil, err
	}
	if c.ReduceSize <= 0 {
		return nil, fmt.Errorf("%w: reduce size must be positive", ErrInvalidSize)
	}
	current, err := ownedOrder(book, c.OrderID, c.UID)
	if err != nil {
		return nil, err
	}

	lots := min(c.ReduceSize, current.Remaining())
	key := account.ReservationKey{SymbolID: c.SymbolID, OrderID: c.OrderID}
	released, err := e.ledger.Release(key, lots)
	if err != nil {
		return nil, em.violation(err)
	}
	after, removed, err := book.Reduce(c.OrderID, lots)
	if err != nil {
		return nil, em.violation(err)
	}
	if removed {
		if _, err := e.ledger.ReleaseAll(key); err != nil {
			return nil, em.violation(err)
		}
	}

	em.emit(&events.ReduceEvent{
		Header:      em.header(events.KindReduce, c.SymbolID),
		OrderID:     after.OrderID,
		UID:         after.UID,
		Action:      after.Action,
		Price:       after.Price,
		ReducedSize: lots,
		Remaining:   after.Remaining(),
		Reason:      events.ReduceReduce,
		Released:    released,
	})
	if err := e.bookChanged(book, em); err != nil {
		return nil, err
	}

	return OrderAck{
		SymbolID:  c.SymbolID,
		OrderID:   after.OrderID,
		Filled:    after.Filled,
		Remaining: after.Remaining(),
		Resting:   !removed,
	}, nil
}

package matching

import (
	"container/list"
	"fmt"
	"sort"
)

// PriceLevel represents all orders at a specific price
type PriceLevel struct {
	Price  int64
	Queue  *list.List // FIFO queue of orders
	Volume int64      // Total remaining size at this price level
}

// NewPriceLevel creates a new price level
func NewPriceLevel(price int64) *PriceLevel {
	return &PriceLevel{
		Price: price,
		Queue: list.New(),
	}
}

// AddOrder adds an order to the back of the price level
func (pl *PriceLevel) AddOrder(order *Order) {
	order.element = pl.Queue.PushBack(order)
	pl.Volume += order.Remaining()
}

// RemoveOrder removes an order from the price level
func (pl *PriceLevel) RemoveOrder(order *Order) {
	if order.element != nil {
		pl.Queue.Remove(order.element)
		pl.Volume -= order.Remaining()
		order.element = nil
	}
}

// IsEmpty returns true if the price level has no orders
func (pl *PriceLevel) IsEmpty() bool {
	return pl.Queue.Len() == 0
}

// bookSide keeps price levels of one side sorted best first.
type bookSide struct {
	action Action
	prices []int64 // bids descending, asks ascending
	levels map[int64]*PriceLevel
}

func newBookSide(action Action) *bookSide {
	return &bookSide{action: action, levels: make(map[int64]*PriceLevel)}
}

// better reports whether price a has priority over price b on this side.
func (s *bookSide) better(a, b int64) bool {
	if s.action == ActionBid {
		return a > b
	}
	return a < b
}

func (s *bookSide) best() *PriceLevel {
	if len(s.prices) == 0 {
		return nil
	}
	return s.levels[s.prices[0]]
}

func (s *bookSide) getOrCreate(price int64) *PriceLevel {
	if level, ok := s.levels[price]; ok {
		return level
	}
	level := NewPriceLevel(price)
	s.levels[price] = level
	i := sort.Search(len(s.prices), func(i int) bool { return !s.better(s.prices[i], price) })
	s.prices = append(s.prices, 0)
	copy(s.prices[i+1:], s.prices[i:])
	s.prices[i] = price
	return level
}

func (s *bookSide) removeIfEmpty(level *PriceLevel) {
	if !level.IsEmpty() {
		return
	}
	delete(s.levels, level.Price)
	i := sort.Search(len(s.prices), func(i int) bool { return !s.better(s.prices[i], level.Price) })
	if i < len(s.prices) && s.prices[i] == level.Price {
		s.prices = append(s.prices[:i], s.prices[i+1:]...)
	}
}

func (s *bookSide) depth(n int) []Level {
	if n <= 0 || n > len(s.prices) {
		n = len(s.prices)
	}
	out := make([]Level, 0, n)
	for _, price := range s.prices[:n] {
		level := s.levels[price]
		out = append(out, Level{Price: price, Volume: level.Volume, Orders: level.Queue.Len()})
	}
	return out
}

// OrderBook holds resting orders of one symbol in price-time priority. It is
// not safe for concurrent use.
type OrderBook struct {
	SymbolID int32
	bids     *bookSide
	asks     *bookSide
	orders   map[int64]*Order // resting orders by id
	arrivals int64
}

// NewOrderBook creates a new order book
func NewOrderBook(symbolID int32) *OrderBook {
	return &OrderBook{
		SymbolID: symbolID,
		bids:     newBookSide(ActionBid),
		asks:     newBookSide(ActionAsk),
		orders:   make(map[int64]*Order),
	}
}

func (ob *OrderBook) side(action Action) *bookSide {
	if action == ActionBid {
		return ob.bids
	}
	return ob.asks
}

// Has reports whether an order with id rests in the book.
func (ob *OrderBook) Has(orderID int64) bool {
	_, ok := ob.orders[orderID]
	return ok
}

// Get returns a copy of a resting order.
func (ob *OrderBook) Get(orderID int64) (Order, bool) {
	o, ok := ob.orders[orderID]
	if !ok {
		return Order{}, false
	}
	return snapshot(o), true
}

// Len returns the number of resting orders.
func (ob *OrderBook) Len() int {
	return len(ob.orders)
}

// BestBid returns the highest bid price.
func (ob *OrderBook) BestBid() (int64, bool) {
	if level := ob.bids.best(); level != nil {
		return level.Price, true
	}
	return 0, false
}

// BestAsk returns the lowest ask price.
func (ob *OrderBook) BestAsk() (int64, bool) {
	if level := ob.asks.best(); level != nil {
		return level.Price, true
	}
	return 0, false
}

// Match executes taker against the opposite side, best price first and FIFO
// within a level, at the maker price. taker.Filled is advanced; fully filled
// makers leave the book. The taker itself is not added to the book.
func (ob *OrderBook) Match(taker *Order) []Fill {
	opposite := ob.side(taker.Action.Opposite())
	var fills []Fill

	for taker.Remaining() > 0 {
		level := opposite.best()
		if level == nil || !taker.Crosses(level.Price) {
			break
		}

		maker := level.Queue.Front().Value.(*Order)
		size := min(maker.Remaining(), taker.Remaining())

		maker.Filled += size
		taker.Filled += size
		level.Volume -= size

		fill := Fill{
			MakerOrderID: maker.OrderID,
			MakerUID:     maker.UID,
			MakerFee:     maker.MakerFee,
			Price:        level.Price,
			Size:         size,
		}

		if maker.Remaining() == 0 {
			fill.MakerCompleted = true
			level.RemoveOrder(maker)
			delete(ob.orders, maker.OrderID)
			opposite.removeIfEmpty(level)
		}
		fills = append(fills, fill)
	}

	return fills
}

// Rest inserts the unfilled remainder of o at the back of its price level.
func (ob *OrderBook) Rest(o *Order) error {
	if o.Remaining() <= 0 {
		return fmt.Errorf("order %d has nothing to rest", o.OrderID)
	}
	if _, exists := ob.orders[o.OrderID]; exists {
		return fmt.Errorf("%w: %d", ErrDuplicateOrderID, o.OrderID)
	}
	ob.arrivals++
	o.arrival = ob.arrivals
	ob.side(o.Action).getOrCreate(o.Price).AddOrder(o)
	ob.orders[o.OrderID] = o
	return nil
}

// Remove takes a resting order out of the book and returns it.
func (ob *OrderBook) Remove(orderID int64) (*Order, error) {
	o, ok := ob.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrOrderNotFound, orderID)
	}
	side := ob.side(o.Action)
	level := side.levels[o.Price]
	level.RemoveOrder(o)
	side.removeIfEmpty(level)
	delete(ob.orders, orderID)
	return o, nil
}

// Reduce shrinks a resting order by lots, keeping its time priority. An
// order reduced to zero leaves the book; the second value reports that.
func (ob *OrderBook) Reduce(orderID, lots int64) (Order, bool, error) {
	o, ok := ob.orders[orderID]
	if !ok {
		return Order{}, false, fmt.Errorf("%w: %d", ErrOrderNotFound, orderID)
	}
	if lots <= 0 || lots > o.Remaining() {
		return Order{}, false, fmt.Errorf("%w: %d of %d", ErrInvalidReduce, lots, o.Remaining())
	}
	if lots == o.Remaining() {
		removed, err := ob.Remove(orderID)
		if err != nil {
			return Order{}, false, err
		}
		removed.Size -= lots
		return snapshot(removed), true, nil
	}
	o.Size -= lots
	ob.side(o.Action).levels[o.Price].Volume -= lots
	return snapshot(o), false, nil
}

// Depth returns up to n aggregated levels per side; n <= 0 means all.
func (ob *OrderBook) Depth(n int) Depth {
	return Depth{Bids: ob.bids.depth(n), Asks: ob.asks.depth(n)}
}

// Orders returns copies of all resting orders, bids then asks, each in
// priority order.
func (ob *OrderBook) Orders() []Order {
	out := make([]Order, 0, len(ob.orders))
	for _, side := range []*bookSide{ob.bids, ob.asks} {
		for _, price := range side.prices {
			for e := side.levels[price].Queue.Front(); e != nil; e = e.Next() {
				out = append(out, snapshot(e.Value.(*Order)))
			}
		}
	}
	return out
}

// OrdersOf returns copies of the resting orders of uid in priority order.
func (ob *OrderBook) OrdersOf(uid int64) []Order {
	var out []Order
	for _, o := range ob.Orders() {
		if o.UID == uid {
			out = append(out, o)
		}
	}
	return out
}

// CheckInvariants verifies level ordering, volumes, FIFO arrival order and
// that the book is not crossed.
func (ob *OrderBook) CheckInvariants() error {
	count := 0
	for _, side := range []*bookSide{ob.bids, ob.asks} {
		if len(side.prices) != len(side.levels) {
			return fmt.Errorf("%w: %s has %d prices for %d levels", ErrCrossedBook, side.action, len(side.prices), len(side.levels))
		}
		for i, price := range side.prices {
			if i > 0 && !side.better(side.prices[i-1], price) {
				return fmt.Errorf("%w: %s levels out of order at %d", ErrCrossedBook, side.action, price)
			}
			level, ok := side.levels[price]
			if !ok || level.IsEmpty() {
				return fmt.Errorf("%w: %s level %d missing or empty", ErrCrossedBook, side.action, price)
			}
			var volume, lastArrival int64
			for e := level.Queue.Front(); e != nil; e = e.Next() {
				o := e.Value.(*Order)
				if o.Price != price || o.Action != side.action || o.Remaining() <= 0 {
					return fmt.Errorf("%w: order %d misplaced at %s %d", ErrCrossedBook, o.OrderID, side.action, price)
				}
				if o.arrival <= lastArrival {
					return fmt.Errorf("%w: level %d not in arrival order", ErrCrossedBook, price)
				}
				lastArrival = o.arrival
				volume += o.Remaining()
				count++
			}
			if volume != level.Volume {
				return fmt.Errorf("%w: level %d volume %d, orders sum %d", ErrCrossedBook, price, level.Volume, volume)
			}
		}
	}
	if count != len(ob.orders) {
		return fmt.Errorf("%w: %d orders in levels, %d indexed", ErrCrossedBook, count, len(ob.orders))
	}

	bid, hasBid := ob.BestBid()
	ask, hasAsk := ob.BestAsk()
	if hasBid && hasAsk && bid >= ask {
		return fmt.Errorf("%w: best bid %d >= best ask %d", ErrCrossedBook, bid, ask)
	}
	return nil
}

func snapshot(o *Order) Order {
	c := *o
	c.element = nil
	return c
}

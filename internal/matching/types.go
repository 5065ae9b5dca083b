package matching

import (
	"container/list"
	"errors"
)

// Action is the order side.
type Action string

const (
	ActionBid Action = "BID"
	ActionAsk Action = "ASK"
)

func (a Action) IsValid() bool {
	return a == ActionBid || a == ActionAsk
}

// Opposite returns the side an order of this action matches against.
func (a Action) Opposite() Action {
	if a == ActionBid {
		return ActionAsk
	}
	return ActionBid
}

// OrderType controls what happens to the unfilled remainder of an order.
type OrderType string

const (
	OrderTypeGTC OrderType = "GTC" // Good-Till-Cancel: remainder rests in the book
	OrderTypeIOC OrderType = "IOC" // Immediate-or-Cancel: remainder is discarded
)

func (t OrderType) IsValid() bool {
	return t == OrderTypeGTC || t == OrderTypeIOC
}

var (
	ErrDuplicateOrderID = errors.New("duplicate order id")
	ErrOrderNotFound    = errors.New("order not found")
	ErrInvalidReduce    = errors.New("invalid reduce size")
	ErrCrossedBook      = errors.New("order book invariant violated")
)

// Order is a limit order. Prices are in price steps, sizes in lots, fees in
// quote currency units per lot.
type Order struct {
	OrderID      int64
	UID          int64
	Action       Action
	Type         OrderType
	Price        int64
	ReservePrice int64
	Size         int64
	Filled       int64
	MakerFee     int64
	TakerFee     int64

	arrival int64         // book insertion counter
	element *list.Element // position in price level queue
}

// Remaining returns the unfilled size.
func (o *Order) Remaining() int64 {
	return o.Size - o.Filled
}

// Crosses reports whether o can trade against a resting order at price.
func (o *Order) Crosses(price int64) bool {
	if o.Action == ActionBid {
		return price <= o.Price
	}
	return price >= o.Price
}

// Fill is one execution of a taker against a resting maker order.
type Fill struct {
	MakerOrderID   int64
	MakerUID       int64
	MakerFee       int64 // per lot
	MakerCompleted bool
	Price          int64 // maker price
	Size           int64
}

// Level is an aggregated price level.
type Level struct {
	Price  int64 `json:"price"`
	Volume int64 `json:"volume"`
	Orders int   `json:"orders"`
}

// Depth is an L2 view of both sides, best price first.
type Depth struct {
	Bids []Level `json:"bids"`
	Asks []Level `json:"asks"`
}

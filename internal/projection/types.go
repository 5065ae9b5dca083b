package projection

import (
	"time"
)

// OrderStatus represents the status of an order in the read model
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusRejected        OrderStatus = "REJECTED" // unfilled IOC remainder
)

// OrderKey identifies an order; ids are unique per symbol.
type OrderKey struct {
	SymbolID int32
	OrderID  int64
}

// OrderView represents the read model for an order
type OrderView struct {
	SymbolID     int32       `json:"symbol_id"`
	OrderID      int64       `json:"order_id"`
	UID          int64       `json:"uid"`
	Action       string      `json:"action"` // "BID" or "ASK"
	Type         string      `json:"type"`   // "GTC" or "IOC"
	Price        int64       `json:"price"`
	ReservePrice int64       `json:"reserve_price"`
	Size         int64       `json:"size"`
	Filled       int64       `json:"filled"`
	Remaining    int64       `json:"remaining"`
	Status       OrderStatus `json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	LastSequence int64       `json:"last_sequence"` // Last command sequence that updated this order
	LastIndex    int         `json:"last_index"`    // Event index within LastSequence, -1 for the command itself
}

func (v *OrderView) Key() OrderKey {
	return OrderKey{SymbolID: v.SymbolID, OrderID: v.OrderID}
}

// appliedAt reports whether the update at (seq, index) is already reflected.
func (v *OrderView) appliedAt(seq int64, index int) bool {
	return v.LastSequence > seq || (v.LastSequence == seq && v.LastIndex >= index)
}

// TradeView represents the read model for a trade
type TradeView struct {
	TradeID      string    `json:"trade_id"`
	SymbolID     int32     `json:"symbol_id"`
	MakerOrderID int64     `json:"maker_order_id"`
	TakerOrderID int64     `json:"taker_order_id"`
	MakerUID     int64     `json:"maker_uid"`
	TakerUID     int64     `json:"taker_uid"`
	TakerAction  string    `json:"taker_action"`
	Price        int64     `json:"price"`
	Size         int64     `json:"size"`
	MakerFee     int64     `json:"maker_fee"`
	TakerFee     int64     `json:"taker_fee"`
	OccurredAt   time.Time `json:"occurred_at"`
	Sequence     int64     `json:"sequence"` // Command sequence number
	Index        int       `json:"index"`    // Event index within the command
}

package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"exchange-core/internal/matching"
)

// Kind tags the concrete event type.
type Kind string

const (
	KindTrade           Kind = "TRADE"
	KindReduce          Kind = "REDUCE"
	KindReject          Kind = "REJECT"
	KindOrderBook       Kind = "ORDER_BOOK"
	KindBalanceAdjusted Kind = "BALANCE_ADJUSTED"
)

// Namespace seeds deterministic event ids.
var Namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:exchange-core:events"))

// Event is an immutable effect of one processed command.
type Event interface {
	EventID() string
	Kind() Kind
	Sequence() int64
	Index() int
	SymbolID() int32
	OccurredAt() time.Time
}

// Header carries the fields shared by every event. Index orders events
// produced by the same command.
type Header struct {
	ID     string    `json:"event_id"`
	Seq    int64     `json:"sequence"`
	Idx    int       `json:"index"`
	Symbol int32     `json:"symbol_id,omitempty"`
	At     time.Time `json:"occurred_at"`
}

// NewHeader builds a header with an id derived from the command sequence, the
// position of the event within the command and its kind, so replaying the same
// command stream yields the same ids.
func NewHeader(kind Kind, seq int64, index int, symbolID int32, at time.Time) Header {
	return Header{
		ID:     DeterministicID(kind, seq, index).String(),
		Seq:    seq,
		Idx:    index,
		Symbol: symbolID,
		At:     at,
	}
}

// DeterministicID returns the event id for (kind, seq, index).
func DeterministicID(kind Kind, seq int64, index int) uuid.UUID {
	return uuid.NewSHA1(Namespace, []byte(fmt.Sprintf("%s:%d:%d", kind, seq, index)))
}

func (h Header) EventID() string       { return h.ID }
func (h Header) Sequence() int64       { return h.Seq }
func (h Header) Index() int            { return h.Idx }
func (h Header) SymbolID() int32       { return h.Symbol }
func (h Header) OccurredAt() time.Time { return h.At }

// TradeEvent records one match between an incoming taker and a resting maker.
// Fees are totals for the trade in quote currency units.
type TradeEvent struct {
	Header
	TakerOrderID   int64           `json:"taker_order_id"`
	TakerUID       int64           `json:"taker_uid"`
	TakerAction    matching.Action `json:"taker_action"`
	TakerCompleted bool            `json:"taker_completed"`
	MakerOrderID   int64           `json:"maker_order_id"`
	MakerUID       int64           `json:"maker_uid"`
	MakerCompleted bool            `json:"maker_completed"`
	Price          int64           `json:"price"`
	Size           int64           `json:"size"`
	TakerFee       int64           `json:"taker_fee"`
	MakerFee       int64           `json:"maker_fee"`
}

func (*TradeEvent) Kind() Kind { return KindTrade }

// ReduceReason says why a resting order shrank.
type ReduceReason string

const (
	ReduceCancel ReduceReason = "CANCEL"
	ReduceReduce ReduceReason = "REDUCE"
)

// ReduceEvent records lots removed from a resting order without a trade.
type ReduceEvent struct {
	Header
	OrderID     int64           `json:"order_id"`
	UID         int64           `json:"uid"`
	Action      matching.Action `json:"action"`
	Price       int64           `json:"price"`
	ReducedSize int64           `json:"reduced_size"`
	Remaining   int64           `json:"remaining"`
	Reason      ReduceReason    `json:"reason"`
	Released    int64           `json:"released"` // funds returned to available
}

func (*ReduceEvent) Kind() Kind { return KindReduce }

// RejectEvent records the unfilled remainder of an immediate-or-cancel order.
type RejectEvent struct {
	Header
	OrderID      int64           `json:"order_id"`
	UID          int64           `json:"uid"`
	Action       matching.Action `json:"action"`
	Price        int64           `json:"price"`
	Filled       int64           `json:"filled"`
	RejectedSize int64           `json:"rejected_size"`
	Released     int64           `json:"released"`
}

func (*RejectEvent) Kind() Kind { return KindReject }

// OrderBookEvent is an L2 snapshot taken after a book mutation.
type OrderBookEvent struct {
	Header
	Bids []matching.Level `json:"bids"`
	Asks []matching.Level `json:"asks"`
}

func (*OrderBookEvent) Kind() Kind { return KindOrderBook }

// BalanceAdjustedEvent records an applied balance adjustment.
type BalanceAdjustedEvent struct {
	Header
	UID           int64 `json:"uid"`
	Currency      int32 `json:"currency"`
	Amount        int64 `json:"amount"`
	TransactionID int64 `json:"transaction_id"`
	Available     int64 `json:"available"`
}

func (*BalanceAdjustedEvent) Kind() Kind { return KindBalanceAdjusted }

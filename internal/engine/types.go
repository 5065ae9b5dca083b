package engine

import (
	"errors"
	"fmt"
	"time"

	"exchange-core/internal/account"
	"exchange-core/internal/events"
	"exchange-core/internal/matching"
	"exchange-core/internal/symbolspec"
)

// CommandType represents the type of command
type CommandType string

const (
	CommandTypeAddUser          CommandType = "ADD_USER"
	CommandTypeAdjustBalance    CommandType = "ADJUST_BALANCE"
	CommandTypeBatchAddSymbols  CommandType = "BATCH_ADD_SYMBOLS"
	CommandTypeBatchAddAccounts CommandType = "BATCH_ADD_ACCOUNTS"
	CommandTypePlaceOrder       CommandType = "PLACE_ORDER"
	CommandTypeCancelOrder      CommandType = "CANCEL_ORDER"
	CommandTypeMoveOrder        CommandType = "MOVE_ORDER"
	CommandTypeReduceOrder      CommandType = "REDUCE_ORDER"
	CommandTypeSingleUserReport CommandType = "SINGLE_USER_REPORT"
	CommandTypeTotalsReport     CommandType = "TOTAL_CURRENCY_BALANCE_REPORT"
	CommandTypeOrderBookQuery   CommandType = "ORDER_BOOK_QUERY"
)

// Command is a typed request processed in sequence. Validate checks structure
// only; state dependent checks happen during processing.
type Command interface {
	Type() CommandType
	Validate() error
}

// ErrInvalidCommand marks structurally malformed commands.
var ErrInvalidCommand = errors.New("invalid command")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidCommand, fmt.Sprintf(format, args...))
}

func validUID(uid int64) error {
	if uid <= 0 {
		return invalid("uid must be positive")
	}
	return nil
}

// AddUser creates an account. Fee, when set, overrides the symbol default
// fees for this account and only applies when the account is created.
type AddUser struct {
	UID int64
	Fee *account.FeeOverride
}

func (AddUser) Type() CommandType { return CommandTypeAddUser }

func (c AddUser) Validate() error {
	if err := validUID(c.UID); err != nil {
		return err
	}
	if c.Fee != nil && (c.Fee.MakerFee < 0 || c.Fee.TakerFee < 0) {
		return invalid("fee override must not be negative")
	}
	return nil
}

// AdjustBalance deposits (positive) or withdraws (negative) funds. Replays of
// the same TransactionID for the same uid and currency are idempotent.
type AdjustBalance struct {
	UID           int64
	Currency      int32
	Amount        int64
	TransactionID int64
}

func (AdjustBalance) Type() CommandType { return CommandTypeAdjustBalance }

func (c AdjustBalance) Validate() error {
	return validUID(c.UID)
}

// BatchAddSymbols registers all symbols or none.
type BatchAddSymbols struct {
	Symbols []symbolspec.Spec
}

func (BatchAddSymbols) Type() CommandType { return CommandTypeBatchAddSymbols }

func (c BatchAddSymbols) Validate() error {
	if len(c.Symbols) == 0 {
		return invalid("empty symbol batch")
	}
	return nil
}

// BatchAddAccounts creates accounts with opening balances, all or none.
type BatchAddAccounts struct {
	Accounts []account.Seed
}

func (BatchAddAccounts) Type() CommandType { return CommandTypeBatchAddAccounts }

func (c BatchAddAccounts) Validate() error {
	if len(c.Accounts) == 0 {
		return invalid("empty account batch")
	}
	for _, s := range c.Accounts {
		if err := validUID(s.UID); err != nil {
			return err
		}
	}
	return nil
}

// PlaceOrder submits a limit order. ReservePrice zero means Price.
type PlaceOrder struct {
	UID          int64
	SymbolID     int32
	OrderID      int64
	Action       matching.Action
	OrderType    matching.OrderType
	Price        int64
	ReservePrice int64
	Size         int64
}

func (PlaceOrder) Type() CommandType { return CommandTypePlaceOrder }

func (c PlaceOrder) Validate() error {
	if err := validUID(c.UID); err != nil {
		return err
	}
	if !c.Action.IsValid() {
		return invalid("unknown action %q", c.Action)
	}
	if !c.OrderType.IsValid() {
		return invalid("unknown order type %q", c.OrderType)
	}
	return nil
}

// CancelOrder removes a resting order and releases its reservation.
type CancelOrder struct {
	UID      int64
	SymbolID int32
	OrderID  int64
}

func (CancelOrder) Type() CommandType { return CommandTypeCancelOrder }

func (c CancelOrder) Validate() error {
	return validUID(c.UID)
}

// MoveOrder changes the price of a resting order within its reserve price.
// The order loses its time priority and may trade immediately.
type MoveOrder struct {
	UID      int64
	SymbolID int32
	OrderID  int64
	NewPrice int64
}

func (MoveOrder) Type() CommandType { return CommandTypeMoveOrder }

func (c MoveOrder) Validate() error {
	return validUID(c.UID)
}

// ReduceOrder shrinks a resting order by ReduceSize lots, capped at what
// remains.
type ReduceOrder struct {
	UID        int64
	SymbolID   int32
	OrderID    int64
	ReduceSize int64
}

func (ReduceOrder) Type() CommandType { return CommandTypeReduceOrder }

func (c ReduceOrder) Validate() error {
	return validUID(c.UID)
}

// SingleUserReport returns a point-in-time copy of one account.
type SingleUserReport struct {
	UID int64
}

func (SingleUserReport) Type() CommandType { return CommandTypeSingleUserReport }

func (c SingleUserReport) Validate() error {
	return validUID(c.UID)
}

// TotalCurrencyBalanceReport returns totals per currency across all accounts,
// open orders and collected fees.
type TotalCurrencyBalanceReport struct{}

func (TotalCurrencyBalanceReport) Type() CommandType { return CommandTypeTotalsReport }

func (TotalCurrencyBalanceReport) Validate() error { return nil }

// OrderBookQuery returns an L2 snapshot of one symbol. Depth <= 0 means all
// levels.
type OrderBookQuery struct {
	SymbolID int32
	Depth    int
}

func (OrderBookQuery) Type() CommandType { return CommandTypeOrderBookQuery }

func (OrderBookQuery) Validate() error { return nil }

// CommandResult is the outcome of one submitted command.
type CommandResult struct {
	Sequence int64      // 0 when the command was never sequenced
	Code     ResultCode // SUCCESS or a failure reason
	Message  string
	Payload  any // report data or an order acknowledgement
}

// IsSuccess reports whether the command succeeded.
func (r CommandResult) IsSuccess() bool {
	return r.Code == CodeSuccess
}

// OrderAck is the payload of successful trading commands.
type OrderAck struct {
	SymbolID  int32 `json:"symbol_id"`
	OrderID   int64 `json:"order_id"`
	Filled    int64 `json:"filled"`
	Remaining int64 `json:"remaining"`
	Resting   bool  `json:"resting"`
}

// AdjustAck is the payload of a successful balance adjustment.
type AdjustAck struct {
	Available int64 `json:"available"`
	Replayed  bool  `json:"replayed"`
}

// Output is everything a processed command produced, in the order subscribers
// observe it.
type Output struct {
	Sequence    int64
	Command     Command
	Result      CommandResult
	Events      []events.Event
	ProcessedAt time.Time
}

// normalize turns pointer commands into values. Nil and foreign command types
// are rejected.
func normalize(cmd Command) (Command, error) {
	switch c := cmd.(type) {
	case *AddUser:
		if c != nil {
			return *c, nil
		}
	case *AdjustBalance:
		if c != nil {
			return *c, nil
		}
	case *BatchAddSymbols:
		if c != nil {
			return *c, nil
		}
	case *BatchAddAccounts:
		if c != nil {
			return *c, nil
		}
	case *PlaceOrder:
		if c != nil {
			return *c, nil
		}
	case *CancelOrder:
		if c != nil {
			return *c, nil
		}
	case *MoveOrder:
		if c != nil {
			return *c, nil
		}
	case *ReduceOrder:
		if c != nil {
			return *c, nil
		}
	case *SingleUserReport:
		if c != nil {
			return *c, nil
		}
	case *TotalCurrencyBalanceReport:
		if c != nil {
			return *c, nil
		}
	case *OrderBookQuery:
		if c != nil {
			return *c, nil
		}
	case AddUser, AdjustBalance, BatchAddSymbols, BatchAddAccounts, PlaceOrder,
		CancelOrder, MoveOrder, ReduceOrder, SingleUserReport,
		TotalCurrencyBalanceReport, OrderBookQuery:
		return cmd, nil
	case nil:
	default:
		return nil, invalid("unsupported command %T", cmd)
	}
	return nil, invalid("nil command")
}

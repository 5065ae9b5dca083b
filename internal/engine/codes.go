package engine

import (
	"errors"
	"fmt"

	"exchange-core/internal/account"
	"exchange-core/internal/matching"
	"exchange-core/internal/symbolspec"
)

// ResultCode is the outcome reported for a command.
type ResultCode string

const (
	CodeSuccess ResultCode = "SUCCESS"

	CodeInvalidCommand        ResultCode = "INVALID_COMMAND"
	CodeInvalidPrice          ResultCode = "INVALID_PRICE"
	CodeInvalidSize           ResultCode = "INVALID_SIZE"
	CodeInvalidAmount         ResultCode = "INVALID_AMOUNT"
	CodeArithmeticOverflow    ResultCode = "ARITHMETIC_OVERFLOW"
	CodeUnsupportedSymbolType ResultCode = "UNSUPPORTED_SYMBOL_TYPE"

	CodeUnknownUser   ResultCode = "UNKNOWN_USER"
	CodeUnknownSymbol ResultCode = "UNKNOWN_SYMBOL"
	CodeOrderNotFound ResultCode = "ORDER_NOT_FOUND"

	CodeNotEnoughFunds ResultCode = "NOT_ENOUGH_FUNDS"

	CodeSymbolAlreadyExists  ResultCode = "SYMBOL_ALREADY_EXISTS"
	CodeDuplicateTransaction ResultCode = "DUPLICATE_TRANSACTION"
	CodeDuplicateOrderID     ResultCode = "DUPLICATE_ORDER_ID"
	CodeAccountAlreadyExists ResultCode = "ACCOUNT_ALREADY_EXISTS"

	CodeBackpressure  ResultCode = "BACKPRESSURE"
	CodeEngineStopped ResultCode = "ENGINE_STOPPED"

	CodeInternalError ResultCode = "INTERNAL_ERROR"
)

// Category groups result codes by how a caller should react.
type Category string

const (
	CategoryNone              Category = ""
	CategoryValidation        Category = "VALIDATION"
	CategoryNotFound          Category = "NOT_FOUND"
	CategoryInsufficientFunds Category = "INSUFFICIENT_FUNDS"
	CategoryDuplicate         Category = "DUPLICATE"
	CategoryBackpressure      Category = "BACKPRESSURE"
	CategoryInternal          Category = "INTERNAL"
)

// Category returns the category of c.
func (c ResultCode) Category() Category {
	switch c {
	case CodeSuccess:
		return CategoryNone
	case CodeInvalidCommand, CodeInvalidPrice, CodeInvalidSize, CodeInvalidAmount,
		CodeArithmeticOverflow, CodeUnsupportedSymbolType:
		return CategoryValidation
	case CodeUnknownUser, CodeUnknownSymbol, CodeOrderNotFound:
		return CategoryNotFound
	case CodeNotEnoughFunds:
		return CategoryInsufficientFunds
	case CodeSymbolAlreadyExists, CodeDuplicateTransaction, CodeDuplicateOrderID, CodeAccountAlreadyExists:
		return CategoryDuplicate
	case CodeBackpressure, CodeEngineStopped:
		return CategoryBackpressure
	default:
		return CategoryInternal
	}
}

// Processing errors raised by the engine itself.
var (
	ErrInvalidPrice          = errors.New("invalid price")
	ErrInvalidSize           = errors.New("invalid size")
	ErrUnsupportedSymbolType = errors.New("symbol type does not support trading")
	ErrBackpressure          = errors.New("command queue is full")
	ErrStopped               = errors.New("engine stopped")
)

// InvariantError reports corrupted internal state. It halts processing.
type InvariantError struct {
	Sequence int64
	Err      error
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violated at sequence %d: %v", e.Sequence, e.Err)
}

func (e *InvariantError) Unwrap() error { return e.Err }

// codeFor maps a processing error to its result code.
func codeFor(err error) ResultCode {
	var inv *InvariantError
	switch {
	case err == nil:
		return CodeSuccess
	case errors.As(err, &inv):
		return CodeInternalError
	case errors.Is(err, ErrInvalidCommand):
		return CodeInvalidCommand
	case errors.Is(err, ErrInvalidPrice):
		return CodeInvalidPrice
	case errors.Is(err, ErrInvalidSize), errors.Is(err, matching.ErrInvalidReduce):
		return CodeInvalidSize
	case errors.Is(err, account.ErrInvalidAmount):
		return CodeInvalidAmount
	case errors.Is(err, symbolspec.ErrOverflow):
		return CodeArithmeticOverflow
	case errors.Is(err, ErrUnsupportedSymbolType):
		return CodeUnsupportedSymbolType
	case errors.Is(err, symbolspec.ErrInvalidSpec):
		return CodeInvalidCommand
	case errors.Is(err, account.ErrAccountNotFound):
		return CodeUnknownUser
	case errors.Is(err, symbolspec.ErrUnknownSymbol):
		return CodeUnknownSymbol
	case errors.Is(err, matching.ErrOrderNotFound):
		return CodeOrderNotFound
	case errors.Is(err, account.ErrInsufficientFunds):
		return CodeNotEnoughFunds
	case errors.Is(err, symbolspec.ErrSymbolAlreadyExists):
		return CodeSymbolAlreadyExists
	case errors.Is(err, account.ErrDuplicateTransaction):
		return CodeDuplicateTransaction
	case errors.Is(err, matching.ErrDuplicateOrderID):
		return CodeDuplicateOrderID
	case errors.Is(err, account.ErrAccountExists):
		return CodeAccountAlreadyExists
	case errors.Is(err, ErrBackpressure):
		return CodeBackpressure
	case errors.Is(err, ErrStopped):
		return CodeEngineStopped
	default:
		return CodeInternalError
	}
}

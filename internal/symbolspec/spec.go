package symbolspec

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownSymbol       = errors.New("unknown symbol")
	ErrSymbolAlreadyExists = errors.New("symbol already exists")
	ErrInvalidSpec         = errors.New("invalid symbol specification")
	ErrOverflow            = errors.New("arithmetic overflow")
)

// SymbolType identifies how a symbol settles.
type SymbolType string

const (
	TypeExchangePair SymbolType = "CURRENCY_EXCHANGE_PAIR"
	TypeFutures      SymbolType = "FUTURES_CONTRACT"
)

func (t SymbolType) IsValid() bool {
	return t == TypeExchangePair || t == TypeFutures
}

// Spec defines the immutable trading parameters of a symbol.
// Fees are expressed in quote currency units per lot.
type Spec struct {
	SymbolID      int32      `json:"symbol_id"`
	Type          SymbolType `json:"type"`
	BaseCurrency  int32      `json:"base_currency"`
	QuoteCurrency int32      `json:"quote_currency"`
	BaseScaleK    int64      `json:"base_scale_k"`  // base currency units per lot
	QuoteScaleK   int64      `json:"quote_scale_k"` // quote currency units per price step
	TakerFee      int64      `json:"taker_fee"`
	MakerFee      int64      `json:"maker_fee"`
	MarginBuy     int64      `json:"margin_buy,omitempty"`
	MarginSell    int64      `json:"margin_sell,omitempty"`
}

// Validate checks the spec fields in isolation.
func (s Spec) Validate() error {
	if s.SymbolID <= 0 {
		return fmt.Errorf("%w: symbol_id must be positive", ErrInvalidSpec)
	}
	if !s.Type.IsValid() {
		return fmt.Errorf("%w: unsupported type %q", ErrInvalidSpec, s.Type)
	}
	if s.BaseScaleK <= 0 || s.QuoteScaleK <= 0 {
		return fmt.Errorf("%w: scale factors must be positive", ErrInvalidSpec)
	}
	if s.TakerFee < 0 || s.MakerFee < 0 {
		return fmt.Errorf("%w: fees must not be negative", ErrInvalidSpec)
	}
	if s.Type == TypeExchangePair && s.BaseCurrency == s.QuoteCurrency {
		return fmt.Errorf("%w: base and quote currency must differ", ErrInvalidSpec)
	}
	if s.Type == TypeFutures && (s.MarginBuy <= 0 || s.MarginSell <= 0) {
		return fmt.Errorf("%w: futures contract requires margins", ErrInvalidSpec)
	}
	return nil
}

// BaseAmount converts a lot count into base currency units.
func (s Spec) BaseAmount(lots int64) (int64, error) {
	return MulChecked(lots, s.BaseScaleK)
}

// QuoteAmount converts price steps and lots into quote currency units.
func (s Spec) QuoteAmount(price, lots int64) (int64, error) {
	perLot, err := MulChecked(price, s.QuoteScaleK)
	if err != nil {
		return 0, err
	}
	return MulChecked(perLot, lots)
}

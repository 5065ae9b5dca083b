package account

import "sort"

// Balance represents account balance for a specific currency
type Balance struct {
	Available int64 // Spendable balance
	Reserved  int64 // Balance held by resting or in-flight orders
}

// Total returns the total balance (available + reserved)
func (b Balance) Total() int64 {
	return b.Available + b.Reserved
}

// FeeOverride replaces the symbol default fees for one account.
type FeeOverride struct {
	MakerFee int64 `json:"maker_fee"`
	TakerFee int64 `json:"taker_fee"`
}

// Account holds the balances of one uid.
type Account struct {
	UID      int64
	balances map[int32]*Balance
	fee      *FeeOverride
}

func newAccount(uid int64) *Account {
	return &Account{UID: uid, balances: make(map[int32]*Balance)}
}

// Balance returns a copy of the balance for currency.
func (a *Account) Balance(currency int32) Balance {
	if b, ok := a.balances[currency]; ok {
		return *b
	}
	return Balance{}
}

// Currencies returns the currencies the account has touched, ascending.
func (a *Account) Currencies() []int32 {
	out := make([]int32, 0, len(a.balances))
	for c := range a.balances {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// FeeOverride returns the account specific fees, if any.
func (a *Account) FeeOverride() (FeeOverride, bool) {
	if a.fee == nil {
		return FeeOverride{}, false
	}
	return *a.fee, true
}

func (a *Account) balance(currency int32) *Balance {
	b, ok := a.balances[currency]
	if !ok {
		b = &Balance{}
		a.balances[currency] = b
	}
	return b
}

// ReservationKey identifies the funds held for one order.
type ReservationKey struct {
	SymbolID int32
	OrderID  int64
}

// Reservation tracks funds held for an order. PerLot is the amount held for
// each unfilled lot.
type Reservation struct {
	UID      int64
	Currency int32
	PerLot   int64
	Held     int64
}

// TradeParty is one side of a settlement.
type TradeParty struct {
	UID         int64
	Reservation ReservationKey
	Fee         int64 // total fee in quote currency for this trade
}

// Settlement describes the balance effects of one trade.
type Settlement struct {
	BaseCurrency  int32
	QuoteCurrency int32
	Lots          int64
	BaseAmount    int64 // base units moved from seller to buyer
	QuoteAmount   int64 // quote units moved from buyer to seller, fees excluded
	Buyer         TradeParty
	Seller        TradeParty
}

// AdjustResult reports the outcome of a balance adjustment.
type AdjustResult struct {
	Balance  Balance
	Replayed bool
}

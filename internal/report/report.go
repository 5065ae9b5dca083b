// Package report builds point-in-time copies of ledger and order book state.
// The builders read live state and must run on the goroutine that owns it.
package report

import (
	"sort"

	"github.com/shopspring/decimal"

	"exchange-core/internal/account"
	"exchange-core/internal/matching"
	"exchange-core/internal/symbolspec"
)

// OpenOrder is a resting order of an account.
type OpenOrder struct {
	SymbolID     int32              `json:"symbol_id"`
	OrderID      int64              `json:"order_id"`
	Action       matching.Action    `json:"action"`
	Type         matching.OrderType `json:"type"`
	Price        int64              `json:"price"`
	ReservePrice int64              `json:"reserve_price"`
	Size         int64              `json:"size"`
	Filled       int64              `json:"filled"`
}

// AccountReport is a snapshot of one account.
type AccountReport struct {
	UID      int64                `json:"uid"`
	Balances map[int32]int64      `json:"balances"` // available per currency
	Reserved map[int32]int64      `json:"reserved"` // held by open orders
	Fee      *account.FeeOverride `json:"fee,omitempty"`
	Orders   []OpenOrder          `json:"orders"`
}

// Balance returns the available balance of currency.
func (r *AccountReport) Balance(currency int32) int64 {
	return r.Balances[currency]
}

// Total returns available plus reserved for currency.
func (r *AccountReport) Total(currency int32) int64 {
	return r.Balances[currency] + r.Reserved[currency]
}

// BuildAccountReport copies the state of uid. books must be in ascending
// symbol order.
func BuildAccountReport(l *account.Ledger, books []*matching.OrderBook, uid int64) (*AccountReport, error) {
	acc, err := l.Account(uid)
	if err != nil {
		return nil, err
	}

	r := &AccountReport{
		UID:      uid,
		Balances: make(map[int32]int64),
		Reserved: make(map[int32]int64),
		Orders:   []OpenOrder{},
	}
	for _, c := range acc.Currencies() {
		b := acc.Balance(c)
		r.Balances[c] = b.Available
		if b.Reserved != 0 {
			r.Reserved[c] = b.Reserved
		}
	}
	if fee, ok := acc.FeeOverride(); ok {
		r.Fee = &fee
	}
	for _, book := range books {
		for _, o := range book.OrdersOf(uid) {
			r.Orders = append(r.Orders, OpenOrder{
				SymbolID:     book.SymbolID,
				OrderID:      o.OrderID,
				Action:       o.Action,
				Type:         o.Type,
				Price:        o.Price,
				ReservePrice: o.ReservePrice,
				Size:         o.Size,
				Filled:       o.Filled,
			})
		}
	}
	return r, nil
}

// TotalsReport aggregates every currency across accounts, open orders and
// collected fees.
type TotalsReport struct {
	AccountBalances map[int32]int64 `json:"account_balances"`
	OrderBalances   map[int32]int64 `json:"order_balances"`
	Fees            map[int32]int64 `json:"fees"`
	OpenOrders      int             `json:"open_orders"`
}

// Sum returns the total amount of currency held anywhere in the system.
func (r *TotalsReport) Sum(currency int32) int64 {
	return r.AccountBalances[currency] + r.OrderBalances[currency] + r.Fees[currency]
}

// Currencies returns every currency that appears in the report, ascending.
func (r *TotalsReport) Currencies() []int32 {
	seen := make(map[int32]struct{})
	for _, m := range []map[int32]int64{r.AccountBalances, r.OrderBalances, r.Fees} {
		for c := range m {
			seen[c] = struct{}{}
		}
	}
	out := make([]int32, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// BuildTotalsReport sums the ledger.
func BuildTotalsReport(l *account.Ledger, books []*matching.OrderBook) *TotalsReport {
	r := &TotalsReport{
		AccountBalances: make(map[int32]int64),
		OrderBalances:   make(map[int32]int64),
		Fees:            l.Fees(),
	}
	l.ForEachAccount(func(acc *account.Account) {
		for _, c := range acc.Currencies() {
			b := acc.Balance(c)
			r.AccountBalances[c] += b.Available
			if b.Reserved != 0 {
				r.OrderBalances[c] += b.Reserved
			}
		}
	})
	for _, book := range books {
		r.OpenOrders += book.Len()
	}
	return r
}

// BookLevel is an L2 level with its human readable rate.
type BookLevel struct {
	Price  int64           `json:"price"`
	Rate   decimal.Decimal `json:"rate"`
	Volume int64           `json:"volume"`
	Orders int             `json:"orders"`
}

// BookSnapshot is an L2 view of one symbol.
type BookSnapshot struct {
	SymbolID int32       `json:"symbol_id"`
	Bids     []BookLevel `json:"bids"`
	Asks     []BookLevel `json:"asks"`
}

// BuildBookSnapshot copies up to depth levels per side; depth <= 0 means all.
func BuildBookSnapshot(spec symbolspec.Spec, book *matching.OrderBook, depth int) *BookSnapshot {
	s := &BookSnapshot{SymbolID: spec.SymbolID, Bids: []BookLevel{}, Asks: []BookLevel{}}
	if book == nil {
		return s
	}
	d := book.Depth(depth)
	s.Bids = levels(spec, d.Bids)
	s.Asks = levels(spec, d.Asks)
	return s
}

func levels(spec symbolspec.Spec, in []matching.Level) []BookLevel {
	out := make([]BookLevel, 0, len(in))
	for _, l := range in {
		out = append(out, BookLevel{
			Price:  l.Price,
			Rate:   spec.Rate(l.Price),
			Volume: l.Volume,
			Orders: l.Orders,
		})
	}
	return out
}

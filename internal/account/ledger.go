package account

import (
	"fmt"
	"sort"

	"exchange-core/internal/symbolspec"
)

// Ledger owns account balances, order reservations, applied balance
// transactions and collected fees. It has no locking: the engine mutates it
// from a single goroutine.
type Ledger struct {
	accounts     map[int64]*Account
	reservations map[ReservationKey]*Reservation
	transactions map[transactionKey]appliedAdjustment
	fees         map[int32]int64          // currency -> collected fees

	allowNegativeAdjustments bool
}

type transactionKey struct {
	UID           int64
	Currency      int32
	TransactionID int64
}

// appliedAdjustment is the amount of an applied transaction and the balance
// it left behind.
type appliedAdjustment struct {
	amount  int64
	balance Balance
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithNegativeAdjustments lets a negative adjustment take the available
// balance below zero. Order reservations can never do so.
func WithNegativeAdjustments(allow bool) Option {
	return func(l *Ledger) { l.allowNegativeAdjustments = allow }
}

// NewLedger creates an empty ledger.
func NewLedger(opts ...Option) *Ledger {
	l := &Ledger{
		accounts:     make(map[int64]*Account),
		reservations: make(map[ReservationKey]*Reservation),
		transactions: make(map[transactionKey]appliedAdjustment),
		fees:         make(map[int32]int64),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CreateOrGetAccount returns the account for uid, creating it when missing.
// The second value reports whether the account was created.
func (l *Ledger) CreateOrGetAccount(uid int64) (*Account, bool) {
	if acc, ok := l.accounts[uid]; ok {
		return acc, false
	}
	acc := newAccount(uid)
	l.accounts[uid] = acc
	return acc, true
}

// Account returns the account for uid.
func (l *Ledger) Account(uid int64) (*Account, error) {
	acc, ok := l.accounts[uid]
	if !ok {
		return nil, fmt.Errorf("%w: uid=%d", ErrAccountNotFound, uid)
	}
	return acc, nil
}

// SetFeeOverride stores account specific maker/taker fees.
func (l *Ledger) SetFeeOverride(uid int64, fee FeeOverride) error {
	if fee.MakerFee < 0 || fee.TakerFee < 0 {
		return fmt.Errorf("%w: fees must not be negative", ErrInvalidAmount)
	}
	acc, err := l.Account(uid)
	if err != nil {
		return err
	}
	acc.fee = &fee
	return nil
}

// AdjustBalance applies a signed amount to the available balance. A replay of
// an already applied (uid, currency, txID) with the same amount is a no-op
// that reports Replayed with the balance the original adjustment left; the
// same id with another amount fails with ErrDuplicateTransaction.
func (l *Ledger) AdjustBalance(uid int64, currency int32, amount, txID int64) (AdjustResult, error) {
	if amount == 0 {
		return AdjustResult{}, fmt.Errorf("%w: amount must not be zero", ErrInvalidAmount)
	}

	key := transactionKey{UID: uid, Currency: currency, TransactionID: txID}
	if prev, seen := l.transactions[key]; seen {
		if prev.amount != amount {
			return AdjustResult{}, fmt.Errorf("%w: uid=%d currency=%d tx=%d", ErrDuplicateTransaction, uid, currency, txID)
		}
		return AdjustResult{Balance: prev.balance, Replayed: true}, nil
	}

	current := Balance{}
	if acc, ok := l.accounts[uid]; ok {
		current = acc.Balance(currency)
	}
	next, err := symbolspec.AddChecked(current.Available, amount)
	if err != nil {
		return AdjustResult{}, err
	}
	if next < 0 && amount < 0 && !l.allowNegativeAdjustments {
		return AdjustResult{}, &InsufficientFundsError{
			UID:       uid,
			Currency:  currency,
			Required:  -amount,
			Available: current.Available,
		}
	}

	acc, _ := l.CreateOrGetAccount(uid)
	bal := acc.balance(currency)
	bal.Available = next
	l.transactions[key] = appliedAdjustment{amount: amount, balance: *bal}

	return AdjustResult{Balance: *bal}, nil
}

// Seed describes an account created by a batch, with its opening balances.
type Seed struct {
	UID      int64
	Balances map[int32]int64
}

// SeedAccounts creates every account of the batch with its opening balances.
// The batch is rejected as a whole when any uid exists, repeats, or carries a
// negative balance.
func (l *Ledger) SeedAccounts(seeds []Seed) error {
	seen := make(map[int64]struct{}, len(seeds))
	for _, s := range seeds {
		if _, exists := l.accounts[s.UID]; exists {
			return fmt.Errorf("%w: uid=%d", ErrAccountExists, s.UID)
		}
		if _, dup := seen[s.UID]; dup {
			return fmt.Errorf("%w: uid=%d repeated in batch", ErrAccountExists, s.UID)
		}
		seen[s.UID] = struct{}{}
		for currency, amount := range s.Balances {
			if amount < 0 {
				return fmt.Errorf("%w: uid=%d currency=%d", ErrInvalidAmount, s.UID, currency)
			}
		}
	}

	for _, s := range seeds {
		acc, _ := l.CreateOrGetAccount(s.UID)
		for currency, amount := range s.Balances {
			acc.balance(currency).Available = amount
		}
	}
	return nil
}

// Reserve holds perLot*lots of currency from the available balance of uid for
// the order identified by key.
func (l *Ledger) Reserve(key ReservationKey, uid int64, currency int32, perLot, lots int64) (int64, error) {
	if perLot <= 0 || lots <= 0 {
		return 0, fmt.Errorf("%w: reservation must be positive", ErrInvalidAmount)
	}
	acc, err := l.Account(uid)
	if err != nil {
		return 0, err
	}
	if _, exists := l.reservations[key]; exists {
		return 0, fmt.Errorf("%w: symbol=%d order=%d", ErrReservationExists, key.SymbolID, key.OrderID)
	}
	amount, err := symbolspec.MulChecked(perLot, lots)
	if err != nil {
		return 0, err
	}

	bal := acc.Balance(currency)
	if bal.Available < amount {
		return 0, &InsufficientFundsError{
			UID:       uid,
			Currency:  currency,
			Required:  amount,
			Available: bal.Available,
		}
	}

	b := acc.balance(currency)
	b.Available -= amount
	b.Reserved += amount
	l.reservations[key] = &Reservation{
		UID:      uid,
		Currency: currency,
		PerLot:   perLot,
		Held:     amount,
	}
	return amount, nil
}

// Reservation returns a copy of the reservation held for key.
func (l *Ledger) Reservation(key ReservationKey) (Reservation, bool) {
	r, ok := l.reservations[key]
	if !ok {
		return Reservation{}, false
	}
	return *r, true
}

// Release returns the funds held for lots unfilled lots to the available
// balance. The reservation stays in place until ReleaseAll.
func (l *Ledger) Release(key ReservationKey, lots int64) (int64, error) {
	res, ok := l.reservations[key]
	if !ok {
		return 0, fmt.Errorf("%w: symbol=%d order=%d", ErrReservationNotFound, key.SymbolID, key.OrderID)
	}
	amount, err := symbolspec.MulChecked(res.PerLot, lots)
	if err != nil {
		return 0, err
	}
	if amount > res.Held {
		return 0, fmt.Errorf("%w: release %d exceeds held %d", ErrReservationShortfall, amount, res.Held)
	}
	if err := l.unhold(res, amount); err != nil {
		return 0, err
	}
	return amount, nil
}

// ReleaseAll returns whatever is still held for key and drops the reservation.
func (l *Ledger) ReleaseAll(key ReservationKey) (int64, error) {
	res, ok := l.reservations[key]
	if !ok {
		return 0, fmt.Errorf("%w: symbol=%d order=%d", ErrReservationNotFound, key.SymbolID, key.OrderID)
	}
	amount := res.Held
	if err := l.unhold(res, amount); err != nil {
		return 0, err
	}
	delete(l.reservations, key)
	return amount, nil
}

func (l *Ledger) unhold(res *Reservation, amount int64) error {
	acc, err := l.Account(res.UID)
	if err != nil {
		return err
	}
	b := acc.balance(res.Currency)
	if b.Reserved < amount {
		return fmt.Errorf("%w: reserved balance underflow uid=%d currency=%d", ErrReservationShortfall, res.UID, res.Currency)
	}
	b.Reserved -= amount
	b.Available += amount
	res.Held -= amount
	return nil
}

// SettleTrade moves funds for one trade: the buyer pays QuoteAmount plus its
// fee out of its reservation and receives BaseAmount, the seller delivers
// BaseAmount out of its reservation and receives QuoteAmount minus its fee,
// and both fees are credited to the fee account. Every leg is checked before
// any balance changes; an error means the reservations were inconsistent with
// the trade.
func (l *Ledger) SettleTrade(s Settlement) error {
	if s.Lots <= 0 || s.BaseAmount <= 0 || s.QuoteAmount <= 0 {
		return fmt.Errorf("%w: non-positive settlement", ErrInvalidAmount)
	}
	if s.Buyer.Fee < 0 || s.Seller.Fee < 0 {
		return fmt.Errorf("%w: negative fee", ErrInvalidAmount)
	}

	buyerRes, err := l.partyReservation(s.Buyer, s.QuoteCurrency)
	if err != nil {
		return err
	}
	sellerRes, err := l.partyReservation(s.Seller, s.BaseCurrency)
	if err != nil {
		return err
	}
	buyer, err := l.Account(s.Buyer.UID)
	if err != nil {
		return err
	}
	seller, err := l.Account(s.Seller.UID)
	if err != nil {
		return err
	}

	buyerConsumed, err := symbolspec.MulChecked(buyerRes.PerLot, s.Lots)
	if err != nil {
		return err
	}
	buyerCost, err := symbolspec.AddChecked(s.QuoteAmount, s.Buyer.Fee)
	if err != nil {
		return err
	}
	if buyerConsumed > buyerRes.Held || buyerCost > buyerConsumed {
		return fmt.Errorf("%w: buyer uid=%d cost=%d consumed=%d held=%d",
			ErrReservationShortfall, s.Buyer.UID, buyerCost, buyerConsumed, buyerRes.Held)
	}
	sellerConsumed, err := symbolspec.MulChecked(sellerRes.PerLot, s.Lots)
	if err != nil {
		return err
	}
	if sellerConsumed > sellerRes.Held || s.BaseAmount > sellerConsumed {
		return fmt.Errorf("%w: seller uid=%d delivered=%d consumed=%d held=%d",
			ErrReservationShortfall, s.Seller.UID, s.BaseAmount, sellerConsumed, sellerRes.Held)
	}
	if s.Seller.Fee > s.QuoteAmount {
		return fmt.Errorf("%w: seller fee %d exceeds proceeds %d", ErrReservationShortfall, s.Seller.Fee, s.QuoteAmount)
	}
	totalFee, err := symbolspec.AddChecked(s.Buyer.Fee, s.Seller.Fee)
	if err != nil {
		return err
	}

	credits := []availableCredit{
		{buyer, s.QuoteCurrency, buyerConsumed - buyerCost}, // price improvement refund
		{buyer, s.BaseCurrency, s.BaseAmount},
		{seller, s.BaseCurrency, sellerConsumed - s.BaseAmount},
		{seller, s.QuoteCurrency, s.QuoteAmount - s.Seller.Fee},
	}
	if err := checkCredits(credits); err != nil {
		return err
	}
	fees, err := symbolspec.AddChecked(l.fees[s.QuoteCurrency], totalFee)
	if err != nil {
		return err
	}

	// Nothing below fails.
	buyer.balance(s.QuoteCurrency).Reserved -= buyerConsumed
	buyerRes.Held -= buyerConsumed
	seller.balance(s.BaseCurrency).Reserved -= sellerConsumed
	sellerRes.Held -= sellerConsumed
	for _, c := range credits {
		c.acc.balance(c.currency).Available += c.amount
	}
	l.fees[s.QuoteCurrency] = fees
	return nil
}

type availableCredit struct {
	acc      *Account
	currency int32
	amount   int64 // never negative
}

// checkCredits reports an overflow if applying every credit would overflow an
// available balance. Credits to the same balance (a self-trade) are summed.
func checkCredits(credits []availableCredit) error {
	type balanceKey struct {
		uid      int64
		currency int32
	}
	next := make(map[balanceKey]int64, len(credits))
	for _, c := range credits {
		k := balanceKey{c.acc.UID, c.currency}
		cur, ok := next[k]
		if !ok {
			cur = c.acc.Balance(c.currency).Available
		}
		sum, err := symbolspec.AddChecked(cur, c.amount)
		if err != nil {
			return err
		}
		next[k] = sum
	}
	return nil
}

func (l *Ledger) partyReservation(p TradeParty, currency int32) (*Reservation, error) {
	res, ok := l.reservations[p.Reservation]
	if !ok {
		return nil, fmt.Errorf("%w: symbol=%d order=%d", ErrReservationNotFound, p.Reservation.SymbolID, p.Reservation.OrderID)
	}
	if res.UID != p.UID || res.Currency != currency {
		return nil, fmt.Errorf("%w: reservation for order %d belongs to uid=%d currency=%d",
			ErrReservationShortfall, p.Reservation.OrderID, res.UID, res.Currency)
	}
	return res, nil
}

// Fees returns a copy of the collected fees per currency.
func (l *Ledger) Fees() map[int32]int64 {
	out := make(map[int32]int64, len(l.fees))
	for c, v := range l.fees {
		out[c] = v
	}
	return out
}

// ForEachAccount calls fn for every account in ascending uid order.
func (l *Ledger) ForEachAccount(fn func(acc *Account)) {
	uids := make([]int64, 0, len(l.accounts))
	for uid := range l.accounts {
		uids = append(uids, uid)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	for _, uid := range uids {
		fn(l.accounts[uid])
	}
}

// Len returns the number of accounts.
func (l *Ledger) Len() int {
	return len(l.accounts)
}

package engine

import (
	"go.uber.org/zap"

	"exchange-core/internal/account"
	"exchange-core/internal/events"
	"exchange-core/internal/matching"
)

func (e *Engine) addUser(c AddUser) (any, error) {
	_, created := e.ledger.CreateOrGetAccount(c.UID)
	if created && c.Fee != nil {
		if err := e.ledger.SetFeeOverride(c.UID, *c.Fee); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (e *Engine) adjustBalance(c AdjustBalance, em *emitter) (any, error) {
	res, err := e.ledger.AdjustBalance(c.UID, c.Currency, c.Amount, c.TransactionID)
	if err != nil {
		return nil, err
	}
	if !res.Replayed {
		em.emit(&events.BalanceAdjustedEvent{
			Header:        em.header(events.KindBalanceAdjusted, 0),
			UID:           c.UID,
			Currency:      c.Currency,
			Amount:        c.Amount,
			TransactionID: c.TransactionID,
			Available:     res.Balance.Available,
		})
	}
	return AdjustAck{Available: res.Balance.Available, Replayed: res.Replayed}, nil
}

func (e *Engine) batchAddSymbols(c BatchAddSymbols) (any, error) {
	if err := e.registry.RegisterBatch(c.Symbols); err != nil {
		return nil, err
	}
	for _, s := range c.Symbols {
		e.books[s.SymbolID] = matching.NewOrderBook(s.SymbolID)
	}
	e.log.Debug("symbols registered", zap.Int("count", len(c.Symbols)))
	return nil, nil
}

func (e *Engine) batchAddAccounts(c BatchAddAccounts) (any, error) {
	seeds := make([]account.Seed, len(c.Accounts))
	copy(seeds, c.Accounts)
	if err := e.ledger.SeedAccounts(seeds); err != nil {
		return nil, err
	}
	return nil, nil
}

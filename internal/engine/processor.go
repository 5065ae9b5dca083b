package engine

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"exchange-core/internal/events"
	"exchange-core/internal/matching"
	"exchange-core/internal/report"
)

// processLoop is the only goroutine that touches registry, ledger and books.
func (e *Engine) processLoop() {
	defer e.wg.Done()
	defer close(e.outputs)

	for req := range e.queue {
		out := e.apply(req)
		e.outputs <- &delivery{out: out, future: req.future}
	}
}

// apply processes one command. A failed command has no side effects and no
// events; an invariant violation halts every later command.
func (e *Engine) apply(req *commandRequest) *Output {
	em := newEmitter(req.seq, e.now())
	var res CommandResult

	if e.halted != nil {
		res = CommandResult{Code: CodeInternalError, Message: "processing halted: " + e.halted.Error()}
	} else {
		payload, err := e.dispatch(req.cmd, em)
		if err != nil {
			var inv *InvariantError
			if errors.As(err, &inv) {
				e.halted = inv
				e.log.Error("processing halted",
					zap.Int64("sequence", req.seq),
					zap.String("command", string(req.cmd.Type())),
					zap.Error(err))
			}
			em.events = nil
			res = CommandResult{Code: codeFor(err), Message: err.Error()}
		} else {
			res = CommandResult{Code: CodeSuccess, Payload: payload}
		}
	}
	res.Sequence = req.seq

	e.metrics.CommandProcessed(string(req.cmd.Type()), string(res.Code), e.now().Sub(req.submittedAt))
	e.metrics.QueueDepth(len(e.queue))

	return &Output{
		Sequence:    req.seq,
		Command:     req.cmd,
		Result:      res,
		Events:      em.events,
		ProcessedAt: em.at,
	}
}

func (e *Engine) dispatch(cmd Command, em *emitter) (payload any, err error) {
	defer func() {
		if r := recover(); r != nil {
			payload = nil
			err = &InvariantError{Sequence: em.seq, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	switch c := cmd.(type) {
	case AddUser:
		return e.addUser(c)
	case AdjustBalance:
		return e.adjustBalance(c, em)
	case BatchAddSymbols:
		return e.batchAddSymbols(c)
	case BatchAddAccounts:
		return e.batchAddAccounts(c)
	case PlaceOrder:
		return e.placeOrder(c, em)
	case CancelOrder:
		return e.cancelOrder(c, em)
	case MoveOrder:
		return e.moveOrder(c, em)
	case ReduceOrder:
		return e.reduceOrder(c, em)
	case SingleUserReport:
		return report.BuildAccountReport(e.ledger, e.sortedBooks(), c.UID)
	case TotalCurrencyBalanceReport:
		return report.BuildTotalsReport(e.ledger, e.sortedBooks()), nil
	case OrderBookQuery:
		spec, err := e.registry.Get(c.SymbolID)
		if err != nil {
			return nil, err
		}
		return report.BuildBookSnapshot(spec, e.books[c.SymbolID], c.Depth), nil
	default:
		return nil, invalid("unsupported command %T", cmd)
	}
}

func (e *Engine) sortedBooks() []*matching.OrderBook {
	out := make([]*matching.OrderBook, 0, len(e.books))
	for _, b := range e.books {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SymbolID < out[j].SymbolID })
	return out
}

// emitter collects the events of one command with stable indexes.
type emitter struct {
	seq    int64
	at     time.Time
	events []events.Event
}

func newEmitter(seq int64, at time.Time) *emitter {
	return &emitter{seq: seq, at: at}
}

func (m *emitter) header(kind events.Kind, symbolID int32) events.Header {
	return events.NewHeader(kind, m.seq, len(m.events), symbolID, m.at)
}

func (m *emitter) emit(ev events.Event) {
	m.events = append(m.events, ev)
}

func (m *emitter) violation(err error) error {
	return &InvariantError{Sequence: m.seq, Err: err}
}

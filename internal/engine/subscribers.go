package engine

import (
	"go.uber.org/zap"

	"exchange-core/internal/events"
)

// Subscriber receives every processed command in sequence order. Consume runs
// on the publisher goroutine; a slow subscriber slows the pipeline down and
// eventually applies backpressure to Submit.
type Subscriber interface {
	Consume(out *Output)
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(out *Output)

func (f SubscriberFunc) Consume(out *Output) { f(out) }

// EventsHandler dispatches events to per-kind callbacks. Nil callbacks are
// skipped. OnResult runs after the command's events.
type EventsHandler struct {
	OnTrade     func(*events.TradeEvent)
	OnReduce    func(*events.ReduceEvent)
	OnReject    func(*events.RejectEvent)
	OnOrderBook func(*events.OrderBookEvent)
	OnBalance   func(*events.BalanceAdjustedEvent)
	OnResult    func(Command, CommandResult)
}

func (h *EventsHandler) Consume(out *Output) {
	for _, ev := range out.Events {
		switch e := ev.(type) {
		case *events.TradeEvent:
			if h.OnTrade != nil {
				h.OnTrade(e)
			}
		case *events.ReduceEvent:
			if h.OnReduce != nil {
				h.OnReduce(e)
			}
		case *events.RejectEvent:
			if h.OnReject != nil {
				h.OnReject(e)
			}
		case *events.OrderBookEvent:
			if h.OnOrderBook != nil {
				h.OnOrderBook(e)
			}
		case *events.BalanceAdjustedEvent:
			if h.OnBalance != nil {
				h.OnBalance(e)
			}
		}
	}
	if h.OnResult != nil {
		h.OnResult(out.Command, out.Result)
	}
}

// LogSubscriber logs every result at debug level, failures at warn and
// internal errors at error. Trades are logged at info.
type LogSubscriber struct {
	Log *zap.Logger
}

func (s LogSubscriber) Consume(out *Output) {
	h := EventsHandler{
		OnTrade: func(t *events.TradeEvent) {
			s.Log.Info("trade",
				zap.Int64("sequence", out.Sequence),
				zap.Int32("symbol_id", t.SymbolID()),
				zap.Int64("taker_order_id", t.TakerOrderID),
				zap.Int64("maker_order_id", t.MakerOrderID),
				zap.Int64("price", t.Price),
				zap.Int64("size", t.Size))
		},
		OnReject: func(r *events.RejectEvent) {
			s.Log.Debug("order remainder rejected",
				zap.Int64("sequence", out.Sequence),
				zap.Int32("symbol_id", r.SymbolID()),
				zap.Int64("order_id", r.OrderID),
				zap.Int64("rejected_size", r.RejectedSize))
		},
		OnResult: func(cmd Command, res CommandResult) {
			fields := []zap.Field{
				zap.Int64("sequence", out.Sequence),
				zap.String("command", string(cmd.Type())),
				zap.String("code", string(res.Code)),
				zap.Int("events", len(out.Events)),
			}
			switch res.Code.Category() {
			case CategoryNone:
				s.Log.Debug("command processed", fields...)
			case CategoryInternal:
				s.Log.Error("command failed", append(fields, zap.String("message", res.Message))...)
			default:
				s.Log.Warn("command rejected", append(fields, zap.String("message", res.Message))...)
			}
		},
	}
	h.Consume(out)
}

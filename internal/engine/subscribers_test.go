package engine

import (
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"exchange-core/internal/events"
	"exchange-core/internal/matching"
)

var testTime = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func sampleOutput() *Output {
	return &Output{
		Sequence: 7,
		Command:  PlaceOrder{UID: 1, SymbolID: symbolXBTLTC, OrderID: 9, Action: matching.ActionBid, OrderType: matching.OrderTypeIOC, Price: 100, Size: 5},
		Result:   CommandResult{Sequence: 7, Code: CodeSuccess},
		Events: []events.Event{
			&events.TradeEvent{Header: events.NewHeader(events.KindTrade, 7, 0, symbolXBTLTC, testTime), TakerOrderID: 9, MakerOrderID: 3, Price: 100, Size: 2},
			&events.TradeEvent{Header: events.NewHeader(events.KindTrade, 7, 1, symbolXBTLTC, testTime), TakerOrderID: 9, MakerOrderID: 4, Price: 100, Size: 1},
			&events.RejectEvent{Header: events.NewHeader(events.KindReject, 7, 2, symbolXBTLTC, testTime), OrderID: 9, RejectedSize: 2},
			&events.OrderBookEvent{Header: events.NewHeader(events.KindOrderBook, 7, 3, symbolXBTLTC, testTime)},
		},
	}
}

func TestEventsHandlerOrder(t *testing.T) {
	var calls []string
	h := &EventsHandler{
		OnTrade: func(e *events.TradeEvent) {
			calls = append(calls, "trade")
			if e.TakerOrderID != 9 {
				t.Errorf("Expected taker order 9, got %d", e.TakerOrderID)
			}
		},
		OnReject: func(*events.RejectEvent) { calls = append(calls, "reject") },
		OnResult: func(cmd Command, res CommandResult) {
			calls = append(calls, "result")
			if cmd.Type() != CommandTypePlaceOrder || res.Code != CodeSuccess {
				t.Errorf("Unexpected result callback %s/%s", cmd.Type(), res.Code)
			}
		},
	}

	h.Consume(sampleOutput())

	want := []string{"trade", "trade", "reject", "result"}
	if len(calls) != len(want) {
		t.Fatalf("Expected calls %v, got %v", want, calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("Expected calls %v, got %v", want, calls)
		}
	}
}

func TestEventsHandlerEmpty(t *testing.T) {
	// No callbacks set
	(&EventsHandler{}).Consume(sampleOutput())
}

func TestEventsHandlerAsEngineSubscriber(t *testing.T) {
	e := NewEngine(DefaultConfig())
	var balances []int64
	var results []ResultCode
	if err := e.Subscribe(&EventsHandler{
		OnBalance: func(b *events.BalanceAdjustedEvent) { balances = append(balances, b.Sequence()) },
		OnResult:  func(_ Command, res CommandResult) { results = append(results, res.Code) },
	}); err != nil {
		t.Fatal(err)
	}
	e.Start()
	defer e.Stop()

	mustSucceed(t, e, AddUser{UID: 1})
	mustSucceed(t, e, AdjustBalance{UID: 1, Currency: currencyLTC, Amount: 10, TransactionID: 1})
	expectCode(t, e, AdjustBalance{UID: 1, Currency: currencyLTC, Amount: 11, TransactionID: 1}, CodeDuplicateTransaction)

	if len(balances) != 1 || balances[0] != 2 {
		t.Errorf("Expected one balance event at sequence 2, got %v", balances)
	}
	want := []ResultCode{CodeSuccess, CodeSuccess, CodeDuplicateTransaction}
	if len(results) != len(want) {
		t.Fatalf("Expected results %v, got %v", want, results)
	}
	for i := range want {
		if results[i] != want[i] {
			t.Errorf("result %d: expected %s, got %s", i, want[i], results[i])
		}
	}
}

func TestLogSubscriber(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	s := LogSubscriber{Log: zap.New(core)}

	s.Consume(sampleOutput())

	if n := logs.FilterMessage("trade").Len(); n != 2 {
		t.Errorf("Expected 2 trade entries, got %d", n)
	}
	if n := logs.FilterMessage("order remainder rejected").Len(); n != 1 {
		t.Errorf("Expected 1 reject entry, got %d", n)
	}
	all := logs.All()
	last := all[len(all)-1]
	if last.Message != "command processed" || last.Level != zapcore.DebugLevel {
		t.Errorf("Expected the result to be logged last at debug, got %q at %s", last.Message, last.Level)
	}

	out := sampleOutput()
	out.Events = nil
	out.Result = CommandResult{Sequence: 7, Code: CodeNotEnoughFunds, Message: "short"}
	s.Consume(out)
	warn := logs.FilterMessage("command rejected").All()
	if len(warn) != 1 || warn[0].Level != zapcore.WarnLevel {
		t.Fatalf("Expected one warn entry, got %v", warn)
	}
	if warn[0].ContextMap()["code"] != string(CodeNotEnoughFunds) {
		t.Errorf("Expected code field NOT_ENOUGH_FUNDS, got %v", warn[0].ContextMap()["code"])
	}
}

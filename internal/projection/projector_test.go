package projection

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"exchange-core/internal/engine"
	"exchange-core/internal/events"
	"exchange-core/internal/matching"
	"exchange-core/internal/symbolspec"
)

const testSymbol int32 = 241

var testTime = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func placeOutput(seq int64, orderID, uid int64, action matching.Action, price, size int64, evs ...events.Event) *engine.Output {
	return &engine.Output{
		Sequence: seq,
		Command: engine.PlaceOrder{
			UID: uid, SymbolID: testSymbol, OrderID: orderID,
			Action: action, OrderType: matching.OrderTypeGTC,
			Price: price, Size: size,
		},
		Result:      engine.CommandResult{Sequence: seq, Code: engine.CodeSuccess},
		Events:      evs,
		ProcessedAt: testTime,
	}
}

func tradeEvent(seq int64, index int, taker, maker int64, size int64) *events.TradeEvent {
	return &events.TradeEvent{
		Header:       events.NewHeader(events.KindTrade, seq, index, testSymbol, testTime),
		TakerOrderID: taker,
		TakerUID:     2,
		TakerAction:  matching.ActionBid,
		MakerOrderID: maker,
		MakerUID:     1,
		Price:        15400,
		Size:         size,
		TakerFee:     2000 * size,
		MakerFee:     1000 * size,
	}
}

func newTestProjector() (*Projector, *MemoryOrderRepository, *MemoryTradeRepository) {
	orderRepo := NewMemoryOrderRepository()
	tradeRepo := NewMemoryTradeRepository()
	return NewProjector(orderRepo, tradeRepo, nil), orderRepo, tradeRepo
}

func TestProjector_SequenceValidation(t *testing.T) {
	ctx := context.Background()

	t.Run("continuous sequence passes", func(t *testing.T) {
		projector, orderRepo, _ := newTestProjector()

		for seq := int64(1); seq <= 3; seq++ {
			if err := projector.Project(ctx, placeOutput(seq, 100+seq, 1, matching.ActionAsk, 15400, 10)); err != nil {
				t.Fatalf("Failed to project output %d: %v", seq, err)
			}
		}

		lastSeq, _ := orderRepo.GetLastSequence(ctx)
		if lastSeq != 3 {
			t.Errorf("Expected last sequence 3, got %d", lastSeq)
		}
	})

	t.Run("first output must have sequence 1", func(t *testing.T) {
		projector, _, _ := newTestProjector()

		err := projector.Project(ctx, placeOutput(5, 100, 1, matching.ActionAsk, 15400, 10))
		if !errors.Is(err, ErrSequenceGap) {
			t.Fatalf("Expected sequence gap, got %v", err)
		}
	})

	t.Run("gap is rejected", func(t *testing.T) {
		projector, _, _ := newTestProjector()

		if err := projector.Project(ctx, placeOutput(1, 100, 1, matching.ActionAsk, 15400, 10)); err != nil {
			t.Fatalf("Failed to project first output: %v", err)
		}
		err := projector.Project(ctx, placeOutput(3, 101, 1, matching.ActionAsk, 15400, 10))
		if !errors.Is(err, ErrSequenceGap) {
			t.Fatalf("Expected sequence gap, got %v", err)
		}
		if !strings.Contains(err.Error(), "last=1 output=3") {
			t.Errorf("Expected positions in error, got %q", err.Error())
		}
	})

	t.Run("regression is rejected", func(t *testing.T) {
		projector, _, _ := newTestProjector()

		for seq := int64(1); seq <= 2; seq++ {
			if err := projector.Project(ctx, placeOutput(seq, 100+seq, 1, matching.ActionAsk, 15400, 10)); err != nil {
				t.Fatalf("Failed to project output %d: %v", seq, err)
			}
		}
		err := projector.Project(ctx, placeOutput(1, 101, 1, matching.ActionAsk, 15400, 10))
		if !errors.Is(err, ErrSequenceRegression) {
			t.Fatalf("Expected sequence regression, got %v", err)
		}
	})

	t.Run("failed command still advances the cursor", func(t *testing.T) {
		projector, orderRepo, _ := newTestProjector()

		failed := placeOutput(1, 100, 1, matching.ActionAsk, 15400, 10)
		failed.Result.Code = engine.CodeNotEnoughFunds
		if err := projector.Project(ctx, failed); err != nil {
			t.Fatalf("Failed to project failed command: %v", err)
		}
		if _, err := orderRepo.Get(ctx, OrderKey{SymbolID: testSymbol, OrderID: 100}); !errors.Is(err, ErrOrderNotFound) {
			t.Errorf("Expected no view for failed placement, got %v", err)
		}
		if lastSeq, _ := orderRepo.GetLastSequence(ctx); lastSeq != 1 {
			t.Errorf("Expected last sequence 1, got %d", lastSeq)
		}
	})
}

func TestProjector_PlaceOrder(t *testing.T) {
	ctx := context.Background()
	projector, orderRepo, _ := newTestProjector()

	if err := projector.Project(ctx, placeOutput(1, 100, 7, matching.ActionAsk, 15400, 10)); err != nil {
		t.Fatalf("Failed to project: %v", err)
	}

	order, err := orderRepo.Get(ctx, OrderKey{SymbolID: testSymbol, OrderID: 100})
	if err != nil {
		t.Fatalf("Failed to get order: %v", err)
	}
	if order.Status != OrderStatusNew {
		t.Errorf("Expected status NEW, got %s", order.Status)
	}
	if order.Remaining != 10 || order.Filled != 0 {
		t.Errorf("Expected remaining 10 filled 0, got %d/%d", order.Remaining, order.Filled)
	}
	if order.ReservePrice != 15400 {
		t.Errorf("Expected reserve price to default to price, got %d", order.ReservePrice)
	}
	if !order.CreatedAt.Equal(testTime) {
		t.Errorf("Expected created at %v, got %v", testTime, order.CreatedAt)
	}

	orders, _ := orderRepo.ListByAccount(ctx, 7, 0)
	if len(orders) != 1 {
		t.Errorf("Expected 1 order for account, got %d", len(orders))
	}
}

func TestProjector_Trade(t *testing.T) {
	ctx := context.Background()
	projector, orderRepo, tradeRepo := newTestProjector()

	if err := projector.Project(ctx, placeOutput(1, 100, 1, matching.ActionAsk, 15400, 10)); err != nil {
		t.Fatalf("Failed to project ask: %v", err)
	}
	trade := tradeEvent(2, 0, 200, 100, 4)
	if err := projector.Project(ctx, placeOutput(2, 200, 2, matching.ActionBid, 15400, 4, trade)); err != nil {
		t.Fatalf("Failed to project bid: %v", err)
	}

	maker, _ := orderRepo.Get(ctx, OrderKey{SymbolID: testSymbol, OrderID: 100})
	if maker.Status != OrderStatusPartiallyFilled || maker.Remaining != 6 || maker.Filled != 4 {
		t.Errorf("Unexpected maker view: %+v", maker)
	}
	taker, _ := orderRepo.Get(ctx, OrderKey{SymbolID: testSymbol, OrderID: 200})
	if taker.Status != OrderStatusFilled || taker.Remaining != 0 {
		t.Errorf("Unexpected taker view: %+v", taker)
	}

	stored, err := tradeRepo.GetByID(ctx, trade.EventID())
	if err != nil {
		t.Fatalf("Failed to get trade: %v", err)
	}
	if stored.Size != 4 || stored.TakerFee != 8000 || stored.MakerFee != 4000 {
		t.Errorf("Unexpected trade view: %+v", stored)
	}

	byMaker, _ := tradeRepo.ListByOrder(ctx, OrderKey{SymbolID: testSymbol, OrderID: 100}, 0)
	byTaker, _ := tradeRepo.ListByOrder(ctx, OrderKey{SymbolID: testSymbol, OrderID: 200}, 0)
	if len(byMaker) != 1 || len(byTaker) != 1 {
		t.Errorf("Expected trade indexed for both orders, got %d/%d", len(byMaker), len(byTaker))
	}
}

func TestProjector_MultipleFillsInOneCommand(t *testing.T) {
	ctx := context.Background()
	projector, orderRepo, tradeRepo := newTestProjector()

	if err := projector.Project(ctx, placeOutput(1, 100, 1, matching.ActionAsk, 15400, 3)); err != nil {
		t.Fatal(err)
	}
	if err := projector.Project(ctx, placeOutput(2, 101, 1, matching.ActionAsk, 15400, 3)); err != nil {
		t.Fatal(err)
	}
	out := placeOutput(3, 200, 2, matching.ActionBid, 15400, 6,
		tradeEvent(3, 0, 200, 100, 3),
		tradeEvent(3, 1, 200, 101, 3),
	)
	if err := projector.Project(ctx, out); err != nil {
		t.Fatalf("Failed to project bid: %v", err)
	}

	taker, _ := orderRepo.Get(ctx, OrderKey{SymbolID: testSymbol, OrderID: 200})
	if taker.Filled != 6 || taker.Status != OrderStatusFilled {
		t.Errorf("Expected both fills applied to taker, got %+v", taker)
	}
	trades, _ := tradeRepo.ListBySymbol(ctx, testSymbol, 0, 0)
	if len(trades) != 2 || trades[0].Index != 0 || trades[1].Index != 1 {
		t.Errorf("Expected two trades in event order, got %+v", trades)
	}
}

func TestProjector_ReduceAndCancel(t *testing.T) {
	ctx := context.Background()
	projector, orderRepo, _ := newTestProjector()
	key := OrderKey{SymbolID: testSymbol, OrderID: 100}

	if err := projector.Project(ctx, placeOutput(1, 100, 1, matching.ActionAsk, 15400, 10)); err != nil {
		t.Fatal(err)
	}

	reduce := &engine.Output{
		Sequence: 2,
		Command:  engine.ReduceOrder{UID: 1, SymbolID: testSymbol, OrderID: 100, ReduceSize: 4},
		Result:   engine.CommandResult{Sequence: 2, Code: engine.CodeSuccess},
		Events: []events.Event{&events.ReduceEvent{
			Header:      events.NewHeader(events.KindReduce, 2, 0, testSymbol, testTime),
			OrderID:     100,
			UID:         1,
			Action:      matching.ActionAsk,
			Price:       15400,
			ReducedSize: 4,
			Remaining:   6,
			Reason:      events.ReduceReduce,
		}},
	}
	if err := projector.Project(ctx, reduce); err != nil {
		t.Fatalf("Failed to project reduce: %v", err)
	}
	order, _ := orderRepo.Get(ctx, key)
	if order.Size != 6 || order.Remaining != 6 || order.Status != OrderStatusNew {
		t.Errorf("Unexpected view after reduce: %+v", order)
	}

	move := &engine.Output{
		Sequence: 3,
		Command:  engine.MoveOrder{UID: 1, SymbolID: testSymbol, OrderID: 100, NewPrice: 15500},
		Result:   engine.CommandResult{Sequence: 3, Code: engine.CodeSuccess},
	}
	if err := projector.Project(ctx, move); err != nil {
		t.Fatalf("Failed to project move: %v", err)
	}
	order, _ = orderRepo.Get(ctx, key)
	if order.Price != 15500 {
		t.Errorf("Expected price 15500 after move, got %d", order.Price)
	}

	cancel := &engine.Output{
		Sequence: 4,
		Command:  engine.CancelOrder{UID: 1, SymbolID: testSymbol, OrderID: 100},
		Result:   engine.CommandResult{Sequence: 4, Code: engine.CodeSuccess},
		Events: []events.Event{&events.ReduceEvent{
			Header:      events.NewHeader(events.KindReduce, 4, 0, testSymbol, testTime),
			OrderID:     100,
			UID:         1,
			ReducedSize: 6,
			Remaining:   0,
			Reason:      events.ReduceCancel,
		}},
	}
	if err := projector.Project(ctx, cancel); err != nil {
		t.Fatalf("Failed to project cancel: %v", err)
	}
	order, _ = orderRepo.Get(ctx, key)
	if order.Status != OrderStatusCanceled || order.Remaining != 0 {
		t.Errorf("Unexpected view after cancel: %+v", order)
	}
}

func TestProjector_RejectedIOC(t *testing.T) {
	ctx := context.Background()
	projector, orderRepo, _ := newTestProjector()

	out := placeOutput(1, 300, 3, matching.ActionBid, 15400, 5, &events.RejectEvent{
		Header:       events.NewHeader(events.KindReject, 1, 0, testSymbol, testTime),
		OrderID:      300,
		UID:          3,
		Action:       matching.ActionBid,
		Price:        15400,
		RejectedSize: 5,
	})
	out.Command = engine.PlaceOrder{
		UID: 3, SymbolID: testSymbol, OrderID: 300,
		Action: matching.ActionBid, OrderType: matching.OrderTypeIOC,
		Price: 15400, Size: 5,
	}
	if err := projector.Project(ctx, out); err != nil {
		t.Fatalf("Failed to project IOC: %v", err)
	}

	order, _ := orderRepo.Get(ctx, OrderKey{SymbolID: testSymbol, OrderID: 300})
	if order.Status != OrderStatusRejected || order.Remaining != 0 || order.Type != "IOC" {
		t.Errorf("Unexpected IOC view: %+v", order)
	}
}

func TestProjector_SequenceMismatchFails(t *testing.T) {
	ctx := context.Background()
	projector, orderRepo, _ := newTestProjector()

	if err := orderRepo.SetLastSequence(ctx, 2); err != nil {
		t.Fatal(err)
	}
	err := projector.Project(ctx, placeOutput(3, 100, 1, matching.ActionAsk, 15400, 10))
	if err == nil || !strings.Contains(err.Error(), "projection sequence mismatch") {
		t.Fatalf("Expected sequence mismatch error, got %v", err)
	}
}

func TestProjector_AdvanceTradeBeforeOrder(t *testing.T) {
	ctx := context.Background()
	orderRepo := NewMemoryOrderRepository()
	tradeRepo := &failOnceTradeSequenceRepo{MemoryTradeRepository: NewMemoryTradeRepository()}
	projector := NewProjector(orderRepo, tradeRepo, nil)

	out := placeOutput(1, 100, 1, matching.ActionAsk, 15400, 10)
	if err := projector.Project(ctx, out); err == nil {
		t.Fatal("Expected first projection to fail on trade cursor")
	}
	if lastSeq, _ := orderRepo.GetLastSequence(ctx); lastSeq != 0 {
		t.Fatalf("Expected order cursor untouched, got %d", lastSeq)
	}

	// Retry succeeds because the order cursor never moved.
	if err := projector.Project(ctx, out); err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if lastSeq, _ := orderRepo.GetLastSequence(ctx); lastSeq != 1 {
		t.Errorf("Expected order cursor 1, got %d", lastSeq)
	}
}

func TestProjector_TradeRetryDoesNotDoubleApply(t *testing.T) {
	ctx := context.Background()
	orderRepo := &failOnceOrderSaveRepo{MemoryOrderRepository: NewMemoryOrderRepository(), failOnCall: 3}
	tradeRepo := NewMemoryTradeRepository()
	projector := NewProjector(orderRepo, tradeRepo, nil)

	if err := projector.Project(ctx, placeOutput(1, 100, 1, matching.ActionAsk, 15400, 10)); err != nil {
		t.Fatal(err)
	}
	// Save calls: 1 ask view, 2 bid view, 3 maker fill (fails).
	bid := placeOutput(2, 200, 2, matching.ActionBid, 15400, 4, tradeEvent(2, 0, 200, 100, 4))
	if err := projector.Project(ctx, bid); err == nil {
		t.Fatal("Expected projection to fail on maker save")
	}
	if err := projector.Project(ctx, bid); err != nil {
		t.Fatalf("Retry failed: %v", err)
	}

	maker, _ := orderRepo.Get(ctx, OrderKey{SymbolID: testSymbol, OrderID: 100})
	taker, _ := orderRepo.Get(ctx, OrderKey{SymbolID: testSymbol, OrderID: 200})
	if maker.Filled != 4 || taker.Filled != 4 {
		t.Errorf("Expected single application of fill, got maker=%d taker=%d", maker.Filled, taker.Filled)
	}
	trades, _ := tradeRepo.ListBySymbol(ctx, testSymbol, 0, 0)
	if len(trades) != 1 {
		t.Errorf("Expected 1 trade, got %d", len(trades))
	}
}

func TestProjector_ConsumeRetriesFailedOutput(t *testing.T) {
	ctx := context.Background()
	orderRepo := &failOnceOrderSaveRepo{MemoryOrderRepository: NewMemoryOrderRepository(), failOnCall: 1}
	projector := NewProjector(orderRepo, NewMemoryTradeRepository(), nil)

	projector.Consume(placeOutput(1, 100, 1, matching.ActionAsk, 15400, 10))
	if n := projector.Backlog(); n != 1 {
		t.Fatalf("Expected failed output in backlog, got %d", n)
	}
	if lastSeq, _ := orderRepo.GetLastSequence(ctx); lastSeq != 0 {
		t.Fatalf("Expected cursor 0, got %d", lastSeq)
	}

	projector.Consume(placeOutput(2, 200, 2, matching.ActionBid, 15400, 4, tradeEvent(2, 0, 200, 100, 4)))
	if n := projector.Backlog(); n != 0 {
		t.Fatalf("Expected empty backlog, got %d", n)
	}
	if lastSeq, _ := orderRepo.GetLastSequence(ctx); lastSeq != 2 {
		t.Errorf("Expected cursor 2, got %d", lastSeq)
	}
	maker, err := orderRepo.Get(ctx, OrderKey{SymbolID: testSymbol, OrderID: 100})
	if err != nil {
		t.Fatalf("retried order missing: %v", err)
	}
	if maker.Filled != 4 {
		t.Errorf("Expected maker filled 4, got %d", maker.Filled)
	}
}

func TestProjector_ConsumesEngineOutputs(t *testing.T) {
	projector, orderRepo, tradeRepo := newTestProjector()
	e := engine.NewEngine(engine.DefaultConfig())
	if err := e.Subscribe(projector); err != nil {
		t.Fatal(err)
	}
	e.Start()
	t.Cleanup(e.Stop)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	commands := []engine.Command{
		engine.BatchAddSymbols{Symbols: []symbolspec.Spec{{
			SymbolID: testSymbol, Type: symbolspec.TypeExchangePair,
			BaseCurrency: 11, QuoteCurrency: 15,
			BaseScaleK: 1_000_000, QuoteScaleK: 10_000,
			TakerFee: 2000, MakerFee: 1000,
		}}},
		engine.AddUser{UID: 301},
		engine.AddUser{UID: 302},
		engine.AdjustBalance{UID: 302, Currency: 15, Amount: 2_000_000_000, TransactionID: 1},
		engine.AdjustBalance{UID: 301, Currency: 11, Amount: 10_000_000, TransactionID: 2},
		engine.PlaceOrder{UID: 301, SymbolID: testSymbol, OrderID: 5001, Action: matching.ActionAsk,
			OrderType: matching.OrderTypeGTC, Price: 15400, ReservePrice: 15400, Size: 10},
		engine.PlaceOrder{UID: 302, SymbolID: testSymbol, OrderID: 5002, Action: matching.ActionBid,
			OrderType: matching.OrderTypeGTC, Price: 15400, ReservePrice: 15600, Size: 10},
	}
	for _, cmd := range commands {
		res, err := e.SubmitAndWait(ctx, cmd)
		if err != nil || !res.IsSuccess() {
			t.Fatalf("%T failed: %v %+v", cmd, err, res)
		}
	}

	if lastSeq, _ := orderRepo.GetLastSequence(ctx); lastSeq != int64(len(commands)) {
		t.Fatalf("Expected projection at sequence %d, got %d", len(commands), lastSeq)
	}
	for _, id := range []int64{5001, 5002} {
		order, err := orderRepo.Get(ctx, OrderKey{SymbolID: testSymbol, OrderID: id})
		if err != nil {
			t.Fatalf("order %d: %v", id, err)
		}
		if order.Status != OrderStatusFilled {
			t.Errorf("Expected order %d FILLED, got %s", id, order.Status)
		}
	}
	trades, _ := tradeRepo.ListBySymbol(ctx, testSymbol, 0, 0)
	if len(trades) != 1 || trades[0].TakerFee != 20000 || trades[0].MakerFee != 10000 {
		t.Errorf("Unexpected trades: %+v", trades)
	}
}

type failOnceTradeSequenceRepo struct {
	*MemoryTradeRepository
	failed bool
}

func (r *failOnceTradeSequenceRepo) SetLastSequence(ctx context.Context, sequence int64) error {
	if !r.failed {
		r.failed = true
		return errors.New("injected trade sequence failure")
	}
	return r.MemoryTradeRepository.SetLastSequence(ctx, sequence)
}

type failOnceOrderSaveRepo struct {
	*MemoryOrderRepository
	calls      int
	failOnCall int
}

func (r *failOnceOrderSaveRepo) Save(ctx context.Context, order *OrderView) error {
	r.calls++
	if r.calls == r.failOnCall {
		return errors.New("injected order save failure")
	}
	return r.MemoryOrderRepository.Save(ctx, order)
}

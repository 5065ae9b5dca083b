package projection

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryOrderRepository_SaveNil(t *testing.T) {
	repo := NewMemoryOrderRepository()
	if err := repo.Save(context.Background(), nil); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestMemoryTradeRepository_SaveNil(t *testing.T) {
	repo := NewMemoryTradeRepository()
	if err := repo.Save(context.Background(), nil); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func sampleTrade(id string, seq int64, index int) *TradeView {
	return &TradeView{
		TradeID:      id,
		SymbolID:     testSymbol,
		MakerOrderID: 100,
		TakerOrderID: 200,
		MakerUID:     1,
		TakerUID:     2,
		TakerAction:  "BID",
		Price:        15400,
		Size:         2,
		OccurredAt:   testTime,
		Sequence:     seq,
		Index:        index,
	}
}

func TestMemoryTradeRepository_SaveIdempotent(t *testing.T) {
	repo := NewMemoryTradeRepository()
	trade := sampleTrade("trd-1", 10, 0)

	if err := repo.Save(context.Background(), trade); err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	if err := repo.Save(context.Background(), trade); err != nil {
		t.Fatalf("idempotent save failed: %v", err)
	}

	list, err := repo.ListBySymbol(context.Background(), testSymbol, 0, 100)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 trade after duplicate save, got %d", len(list))
	}
	byOrder, _ := repo.ListByOrder(context.Background(), OrderKey{SymbolID: testSymbol, OrderID: 100}, 0)
	if len(byOrder) != 1 {
		t.Fatalf("expected 1 trade indexed for maker, got %d", len(byOrder))
	}
}

func TestMemoryTradeRepository_SaveConflict(t *testing.T) {
	repo := NewMemoryTradeRepository()
	if err := repo.Save(context.Background(), sampleTrade("trd-1", 10, 0)); err != nil {
		t.Fatalf("first save failed: %v", err)
	}

	conflicting := sampleTrade("trd-1", 10, 0)
	conflicting.Size = 3
	if err := repo.Save(context.Background(), conflicting); !errors.Is(err, ErrTradeConflict) {
		t.Fatalf("expected ErrTradeConflict, got %v", err)
	}
}

func TestMemoryRepositories_ReturnCopies(t *testing.T) {
	ctx := context.Background()

	orderRepo := NewMemoryOrderRepository()
	key := OrderKey{SymbolID: testSymbol, OrderID: 1}
	order := &OrderView{
		SymbolID:  testSymbol,
		OrderID:   1,
		UID:       7,
		Price:     100,
		Size:      5,
		Remaining: 5,
		Status:    OrderStatusNew,
	}
	if err := orderRepo.Save(ctx, order); err != nil {
		t.Fatalf("save order failed: %v", err)
	}
	order.Status = OrderStatusFilled

	got, err := orderRepo.Get(ctx, key)
	if err != nil {
		t.Fatalf("get order failed: %v", err)
	}
	if got.Status != OrderStatusNew {
		t.Fatalf("repository kept caller pointer, got %s", got.Status)
	}
	got.Status = OrderStatusCanceled
	gotAgain, _ := orderRepo.Get(ctx, key)
	if gotAgain.Status != OrderStatusNew {
		t.Fatalf("repository leaked internal pointer for order status, got %s", gotAgain.Status)
	}

	list, err := orderRepo.ListByAccount(ctx, 7, 10)
	if err != nil {
		t.Fatalf("list orders failed: %v", err)
	}
	list[0].Remaining = 0
	gotAgain, _ = orderRepo.Get(ctx, key)
	if gotAgain.Remaining != 5 {
		t.Fatalf("repository leaked list element pointer for remaining, got %d", gotAgain.Remaining)
	}

	tradeRepo := NewMemoryTradeRepository()
	if err := tradeRepo.Save(ctx, sampleTrade("trd-1", 1, 0)); err != nil {
		t.Fatalf("save trade failed: %v", err)
	}
	gotTrade, err := tradeRepo.GetByID(ctx, "trd-1")
	if err != nil {
		t.Fatalf("get trade failed: %v", err)
	}
	gotTrade.Size = 999
	gotTradeAgain, _ := tradeRepo.GetByID(ctx, "trd-1")
	if gotTradeAgain.Size != 2 {
		t.Fatalf("repository leaked internal pointer for trade size, got %d", gotTradeAgain.Size)
	}
}

func TestMemoryOrderRepository_GetMissing(t *testing.T) {
	repo := NewMemoryOrderRepository()
	if _, err := repo.Get(context.Background(), OrderKey{SymbolID: 1, OrderID: 1}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
	if _, err := NewMemoryTradeRepository().GetByID(context.Background(), "nope"); !errors.Is(err, ErrTradeNotFound) {
		t.Fatalf("expected ErrTradeNotFound, got %v", err)
	}
}

func TestMemoryOrderRepository_ListByAccountLimit(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryOrderRepository()
	for id := int64(1); id <= 3; id++ {
		if err := repo.Save(ctx, &OrderView{SymbolID: testSymbol, OrderID: id, UID: 9}); err != nil {
			t.Fatal(err)
		}
	}
	// Updating an existing order must not duplicate the index entry.
	if err := repo.Save(ctx, &OrderView{SymbolID: testSymbol, OrderID: 1, UID: 9, Filled: 1}); err != nil {
		t.Fatal(err)
	}

	all, _ := repo.ListByAccount(ctx, 9, 0)
	if len(all) != 3 {
		t.Fatalf("expected 3 orders, got %d", len(all))
	}
	limited, _ := repo.ListByAccount(ctx, 9, 2)
	if len(limited) != 2 || limited[0].OrderID != 1 || limited[1].OrderID != 2 {
		t.Fatalf("expected first two orders in creation order, got %+v", limited)
	}
}

func TestMemoryRepositories_SetLastSequenceMonotonic(t *testing.T) {
	ctx := context.Background()

	orderRepo := NewMemoryOrderRepository()
	if err := orderRepo.SetLastSequence(ctx, 10); err != nil {
		t.Fatalf("set last sequence failed: %v", err)
	}
	if err := orderRepo.SetLastSequence(ctx, 9); !errors.Is(err, ErrSequenceRegression) {
		t.Fatalf("expected ErrSequenceRegression for order repo, got %v", err)
	}

	tradeRepo := NewMemoryTradeRepository()
	if err := tradeRepo.SetLastSequence(ctx, 10); err != nil {
		t.Fatalf("set last sequence failed: %v", err)
	}
	if err := tradeRepo.SetLastSequence(ctx, 9); !errors.Is(err, ErrSequenceRegression) {
		t.Fatalf("expected ErrSequenceRegression for trade repo, got %v", err)
	}
}

func TestMemoryTradeRepository_ListBySymbolSorted(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTradeRepository()

	for _, tr := range []*TradeView{
		sampleTrade("trd-3", 2, 1),
		sampleTrade("trd-1", 1, 0),
		sampleTrade("trd-2", 2, 0),
	} {
		if err := repo.Save(ctx, tr); err != nil {
			t.Fatalf("save %s failed: %v", tr.TradeID, err)
		}
	}

	got, err := repo.ListBySymbol(ctx, testSymbol, 0, 10)
	if err != nil {
		t.Fatalf("list by symbol failed: %v", err)
	}
	want := []string{"trd-1", "trd-2", "trd-3"}
	if len(got) != len(want) {
		t.Fatalf("expected %d trades, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].TradeID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, got[i].TradeID)
		}
	}

	from2, _ := repo.ListBySymbol(ctx, testSymbol, 2, 0)
	if len(from2) != 2 {
		t.Errorf("expected 2 trades from sequence 2, got %d", len(from2))
	}
	other, _ := repo.ListBySymbol(ctx, testSymbol+1, 0, 0)
	if len(other) != 0 {
		t.Errorf("expected no trades for other symbol, got %d", len(other))
	}
}

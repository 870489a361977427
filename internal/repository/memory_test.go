package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"storefront/internal/domain"
)

func TestMemoryStore_ProductCreateGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	p := domain.Product{Name: "A", SKU: "S1", Price: decimal.NewFromInt(10), Stock: 5, Active: true}
	if err := store.Create(ctx, &p); err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.ID == 0 {
		t.Fatalf("no id")
	}

	got, err := store.GetByID(ctx, p.ID)
	if err != nil || got.ID != p.ID {
		t.Fatalf("get: %v", err)
	}
	if _, err := store.GetByID(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStore_ReserveRelease(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	p := domain.Product{Name: "A", SKU: "S1", Price: decimal.NewFromInt(10), Stock: 5, Active: true}
	if err := store.Create(ctx, &p); err != nil {
		t.Fatal(err)
	}

	left, err := store.Reserve(ctx, p.ID, 3)
	if err != nil || left != 2 {
		t.Fatalf("reserve: left=%d err=%v", left, err)
	}
	left, err = store.Reserve(ctx, p.ID, 3)
	if !errors.Is(err, ErrInsufficientStock) || left != 2 {
		t.Fatalf("expected shortage with 2 observed, got left=%d err=%v", left, err)
	}
	if err := store.Release(ctx, p.ID, 3); err != nil {
		t.Fatalf("release: %v", err)
	}
	pp, _ := store.GetByID(ctx, p.ID)
	if pp.Stock != 5 {
		t.Fatalf("stock expected 5, got %v", pp.Stock)
	}
}

func TestMemoryStore_ReserveNeverNegative(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	p := domain.Product{Name: "A", SKU: "S1", Price: decimal.NewFromInt(1), Stock: 10, Active: true}
	if err := store.Create(ctx, &p); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Reserve(ctx, p.ID, 1); err == nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	pp, _ := store.GetByID(ctx, p.ID)
	if granted != 10 || pp.Stock != 0 {
		t.Fatalf("granted=%d stock=%d", granted, pp.Stock)
	}
}

func TestList_Filtering(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	add := func(n string, price int64, active bool) {
		p := domain.Product{Name: n, SKU: n, Price: decimal.NewFromInt(price), Stock: 1, Active: active}
		if err := store.Create(ctx, &p); err != nil {
			t.Fatal(err)
		}
	}
	add("Aspirin", 100, true)
	add("Paracetamol", 50, true)
	add("Ibuprofen", 150, false)

	list, _ := store.List(ctx, ProductFilter{NameSubstring: "in"})
	if len(list) != 2 {
		t.Fatalf("name filter: %d", len(list))
	}

	min := decimal.NewFromInt(100)
	list, _ = store.List(ctx, ProductFilter{MinPrice: &min})
	for _, p := range list {
		if p.Price.LessThan(min) {
			t.Fatalf("min filter fail")
		}
	}

	list, _ = store.List(ctx, ProductFilter{OnlyActive: true})
	if len(list) != 2 {
		t.Fatalf("active filter: %d", len(list))
	}
}

func TestMemoryOrders_UniqueNumberAndVersion(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	orders := NewMemoryOrders(store)

	o := domain.Order{ID: "o1", OrderNumber: "ORD-1", UserID: "u1", Status: domain.OrderStatusPending}
	if err := orders.Create(ctx, &o); err != nil {
		t.Fatalf("create: %v", err)
	}
	dup := domain.Order{ID: "o2", OrderNumber: "ORD-1", UserID: "u2"}
	if err := orders.Create(ctx, &dup); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict on duplicate number, got %v", err)
	}

	a, _ := orders.GetByID(ctx, "o1")
	b, _ := orders.GetByID(ctx, "o1")
	a.Status = domain.OrderStatusConfirmed
	if err := orders.Update(ctx, a); err != nil {
		t.Fatalf("update: %v", err)
	}
	b.Status = domain.OrderStatusCancelled
	if err := orders.Update(ctx, b); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected stale version conflict, got %v", err)
	}

	got, err := orders.GetByNumber(ctx, "ORD-1")
	if err != nil || got.Status != domain.OrderStatusConfirmed {
		t.Fatalf("by number: %v %v", got, err)
	}
}

func TestMemoryOrders_ListPaging(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	store.now = func() time.Time { tick++; return base.Add(time.Duration(tick) * time.Minute) }
	orders := NewMemoryOrders(store)
	for i, user := range []string{"u1", "u1", "u2", "u1"} {
		o := domain.Order{ID: string(rune('a' + i)), OrderNumber: "N" + string(rune('a'+i)), UserID: user, Status: domain.OrderStatusPending}
		if err := orders.Create(ctx, &o); err != nil {
			t.Fatal(err)
		}
	}

	list, total, err := orders.List(ctx, OrderFilter{UserID: "u1", SortBy: SortByCreatedAt, SortDesc: true, Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || len(list) != 2 {
		t.Fatalf("total=%d len=%d", total, len(list))
	}
	if list[0].ID != "d" || list[1].ID != "b" {
		t.Fatalf("unexpected order %s %s", list[0].ID, list[1].ID)
	}

	list, _, _ = orders.List(ctx, OrderFilter{UserID: "u1", Offset: 10, Limit: 2})
	if len(list) != 0 {
		t.Fatalf("expected empty page")
	}

	list, _, err = orders.List(ctx, OrderFilter{UserID: "u1", Offset: -5, Limit: 2})
	if err != nil || len(list) != 2 {
		t.Fatalf("negative offset must read from the start: %d %v", len(list), err)
	}
}

func TestMemoryCarts(t *testing.T) {
	ctx := context.Background()
	carts := NewMemoryCarts(NewMemoryStore())
	_ = carts.SetLine(ctx, "u1", domain.CartLine{ProductID: 1, Quantity: 2})
	_ = carts.SetLine(ctx, "u1", domain.CartLine{ProductID: 2, Quantity: 1})
	_ = carts.SetLine(ctx, "u1", domain.CartLine{ProductID: 1, Quantity: 4})
	lines, _ := carts.Snapshot(ctx, "u1")
	if len(lines) != 2 || lines[0].Quantity != 4 {
		t.Fatalf("unexpected cart %+v", lines)
	}
	_ = carts.SetLine(ctx, "u1", domain.CartLine{ProductID: 2, Quantity: 0})
	lines, _ = carts.Snapshot(ctx, "u1")
	if len(lines) != 1 {
		t.Fatalf("zero quantity must remove line")
	}
	_ = carts.Clear(ctx, "u1")
	lines, _ = carts.Snapshot(ctx, "u1")
	if len(lines) != 0 {
		t.Fatalf("cart not cleared")
	}
}

package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/mock/gomock"

	"storefront/internal/cache"
	"storefront/internal/cache/mocks"
	"storefront/internal/domain"
	"storefront/internal/repository"
)

func TestProductService_CreateValidation(t *testing.T) {
	ctx := context.Background()
	ps := NewProductService(repository.NewMemoryStore(), nil)
	if _, err := ps.Create(ctx, domain.Product{Name: "", SKU: "X", Price: decimal.NewFromInt(1)}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := ps.Create(ctx, domain.Product{Name: "A", SKU: "X", Price: decimal.NewFromInt(-1)}); !errors.Is(err, ErrValidation) {
		t.Fatalf("negative price must be rejected, got %v", err)
	}
	if _, err := ps.GetByID(ctx, 0); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for id, got %v", err)
	}
	if _, err := ps.GetByID(ctx, 42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestProductService_CacheThrough(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	c := cache.NewMemory()
	ps := NewProductService(store, c)

	p, err := ps.Create(ctx, domain.Product{Name: "Tea", SKU: "T1", CategoryID: 3, Price: decimal.RequireFromString("2.50"), Stock: 4, Active: true})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ps.GetByID(ctx, p.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Reserve(ctx, p.ID, 1); err != nil {
		t.Fatal(err)
	}
	cached, _ := ps.GetByID(ctx, p.ID)
	if cached.Stock != 4 || !cached.Price.Equal(p.Price) {
		t.Fatalf("expected cached copy, got %+v", cached)
	}

	cat := int64(3)
	if list, _ := ps.List(ctx, repository.ProductFilter{CategoryID: &cat}); len(list) != 1 {
		t.Fatalf("category list: %d", len(list))
	}

	off, err := ps.SetActive(ctx, p.ID, false)
	if err != nil || off.Active {
		t.Fatalf("deactivate: %+v %v", off, err)
	}
	fresh, _ := ps.GetByID(ctx, p.ID)
	if fresh.Active || fresh.Stock != 3 {
		t.Fatalf("cache must be dropped on change, got %+v", fresh)
	}
	if list, _ := ps.List(ctx, repository.ProductFilter{CategoryID: &cat, OnlyActive: true}); len(list) != 0 {
		t.Fatalf("inactive product listed")
	}
}

func TestCartService(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	cs := NewCartService(repository.NewMemoryCarts(store), store)
	ps := NewProductService(store, nil)
	a, _ := ps.Create(ctx, domain.Product{Name: "A", SKU: "A", Price: decimal.RequireFromString("1.25"), Stock: 10, Active: true})
	b, _ := ps.Create(ctx, domain.Product{Name: "B", SKU: "B", Price: decimal.NewFromInt(3), Stock: 10, Active: false})

	view, err := cs.SetItem(ctx, "alice", a.ID, 4)
	if err != nil {
		t.Fatal(err)
	}
	if !view.Total.Equal(decimal.NewFromInt(5)) || len(view.Items) != 1 {
		t.Fatalf("unexpected view %+v", view)
	}
	if _, err := cs.SetItem(ctx, "alice", b.ID, 1); !errors.Is(err, ErrProductUnavailable) {
		t.Fatalf("inactive product must be refused, got %v", err)
	}
	if _, err := cs.SetItem(ctx, "alice", a.ID, -1); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	view, _ = cs.SetItem(ctx, "alice", a.ID, 0)
	if len(view.Items) != 0 {
		t.Fatalf("zero quantity must remove the line")
	}
}

func TestKind(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{ErrNotFound, "not_found"},
		{&StockError{ProductID: 1}, "insufficient_stock"},
		{&UnavailableError{ProductID: 1}, "product_unavailable"},
		{ErrEmptyCart, "empty_cart"},
		{validationf("x"), "validation"},
		{ErrSignatureMismatch, "signature_mismatch"},
		{errors.New("boom"), "internal"},
	}
	for _, c := range cases {
		if got := Kind(c.err); got != c.want {
			t.Fatalf("Kind(%v)=%q want %q", c.err, got, c.want)
		}
	}
}

func TestProductService_CacheDown(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	down := errors.New("connection refused")
	c := mocks.NewMockCache(ctrl)
	c.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, false, down).AnyTimes()
	c.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(down).AnyTimes()
	c.EXPECT().Invalidate(gomock.Any(), cache.ProductListPattern).Return(down).MinTimes(1)
	c.EXPECT().Invalidate(gomock.Any(), cache.CategoryPattern(5)).Return(down).MinTimes(1)

	ps := NewProductService(repository.NewMemoryStore(), c)
	p, err := ps.Create(ctx, domain.Product{Name: "Rice", SKU: "R1", CategoryID: 5, Price: decimal.NewFromInt(3), Stock: 2, Active: true})
	if err != nil {
		t.Fatalf("create with cache down: %v", err)
	}
	got, err := ps.GetByID(ctx, p.ID)
	if err != nil || got.Name != "Rice" {
		t.Fatalf("read with cache down: %+v %v", got, err)
	}
	if list, err := ps.List(ctx, repository.ProductFilter{}); err != nil || len(list) != 1 {
		t.Fatalf("list with cache down: %d %v", len(list), err)
	}
}

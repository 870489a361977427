package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"storefront/internal/domain"
)

var (
	// ErrNotFound возвращается, когда сущность не найдена
	ErrNotFound          = errors.New("not found")
	// ErrConflict: нарушение уникальности или устаревшая версия записи
	ErrConflict          = errors.New("conflict")
	// ErrInsufficientStock: условное списание не прошло
	ErrInsufficientStock = errors.New("insufficient stock")
)

// ProductFilter параметры фильтрации списка товаров
type ProductFilter struct {
	NameSubstring string
	CategoryID    *int64
	MinPrice      *decimal.Decimal
	MaxPrice      *decimal.Decimal
	OnlyActive    bool
}

// ProductRepository интерфейс репозитория товаров.
// Reserve and Release are the only operations that touch stock after creation.
type ProductRepository interface {
	Create(ctx context.Context, p *domain.Product) error
	GetByID(ctx context.Context, id int64) (*domain.Product, error)
	List(ctx context.Context, f ProductFilter) ([]domain.Product, error)
	// Reserve decrements stock by qty only if at least qty is available, as one
	// atomic step. On shortage it returns the observed stock and ErrInsufficientStock.
	Reserve(ctx context.Context, id, qty int64) (remaining int64, err error)
	Release(ctx context.Context, id, qty int64) error
	SetActive(ctx context.Context, id int64, active bool) error
}

// Sort keys accepted by OrderFilter.SortBy.
const (
	SortByCreatedAt   = "createdAt"
	SortByUpdatedAt   = "updatedAt"
	SortByTotalAmount = "totalAmount"
	SortByStatus      = "status"
)

// OrderFilter параметры выборки заказов
type OrderFilter struct {
	UserID   string
	Status   domain.OrderStatus
	SortBy   string
	SortDesc bool
	Offset   int
	Limit    int
}

// OrderRepository интерфейс репозитория заказов
type OrderRepository interface {
	// Create fails with ErrConflict when the order number is already taken.
	Create(ctx context.Context, o *domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	GetByNumber(ctx context.Context, number string) (*domain.Order, error)
	// Update is optimistic: it fails with ErrConflict when o.Version is stale
	// and bumps o.Version on success.
	Update(ctx context.Context, o *domain.Order) error
	List(ctx context.Context, f OrderFilter) ([]domain.Order, int, error)
}

// CartRepository корзины пользователей
type CartRepository interface {
	Snapshot(ctx context.Context, userID string) ([]domain.CartLine, error)
	// SetLine upserts a line; quantity zero removes it.
	SetLine(ctx context.Context, userID string, line domain.CartLine) error
	Clear(ctx context.Context, userID string) error
}

// ValidSortKey reports whether key can be used in OrderFilter.SortBy.
func ValidSortKey(key string) bool {
	switch key {
	case SortByCreatedAt, SortByUpdatedAt, SortByTotalAmount, SortByStatus:
		return true
	}
	return false
}

// helper: case-insensitive contains
func containsIgnoreCase(s, substr string) bool {
	if substr == "" {
		return true
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

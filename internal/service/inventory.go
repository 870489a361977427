package service

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/metrics"
	"storefront/internal/repository"
)

// InventoryLedger единственная точка изменения остатков после создания товара
type InventoryLedger struct {
	products repository.ProductRepository
	metrics  *metrics.Metrics
}

func NewInventoryLedger(products repository.ProductRepository, m *metrics.Metrics) *InventoryLedger {
	return &InventoryLedger{products: products, metrics: m}
}

// Reserve decrements stock only if at least qty remains. The check and the
// decrement are one storage-level step.
func (l *InventoryLedger) Reserve(ctx context.Context, productID, qty int64) error {
	if qty <= 0 {
		return validationf("quantity must be positive")
	}
	available, err := l.products.Reserve(ctx, productID, qty)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrInsufficientStock):
		l.metrics.ReservationRejected("insufficient_stock")
		se := &StockError{ProductID: productID, Available: available, Requested: qty}
		if p, gerr := l.products.GetByID(ctx, productID); gerr == nil {
			se.Name = p.Name
		}
		return se
	case errors.Is(err, repository.ErrNotFound):
		l.metrics.ReservationRejected("not_found")
		return &UnavailableError{ProductID: productID}
	default:
		return fmt.Errorf("reserve product %d: %w", productID, err)
	}
}

// Release returns qty units; one increment per call.
func (l *InventoryLedger) Release(ctx context.Context, productID, qty int64) error {
	if qty <= 0 {
		return validationf("quantity must be positive")
	}
	if err := l.products.Release(ctx, productID, qty); err != nil {
		return fmt.Errorf("release product %d: %w", productID, err)
	}
	return nil
}

package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"storefront/internal/domain"
	"storefront/internal/repository"
)

// ValidatedLine позиция корзины с актуальными названием и ценой
type ValidatedLine struct {
	ProductID  int64
	CategoryID int64
	Name       string
	Quantity   int64
	Price      decimal.Decimal
}

// CartValidator проверяет корзину перед оформлением. The stock check here is
// advisory; the ledger decides at reservation time.
type CartValidator struct {
	products repository.ProductRepository
}

func NewCartValidator(products repository.ProductRepository) *CartValidator {
	return &CartValidator{products: products}
}

func (v *CartValidator) Validate(ctx context.Context, lines []domain.CartLine) ([]ValidatedLine, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}
	out := make([]ValidatedLine, 0, len(lines))
	for _, l := range lines {
		if l.Quantity <= 0 {
			return nil, validationf("quantity for product %d must be positive", l.ProductID)
		}
		p, err := v.products.GetByID(ctx, l.ProductID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &UnavailableError{ProductID: l.ProductID}
		}
		if err != nil {
			return nil, err
		}
		if !p.Active {
			return nil, &UnavailableError{ProductID: p.ID, Name: p.Name}
		}
		if l.Quantity > p.Stock {
			return nil, &StockError{ProductID: p.ID, Name: p.Name, Available: p.Stock, Requested: l.Quantity}
		}
		out = append(out, ValidatedLine{
			ProductID:  p.ID,
			CategoryID: p.CategoryID,
			Name:       p.Name,
			Quantity:   l.Quantity,
			Price:      p.Price,
		})
	}
	return out, nil
}

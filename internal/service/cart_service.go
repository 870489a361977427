package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"storefront/internal/domain"
	"storefront/internal/repository"
)

// CartService корзина пользователя
type CartService struct {
	carts    repository.CartRepository
	products repository.ProductRepository
}

func NewCartService(carts repository.CartRepository, products repository.ProductRepository) *CartService {
	return &CartService{carts: carts, products: products}
}

// CartItemView строка корзины с текущей ценой
type CartItemView struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int64           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Available bool            `json:"available"`
}

type CartView struct {
	Items []CartItemView  `json:"items"`
	Total decimal.Decimal `json:"total"`
}

func (s *CartService) Get(ctx context.Context, userID string) (*CartView, error) {
	lines, err := s.carts.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	view := &CartView{Items: make([]CartItemView, 0, len(lines)), Total: decimal.Zero}
	for _, l := range lines {
		item := CartItemView{ProductID: l.ProductID, Quantity: l.Quantity}
		p, err := s.products.GetByID(ctx, l.ProductID)
		switch {
		case err == nil:
			item.Name = p.Name
			item.Price = p.Price
			item.Subtotal = p.Price.Mul(decimal.NewFromInt(l.Quantity))
			item.Available = p.Active && p.Stock >= l.Quantity
			view.Total = view.Total.Add(item.Subtotal)
		case errors.Is(err, repository.ErrNotFound):
		default:
			return nil, err
		}
		view.Items = append(view.Items, item)
	}
	return view, nil
}

// SetItem sets the quantity of one product; zero removes it.
func (s *CartService) SetItem(ctx context.Context, userID string, productID, qty int64) (*CartView, error) {
	if qty < 0 {
		return nil, validationf("quantity must not be negative")
	}
	if qty > 0 {
		p, err := s.products.GetByID(ctx, productID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &UnavailableError{ProductID: productID}
		}
		if err != nil {
			return nil, err
		}
		if !p.Active {
			return nil, &UnavailableError{ProductID: p.ID, Name: p.Name}
		}
	}
	if err := s.carts.SetLine(ctx, userID, domain.CartLine{ProductID: productID, Quantity: qty}); err != nil {
		return nil, err
	}
	return s.Get(ctx, userID)
}

func (s *CartService) Clear(ctx context.Context, userID string) error {
	return s.carts.Clear(ctx, userID)
}

package service

import (
	"errors"
	"fmt"

	"storefront/internal/repository"
)

var (
	ErrNotFound           = repository.ErrNotFound
	ErrConflict           = repository.ErrConflict
	ErrForbidden          = errors.New("forbidden")
	ErrValidation         = errors.New("validation failed")
	ErrEmptyCart          = fmt.Errorf("%w: cart is empty", ErrValidation)
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrProductUnavailable = errors.New("product unavailable")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrAlreadyPaid        = errors.New("order already paid")
	ErrSignatureMismatch  = errors.New("payment signature mismatch")
	ErrExternalService    = errors.New("external service unavailable")
)

// StockError недостаточно товара для позиции
type StockError struct {
	ProductID int64
	Name      string
	Available int64
	Requested int64
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: available %d, requested %d", e.Name, e.Available, e.Requested)
}

func (e *StockError) Is(target error) bool { return target == ErrInsufficientStock }

// UnavailableError товар отсутствует в каталоге или неактивен
type UnavailableError struct {
	ProductID int64
	Name      string
}

func (e *UnavailableError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("product %q is unavailable", e.Name)
	}
	return fmt.Sprintf("product %d is unavailable", e.ProductID)
}

func (e *UnavailableError) Is(target error) bool { return target == ErrProductUnavailable }

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Kind returns a stable machine-readable class for err.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrProductUnavailable):
		return "product_unavailable"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrAlreadyPaid):
		return "already_paid"
	case errors.Is(err, ErrSignatureMismatch):
		return "signature_mismatch"
	case errors.Is(err, ErrExternalService):
		return "external_service"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "internal"
	}
}

package service

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/domain"
	"storefront/internal/events"
	"storefront/internal/logging"
	"storefront/internal/metrics"
	"storefront/internal/repository"
)

// compensation отменяющее действие для уже выполненного шага
type compensation struct {
	step string
	undo func(ctx context.Context) error
}

// saga records completed steps so that only those are undone, newest first.
type saga struct {
	steps   []compensation
	onError func(step string, err error)
}

func (s *saga) add(step string, undo func(ctx context.Context) error) {
	s.steps = append(s.steps, compensation{step: step, undo: undo})
}

// compensate runs every recorded undo in reverse order. The caller's
// cancellation does not stop it.
func (s *saga) compensate(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	for i := len(s.steps) - 1; i >= 0; i-- {
		c := s.steps[i]
		if err := c.undo(ctx); err != nil && s.onError != nil {
			s.onError(c.step, err)
		}
	}
	s.steps = nil
}

// reconciler reports side effects that could not be undone.
type reconciler struct {
	events  events.Publisher
	metrics *metrics.Metrics
}

func (r reconciler) report(ctx context.Context, orderID, orderNumber, step string, err error) {
	logging.Error(logging.Fields{
		Component:   "reconciliation",
		OrderID:     orderID,
		OrderNumber: orderNumber,
		Step:        step,
		Status:      "compensation_failed",
		Message:     "manual reconciliation required",
		Err:         err,
	})
	r.metrics.CompensationFailed()
	e := events.New(events.TypeReconciliationRequired, orderID)
	e.OrderNumber = orderNumber
	e.Data = map[string]any{"step": step, "error": err.Error()}
	events.Emit(context.WithoutCancel(ctx), r.events, e)
}

const maxUpdateAttempts = 3

// errUnchanged tells updateOrder to skip the write and return the order as is.
var errUnchanged = errors.New("unchanged")

// updateOrder loads the order, applies fn and writes it back under the
// version check, reloading on conflict.
func updateOrder(ctx context.Context, repo repository.OrderRepository, id string, fn func(o *domain.Order) error) (*domain.Order, bool, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		o, err := repo.GetByID(ctx, id)
		if err != nil {
			return nil, false, err
		}
		if err := fn(o); err != nil {
			if errors.Is(err, errUnchanged) {
				return o, false, nil
			}
			return nil, false, err
		}
		err = repo.Update(ctx, o)
		if errors.Is(err, repository.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		return o, true, nil
	}
	return nil, false, fmt.Errorf("order %s changed concurrently: %w", id, ErrConflict)
}

// Package events publishes order lifecycle notifications to a broker.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"storefront/internal/logging"
)

const (
	TypeOrderCreated           = "order.created"
	TypeOrderCancelled         = "order.cancelled"
	TypeOrderStatusChanged     = "order.status_changed"
	TypePaymentCompleted       = "payment.completed"
	TypeReconciliationRequired = "reconciliation.required"
)

// Event событие жизненного цикла заказа
type Event struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	OrderID     string         `json:"order_id"`
	OrderNumber string         `json:"order_number,omitempty"`
	UserID      string         `json:"user_id,omitempty"`
	Status      string         `json:"status,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	OccurredAt  time.Time      `json:"occurred_at"`
}

// New stamps an id and time on an event of the given type.
func New(typ, orderID string) Event {
	return Event{ID: uuid.NewString(), Type: typ, OrderID: orderID, OccurredAt: time.Now().UTC()}
}

func (e Event) Marshal() ([]byte, error) { return json.Marshal(e) }

// Publisher отправляет события
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Emit publishes and logs failures; event delivery never fails the caller's
// operation.
func Emit(ctx context.Context, p Publisher, e Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, e); err != nil {
		logging.Warn(logging.Fields{Component: "events", Step: "publish", Status: e.Type, OrderID: e.OrderID, Err: err})
	}
}

// LogPublisher writes events to the structured log only.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, e Event) error {
	logging.Log(logging.Fields{Component: "events", Step: e.Type, OrderID: e.OrderID, OrderNumber: e.OrderNumber, Status: e.Status, Message: "event"})
	return nil
}

func (LogPublisher) Close() error { return nil }

// Multi fans an event out to every publisher.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Types returns the recorded event types in publish order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

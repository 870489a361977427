package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"storefront/internal/domain"
	"storefront/internal/events"
	"storefront/internal/logging"
	"storefront/internal/metrics"
	"storefront/internal/payment"
	"storefront/internal/repository"
)

// PaymentConfig реквизиты шлюза
type PaymentConfig struct {
	KeyID     string
	KeySecret string
	Currency  string
	Timeout   time.Duration
}

// PaymentService платёжное рукопожатие: намерение, проверка подписи, статус
type PaymentService struct {
	orders  repository.OrderRepository
	gateway payment.Gateway
	events  events.Publisher
	metrics *metrics.Metrics
	cfg     PaymentConfig
}

func NewPaymentService(d Deps, gw payment.Gateway, cfg PaymentConfig) *PaymentService {
	d = d.withDefaults()
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &PaymentService{orders: d.Orders, gateway: gw, events: d.Events, metrics: d.Metrics, cfg: cfg}
}

// PaymentIntent данные для клиента, открывающего форму оплаты
type PaymentIntent struct {
	IntentID    string          `json:"orderId"`
	Amount      int64           `json:"amount"`
	Currency    string          `json:"currency"`
	KeyID       string          `json:"key"`
	OrderID     string          `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// CurrencyScale is the number of minor-unit digits of an ISO 4217 code:
// 0 for JPY, 3 for KWD. Unknown codes get 2.
func CurrencyScale(code string) int32 {
	u, err := currency.ParseISO(code)
	if err != nil {
		return 2
	}
	scale, _ := currency.Standard.Rounding(u)
	return int32(scale)
}

// MinorUnits converts an amount to the smallest unit of the currency,
// rounding half away from zero.
func MinorUnits(amount decimal.Decimal, code string) int64 {
	return amount.Shift(CurrencyScale(code)).Round(0).IntPart()
}

// CreateIntent asks the gateway for a payment order. An unpaid order that
// already has one gets the same intent back, so a payment made against it
// still verifies. A gateway failure leaves the order untouched and is
// reported as ErrExternalService.
func (s *PaymentService) CreateIntent(ctx context.Context, orderID string, actor domain.Actor) (*PaymentIntent, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := checkPayable(o, actor); err != nil {
		return nil, err
	}
	code := o.Currency
	if code == "" {
		code = s.cfg.Currency
	}
	if o.Payment.GatewayOrderID != "" {
		logging.Debug(logging.Fields{Component: "payments", OrderID: o.ID, Step: "create_intent", Status: "reused"})
		return s.intentFor(o, code), nil
	}

	gctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	start := time.Now()
	intent, err := s.gateway.CreateIntent(gctx, payment.IntentRequest{
		Amount:   MinorUnits(o.TotalAmount, code),
		Currency: code,
		Receipt:  "order_" + o.OrderNumber,
		Notes:    map[string]string{"orderId": o.ID, "userId": o.UserID},
	})
	if err != nil {
		logging.Warn(logging.Fields{Component: "payments", OrderID: o.ID, Step: "create_intent", DurationMS: time.Since(start).Milliseconds(), Err: err})
		return nil, fmt.Errorf("%w: %v", ErrExternalService, err)
	}

	// a concurrent call may have stored its intent first; that one wins
	o, _, err = updateOrder(ctx, s.orders, orderID, func(o *domain.Order) error {
		if err := checkPayable(o, actor); err != nil {
			return err
		}
		if o.Payment.GatewayOrderID != "" {
			return errUnchanged
		}
		o.Payment.GatewayOrderID = intent.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	logging.Log(logging.Fields{Component: "payments", OrderID: o.ID, OrderNumber: o.OrderNumber, Step: "create_intent", Status: "created", DurationMS: time.Since(start).Milliseconds()})
	return s.intentFor(o, code), nil
}

func (s *PaymentService) intentFor(o *domain.Order, code string) *PaymentIntent {
	return &PaymentIntent{
		IntentID:    o.Payment.GatewayOrderID,
		Amount:      MinorUnits(o.TotalAmount, code),
		Currency:    code,
		KeyID:       s.cfg.KeyID,
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		TotalAmount: o.TotalAmount,
	}
}

func checkPayable(o *domain.Order, actor domain.Actor) error {
	if o.UserID != actor.UserID {
		return ErrForbidden
	}
	if o.Payment.Status == domain.PaymentStatusCompleted {
		return ErrAlreadyPaid
	}
	if o.Status == domain.OrderStatusCancelled {
		return fmt.Errorf("%w: order is cancelled", ErrInvalidTransition)
	}
	return nil
}

// VerifyRequest данные, вернувшиеся от шлюза через клиента
type VerifyRequest struct {
	OrderID          string `json:"orderId" binding:"required"`
	GatewayOrderID   string `json:"razorpay_order_id" binding:"required"`
	GatewayPaymentID string `json:"razorpay_payment_id" binding:"required"`
	Signature        string `json:"razorpay_signature" binding:"required"`
}

// Verify checks the gateway signature and marks the order paid. Replaying
// the same completed payment is a no-op success.
func (s *PaymentService) Verify(ctx context.Context, req VerifyRequest, actor domain.Actor) (*domain.Order, error) {
	if req.OrderID == "" || req.GatewayOrderID == "" || req.GatewayPaymentID == "" || req.Signature == "" {
		return nil, validationf("order id, gateway order id, payment id and signature are required")
	}
	if !payment.VerifySignature(s.cfg.KeySecret, req.GatewayOrderID, req.GatewayPaymentID, req.Signature) {
		s.metrics.PaymentVerified("signature_mismatch")
		logging.Warn(logging.Fields{Component: "payments", OrderID: req.OrderID, Step: "verify", Status: "signature_mismatch"})
		return nil, ErrSignatureMismatch
	}

	o, changed, err := updateOrder(ctx, s.orders, req.OrderID, func(o *domain.Order) error {
		if o.UserID != actor.UserID {
			return ErrForbidden
		}
		if o.Payment.GatewayOrderID != req.GatewayOrderID {
			return fmt.Errorf("%w: payment belongs to another order", ErrSignatureMismatch)
		}
		if o.Payment.Status == domain.PaymentStatusCompleted {
			if o.Payment.GatewayPaymentID == req.GatewayPaymentID {
				return errUnchanged
			}
			return ErrAlreadyPaid
		}
		if o.Status == domain.OrderStatusCancelled {
			return fmt.Errorf("%w: order is cancelled", ErrInvalidTransition)
		}
		o.Payment.GatewayPaymentID = req.GatewayPaymentID
		o.Payment.Signature = req.Signature
		o.Payment.Status = domain.PaymentStatusCompleted
		if o.Status == domain.OrderStatusPending {
			o.Status = domain.OrderStatusConfirmed
		}
		return nil
	})
	if err != nil {
		s.metrics.PaymentVerified(Kind(err))
		return nil, err
	}
	if !changed {
		s.metrics.PaymentVerified("replayed")
		return o, nil
	}

	s.metrics.PaymentVerified("completed")
	e := events.New(events.TypePaymentCompleted, o.ID)
	e.OrderNumber = o.OrderNumber
	e.UserID = o.UserID
	e.Status = string(o.Status)
	e.Data = map[string]any{"gateway_payment_id": o.Payment.GatewayPaymentID, "total_amount": o.TotalAmount.String()}
	events.Emit(ctx, s.events, e)
	logging.Log(logging.Fields{Component: "payments", OrderID: o.ID, OrderNumber: o.OrderNumber, Step: "verify", Status: "completed"})
	return o, nil
}

// PaymentSnapshot состояние оплаты заказа
type PaymentSnapshot struct {
	OrderID          string               `json:"orderId"`
	OrderNumber      string               `json:"orderNumber"`
	PaymentMethod    domain.PaymentMethod `json:"paymentMethod"`
	PaymentStatus    domain.PaymentStatus `json:"paymentStatus"`
	GatewayOrderID   string               `json:"razorpayOrderId,omitempty"`
	GatewayPaymentID string               `json:"razorpayPaymentId,omitempty"`
	TotalAmount      decimal.Decimal      `json:"totalAmount"`
	Currency         string               `json:"currency"`
	OrderStatus      domain.OrderStatus   `json:"orderStatus"`
}

func (s *PaymentService) Status(ctx context.Context, orderID string, actor domain.Actor) (*PaymentSnapshot, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != actor.UserID {
		return nil, ErrForbidden
	}
	return &PaymentSnapshot{
		OrderID:          o.ID,
		OrderNumber:      o.OrderNumber,
		PaymentMethod:    o.Payment.Method,
		PaymentStatus:    o.Payment.Status,
		GatewayOrderID:   o.Payment.GatewayOrderID,
		GatewayPaymentID: o.Payment.GatewayPaymentID,
		TotalAmount:      o.TotalAmount,
		Currency:         o.Currency,
		OrderStatus:      o.Status,
	}, nil
}

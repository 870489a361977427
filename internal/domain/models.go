package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product товар каталога вместе с остатком на складе
type Product struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	SKU        string          `json:"sku"`
	CategoryID int64           `json:"category_id"`
	Price      decimal.Decimal `json:"price"`
	Stock      int64           `json:"stock"`
	Active     bool            `json:"active"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// CartLine позиция корзины пользователя
type CartLine struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

// OrderStatus тип статуса заказа
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// progression of the non-cancelled lifecycle
var statusRank = map[OrderStatus]int{
	OrderStatusPending:    0,
	OrderStatusConfirmed:  1,
	OrderStatusProcessing: 2,
	OrderStatusShipped:    3,
	OrderStatusDelivered:  4,
}

var statusMessages = map[OrderStatus]string{
	OrderStatusPending:    "Order received and being processed",
	OrderStatusConfirmed:  "Order confirmed and preparing for shipment",
	OrderStatusProcessing: "Order is being prepared",
	OrderStatusShipped:    "Order has been shipped",
	OrderStatusDelivered:  "Order has been delivered",
	OrderStatusCancelled:  "Order has been cancelled",
}

// ParseOrderStatus возвращает статус, если значение входит в перечисление
func ParseOrderStatus(s string) (OrderStatus, bool) {
	st := OrderStatus(s)
	if _, ok := statusMessages[st]; !ok {
		return "", false
	}
	return st, true
}

// Cancellable reports whether an order in this status may still be cancelled.
func (s OrderStatus) Cancellable() bool {
	return s == OrderStatusPending || s == OrderStatusConfirmed || s == OrderStatusProcessing
}

// CanMoveTo reports whether next is reachable from s without moving backwards.
// Staying in the same status is allowed so tracking details can be amended.
func (s OrderStatus) CanMoveTo(next OrderStatus) bool {
	if s == OrderStatusCancelled {
		return false
	}
	if next == OrderStatusCancelled {
		return s.Cancellable()
	}
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to >= from
}

// Shipped is true for shipped and delivered orders.
func (s OrderStatus) Shipped() bool {
	return s == OrderStatusShipped || s == OrderStatusDelivered
}

// Message is the customer-facing description of the status.
func (s OrderStatus) Message() string {
	if m, ok := statusMessages[s]; ok {
		return m
	}
	return "Order status unknown"
}

// PaymentMethod способ оплаты
type PaymentMethod string

const (
	PaymentMethodOnline         PaymentMethod = "online"
	PaymentMethodCashOnDelivery PaymentMethod = "cash-on-delivery"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodOnline || m == PaymentMethodCashOnDelivery
}

// PaymentStatus статус оплаты
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// PaymentDetails платёжные данные заказа
type PaymentDetails struct {
	Method           PaymentMethod `json:"method"`
	GatewayOrderID   string        `json:"gateway_order_id,omitempty"`
	GatewayPaymentID string        `json:"gateway_payment_id,omitempty"`
	Signature        string        `json:"signature,omitempty"`
	Status           PaymentStatus `json:"status"`
}

// ShippingAddress снимок адреса доставки на момент заказа
type ShippingAddress struct {
	Street  string `json:"street" validate:"required,max=200"`
	City    string `json:"city" validate:"required,max=100"`
	State   string `json:"state" validate:"max=100"`
	ZipCode string `json:"zip_code" validate:"required,max=20"`
	Country string `json:"country" validate:"required,max=100"`
}

// TrackingInfo данные отслеживания отправления
type TrackingInfo struct {
	Carrier           string     `json:"carrier,omitempty"`
	TrackingNumber    string     `json:"tracking_number,omitempty"`
	EstimatedDelivery *time.Time `json:"estimated_delivery,omitempty"`
}

// OrderLine позиция в заказе; цена фиксируется в момент оформления
type OrderLine struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int64           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// Subtotal is price times quantity.
func (l OrderLine) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(l.Quantity))
}

// Order сущность заказа
type Order struct {
	ID              string          `json:"id"`
	OrderNumber     string          `json:"order_number"`
	UserID          string          `json:"user_id"`
	Items           []OrderLine     `json:"items"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Currency        string          `json:"currency"`
	Status          OrderStatus     `json:"status"`
	Payment         PaymentDetails  `json:"payment"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
	Tracking        *TrackingInfo   `json:"tracking,omitempty"`
	Version         int64           `json:"-"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Clone returns a deep copy so stored orders are never aliased by callers.
func (o Order) Clone() Order {
	cp := o
	cp.Items = append([]OrderLine(nil), o.Items...)
	if o.Tracking != nil {
		t := *o.Tracking
		if o.Tracking.EstimatedDelivery != nil {
			d := *o.Tracking.EstimatedDelivery
			t.EstimatedDelivery = &d
		}
		cp.Tracking = &t
	}
	return cp
}

// Role роль вызывающего
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Actor аутентифицированный пользователь запроса
type Actor struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

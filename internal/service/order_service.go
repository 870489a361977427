package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"storefront/internal/cache"
	"storefront/internal/domain"
	"storefront/internal/events"
	"storefront/internal/logging"
	"storefront/internal/metrics"
	"storefront/internal/repository"
)

const maxNumberAttempts = 5

// Deps общие зависимости сервисов
type Deps struct {
	Products repository.ProductRepository
	Orders   repository.OrderRepository
	Carts    repository.CartRepository
	Cache    cache.Cache
	Events   events.Publisher
	Metrics  *metrics.Metrics
}

func (d Deps) withDefaults() Deps {
	if d.Cache == nil {
		d.Cache = cache.Noop{}
	}
	if d.Events == nil {
		d.Events = events.LogPublisher{}
	}
	return d
}

// OrderService оформление заказа из корзины и жизненный цикл статусов
type OrderService struct {
	orders    repository.OrderRepository
	carts     repository.CartRepository
	products  repository.ProductRepository
	validator *CartValidator
	ledger    *InventoryLedger
	cache     cache.Cache
	events    events.Publisher
	metrics   *metrics.Metrics
	reconcile reconciler
	validate  *validator.Validate
	currency  string
	newNumber NumberGenerator
	now       func() time.Time
}

func NewOrderService(d Deps, currency string) *OrderService {
	d = d.withDefaults()
	return &OrderService{
		orders:    d.Orders,
		carts:     d.Carts,
		products:  d.Products,
		validator: NewCartValidator(d.Products),
		ledger:    NewInventoryLedger(d.Products, d.Metrics),
		cache:     d.Cache,
		events:    d.Events,
		metrics:   d.Metrics,
		reconcile: reconciler{events: d.Events, metrics: d.Metrics},
		validate:  validator.New(),
		currency:  currency,
		newNumber: NewOrderNumber,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Checkout результат оформления; Warnings не отменяют заказ
type Checkout struct {
	Order       *domain.Order `json:"order"`
	CartCleared bool          `json:"cart_cleared"`
	Warnings    []string      `json:"warnings,omitempty"`
}

// CreateFromCart turns the user's cart into a pending order. Stock for every
// line is reserved first; any failure after that releases what was taken.
func (s *OrderService) CreateFromCart(ctx context.Context, userID string, addr domain.ShippingAddress, method domain.PaymentMethod) (*Checkout, error) {
	if userID == "" {
		return nil, ErrForbidden
	}
	if !method.Valid() {
		return nil, validationf("unknown payment method %q", method)
	}
	if err := s.validate.Struct(addr); err != nil {
		return nil, validationf("shipping address: %v", err)
	}

	snapshot, err := s.carts.Snapshot(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("read cart: %w", err)
	}
	lines, err := s.validator.Validate(ctx, snapshot)
	if err != nil {
		return nil, err
	}

	orderID := uuid.NewString()
	sg := &saga{onError: func(step string, err error) {
		s.reconcile.report(ctx, orderID, "", step, err)
	}}
	for _, l := range lines {
		if err := s.ledger.Reserve(ctx, l.ProductID, l.Quantity); err != nil {
			sg.compensate(ctx)
			var se *StockError
			if errors.As(err, &se) && se.Name == "" {
				se.Name = l.Name
			}
			return nil, err
		}
		productID, qty := l.ProductID, l.Quantity
		sg.add(fmt.Sprintf("release product %d x%d", productID, qty), func(ctx context.Context) error {
			return s.ledger.Release(ctx, productID, qty)
		})
	}

	o := s.assemble(orderID, userID, lines, addr, method)
	if err := s.persist(ctx, o); err != nil {
		sg.compensate(ctx)
		return nil, err
	}

	res := &Checkout{Order: o, CartCleared: true}
	if err := s.carts.Clear(ctx, userID); err != nil {
		res.CartCleared = false
		res.Warnings = append(res.Warnings, "order placed but the cart could not be cleared")
		logging.Warn(logging.Fields{Component: "orders", OrderID: o.ID, UserID: userID, Step: "clear_cart", Err: err})
	}

	s.invalidate(ctx, o)
	s.metrics.OrderCreated()
	s.emit(ctx, events.TypeOrderCreated, o)
	logging.Log(logging.Fields{Component: "orders", OrderID: o.ID, OrderNumber: o.OrderNumber, UserID: userID, Step: "create", Status: string(o.Status)})
	return res, nil
}

func (s *OrderService) assemble(id, userID string, lines []ValidatedLine, addr domain.ShippingAddress, method domain.PaymentMethod) *domain.Order {
	items := make([]domain.OrderLine, 0, len(lines))
	total := decimal.Zero
	for _, l := range lines {
		ol := domain.OrderLine{ProductID: l.ProductID, Name: l.Name, Quantity: l.Quantity, Price: l.Price}
		total = total.Add(ol.Subtotal())
		items = append(items, ol)
	}
	payStatus := domain.PaymentStatusPending
	if method == domain.PaymentMethodCashOnDelivery {
		payStatus = domain.PaymentStatusCompleted
	}
	return &domain.Order{
		ID:              id,
		UserID:          userID,
		Items:           items,
		TotalAmount:     total,
		Currency:        s.currency,
		Status:          domain.OrderStatusPending,
		Payment:         domain.PaymentDetails{Method: method, Status: payStatus},
		ShippingAddress: addr,
	}
}

// persist allocates an order number, retrying when storage reports it taken.
func (s *OrderService) persist(ctx context.Context, o *domain.Order) error {
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		o.OrderNumber = s.newNumber(s.now())
		err := s.orders.Create(ctx, o)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return fmt.Errorf("save order: %w", err)
		}
		logging.Debug(logging.Fields{Component: "orders", OrderID: o.ID, OrderNumber: o.OrderNumber, Step: "number_collision"})
	}
	return fmt.Errorf("allocate order number: %w", ErrConflict)
}

// Get returns the order to its owner or to an admin.
func (s *OrderService) Get(ctx context.Context, id string, actor domain.Actor) (*domain.Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && o.UserID != actor.UserID {
		return nil, ErrForbidden
	}
	return o, nil
}

// ListQuery параметры постраничной выборки
type ListQuery struct {
	UserID    string
	Status    string
	SortBy    string
	SortOrder string
	Page      int
	Limit     int
}

// OrderPage страница заказов
type OrderPage struct {
	Orders      []domain.Order `json:"orders"`
	CurrentPage int            `json:"currentPage"`
	TotalPages  int            `json:"totalPages"`
	TotalOrders int            `json:"totalOrders"`
	HasNextPage bool           `json:"hasNextPage"`
	HasPrevPage bool           `json:"hasPrevPage"`
}

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// ListForUser lists the caller's own orders, newest first.
func (s *OrderService) ListForUser(ctx context.Context, actor domain.Actor, status string, page, limit int) (*OrderPage, error) {
	if actor.UserID == "" {
		return nil, ErrForbidden
	}
	return s.list(ctx, ListQuery{UserID: actor.UserID, Status: status, Page: page, Limit: limit})
}

// ListAll is the admin view over every order.
func (s *OrderService) ListAll(ctx context.Context, actor domain.Actor, q ListQuery) (*OrderPage, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	return s.list(ctx, q)
}

func (s *OrderService) list(ctx context.Context, q ListQuery) (*OrderPage, error) {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = defaultPageSize
	}
	if q.Limit > maxPageSize {
		q.Limit = maxPageSize
	}
	if q.Page-1 > math.MaxInt32/q.Limit {
		return nil, validationf("page %d is out of range", q.Page)
	}
	f := repository.OrderFilter{
		UserID:   q.UserID,
		SortBy:   repository.SortByCreatedAt,
		SortDesc: true,
		Offset:   (q.Page - 1) * q.Limit,
		Limit:    q.Limit,
	}
	if q.Status != "" {
		st, ok := domain.ParseOrderStatus(q.Status)
		if !ok {
			return nil, validationf("unknown status %q", q.Status)
		}
		f.Status = st
	}
	if q.SortBy != "" {
		if !repository.ValidSortKey(q.SortBy) {
			return nil, validationf("cannot sort by %q", q.SortBy)
		}
		f.SortBy = q.SortBy
	}
	switch strings.ToLower(q.SortOrder) {
	case "", "desc":
	case "asc":
		f.SortDesc = false
	default:
		return nil, validationf("sort order must be asc or desc")
	}

	orders, total, err := s.orders.List(ctx, f)
	if err != nil {
		return nil, err
	}
	pages := int(math.Ceil(float64(total) / float64(q.Limit)))
	return &OrderPage{
		Orders:      orders,
		CurrentPage: q.Page,
		TotalPages:  pages,
		TotalOrders: total,
		HasNextPage: q.Page < pages,
		HasPrevPage: q.Page > 1,
	}, nil
}

// Cancel moves the owner's order to cancelled and puts its stock back.
// A second cancel fails with ErrInvalidTransition and changes nothing.
func (s *OrderService) Cancel(ctx context.Context, id string, actor domain.Actor) (*domain.Order, error) {
	o, _, err := updateOrder(ctx, s.orders, id, func(o *domain.Order) error {
		if o.UserID != actor.UserID {
			return ErrForbidden
		}
		if !o.Status.Cancellable() {
			return fmt.Errorf("%w: order is %s", ErrInvalidTransition, o.Status)
		}
		o.Status = domain.OrderStatusCancelled
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterCancel(ctx, o)
	return o, nil
}

func (s *OrderService) afterCancel(ctx context.Context, o *domain.Order) {
	// the order is already cancelled; a failed release cannot be retried here
	ctx = context.WithoutCancel(ctx)
	for _, l := range o.Items {
		if err := s.ledger.Release(ctx, l.ProductID, l.Quantity); err != nil {
			s.reconcile.report(ctx, o.ID, o.OrderNumber, fmt.Sprintf("release product %d x%d", l.ProductID, l.Quantity), err)
		}
	}
	s.invalidate(ctx, o)
	s.metrics.OrderCancelled()
	s.emit(ctx, events.TypeOrderCancelled, o)
	logging.Log(logging.Fields{Component: "orders", OrderID: o.ID, OrderNumber: o.OrderNumber, Step: "cancel", Status: string(o.Status)})
}

// TrackingUpdate поля отслеживания; пустые значения не затирают сохранённые
type TrackingUpdate struct {
	Carrier           string     `json:"carrier"`
	TrackingNumber    string     `json:"tracking_number"`
	EstimatedDelivery *time.Time `json:"estimated_delivery"`
}

// UpdateStatus is the admin transition. Moving backwards is rejected; moving
// to cancelled releases stock exactly like Cancel.
func (s *OrderService) UpdateStatus(ctx context.Context, id string, actor domain.Actor, status string, tracking *TrackingUpdate) (*domain.Order, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	next, ok := domain.ParseOrderStatus(status)
	if !ok {
		return nil, validationf("unknown status %q", status)
	}

	var prev domain.OrderStatus
	o, _, err := updateOrder(ctx, s.orders, id, func(o *domain.Order) error {
		if !o.Status.CanMoveTo(next) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, next)
		}
		prev = o.Status
		o.Status = next
		mergeTracking(o, tracking)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if next == domain.OrderStatusCancelled {
		s.afterCancel(ctx, o)
		return o, nil
	}
	if prev != next {
		s.emit(ctx, events.TypeOrderStatusChanged, o)
	}
	logging.Log(logging.Fields{Component: "orders", OrderID: o.ID, OrderNumber: o.OrderNumber, UserID: actor.UserID, Step: "update_status", Status: string(next)})
	return o, nil
}

func mergeTracking(o *domain.Order, u *TrackingUpdate) {
	if u == nil {
		return
	}
	t := domain.TrackingInfo{}
	if o.Tracking != nil {
		t = *o.Tracking
	}
	if u.Carrier != "" {
		t.Carrier = u.Carrier
	}
	if u.TrackingNumber != "" {
		t.TrackingNumber = u.TrackingNumber
	}
	if u.EstimatedDelivery != nil {
		d := *u.EstimatedDelivery
		t.EstimatedDelivery = &d
	}
	o.Tracking = &t
}

// TrackingProjection публичное представление для отслеживания
type TrackingProjection struct {
	OrderNumber       string             `json:"orderNumber"`
	Status            domain.OrderStatus `json:"status"`
	StatusMessage     string             `json:"statusMessage"`
	Carrier           string             `json:"carrier,omitempty"`
	TrackingNumber    string             `json:"trackingNumber,omitempty"`
	EstimatedDelivery *time.Time         `json:"estimatedDelivery,omitempty"`
	CreatedAt         time.Time          `json:"createdAt"`
	UpdatedAt         time.Time          `json:"updatedAt"`
}

// Track is public. Carrier details appear only once the order has shipped.
func (s *OrderService) Track(ctx context.Context, orderNumber string) (*TrackingProjection, error) {
	o, err := s.orders.GetByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	p := &TrackingProjection{
		OrderNumber:   o.OrderNumber,
		Status:        o.Status,
		StatusMessage: o.Status.Message(),
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
	if o.Status.Shipped() && o.Tracking != nil {
		p.Carrier = o.Tracking.Carrier
		p.TrackingNumber = o.Tracking.TrackingNumber
		p.EstimatedDelivery = o.Tracking.EstimatedDelivery
	}
	return p, nil
}

func (s *OrderService) invalidate(ctx context.Context, o *domain.Order) {
	patterns := []string{cache.ProductListPattern}
	seen := map[int64]bool{}
	for _, l := range o.Items {
		patterns = append(patterns, cache.ProductKey(l.ProductID))
		p, err := s.products.GetByID(ctx, l.ProductID)
		if err != nil || seen[p.CategoryID] {
			continue
		}
		seen[p.CategoryID] = true
		patterns = append(patterns, cache.CategoryPattern(p.CategoryID))
	}
	cache.InvalidateAll(ctx, s.cache, patterns...)
}

func (s *OrderService) emit(ctx context.Context, typ string, o *domain.Order) {
	e := events.New(typ, o.ID)
	e.OrderNumber = o.OrderNumber
	e.UserID = o.UserID
	e.Status = string(o.Status)
	e.Data = map[string]any{"total_amount": o.TotalAmount.String(), "currency": o.Currency}
	events.Emit(ctx, s.events, e)
}

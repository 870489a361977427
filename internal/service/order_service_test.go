package service

import (
	"context"
	"errors"
	"math"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"storefront/internal/cache"
	"storefront/internal/domain"
	"storefront/internal/events"
	"storefront/internal/metrics"
	"storefront/internal/repository"
)

var testAddr = domain.ShippingAddress{Street: "1 Main St", City: "Pune", State: "MH", ZipCode: "411001", Country: "IN"}

var (
	alice = domain.Actor{UserID: "alice", Role: domain.RoleCustomer}
	bob   = domain.Actor{UserID: "bob", Role: domain.RoleCustomer}
	admin = domain.Actor{UserID: "root", Role: domain.RoleAdmin}
)

type fixture struct {
	store    *repository.MemoryStore
	orders   *repository.MemoryOrders
	carts    *repository.MemoryCarts
	cache    *cache.Memory
	events   *events.Recorder
	metrics  *metrics.Metrics
	products *ProductService
	svc      *OrderService
}

func setup(t *testing.T) *fixture {
	t.Helper()
	return setupWith(t, nil)
}

// setupWith lets a test wrap the product repository.
func setupWith(t *testing.T, wrap func(*repository.MemoryStore) repository.ProductRepository) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	f := &fixture{
		store:   store,
		orders:  repository.NewMemoryOrders(store),
		carts:   repository.NewMemoryCarts(store),
		cache:   cache.NewMemory(),
		events:  events.NewRecorder(),
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	var products repository.ProductRepository = store
	if wrap != nil {
		products = wrap(store)
	}
	f.products = NewProductService(store, f.cache)
	f.svc = NewOrderService(f.deps(products), "INR")
	return f
}

func (f *fixture) deps(products repository.ProductRepository) Deps {
	return Deps{Products: products, Orders: f.orders, Carts: f.carts, Cache: f.cache, Events: f.events, Metrics: f.metrics}
}

func (f *fixture) product(t *testing.T, name, price string, stock int64) *domain.Product {
	t.Helper()
	p, err := f.products.Create(context.Background(), domain.Product{
		Name: name, SKU: "SKU-" + name, CategoryID: 7, Price: decimal.RequireFromString(price), Stock: stock, Active: true,
	})
	if err != nil {
		t.Fatalf("create product %s: %v", name, err)
	}
	return p
}

func (f *fixture) stock(t *testing.T, id int64) int64 {
	t.Helper()
	p, err := f.store.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	return p.Stock
}

func (f *fixture) cart(t *testing.T, user string, lines ...domain.CartLine) {
	t.Helper()
	for _, l := range lines {
		if err := f.carts.SetLine(context.Background(), user, l); err != nil {
			t.Fatalf("cart: %v", err)
		}
	}
}

func (f *fixture) checkout(t *testing.T, user string, lines ...domain.CartLine) *domain.Order {
	t.Helper()
	f.cart(t, user, lines...)
	res, err := f.svc.CreateFromCart(context.Background(), user, testAddr, domain.PaymentMethodOnline)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	return res.Order
}

func line(id, qty int64) domain.CartLine { return domain.CartLine{ProductID: id, Quantity: qty} }

var orderNumberRe = regexp.MustCompile(`^ORD-\d{8}-[0-9A-F]{12}$`)

func TestCreateFromCart(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	a := f.product(t, "A", "10.50", 5)
	b := f.product(t, "B", "20", 2)
	f.cart(t, "alice", line(a.ID, 3), line(b.ID, 2))

	res, err := f.svc.CreateFromCart(ctx, "alice", testAddr, domain.PaymentMethodOnline)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	o := res.Order
	if o.Status != domain.OrderStatusPending || o.Payment.Status != domain.PaymentStatusPending {
		t.Fatalf("unexpected statuses %s/%s", o.Status, o.Payment.Status)
	}
	if !o.TotalAmount.Equal(decimal.RequireFromString("71.50")) {
		t.Fatalf("total expected 71.50, got %s", o.TotalAmount)
	}
	if !orderNumberRe.MatchString(o.OrderNumber) {
		t.Fatalf("bad order number %q", o.OrderNumber)
	}
	if f.stock(t, a.ID) != 2 || f.stock(t, b.ID) != 0 {
		t.Fatalf("stock not reserved: %d %d", f.stock(t, a.ID), f.stock(t, b.ID))
	}
	if lines, _ := f.carts.Snapshot(ctx, "alice"); len(lines) != 0 || !res.CartCleared {
		t.Fatalf("cart must be cleared")
	}
	if got := f.events.Types(); len(got) != 1 || got[0] != events.TypeOrderCreated {
		t.Fatalf("events: %v", got)
	}
	if v := testutil.ToFloat64(f.metrics.OrdersCreated); v != 1 {
		t.Fatalf("orders_created=%v", v)
	}
}

func TestCreateFromCart_CashOnDeliveryIsPaid(t *testing.T) {
	f := setup(t)
	a := f.product(t, "A", "5", 1)
	f.cart(t, "alice", line(a.ID, 1))
	res, err := f.svc.CreateFromCart(context.Background(), "alice", testAddr, domain.PaymentMethodCashOnDelivery)
	if err != nil {
		t.Fatal(err)
	}
	if res.Order.Payment.Status != domain.PaymentStatusCompleted || res.Order.Status != domain.OrderStatusPending {
		t.Fatalf("unexpected %s/%s", res.Order.Status, res.Order.Payment.Status)
	}
}

func TestCreateFromCart_EmptyCart(t *testing.T) {
	f := setup(t)
	_, err := f.svc.CreateFromCart(context.Background(), "alice", testAddr, domain.PaymentMethodOnline)
	if !errors.Is(err, ErrEmptyCart) || !errors.Is(err, ErrValidation) {
		t.Fatalf("expected empty cart validation error, got %v", err)
	}
	if Kind(err) != "empty_cart" {
		t.Fatalf("kind %q", Kind(err))
	}
}

func TestCreateFromCart_BadInput(t *testing.T) {
	f := setup(t)
	a := f.product(t, "A", "5", 1)
	f.cart(t, "alice", line(a.ID, 1))

	if _, err := f.svc.CreateFromCart(context.Background(), "alice", testAddr, "crypto"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for method, got %v", err)
	}
	bad := testAddr
	bad.City = ""
	if _, err := f.svc.CreateFromCart(context.Background(), "alice", bad, domain.PaymentMethodOnline); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for address, got %v", err)
	}
	if f.stock(t, a.ID) != 1 {
		t.Fatalf("stock must be untouched")
	}
}

func TestCreateFromCart_UnavailableProduct(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	a := f.product(t, "A", "5", 3)
	b := f.product(t, "B", "5", 3)
	if _, err := f.products.SetActive(ctx, b.ID, false); err != nil {
		t.Fatal(err)
	}
	f.cart(t, "alice", line(a.ID, 1), line(b.ID, 1))

	_, err := f.svc.CreateFromCart(ctx, "alice", testAddr, domain.PaymentMethodOnline)
	var ue *UnavailableError
	if !errors.As(err, &ue) || !errors.Is(err, ErrProductUnavailable) || ue.ProductID != b.ID {
		t.Fatalf("expected unavailable %d, got %v", b.ID, err)
	}
	if f.stock(t, a.ID) != 3 {
		t.Fatalf("nothing may be reserved")
	}

	f.cart(t, "bob", line(999, 1))
	if _, err := f.svc.CreateFromCart(ctx, "bob", testAddr, domain.PaymentMethodOnline); !errors.Is(err, ErrProductUnavailable) {
		t.Fatalf("missing product must be unavailable, got %v", err)
	}
}

func TestCreateFromCart_InsufficientStock(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	a := f.product(t, "A", "5", 3)
	f.cart(t, "alice", line(a.ID, 4))

	_, err := f.svc.CreateFromCart(ctx, "alice", testAddr, domain.PaymentMethodOnline)
	var se *StockError
	if !errors.As(err, &se) {
		t.Fatalf("expected stock error, got %v", err)
	}
	if se.Name != "A" || se.Available != 3 || se.Requested != 4 {
		t.Fatalf("unexpected details %+v", se)
	}
	if f.stock(t, a.ID) != 3 {
		t.Fatalf("stock changed")
	}
	if _, total, _ := f.orders.List(ctx, repository.OrderFilter{}); total != 0 {
		t.Fatalf("no order may be created")
	}
}

// raceProducts lets validation pass and then loses the reservation race on one product.
type raceProducts struct {
	*repository.MemoryStore
	loseOn      int64
	failRelease bool
}

func (r *raceProducts) Reserve(ctx context.Context, id, qty int64) (int64, error) {
	if id == r.loseOn {
		return 0, repository.ErrInsufficientStock
	}
	return r.MemoryStore.Reserve(ctx, id, qty)
}

func (r *raceProducts) Release(ctx context.Context, id, qty int64) error {
	if r.failRelease {
		return errors.New("storage offline")
	}
	return r.MemoryStore.Release(ctx, id, qty)
}

func TestCreateFromCart_PartialReservationIsReleased(t *testing.T) {
	ctx := context.Background()
	var race *raceProducts
	f := setupWith(t, func(s *repository.MemoryStore) repository.ProductRepository {
		race = &raceProducts{MemoryStore: s}
		return race
	})
	a := f.product(t, "A", "1", 5)
	b := f.product(t, "B", "1", 5)
	c := f.product(t, "C", "1", 5)
	race.loseOn = c.ID
	f.cart(t, "alice", line(a.ID, 2), line(b.ID, 3), line(c.ID, 1))

	_, err := f.svc.CreateFromCart(ctx, "alice", testAddr, domain.PaymentMethodOnline)
	var se *StockError
	if !errors.As(err, &se) || se.ProductID != c.ID {
		t.Fatalf("expected stock error for C, got %v", err)
	}
	if f.stock(t, a.ID) != 5 || f.stock(t, b.ID) != 5 {
		t.Fatalf("reservations not released: %d %d", f.stock(t, a.ID), f.stock(t, b.ID))
	}
	if lines, _ := f.carts.Snapshot(ctx, "alice"); len(lines) != 3 {
		t.Fatalf("cart must survive a failed checkout")
	}
}

func TestCreateFromCart_CompensationFailureIsReported(t *testing.T) {
	var race *raceProducts
	f := setupWith(t, func(s *repository.MemoryStore) repository.ProductRepository {
		race = &raceProducts{MemoryStore: s, failRelease: true}
		return race
	})
	a := f.product(t, "A", "1", 5)
	b := f.product(t, "B", "1", 5)
	race.loseOn = b.ID
	f.cart(t, "alice", line(a.ID, 2), line(b.ID, 1))

	if _, err := f.svc.CreateFromCart(context.Background(), "alice", testAddr, domain.PaymentMethodOnline); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected stock error, got %v", err)
	}
	if v := testutil.ToFloat64(f.metrics.CompensationFailures); v != 1 {
		t.Fatalf("compensation failures=%v", v)
	}
	got := f.events.Types()
	if len(got) != 1 || got[0] != events.TypeReconciliationRequired {
		t.Fatalf("expected reconciliation event, got %v", got)
	}
}

func TestCreateFromCart_OrderNumberCollision(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	a := f.product(t, "A", "1", 10)
	if err := f.orders.Create(ctx, &domain.Order{ID: "existing", OrderNumber: "ORD-DUP", UserID: "bob"}); err != nil {
		t.Fatal(err)
	}

	calls := 0
	f.svc.newNumber = func(time.Time) string {
		calls++
		if calls < 3 {
			return "ORD-DUP"
		}
		return "ORD-FRESH"
	}
	o := f.checkout(t, "alice", line(a.ID, 1))
	if o.OrderNumber != "ORD-FRESH" || calls != 3 {
		t.Fatalf("number=%s calls=%d", o.OrderNumber, calls)
	}

	f.svc.newNumber = func(time.Time) string { return "ORD-DUP" }
	f.cart(t, "alice", line(a.ID, 2))
	_, err := f.svc.CreateFromCart(ctx, "alice", testAddr, domain.PaymentMethodOnline)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict after exhausting attempts, got %v", err)
	}
	if f.stock(t, a.ID) != 9 {
		t.Fatalf("stock must be restored after failed persist, got %d", f.stock(t, a.ID))
	}
}

func TestCreateFromCart_NoOversellUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	p := f.product(t, "Hot", "99", 5)
	const buyers = 20
	for i := 0; i < buyers; i++ {
		f.cart(t, userName(i), line(p.ID, 1))
	}

	var ok, short atomic.Int64
	var g errgroup.Group
	for i := 0; i < buyers; i++ {
		user := userName(i)
		g.Go(func() error {
			_, err := f.svc.CreateFromCart(ctx, user, testAddr, domain.PaymentMethodOnline)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrInsufficientStock):
				short.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok.Load() != 5 || short.Load() != buyers-5 {
		t.Fatalf("ok=%d short=%d", ok.Load(), short.Load())
	}
	if f.stock(t, p.ID) != 0 {
		t.Fatalf("stock=%d", f.stock(t, p.ID))
	}
}

func userName(i int) string { return "user-" + string(rune('a'+i)) }

func TestCreateFromCart_InvalidatesCache(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	a := f.product(t, "A", "1", 5)
	if _, err := f.products.GetByID(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.products.List(ctx, repository.ProductFilter{}); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := f.cache.Get(ctx, cache.ProductKey(a.ID)); !ok {
		t.Fatalf("product should be cached")
	}

	f.checkout(t, "alice", line(a.ID, 2))
	if _, ok, _ := f.cache.Get(ctx, cache.ProductKey(a.ID)); ok {
		t.Fatalf("product key must be invalidated")
	}
	got, err := f.products.GetByID(ctx, a.ID)
	if err != nil || got.Stock != 3 {
		t.Fatalf("fresh read expected stock 3, got %v %v", got, err)
	}
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	a := f.product(t, "A", "10", 5)
	b := f.product(t, "B", "20", 2)
	o := f.checkout(t, "alice", line(a.ID, 3), line(b.ID, 2))

	if _, err := f.svc.Cancel(ctx, o.ID, bob); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	got, err := f.svc.Cancel(ctx, o.ID, alice)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled")
	}
	if f.stock(t, a.ID) != 5 || f.stock(t, b.ID) != 2 {
		t.Fatalf("stock not restored: %d %d", f.stock(t, a.ID), f.stock(t, b.ID))
	}

	if _, err := f.svc.Cancel(ctx, o.ID, alice); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second cancel must be rejected, got %v", err)
	}
	if f.stock(t, a.ID) != 5 || f.stock(t, b.ID) != 2 {
		t.Fatalf("second cancel must not release again")
	}
	if _, err := f.svc.Cancel(ctx, "missing", alice); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCancel_AfterShipped(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	a := f.product(t, "A", "10", 5)
	o := f.checkout(t, "alice", line(a.ID, 1))
	if _, err := f.svc.UpdateStatus(ctx, o.ID, admin, "shipped", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Cancel(ctx, o.ID, alice); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if f.stock(t, a.ID) != 4 {
		t.Fatalf("stock must stay reserved")
	}
}

func TestCancel_ConcurrentReleasesOnce(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	a := f.product(t, "A", "10", 5)
	o := f.checkout(t, "alice", line(a.ID, 4))

	var ok atomic.Int64
	var g errgroup.Group
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			_, err := f.svc.Cancel(ctx, o.ID, alice)
			if err == nil {
				ok.Add(1)
				return nil
			}
			if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrConflict) {
				return nil
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if ok.Load() != 1 {
		t.Fatalf("exactly one cancel must win, got %d", ok.Load())
	}
	if f.stock(t, a.ID) != 5 {
		t.Fatalf("stock released more than once: %d", f.stock(t, a.ID))
	}
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	a := f.product(t, "A", "10", 5)
	o := f.checkout(t, "alice", line(a.ID, 1))

	if _, err := f.svc.UpdateStatus(ctx, o.ID, alice, "shipped", nil); !errors.Is(err, ErrForbidden) {
		t.Fatalf("customer must not update status, got %v", err)
	}
	if _, err := f.svc.UpdateStatus(ctx, o.ID, admin, "lost", nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	eta := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	got, err := f.svc.UpdateStatus(ctx, o.ID, admin, "shipped", &TrackingUpdate{Carrier: "DHL", TrackingNumber: "T1", EstimatedDelivery: &eta})
	if err != nil {
		t.Fatalf("ship: %v", err)
	}
	if got.Status != domain.OrderStatusShipped || got.Tracking.Carrier != "DHL" {
		t.Fatalf("unexpected %+v", got)
	}

	got, err = f.svc.UpdateStatus(ctx, o.ID, admin, "shipped", &TrackingUpdate{TrackingNumber: "T2"})
	if err != nil {
		t.Fatalf("amend: %v", err)
	}
	if got.Tracking.Carrier != "DHL" || got.Tracking.TrackingNumber != "T2" || got.Tracking.EstimatedDelivery == nil {
		t.Fatalf("merge lost fields: %+v", got.Tracking)
	}

	if _, err := f.svc.UpdateStatus(ctx, o.ID, admin, "delivered", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.UpdateStatus(ctx, o.ID, admin, "pending", nil); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("delivered -> pending must be rejected, got %v", err)
	}
	stored, _ := f.orders.GetByID(ctx, o.ID)
	if stored.Status != domain.OrderStatusDelivered {
		t.Fatalf("rejected transition changed status to %s", stored.Status)
	}
}

func TestUpdateStatus_CancelReleasesStock(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	a := f.product(t, "A", "10", 5)
	o := f.checkout(t, "alice", line(a.ID, 2))
	if _, err := f.svc.UpdateStatus(ctx, o.ID, admin, "processing", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.UpdateStatus(ctx, o.ID, admin, "cancelled", nil); err != nil {
		t.Fatal(err)
	}
	if f.stock(t, a.ID) != 5 {
		t.Fatalf("stock=%d", f.stock(t, a.ID))
	}
	if _, err := f.svc.UpdateStatus(ctx, o.ID, admin, "cancelled", nil); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("cancelled is terminal, got %v", err)
	}
	if f.stock(t, a.ID) != 5 {
		t.Fatalf("stock released twice")
	}
}

func TestTrack(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	a := f.product(t, "A", "10", 5)
	o := f.checkout(t, "alice", line(a.ID, 1))

	if _, err := f.svc.UpdateStatus(ctx, o.ID, admin, "processing", &TrackingUpdate{Carrier: "DHL", TrackingNumber: "T1"}); err != nil {
		t.Fatal(err)
	}
	p, err := f.svc.Track(ctx, o.OrderNumber)
	if err != nil {
		t.Fatal(err)
	}
	if p.Carrier != "" || p.TrackingNumber != "" || p.StatusMessage != "Order is being prepared" {
		t.Fatalf("tracking leaked before shipping: %+v", p)
	}

	if _, err := f.svc.UpdateStatus(ctx, o.ID, admin, "shipped", nil); err != nil {
		t.Fatal(err)
	}
	p, _ = f.svc.Track(ctx, o.OrderNumber)
	if p.Carrier != "DHL" || p.TrackingNumber != "T1" || p.StatusMessage != "Order has been shipped" {
		t.Fatalf("unexpected projection %+v", p)
	}

	if _, err := f.svc.Track(ctx, "ORD-NOPE"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGetAndList(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	a := f.product(t, "A", "1", 100)
	var last *domain.Order
	for i := 0; i < 3; i++ {
		last = f.checkout(t, "alice", line(a.ID, 1))
	}
	f.checkout(t, "bob", line(a.ID, 1))

	if _, err := f.svc.Get(ctx, last.ID, bob); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := f.svc.Get(ctx, last.ID, admin); err != nil {
		t.Fatalf("admin must see any order: %v", err)
	}

	page, err := f.svc.ListForUser(ctx, alice, "", 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if page.TotalOrders != 3 || page.TotalPages != 2 || len(page.Orders) != 2 || !page.HasNextPage || page.HasPrevPage {
		t.Fatalf("unexpected page %+v", page)
	}
	page, _ = f.svc.ListForUser(ctx, alice, "", 2, 2)
	if len(page.Orders) != 1 || page.HasNextPage || !page.HasPrevPage {
		t.Fatalf("unexpected second page %+v", page)
	}

	if _, err := f.svc.Cancel(ctx, last.ID, alice); err != nil {
		t.Fatal(err)
	}
	page, _ = f.svc.ListForUser(ctx, alice, "cancelled", 1, 10)
	if page.TotalOrders != 1 || page.Orders[0].ID != last.ID {
		t.Fatalf("status filter failed: %+v", page)
	}

	if _, err := f.svc.ListAll(ctx, alice, ListQuery{}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	all, err := f.svc.ListAll(ctx, admin, ListQuery{SortBy: "totalAmount", SortOrder: "asc"})
	if err != nil || all.TotalOrders != 4 {
		t.Fatalf("admin list: %+v %v", all, err)
	}
	if _, err := f.svc.ListAll(ctx, admin, ListQuery{SortBy: "password"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for sort key, got %v", err)
	}
}

func TestList_HugePageRejected(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	a := f.product(t, "A", "1", 5)
	f.checkout(t, "alice", line(a.ID, 1))

	for _, page := range []int{math.MaxInt, math.MaxInt/10 + 2, math.MaxInt32} {
		if _, err := f.svc.ListForUser(ctx, alice, "", page, 10); !errors.Is(err, ErrValidation) {
			t.Fatalf("page %d: expected validation error, got %v", page, err)
		}
	}
	if _, err := f.svc.ListAll(ctx, admin, ListQuery{Page: math.MaxInt, Limit: 100}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	page, err := f.svc.ListForUser(ctx, alice, "", 1000, 10)
	if err != nil || len(page.Orders) != 0 || page.TotalOrders != 1 {
		t.Fatalf("page past the end must be empty: %+v %v", page, err)
	}
}

type stuckCarts struct {
	*repository.MemoryCarts
}

func (stuckCarts) Clear(context.Context, string) error { return errors.New("cart store unavailable") }

func TestCreateFromCart_CartClearFails(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	a := f.product(t, "A", "10", 5)
	f.cart(t, "alice", line(a.ID, 2))

	deps := f.deps(f.store)
	deps.Carts = stuckCarts{f.carts}
	svc := NewOrderService(deps, "INR")

	res, err := svc.CreateFromCart(ctx, "alice", testAddr, domain.PaymentMethodOnline)
	if err != nil {
		t.Fatalf("checkout must succeed: %v", err)
	}
	if res.CartCleared || len(res.Warnings) != 1 {
		t.Fatalf("expected one warning and an uncleared cart, got %+v", res)
	}
	stored, err := f.orders.GetByID(ctx, res.Order.ID)
	if err != nil || stored.Status != domain.OrderStatusPending {
		t.Fatalf("order must stand: %+v %v", stored, err)
	}
	if got := f.stock(t, a.ID); got != 3 {
		t.Fatalf("stock must stay reserved, got %d", got)
	}
	lines, _ := f.carts.Snapshot(ctx, "alice")
	if len(lines) != 1 {
		t.Fatalf("cart should still hold the line, got %v", lines)
	}
}

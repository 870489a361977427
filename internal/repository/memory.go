package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"storefront/internal/domain"
)

// MemoryStore объединённое in-memory хранилище: товары, заказы, корзины
type MemoryStore struct {
	mu           sync.RWMutex
	nextProdID   int64
	productsByID map[int64]domain.Product
	ordersByID   map[string]domain.Order
	orderIDByNum map[string]string
	cartsByUser  map[string][]domain.CartLine
	now          func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextProdID:   1,
		productsByID: make(map[int64]domain.Product),
		ordersByID:   make(map[string]domain.Order),
		orderIDByNum: make(map[string]string),
		cartsByUser:  make(map[string][]domain.CartLine),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Ensure interfaces
var (
	_ ProductRepository = (*MemoryStore)(nil)
	_ CartRepository    = (*MemoryCarts)(nil)
	_ OrderRepository   = (*MemoryOrders)(nil)
)

// ProductRepository implementation
func (m *MemoryStore) Create(ctx context.Context, p *domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = m.nextProdID
	m.nextProdID++
	p.CreatedAt = m.now()
	p.UpdatedAt = p.CreatedAt
	m.productsByID[p.ID] = *p
	return nil
}

func (m *MemoryStore) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.productsByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	// return copy
	cp := p
	return &cp, nil
}

func (m *MemoryStore) List(ctx context.Context, f ProductFilter) ([]domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Product, 0)
	for _, p := range m.productsByID {
		if f.OnlyActive && !p.Active {
			continue
		}
		if !containsIgnoreCase(p.Name, f.NameSubstring) {
			continue
		}
		if f.CategoryID != nil && p.CategoryID != *f.CategoryID {
			continue
		}
		if f.MinPrice != nil && p.Price.LessThan(*f.MinPrice) {
			continue
		}
		if f.MaxPrice != nil && p.Price.GreaterThan(*f.MaxPrice) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Reserve: check and decrement happen under one write lock.
func (m *MemoryStore) Reserve(ctx context.Context, id, qty int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.productsByID[id]
	if !ok {
		return 0, ErrNotFound
	}
	if p.Stock < qty {
		return p.Stock, ErrInsufficientStock
	}
	p.Stock -= qty
	p.UpdatedAt = m.now()
	m.productsByID[id] = p
	return p.Stock, nil
}

func (m *MemoryStore) Release(ctx context.Context, id, qty int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.productsByID[id]
	if !ok {
		return ErrNotFound
	}
	p.Stock += qty
	p.UpdatedAt = m.now()
	m.productsByID[id] = p
	return nil
}

func (m *MemoryStore) SetActive(ctx context.Context, id int64, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.productsByID[id]
	if !ok {
		return ErrNotFound
	}
	p.Active = active
	p.UpdatedAt = m.now()
	m.productsByID[id] = p
	return nil
}

// OrderRepository implementation on wrapper type
type MemoryOrders struct{ store *MemoryStore }

func NewMemoryOrders(store *MemoryStore) *MemoryOrders { return &MemoryOrders{store: store} }

func (mo *MemoryOrders) Create(ctx context.Context, o *domain.Order) error {
	mo.store.mu.Lock()
	defer mo.store.mu.Unlock()
	if _, taken := mo.store.orderIDByNum[o.OrderNumber]; taken {
		return ErrConflict
	}
	if _, taken := mo.store.ordersByID[o.ID]; taken {
		return ErrConflict
	}
	o.CreatedAt = mo.store.now()
	o.UpdatedAt = o.CreatedAt
	o.Version = 1
	mo.store.ordersByID[o.ID] = o.Clone()
	mo.store.orderIDByNum[o.OrderNumber] = o.ID
	return nil
}

func (mo *MemoryOrders) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	mo.store.mu.RLock()
	defer mo.store.mu.RUnlock()
	o, ok := mo.store.ordersByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := o.Clone()
	return &cp, nil
}

func (mo *MemoryOrders) GetByNumber(ctx context.Context, number string) (*domain.Order, error) {
	mo.store.mu.RLock()
	defer mo.store.mu.RUnlock()
	id, ok := mo.store.orderIDByNum[number]
	if !ok {
		return nil, ErrNotFound
	}
	cp := mo.store.ordersByID[id].Clone()
	return &cp, nil
}

func (mo *MemoryOrders) Update(ctx context.Context, o *domain.Order) error {
	mo.store.mu.Lock()
	defer mo.store.mu.Unlock()
	cur, ok := mo.store.ordersByID[o.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != o.Version {
		return ErrConflict
	}
	o.Version++
	o.UpdatedAt = mo.store.now()
	mo.store.ordersByID[o.ID] = o.Clone()
	return nil
}

func (mo *MemoryOrders) List(ctx context.Context, f OrderFilter) ([]domain.Order, int, error) {
	mo.store.mu.RLock()
	matched := make([]domain.Order, 0)
	for _, o := range mo.store.ordersByID {
		if f.UserID != "" && o.UserID != f.UserID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		matched = append(matched, o.Clone())
	}
	mo.store.mu.RUnlock()

	less := orderLess(f.SortBy)
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if f.SortDesc {
			a, b = b, a
		}
		if less(a, b) {
			return true
		}
		if less(b, a) {
			return false
		}
		return a.OrderNumber < b.OrderNumber
	})

	total := len(matched)
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.Offset >= total {
		return []domain.Order{}, total, nil
	}
	end := total
	if f.Limit > 0 && f.Offset+f.Limit < total {
		end = f.Offset + f.Limit
	}
	return matched[f.Offset:end], total, nil
}

func orderLess(key string) func(a, b domain.Order) bool {
	switch key {
	case SortByUpdatedAt:
		return func(a, b domain.Order) bool { return a.UpdatedAt.Before(b.UpdatedAt) }
	case SortByTotalAmount:
		return func(a, b domain.Order) bool { return a.TotalAmount.LessThan(b.TotalAmount) }
	case SortByStatus:
		return func(a, b domain.Order) bool { return a.Status < b.Status }
	default:
		return func(a, b domain.Order) bool { return a.CreatedAt.Before(b.CreatedAt) }
	}
}

// MemoryCarts корзины поверх того же хранилища
type MemoryCarts struct{ store *MemoryStore }

func NewMemoryCarts(store *MemoryStore) *MemoryCarts { return &MemoryCarts{store: store} }

func (mc *MemoryCarts) Snapshot(ctx context.Context, userID string) ([]domain.CartLine, error) {
	mc.store.mu.RLock()
	defer mc.store.mu.RUnlock()
	return append([]domain.CartLine(nil), mc.store.cartsByUser[userID]...), nil
}

func (mc *MemoryCarts) SetLine(ctx context.Context, userID string, line domain.CartLine) error {
	mc.store.mu.Lock()
	defer mc.store.mu.Unlock()
	lines := mc.store.cartsByUser[userID]
	out := make([]domain.CartLine, 0, len(lines)+1)
	replaced := false
	for _, l := range lines {
		if l.ProductID == line.ProductID {
			replaced = true
			if line.Quantity > 0 {
				out = append(out, line)
			}
			continue
		}
		out = append(out, l)
	}
	if !replaced && line.Quantity > 0 {
		out = append(out, line)
	}
	mc.store.cartsByUser[userID] = out
	return nil
}

func (mc *MemoryCarts) Clear(ctx context.Context, userID string) error {
	mc.store.mu.Lock()
	defer mc.store.mu.Unlock()
	delete(mc.store.cartsByUser, userID)
	return nil
}

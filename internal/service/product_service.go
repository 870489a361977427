package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"storefront/internal/cache"
	"storefront/internal/domain"
	"storefront/internal/logging"
	"storefront/internal/repository"
)

const productTTL = 5 * time.Minute

// ProductService каталог: чтение через кэш и администрирование товаров
type ProductService struct {
	repo  repository.ProductRepository
	cache cache.Cache
}

func NewProductService(repo repository.ProductRepository, c cache.Cache) *ProductService {
	if c == nil {
		c = cache.Noop{}
	}
	return &ProductService{repo: repo, cache: c}
}

func (s *ProductService) Create(ctx context.Context, p domain.Product) (*domain.Product, error) {
	if p.Name == "" || p.SKU == "" || p.Price.IsNegative() || p.Stock < 0 {
		return nil, validationf("name and sku are required, price and stock must not be negative")
	}
	cp := p
	if err := s.repo.Create(ctx, &cp); err != nil {
		return nil, err
	}
	cache.InvalidateAll(ctx, s.cache, cache.ProductListPattern, cache.CategoryPattern(cp.CategoryID))
	return &cp, nil
}

func (s *ProductService) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	if id <= 0 {
		return nil, validationf("invalid product id")
	}
	key := cache.ProductKey(id)
	var p domain.Product
	if s.lookup(ctx, key, &p) {
		return &p, nil
	}
	got, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, got)
	return got, nil
}

// SetActive toggles availability; inactive products cannot be checked out.
func (s *ProductService) SetActive(ctx context.Context, id int64, active bool) (*domain.Product, error) {
	if id <= 0 {
		return nil, validationf("invalid product id")
	}
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return nil, err
	}
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	cache.InvalidateAll(ctx, s.cache, cache.ProductKey(id), cache.ProductListPattern, cache.CategoryPattern(p.CategoryID))
	return p, nil
}

func (s *ProductService) List(ctx context.Context, f repository.ProductFilter) ([]domain.Product, error) {
	key := listKey(f)
	var out []domain.Product
	if s.lookup(ctx, key, &out) {
		return out, nil
	}
	out, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, out)
	return out, nil
}

// listKey groups category listings under the category prefix so that stock
// changes can drop them together.
func listKey(f repository.ProductFilter) string {
	q := url.Values{}
	if f.NameSubstring != "" {
		q.Set("q", f.NameSubstring)
	}
	if f.MinPrice != nil {
		q.Set("min", f.MinPrice.String())
	}
	if f.MaxPrice != nil {
		q.Set("max", f.MaxPrice.String())
	}
	q.Set("active", strconv.FormatBool(f.OnlyActive))
	if f.CategoryID != nil {
		return fmt.Sprintf("category:%d:products:%s", *f.CategoryID, q.Encode())
	}
	return cache.ProductListKey(q.Encode())
}

func (s *ProductService) lookup(ctx context.Context, key string, dst any) bool {
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		logging.Warn(logging.Fields{Component: "catalog", Step: "cache_get", Status: key, Err: err})
		return false
	}
	if !ok {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

func (s *ProductService) store(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, productTTL); err != nil {
		logging.Warn(logging.Fields{Component: "catalog", Step: "cache_set", Status: key, Err: err})
	}
}

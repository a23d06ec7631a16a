// Package memory implements the repositories in process. Every conditional
// update runs under the store mutex, giving the same single-document atomicity
// the Postgres implementation gets from conditional UPDATE statements.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/salvashop/shopapi/internal/domain"
	"github.com/salvashop/shopapi/internal/money"
	"github.com/salvashop/shopapi/internal/repository"
	"github.com/salvashop/shopapi/pkg/errors"
)

// Store holds all in-memory state behind one mutex
type Store struct {
	mu          sync.Mutex
	products    map[uuid.UUID]*domain.Product
	coupons     map[string]*domain.Coupon
	orders      map[uuid.UUID][]byte
	users       map[uuid.UUID]*domain.User
	idempotency map[string]*domain.IdempotencyKey
}

func NewStore() *Store {
	return &Store{
		products:    make(map[uuid.UUID]*domain.Product),
		coupons:     make(map[string]*domain.Coupon),
		orders:      make(map[uuid.UUID][]byte),
		users:       make(map[uuid.UUID]*domain.User),
		idempotency: make(map[string]*domain.IdempotencyKey),
	}
}

// NewRepositories returns repositories sharing a fresh Store
func NewRepositories() (*repository.Repositories, *Store) {
	s := NewStore()
	return &repository.Repositories{
		Product:        &productRepository{s: s},
		Coupon:         &couponRepository{s: s},
		Order:          &orderRepository{s: s},
		User:           &userRepository{s: s},
		IdempotencyKey: &idempotencyKeyRepository{s: s},
	}, s
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Products

type productRepository struct{ s *Store }

func cloneProduct(p *domain.Product) *domain.Product {
	c := *p
	c.Variants = append([]domain.ProductVariant(nil), p.Variants...)
	return &c
}

func (r *productRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok {
		return nil, &errors.ErrNotFound{Resource: "product", ID: id.String()}
	}
	return cloneProduct(p), nil
}

func (r *productRepository) Create(_ context.Context, product *domain.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	seen := make(map[string]bool, len(product.Variants))
	for _, v := range product.Variants {
		if seen[v.SKU] {
			return &errors.ErrConflict{Message: fmt.Sprintf("duplicate variant SKU %s", v.SKU)}
		}
		seen[v.SKU] = true
	}
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	r.s.products[product.ID] = cloneProduct(product)
	return nil
}

func (r *productRepository) FindByVariantSKU(_ context.Context, sku string) ([]*domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.Product
	for _, p := range r.s.products {
		if _, ok := p.VariantBySKU(sku); ok {
			out = append(out, cloneProduct(p))
		}
	}
	return out, nil
}

func (r *productRepository) DecrementStock(_ context.Context, productID uuid.UUID, quantity int) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[productID]
	if !ok || p.Stock < quantity {
		return false, nil
	}
	p.Stock -= quantity
	return true, nil
}

func (r *productRepository) DecrementVariantStock(_ context.Context, productID uuid.UUID, sku string, quantity int) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[productID]
	if !ok {
		return false, nil
	}
	v, ok := p.VariantBySKU(sku)
	if !ok || !v.IsAvailable || v.Stock < quantity {
		return false, nil
	}
	v.Stock -= quantity
	return true, nil
}

func (r *productRepository) IncrementStock(_ context.Context, productID uuid.UUID, quantity int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[productID]
	if !ok {
		return &errors.ErrNotFound{Resource: "product", ID: productID.String()}
	}
	p.Stock += quantity
	return nil
}

func (r *productRepository) IncrementVariantStock(_ context.Context, productID uuid.UUID, sku string, quantity int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[productID]
	if !ok {
		return &errors.ErrNotFound{Resource: "product", ID: productID.String()}
	}
	v, ok := p.VariantBySKU(sku)
	if !ok {
		return &errors.ErrNotFound{Resource: "product variant", ID: productID.String() + "/" + sku}
	}
	v.Stock += quantity
	return nil
}

// Coupons

type couponRepository struct{ s *Store }

func (r *couponRepository) GetByCode(_ context.Context, code string) (*domain.Coupon, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.coupons[normalizeCode(code)]
	if !ok {
		return nil, &errors.ErrNotFound{Resource: "coupon", ID: normalizeCode(code)}
	}
	clone := *c
	return &clone, nil
}

func (r *couponRepository) Create(_ context.Context, coupon *domain.Coupon) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	coupon.Code = normalizeCode(coupon.Code)
	if _, exists := r.s.coupons[coupon.Code]; exists {
		return &errors.ErrConflict{Message: "a coupon with that code already exists"}
	}
	if coupon.ID == uuid.Nil {
		coupon.ID = uuid.New()
	}
	now := time.Now().UTC()
	if coupon.CreatedAt.IsZero() {
		coupon.CreatedAt = now
	}
	coupon.UpdatedAt = now
	clone := *coupon
	r.s.coupons[coupon.Code] = &clone
	return nil
}

func (r *couponRepository) Update(_ context.Context, coupon *domain.Coupon) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.coupons[normalizeCode(coupon.Code)]
	if !ok {
		return &errors.ErrNotFound{Resource: "coupon", ID: coupon.Code}
	}
	coupon.UpdatedAt = time.Now().UTC()
	clone := *coupon
	clone.CurrentUses = existing.CurrentUses
	r.s.coupons[clone.Code] = &clone
	return nil
}

func (r *couponRepository) Delete(_ context.Context, code string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	code = normalizeCode(code)
	if _, ok := r.s.coupons[code]; !ok {
		return &errors.ErrNotFound{Resource: "coupon", ID: code}
	}
	delete(r.s.coupons, code)
	return nil
}

func (r *couponRepository) List(_ context.Context, activeAt *time.Time, limit, offset int) ([]*domain.Coupon, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := make([]*domain.Coupon, 0, len(r.s.coupons))
	for _, c := range r.s.coupons {
		if activeAt != nil && (!c.IsActive || activeAt.Before(c.ValidFrom) || activeAt.After(c.ValidUntil)) {
			continue
		}
		clone := *c
		all = append(all, &clone)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return page(all, limit, offset), nil
}

func (r *couponRepository) IncrementUses(_ context.Context, code string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.coupons[normalizeCode(code)]
	if !ok {
		return false, nil
	}
	if c.MaxUses != nil && c.CurrentUses >= *c.MaxUses {
		return false, nil
	}
	c.CurrentUses++
	return true, nil
}

func (r *couponRepository) DecrementUses(_ context.Context, code string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if c, ok := r.s.coupons[normalizeCode(code)]; ok && c.CurrentUses > 0 {
		c.CurrentUses--
	}
	return nil
}

// Orders are kept JSON-encoded so callers never share memory with the store

type orderRepository struct{ s *Store }

func (r *orderRepository) Create(_ context.Context, order *domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = now
	}
	order.Version = 1
	doc, err := json.Marshal(order)
	if err != nil {
		return err
	}
	r.s.orders[order.ID] = doc
	return nil
}

func (r *orderRepository) decode(doc []byte) (*domain.Order, error) {
	var o domain.Order
	if err := json.Unmarshal(doc, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	doc, ok := r.s.orders[id]
	if !ok {
		return nil, &errors.ErrNotFound{Resource: "order", ID: id.String()}
	}
	return r.decode(doc)
}

func (r *orderRepository) GetByTransactionID(_ context.Context, transactionID string) (*domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, doc := range r.s.orders {
		o, err := r.decode(doc)
		if err != nil {
			return nil, err
		}
		if o.GatewayTransactionID != nil && *o.GatewayTransactionID == transactionID {
			return o, nil
		}
	}
	return nil, &errors.ErrNotFound{Resource: "order", ID: transactionID}
}

func (r *orderRepository) Save(_ context.Context, order *domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	doc, ok := r.s.orders[order.ID]
	if !ok {
		return &errors.ErrNotFound{Resource: "order", ID: order.ID.String()}
	}
	stored, err := r.decode(doc)
	if err != nil {
		return err
	}
	if stored.Version != order.Version {
		return &errors.ErrConflict{Message: fmt.Sprintf("order %s was modified concurrently", order.ID)}
	}
	order.Version++
	updated, err := json.Marshal(order)
	if err != nil {
		order.Version--
		return err
	}
	r.s.orders[order.ID] = updated
	return nil
}

func (r *orderRepository) all() ([]*domain.Order, error) {
	out := make([]*domain.Order, 0, len(r.s.orders))
	for _, doc := range r.s.orders {
		o, err := r.decode(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *orderRepository) List(_ context.Context, filter repository.OrderFilter) ([]*domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all, err := r.all()
	if err != nil {
		return nil, err
	}
	matched := make([]*domain.Order, 0, len(all))
	for _, o := range all {
		if filter.UserID != nil && o.UserID != *filter.UserID {
			continue
		}
		if filter.Status != nil && o.Status != *filter.Status {
			continue
		}
		matched = append(matched, o)
	}
	return page(matched, filter.Limit, filter.Offset), nil
}

func (r *orderRepository) CountCouponUses(_ context.Context, userID uuid.UUID, code string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all, err := r.all()
	if err != nil {
		return 0, err
	}
	count := 0
	for _, o := range all {
		if o.UserID != userID || o.CouponCode == nil || *o.CouponCode != normalizeCode(code) {
			continue
		}
		if o.Status == domain.OrderStatusCancelled || o.Status == domain.OrderStatusRefunded {
			continue
		}
		count++
	}
	return count, nil
}

func (r *orderRepository) Stats(_ context.Context) (*domain.OrderStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all, err := r.all()
	if err != nil {
		return nil, err
	}
	stats := &domain.OrderStats{TotalOrders: len(all)}
	var revenue []float64
	for _, o := range all {
		switch o.Status {
		case domain.OrderStatusPending:
			stats.Pending++
		case domain.OrderStatusPaid:
			stats.Paid++
			revenue = append(revenue, o.TotalAmount)
		case domain.OrderStatusShipped:
			stats.Shipped++
			revenue = append(revenue, o.TotalAmount)
		case domain.OrderStatusDelivered:
			stats.Delivered++
			revenue = append(revenue, o.TotalAmount)
		}
	}
	stats.TotalRevenue = money.Sum(revenue...)
	return stats, nil
}

// Users

type userRepository struct{ s *Store }

func (r *userRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, &errors.ErrNotFound{Resource: "user", ID: id.String()}
	}
	clone := *u
	return &clone, nil
}

func (r *userRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range r.s.users {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, &errors.ErrNotFound{Resource: "user", ID: email}
}

func (r *userRepository) Create(_ context.Context, user *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	for _, u := range r.s.users {
		if u.Email == user.Email {
			return &errors.ErrConflict{Message: "a user with that email already exists"}
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.Role == "" {
		user.Role = domain.UserRoleCustomer
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	clone := *user
	r.s.users[user.ID] = &clone
	return nil
}

// Idempotency keys

type idempotencyKeyRepository struct{ s *Store }

func idempotencyMapKey(userID uuid.UUID, key string) string {
	return userID.String() + "::" + key
}

func (r *idempotencyKeyRepository) Get(_ context.Context, userID uuid.UUID, key string) (*domain.IdempotencyKey, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k, ok := r.s.idempotency[idempotencyMapKey(userID, key)]
	if !ok {
		return nil, &errors.ErrNotFound{Resource: "idempotency key", ID: key}
	}
	clone := *k
	return &clone, nil
}

func (r *idempotencyKeyRepository) Create(_ context.Context, key *domain.IdempotencyKey) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	mk := idempotencyMapKey(key.UserID, key.Key)
	if _, exists := r.s.idempotency[mk]; exists {
		return &errors.ErrConflict{Message: "idempotency key already used"}
	}
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}
	clone := *key
	r.s.idempotency[mk] = &clone
	return nil
}

// Inspection helpers for tests and seeding

// ProductStock returns the simple stock of a product, or a variant's stock when sku is set
func (s *Store) ProductStock(productID uuid.UUID, sku string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return -1
	}
	if sku == "" {
		return p.Stock
	}
	v, ok := p.VariantBySKU(sku)
	if !ok {
		return -1
	}
	return v.Stock
}

// CouponUses returns current_uses for a coupon code
func (s *Store) CouponUses(code string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.coupons[normalizeCode(code)]
	if !ok {
		return -1
	}
	return c.CurrentUses
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/salvashop/shopapi/internal/domain"
)

// ProductRepository reads catalog entries and applies conditional stock updates.
// Stock mutations never overwrite the whole product.
type ProductRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	Create(ctx context.Context, product *domain.Product) error
	FindByVariantSKU(ctx context.Context, sku string) ([]*domain.Product, error)

	// DecrementStock subtracts quantity only if stock >= quantity; false means nothing changed
	DecrementStock(ctx context.Context, productID uuid.UUID, quantity int) (bool, error)
	DecrementVariantStock(ctx context.Context, productID uuid.UUID, sku string, quantity int) (bool, error)
	IncrementStock(ctx context.Context, productID uuid.UUID, quantity int) error
	IncrementVariantStock(ctx context.Context, productID uuid.UUID, sku string, quantity int) error
}

// CouponRepository stores coupons keyed by their normalized code
type CouponRepository interface {
	GetByCode(ctx context.Context, code string) (*domain.Coupon, error)
	Create(ctx context.Context, coupon *domain.Coupon) error
	Update(ctx context.Context, coupon *domain.Coupon) error
	Delete(ctx context.Context, code string) error
	List(ctx context.Context, activeAt *time.Time, limit, offset int) ([]*domain.Coupon, error)

	// IncrementUses bumps current_uses unless max_uses is reached; false means exhausted
	IncrementUses(ctx context.Context, code string) (bool, error)
	// DecrementUses lowers current_uses, never below zero
	DecrementUses(ctx context.Context, code string) error
}

// OrderFilter narrows order listings
type OrderFilter struct {
	UserID *uuid.UUID
	Status *domain.OrderStatus
	Limit  int
	Offset int
}

// OrderRepository persists order documents
type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	GetByTransactionID(ctx context.Context, transactionID string) (*domain.Order, error)
	// Save writes the order if its stored version equals order.Version, then bumps the version.
	// A stale version yields *errors.ErrConflict.
	Save(ctx context.Context, order *domain.Order) error
	List(ctx context.Context, filter OrderFilter) ([]*domain.Order, error)
	CountCouponUses(ctx context.Context, userID uuid.UUID, code string) (int, error)
	Stats(ctx context.Context) (*domain.OrderStats, error)
}

type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) error
}

type IdempotencyKeyRepository interface {
	Get(ctx context.Context, userID uuid.UUID, key string) (*domain.IdempotencyKey, error)
	Create(ctx context.Context, key *domain.IdempotencyKey) error
}

// Repositories groups every store the service layer needs
type Repositories struct {
	Product        ProductRepository
	Coupon         CouponRepository
	Order          OrderRepository
	User           UserRepository
	IdempotencyKey IdempotencyKeyRepository
}

package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/salvashop/shopapi/internal/coupons"
	"github.com/salvashop/shopapi/internal/domain"
	"github.com/salvashop/shopapi/internal/inventory"
	"github.com/salvashop/shopapi/internal/metrics"
	"github.com/salvashop/shopapi/internal/money"
	"github.com/salvashop/shopapi/internal/notify"
	"github.com/salvashop/shopapi/internal/repository"
	"github.com/salvashop/shopapi/internal/shipping"
	"github.com/salvashop/shopapi/internal/wompi"
	"github.com/salvashop/shopapi/pkg/errors"
)

const (
	defaultPageSize  = 20
	maxMinePageSize  = 50
	maxAdminPageSize = 100

	// order writes are compare-and-swap on version; this bounds the reload loop
	maxSaveAttempts = 3
)

// PaymentGateway creates hosted payment links
type PaymentGateway interface {
	CreatePaymentLink(ctx context.Context, req wompi.PaymentLinkRequest) (*wompi.PaymentLink, error)
}

// OrderSettings is the slice of configuration the order workflows need
type OrderSettings struct {
	FrontendURL string
	Currency    string
}

// Dependencies wires the order workflows together
type Dependencies struct {
	Repos    *repository.Repositories
	Ledger   *inventory.Ledger
	Coupons  *coupons.Validator
	Shipping *shipping.Resolver
	Gateway  PaymentGateway
	Notifier notify.Notifier
	Metrics  *metrics.OrderMetrics
	Settings OrderSettings
	Logger   *zap.Logger
}

type OrderService struct {
	repos    *repository.Repositories
	ledger   *inventory.Ledger
	coupons  *coupons.Validator
	shipping *shipping.Resolver
	gateway  PaymentGateway
	notifier notify.Notifier
	metrics  *metrics.OrderMetrics
	settings OrderSettings
	logger   *zap.Logger
	now      func() time.Time
}

// NewOrderService creates a new order service
func NewOrderService(deps Dependencies) *OrderService {
	return &OrderService{
		repos:    deps.Repos,
		ledger:   deps.Ledger,
		coupons:  deps.Coupons,
		shipping: deps.Shipping,
		gateway:  deps.Gateway,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
		settings: deps.Settings,
		logger:   deps.Logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrder prices a cart, reserves its stock, commits the coupon and persists a PENDING order.
// A coupon that cannot be applied is skipped with a warning instead of failing checkout.
func (s *OrderService) CreateOrder(ctx context.Context, actor Actor, req CreateOrderRequest, idempotencyKey string) (*CreateOrderResult, error) {
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	requestHash := ""
	if idempotencyKey != "" {
		requestHash = hashRequest(req)
		if replay, err := s.replay(ctx, actor.UserID, idempotencyKey, requestHash); err != nil || replay != nil {
			return replay, err
		}
	}

	if len(req.Items) == 0 {
		return nil, &errors.ErrValidation{Message: "order must contain at least one item"}
	}

	user, err := s.repos.User.GetByID(ctx, actor.UserID)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, &errors.ErrUnauthorized{Message: "unknown user"}
		}
		return nil, err
	}

	address, err := resolveAddress(req.ShippingAddress, user.Address)
	if err != nil {
		return nil, err
	}

	items, lines, subtotal, err := s.priceItems(ctx, req.Items)
	if err != nil {
		return s.replayAfterStockConflict(ctx, actor.UserID, idempotencyKey, requestHash, err)
	}

	now := s.now()
	quote := s.shipping.Quote(req.ShippingMethodID, subtotal)

	var warnings []string
	var applied *coupons.AppliedDiscount
	if code := coupons.NormalizeCode(req.CouponCode); code != "" {
		applied, warnings = s.applyCoupon(ctx, user.ID, code, subtotal, now)
	}

	if err := s.ledger.ReserveAll(ctx, lines); err != nil {
		if errors.IsInsufficientStock(err) {
			s.metrics.IncStockConflict()
			s.logger.Info("Checkout aborted, stock changed",
				zap.String("user_id", user.ID.String()),
				zap.Error(err),
			)
		}
		return s.replayAfterStockConflict(ctx, actor.UserID, idempotencyKey, requestHash, err)
	}

	if applied != nil {
		if err := s.coupons.Commit(ctx, applied.Code); err != nil {
			s.logger.Info("Coupon commit lost a race, dropping discount",
				zap.String("code", applied.Code),
				zap.Error(err),
			)
			warnings = append(warnings, fmt.Sprintf("coupon %s was not applied: %s", applied.Code, err.Error()))
			applied = nil
		}
	}

	order := &domain.Order{
		ID:                 uuid.New(),
		UserID:             user.ID,
		UserEmail:          user.Email,
		Items:              items,
		Subtotal:           subtotal,
		ShippingCost:       money.Round(quote.Cost),
		ShippingAddress:    *address,
		ShippingMethodID:   quote.MethodID,
		ShippingMethodName: quote.MethodName,
		EstimatedDelivery:  quote.EstimatedDelivery,
		CustomerNotes:      req.CustomerNotes,
		CreatedAt:          now,
		TrackingHistory:    []domain.TrackingEvent{},
	}
	if applied != nil {
		code, discountType, value := applied.Code, applied.DiscountType, applied.DiscountValue
		order.DiscountAmount = applied.DiscountAmount
		order.CouponCode = &code
		order.CouponDiscountType = &discountType
		order.CouponDiscountValue = &value
	}
	order.TotalAmount = money.OrderTotal(order.Subtotal, order.DiscountAmount, order.ShippingCost)
	order.AddTrackingEvent(domain.OrderStatusPending, now, nil, strPtr("Order created, awaiting payment"), domain.ActorSystem)

	if err := s.repos.Order.Create(ctx, order); err != nil {
		s.logger.Error("Failed to persist order, compensating", zap.Error(err))
		s.compensate(ctx, order)
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	if idempotencyKey != "" {
		winner, err := s.rememberKey(ctx, order, idempotencyKey, requestHash)
		if err != nil {
			return nil, err
		}
		if winner != nil {
			return winner, nil
		}
	}

	s.metrics.IncOrderCreated()
	s.logger.Info("Order created",
		zap.String("order_id", order.ID.String()),
		zap.String("user_id", user.ID.String()),
		zap.Float64("total", order.TotalAmount),
		zap.Int("warnings", len(warnings)),
	)

	s.notifier.SendOrderConfirmation(order, displayName(user))

	return &CreateOrderResult{Order: order, Warnings: warnings}, nil
}

func resolveAddress(requested, profile *domain.Address) (*domain.Address, error) {
	address := requested
	if address == nil {
		address = profile
	}
	if address == nil {
		return nil, &errors.ErrValidation{Message: "a shipping address is required"}
	}
	if strings.TrimSpace(address.Street) == "" || strings.TrimSpace(address.City) == "" || strings.TrimSpace(address.Country) == "" {
		return nil, &errors.ErrValidation{Message: "shipping address needs street, city and country"}
	}
	return address, nil
}

// priceItems snapshots every cart line and checks stock without reserving it
func (s *OrderService) priceItems(ctx context.Context, cart []CartItem) ([]domain.OrderItem, []inventory.Line, float64, error) {
	items := make([]domain.OrderItem, 0, len(cart))
	lines := make([]inventory.Line, 0, len(cart))
	lineTotals := make([]float64, 0, len(cart))

	for _, ci := range cart {
		if ci.Quantity <= 0 {
			return nil, nil, 0, &errors.ErrValidation{Message: fmt.Sprintf("quantity for product %s must be positive", ci.ProductID)}
		}

		product, err := s.repos.Product.GetByID(ctx, ci.ProductID)
		if err != nil {
			return nil, nil, 0, err
		}
		if !product.IsActive {
			return nil, nil, 0, &errors.ErrNotFound{Resource: "product", ID: ci.ProductID.String()}
		}

		item := domain.OrderItem{
			ProductID:    product.ID,
			ProductName:  product.Name,
			Quantity:     ci.Quantity,
			ProductImage: product.MainImage,
		}
		sku := strings.TrimSpace(ci.VariantSKU)

		if sku != "" {
			variant, ok := product.VariantBySKU(sku)
			if !product.HasVariants || !ok {
				return nil, nil, 0, &errors.ErrValidation{Message: fmt.Sprintf("variant %q not found for %s", sku, product.Name)}
			}
			if !variant.IsAvailable || variant.Stock < ci.Quantity {
				return nil, nil, 0, &errors.ErrInsufficientStock{
					ProductID: product.ID.String(),
					SKU:       sku,
					Requested: ci.Quantity,
					Available: variant.Stock,
				}
			}
			item.Price = money.Sum(product.BasePrice, variant.PriceAdjustment)
			item.VariantSKU = strPtr(variant.SKU)
			if info := variant.Info(); info != "" {
				item.VariantInfo = &info
			}
			if variant.ImageURL != nil {
				item.ProductImage = variant.ImageURL
			}
		} else {
			if product.Stock < ci.Quantity {
				return nil, nil, 0, &errors.ErrInsufficientStock{
					ProductID: product.ID.String(),
					Requested: ci.Quantity,
					Available: product.Stock,
				}
			}
			item.Price = money.Round(product.BasePrice)
		}

		items = append(items, item)
		lines = append(lines, inventory.Line{ProductID: product.ID, VariantSKU: sku, Quantity: ci.Quantity})
		lineTotals = append(lineTotals, money.LineTotal(item.Price, item.Quantity))
	}

	return items, lines, money.Sum(lineTotals...), nil
}

// applyCoupon validates a code for checkout. It never fails: problems become warnings.
func (s *OrderService) applyCoupon(ctx context.Context, userID uuid.UUID, code string, subtotal float64, now time.Time) (*coupons.AppliedDiscount, []string) {
	applied, coupon, err := s.coupons.Validate(ctx, code, subtotal, now)
	if err != nil {
		var couponErr *coupons.Error
		if !stdErrors.As(err, &couponErr) {
			s.logger.Warn("Coupon lookup failed, skipping discount", zap.String("code", code), zap.Error(err))
		}
		return nil, []string{fmt.Sprintf("coupon %s was not applied: %s", code, err.Error())}
	}

	if coupon.MaxUsesPerUser > 0 {
		used, err := s.repos.Order.CountCouponUses(ctx, userID, code)
		if err != nil {
			s.logger.Warn("Failed to count coupon uses, skipping discount", zap.String("code", code), zap.Error(err))
			return nil, []string{fmt.Sprintf("coupon %s was not applied", code)}
		}
		if used >= coupon.MaxUsesPerUser {
			return nil, []string{fmt.Sprintf("coupon %s was not applied: %s", code, "usage limit per customer reached")}
		}
	}
	return applied, nil
}

// compensate gives back the stock and coupon use an order holds
func (s *OrderService) compensate(ctx context.Context, order *domain.Order) {
	if err := s.ledger.ReleaseAll(ctx, linesOf(order)); err != nil {
		s.logger.Error("Failed to release stock",
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
	}
	if order.CouponCode != nil {
		if err := s.coupons.Revert(ctx, *order.CouponCode); err != nil {
			s.logger.Error("Failed to revert coupon use",
				zap.String("order_id", order.ID.String()),
				zap.String("code", *order.CouponCode),
				zap.Error(err),
			)
		}
	}
}

func linesOf(order *domain.Order) []inventory.Line {
	lines := make([]inventory.Line, 0, len(order.Items))
	for _, item := range order.Items {
		line := inventory.Line{ProductID: item.ProductID, Quantity: item.Quantity}
		if item.VariantSKU != nil {
			line.VariantSKU = *item.VariantSKU
		}
		lines = append(lines, line)
	}
	return lines
}

func (s *OrderService) replay(ctx context.Context, userID uuid.UUID, key, requestHash string) (*CreateOrderResult, error) {
	existing, err := s.repos.IdempotencyKey.Get(ctx, userID, key)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if existing.RequestHash != requestHash {
		return nil, &errors.ErrConflict{Message: "idempotency key reused with a different request"}
	}
	order, err := s.repos.Order.GetByID(ctx, existing.OrderID)
	if err != nil {
		return nil, err
	}
	return &CreateOrderResult{Order: order, Replayed: true}, nil
}

// replayAfterStockConflict covers a same-key request that committed between the first replay
// and our reservation: the stock it took is what made ours fail.
func (s *OrderService) replayAfterStockConflict(ctx context.Context, userID uuid.UUID, key, requestHash string, cause error) (*CreateOrderResult, error) {
	if key == "" || !errors.IsInsufficientStock(cause) {
		return nil, cause
	}
	replay, err := s.replay(ctx, userID, key, requestHash)
	if err != nil || replay != nil {
		return replay, err
	}
	return nil, cause
}

// rememberKey records the key for a new order. When a concurrent request with the same key
// won, the new order is cancelled and compensated, and the winner's order is returned.
func (s *OrderService) rememberKey(ctx context.Context, order *domain.Order, key, requestHash string) (*CreateOrderResult, error) {
	err := s.repos.IdempotencyKey.Create(ctx, &domain.IdempotencyKey{
		Key:         key,
		UserID:      order.UserID,
		OrderID:     order.ID,
		RequestHash: requestHash,
		CreatedAt:   s.now(),
	})
	if err == nil {
		return nil, nil
	}
	if !errors.IsConflict(err) {
		s.logger.Warn("Failed to store idempotency key", zap.String("order_id", order.ID.String()), zap.Error(err))
		return nil, nil
	}

	s.logger.Info("Duplicate checkout detected, discarding order", zap.String("order_id", order.ID.String()))
	discarded, _, err := s.mutate(ctx, order.ID, func(o *domain.Order) (bool, error) {
		o.AddTrackingEvent(domain.OrderStatusCancelled, s.now(), nil, strPtr("Duplicate checkout request"), domain.ActorSystem)
		o.StockReleased = true
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	s.compensate(ctx, discarded)

	return s.replay(ctx, order.UserID, key, requestHash)
}

func hashRequest(req CreateOrderRequest) string {
	payload, _ := json.Marshal(req)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// GetOrder returns an order visible to the actor
func (s *OrderService) GetOrder(ctx context.Context, actor Actor, id uuid.UUID) (*domain.Order, error) {
	order, err := s.repos.Order.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeOwner(actor, order); err != nil {
		return nil, err
	}
	return order, nil
}

// ListMine lists the actor's orders, newest first
func (s *OrderService) ListMine(ctx context.Context, actor Actor, status *domain.OrderStatus, limit, offset int) ([]*domain.Order, error) {
	if status != nil && !status.IsValid() {
		return nil, &errors.ErrValidation{Message: fmt.Sprintf("invalid status %q", *status)}
	}
	return s.repos.Order.List(ctx, repository.OrderFilter{
		UserID: &actor.UserID,
		Status: status,
		Limit:  clampLimit(limit, maxMinePageSize),
		Offset: clampOffset(offset),
	})
}

// List lists every order for administrators
func (s *OrderService) List(ctx context.Context, status *domain.OrderStatus, limit, offset int) ([]*domain.Order, error) {
	if status != nil && !status.IsValid() {
		return nil, &errors.ErrValidation{Message: fmt.Sprintf("invalid status %q", *status)}
	}
	return s.repos.Order.List(ctx, repository.OrderFilter{
		Status: status,
		Limit:  clampLimit(limit, maxAdminPageSize),
		Offset: clampOffset(offset),
	})
}

func (s *OrderService) Stats(ctx context.Context) (*domain.OrderStats, error) {
	return s.repos.Order.Stats(ctx)
}

func authorizeOwner(actor Actor, order *domain.Order) error {
	if order.UserID != actor.UserID && !actor.IsAdmin() {
		return &errors.ErrForbidden{Message: "you do not have access to this order"}
	}
	return nil
}

func clampLimit(limit, max int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	if limit > max {
		return max
	}
	return limit
}

func clampOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

// displayName returns the user's first name, or the local part of the email
func displayName(user *domain.User) string {
	if user.FirstName != "" {
		return user.FirstName
	}
	name, _, _ := strings.Cut(user.Email, "@")
	return name
}

func (s *OrderService) userName(ctx context.Context, order *domain.Order) string {
	user, err := s.repos.User.GetByID(ctx, order.UserID)
	if err != nil {
		name, _, _ := strings.Cut(order.UserEmail, "@")
		return name
	}
	return displayName(user)
}

func strPtr(s string) *string {
	return &s
}

package service

import (
	"time"

	"github.com/google/uuid"

	"github.com/salvashop/shopapi/internal/domain"
)

// Actor is the authenticated caller of a service operation
type Actor struct {
	UserID uuid.UUID
	Email  string
	Role   domain.UserRole
}

func (a Actor) IsAdmin() bool {
	return a.Role == domain.UserRoleAdmin
}

// CreateOrderRequest represents the checkout payload
type CreateOrderRequest struct {
	Items            []CartItem      `json:"items" binding:"required,min=1,dive"`
	ShippingAddress  *domain.Address `json:"shipping_address,omitempty"`
	ShippingMethodID string          `json:"shipping_method_id,omitempty"`
	CouponCode       string          `json:"coupon_code,omitempty"`
	CustomerNotes    *string         `json:"customer_notes,omitempty" binding:"omitempty,max=500"`
}

type CartItem struct {
	ProductID  uuid.UUID `json:"product_id" binding:"required"`
	VariantSKU string    `json:"variant_sku,omitempty"`
	Quantity   int       `json:"quantity" binding:"required,min=1"`
}

// CreateOrderResult is the persisted order plus any non-fatal checkout warnings
type CreateOrderResult struct {
	Order    *domain.Order
	Warnings []string
	// Replayed is set when an Idempotency-Key matched an earlier checkout
	Replayed bool
}

// StatusUpdate is the admin status correction command
type StatusUpdate struct {
	Status   domain.OrderStatus `json:"status" binding:"required"`
	Location *string            `json:"location,omitempty"`
	Notes    *string            `json:"notes,omitempty"`
}

// ShippingUpdate lists the shipping fields an admin may patch
type ShippingUpdate struct {
	TrackingNumber    *string    `json:"tracking_number,omitempty"`
	Carrier           *string    `json:"carrier,omitempty"`
	EstimatedDelivery *time.Time `json:"estimated_delivery,omitempty"`
}

type PaymentLinkResult struct {
	OrderID     uuid.UUID  `json:"order_id"`
	PaymentLink string     `json:"payment_link"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// CreateCouponRequest represents the coupon creation payload
type CreateCouponRequest struct {
	Code            string              `json:"code" binding:"required,min=3,max=50"`
	Description     string              `json:"description"`
	DiscountType    domain.DiscountType `json:"discount_type" binding:"required"`
	DiscountValue   float64             `json:"discount_value" binding:"required,gt=0"`
	MinimumAmount   *float64            `json:"minimum_amount,omitempty" binding:"omitempty,gte=0"`
	MaximumDiscount *float64            `json:"maximum_discount,omitempty" binding:"omitempty,gt=0"`
	MaxUses         *int                `json:"max_uses,omitempty" binding:"omitempty,gte=1"`
	MaxUsesPerUser  *int                `json:"max_uses_per_user,omitempty" binding:"omitempty,gte=1"`
	ValidFrom       time.Time           `json:"valid_from" binding:"required"`
	ValidUntil      time.Time           `json:"valid_until" binding:"required"`
	IsActive        *bool               `json:"is_active,omitempty"`
}

// CouponUpdate lists the coupon fields an admin may patch. Code, type and usage counters are fixed.
type CouponUpdate struct {
	Description     *string    `json:"description,omitempty"`
	DiscountValue   *float64   `json:"discount_value,omitempty" binding:"omitempty,gt=0"`
	MinimumAmount   *float64   `json:"minimum_amount,omitempty" binding:"omitempty,gte=0"`
	MaximumDiscount *float64   `json:"maximum_discount,omitempty" binding:"omitempty,gt=0"`
	MaxUses         *int       `json:"max_uses,omitempty" binding:"omitempty,gte=1"`
	MaxUsesPerUser  *int       `json:"max_uses_per_user,omitempty" binding:"omitempty,gte=1"`
	ValidFrom       *time.Time `json:"valid_from,omitempty"`
	ValidUntil      *time.Time `json:"valid_until,omitempty"`
	IsActive        *bool      `json:"is_active,omitempty"`
}

// WebhookResult is always acknowledged to the gateway with 200
type WebhookResult struct {
	Received  bool   `json:"received"`
	Processed bool   `json:"processed"`
	Reason    string `json:"reason,omitempty"`
}

// SKUMatch is one catalog variant matching a SKU lookup
type SKUMatch struct {
	ProductID   uuid.UUID `json:"product_id"`
	ProductName string    `json:"product_name"`
	SKU         string    `json:"sku"`
	VariantInfo string    `json:"variant_info,omitempty"`
	Price       float64   `json:"price"`
	Stock       int       `json:"stock"`
	Available   bool      `json:"available"`
	Active      bool      `json:"active"`
}

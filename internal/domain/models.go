package domain

import (
	"time"

	"github.com/google/uuid"
)

// Address is a postal shipping address
type Address struct {
	FullName   string  `json:"full_name,omitempty"`
	Street     string  `json:"street"`
	City       string  `json:"city"`
	State      *string `json:"state,omitempty"`
	PostalCode string  `json:"postal_code,omitempty"`
	Country    string  `json:"country"`
	Phone      *string `json:"phone,omitempty"`
}

// User is the subset of the user directory the order core reads
type User struct {
	ID           uuid.UUID
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	Role         UserRole
	Address      *Address
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == UserRoleAdmin
}

// Product is a catalog entry, either simple (Stock) or variant-bearing
type Product struct {
	ID          uuid.UUID
	Name        string
	BasePrice   float64
	Stock       int
	HasVariants bool
	Variants    []ProductVariant
	MainImage   *string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProductVariant is a purchasable size/color combination of a product
type ProductVariant struct {
	SKU             string
	Size            *string
	Color           *string
	Stock           int
	PriceAdjustment float64
	ImageURL        *string
	IsAvailable     bool
}

// VariantBySKU returns the variant with the given SKU, if any
func (p *Product) VariantBySKU(sku string) (*ProductVariant, bool) {
	for i := range p.Variants {
		if p.Variants[i].SKU == sku {
			return &p.Variants[i], true
		}
	}
	return nil, false
}

// Info renders the human readable variant label stored on order lines
func (v *ProductVariant) Info() string {
	info := ""
	if v.Size != nil {
		info = *v.Size
	}
	if v.Color != nil && *v.Color != "" {
		if info != "" {
			info += " "
		}
		info += *v.Color
	}
	return info
}

// Coupon is a discount code created by an administrator
type Coupon struct {
	ID              uuid.UUID
	Code            string
	Description     string
	DiscountType    DiscountType
	DiscountValue   float64
	MinimumAmount   *float64
	MaximumDiscount *float64
	MaxUses         *int
	MaxUsesPerUser  int
	CurrentUses     int
	ValidFrom       time.Time
	ValidUntil      time.Time
	IsActive        bool
	CreatedBy       *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ShippingMethod is a read-only shipping catalog entry
type ShippingMethod struct {
	ID                    string   `json:"id"`
	Name                  string   `json:"name"`
	Description           string   `json:"description"`
	BasePrice             float64  `json:"base_price"`
	EstimatedDaysMin      int      `json:"estimated_days_min"`
	EstimatedDaysMax      int      `json:"estimated_days_max"`
	Carrier               string   `json:"carrier"`
	IsActive              bool     `json:"is_active"`
	FreeShippingThreshold *float64 `json:"free_shipping_threshold,omitempty"`
	MaxWeightKg           *float64 `json:"max_weight_kg,omitempty"`
}

// OrderItem is a priced snapshot of one cart line
type OrderItem struct {
	ProductID    uuid.UUID `json:"product_id"`
	ProductName  string    `json:"product_name"`
	Quantity     int       `json:"quantity"`
	Price        float64   `json:"price"`
	VariantSKU   *string   `json:"variant_sku,omitempty"`
	VariantInfo  *string   `json:"variant_info,omitempty"`
	ProductImage *string   `json:"product_image,omitempty"`
}

// TrackingEvent is one append-only entry of an order's history
type TrackingEvent struct {
	Status    OrderStatus `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	Location  *string     `json:"location,omitempty"`
	Notes     *string     `json:"notes,omitempty"`
	UpdatedBy *string     `json:"updated_by,omitempty"`
}

// Order is the central aggregate. It owns its items and tracking history.
type Order struct {
	ID        uuid.UUID   `json:"id"`
	UserID    uuid.UUID   `json:"user_id"`
	UserEmail string      `json:"user_email"`
	Items     []OrderItem `json:"items"`

	Subtotal       float64 `json:"subtotal"`
	DiscountAmount float64 `json:"discount_amount"`
	ShippingCost   float64 `json:"shipping_cost"`
	TotalAmount    float64 `json:"total_amount"`

	CouponCode          *string       `json:"coupon_code,omitempty"`
	CouponDiscountType  *DiscountType `json:"coupon_discount_type,omitempty"`
	CouponDiscountValue *float64      `json:"coupon_discount_value,omitempty"`

	ShippingAddress    Address    `json:"shipping_address"`
	ShippingMethodID   string     `json:"shipping_method_id"`
	ShippingMethodName string     `json:"shipping_method_name"`
	TrackingNumber     *string    `json:"tracking_number,omitempty"`
	Carrier            *string    `json:"carrier,omitempty"`
	EstimatedDelivery  *time.Time `json:"estimated_delivery,omitempty"`

	Status          OrderStatus     `json:"status"`
	TrackingHistory []TrackingEvent `json:"tracking_history"`

	PaymentMethod        *PaymentMethod `json:"payment_method,omitempty"`
	GatewayTransactionID *string        `json:"gateway_transaction_id,omitempty"`
	PaymentLink          *string        `json:"payment_link,omitempty"`
	PaidAt               *time.Time     `json:"paid_at,omitempty"`

	// StockReleased is set once the reserved stock and coupon use went back
	StockReleased bool `json:"stock_released"`

	CustomerNotes *string `json:"customer_notes,omitempty"`

	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AddTrackingEvent appends an event and keeps Status equal to its status
func (o *Order) AddTrackingEvent(status OrderStatus, at time.Time, location, notes *string, actor string) {
	event := TrackingEvent{
		Status:    status,
		Timestamp: at,
		Location:  location,
		Notes:     notes,
	}
	if actor != "" {
		event.UpdatedBy = &actor
	}
	o.TrackingHistory = append(o.TrackingHistory, event)
	o.Status = status
	o.UpdatedAt = at
}

// IdempotencyKey maps a client-supplied checkout key to the order it produced
type IdempotencyKey struct {
	Key         string
	UserID      uuid.UUID
	OrderID     uuid.UUID
	RequestHash string
	CreatedAt   time.Time
}

// OrderStats summarises orders for the admin dashboard
type OrderStats struct {
	TotalOrders  int     `json:"total_orders"`
	Pending      int     `json:"pending"`
	Paid         int     `json:"paid"`
	Shipped      int     `json:"shipped"`
	Delivered    int     `json:"delivered"`
	TotalRevenue float64 `json:"total_revenue"`
}

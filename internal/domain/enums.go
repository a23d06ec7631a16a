package domain

// OrderStatus represents the lifecycle status of a customer order
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusPaid       OrderStatus = "PAID"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
	OrderStatusFailed     OrderStatus = "FAILED"
	OrderStatusRefunded   OrderStatus = "REFUNDED"
)

// IsValid checks if the order status is valid
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending,
		OrderStatusPaid,
		OrderStatusProcessing,
		OrderStatusShipped,
		OrderStatusDelivered,
		OrderStatusCancelled,
		OrderStatusFailed,
		OrderStatusRefunded:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further automated transitions leave this status
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled || s == OrderStatusRefunded
}

// IsPaymentSettled reports whether a payment approval has already been applied
func (s OrderStatus) IsPaymentSettled() bool {
	switch s {
	case OrderStatusPaid, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered:
		return true
	default:
		return false
	}
}

// CanTransitionTo checks if a status transition is valid.
// A delivered order can still be refunded; cancelled and refunded orders cannot.
func (s OrderStatus) CanTransitionTo(newStatus OrderStatus) bool {
	if newStatus == OrderStatusRefunded {
		return s.IsValid() && s != OrderStatusCancelled && s != OrderStatusRefunded
	}
	switch s {
	case OrderStatusPending:
		return newStatus == OrderStatusPaid ||
			newStatus == OrderStatusFailed ||
			newStatus == OrderStatusCancelled
	case OrderStatusFailed:
		return newStatus == OrderStatusCancelled
	case OrderStatusPaid:
		return newStatus == OrderStatusProcessing ||
			newStatus == OrderStatusShipped
	case OrderStatusProcessing:
		return newStatus == OrderStatusShipped
	case OrderStatusShipped:
		return newStatus == OrderStatusDelivered
	case OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded:
		return false // Terminal states
	default:
		return false
	}
}

// DiscountType is the kind of discount a coupon grants
type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

func (d DiscountType) IsValid() bool {
	return d == DiscountTypePercentage || d == DiscountTypeFixed
}

// PaymentMethod records how an order is being paid
type PaymentMethod string

const (
	PaymentMethodWompiCard PaymentMethod = "WOMPI_CARD"
)

// UserRole distinguishes customers from administrators
type UserRole string

const (
	UserRoleCustomer UserRole = "customer"
	UserRoleAdmin    UserRole = "admin"
)

func (r UserRole) IsValid() bool {
	return r == UserRoleCustomer || r == UserRoleAdmin
}

// Tracking event actors that are not a user email
const (
	ActorSystem       = "system"
	ActorWompiWebhook = "wompi_webhook"
)

package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/salvashop/shopapi/internal/domain"
	"github.com/salvashop/shopapi/pkg/errors"
)

// mutate loads an order, applies fn and saves it with a version check, reloading and
// reapplying fn when a concurrent writer got there first. fn must not have side effects
// outside the order: it may run more than once. When fn reports no change nothing is saved.
func (s *OrderService) mutate(ctx context.Context, id uuid.UUID, fn func(o *domain.Order) (bool, error)) (*domain.Order, bool, error) {
	for attempt := 1; ; attempt++ {
		order, err := s.repos.Order.GetByID(ctx, id)
		if err != nil {
			return nil, false, err
		}
		changed, err := fn(order)
		if err != nil {
			return nil, false, err
		}
		if !changed {
			return order, false, nil
		}
		err = s.repos.Order.Save(ctx, order)
		if err == nil {
			return order, true, nil
		}
		if !errors.IsConflict(err) || attempt >= maxSaveAttempts {
			return nil, false, err
		}
		s.logger.Debug("Order version conflict, retrying",
			zap.String("order_id", id.String()),
			zap.Int("attempt", attempt),
		)
	}
}

// ApprovePayment marks an order PAID. Orders whose payment is already settled are left
// untouched so repeated webhook deliveries are harmless. Returns whether the order changed.
func (s *OrderService) ApprovePayment(ctx context.Context, orderID uuid.UUID, transactionID string) (bool, error) {
	var from domain.OrderStatus
	order, changed, err := s.mutate(ctx, orderID, func(o *domain.Order) (bool, error) {
		if o.Status.IsPaymentSettled() {
			return false, nil
		}
		from = o.Status
		now := s.now()
		if transactionID != "" {
			o.GatewayTransactionID = strPtr(transactionID)
		}
		o.PaidAt = &now
		o.AddTrackingEvent(domain.OrderStatusPaid, now, nil,
			strPtr(fmt.Sprintf("Payment confirmed via Wompi (ID: %s)", transactionID)), domain.ActorWompiWebhook)
		return true, nil
	})
	if err != nil {
		return false, err
	}
	if !changed {
		s.logger.Info("Payment already applied, skipping", zap.String("order_id", orderID.String()))
		return false, nil
	}

	if from == domain.OrderStatusCancelled || from == domain.OrderStatusRefunded {
		s.logger.Warn("Payment approved for a closed order, review stock",
			zap.String("order_id", order.ID.String()),
			zap.String("previous_status", string(from)),
		)
	}
	s.recordTransition(order, from)
	s.notifier.SendPaymentConfirmation(order, s.userName(ctx, order))
	return true, nil
}

// DeclinePayment marks a PENDING order FAILED. Any other status is left as is.
// isError distinguishes gateway errors from issuer declines in the tracking note.
func (s *OrderService) DeclinePayment(ctx context.Context, orderID uuid.UUID, transactionID, reason string, isError bool) (bool, error) {
	order, changed, err := s.mutate(ctx, orderID, func(o *domain.Order) (bool, error) {
		if o.Status != domain.OrderStatusPending {
			return false, nil
		}
		note := "Payment declined"
		if isError {
			note = "Payment error"
		}
		if reason != "" {
			note += ": " + reason
		}
		o.AddTrackingEvent(domain.OrderStatusFailed, s.now(), nil,
			strPtr(fmt.Sprintf("%s (ID: %s)", note, transactionID)), domain.ActorWompiWebhook)
		return true, nil
	})
	if err != nil || !changed {
		return false, err
	}
	s.recordTransition(order, domain.OrderStatusPending)
	return true, nil
}

// VoidPayment cancels the order regardless of its status. Stock is not released;
// an admin refund of the voided order returns it.
func (s *OrderService) VoidPayment(ctx context.Context, orderID uuid.UUID, transactionID string) error {
	var from domain.OrderStatus
	order, _, err := s.mutate(ctx, orderID, func(o *domain.Order) (bool, error) {
		from = o.Status
		o.AddTrackingEvent(domain.OrderStatusCancelled, s.now(), nil,
			strPtr(fmt.Sprintf("Payment voided (ID: %s)", transactionID)), domain.ActorWompiWebhook)
		return true, nil
	})
	if err != nil {
		return err
	}
	s.recordTransition(order, from)
	return nil
}

// CancelOrder cancels a PENDING or FAILED order on behalf of its owner or an admin,
// then releases its stock and coupon use.
func (s *OrderService) CancelOrder(ctx context.Context, actor Actor, orderID uuid.UUID) (*domain.Order, error) {
	var from domain.OrderStatus
	var release bool
	order, _, err := s.mutate(ctx, orderID, func(o *domain.Order) (bool, error) {
		if err := authorizeOwner(actor, o); err != nil {
			return false, err
		}
		if !o.Status.CanTransitionTo(domain.OrderStatusCancelled) {
			return false, &errors.ErrInvalidStateTransition{From: o.Status, To: domain.OrderStatusCancelled}
		}
		from = o.Status
		release = !o.StockReleased
		note := "Order cancelled by the customer"
		if o.UserID != actor.UserID {
			note = "Order cancelled by an administrator"
		}
		o.AddTrackingEvent(domain.OrderStatusCancelled, s.now(), nil, strPtr(note), actor.Email)
		o.StockReleased = true
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	if release {
		s.compensate(ctx, order)
	}
	s.recordTransition(order, from)
	s.logger.Info("Order cancelled", zap.String("order_id", order.ID.String()), zap.String("by", actor.Email))
	return order, nil
}

// UpdateStatus sets any status for administrative correction. Moving into SHIPPED
// from another status sends the shipping notification.
func (s *OrderService) UpdateStatus(ctx context.Context, actor Actor, orderID uuid.UUID, update StatusUpdate) (*domain.Order, error) {
	if !update.Status.IsValid() {
		return nil, &errors.ErrValidation{Message: fmt.Sprintf("invalid status %q", update.Status)}
	}

	var from domain.OrderStatus
	order, _, err := s.mutate(ctx, orderID, func(o *domain.Order) (bool, error) {
		from = o.Status
		o.AddTrackingEvent(update.Status, s.now(), update.Location, update.Notes, actor.Email)
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.recordTransition(order, from)
	if update.Status == domain.OrderStatusShipped && from != domain.OrderStatusShipped {
		s.notifier.SendShippingNotification(order, s.userName(ctx, order), "")
	}
	return order, nil
}

// UpdateShipping patches tracking number, carrier and estimated delivery
func (s *OrderService) UpdateShipping(ctx context.Context, orderID uuid.UUID, update ShippingUpdate) (*domain.Order, error) {
	trackingNumber := trimmed(update.TrackingNumber)
	carrier := trimmed(update.Carrier)
	if trackingNumber == nil && carrier == nil && update.EstimatedDelivery == nil {
		return nil, &errors.ErrValidation{Message: "nothing to update"}
	}

	order, _, err := s.mutate(ctx, orderID, func(o *domain.Order) (bool, error) {
		if trackingNumber != nil {
			o.TrackingNumber = trackingNumber
		}
		if carrier != nil {
			o.Carrier = carrier
		}
		if update.EstimatedDelivery != nil {
			eta := update.EstimatedDelivery.UTC()
			o.EstimatedDelivery = &eta
		}
		o.UpdatedAt = s.now()
		return true, nil
	})
	return order, err
}

// RefundOrder marks an order REFUNDED and releases its stock and coupon use unless that
// already happened. Refunded orders cannot be refunded again. A cancelled order is refundable
// only while it still holds its reservation, which is the case after a gateway void.
func (s *OrderService) RefundOrder(ctx context.Context, actor Actor, orderID uuid.UUID, reason string) (*domain.Order, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, &errors.ErrValidation{Message: "a refund reason is required"}
	}

	var from domain.OrderStatus
	var release bool
	order, _, err := s.mutate(ctx, orderID, func(o *domain.Order) (bool, error) {
		if o.Status == domain.OrderStatusRefunded {
			return false, &errors.ErrValidation{Message: "order was already refunded"}
		}
		voided := o.Status == domain.OrderStatusCancelled && !o.StockReleased
		if !voided && !o.Status.CanTransitionTo(domain.OrderStatusRefunded) {
			return false, &errors.ErrInvalidStateTransition{From: o.Status, To: domain.OrderStatusRefunded}
		}
		from = o.Status
		release = !o.StockReleased
		o.AddTrackingEvent(domain.OrderStatusRefunded, s.now(), nil, strPtr("Refund: "+reason), actor.Email)
		o.StockReleased = true
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	if release {
		s.compensate(ctx, order)
	}
	s.recordTransition(order, from)
	s.logger.Info("Order refunded", zap.String("order_id", order.ID.String()), zap.String("by", actor.Email))
	return order, nil
}

func (s *OrderService) recordTransition(order *domain.Order, from domain.OrderStatus) {
	s.metrics.IncTransition(string(from), string(order.Status))
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}

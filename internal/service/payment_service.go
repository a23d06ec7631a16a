package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/salvashop/shopapi/internal/domain"
	"github.com/salvashop/shopapi/internal/money"
	"github.com/salvashop/shopapi/internal/wompi"
	"github.com/salvashop/shopapi/pkg/errors"
)

// CreatePaymentLink opens a hosted checkout for the owner's PENDING order.
// Gateway failures are returned as is; the caller may try again.
func (s *OrderService) CreatePaymentLink(ctx context.Context, actor Actor, orderID uuid.UUID) (*PaymentLinkResult, error) {
	order, err := s.repos.Order.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != actor.UserID {
		return nil, &errors.ErrForbidden{Message: "you do not have access to this order"}
	}
	if order.Status != domain.OrderStatusPending {
		return nil, &errors.ErrValidation{Message: fmt.Sprintf("order is not awaiting payment, current status: %s", order.Status)}
	}

	link, err := s.gateway.CreatePaymentLink(ctx, wompi.PaymentLinkRequest{
		OrderID:       order.ID.String(),
		AmountInCents: money.ToCents(order.TotalAmount),
		Currency:      s.settings.Currency,
		CustomerEmail: order.UserEmail,
		Reference:     order.ID.String(),
		RedirectURL:   s.redirectURL(order.ID),
	})
	if err != nil {
		s.logger.Error("Failed to create payment link",
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	_, _, err = s.mutate(ctx, order.ID, func(o *domain.Order) (bool, error) {
		method := domain.PaymentMethodWompiCard
		o.PaymentLink = strPtr(link.URL)
		o.PaymentMethod = &method
		// provisional until the webhook reports the real transaction id
		if link.TransactionID != "" && !o.Status.IsPaymentSettled() {
			o.GatewayTransactionID = strPtr(link.TransactionID)
		}
		o.UpdatedAt = s.now()
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	return &PaymentLinkResult{
		OrderID:     order.ID,
		PaymentLink: link.URL,
		ExpiresAt:   link.ExpiresAt,
	}, nil
}

func (s *OrderService) redirectURL(orderID uuid.UUID) string {
	base := strings.TrimSuffix(s.settings.FrontendURL, "/")
	if base == "" {
		return ""
	}
	return base + "/order-confirmed?order_id=" + url.QueryEscape(orderID.String())
}

package service

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/salvashop/shopapi/internal/domain"
	"github.com/salvashop/shopapi/internal/metrics"
	"github.com/salvashop/shopapi/internal/wompi"
)

// SignatureVerifier checks a webhook event against its signature header
type SignatureVerifier interface {
	VerifyWebhookSignature(event *wompi.Event, signature string) bool
}

// WebhookService applies gateway transaction events to orders.
// It never returns an error: every failure is logged and reported in the result.
type WebhookService struct {
	orders   *OrderService
	verifier SignatureVerifier
	metrics  *metrics.OrderMetrics
	logger   *zap.Logger
}

func NewWebhookService(orders *OrderService, verifier SignatureVerifier, m *metrics.OrderMetrics, logger *zap.Logger) *WebhookService {
	return &WebhookService{
		orders:   orders,
		verifier: verifier,
		metrics:  m,
		logger:   logger,
	}
}

func (s *WebhookService) Handle(ctx context.Context, payload []byte, signature string) WebhookResult {
	var event wompi.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return s.ignore("rejected", "invalid payload", zap.Error(err))
	}

	tx := event.Data.Transaction
	if !s.verifier.VerifyWebhookSignature(&event, signature) {
		return s.ignore("rejected", "invalid signature", zap.String("transaction_id", tx.ID))
	}
	if tx.Reference == "" {
		return s.ignore("ignored", "missing reference", zap.String("transaction_id", tx.ID))
	}

	s.logger.Info("Wompi webhook received",
		zap.String("event", event.Event),
		zap.String("transaction_id", tx.ID),
		zap.String("status", tx.Status),
		zap.String("reference", tx.Reference),
	)

	order, ok := s.findOrder(ctx, tx)
	if !ok {
		return s.ignore("ignored", "order not found", zap.String("reference", tx.Reference))
	}

	var err error
	switch tx.Status {
	case wompi.StatusApproved:
		_, err = s.orders.ApprovePayment(ctx, order.ID, tx.ID)
	case wompi.StatusDeclined:
		_, err = s.orders.DeclinePayment(ctx, order.ID, tx.ID, tx.StatusMessage, false)
	case wompi.StatusError:
		_, err = s.orders.DeclinePayment(ctx, order.ID, tx.ID, tx.StatusMessage, true)
	case wompi.StatusVoided:
		err = s.orders.VoidPayment(ctx, order.ID, tx.ID)
	default:
		return s.ignore("ignored", "unhandled transaction status", zap.String("status", tx.Status))
	}
	if err != nil {
		return s.ignore("failed", "processing failed",
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
	}

	s.metrics.IncWebhook("processed")
	return WebhookResult{Received: true, Processed: true}
}

// findOrder resolves the reference as an order id, falling back to the stored transaction id
func (s *WebhookService) findOrder(ctx context.Context, tx wompi.EventTransaction) (*domain.Order, bool) {
	if id, err := uuid.Parse(tx.Reference); err == nil {
		if order, err := s.orders.repos.Order.GetByID(ctx, id); err == nil {
			return order, true
		}
	}
	if tx.ID == "" {
		return nil, false
	}
	order, err := s.orders.repos.Order.GetByTransactionID(ctx, tx.ID)
	if err != nil {
		return nil, false
	}
	return order, true
}

func (s *WebhookService) ignore(outcome, reason string, fields ...zap.Field) WebhookResult {
	s.metrics.IncWebhook(outcome)
	s.logger.Warn("Wompi webhook not processed", append([]zap.Field{zap.String("reason", reason)}, fields...)...)
	return WebhookResult{Received: true, Processed: false, Reason: reason}
}

// Package notify sends customer emails off the request path.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/salvashop/shopapi/internal/config"
	"github.com/salvashop/shopapi/internal/domain"
	"github.com/salvashop/shopapi/internal/metrics"
)

const (
	KindOrderConfirmation   = "order_confirmation"
	KindPaymentConfirmation = "payment_confirmation"
	KindShippingUpdate      = "shipping_notification"

	sendTimeout = 30 * time.Second
)

// Notifier is what the order workflows call. Every method returns immediately.
type Notifier interface {
	SendOrderConfirmation(order *domain.Order, userName string)
	SendPaymentConfirmation(order *domain.Order, userName string)
	SendShippingNotification(order *domain.Order, userName string, trackingURL string)
}

// Dispatcher queues messages on a buffered channel drained by a fixed pool of workers.
// When the queue is full the message is dropped and logged.
type Dispatcher struct {
	mailer  Mailer
	queue   chan Message
	logger  *zap.Logger
	metrics *metrics.OrderMetrics

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(mailer Mailer, cfg config.NotificationsConfig, logger *zap.Logger, m *metrics.OrderMetrics) *Dispatcher {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	d := &Dispatcher{
		mailer:  mailer,
		queue:   make(chan Message, cfg.QueueSize),
		logger:  logger,
		metrics: m,
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	return d
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for msg := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		err := d.mailer.Send(ctx, msg)
		cancel()
		if err != nil {
			d.metrics.IncNotification(msg.Kind, "failed")
			d.logger.Warn("Failed to send notification",
				zap.String("kind", msg.Kind),
				zap.String("to", msg.To),
				zap.Error(err),
			)
			continue
		}
		d.metrics.IncNotification(msg.Kind, "sent")
	}
}

func (d *Dispatcher) enqueue(msg Message) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn("Notification dropped, dispatcher closed", zap.String("kind", msg.Kind))
		d.metrics.IncNotification(msg.Kind, "dropped")
		return
	}
	select {
	case d.queue <- msg:
	default:
		d.logger.Warn("Notification dropped, queue full", zap.String("kind", msg.Kind), zap.String("to", msg.To))
		d.metrics.IncNotification(msg.Kind, "dropped")
	}
}

// Close stops accepting messages and waits for queued ones to be sent or for ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) SendOrderConfirmation(order *domain.Order, userName string) {
	d.enqueue(OrderConfirmation(order, userName))
}

func (d *Dispatcher) SendPaymentConfirmation(order *domain.Order, userName string) {
	d.enqueue(PaymentConfirmation(order, userName))
}

func (d *Dispatcher) SendShippingNotification(order *domain.Order, userName string, trackingURL string) {
	d.enqueue(ShippingNotification(order, userName, trackingURL))
}

// OrderConfirmation renders the email sent once an order is placed
func OrderConfirmation(order *domain.Order, userName string) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\nWe received your order #%s.\n\n", userName, order.ID)
	for _, item := range order.Items {
		line := item.ProductName
		if item.VariantInfo != nil && *item.VariantInfo != "" {
			line += " (" + *item.VariantInfo + ")"
		}
		fmt.Fprintf(&b, "  %d x %s  $%.2f\n", item.Quantity, line, item.Price)
	}
	fmt.Fprintf(&b, "\nSubtotal: $%.2f\n", order.Subtotal)
	if order.DiscountAmount > 0 {
		fmt.Fprintf(&b, "Discount: -$%.2f\n", order.DiscountAmount)
	}
	fmt.Fprintf(&b, "Shipping (%s): $%.2f\n", order.ShippingMethodName, order.ShippingCost)
	fmt.Fprintf(&b, "Total: $%.2f\n", order.TotalAmount)

	return Message{
		Kind:    KindOrderConfirmation,
		To:      order.UserEmail,
		Subject: fmt.Sprintf("Order confirmation #%s", order.ID),
		Body:    b.String(),
	}
}

func PaymentConfirmation(order *domain.Order, userName string) Message {
	body := fmt.Sprintf("Hi %s,\n\nYour payment of $%.2f for order #%s was confirmed. We are preparing your package.\n",
		userName, order.TotalAmount, order.ID)
	return Message{
		Kind:    KindPaymentConfirmation,
		To:      order.UserEmail,
		Subject: fmt.Sprintf("Payment confirmed - Order #%s", order.ID),
		Body:    body,
	}
}

func ShippingNotification(order *domain.Order, userName string, trackingURL string) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\nYour order #%s is on its way.\n", userName, order.ID)
	if order.Carrier != nil {
		fmt.Fprintf(&b, "Carrier: %s\n", *order.Carrier)
	}
	if order.TrackingNumber != nil {
		fmt.Fprintf(&b, "Tracking number: %s\n", *order.TrackingNumber)
	}
	if trackingURL != "" {
		fmt.Fprintf(&b, "Track it here: %s\n", trackingURL)
	}
	if order.EstimatedDelivery != nil {
		fmt.Fprintf(&b, "Estimated delivery: %s\n", order.EstimatedDelivery.Format("2006-01-02"))
	}
	return Message{
		Kind:    KindShippingUpdate,
		To:      order.UserEmail,
		Subject: fmt.Sprintf("Your order has shipped - #%s", order.ID),
		Body:    b.String(),
	}
}

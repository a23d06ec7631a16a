package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salvashop/shopapi/internal/domain"
	"github.com/salvashop/shopapi/pkg/errors"
)

func TestCreatePaymentLink(t *testing.T) {
	f := newFixture(t)
	hat := f.addProduct(t, "Cap", 13.45, 10)
	order := f.order(t, f.customer, CreateOrderRequest{Items: []CartItem{item(hat, 1)}})
	expires := f.now.Add(time.Hour)
	f.gateway.link.ExpiresAt = &expires

	res, err := f.svc.CreatePaymentLink(f.ctx, f.customer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.wompi.co/l/lnk_1", res.PaymentLink)
	assert.Equal(t, &expires, res.ExpiresAt)

	require.Len(t, f.gateway.requests, 1)
	sent := f.gateway.requests[0]
	assert.Equal(t, int64(1645), sent.AmountInCents, "13.45 + 3.00 shipping")
	assert.Equal(t, "USD", sent.Currency)
	assert.Equal(t, order.ID.String(), sent.Reference)
	assert.Equal(t, "http://shop.test/order-confirmed?order_id="+order.ID.String(), sent.RedirectURL)

	stored := f.reload(t, order.ID)
	assert.Equal(t, "https://checkout.wompi.co/l/lnk_1", *stored.PaymentLink)
	assert.Equal(t, domain.PaymentMethodWompiCard, *stored.PaymentMethod)
	assert.Equal(t, "lnk_1", *stored.GatewayTransactionID)
	assert.Equal(t, domain.OrderStatusPending, stored.Status)
}

func TestCreatePaymentLinkGuards(t *testing.T) {
	f := newFixture(t)
	hat := f.addProduct(t, "Cap", 10, 10)
	order := f.order(t, f.customer, CreateOrderRequest{Items: []CartItem{item(hat, 1)}})

	_, err := f.svc.CreatePaymentLink(f.ctx, f.admin, order.ID)
	assert.Equal(t, 403, errors.HTTPStatus(err))

	f.gateway.err = &errors.ErrGateway{Message: "payment gateway unreachable"}
	_, err = f.svc.CreatePaymentLink(f.ctx, f.customer, order.ID)
	assert.Equal(t, 500, errors.HTTPStatus(err))
	assert.Nil(t, f.reload(t, order.ID).PaymentLink)

	f.gateway.err = nil
	_, err = f.svc.ApprovePayment(f.ctx, order.ID, "tx")
	require.NoError(t, err)
	_, err = f.svc.CreatePaymentLink(f.ctx, f.customer, order.ID)
	assert.Equal(t, 400, errors.HTTPStatus(err))
}

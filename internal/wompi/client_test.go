package wompi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/salvashop/shopapi/internal/config"
	"github.com/salvashop/shopapi/pkg/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, timeout time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.WompiConfig{
		BaseURL:      srv.URL + "/",
		PublicKey:    "pub_test",
		PrivateKey:   "prv_test",
		EventsSecret: "events_secret",
		Currency:     "USD",
		Timeout:      timeout,
	}, zap.NewNop())
}

func TestCreatePaymentLink(t *testing.T) {
	var got paymentLinkPayload
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payment_links", r.URL.Path)
		assert.Equal(t, "Bearer pub_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"lnk_123","permalink":"https://checkout.wompi.co/l/lnk_123","expires_at":"2026-06-01T00:00:00Z"}}`))
	}, time.Second)

	link, err := client.CreatePaymentLink(context.Background(), PaymentLinkRequest{
		OrderID:       "order-1",
		AmountInCents: 4300,
		Currency:      "USD",
		CustomerEmail: "ana@example.com",
		RedirectURL:   "http://shop/order-confirmed?order_id=order-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.wompi.co/l/lnk_123", link.URL)
	assert.Equal(t, "lnk_123", link.TransactionID)
	require.NotNil(t, link.ExpiresAt)

	assert.Equal(t, int64(4300), got.AmountInCents)
	assert.Equal(t, "order-1", got.Reference)
	assert.True(t, got.SingleUse)
	assert.Equal(t, "ana", got.CustomerData.FullName)
}

func TestCreatePaymentLinkNon201IsGatewayError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"bad amount"}`))
	}, time.Second)

	_, err := client.CreatePaymentLink(context.Background(), PaymentLinkRequest{OrderID: "o", AmountInCents: 1})
	var gwErr *errors.ErrGateway
	assert.ErrorAs(t, err, &gwErr)
	assert.Equal(t, http.StatusInternalServerError, errors.HTTPStatus(err))
}

func TestCreatePaymentLinkTimeout(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusCreated)
	}, 20*time.Millisecond)

	_, err := client.CreatePaymentLink(context.Background(), PaymentLinkRequest{OrderID: "o", AmountInCents: 1})
	var gwErr *errors.ErrGateway
	assert.ErrorAs(t, err, &gwErr)
}

func TestGetTransaction(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transactions/tx-9", r.URL.Path)
		assert.Equal(t, "Bearer prv_test", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":{"id":"tx-9","status":"APPROVED","amount_in_cents":4300,"currency":"USD","created_at":"2026-06-01T00:00:00Z"}}`))
	}, time.Second)

	tx, err := client.GetTransaction(context.Background(), "tx-9")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, tx.Status)
	assert.Equal(t, int64(4300), tx.AmountInCents)
}

func TestVerifyWebhookSignature(t *testing.T) {
	client := NewClient(config.WompiConfig{EventsSecret: "events_secret", Timeout: time.Second}, zap.NewNop())

	var event Event
	require.NoError(t, json.Unmarshal([]byte(`{"event":"transaction.updated","timestamp":1718000000,"data":{"transaction":{"id":"tx-1","status":"APPROVED","reference":"o-1"}}}`), &event))
	assert.Equal(t, "1718000000", event.TimestampString())

	sig := Sign("tx-1", "1718000000", "events_secret")
	assert.True(t, client.VerifyWebhookSignature(&event, sig))
	assert.False(t, client.VerifyWebhookSignature(&event, Sign("tx-1", "1718000000", "other")))
	assert.False(t, client.VerifyWebhookSignature(&event, ""))

	var quoted Event
	require.NoError(t, json.Unmarshal([]byte(`{"timestamp":"1718000000","data":{"transaction":{"id":"tx-1"}}}`), &quoted))
	assert.True(t, client.VerifyWebhookSignature(&quoted, sig))
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/salvashop/shopapi/internal/config"
	"github.com/salvashop/shopapi/internal/coupons"
	"github.com/salvashop/shopapi/internal/domain"
	"github.com/salvashop/shopapi/internal/inventory"
	"github.com/salvashop/shopapi/internal/metrics"
	"github.com/salvashop/shopapi/internal/notify"
	"github.com/salvashop/shopapi/internal/repository"
	"github.com/salvashop/shopapi/internal/repository/memory"
	"github.com/salvashop/shopapi/internal/service"
	"github.com/salvashop/shopapi/internal/shipping"
	"github.com/salvashop/shopapi/internal/wompi"
	"github.com/salvashop/shopapi/pkg/auth"
)

type testServer struct {
	router        *gin.Engine
	repos         *repository.Repositories
	store         *memory.Store
	cfg           *config.Config
	customerToken string
	adminToken    string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"lnk_1","permalink":"https://checkout.wompi.co/l/lnk_1"}}`))
	}))
	t.Cleanup(gateway.Close)

	cfg := &config.Config{
		Environment: "test",
		FrontendURL: "http://shop.test",
		Wompi: config.WompiConfig{
			BaseURL:      gateway.URL,
			PublicKey:    "pub_test",
			EventsSecret: "events_secret",
			Currency:     "USD",
			Timeout:      time.Second,
		},
		Auth: config.AuthConfig{JWTSecret: "test-secret", Issuer: "shopapi", ExpirationMinutes: 5},
	}

	repos, store := memory.NewRepositories()
	registry := prometheus.NewRegistry()
	orderMetrics := metrics.NewOrderMetrics(registry)
	dispatcher := notify.NewDispatcher(notify.NewLogMailer(logger), config.NotificationsConfig{Workers: 1, QueueSize: 16}, logger, orderMetrics)
	t.Cleanup(func() { _ = dispatcher.Close(context.Background()) })

	wompiClient := wompi.NewClient(cfg.Wompi, logger)
	resolver := shipping.NewResolver(shipping.DefaultCatalog())
	validator := coupons.NewValidator(repos.Coupon, logger)
	orders := service.NewOrderService(service.Dependencies{
		Repos:    repos,
		Ledger:   inventory.NewLedger(repos.Product, logger),
		Coupons:  validator,
		Shipping: resolver,
		Gateway:  wompiClient,
		Notifier: dispatcher,
		Metrics:  orderMetrics,
		Settings: service.OrderSettings{FrontendURL: cfg.FrontendURL, Currency: cfg.Wompi.Currency},
		Logger:   logger,
	})

	ts := &testServer{
		router: NewRouter(cfg, Services{
			Orders:   orders,
			Coupons:  service.NewCouponService(repos.Coupon, validator, logger),
			Webhooks: service.NewWebhookService(orders, wompiClient, orderMetrics, logger),
			Shipping: resolver,
			Gatherer: registry,
		}, logger),
		repos: repos,
		store: store,
		cfg:   cfg,
	}

	address := &domain.Address{Street: "Calle Arce 10", City: "San Salvador", Country: "SV"}
	ts.customerToken = ts.addUser(t, "ana@example.com", domain.UserRoleCustomer, address)
	ts.adminToken = ts.addUser(t, "admin@example.com", domain.UserRoleAdmin, nil)
	return ts
}

func (ts *testServer) addUser(t *testing.T, email string, role domain.UserRole, address *domain.Address) string {
	t.Helper()
	user := &domain.User{Email: email, FirstName: "Test", Role: role, Address: address}
	require.NoError(t, ts.repos.User.Create(context.Background(), user))
	token, err := auth.MintAccessToken(ts.cfg.Auth, time.Now(), user)
	require.NoError(t, err)
	return token
}

func (ts *testServer) addProduct(t *testing.T, price float64, stock int) *domain.Product {
	t.Helper()
	p := &domain.Product{Name: "Tee", BasePrice: price, Stock: stock, IsActive: true}
	require.NoError(t, ts.repos.Product.Create(context.Background(), p))
	return p
}

func (ts *testServer) do(method, path, token string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case []byte:
			buf.Write(b)
		default:
			_ = json.NewEncoder(&buf).Encode(b)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (ts *testServer) createOrder(t *testing.T, p *domain.Product, qty int) string {
	t.Helper()
	w := ts.do(http.MethodPost, "/v1/orders", ts.customerToken, map[string]interface{}{
		"items": []map[string]interface{}{{"product_id": p.ID.String(), "quantity": qty}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode(t, w)["id"].(string)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	ts.createOrder(t, ts.addProduct(t, 10, 5), 1)
	w = ts.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "orders_created_total")
}

func TestCreateOrderEndpoint(t *testing.T) {
	ts := newTestServer(t)
	p := ts.addProduct(t, 20, 5)

	w := ts.do(http.MethodPost, "/v1/orders", "", map[string]interface{}{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(http.MethodPost, "/v1/orders", "not-a-jwt", map[string]interface{}{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(http.MethodPost, "/v1/orders", ts.customerToken, map[string]interface{}{"items": []interface{}{}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = ts.do(http.MethodPost, "/v1/orders", ts.customerToken, map[string]interface{}{
		"items":       []map[string]interface{}{{"product_id": p.ID.String(), "quantity": 2}},
		"coupon_code": "NOPE",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "PENDING", body["status"])
	assert.Equal(t, 40.0, body["subtotal"])
	assert.Equal(t, 43.0, body["total_amount"])
	assert.Len(t, body["warnings"], 1)
	assert.Equal(t, 3, ts.store.ProductStock(p.ID, ""))

	w = ts.do(http.MethodPost, "/v1/orders", ts.customerToken, map[string]interface{}{
		"items": []map[string]interface{}{{"product_id": p.ID.String(), "quantity": 9}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 3.0, decode(t, w)["available"])
}

func TestCreateOrderIdempotencyKey(t *testing.T) {
	ts := newTestServer(t)
	p := ts.addProduct(t, 10, 5)
	payload := map[string]interface{}{
		"items": []map[string]interface{}{{"product_id": p.ID.String(), "quantity": 1}},
	}

	first := ts.do(http.MethodPost, "/v1/orders", ts.customerToken, payload, "Idempotency-Key", "checkout-1")
	require.Equal(t, http.StatusCreated, first.Code)
	again := ts.do(http.MethodPost, "/v1/orders", ts.customerToken, payload, "Idempotency-Key", "checkout-1")
	require.Equal(t, http.StatusOK, again.Code)
	assert.Equal(t, decode(t, first)["id"], decode(t, again)["id"])
	assert.Equal(t, 4, ts.store.ProductStock(p.ID, ""))

	w := ts.do(http.MethodPost, "/v1/orders", ts.customerToken, payload, "Idempotency-Key", "bad\tkey")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOrderLifecycleEndpoints(t *testing.T) {
	ts := newTestServer(t)
	p := ts.addProduct(t, 10, 5)
	id := ts.createOrder(t, p, 2)

	w := ts.do(http.MethodGet, "/v1/orders/"+id, ts.customerToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(http.MethodGet, "/v1/orders/not-a-uuid", ts.customerToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodGet, "/v1/orders/me?limit=5", ts.customerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, decode(t, w)["count"])

	w = ts.do(http.MethodGet, "/v1/orders/me?status=LOST", ts.customerToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodPost, "/v1/orders/"+id+"/payment-link", ts.customerToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "https://checkout.wompi.co/l/lnk_1", decode(t, w)["payment_link"])

	w = ts.do(http.MethodPost, "/v1/orders/"+id+"/cancel", ts.customerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "CANCELLED", decode(t, w)["status"])
	assert.Equal(t, 5, ts.store.ProductStock(p.ID, ""))

	w = ts.do(http.MethodPost, "/v1/orders/"+id+"/cancel", ts.customerToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createOrder(t, ts.addProduct(t, 10, 5), 1)

	w := ts.do(http.MethodGet, "/v1/admin/orders", ts.customerToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(http.MethodGet, "/v1/admin/orders?status=PENDING", ts.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, decode(t, w)["count"])

	w = ts.do(http.MethodPatch, "/v1/admin/orders/"+id+"/status", ts.adminToken, map[string]interface{}{
		"status": "SHIPPED", "notes": "handed to carrier",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "SHIPPED", decode(t, w)["status"])

	w = ts.do(http.MethodPatch, "/v1/admin/orders/"+id+"/shipping", ts.adminToken, map[string]interface{}{
		"tracking_number": "SV123", "carrier": "Correos",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "SV123", decode(t, w)["tracking_number"])

	w = ts.do(http.MethodPost, "/v1/admin/orders/"+id+"/refund?notes=damaged", ts.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "REFUNDED", decode(t, w)["status"])

	w = ts.do(http.MethodPost, "/v1/admin/orders/"+id+"/refund?notes=again", ts.adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodGet, "/v1/admin/orders/stats/summary", ts.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, decode(t, w)["total_orders"])
}

func TestCouponEndpoints(t *testing.T) {
	ts := newTestServer(t)
	now := time.Now().UTC()

	w := ts.do(http.MethodPost, "/v1/admin/coupons", ts.adminToken, map[string]interface{}{
		"code":           "save10",
		"discount_type":  "percentage",
		"discount_value": 10,
		"valid_from":     now.Add(-time.Hour),
		"valid_until":    now.Add(time.Hour),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "SAVE10", decode(t, w)["code"])

	w = ts.do(http.MethodPost, "/v1/coupons/validate", "", map[string]interface{}{"code": "save10", "subtotal": 40})
	require.Equal(t, http.StatusOK, w.Code)
	coupon := decode(t, w)["coupon"].(map[string]interface{})
	assert.Equal(t, 4.0, coupon["discount_amount"])

	w = ts.do(http.MethodPost, "/v1/coupons/validate", "", map[string]interface{}{"code": "missing", "subtotal": 40})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(http.MethodPost, "/v1/admin/coupons/SAVE10/deactivate", ts.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["is_active"])

	w = ts.do(http.MethodPost, "/v1/coupons/validate", "", map[string]interface{}{"code": "SAVE10", "subtotal": 40})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodDelete, "/v1/admin/coupons/save10", ts.adminToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = ts.do(http.MethodGet, "/v1/admin/coupons/SAVE10", ts.adminToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestShippingEndpoints(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/v1/shipping/methods", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["methods"], 3)

	w = ts.do(http.MethodGet, "/v1/shipping/quote?method=express&subtotal=20", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 10.0, decode(t, w)["cost"])

	w = ts.do(http.MethodGet, "/v1/shipping/quote?subtotal=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWompiWebhookAlwaysAcknowledges(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createOrder(t, ts.addProduct(t, 10, 5), 1)

	w := ts.do(http.MethodPost, "/v1/webhooks/wompi", "", []byte("{not json"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["processed"])

	body := []byte(fmt.Sprintf(
		`{"event":"transaction.updated","timestamp":1718000000,"data":{"transaction":{"id":"tx-1","status":"APPROVED","reference":%q}}}`, id))

	w = ts.do(http.MethodPost, "/v1/webhooks/wompi", "", body, wompi.SignatureHeader, "deadbeef")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "invalid signature", decode(t, w)["reason"])

	sig := wompi.Sign("tx-1", "1718000000", "events_secret")
	w = ts.do(http.MethodPost, "/v1/webhooks/wompi", "", body, wompi.SignatureHeader, sig)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["processed"])

	w = ts.do(http.MethodGet, "/v1/orders/"+id, ts.customerToken, nil)
	assert.Equal(t, "PAID", decode(t, w)["status"])

	w = ts.do(http.MethodGet, "/v1/webhooks/wompi/test", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

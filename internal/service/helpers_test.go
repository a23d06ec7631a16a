package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/salvashop/shopapi/internal/coupons"
	"github.com/salvashop/shopapi/internal/domain"
	"github.com/salvashop/shopapi/internal/inventory"
	"github.com/salvashop/shopapi/internal/repository"
	"github.com/salvashop/shopapi/internal/repository/memory"
	"github.com/salvashop/shopapi/internal/shipping"
	"github.com/salvashop/shopapi/internal/wompi"
	"github.com/salvashop/shopapi/pkg/errors"
)

type recordingNotifier struct {
	mu    sync.Mutex
	calls map[string][]uuid.UUID
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{calls: make(map[string][]uuid.UUID)}
}

func (n *recordingNotifier) record(kind string, order *domain.Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls[kind] = append(n.calls[kind], order.ID)
}

func (n *recordingNotifier) SendOrderConfirmation(order *domain.Order, _ string) {
	n.record("order_confirmation", order)
}

func (n *recordingNotifier) SendPaymentConfirmation(order *domain.Order, _ string) {
	n.record("payment_confirmation", order)
}

func (n *recordingNotifier) SendShippingNotification(order *domain.Order, _ string, _ string) {
	n.record("shipping_notification", order)
}

func (n *recordingNotifier) count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls[kind])
}

type fakeGateway struct {
	link     *wompi.PaymentLink
	err      error
	requests []wompi.PaymentLinkRequest
}

func (g *fakeGateway) CreatePaymentLink(_ context.Context, req wompi.PaymentLinkRequest) (*wompi.PaymentLink, error) {
	g.requests = append(g.requests, req)
	if g.err != nil {
		return nil, g.err
	}
	return g.link, nil
}

type fixture struct {
	ctx      context.Context
	now      time.Time
	repos    *repository.Repositories
	store    *memory.Store
	notifier *recordingNotifier
	gateway  *fakeGateway
	svc      *OrderService
	customer Actor
	other    Actor
	admin    Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repos, store := memory.NewRepositories()
	logger := zap.NewNop()
	f := &fixture{
		ctx:      context.Background(),
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		repos:    repos,
		store:    store,
		notifier: newRecordingNotifier(),
		gateway: &fakeGateway{link: &wompi.PaymentLink{
			URL:           "https://checkout.wompi.co/l/lnk_1",
			TransactionID: "lnk_1",
		}},
	}
	f.svc = NewOrderService(Dependencies{
		Repos:    repos,
		Ledger:   inventory.NewLedger(repos.Product, logger),
		Coupons:  coupons.NewValidator(repos.Coupon, logger),
		Shipping: shipping.NewResolver(shipping.DefaultCatalog()),
		Gateway:  f.gateway,
		Notifier: f.notifier,
		Settings: OrderSettings{FrontendURL: "http://shop.test/", Currency: "USD"},
		Logger:   logger,
	})
	f.svc.now = func() time.Time { return f.now }

	street := domain.Address{Street: "Calle Arce 10", City: "San Salvador", Country: "SV"}
	f.customer = f.addUser(t, "ana@example.com", domain.UserRoleCustomer, &street)
	f.other = f.addUser(t, "luis@example.com", domain.UserRoleCustomer, &street)
	f.admin = f.addUser(t, "admin@example.com", domain.UserRoleAdmin, nil)
	return f
}

func (f *fixture) addUser(t *testing.T, email string, role domain.UserRole, address *domain.Address) Actor {
	t.Helper()
	user := &domain.User{Email: email, FirstName: "Test", Role: role, Address: address}
	require.NoError(t, f.repos.User.Create(f.ctx, user))
	return Actor{UserID: user.ID, Email: user.Email, Role: user.Role}
}

func (f *fixture) addProduct(t *testing.T, name string, price float64, stock int) *domain.Product {
	t.Helper()
	p := &domain.Product{Name: name, BasePrice: price, Stock: stock, IsActive: true}
	require.NoError(t, f.repos.Product.Create(f.ctx, p))
	return p
}

func (f *fixture) addVariantProduct(t *testing.T, name string, price float64, variants ...domain.ProductVariant) *domain.Product {
	t.Helper()
	p := &domain.Product{Name: name, BasePrice: price, HasVariants: true, Variants: variants, IsActive: true}
	require.NoError(t, f.repos.Product.Create(f.ctx, p))
	return p
}

func (f *fixture) addCoupon(t *testing.T, c *domain.Coupon) {
	t.Helper()
	if c.ValidFrom.IsZero() {
		c.ValidFrom = f.now.Add(-24 * time.Hour)
	}
	if c.ValidUntil.IsZero() {
		c.ValidUntil = f.now.Add(24 * time.Hour)
	}
	c.IsActive = true
	require.NoError(t, f.repos.Coupon.Create(f.ctx, c))
}

func (f *fixture) order(t *testing.T, actor Actor, req CreateOrderRequest) *domain.Order {
	t.Helper()
	res, err := f.svc.CreateOrder(f.ctx, actor, req, "")
	require.NoError(t, err)
	return res.Order
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) *domain.Order {
	t.Helper()
	o, err := f.repos.Order.GetByID(f.ctx, id)
	require.NoError(t, err)
	return o
}

func item(p *domain.Product, qty int) CartItem {
	return CartItem{ProductID: p.ID, Quantity: qty}
}

func ptr[T any](v T) *T { return &v }

// racingProducts simulates another buyer taking the stock between the check and the reservation
type racingProducts struct {
	repository.ProductRepository
	soldOut uuid.UUID
}

func (r racingProducts) DecrementStock(ctx context.Context, id uuid.UUID, qty int) (bool, error) {
	if id == r.soldOut {
		return false, nil
	}
	return r.ProductRepository.DecrementStock(ctx, id, qty)
}

type failingOrderCreate struct {
	repository.OrderRepository
}

func (failingOrderCreate) Create(context.Context, *domain.Order) error {
	return &errors.ErrConflict{Message: "database unavailable"}
}

// flakySave reports a version conflict for the first n saves
type flakySave struct {
	repository.OrderRepository
	mu       sync.Mutex
	failures int
	calls    int
}

func (r *flakySave) Save(ctx context.Context, order *domain.Order) error {
	r.mu.Lock()
	r.calls++
	fail := r.failures > 0
	if fail {
		r.failures--
	}
	r.mu.Unlock()
	if fail {
		return &errors.ErrConflict{Message: "modified concurrently"}
	}
	return r.OrderRepository.Save(ctx, order)
}

func withOrders(repos *repository.Repositories, orders repository.OrderRepository) *repository.Repositories {
	clone := *repos
	clone.Order = orders
	return &clone
}

// lateKeys misses the first n lookups, as if the same-key request had not committed yet
type lateKeys struct {
	repository.IdempotencyKeyRepository
	mu     sync.Mutex
	misses int
}

func (r *lateKeys) Get(ctx context.Context, userID uuid.UUID, key string) (*domain.IdempotencyKey, error) {
	r.mu.Lock()
	miss := r.misses > 0
	if miss {
		r.misses--
	}
	r.mu.Unlock()
	if miss {
		return nil, &errors.ErrNotFound{Resource: "idempotency key", ID: key}
	}
	return r.IdempotencyKeyRepository.Get(ctx, userID, key)
}

func withKeys(repos *repository.Repositories, keys repository.IdempotencyKeyRepository) *repository.Repositories {
	clone := *repos
	clone.IdempotencyKey = keys
	return &clone
}

package service

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/salvashop/shopapi/internal/domain"
	"github.com/salvashop/shopapi/internal/inventory"
	"github.com/salvashop/shopapi/internal/money"
	"github.com/salvashop/shopapi/pkg/errors"
)

func TestCreateOrderPricesAndReserves(t *testing.T) {
	f := newFixture(t)
	tee := f.addProduct(t, "Tee", 20, 5)
	hoodie := f.addVariantProduct(t, "Hoodie", 10, domain.ProductVariant{
		SKU: "HD-M-RED", Size: ptr("M"), Color: ptr("Red"), Stock: 3,
		PriceAdjustment: 2.5, IsAvailable: true, ImageURL: ptr("https://img/hd-red.jpg"),
	})

	res, err := f.svc.CreateOrder(f.ctx, f.customer, CreateOrderRequest{
		Items: []CartItem{
			item(tee, 2),
			{ProductID: hoodie.ID, VariantSKU: "HD-M-RED", Quantity: 1},
		},
	}, "")
	require.NoError(t, err)
	order := res.Order

	assert.Empty(t, res.Warnings)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, 52.5, order.Subtotal)
	assert.Equal(t, 0.0, order.ShippingCost, "standard_ss is free from 50")
	assert.Equal(t, "standard_ss", order.ShippingMethodID)
	assert.Equal(t, 52.5, order.TotalAmount)
	require.NotNil(t, order.EstimatedDelivery)

	require.Len(t, order.Items, 2)
	assert.Equal(t, 12.5, order.Items[1].Price)
	assert.Equal(t, "M Red", *order.Items[1].VariantInfo)
	assert.Equal(t, "https://img/hd-red.jpg", *order.Items[1].ProductImage)

	require.Len(t, order.TrackingHistory, 1)
	assert.Equal(t, domain.ActorSystem, *order.TrackingHistory[0].UpdatedBy)
	assert.Equal(t, "Order created, awaiting payment", *order.TrackingHistory[0].Notes)

	assert.Equal(t, 3, f.store.ProductStock(tee.ID, ""))
	assert.Equal(t, 2, f.store.ProductStock(hoodie.ID, "HD-M-RED"))
	assert.Equal(t, 1, f.notifier.count("order_confirmation"))

	stored := f.reload(t, order.ID)
	assert.Equal(t, order.TotalAmount, stored.TotalAmount)
}

func TestCreateOrderTotalInvariant(t *testing.T) {
	f := newFixture(t)
	mug := f.addProduct(t, "Mug", 7.35, 100)
	f.addCoupon(t, &domain.Coupon{Code: "PCT15", DiscountType: domain.DiscountTypePercentage, DiscountValue: 15, MaxUsesPerUser: 100})

	for qty := 1; qty <= 9; qty += 2 {
		for _, method := range []string{"standard_ss", "standard_national", "express", "unknown"} {
			order := f.order(t, f.customer, CreateOrderRequest{
				Items:            []CartItem{item(mug, qty)},
				ShippingMethodID: method,
				CouponCode:       "pct15",
			})
			assert.Equal(t, money.OrderTotal(order.Subtotal, order.DiscountAmount, order.ShippingCost), order.TotalAmount)
			assert.LessOrEqual(t, order.DiscountAmount, order.Subtotal)
		}
	}
}

func TestCreateOrderAppliesCouponAndShipping(t *testing.T) {
	f := newFixture(t)
	hat := f.addProduct(t, "Cap", 15, 10)
	f.addCoupon(t, &domain.Coupon{Code: "SAVE10", DiscountType: domain.DiscountTypeFixed, DiscountValue: 10, MinimumAmount: ptr(20.0), MaxUsesPerUser: 1})

	order := f.order(t, f.customer, CreateOrderRequest{Items: []CartItem{item(hat, 2)}, CouponCode: " save10 "})

	assert.Equal(t, 30.0, order.Subtotal)
	assert.Equal(t, 10.0, order.DiscountAmount)
	assert.Equal(t, 3.0, order.ShippingCost)
	assert.Equal(t, 23.0, order.TotalAmount)
	require.NotNil(t, order.CouponCode)
	assert.Equal(t, "SAVE10", *order.CouponCode)
	assert.Equal(t, domain.DiscountTypeFixed, *order.CouponDiscountType)
	assert.Equal(t, 1, f.store.CouponUses("SAVE10"))
}

func TestSave10SingleUseAcrossCustomers(t *testing.T) {
	f := newFixture(t)
	bag := f.addProduct(t, "Bag", 50, 10)
	f.addCoupon(t, &domain.Coupon{Code: "SAVE10", DiscountType: domain.DiscountTypeFixed, DiscountValue: 10, MinimumAmount: ptr(20.0), MaxUses: ptr(1), MaxUsesPerUser: 1})

	first := f.order(t, f.customer, CreateOrderRequest{Items: []CartItem{item(bag, 1)}, CouponCode: "SAVE10"})
	assert.Equal(t, 10.0, first.DiscountAmount)
	assert.Equal(t, 40.0, first.TotalAmount)
	assert.Equal(t, 1, f.store.CouponUses("SAVE10"))

	res, err := f.svc.CreateOrder(f.ctx, f.other, CreateOrderRequest{Items: []CartItem{item(bag, 1)}, CouponCode: "SAVE10"}, "")
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Order.DiscountAmount)
	assert.Nil(t, res.Order.CouponCode)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "no uses left")
	assert.Equal(t, 1, f.store.CouponUses("SAVE10"))
}

func TestCreateOrderSkipsInvalidCoupon(t *testing.T) {
	f := newFixture(t)
	hat := f.addProduct(t, "Cap", 15, 10)
	f.addCoupon(t, &domain.Coupon{
		Code: "OLD", DiscountType: domain.DiscountTypeFixed, DiscountValue: 5, MaxUsesPerUser: 1,
		ValidFrom: f.now.Add(-48 * time.Hour), ValidUntil: f.now.Add(-time.Hour),
	})

	res, err := f.svc.CreateOrder(f.ctx, f.customer, CreateOrderRequest{Items: []CartItem{item(hat, 1)}, CouponCode: "OLD"}, "")
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Order.DiscountAmount)
	assert.Len(t, res.Warnings, 1)
	assert.Equal(t, 0, f.store.CouponUses("OLD"))

	res, err = f.svc.CreateOrder(f.ctx, f.customer, CreateOrderRequest{Items: []CartItem{item(hat, 1)}, CouponCode: "MISSING"}, "")
	require.NoError(t, err)
	assert.Len(t, res.Warnings, 1)
}

func TestCreateOrderPerUserCouponCap(t *testing.T) {
	f := newFixture(t)
	hat := f.addProduct(t, "Cap", 15, 10)
	f.addCoupon(t, &domain.Coupon{Code: "ONCE", DiscountType: domain.DiscountTypeFixed, DiscountValue: 2, MaxUsesPerUser: 1})

	first := f.order(t, f.customer, CreateOrderRequest{Items: []CartItem{item(hat, 1)}, CouponCode: "ONCE"})
	assert.Equal(t, 2.0, first.DiscountAmount)

	res, err := f.svc.CreateOrder(f.ctx, f.customer, CreateOrderRequest{Items: []CartItem{item(hat, 1)}, CouponCode: "ONCE"}, "")
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Order.DiscountAmount)
	assert.Len(t, res.Warnings, 1)

	// cancelling the first order frees the customer's use again
	_, err = f.svc.CancelOrder(f.ctx, f.customer, first.ID)
	require.NoError(t, err)
	third := f.order(t, f.customer, CreateOrderRequest{Items: []CartItem{item(hat, 1)}, CouponCode: "ONCE"})
	assert.Equal(t, 2.0, third.DiscountAmount)
}

func TestCreateOrderAddress(t *testing.T) {
	f := newFixture(t)
	hat := f.addProduct(t, "Cap", 15, 10)

	order := f.order(t, f.customer, CreateOrderRequest{Items: []CartItem{item(hat, 1)}})
	assert.Equal(t, "Calle Arce 10", order.ShippingAddress.Street, "falls back to the profile address")

	explicit := &domain.Address{Street: "Av. Roosevelt 5", City: "Santa Ana", Country: "SV"}
	order = f.order(t, f.customer, CreateOrderRequest{Items: []CartItem{item(hat, 1)}, ShippingAddress: explicit})
	assert.Equal(t, "Santa Ana", order.ShippingAddress.City)

	_, err := f.svc.CreateOrder(f.ctx, f.admin, CreateOrderRequest{Items: []CartItem{item(hat, 1)}}, "")
	var validation *errors.ErrValidation
	assert.ErrorAs(t, err, &validation)
}

func TestCreateOrderRejectsBadLines(t *testing.T) {
	f := newFixture(t)
	hat := f.addProduct(t, "Cap", 15, 1)
	hidden := &domain.Product{Name: "Hidden", BasePrice: 15, Stock: 10}
	require.NoError(t, f.repos.Product.Create(f.ctx, hidden))
	hoodie := f.addVariantProduct(t, "Hoodie", 10, domain.ProductVariant{SKU: "HD-S", Stock: 5, IsAvailable: false})

	_, err := f.svc.CreateOrder(f.ctx, f.customer, CreateOrderRequest{Items: []CartItem{item(hidden, 1)}}, "")
	assert.True(t, errors.IsNotFound(err))

	_, err = f.svc.CreateOrder(f.ctx, f.customer, CreateOrderRequest{Items: []CartItem{{ProductID: hoodie.ID, VariantSKU: "HD-XL", Quantity: 1}}}, "")
	var validation *errors.ErrValidation
	assert.ErrorAs(t, err, &validation)

	_, err = f.svc.CreateOrder(f.ctx, f.customer, CreateOrderRequest{Items: []CartItem{{ProductID: hoodie.ID, VariantSKU: "HD-S", Quantity: 1}}}, "")
	assert.True(t, errors.IsInsufficientStock(err), "unavailable variant")

	_, err = f.svc.CreateOrder(f.ctx, f.customer, CreateOrderRequest{Items: []CartItem{item(hat, 2)}}, "")
	assert.True(t, errors.IsInsufficientStock(err))
	assert.Equal(t, 1, f.store.ProductStock(hat.ID, ""))

	_, err = f.svc.CreateOrder(f.ctx, f.customer, CreateOrderRequest{Items: []CartItem{item(hat, 0)}}, "")
	assert.ErrorAs(t, err, &validation)

	_, err = f.svc.CreateOrder(f.ctx, f.customer, CreateOrderRequest{}, "")
	assert.ErrorAs(t, err, &validation)
}

func TestCreateOrderRollsBackEarlierReservations(t *testing.T) {
	f := newFixture(t)
	first := f.addProduct(t, "First", 10, 5)
	second := f.addProduct(t, "Second", 10, 5)
	f.addCoupon(t, &domain.Coupon{Code: "TWO", DiscountType: domain.DiscountTypeFixed, DiscountValue: 2, MaxUsesPerUser: 1})
	f.svc.ledger = inventory.NewLedger(racingProducts{ProductRepository: f.repos.Product, soldOut: second.ID}, zap.NewNop())

	_, err := f.svc.CreateOrder(f.ctx, f.customer, CreateOrderRequest{
		Items:      []CartItem{item(first, 2), item(second, 1)},
		CouponCode: "TWO",
	}, "")
	assert.True(t, errors.IsInsufficientStock(err))
	assert.Equal(t, 5, f.store.ProductStock(first.ID, ""), "first line released")
	assert.Equal(t, 5, f.store.ProductStock(second.ID, ""))
	assert.Equal(t, 0, f.store.CouponUses("TWO"), "coupon not committed")
	assert.Equal(t, 0, f.notifier.count("order_confirmation"))
}

func TestCreateOrderPersistFailureCompensates(t *testing.T) {
	f := newFixture(t)
	hat := f.addProduct(t, "Cap", 15, 4)
	f.addCoupon(t, &domain.Coupon{Code: "TWO", DiscountType: domain.DiscountTypeFixed, DiscountValue: 2, MaxUsesPerUser: 1})
	f.svc.repos = withOrders(f.repos, failingOrderCreate{f.repos.Order})

	_, err := f.svc.CreateOrder(f.ctx, f.customer, CreateOrderRequest{Items: []CartItem{item(hat, 3)}, CouponCode: "TWO"}, "")
	require.Error(t, err)
	assert.Equal(t, 4, f.store.ProductStock(hat.ID, ""))
	assert.Equal(t, 0, f.store.CouponUses("TWO"))
}

func TestConcurrentCheckoutForLastUnit(t *testing.T) {
	f := newFixture(t)
	last := f.addProduct(t, "Last one", 30, 1)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, actor := range []Actor{f.customer, f.other} {
		wg.Add(1)
		go func(i int, actor Actor) {
			defer wg.Done()
			_, errs[i] = f.svc.CreateOrder(f.ctx, actor, CreateOrderRequest{Items: []CartItem{item(last, 1)}}, "")
		}(i, actor)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.IsInsufficientStock(err), "loser gets insufficient stock, got %v", err)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 0, f.store.ProductStock(last.ID, ""))
}

func TestCreateOrderIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	hat := f.addProduct(t, "Cap", 15, 10)
	req := CreateOrderRequest{Items: []CartItem{item(hat, 2)}}

	first, err := f.svc.CreateOrder(f.ctx, f.customer, req, "key-1")
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	again, err := f.svc.CreateOrder(f.ctx, f.customer, req, "key-1")
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, first.Order.ID, again.Order.ID)
	assert.Equal(t, 8, f.store.ProductStock(hat.ID, ""), "stock reserved once")

	_, err = f.svc.CreateOrder(f.ctx, f.customer, CreateOrderRequest{Items: []CartItem{item(hat, 1)}}, "key-1")
	assert.True(t, errors.IsConflict(err))

	other, err := f.svc.CreateOrder(f.ctx, f.other, req, "key-1")
	require.NoError(t, err)
	assert.NotEqual(t, first.Order.ID, other.Order.ID, "keys are scoped per user")
}

func TestSameKeyLoserReplaysWinner(t *testing.T) {
	f := newFixture(t)
	last := f.addProduct(t, "Last one", 30, 1)
	req := CreateOrderRequest{Items: []CartItem{item(last, 1)}}

	winner, err := f.svc.CreateOrder(f.ctx, f.customer, req, "key-7")
	require.NoError(t, err)
	assert.Equal(t, 0, f.store.ProductStock(last.ID, ""))

	// the retry looked the key up before the winner stored it
	f.svc.repos = withKeys(f.repos, &lateKeys{IdempotencyKeyRepository: f.repos.IdempotencyKey, misses: 1})
	retry, err := f.svc.CreateOrder(f.ctx, f.customer, req, "key-7")
	require.NoError(t, err)
	assert.True(t, retry.Replayed)
	assert.Equal(t, winner.Order.ID, retry.Order.ID)
	assert.Equal(t, 0, f.store.ProductStock(last.ID, ""))

	f.svc.repos = withKeys(f.repos, &lateKeys{IdempotencyKeyRepository: f.repos.IdempotencyKey, misses: 1})
	_, err = f.svc.CreateOrder(f.ctx, f.customer, req, "key-8")
	assert.True(t, errors.IsInsufficientStock(err), "a different key still sees the sold out product")
}

func TestGetAndListOrders(t *testing.T) {
	f := newFixture(t)
	hat := f.addProduct(t, "Cap", 15, 10)
	mine := f.order(t, f.customer, CreateOrderRequest{Items: []CartItem{item(hat, 1)}})
	f.order(t, f.other, CreateOrderRequest{Items: []CartItem{item(hat, 1)}})

	_, err := f.svc.GetOrder(f.ctx, f.other, mine.ID)
	assert.Equal(t, 403, errors.HTTPStatus(err))

	got, err := f.svc.GetOrder(f.ctx, f.admin, mine.ID)
	require.NoError(t, err)
	assert.Equal(t, mine.ID, got.ID)

	list, err := f.svc.ListMine(f.ctx, f.customer, nil, 0, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	pending := domain.OrderStatusPending
	all, err := f.svc.List(f.ctx, &pending, 500, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	bogus := domain.OrderStatus("LOST")
	_, err = f.svc.List(f.ctx, &bogus, 10, 0)
	assert.Equal(t, 400, errors.HTTPStatus(err))

	stats, err := f.svc.Stats(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalOrders)
	assert.Equal(t, 2, stats.Pending)
	assert.Equal(t, 0.0, stats.TotalRevenue)
}

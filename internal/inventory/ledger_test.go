package inventory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/salvashop/shopapi/internal/domain"
	"github.com/salvashop/shopapi/internal/repository/memory"
	"github.com/salvashop/shopapi/pkg/errors"
)

func seed(t *testing.T) (*Ledger, *memory.Store, *domain.Product, *domain.Product) {
	t.Helper()
	ctx := context.Background()
	repos, store := memory.NewRepositories()

	simple := &domain.Product{Name: "Candle", BasePrice: 12, Stock: 3, IsActive: true}
	require.NoError(t, repos.Product.Create(ctx, simple))

	variant := &domain.Product{
		Name: "Hoodie", BasePrice: 30, HasVariants: true, IsActive: true,
		Variants: []domain.ProductVariant{{SKU: "HOOD-L", Stock: 1, IsAvailable: true}},
	}
	require.NoError(t, repos.Product.Create(ctx, variant))

	return NewLedger(repos.Product, zap.NewNop()), store, simple, variant
}

func TestReserveAndRelease(t *testing.T) {
	ctx := context.Background()
	ledger, store, simple, variant := seed(t)

	require.NoError(t, ledger.Reserve(ctx, Line{ProductID: simple.ID, Quantity: 2}))
	require.NoError(t, ledger.Reserve(ctx, Line{ProductID: variant.ID, VariantSKU: "HOOD-L", Quantity: 1}))
	assert.Equal(t, 1, store.ProductStock(simple.ID, ""))
	assert.Equal(t, 0, store.ProductStock(variant.ID, "HOOD-L"))

	require.NoError(t, ledger.Release(ctx, Line{ProductID: simple.ID, Quantity: 2}))
	require.NoError(t, ledger.Release(ctx, Line{ProductID: variant.ID, VariantSKU: "HOOD-L", Quantity: 1}))
	assert.Equal(t, 3, store.ProductStock(simple.ID, ""))
	assert.Equal(t, 1, store.ProductStock(variant.ID, "HOOD-L"))
}

func TestReserveInsufficientStock(t *testing.T) {
	ledger, store, simple, _ := seed(t)

	err := ledger.Reserve(context.Background(), Line{ProductID: simple.ID, Quantity: 4})
	var stockErr *errors.ErrInsufficientStock
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 3, stockErr.Available)
	assert.Equal(t, 3, store.ProductStock(simple.ID, ""), "failed reservation must not change stock")
}

func TestReserveRejectsNonPositiveQuantity(t *testing.T) {
	ledger, _, simple, _ := seed(t)
	err := ledger.Reserve(context.Background(), Line{ProductID: simple.ID, Quantity: 0})
	var validation *errors.ErrValidation
	assert.ErrorAs(t, err, &validation)
}

func TestReserveAllRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	ledger, store, simple, variant := seed(t)

	err := ledger.ReserveAll(ctx, []Line{
		{ProductID: simple.ID, Quantity: 2},
		{ProductID: variant.ID, VariantSKU: "HOOD-L", Quantity: 5},
	})
	require.Error(t, err)
	assert.True(t, errors.IsInsufficientStock(err))

	assert.Equal(t, 3, store.ProductStock(simple.ID, ""), "first line must be released")
	assert.Equal(t, 1, store.ProductStock(variant.ID, "HOOD-L"))
}

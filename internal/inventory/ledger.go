// Package inventory reserves and releases product stock through conditional
// single-row updates. No locks are taken.
package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/salvashop/shopapi/internal/repository"
	"github.com/salvashop/shopapi/pkg/errors"
)

// Line is one stock movement: a product, optionally one of its variants, and a quantity
type Line struct {
	ProductID  uuid.UUID
	VariantSKU string
	Quantity   int
}

type Ledger struct {
	products repository.ProductRepository
	logger   *zap.Logger
}

func NewLedger(products repository.ProductRepository, logger *zap.Logger) *Ledger {
	return &Ledger{
		products: products,
		logger:   logger,
	}
}

// Reserve decrements stock only if enough is available.
// Returns *errors.ErrInsufficientStock when the conditional update matched nothing.
func (l *Ledger) Reserve(ctx context.Context, line Line) error {
	if line.Quantity <= 0 {
		return &errors.ErrValidation{Message: fmt.Sprintf("quantity must be positive, got %d", line.Quantity)}
	}

	var ok bool
	var err error
	if line.VariantSKU != "" {
		ok, err = l.products.DecrementVariantStock(ctx, line.ProductID, line.VariantSKU, line.Quantity)
	} else {
		ok, err = l.products.DecrementStock(ctx, line.ProductID, line.Quantity)
	}
	if err != nil {
		return fmt.Errorf("reserve stock for product %s: %w", line.ProductID, err)
	}
	if !ok {
		return &errors.ErrInsufficientStock{
			ProductID: line.ProductID.String(),
			SKU:       line.VariantSKU,
			Requested: line.Quantity,
			Available: l.available(ctx, line),
		}
	}
	return nil
}

// Release adds quantity back. It is not guarded against double release.
func (l *Ledger) Release(ctx context.Context, line Line) error {
	var err error
	if line.VariantSKU != "" {
		err = l.products.IncrementVariantStock(ctx, line.ProductID, line.VariantSKU, line.Quantity)
	} else {
		err = l.products.IncrementStock(ctx, line.ProductID, line.Quantity)
	}
	if err != nil {
		return fmt.Errorf("release stock for product %s: %w", line.ProductID, err)
	}
	return nil
}

// ReserveAll reserves every line or none: when a reservation fails, lines
// already reserved in this call are released before the error is returned.
func (l *Ledger) ReserveAll(ctx context.Context, lines []Line) error {
	reserved := make([]Line, 0, len(lines))
	for _, line := range lines {
		if err := l.Reserve(ctx, line); err != nil {
			if rollbackErr := l.ReleaseAll(ctx, reserved); rollbackErr != nil {
				l.logger.Error("Failed to roll back stock reservations",
					zap.Int("lines", len(reserved)),
					zap.Error(rollbackErr),
				)
				return multierr.Append(err, rollbackErr)
			}
			return err
		}
		reserved = append(reserved, line)
	}
	return nil
}

// ReleaseAll attempts every release and returns the combined errors
func (l *Ledger) ReleaseAll(ctx context.Context, lines []Line) error {
	var errs error
	for _, line := range lines {
		if err := l.Release(ctx, line); err != nil {
			l.logger.Warn("Failed to release stock",
				zap.String("product_id", line.ProductID.String()),
				zap.String("sku", line.VariantSKU),
				zap.Int("quantity", line.Quantity),
				zap.Error(err),
			)
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (l *Ledger) available(ctx context.Context, line Line) int {
	product, err := l.products.GetByID(ctx, line.ProductID)
	if err != nil {
		return 0
	}
	if line.VariantSKU == "" {
		return product.Stock
	}
	if v, ok := product.VariantBySKU(line.VariantSKU); ok {
		return v.Stock
	}
	return 0
}

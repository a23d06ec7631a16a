package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/salvashop/shopapi/internal/money"
	"github.com/salvashop/shopapi/internal/repository"
	"github.com/salvashop/shopapi/pkg/errors"
)

type SKUService struct {
	products repository.ProductRepository
	logger   *zap.Logger
}

// NewSKUService creates a new SKU service
func NewSKUService(products repository.ProductRepository, logger *zap.Logger) *SKUService {
	return &SKUService{
		products: products,
		logger:   logger,
	}
}

// Lookup finds every product variant carrying the SKU with its price and current stock
func (s *SKUService) Lookup(ctx context.Context, sku string) ([]SKUMatch, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return nil, &errors.ErrValidation{Message: "sku is required"}
	}

	products, err := s.products.FindByVariantSKU(ctx, sku)
	if err != nil {
		return nil, err
	}

	matches := make([]SKUMatch, 0, len(products))
	for _, p := range products {
		v, ok := p.VariantBySKU(sku)
		if !ok {
			continue
		}
		matches = append(matches, SKUMatch{
			ProductID:   p.ID,
			ProductName: p.Name,
			SKU:         v.SKU,
			VariantInfo: v.Info(),
			Price:       money.Sum(p.BasePrice, v.PriceAdjustment),
			Stock:       v.Stock,
			Available:   v.IsAvailable,
			Active:      p.IsActive,
		})
	}
	if len(matches) == 0 {
		return nil, &errors.ErrNotFound{Resource: "sku", ID: sku}
	}
	return matches, nil
}

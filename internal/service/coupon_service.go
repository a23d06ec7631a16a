package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/salvashop/shopapi/internal/coupons"
	"github.com/salvashop/shopapi/internal/domain"
	"github.com/salvashop/shopapi/internal/repository"
	"github.com/salvashop/shopapi/pkg/errors"
)

type CouponService struct {
	coupons   repository.CouponRepository
	validator *coupons.Validator
	logger    *zap.Logger
	now       func() time.Time
}

// NewCouponService creates a new coupon service
func NewCouponService(repo repository.CouponRepository, validator *coupons.Validator, logger *zap.Logger) *CouponService {
	return &CouponService{
		coupons:   repo,
		validator: validator,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Preview validates a code against a subtotal without consuming a use
func (s *CouponService) Preview(ctx context.Context, code string, subtotal float64) (*coupons.AppliedDiscount, error) {
	if subtotal < 0 {
		return nil, &errors.ErrValidation{Message: "subtotal must not be negative"}
	}
	applied, _, err := s.validator.Validate(ctx, code, subtotal, s.now())
	return applied, err
}

func (s *CouponService) Create(ctx context.Context, actor Actor, req CreateCouponRequest) (*domain.Coupon, error) {
	coupon := &domain.Coupon{
		Code:            coupons.NormalizeCode(req.Code),
		Description:     req.Description,
		DiscountType:    req.DiscountType,
		DiscountValue:   req.DiscountValue,
		MinimumAmount:   req.MinimumAmount,
		MaximumDiscount: req.MaximumDiscount,
		MaxUses:         req.MaxUses,
		MaxUsesPerUser:  1,
		ValidFrom:       req.ValidFrom.UTC(),
		ValidUntil:      req.ValidUntil.UTC(),
		IsActive:        true,
	}
	if req.MaxUsesPerUser != nil {
		coupon.MaxUsesPerUser = *req.MaxUsesPerUser
	}
	if req.IsActive != nil {
		coupon.IsActive = *req.IsActive
	}
	if actor.Email != "" {
		coupon.CreatedBy = strPtr(actor.Email)
	}

	if err := validateCoupon(coupon); err != nil {
		return nil, err
	}
	if err := s.coupons.Create(ctx, coupon); err != nil {
		return nil, err
	}

	s.logger.Info("Coupon created", zap.String("code", coupon.Code), zap.String("by", actor.Email))
	return coupon, nil
}

func (s *CouponService) List(ctx context.Context, activeOnly bool, limit, offset int) ([]*domain.Coupon, error) {
	var activeAt *time.Time
	if activeOnly {
		now := s.now()
		activeAt = &now
	}
	return s.coupons.List(ctx, activeAt, clampLimit(limit, maxAdminPageSize), clampOffset(offset))
}

func (s *CouponService) Get(ctx context.Context, code string) (*domain.Coupon, error) {
	return s.coupons.GetByCode(ctx, coupons.NormalizeCode(code))
}

// Update applies a typed patch. Usage counters are never written here.
func (s *CouponService) Update(ctx context.Context, code string, patch CouponUpdate) (*domain.Coupon, error) {
	coupon, err := s.coupons.GetByCode(ctx, coupons.NormalizeCode(code))
	if err != nil {
		return nil, err
	}

	if patch.Description != nil {
		coupon.Description = *patch.Description
	}
	if patch.DiscountValue != nil {
		coupon.DiscountValue = *patch.DiscountValue
	}
	if patch.MinimumAmount != nil {
		coupon.MinimumAmount = patch.MinimumAmount
	}
	if patch.MaximumDiscount != nil {
		coupon.MaximumDiscount = patch.MaximumDiscount
	}
	if patch.MaxUses != nil {
		if *patch.MaxUses < coupon.CurrentUses {
			return nil, &errors.ErrValidation{Message: fmt.Sprintf("max_uses cannot be below current uses (%d)", coupon.CurrentUses)}
		}
		coupon.MaxUses = patch.MaxUses
	}
	if patch.MaxUsesPerUser != nil {
		coupon.MaxUsesPerUser = *patch.MaxUsesPerUser
	}
	if patch.ValidFrom != nil {
		coupon.ValidFrom = patch.ValidFrom.UTC()
	}
	if patch.ValidUntil != nil {
		coupon.ValidUntil = patch.ValidUntil.UTC()
	}
	if patch.IsActive != nil {
		coupon.IsActive = *patch.IsActive
	}

	if err := validateCoupon(coupon); err != nil {
		return nil, err
	}
	if err := s.coupons.Update(ctx, coupon); err != nil {
		return nil, err
	}
	return coupon, nil
}

func (s *CouponService) Deactivate(ctx context.Context, code string) (*domain.Coupon, error) {
	inactive := false
	return s.Update(ctx, code, CouponUpdate{IsActive: &inactive})
}

func (s *CouponService) Delete(ctx context.Context, code string) error {
	code = coupons.NormalizeCode(code)
	if err := s.coupons.Delete(ctx, code); err != nil {
		return err
	}
	s.logger.Info("Coupon deleted", zap.String("code", code))
	return nil
}

func validateCoupon(c *domain.Coupon) error {
	switch {
	case c.Code == "":
		return &errors.ErrValidation{Message: "coupon code is required"}
	case !c.DiscountType.IsValid():
		return &errors.ErrValidation{Message: fmt.Sprintf("invalid discount type %q", c.DiscountType)}
	case c.DiscountValue <= 0:
		return &errors.ErrValidation{Message: "discount value must be positive"}
	case c.DiscountType == domain.DiscountTypePercentage && c.DiscountValue > 100:
		return &errors.ErrValidation{Message: "percentage discount cannot exceed 100"}
	case !c.ValidUntil.After(c.ValidFrom):
		return &errors.ErrValidation{Message: "valid_until must be after valid_from"}
	case c.MaxUsesPerUser < 1:
		return &errors.ErrValidation{Message: "max_uses_per_user must be at least 1"}
	}
	return nil
}

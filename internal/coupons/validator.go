// Package coupons validates discount codes and tracks their usage counters.
package coupons

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/salvashop/shopapi/internal/domain"
	"github.com/salvashop/shopapi/internal/money"
	"github.com/salvashop/shopapi/internal/repository"
	"github.com/salvashop/shopapi/pkg/errors"
)

// Reason identifies the first validation check a coupon failed
type Reason string

const (
	ReasonNotFound     Reason = "not_found"
	ReasonInactive     Reason = "inactive"
	ReasonNotYetValid  Reason = "not_yet_valid"
	ReasonExpired      Reason = "expired"
	ReasonExhausted    Reason = "exhausted"
	ReasonBelowMinimum Reason = "below_minimum"
	ReasonUserLimit    Reason = "user_limit_reached"
)

// Error is a coupon that cannot be applied
type Error struct {
	Reason  Reason
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Unwrap exposes the error taxonomy so HTTP status mapping treats
// a missing coupon as not found and every other reason as a validation failure.
func (e *Error) Unwrap() error {
	if e.Reason == ReasonNotFound {
		return &errors.ErrNotFound{Resource: "coupon", ID: e.Code}
	}
	return &errors.ErrValidation{Message: e.Message}
}

// AppliedDiscount is the outcome of a successful validation
type AppliedDiscount struct {
	Code           string              `json:"code"`
	Description    string              `json:"description"`
	DiscountType   domain.DiscountType `json:"discount_type"`
	DiscountValue  float64             `json:"discount_value"`
	DiscountAmount float64             `json:"discount_amount"`
	NewTotal       float64             `json:"new_total"`
	MinimumAmount  *float64            `json:"minimum_amount,omitempty"`
}

// NormalizeCode trims and upper-cases a coupon code
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Check runs the validity checks in order and computes the discount.
// A nil coupon fails as not found.
func Check(coupon *domain.Coupon, subtotal float64, now time.Time) (*AppliedDiscount, error) {
	if coupon == nil {
		return nil, &Error{Reason: ReasonNotFound, Message: "coupon not found"}
	}
	fail := func(reason Reason, msg string) (*AppliedDiscount, error) {
		return nil, &Error{Reason: reason, Code: coupon.Code, Message: msg}
	}

	if !coupon.IsActive {
		return fail(ReasonInactive, "coupon is inactive")
	}
	if now.Before(coupon.ValidFrom) {
		return fail(ReasonNotYetValid, "coupon is not valid yet")
	}
	if now.After(coupon.ValidUntil) {
		return fail(ReasonExpired, "coupon has expired")
	}
	if coupon.MaxUses != nil && coupon.CurrentUses >= *coupon.MaxUses {
		return fail(ReasonExhausted, "coupon has no uses left")
	}
	if coupon.MinimumAmount != nil && subtotal < *coupon.MinimumAmount {
		return fail(ReasonBelowMinimum, fmt.Sprintf("minimum purchase required: $%.2f", *coupon.MinimumAmount))
	}

	discount := Discount(coupon, subtotal)
	return &AppliedDiscount{
		Code:           coupon.Code,
		Description:    coupon.Description,
		DiscountType:   coupon.DiscountType,
		DiscountValue:  coupon.DiscountValue,
		DiscountAmount: discount,
		NewTotal:       money.Round(subtotal - discount),
		MinimumAmount:  coupon.MinimumAmount,
	}, nil
}

// Discount computes the amount off, clamped to maximum_discount and then to the subtotal
func Discount(coupon *domain.Coupon, subtotal float64) float64 {
	var discount float64
	switch coupon.DiscountType {
	case domain.DiscountTypePercentage:
		discount = money.Percent(subtotal, coupon.DiscountValue)
	default:
		discount = coupon.DiscountValue
	}
	if coupon.MaximumDiscount != nil {
		discount = math.Min(discount, *coupon.MaximumDiscount)
	}
	discount = math.Min(discount, subtotal)
	return money.Round(math.Max(discount, 0))
}

// Validator looks coupons up and manages the usage counter
type Validator struct {
	coupons repository.CouponRepository
	logger  *zap.Logger
}

func NewValidator(coupons repository.CouponRepository, logger *zap.Logger) *Validator {
	return &Validator{
		coupons: coupons,
		logger:  logger,
	}
}

// Validate checks the coupon with the given code without consuming a use
func (v *Validator) Validate(ctx context.Context, code string, subtotal float64, now time.Time) (*AppliedDiscount, *domain.Coupon, error) {
	code = NormalizeCode(code)
	coupon, err := v.coupons.GetByCode(ctx, code)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, nil, &Error{Reason: ReasonNotFound, Code: code, Message: "coupon not found"}
		}
		return nil, nil, err
	}
	applied, err := Check(coupon, subtotal, now)
	if err != nil {
		return nil, coupon, err
	}
	return applied, coupon, nil
}

// Commit consumes one use. It fails with ReasonExhausted if a concurrent commit took the last use.
func (v *Validator) Commit(ctx context.Context, code string) error {
	code = NormalizeCode(code)
	ok, err := v.coupons.IncrementUses(ctx, code)
	if err != nil {
		return fmt.Errorf("commit coupon %s: %w", code, err)
	}
	if !ok {
		return &Error{Reason: ReasonExhausted, Code: code, Message: "coupon has no uses left"}
	}
	return nil
}

// Revert gives one use back, floored at zero
func (v *Validator) Revert(ctx context.Context, code string) error {
	code = NormalizeCode(code)
	if err := v.coupons.DecrementUses(ctx, code); err != nil {
		v.logger.Warn("Failed to revert coupon use", zap.String("code", code), zap.Error(err))
		return fmt.Errorf("revert coupon %s: %w", code, err)
	}
	return nil
}

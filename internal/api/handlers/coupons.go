package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/salvashop/shopapi/internal/domain"
	"github.com/salvashop/shopapi/internal/service"
)

// ValidateCouponRequest represents the coupon preview payload
type ValidateCouponRequest struct {
	Code     string  `json:"code" binding:"required"`
	Subtotal float64 `json:"subtotal" binding:"gte=0"`
}

// CouponResponse represents a coupon as exposed to administrators
type CouponResponse struct {
	ID              string              `json:"id"`
	Code            string              `json:"code"`
	Description     string              `json:"description"`
	DiscountType    domain.DiscountType `json:"discount_type"`
	DiscountValue   float64             `json:"discount_value"`
	MinimumAmount   *float64            `json:"minimum_amount,omitempty"`
	MaximumDiscount *float64            `json:"maximum_discount,omitempty"`
	MaxUses         *int                `json:"max_uses,omitempty"`
	MaxUsesPerUser  int                 `json:"max_uses_per_user"`
	CurrentUses     int                 `json:"current_uses"`
	ValidFrom       string              `json:"valid_from"`
	ValidUntil      string              `json:"valid_until"`
	IsActive        bool                `json:"is_active"`
	CreatedBy       *string             `json:"created_by,omitempty"`
	CreatedAt       string              `json:"created_at"`
}

func couponResponse(c *domain.Coupon) CouponResponse {
	return CouponResponse{
		ID:              c.ID.String(),
		Code:            c.Code,
		Description:     c.Description,
		DiscountType:    c.DiscountType,
		DiscountValue:   c.DiscountValue,
		MinimumAmount:   c.MinimumAmount,
		MaximumDiscount: c.MaximumDiscount,
		MaxUses:         c.MaxUses,
		MaxUsesPerUser:  c.MaxUsesPerUser,
		CurrentUses:     c.CurrentUses,
		ValidFrom:       c.ValidFrom.Format(time.RFC3339),
		ValidUntil:      c.ValidUntil.Format(time.RFC3339),
		IsActive:        c.IsActive,
		CreatedBy:       c.CreatedBy,
		CreatedAt:       c.CreatedAt.Format(time.RFC3339),
	}
}

// HandleValidateCoupon handles POST /v1/coupons/validate. It never consumes a use.
func HandleValidateCoupon(coupons *service.CouponService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ValidateCouponRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}

		applied, err := coupons.Preview(c.Request.Context(), req.Code, req.Subtotal)
		if err != nil {
			respondError(c, logger, "Failed to validate coupon", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"valid": true, "coupon": applied})
	}
}

// HandleCreateCoupon handles POST /v1/admin/coupons
func HandleCreateCoupon(coupons *service.CouponService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := requireActor(c)
		if !ok {
			return
		}

		var req service.CreateCouponRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}

		coupon, err := coupons.Create(c.Request.Context(), actor, req)
		if err != nil {
			respondError(c, logger, "Failed to create coupon", err)
			return
		}
		c.JSON(http.StatusCreated, couponResponse(coupon))
	}
}

// HandleListCoupons handles GET /v1/admin/coupons?active_only=&limit=&offset=
func HandleListCoupons(coupons *service.CouponService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := queryInt(c, "limit")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
			return
		}
		offset, err := queryInt(c, "offset")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be an integer"})
			return
		}
		activeOnly := c.Query("active_only") == "true"

		list, err := coupons.List(c.Request.Context(), activeOnly, limit, offset)
		if err != nil {
			respondError(c, logger, "Failed to list coupons", err)
			return
		}

		response := make([]CouponResponse, len(list))
		for i, coupon := range list {
			response[i] = couponResponse(coupon)
		}
		c.JSON(http.StatusOK, gin.H{"coupons": response, "count": len(response)})
	}
}

// HandleGetCoupon handles GET /v1/admin/coupons/:code
func HandleGetCoupon(coupons *service.CouponService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		coupon, err := coupons.Get(c.Request.Context(), c.Param("code"))
		if err != nil {
			respondError(c, logger, "Failed to get coupon", err)
			return
		}
		c.JSON(http.StatusOK, couponResponse(coupon))
	}
}

// HandleUpdateCoupon handles PATCH /v1/admin/coupons/:code
func HandleUpdateCoupon(coupons *service.CouponService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req service.CouponUpdate
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}

		coupon, err := coupons.Update(c.Request.Context(), c.Param("code"), req)
		if err != nil {
			respondError(c, logger, "Failed to update coupon", err)
			return
		}
		c.JSON(http.StatusOK, couponResponse(coupon))
	}
}

// HandleDeactivateCoupon handles POST /v1/admin/coupons/:code/deactivate
func HandleDeactivateCoupon(coupons *service.CouponService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		coupon, err := coupons.Deactivate(c.Request.Context(), c.Param("code"))
		if err != nil {
			respondError(c, logger, "Failed to deactivate coupon", err)
			return
		}
		c.JSON(http.StatusOK, couponResponse(coupon))
	}
}

// HandleDeleteCoupon handles DELETE /v1/admin/coupons/:code
func HandleDeleteCoupon(coupons *service.CouponService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := coupons.Delete(c.Request.Context(), c.Param("code")); err != nil {
			respondError(c, logger, "Failed to delete coupon", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Coupon deleted"})
	}
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/salvashop/shopapi/internal/service"
)

// RefundRequest is the optional refund body; ?notes= is accepted too
type RefundRequest struct {
	Notes string `json:"notes"`
}

// HandleListOrders handles GET /v1/admin/orders
func HandleListOrders(orders *service.OrderService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, limit, offset, ok := listParams(c)
		if !ok {
			return
		}

		list, err := orders.List(c.Request.Context(), status, limit, offset)
		if err != nil {
			respondError(c, logger, "Failed to list orders", err)
			return
		}
		c.JSON(http.StatusOK, OrderListResponse{Orders: list, Count: len(list), Limit: limit, Offset: offset})
	}
}

// HandleUpdateOrderStatus handles PATCH /v1/admin/orders/:id/status
func HandleUpdateOrderStatus(orders *service.OrderService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := requireActor(c)
		if !ok {
			return
		}
		orderID, ok := parseOrderID(c)
		if !ok {
			return
		}

		var req service.StatusUpdate
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}

		order, err := orders.UpdateStatus(c.Request.Context(), actor, orderID, req)
		if err != nil {
			respondError(c, logger, "Failed to update order status", err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

// HandleUpdateShipping handles PATCH /v1/admin/orders/:id/shipping
func HandleUpdateShipping(orders *service.OrderService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID, ok := parseOrderID(c)
		if !ok {
			return
		}

		var req service.ShippingUpdate
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}

		order, err := orders.UpdateShipping(c.Request.Context(), orderID, req)
		if err != nil {
			respondError(c, logger, "Failed to update shipping info", err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

// HandleRefundOrder handles POST /v1/admin/orders/:id/refund
func HandleRefundOrder(orders *service.OrderService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := requireActor(c)
		if !ok {
			return
		}
		orderID, ok := parseOrderID(c)
		if !ok {
			return
		}

		notes := c.Query("notes")
		if notes == "" && c.Request.ContentLength > 0 {
			var req RefundRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				respondBindError(c, err)
				return
			}
			notes = req.Notes
		}

		order, err := orders.RefundOrder(c.Request.Context(), actor, orderID, notes)
		if err != nil {
			respondError(c, logger, "Failed to refund order", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message": "Order refunded",
			"id":      order.ID.String(),
			"status":  order.Status,
		})
	}
}

// HandleOrderStats handles GET /v1/admin/orders/stats/summary
func HandleOrderStats(orders *service.OrderService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := orders.Stats(c.Request.Context())
		if err != nil {
			respondError(c, logger, "Failed to compute order stats", err)
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/salvashop/shopapi/internal/api/middleware"
	"github.com/salvashop/shopapi/internal/domain"
	"github.com/salvashop/shopapi/internal/service"
)

// CreateOrderResponse is the order plus checkout warnings
type CreateOrderResponse struct {
	*domain.Order
	Warnings []string `json:"warnings"`
}

// OrderListResponse wraps a page of orders
type OrderListResponse struct {
	Orders []*domain.Order `json:"orders"`
	Count  int             `json:"count"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// HandleCreateOrder handles POST /v1/orders
func HandleCreateOrder(orders *service.OrderService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := requireActor(c)
		if !ok {
			return
		}

		var req service.CreateOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}

		result, err := orders.CreateOrder(c.Request.Context(), actor, req, middleware.GetIdempotencyKey(c))
		if err != nil {
			respondError(c, logger, "Failed to create order", err)
			return
		}

		warnings := result.Warnings
		if warnings == nil {
			warnings = []string{}
		}
		status := http.StatusCreated
		if result.Replayed {
			status = http.StatusOK
		}
		c.JSON(status, CreateOrderResponse{Order: result.Order, Warnings: warnings})
	}
}

// HandleListMyOrders handles GET /v1/orders/me
func HandleListMyOrders(orders *service.OrderService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := requireActor(c)
		if !ok {
			return
		}
		status, limit, offset, ok := listParams(c)
		if !ok {
			return
		}

		list, err := orders.ListMine(c.Request.Context(), actor, status, limit, offset)
		if err != nil {
			respondError(c, logger, "Failed to list orders", err)
			return
		}
		c.JSON(http.StatusOK, OrderListResponse{Orders: list, Count: len(list), Limit: limit, Offset: offset})
	}
}

// HandleGetOrder handles GET /v1/orders/:id
func HandleGetOrder(orders *service.OrderService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := requireActor(c)
		if !ok {
			return
		}
		orderID, ok := parseOrderID(c)
		if !ok {
			return
		}

		order, err := orders.GetOrder(c.Request.Context(), actor, orderID)
		if err != nil {
			respondError(c, logger, "Failed to get order", err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

// HandleCancelOrder handles POST /v1/orders/:id/cancel
func HandleCancelOrder(orders *service.OrderService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := requireActor(c)
		if !ok {
			return
		}
		orderID, ok := parseOrderID(c)
		if !ok {
			return
		}

		order, err := orders.CancelOrder(c.Request.Context(), actor, orderID)
		if err != nil {
			respondError(c, logger, "Failed to cancel order", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message": "Order cancelled",
			"id":      order.ID.String(),
			"status":  order.Status,
		})
	}
}

// HandleCreatePaymentLink handles POST /v1/orders/:id/payment-link
func HandleCreatePaymentLink(orders *service.OrderService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := requireActor(c)
		if !ok {
			return
		}
		orderID, ok := parseOrderID(c)
		if !ok {
			return
		}

		link, err := orders.CreatePaymentLink(c.Request.Context(), actor, orderID)
		if err != nil {
			respondError(c, logger, "Failed to create payment link", err)
			return
		}
		c.JSON(http.StatusOK, link)
	}
}

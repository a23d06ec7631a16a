package handlers

import (
	stdErrors "errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/salvashop/shopapi/internal/api/middleware"
	"github.com/salvashop/shopapi/internal/domain"
	"github.com/salvashop/shopapi/internal/service"
	"github.com/salvashop/shopapi/pkg/errors"
)

// respondError writes the status HTTPStatus assigns to err. Internal
// failures are logged and hidden from the client.
func respondError(c *gin.Context, logger *zap.Logger, msg string, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error(msg, zap.Error(err), zap.String("path", c.FullPath()))
		var gateway *errors.ErrGateway
		if stdErrors.As(err, &gateway) {
			c.JSON(status, gin.H{"error": "payment gateway unavailable"})
			return
		}
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}

	body := gin.H{"error": err.Error()}
	var stock *errors.ErrInsufficientStock
	if stdErrors.As(err, &stock) {
		body["product_id"] = stock.ProductID
		body["available"] = stock.Available
		body["requested"] = stock.Requested
		if stock.SKU != "" {
			body["variant_sku"] = stock.SKU
		}
	}
	c.JSON(status, body)
}

func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusUnprocessableEntity, gin.H{
		"error":   "validation failed",
		"details": err.Error(),
	})
}

// requireActor is the guard every authenticated handler starts with
func requireActor(c *gin.Context) (service.Actor, bool) {
	actor, ok := middleware.GetActorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
	return actor, ok
}

func parseOrderID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order ID"})
		return uuid.Nil, false
	}
	return id, true
}

// listParams reads ?status=&limit=&offset=. Bounds are clamped by the service.
func listParams(c *gin.Context) (*domain.OrderStatus, int, int, bool) {
	var status *domain.OrderStatus
	if raw := c.Query("status"); raw != "" {
		s := domain.OrderStatus(raw)
		if !s.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
			return nil, 0, 0, false
		}
		status = &s
	}

	limit, err := queryInt(c, "limit")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
		return nil, 0, 0, false
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be an integer"})
		return nil, 0, 0, false
	}
	return status, limit, offset, true
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

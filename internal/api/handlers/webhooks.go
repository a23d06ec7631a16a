package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/salvashop/shopapi/internal/service"
	"github.com/salvashop/shopapi/internal/wompi"
)

const maxWebhookBody = 1 << 20

// HandleWompiWebhook handles POST /v1/webhooks/wompi. The gateway retries
// anything but 200, so every outcome is acknowledged.
func HandleWompiWebhook(webhooks *service.WebhookService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			logger.Warn("Failed to read webhook body", zap.Error(err))
			c.JSON(http.StatusOK, service.WebhookResult{Received: true, Reason: "unreadable body"})
			return
		}

		result := webhooks.Handle(c.Request.Context(), payload, c.GetHeader(wompi.SignatureHeader))
		c.JSON(http.StatusOK, result)
	}
}

// HandleWebhookTest handles GET /v1/webhooks/wompi/test
func HandleWebhookTest() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"message":   "Wompi webhook endpoint is reachable",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/salvashop/shopapi/internal/api/handlers"
	"github.com/salvashop/shopapi/internal/api/middleware"
	"github.com/salvashop/shopapi/internal/config"
	"github.com/salvashop/shopapi/internal/service"
	"github.com/salvashop/shopapi/internal/shipping"
)

// Services groups what the handlers call into
type Services struct {
	Orders   *service.OrderService
	Coupons  *service.CouponService
	Webhooks *service.WebhookService
	Shipping *shipping.Resolver
	// Gatherer backs /metrics; nil disables the endpoint
	Gatherer prometheus.Gatherer
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, svc Services, logger *zap.Logger) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(loggingMiddleware(logger))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if svc.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(svc.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/v1")
	{
		// Public routes
		v1.POST("/coupons/validate", handlers.HandleValidateCoupon(svc.Coupons, logger))
		v1.GET("/shipping/methods", handlers.HandleShippingMethods(svc.Shipping))
		v1.GET("/shipping/quote", handlers.HandleShippingQuote(svc.Shipping))

		// Gateway callbacks are authenticated by signature, not bearer token
		v1.POST("/webhooks/wompi", handlers.HandleWompiWebhook(svc.Webhooks, logger))
		v1.GET("/webhooks/wompi/test", handlers.HandleWebhookTest())

		// Customer routes
		customerRoutes := v1.Group("/orders")
		customerRoutes.Use(middleware.AuthMiddleware(cfg.Auth, logger))
		{
			customerRoutes.POST("", middleware.IdempotencyMiddleware(logger), handlers.HandleCreateOrder(svc.Orders, logger))
			customerRoutes.GET("/me", handlers.HandleListMyOrders(svc.Orders, logger))
			customerRoutes.GET("/:id", handlers.HandleGetOrder(svc.Orders, logger))
			customerRoutes.POST("/:id/cancel", handlers.HandleCancelOrder(svc.Orders, logger))
			customerRoutes.POST("/:id/payment-link", handlers.HandleCreatePaymentLink(svc.Orders, logger))
		}

		// Admin routes
		adminRoutes := v1.Group("/admin")
		adminRoutes.Use(middleware.AuthMiddleware(cfg.Auth, logger), middleware.RequireAdmin())
		{
			adminRoutes.GET("/orders", handlers.HandleListOrders(svc.Orders, logger))
			adminRoutes.GET("/orders/stats/summary", handlers.HandleOrderStats(svc.Orders, logger))
			adminRoutes.PATCH("/orders/:id/status", handlers.HandleUpdateOrderStatus(svc.Orders, logger))
			adminRoutes.PATCH("/orders/:id/shipping", handlers.HandleUpdateShipping(svc.Orders, logger))
			adminRoutes.POST("/orders/:id/refund", handlers.HandleRefundOrder(svc.Orders, logger))

			adminRoutes.POST("/coupons", handlers.HandleCreateCoupon(svc.Coupons, logger))
			adminRoutes.GET("/coupons", handlers.HandleListCoupons(svc.Coupons, logger))
			adminRoutes.GET("/coupons/:code", handlers.HandleGetCoupon(svc.Coupons, logger))
			adminRoutes.PATCH("/coupons/:code", handlers.HandleUpdateCoupon(svc.Coupons, logger))
			adminRoutes.DELETE("/coupons/:code", handlers.HandleDeleteCoupon(svc.Coupons, logger))
			adminRoutes.POST("/coupons/:code/deactivate", handlers.HandleDeactivateCoupon(svc.Coupons, logger))
		}
	}

	return router
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
		}
		if status >= http.StatusInternalServerError {
			logger.Warn("HTTP request", fields...)
			return
		}
		logger.Info("HTTP request", fields...)
	}
}

package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/salvashop/shopapi/internal/shipping"
)

// HandleShippingMethods handles GET /v1/shipping/methods
func HandleShippingMethods(resolver *shipping.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"methods": resolver.Methods()})
	}
}

// HandleShippingQuote handles GET /v1/shipping/quote?method=&subtotal=
func HandleShippingQuote(resolver *shipping.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		subtotal, err := strconv.ParseFloat(c.DefaultQuery("subtotal", "0"), 64)
		if err != nil || subtotal < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "subtotal must be a non-negative number"})
			return
		}
		c.JSON(http.StatusOK, resolver.Quote(c.Query("method"), subtotal))
	}
}

package middleware

import (
	"net/http"
	"strings"
	"unicode"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	IdempotencyHeader        = "Idempotency-Key"
	idempotencyKeyContextKey = "idempotency_key"
	maxIdempotencyKeyLength  = 255
)

// IdempotencyMiddleware validates the optional Idempotency-Key header.
// Replay and conflict detection happen in the order service, keyed per user.
func IdempotencyMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(IdempotencyHeader))
		if key == "" {
			c.Next()
			return
		}

		if len(key) > maxIdempotencyKeyLength || strings.IndexFunc(key, notPrintable) >= 0 {
			logger.Debug("Rejected idempotency key", zap.Int("length", len(key)))
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid Idempotency-Key header"})
			return
		}

		c.Set(idempotencyKeyContextKey, key)
		c.Next()
	}
}

// GetIdempotencyKey returns the validated key, or "" when the client sent none
func GetIdempotencyKey(c *gin.Context) string {
	return c.GetString(idempotencyKeyContextKey)
}

func notPrintable(r rune) bool {
	return r > unicode.MaxASCII || !unicode.IsPrint(r)
}

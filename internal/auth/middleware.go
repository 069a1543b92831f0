package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

const APIKeyHeader = "X-API-Key"

// APIKeyMiddleware rejects requests whose X-API-Key header does not match key.
// An empty key disables every protected route.
func APIKeyMiddleware(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "admin API is disabled"})
			c.Abort()
			return
		}

		provided := c.GetHeader(APIKeyHeader)
		if provided == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			c.Abort()
			return
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			c.Abort()
			return
		}

		c.Set("admin", true)
		c.Next()
	}
}

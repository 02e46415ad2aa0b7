// ABOUTME: Gin middleware guarding the manual sync trigger
// ABOUTME: Compares X-API-Key against the configured key in constant time
package web

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIKeyHeader carries the key for protected endpoints.
const APIKeyHeader = "X-API-Key"

// requireAPIKey rejects requests without the configured key. An unset key
// rejects everything.
func (s *Server) requireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		given := c.GetHeader(APIKeyHeader)
		if s.apiKey == "" || given == "" ||
			subtle.ConstantTimeCompare([]byte(given), []byte(s.apiKey)) != 1 {
			s.logger.Warn("rejected request with missing or invalid API key", "path", c.FullPath())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}

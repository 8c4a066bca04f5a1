// file: internal/server/middleware/apitoken.go
// version: 1.0.0
// guid: 6a0d4c2b-93e1-4f7a-b8d5-1c2e3f4a5b6d

package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// TokenFromRequest extracts a bearer token, falling back to the X-API-Token
// header used by the file-browser extension.
func TokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		if token := strings.TrimSpace(authHeader[len("Bearer "):]); token != "" {
			return token
		}
	}
	return strings.TrimSpace(r.Header.Get("X-API-Token"))
}

// RequireAPIToken rejects requests without the configured token. An empty
// token disables the check; health and metrics stay open.
func RequireAPIToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}

		path := c.Request.URL.Path
		if path == "/api/v1/health" || path == "/metrics" {
			c.Next()
			return
		}

		got := TokenFromRequest(c.Request)
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing API token"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// file: internal/server/middleware/apitoken_test.go
// version: 1.0.0
// guid: 2e7b9f14-5c3a-4d68-a0b1-9f8e7d6c5b4a

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func setupTokenRouter(token string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequireAPIToken(token))
	r.GET("/api/v1/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/api/v1/transfers", func(c *gin.Context) { c.String(http.StatusOK, "transfers") })
	return r
}

func TestTokenFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "", TokenFromRequest(req))
	assert.Equal(t, "", TokenFromRequest(nil))

	req.Header.Set("X-API-Token", " abc ")
	assert.Equal(t, "abc", TokenFromRequest(req))

	req.Header.Set("Authorization", "Bearer xyz")
	assert.Equal(t, "xyz", TokenFromRequest(req))
}

func TestRequireAPIToken(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		path   string
		header string
		want   int
	}{
		{"disabled", "", "/api/v1/transfers", "", http.StatusOK},
		{"missing", "s3cret", "/api/v1/transfers", "", http.StatusUnauthorized},
		{"wrong", "s3cret", "/api/v1/transfers", "Bearer nope", http.StatusUnauthorized},
		{"right", "s3cret", "/api/v1/transfers", "Bearer s3cret", http.StatusOK},
		{"health exempt", "s3cret", "/api/v1/health", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := setupTokenRouter(tt.token)
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

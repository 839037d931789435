package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func applySecurityHeaders(p HeaderPolicy) http.Header {
	r := gin.New()
	r.Use(SecurityHeadersMiddleware(p))
	r.GET("/api/v1/config", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{}) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/config", nil))
	return w.Header()
}

func TestSecurityHeadersMiddleware_Default(t *testing.T) {
	h := applySecurityHeaders(DefaultHeaderPolicy())

	assert.Equal(t, "max-age=31536000; includeSubDomains", h.Get("Strict-Transport-Security"))
	assert.Equal(t, "DENY", h.Get("X-Frame-Options"))
	assert.Equal(t, "default-src 'none'; frame-ancestors 'none'", h.Get("Content-Security-Policy"))
	assert.Equal(t, "no-referrer", h.Get("Referrer-Policy"))
	assert.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
	assert.Equal(t, "same-origin", h.Get("Cross-Origin-Resource-Policy"))
	assert.Equal(t, "no-store", h.Get("Cache-Control"))
}

func TestSecurityHeadersMiddleware_HSTS(t *testing.T) {
	tests := []struct {
		name   string
		policy HeaderPolicy
		want   string
	}{
		{"disabled", HeaderPolicy{IncludeSubdomains: true}, ""},
		{"no subdomains", HeaderPolicy{HSTSMaxAge: time.Hour}, "max-age=3600"},
		{"sub-second truncates", HeaderPolicy{HSTSMaxAge: 90 * time.Second / 60}, "max-age=1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, applySecurityHeaders(tt.policy).Get("Strict-Transport-Security"))
		})
	}
}

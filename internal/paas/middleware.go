package paas

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AuthOptions struct {
	Disabled bool
	// RequireGateway also demands the project header set by the platform gateway.
	RequireGateway bool
}

// RequireBearerMiddleware checks that API calls carry a bearer token. Token
// validation itself happens at the gateway.
func RequireBearerMiddleware(opts AuthOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		if opts.Disabled {
			c.Next()
			return
		}
		p := c.Request.URL.Path
		if p == "/healthz" || p == "/readyz" {
			c.Next()
			return
		}
		if strings.HasPrefix(p, "/api/") || strings.HasPrefix(p, "/swagger") || p == "/docs" {
			auth := strings.TrimSpace(c.GetHeader("Authorization"))
			if !strings.HasPrefix(auth, "Bearer ") {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "missing bearer token"})
				return
			}
			if opts.RequireGateway && strings.TrimSpace(c.GetHeader("X-Easyweb3-Project")) == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "missing X-Easyweb3-Project"})
				return
			}
		}
		c.Next()
	}
}

// WriteAuditMiddleware forwards every mutating API call to the platform log.
func WriteAuditMiddleware(p *Client, logger *zap.Logger) gin.HandlerFunc {
	if !p.Enabled() {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.Request.URL.Path
		method := strings.ToUpper(c.Request.Method)
		if !strings.HasPrefix(path, "/api/") {
			return
		}
		if method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions {
			return
		}

		status := c.Writer.Status()
		err := p.Forward(context.Background(), "zkpay_http_write", LevelFromStatus(status), map[string]any{
			"method":   method,
			"path":     c.FullPath(),
			"url":      path,
			"status":   status,
			"duration": time.Since(start).String(),
			"project":  strings.TrimSpace(c.GetHeader("X-Easyweb3-Project")),
			"role":     strings.TrimSpace(c.GetHeader("X-Easyweb3-Role")),
		})
		if err != nil && logger != nil {
			logger.Debug("paas audit log failed", zap.Error(err))
		}
	}
}

func LevelFromStatus(status int) string {
	if status >= 500 {
		return "error"
	}
	if status >= 400 {
		return "warn"
	}
	return "info"
}

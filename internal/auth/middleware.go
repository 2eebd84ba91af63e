package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"voicebatch-platform/pkg/logger"
)

const (
	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "
)

// Gin context keys set by RequireAccessToken.
const (
	KeyUserID   = "user_id"
	KeyTenantID = "tenant_id"
	KeyRole     = "role"
)

// RequireAccessToken verifies an access token and injects identity into the
// request context. It does not perform RBAC checks; those belong to
// internal/rbac.
func RequireAccessToken(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(authorizationHeader))
		if !strings.HasPrefix(raw, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "missing bearer token"})
			return
		}

		claims, err := m.Verify(strings.TrimPrefix(raw, bearerPrefix), TokenTypeAccess, time.Now())
		if err != nil {
			logger.FromGin(c).Debug("access token rejected", "err", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid token"})
			return
		}

		log := logger.FromGin(c).With("tenant_id", claims.TenantID, "user_id", claims.UserID)
		ctx := WithIdentity(c.Request.Context(), claims.UserID, claims.TenantID, claims.Role)
		c.Request = c.Request.WithContext(logger.With(ctx, log))

		c.Set(KeyUserID, claims.UserID)
		c.Set(KeyTenantID, claims.TenantID)
		c.Set(KeyRole, claims.Role)

		c.Next()
	}
}

package rbac

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"voicebatch-platform/internal/auth"
)

// RequireTenant enforces the multi-tenant invariant: tenant_id must exist in
// context.
func RequireTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := auth.TenantID(c.Request.Context()); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "tenant_id required"})
			return
		}
		c.Next()
	}
}

// RequireAnyRole allows access if the caller has any of the provided roles.
// super_admin bypasses the check; unknown roles are always denied. Tenant
// isolation is enforced by RequireTenant earlier in the chain.
func RequireAnyRole(allowed ...string) gin.HandlerFunc {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role, err := auth.Role(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "role required"})
			return
		}
		if IsSuperAdmin(role) {
			c.Next()
			return
		}
		if _, ok := allowedSet[role]; !ok || !IsKnownRole(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "error": "forbidden"})
			return
		}
		c.Next()
	}
}

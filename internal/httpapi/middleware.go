package httpapi

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"voicebatch-platform/internal/rbac"
)

// RequestTimeout bounds the request context. Handlers observe it through
// their storage and upstream calls.
func RequestTimeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// Convenience middleware bundles.

func RequireTenantAndAnyRole(roles ...string) []gin.HandlerFunc {
	return []gin.HandlerFunc{rbac.RequireTenant(), rbac.RequireAnyRole(roles...)}
}

// Register mounts the batch API on g. g must already authenticate callers.
func Register(g *gin.RouterGroup, h Handlers) {
	read := g.Group("/batches", RequireTenantAndAnyRole(rbac.Readers...)...)
	read.GET("", h.ListBatches)
	read.GET("/:batch_id/results", h.BatchResults)
	read.GET("/:batch_id/summary", h.BatchSummary)

	write := g.Group("/batches", RequireTenantAndAnyRole(rbac.Operators...)...)
	write.POST("", h.SubmitBatch)
	write.POST("/sync", h.SyncBatch)
}

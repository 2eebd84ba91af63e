package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"voicebatch-platform/internal/audit"
	"voicebatch-platform/internal/batches"
	"voicebatch-platform/internal/config"
	"voicebatch-platform/internal/httpapi"
	"voicebatch-platform/internal/metrics"
	"voicebatch-platform/internal/reconcile"
	"voicebatch-platform/internal/reporting"
	"voicebatch-platform/internal/webhook"
	"voicebatch-platform/pkg/utils"
)

type routeDeps struct {
	cfg     config.Config
	authMW  gin.HandlerFunc
	metrics *metrics.Metrics
	db      *pgxpool.Pool
	redis   *redis.Client

	batches   *batches.Service
	sync      *reconcile.Service
	reporting *reporting.Service
	audit     *audit.Service
	webhook   webhook.Handler
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	timeout := httpapi.RequestTimeout(d.cfg.App.RequestTimeout)

	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := utils.HealthCheck(ctx, d.db, time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "postgres": err.Error()})
			return
		}
		if err := d.redis.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "redis": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(d.metrics.Handler()))

	// Voice platform webhook (public, HMAC signed).
	r.POST("/webhooks/voice", timeout, d.webhook.Handle)

	// protected API group
	v1 := r.Group("/v1", timeout, d.authMW)
	httpapi.Register(v1, httpapi.Handlers{
		Batches:   d.batches,
		Sync:      d.sync,
		Reporting: d.reporting,
		Audit:     d.audit,
	})
}

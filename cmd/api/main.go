package main

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"voicebatch-platform/internal/audit"
	"voicebatch-platform/internal/auth"
	"voicebatch-platform/internal/batches"
	"voicebatch-platform/internal/config"
	"voicebatch-platform/internal/metrics"
	"voicebatch-platform/internal/reconcile"
	"voicebatch-platform/internal/reporting"
	"voicebatch-platform/internal/voiceagent"
	"voicebatch-platform/internal/webhook"
	"voicebatch-platform/pkg/logger"
	"voicebatch-platform/pkg/utils"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := config.LoadDotEnv(); err != nil {
		slog.Error("env file load failed", "err", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	pool, err := utils.OpenPostgres(rootCtx, cfg.PostgresDSN(), utils.PostgresPoolConfig{MaxConns: int32(cfg.DB.MaxConns)})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := batches.Migrate(rootCtx, pool); err != nil {
		log.Error("migrations failed", "err", err)
		os.Exit(1)
	}

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	m := metrics.New()

	burst := int(math.Ceil(cfg.Voice.RatePerSec))
	platform := voiceagent.NewHTTPClient(cfg.Voice.APIKey,
		voiceagent.WithBaseURL(cfg.Voice.BaseURL),
		voiceagent.WithHTTPClient(&http.Client{Timeout: cfg.Voice.HTTPTimeout}),
		voiceagent.WithRateLimiter(rate.NewLimiter(rate.Limit(cfg.Voice.RatePerSec), burst)),
		voiceagent.WithObserver(m.ObserveUpstream),
	)

	store := batches.NewPostgresStore(pool)
	auditSvc := audit.NewService(audit.NewPostgresRepo(pool))
	detector := batches.NewDetector(store, auditSvc)

	d := routeDeps{
		cfg:     cfg,
		authMW:  auth.RequireAccessToken(authManager),
		metrics: m,
		db:      pool,
		redis:   rdb,
		batches: batches.NewService(store, platform, batches.WithPhoneRegion(cfg.Voice.PhoneRegion)),
		sync: reconcile.NewService(store, platform, detector,
			reconcile.WithLimiter(reconcile.NewRedisLimiter(rdb, cfg.Sync.ConcurrencyLimit, cfg.Sync.LockTTL)),
			reconcile.WithObserver(m),
		),
		reporting: reporting.NewService(store),
		audit:     auditSvc,
		webhook: webhook.Handler{
			Secret:     cfg.Voice.WebhookSecret,
			Tolerance:  cfg.Voice.WebhookTolerance,
			Leads:      store,
			Results:    store,
			Detector:   detector,
			Deliveries: webhook.NewRedisDeliveryLog(rdb, cfg.Voice.WebhookTolerance),
			Audit:      auditSvc,
			AuditLimit: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.Voice.RejectAuditPerMin)), cfg.Voice.RejectAuditPerMin),
			Observer:   m,
		},
	}
	if d.webhook.Secret == "" {
		log.Warn("VOICE_WEBHOOK_SECRET is empty; every webhook delivery will be rejected")
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(m.Middleware())
	registerRoutes(r, d)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.App.RequestTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}

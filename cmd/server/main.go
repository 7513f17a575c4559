package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"keyhub/internal/api"
	"keyhub/internal/api/handlers"
	"keyhub/internal/api/middleware"
	"keyhub/internal/engine/licensing"
	"keyhub/internal/pkg/logger"
	"keyhub/internal/platform/audit"
	"keyhub/internal/platform/auth"
	"keyhub/internal/platform/config"
	"keyhub/internal/platform/metrics"
	"keyhub/internal/platform/repositories"
	"keyhub/internal/workers"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logger.Init(cfg.Logging)

	if cfg.JWT.Secret == "" {
		log.Fatal().Msg("jwt.secret is required")
	}
	if cfg.Admin.PasswordHash == "" {
		log.Warn().Msg("admin.password_hash is empty, admin login is disabled")
	}

	// Storage
	storage, err := repositories.Open(cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("failed to open storage")
	}
	defer storage.Close()

	// Services
	keystore := licensing.NewKeystore(storage.Backend,
		licensing.WithKeyPrefix(cfg.Licensing.KeyPrefix),
		licensing.WithResetCooldown(cfg.Licensing.ResetCooldown),
	)
	auditLogger := audit.NewLogger(storage.DB)
	m := metrics.New()
	tokenSvc := auth.NewTokenService(cfg.JWT)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	proxies, err := middleware.NewProxyResolver(cfg.RateLimit.TrustedProxies)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid rate_limit.trusted_proxies")
	}
	verifyLimiter := middleware.NewRateLimiter(cfg.RateLimit.VerifyPerMinute, cfg.RateLimit.Burst, proxies.ClientIP)
	verifyLimiter.StartCleanup(ctx, 10*time.Minute)

	jobs := workers.Start(ctx,
		workers.RefreshKeyGauges(keystore, m, cfg.Workers.Interval),
		workers.PruneAuditLogs(auditLogger, cfg.Workers.AuditRetention, cfg.Workers.Interval),
	)

	deps := &api.Dependencies{
		VerifyHandler:      handlers.NewVerifyHandler(keystore, m),
		KeyHandler:         handlers.NewKeyHandler(keystore, auditLogger, m),
		SelfServiceHandler: handlers.NewSelfServiceHandler(keystore, m),
		BlacklistHandler:   handlers.NewBlacklistHandler(keystore, auditLogger),
		ScriptHandler:      handlers.NewScriptHandler(keystore, auditLogger, m),
		AuthHandler:        handlers.NewAuthHandler(cfg.Admin, tokenSvc),
		HealthHandler:      handlers.NewHealthHandler(storage.Backend, cfg.Storage.Driver),
		StatsHandler:       handlers.NewStatsHandler(keystore),
		MetricsHandler:     handlers.NewMetricsHandler(m),
		AuditHandler:       handlers.NewAuditHandler(auditLogger),
		WebhookHandler:     handlers.NewWebhookHandler(cfg.Webhooks.Secret),
		AuthMiddleware:     middleware.NewAuthMiddleware(tokenSvc),
		SelfService:        middleware.NewSelfServiceMiddleware(keystore),
		VerifyLimiter:      verifyLimiter,
	}
	router := api.NewRouter(deps)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      middleware.RequestLogger(m, router),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Str("driver", cfg.Storage.Driver).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	jobs.Wait()
}

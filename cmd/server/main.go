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

	"conduit/internal/api"
	"conduit/internal/api/handlers"
	"conduit/internal/api/middleware"
	"conduit/internal/engine/connections"
	"conduit/internal/engine/gohighlevel"
	"conduit/internal/engine/jobs"
	"conduit/internal/engine/oauth"
	"conduit/internal/engine/providers"
	"conduit/internal/engine/state"
	"conduit/internal/engine/vault"
	"conduit/internal/engine/webhooks"
	"conduit/internal/pkg/logger"
	"conduit/internal/platform/audit"
	"conduit/internal/platform/auth"
	"conduit/internal/platform/config"
	"conduit/internal/platform/database"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Logging)

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.MigrateUp(db); err != nil {
			log.Fatal().Err(err).Msg("Failed to migrate database")
		}
	}

	// Startup singletons
	v, err := vault.New(cfg.Vault.Key, cfg.Vault.Cipher)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise vault")
	}
	signer, err := state.NewSigner(cfg.State.Secret, cfg.State.MaxAge)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise state signer")
	}

	// Stores
	registry := providers.NewRegistry(db)
	connStore := connections.NewStore(db, v)
	queue := jobs.NewQueue(db)
	events := webhooks.NewRouter(db)
	auditLog := audit.NewLogger(db)

	// Services
	tokenSvc := auth.NewTokenService(cfg.JWT)
	connectors := providers.NewConnectors(gohighlevel.NewConnector())

	// Handlers
	integrationHandler := handlers.NewIntegrationHandler(handlers.IntegrationDeps{
		Registry:    registry,
		Cache:       providers.NewCache(registry, cfg.Server.ProviderCacheTTL),
		Connectors:  connectors,
		Connections: connStore,
		Signer:      signer,
		OAuth:       oauth.NewClient(nil),
		Webhooks:    events,
		Queue:       queue,
		Audit:       auditLog,
		Server:      cfg.Server,
		WebhookCfg:  cfg.Webhooks,
	})

	deps := &api.Dependencies{
		IntegrationHandler: integrationHandler,
		AuditHandler:       handlers.NewAuditHandler(auditLog),
		HealthHandler:      handlers.NewHealthHandler(db, queue),
		MetricsHandler:     handlers.NewMetricsHandler(),
		AuthMiddleware:     middleware.NewAuthMiddleware(tokenSvc),
		TenantMiddleware:   middleware.NewTenantMiddleware(),
		RateLimiter:        middleware.NewRateLimiter(),
		WebhookRate:        cfg.Webhooks.RatePerMinute,
	}
	router := api.NewRouter(deps)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Strs("providers", connectors.Slugs()).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"conduit/internal/engine/connections"
	"conduit/internal/engine/gohighlevel"
	"conduit/internal/engine/jobs"
	"conduit/internal/engine/oauth"
	"conduit/internal/engine/providers"
	"conduit/internal/engine/vault"
	"conduit/internal/engine/webhooks"
	"conduit/internal/pkg/logger"
	"conduit/internal/platform/config"
	"conduit/internal/platform/database"
	"conduit/internal/workers"
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

	v, err := vault.New(cfg.Vault.Key, cfg.Vault.Cipher)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise vault")
	}

	queue := jobs.NewQueue(db)
	runner, err := workers.NewRunner(queue, cfg.Worker, cfg.Queue)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build worker")
	}

	registry := providers.NewRegistry(db)
	connectors := providers.NewConnectors(gohighlevel.NewConnector())

	syncHandler := workers.NewSyncHandler(connections.NewStore(db, v), registry, connectors, oauth.NewClient(nil), cfg.Server.PublicURL)
	runner.Register(jobs.TypeContactsSync, syncHandler.Handle)
	runner.Register(jobs.TypeWebhookProcess, workers.NewWebhookProcessor(webhooks.NewRouter(db)).Handle)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner.Run(ctx)
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/gallerist/token-ingest/internal/adapter"
	"github.com/gallerist/token-ingest/internal/config"
	"github.com/gallerist/token-ingest/internal/ingest"
	"github.com/gallerist/token-ingest/internal/logger"
	"github.com/gallerist/token-ingest/internal/messaging"
	"github.com/gallerist/token-ingest/internal/metadata"
	"github.com/gallerist/token-ingest/internal/providers/jetstream"
	"github.com/gallerist/token-ingest/internal/queue"
	"github.com/gallerist/token-ingest/internal/store"
)

var (
	configPath = flag.String("config", "config.yaml", "Path to configuration file")
	envPath    = flag.String("env", "", "Path to .env file")
	workers    = flag.Int("workers", 4, "Concurrent wallet sessions")
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadIngestConfig(*configPath, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	err = logger.Initialize(logger.Config{
		Debug:     cfg.Debug,
		SentryDSN: cfg.SentryDSN,
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(5 * time.Second)
	logger.Info("Starting ingestd")

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := store.ConfigureConnectionPool(db,
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
		cfg.Database.ConnMaxLifetime,
		cfg.Database.ConnMaxIdleTime); err != nil {
		logger.Fatal("Failed to configure connection pool", zap.Error(err))
	}
	if err := store.Migrate(db); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}
	logger.Info("Connected to database")

	dataStore := store.NewStore(db)

	// Initialize adapters
	jsonAdapter := adapter.NewJSON()
	clock := adapter.NewClock()
	httpClient := adapter.NewHTTPClient(cfg.HTTPTimeout)

	// Optional import announcements over NATS JetStream
	var publisher messaging.Publisher
	if cfg.NATS.URL != "" {
		publisher, err = jetstream.NewPublisher(jetstream.Config{
			URL:            cfg.NATS.URL,
			StreamName:     cfg.NATS.StreamName,
			MaxReconnects:  cfg.NATS.MaxReconnects,
			ReconnectWait:  cfg.NATS.ReconnectWait,
			ConnectionName: cfg.NATS.ConnectionName,
		}, adapter.NewNatsJetStream(), jsonAdapter)
		if err != nil {
			logger.Fatal("Failed to create NATS publisher", zap.Error(err))
		}
		defer publisher.Close()
		logger.Info("Connected to NATS", zap.String("stream", cfg.NATS.StreamName))
	}

	service := ingest.NewService(cfg, dataStore, httpClient, jsonAdapter, clock, *workers)
	processor := queue.NewProcessor(dataStore, publisher, metadata.NewMIMEDetector(httpClient), jsonAdapter, clock)

	// Create context with cancellation on shutdown signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	// Ingest configured wallets
	if len(cfg.Wallets) > 0 {
		logger.Info("Ingesting wallets", zap.Int("count", len(cfg.Wallets)))
		results := service.IngestWallets(ctx, cfg.Wallets, ingest.FetchOptions{ExcludeSpam: true})
		for _, result := range results {
			if result.Err != nil {
				logger.Error(result.Err, zap.String("wallet", result.Wallet))
				continue
			}
			logger.Info("Wallet ingested",
				zap.String("wallet", result.Wallet),
				zap.String("session_id", result.SessionID),
				zap.Int("enqueued", result.Enqueued),
				zap.Strings("providers", result.Providers),
				zap.Int("warnings", len(result.Warnings)))
		}
	}

	// Drain the pending queue until shutdown
	if err := processor.Run(ctx, cfg.QueueBatchLimit); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error(err)
	}

	logger.Info("ingestd stopped")
}

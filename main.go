package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"tradedesk/config"
	"tradedesk/internal/api"
	"tradedesk/internal/auth"
	"tradedesk/internal/cache"
	"tradedesk/internal/engine"
	"tradedesk/internal/events"
	"tradedesk/internal/journal"
	"tradedesk/internal/logging"
	"tradedesk/internal/provider"
	"tradedesk/internal/secrets"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logging.Setup(logging.Config{
		Level:      cfg.LoggingConfig.Level,
		JSONFormat: cfg.LoggingConfig.JSONFormat,
	})
	logger := logging.New("main")
	logger.Info().Str("symbol", cfg.EngineConfig.Symbol).Msg("Starting tradedesk")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Provider credentials from Vault, or environment when Vault is disabled
	secretsClient, err := secrets.NewClient(cfg.VaultConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize secrets client")
	}
	creds, err := secretsClient.ProviderCredentials(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load provider credentials")
	}

	requestTimeout := time.Duration(cfg.ProviderConfig.RequestTimeout) * time.Second
	providerClient := provider.NewClient(cfg.ProviderConfig.BaseURL, creds.APIKey, requestTimeout)
	validator := provider.NewValidator(cfg.ProviderConfig.ValidatorURL, creds.APIKey, requestTimeout)

	// Snapshot cache is optional; a failed Redis connection degrades to
	// provider-only reads
	var cacheService *cache.CacheService
	if cfg.RedisConfig.Enabled {
		cacheService, err = cache.NewCacheService(cfg.RedisConfig)
		if err != nil {
			logger.Warn().Err(err).Msg("Cache unavailable, continuing without it")
			cacheService = nil
		} else {
			defer cacheService.Close()
		}
	}

	// Trade journal
	var journalRepo *journal.Repository
	if cfg.JournalConfig.Enabled {
		db, err := journal.NewDB(cfg.JournalConfig)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to journal database")
		}
		defer db.Close()

		if err := db.RunMigrations(ctx); err != nil {
			logger.Fatal().Err(err).Msg("Failed to run journal migrations")
		}
		journalRepo = journal.NewRepository(db)
		logger.Info().Msg("Trade journal ready")
	}

	// Decision engine
	eventBus := events.NewEventBus()
	opts := engine.Options{
		Source: providerClient,
		Remote: validator,
		Cache:  cacheService,
		Bus:    eventBus,
	}
	if journalRepo != nil {
		opts.Journal = journalRepo
	}
	eng := engine.New(cfg.EngineConfig, cfg.AccountConfig, opts)

	go eng.Run(ctx)

	// Live price stream
	if cfg.ProviderConfig.StreamURL != "" {
		reconnect := time.Duration(cfg.ProviderConfig.ReconnectInterval) * time.Second
		stream := provider.NewPriceStream(cfg.ProviderConfig.StreamURL, cfg.EngineConfig.Symbol, reconnect, func(tick provider.PriceTick) {
			eng.OnPriceTick(tick.Price)
		})
		if err := stream.Start(); err != nil {
			logger.Warn().Err(err).Msg("Price stream failed to start, lifecycle ticks disabled")
		} else {
			defer stream.Stop()
		}
	}

	// Authentication
	var jwtManager *auth.JWTManager
	if cfg.AuthConfig.Enabled {
		if cfg.AuthConfig.JWTSecret == "" || cfg.AuthConfig.OperatorPassHash == "" {
			logger.Fatal().Msg("Auth enabled but AUTH_JWT_SECRET or AUTH_OPERATOR_PASS_HASH is missing")
		}
		jwtManager = auth.NewJWTManager(
			cfg.AuthConfig.JWTSecret,
			cfg.AuthConfig.OperatorUser,
			cfg.AuthConfig.OperatorPassHash,
			cfg.AuthConfig.AccessTokenDuration,
		)
		logger.Info().Msg("Operator authentication enabled")
	}

	// HTTP API
	server := api.NewServer(cfg.ServerConfig, eng, jwtManager)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutdown signal received")
	case err := <-serverErr:
		logger.Error().Err(err).Msg("API server stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown failed")
	}

	logger.Info().Msg("Tradedesk stopped")
}

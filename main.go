package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up

	"copytrader/config"
	"copytrader/internal/adapters/binanceclient"
	"copytrader/internal/adapters/enrichment"
	"copytrader/internal/adapters/logger"
	"copytrader/internal/adapters/sqlite"
	"copytrader/internal/app"
	"copytrader/internal/dedup"
	"copytrader/internal/interpreter"
	"copytrader/internal/lifecycle"
	"copytrader/internal/parser"
	"copytrader/internal/ports"
	"copytrader/internal/reconciler"
	"copytrader/internal/sizing"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.New(logger.ParseLevel(cfg.LogLevel))
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()

	// 4. Initialize Exchange Client (Binance Adapter)
	exchange, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	// 5. Initialize Core Components
	policies, err := interpreter.NewPolicyStore(cfg.PolicyPath, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to load update policy")
		log.Fatalf("FATAL: Failed to load update policy: %v", err)
	}

	sizer, err := sizing.New(sizing.Config{
		MaxLossPerTrade:     cfg.MaxLossPerTrade,
		Leverage:            cfg.Leverage,
		MarginUsageFraction: cfg.MarginUsageFraction,
	}, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize position sizer")
		log.Fatalf("FATAL: Failed to initialize position sizer: %v", err)
	}

	recon, err := reconciler.New(exchange, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize reconciler")
		log.Fatalf("FATAL: Failed to initialize reconciler: %v", err)
	}

	engine, err := lifecycle.NewEngine(repo, recon, lifecycle.Config{
		Tier1ExitPercent: cfg.Tier1ExitPercent,
		Tier2ExitPercent: cfg.Tier2ExitPercent,
		BreakevenFeePad:  cfg.BreakevenFeePad,
		RemainderEpsilon: cfg.RemainderEpsilon,
	}, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize lifecycle engine")
		log.Fatalf("FATAL: Failed to initialize lifecycle engine: %v", err)
	}

	var enrich ports.EnrichmentClient = enrichment.NewNoop()
	if cfg.EnrichmentURL != "" {
		enrich, err = enrichment.NewHTTP(enrichment.Config{
			URL:     cfg.EnrichmentURL,
			Timeout: cfg.EnrichmentTimeout,
			Logger:  appLogger,
		})
		if err != nil {
			appLogger.Error(context.Background(), err, "FATAL: Failed to initialize enrichment client")
			log.Fatalf("FATAL: Failed to initialize enrichment client: %v", err)
		}
	}

	// 6. Initialize Application Service
	service, err := app.NewService(
		cfg,
		appLogger,
		exchange,
		repo,
		repo,
		dedup.NewGate(repo, appLogger),
		parser.New(cfg.QuoteAsset),
		interpreter.New(policies),
		policies,
		sizer,
		engine,
		enrich,
	)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize service")
		log.Fatalf("FATAL: Failed to initialize service: %v", err)
	}

	// 7. Start the Service
	if err := service.Start(context.Background()); err != nil {
		appLogger.Error(context.Background(), err, "Service exited with error")
		log.Fatalf("FATAL: Service exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}

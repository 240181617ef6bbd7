package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/personal-finance-ledger/internal/api_gateway"
	"github.com/personal-finance-ledger/internal/api_gateway/service"
	"github.com/personal-finance-ledger/internal/config"
	"github.com/personal-finance-ledger/internal/data/mongo"
	"github.com/personal-finance-ledger/internal/data/postgres"
	"github.com/personal-finance-ledger/internal/domain/shared"
	"github.com/personal-finance-ledger/internal/ledger_core/components"
	"github.com/personal-finance-ledger/internal/ledger_core/importer"
	"github.com/personal-finance-ledger/internal/logger"
	"github.com/personal-finance-ledger/internal/platform/observability"
	"github.com/personal-finance-ledger/internal/platform/persistence"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("api_gateway")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)
	metrics := observability.NewMetrics()

	// Initialize databases with app context; Postgres applies pending migrations
	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
	}

	categories, err := importer.LoadCategoryMap(cfg.Import.CategoryMapPath)
	if err != nil {
		log.Error("Failed to load import category map", "path", cfg.Import.CategoryMapPath, "error", err)
		os.Exit(1)
	}

	// Initialize the ledger core over the Postgres repositories
	transactor := persistence.NewTransactor(log, postgresDB.Pool(), &cfg.Postgres, metrics.IncrTxRetry)
	core := components.CreateLedgerCore(transactor, components.Repositories{
		Accounts:     postgres.NewAccountRepository(log, postgresDB),
		Transactions: postgres.NewTransactionRepository(log, postgresDB),
		Goals:        postgres.NewGoalRepository(log, postgresDB),
		Outbox:       postgres.NewOutboxRepository(log, postgresDB),
	}, metrics, shared.SystemClock, log, cfg)

	statementImporter, err := importer.NewImporter(importer.Deps{
		TxManager:  transactor,
		Registry:   core.Registry,
		Committer:  core.Orchestrator,
		Categories: categories,
		Metrics:    metrics,
	}, importer.Config{PoolSize: cfg.WorkerPool.Size, MaxRows: cfg.Import.MaxRows}, log)
	if err != nil {
		log.Error("Failed to initialize statement importer", "error", err)
		os.Exit(1)
	}

	// Initialize services
	services := api_gateway.Services{
		Accounts:     service.NewAccountService(log, core.Registry, core.Orchestrator),
		Transactions: service.NewTransactionService(log, core.Orchestrator, statementImporter),
		Goals:        service.NewGoalService(log, core.Contributions, core.Goals),
		History:      service.NewHistoryService(log, mongo.NewHistoryRepository(log, mongoDB.Database())),
	}

	// Initialize REST server
	server := api_gateway.NewServer(log, cfg, services, metrics.Registry)
	log.Info("REST server initialized")

	// Create error channel for server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	// Cancel the application context
	cancelAppCtx()

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	// Graceful shutdown sequence: drain HTTP first so in-flight commits finish
	log.Info("Starting graceful shutdown...")

	if err = server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
	}

	statementImporter.Shutdown()

	postgresDB.Close()

	if closeErr := mongoDB.Close(shutdownCtx); closeErr != nil {
		log.Error("Error closing MongoDB connection", "error", closeErr)
		err = closeErr
	}

	// Final status
	if serverErr != nil {
		log.Error("HTTP server shutdown with errors", "error", serverErr)
	}
	if err != nil {
		log.Error("Server shutdown completed with errors")
	} else {
		log.Info("Server shutdown completed successfully")
	}
}

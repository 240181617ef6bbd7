package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/personal-finance-ledger/internal/config"
	"github.com/personal-finance-ledger/internal/data/mongo"
	"github.com/personal-finance-ledger/internal/data/postgres"
	"github.com/personal-finance-ledger/internal/domain/shared"
	"github.com/personal-finance-ledger/internal/ledger_core/components"
	"github.com/personal-finance-ledger/internal/ledger_core/consumer"
	"github.com/personal-finance-ledger/internal/ledger_core/outbox_poller"
	"github.com/personal-finance-ledger/internal/ledger_core/scheduler"
	"github.com/personal-finance-ledger/internal/logger"
	"github.com/personal-finance-ledger/internal/platform/messaging/consumers"
	"github.com/personal-finance-ledger/internal/platform/messaging/producers"
	"github.com/personal-finance-ledger/internal/platform/observability"
	"github.com/personal-finance-ledger/internal/platform/persistence"
	"github.com/personal-finance-ledger/internal/platform/resilience"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Create base context, cancelled on shutdown signals
	appCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	// Initialize configuration
	cfg, err := config.LoadConfig("ledger_worker")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)
	metrics := observability.NewMetrics()

	log.Info("Starting Ledger Worker",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

	// Initialize databases with app context
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
	if err := mongoDB.EnsureHistoryIndexes(appCtx); err != nil {
		log.Error("Failed to create history indexes", "error", err)
		os.Exit(1)
	}

	// Initialize repositories and the ledger core
	accountRepo := postgres.NewAccountRepository(log, postgresDB)
	transactionRepo := postgres.NewTransactionRepository(log, postgresDB)
	goalRepo := postgres.NewGoalRepository(log, postgresDB)
	outboxRepo := postgres.NewOutboxRepository(log, postgresDB)
	historyRepo := mongo.NewHistoryRepository(log, mongoDB.Database())

	transactor := persistence.NewTransactor(log, postgresDB.Pool(), &cfg.Postgres, metrics.IncrTxRetry)
	core := components.CreateLedgerCore(transactor, components.Repositories{
		Accounts:     accountRepo,
		Transactions: transactionRepo,
		Goals:        goalRepo,
		Outbox:       outboxRepo,
	}, metrics, shared.SystemClock, log, cfg)

	// Initialize Kafka producers
	notificationProducer, err := producers.NewTopicProducer(appCtx, log, &cfg.Kafka, cfg.Kafka.NotificationTopic)
	if err != nil {
		log.Error("Failed to initialize notification producer", "error", err)
		os.Exit(1)
	}
	commandProducer, err := producers.NewTopicProducer(appCtx, log, &cfg.Kafka, cfg.Kafka.CommandTopic)
	if err != nil {
		log.Error("Failed to initialize command producer", "error", err)
		os.Exit(1)
	}
	dlqProducer, err := producers.NewDLQProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize DLQ Kafka producer", "error", err)
		os.Exit(1)
	}
	// dlqProducer is nil when no DLQ topic is configured; keep the interface nil too
	var deadLetters producers.DeadLetterPublisher
	if dlqProducer != nil {
		deadLetters = dlqProducer
	}

	// Outbox relay: history read model plus notifications, behind a circuit breaker
	breaker := resilience.NewCircuitBreaker("notification-publisher", func(name string, from, to gobreaker.State) {
		log.Warn("Circuit breaker changed state", "breaker", name, "from", from.String(), "to", to.String())
		metrics.IncrBreakerTransition(name, to.String())
	})
	eventPublisher := outbox_poller.NewEventPublisher(outboxRepo, historyRepo, notificationProducer, breaker, shared.SystemClock, log)
	poller := outbox_poller.NewPoller(&cfg.Outbox, outboxRepo, eventPublisher, metrics, log)

	// Scheduled contribution commands
	kafkaConsumer := consumers.NewKafkaConsumer(log, &cfg.Kafka, cfg.Kafka.CommandTopic)
	commandHandler := consumer.NewContributionCommandHandler(log, core.Contributions, deadLetters, metrics)

	var contributionScheduler *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		contributionScheduler, err = scheduler.NewScheduler(&cfg.Scheduler, goalRepo, commandProducer, metrics, shared.SystemClock, log)
		if err != nil {
			log.Error("Failed to initialize contribution scheduler", "error", err)
			os.Exit(1)
		}
	}

	metricsServer := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:     promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}

	group, ctx := errgroup.WithContext(appCtx)

	group.Go(func() error {
		poller.Start(ctx)
		return nil
	})

	group.Go(func() error {
		log.Info("Starting Kafka consumer",
			"topic", cfg.Kafka.CommandTopic,
			"group", cfg.Kafka.ConsumerGroup,
		)
		if err := kafkaConsumer.Subscribe(ctx, commandHandler.HandleMessage); err != nil {
			return fmt.Errorf("kafka consumer error: %w", err)
		}
		return nil
	})

	if contributionScheduler != nil {
		group.Go(func() error {
			return contributionScheduler.Start(ctx)
		})
	}

	group.Go(func() error {
		log.Info("Serving worker metrics", "port", cfg.Server.Port)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server error: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	// Wait for a shutdown signal or the first component failure
	serviceErr := group.Wait()
	if serviceErr != nil {
		log.Error("Service error occurred", "error", serviceErr)
	}

	log.Info("Starting graceful shutdown...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	closeComponent(log, "Kafka consumer", kafkaConsumer.Close)
	closeComponent(log, "notification producer", notificationProducer.Close)
	closeComponent(log, "command producer", commandProducer.Close)
	if deadLetters != nil {
		closeComponent(log, "DLQ producer", deadLetters.Close)
	}
	postgresDB.Close()
	if err := mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	if serviceErr != nil {
		log.Error("Ledger Worker shutdown with errors", "error", serviceErr)
		os.Exit(1)
	}
	log.Info("Ledger Worker shutdown completed successfully")
}

func closeComponent(log *slog.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		log.Error("Error closing "+name, "error", err)
	}
}

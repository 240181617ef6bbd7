package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/personal-finance-ledger/internal/config"
	"github.com/personal-finance-ledger/internal/platform/resilience"
)

// Querier supports database operations for both pool and transactions
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// TxBeginner opens database transactions. Satisfied by *pgxpool.Pool and pgxmock pools.
type TxBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Ensure interfaces are satisfied (compile-time check)
var _ Querier = (*pgxpool.Pool)(nil)
var _ Querier = (pgx.Tx)(nil)
var _ TxBeginner = (*pgxpool.Pool)(nil)

// Postgres error codes that are safe to retry because the failed attempt left
// nothing behind
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

type PostgresDB struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresDB(ctx context.Context, logger *slog.Logger, cfg *config.PostgresConfig) (*PostgresDB, error) {
	err := RunMigrations(cfg.URL, cfg.MigrationsPath)
	if err != nil {
		return nil, err
	}
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PostgreSQL connection string: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = cfg.ConnMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostgreSQL connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	logger.Info("Connected to PostgreSQL")

	return &PostgresDB{
		pool:   pool,
		logger: logger,
	}, nil
}

func (db *PostgresDB) Pool() *pgxpool.Pool {
	return db.pool
}

func (db *PostgresDB) Close() {
	db.pool.Close()
	db.logger.Info("Closed PostgreSQL connection")
}

// TxManager runs a function inside one atomic database scope
type TxManager interface {
	ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// Transactor is the TxManager used by every balance-affecting flow. Serialization
// failures and deadlocks are retried with backoff; every other error aborts.
type Transactor struct {
	db      TxBeginner
	logger  *slog.Logger
	options pgx.TxOptions
	retry   resilience.Config
	onRetry func()
}

// NewTransactor builds a Transactor from the Postgres config
func NewTransactor(logger *slog.Logger, db TxBeginner, cfg *config.PostgresConfig, onRetry func()) *Transactor {
	return &Transactor{
		db:      db,
		logger:  logger,
		options: pgx.TxOptions{IsoLevel: IsolationLevel(cfg.TxIsolation)},
		retry: resilience.Config{
			MaxRetries:     cfg.TxRetryAttempts,
			InitialBackoff: cfg.TxRetryBackoff,
		},
		onRetry: onRetry,
	}
}

// NewTransactorWithOptions builds a Transactor with explicit options
func NewTransactorWithOptions(logger *slog.Logger, db TxBeginner, options pgx.TxOptions, retry resilience.Config) *Transactor {
	return &Transactor{db: db, logger: logger, options: options, retry: retry}
}

// IsolationLevel maps a config isolation name onto pgx. Unknown names fall back to
// read committed.
func IsolationLevel(name string) pgx.TxIsoLevel {
	switch strings.ToLower(name) {
	case "serializable":
		return pgx.Serializable
	case "repeatable_read":
		return pgx.RepeatableRead
	default:
		return pgx.ReadCommitted
	}
}

// ExecuteTx runs fn in a transaction, rolling back on error or panic. fn may run
// more than once, so it must not have effects outside tx.
func (t *Transactor) ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	attempt := 0
	return resilience.RetryIf(ctx, t.retry, IsRetryable, func() error {
		attempt++
		if attempt > 1 {
			t.logger.Warn("Retrying database transaction", "attempt", attempt)
			if t.onRetry != nil {
				t.onRetry()
			}
		}
		return t.executeOnce(ctx, fn)
	})
}

func (t *Transactor) executeOnce(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := t.db.BeginTx(ctx, t.options)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback(ctx) // Attempt rollback on panic
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			t.logger.Error("Failed to roll back transaction", "error", rbErr, "cause", err)
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// IsRetryable reports whether err is a serialization failure or deadlock
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == codeSerializationFailure || pgErr.Code == codeDeadlockDetected
}

// IsUniqueViolation reports whether err is a unique constraint violation, optionally
// restricted to one constraint
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

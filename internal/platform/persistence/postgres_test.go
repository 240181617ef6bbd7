package persistence

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/personal-finance-ledger/internal/config"
	"github.com/personal-finance-ledger/internal/platform/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newMockTransactor(t *testing.T, retries int) (pgxmock.PgxPoolIface, *Transactor) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	tr := NewTransactorWithOptions(testLogger(), mock, pgx.TxOptions{}, resilience.Config{
		MaxRetries:     retries,
		InitialBackoff: time.Millisecond,
	})
	return mock, tr
}

func TestPostgresDB_Pool(t *testing.T) {
	var nilPool *pgxpool.Pool
	db := &PostgresDB{pool: nilPool, logger: testLogger()}
	assert.Equal(t, nilPool, db.Pool())
}

func TestIsolationLevel(t *testing.T) {
	assert.Equal(t, pgx.ReadCommitted, IsolationLevel("read_committed"))
	assert.Equal(t, pgx.RepeatableRead, IsolationLevel("repeatable_read"))
	assert.Equal(t, pgx.Serializable, IsolationLevel("SERIALIZABLE"))
	assert.Equal(t, pgx.ReadCommitted, IsolationLevel("bogus"))
}

func TestNewTransactor_UsesConfig(t *testing.T) {
	cfg := &config.PostgresConfig{TxIsolation: "serializable", TxRetryAttempts: 4, TxRetryBackoff: 5 * time.Millisecond}

	tr := NewTransactor(testLogger(), nil, cfg, nil)

	assert.Equal(t, pgx.Serializable, tr.options.IsoLevel)
	assert.Equal(t, 4, tr.retry.MaxRetries)
	assert.Equal(t, 5*time.Millisecond, tr.retry.InitialBackoff)
}

func TestTransactor_ExecuteTx(t *testing.T) {
	ctx := context.Background()

	t.Run("CommitsOnSuccess", func(t *testing.T) {
		mock, tr := newMockTransactor(t, 0)
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE accounts").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		err := tr.ExecuteTx(ctx, func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, "UPDATE accounts SET balance = balance + 1")
			return err
		})

		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RollsBackOnError", func(t *testing.T) {
		mock, tr := newMockTransactor(t, 0)
		fnErr := errors.New("unbalanced")
		mock.ExpectBegin()
		mock.ExpectRollback()

		err := tr.ExecuteTx(ctx, func(tx pgx.Tx) error { return fnErr })

		assert.ErrorIs(t, err, fnErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("BeginFails", func(t *testing.T) {
		mock, tr := newMockTransactor(t, 0)
		mock.ExpectBegin().WillReturnError(errors.New("pool exhausted"))

		err := tr.ExecuteTx(ctx, func(tx pgx.Tx) error { return nil })

		assert.ErrorContains(t, err, "failed to begin transaction")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RollsBackOnPanic", func(t *testing.T) {
		mock, tr := newMockTransactor(t, 0)
		mock.ExpectBegin()
		mock.ExpectRollback()

		assert.Panics(t, func() {
			_ = tr.ExecuteTx(ctx, func(tx pgx.Tx) error { panic("boom") })
		})
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RetriesSerializationFailure", func(t *testing.T) {
		mock, tr := newMockTransactor(t, 2)
		retries := 0
		tr.onRetry = func() { retries++ }
		serialization := &pgconn.PgError{Code: "40001"}

		mock.ExpectBegin()
		mock.ExpectRollback()
		mock.ExpectBegin()
		mock.ExpectCommit()

		calls := 0
		err := tr.ExecuteTx(ctx, func(tx pgx.Tx) error {
			calls++
			if calls == 1 {
				return serialization
			}
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 2, calls)
		assert.Equal(t, 1, retries)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DoesNotRetryOtherErrors", func(t *testing.T) {
		mock, tr := newMockTransactor(t, 3)
		mock.ExpectBegin()
		mock.ExpectRollback()

		calls := 0
		err := tr.ExecuteTx(ctx, func(tx pgx.Tx) error {
			calls++
			return &pgconn.PgError{Code: "23503"}
		})

		assert.Error(t, err)
		assert.Equal(t, 1, calls)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&pgconn.PgError{Code: "40001"}))
	assert.True(t, IsRetryable(errors.Join(errors.New("wrapped"), &pgconn.PgError{Code: "40P01"})))
	assert.False(t, IsRetryable(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestIsUniqueViolation(t *testing.T) {
	err := &pgconn.PgError{Code: "23505", ConstraintName: "transactions_owner_idempotency_key"}

	assert.True(t, IsUniqueViolation(err, ""))
	assert.True(t, IsUniqueViolation(err, "transactions_owner_idempotency_key"))
	assert.False(t, IsUniqueViolation(err, "accounts_pkey"))
	assert.False(t, IsUniqueViolation(errors.New("x"), ""))
}

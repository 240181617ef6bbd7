// Package postgres provides PostgreSQL implementations of the domain repositories.
// Every repository can be rebound to a pgx.Tx so a whole ledger commit runs in
// one database transaction.
package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/personal-finance-ledger/internal/domain/account"
	"github.com/personal-finance-ledger/internal/domain/shared"
	"github.com/personal-finance-ledger/internal/platform/persistence"
)

const accountColumns = `id, owner_id, name, type, category, balance, active, version, created_at, updated_at`

// AccountRepository implements the account.Repository interface for PostgreSQL
type AccountRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

// NewAccountRepository creates a new PostgreSQL account repository
func NewAccountRepository(logger *slog.Logger, db *persistence.PostgresDB) account.Repository {
	return &AccountRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx returns a repository bound to tx
func (r *AccountRepository) WithTx(tx pgx.Tx) account.Repository {
	return &AccountRepository{
		querier: tx,
		logger:  r.logger,
	}
}

func scanAccount(row pgx.Row) (*account.Account, error) {
	var acc account.Account
	err := row.Scan(
		&acc.ID,
		&acc.OwnerID,
		&acc.Name,
		&acc.Type,
		&acc.Category,
		&acc.Balance,
		&acc.Active,
		&acc.Version,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

// Create stores a new account
func (r *AccountRepository) Create(ctx context.Context, acc *account.Account) error {
	query := `
		INSERT INTO accounts (id, owner_id, name, type, category, balance, active, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.querier.Exec(ctx, query,
		acc.ID,
		acc.OwnerID,
		acc.Name,
		acc.Type,
		acc.Category,
		acc.Balance,
		acc.Active,
		acc.Version,
		acc.CreatedAt,
		acc.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create account", "owner_id", acc.OwnerID.String(), "error", err)
		return shared.NewPersistenceError("create account", err)
	}

	return nil
}

// CreateIfAbsent inserts the account unless the owner already has an active one
// for the same type and category. Concurrent callers race on the partial unique
// index and exactly one insert wins.
func (r *AccountRepository) CreateIfAbsent(ctx context.Context, acc *account.Account) (bool, error) {
	query := `
		INSERT INTO accounts (id, owner_id, name, type, category, balance, active, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (owner_id, type, category) WHERE active AND category <> 'goal' DO NOTHING
	`

	result, err := r.querier.Exec(ctx, query,
		acc.ID,
		acc.OwnerID,
		acc.Name,
		acc.Type,
		acc.Category,
		acc.Balance,
		acc.Active,
		acc.Version,
		acc.CreatedAt,
		acc.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to provision account",
			"owner_id", acc.OwnerID.String(),
			"category", string(acc.Category),
			"error", err)
		return false, shared.NewPersistenceError("provision account", err)
	}

	return result.RowsAffected() == 1, nil
}

// GetByID retrieves an account by its ID
func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	acc, err := scanAccount(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, account.ErrAccountNotFound{AccountID: id}
		}
		r.logger.Error("Failed to get account", "id", id.String(), "error", err)
		return nil, shared.NewPersistenceError("get account", err)
	}

	return acc, nil
}

// FindActive retrieves the owner's active account for a type and category
func (r *AccountRepository) FindActive(ctx context.Context, ownerID uuid.UUID, accountType account.Type, category account.Category) (*account.Account, error) {
	query := `SELECT ` + accountColumns + `
		FROM accounts
		WHERE owner_id = $1 AND type = $2 AND category = $3 AND active
		ORDER BY created_at ASC
		LIMIT 1
	`

	acc, err := scanAccount(r.querier.QueryRow(ctx, query, ownerID, accountType, category))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to find account by category",
			"owner_id", ownerID.String(),
			"category", string(category),
			"error", err)
		return nil, shared.NewPersistenceError("find account by category", err)
	}

	return acc, nil
}

// ListByOwner returns all accounts of an owner, including deactivated ones
func (r *AccountRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*account.Account, error) {
	query := `SELECT ` + accountColumns + `
		FROM accounts
		WHERE owner_id = $1
		ORDER BY type, category, created_at
	`

	rows, err := r.querier.Query(ctx, query, ownerID)
	if err != nil {
		r.logger.Error("Failed to list accounts", "owner_id", ownerID.String(), "error", err)
		return nil, shared.NewPersistenceError("list accounts", err)
	}
	defer rows.Close()

	accounts := []*account.Account{}
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			r.logger.Error("Failed to scan account", "error", err)
			return nil, shared.NewPersistenceError("scan account", err)
		}
		accounts = append(accounts, acc)
	}

	if err := rows.Err(); err != nil {
		return nil, shared.NewPersistenceError("iterate accounts", err)
	}

	return accounts, nil
}

// UpdateBalance applies delta with a single atomic increment
func (r *AccountRepository) UpdateBalance(ctx context.Context, id uuid.UUID, delta int64) error {
	query := `
		UPDATE accounts
		SET balance = balance + $1, version = version + 1, updated_at = $2
		WHERE id = $3
	`

	result, err := r.querier.Exec(ctx, query, delta, time.Now().UTC(), id)
	if err != nil {
		r.logger.Error("Failed to update account balance",
			"id", id.String(),
			"delta", delta,
			"error", err)
		return shared.NewPersistenceError("update account balance", err)
	}

	if result.RowsAffected() == 0 {
		return account.ErrAccountNotFound{AccountID: id}
	}

	return nil
}

// LockForUpdate reads the account holding its row lock
func (r *AccountRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`

	acc, err := scanAccount(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, account.ErrAccountNotFound{AccountID: id}
		}
		r.logger.Error("Failed to lock account", "id", id.String(), "error", err)
		return nil, shared.NewPersistenceError("lock account", err)
	}

	return acc, nil
}

// Deactivate soft-deletes an active account
func (r *AccountRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE accounts
		SET active = FALSE, version = version + 1, updated_at = $1
		WHERE id = $2 AND active
	`

	result, err := r.querier.Exec(ctx, query, time.Now().UTC(), id)
	if err != nil {
		r.logger.Error("Failed to deactivate account", "id", id.String(), "error", err)
		return shared.NewPersistenceError("deactivate account", err)
	}

	if result.RowsAffected() == 0 {
		return account.ErrAccountNotFound{AccountID: id}
	}

	return nil
}

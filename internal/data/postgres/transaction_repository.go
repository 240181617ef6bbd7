package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/personal-finance-ledger/internal/domain/ledger"
	"github.com/personal-finance-ledger/internal/domain/shared"
	"github.com/personal-finance-ledger/internal/platform/persistence"
)

const transactionColumns = `id, owner_id, date, description, category, signed_total, notes,
	location_name, location_lat, location_lng, idempotency_key, reversal_of, reversed_by, created_at`

// TransactionRepository implements the ledger.Repository interface for PostgreSQL
type TransactionRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewTransactionRepository creates a new PostgreSQL transaction repository
func NewTransactionRepository(logger *slog.Logger, db *persistence.PostgresDB) ledger.Repository {
	return &TransactionRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx returns a repository bound to tx
func (r *TransactionRepository) WithTx(tx pgx.Tx) ledger.Repository {
	return &TransactionRepository{
		querier: tx,
		logger:  r.logger,
	}
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func scanTransaction(row pgx.Row) (*ledger.Transaction, error) {
	var (
		tx             ledger.Transaction
		locationName   *string
		lat, lng       *float64
		idempotencyKey *string
	)
	err := row.Scan(
		&tx.ID,
		&tx.OwnerID,
		&tx.Date,
		&tx.Description,
		&tx.Category,
		&tx.SignedTotal,
		&tx.Notes,
		&locationName,
		&lat,
		&lng,
		&idempotencyKey,
		&tx.ReversalOf,
		&tx.ReversedBy,
		&tx.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if locationName != nil || lat != nil || lng != nil {
		tx.Location = &ledger.Location{Latitude: lat, Longitude: lng}
		if locationName != nil {
			tx.Location.Name = *locationName
		}
	}
	if idempotencyKey != nil {
		tx.IdempotencyKey = *idempotencyKey
	}
	return &tx, nil
}

// Create inserts the transaction header row
func (r *TransactionRepository) Create(ctx context.Context, tx *ledger.Transaction) error {
	query := `
		INSERT INTO transactions (id, owner_id, date, description, category, signed_total, notes,
			location_name, location_lat, location_lng, idempotency_key, reversal_of, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	var (
		locationName *string
		lat, lng     *float64
	)
	if tx.Location != nil {
		locationName = nullableString(tx.Location.Name)
		lat, lng = tx.Location.Latitude, tx.Location.Longitude
	}

	_, err := r.querier.Exec(ctx, query,
		tx.ID,
		tx.OwnerID,
		tx.Date,
		tx.Description,
		tx.Category,
		tx.SignedTotal,
		tx.Notes,
		locationName,
		lat,
		lng,
		nullableString(tx.IdempotencyKey),
		tx.ReversalOf,
		tx.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create transaction",
			"transaction_id", tx.ID.String(),
			"owner_id", tx.OwnerID.String(),
			"error", err)
		return shared.NewPersistenceError("create transaction", err)
	}

	return nil
}

// CreateEntries inserts the line items of a transaction in position order
func (r *TransactionRepository) CreateEntries(ctx context.Context, entries []ledger.Entry) error {
	query := `
		INSERT INTO entries (id, transaction_id, account_id, kind, amount, position)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	for _, e := range entries {
		_, err := r.querier.Exec(ctx, query, e.ID, e.TransactionID, e.AccountID, e.Kind, e.Amount, e.Position)
		if err != nil {
			r.logger.Error("Failed to create entry",
				"transaction_id", e.TransactionID.String(),
				"account_id", e.AccountID.String(),
				"position", e.Position,
				"error", err)
			return shared.NewPersistenceError("create entry", err)
		}
	}

	return nil
}

// GetByID retrieves a transaction and its entries
func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*ledger.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	tx, err := scanTransaction(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrTransactionNotFound{TransactionID: id}
		}
		r.logger.Error("Failed to get transaction", "transaction_id", id.String(), "error", err)
		return nil, shared.NewPersistenceError("get transaction", err)
	}

	if err := r.loadEntries(ctx, []*ledger.Transaction{tx}); err != nil {
		return nil, err
	}
	return tx, nil
}

// GetByIdempotencyKey retrieves the owner's transaction committed under key
func (r *TransactionRepository) GetByIdempotencyKey(ctx context.Context, ownerID uuid.UUID, key string) (*ledger.Transaction, error) {
	if key == "" {
		return nil, nil
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE owner_id = $1 AND idempotency_key = $2`

	tx, err := scanTransaction(r.querier.QueryRow(ctx, query, ownerID, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get transaction by idempotency key",
			"owner_id", ownerID.String(),
			"idempotency_key", key,
			"error", err)
		return nil, shared.NewPersistenceError("get transaction by idempotency key", err)
	}

	if err := r.loadEntries(ctx, []*ledger.Transaction{tx}); err != nil {
		return nil, err
	}
	return tx, nil
}

// ListByOwner returns the owner's transactions dated within [from, to], newest first
func (r *TransactionRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, from, to time.Time) ([]*ledger.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE owner_id = $1 AND date BETWEEN $2 AND $3
		ORDER BY date DESC, created_at DESC
	`

	rows, err := r.querier.Query(ctx, query, ownerID, from, to)
	if err != nil {
		r.logger.Error("Failed to list transactions", "owner_id", ownerID.String(), "error", err)
		return nil, shared.NewPersistenceError("list transactions", err)
	}

	txs := []*ledger.Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			rows.Close()
			r.logger.Error("Failed to scan transaction", "error", err)
			return nil, shared.NewPersistenceError("scan transaction", err)
		}
		txs = append(txs, tx)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, shared.NewPersistenceError("iterate transactions", err)
	}

	if err := r.loadEntries(ctx, txs); err != nil {
		return nil, err
	}
	return txs, nil
}

// loadEntries fills Entries for txs with one query
func (r *TransactionRepository) loadEntries(ctx context.Context, txs []*ledger.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	byID := make(map[uuid.UUID]*ledger.Transaction, len(txs))
	ids := make([]uuid.UUID, 0, len(txs))
	for _, tx := range txs {
		byID[tx.ID] = tx
		ids = append(ids, tx.ID)
	}

	query := `
		SELECT id, transaction_id, account_id, kind, amount, position
		FROM entries
		WHERE transaction_id = ANY($1)
		ORDER BY transaction_id, position
	`

	rows, err := r.querier.Query(ctx, query, ids)
	if err != nil {
		r.logger.Error("Failed to load entries", "transactions", len(ids), "error", err)
		return shared.NewPersistenceError("load entries", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e ledger.Entry
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.AccountID, &e.Kind, &e.Amount, &e.Position); err != nil {
			r.logger.Error("Failed to scan entry", "error", err)
			return shared.NewPersistenceError("scan entry", err)
		}
		if tx, ok := byID[e.TransactionID]; ok {
			tx.Entries = append(tx.Entries, e)
		}
	}

	if err := rows.Err(); err != nil {
		return shared.NewPersistenceError("iterate entries", err)
	}
	return nil
}

// MarkReversed records reversalID as the compensating transaction of id
func (r *TransactionRepository) MarkReversed(ctx context.Context, id, reversalID uuid.UUID) error {
	query := `
		UPDATE transactions
		SET reversed_by = $1
		WHERE id = $2 AND reversed_by IS NULL
	`

	result, err := r.querier.Exec(ctx, query, reversalID, id)
	if err != nil {
		r.logger.Error("Failed to mark transaction reversed",
			"transaction_id", id.String(),
			"reversal_id", reversalID.String(),
			"error", err)
		return shared.NewPersistenceError("mark transaction reversed", err)
	}

	if result.RowsAffected() == 0 {
		return ledger.ErrAlreadyReversed{TransactionID: id}
	}
	return nil
}

package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/personal-finance-ledger/internal/domain/shared"
)

// Repository persists committed transactions together with their entries
type Repository interface {
	Create(ctx context.Context, tx *Transaction) error
	CreateEntries(ctx context.Context, entries []Entry) error
	GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error)

	// GetByIdempotencyKey returns nil, nil when no transaction carries the key
	GetByIdempotencyKey(ctx context.Context, ownerID uuid.UUID, key string) (*Transaction, error)

	// ListByOwner returns transactions dated within [from, to], newest first
	ListByOwner(ctx context.Context, ownerID uuid.UUID, from, to time.Time) ([]*Transaction, error)

	// MarkReversed links the original to its compensating transaction. Fails with
	// ErrAlreadyReversed when a reversal is already recorded.
	MarkReversed(ctx context.Context, id, reversalID uuid.UUID) error
	WithTx(tx pgx.Tx) Repository
}

// ErrTransactionNotFound indicates missing transaction
type ErrTransactionNotFound struct {
	TransactionID uuid.UUID
}

func (e ErrTransactionNotFound) Error() string {
	return "transaction not found: " + e.TransactionID.String()
}

func (e ErrTransactionNotFound) Kind() shared.ErrorKind { return shared.KindNotFound }

// Is implements the errors.Is interface for ErrTransactionNotFound
func (e ErrTransactionNotFound) Is(target error) bool {
	t, ok := target.(ErrTransactionNotFound)
	if !ok {
		return false
	}
	if t.TransactionID == uuid.Nil {
		return true
	}
	return e.TransactionID == t.TransactionID
}

// ErrUnbalancedTransaction rejects entries whose debit and credit sums differ
type ErrUnbalancedTransaction struct {
	Debits  int64
	Credits int64
}

func (e ErrUnbalancedTransaction) Error() string {
	return fmt.Sprintf("unbalanced transaction: debits %s != credits %s",
		shared.FormatAmount(e.Debits), shared.FormatAmount(e.Credits))
}

func (e ErrUnbalancedTransaction) Kind() shared.ErrorKind { return shared.KindValidation }

// ErrAlreadyReversed rejects a second reversal of the same transaction
type ErrAlreadyReversed struct {
	TransactionID uuid.UUID
}

func (e ErrAlreadyReversed) Error() string {
	return "transaction already reversed: " + e.TransactionID.String()
}

func (e ErrAlreadyReversed) Kind() shared.ErrorKind { return shared.KindValidation }

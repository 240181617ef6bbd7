package account

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/personal-finance-ledger/internal/domain/shared"
)

// Repository defines account persistence operations
type Repository interface {
	Create(ctx context.Context, account *Account) error

	// CreateIfAbsent inserts the account unless an active account with the same
	// owner, type and category already exists. Reports whether a row was written.
	CreateIfAbsent(ctx context.Context, account *Account) (bool, error)

	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)

	// FindActive returns nil, nil when the owner has no active account for the pair
	FindActive(ctx context.Context, ownerID uuid.UUID, accountType Type, category Category) (*Account, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*Account, error)

	// UpdateBalance applies delta as a single atomic increment
	UpdateBalance(ctx context.Context, id uuid.UUID, delta int64) error

	// LockForUpdate acquires a row lock for the rest of the database transaction
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Account, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
	WithTx(tx pgx.Tx) Repository
}

// ErrAccountNotFound indicates missing account
type ErrAccountNotFound struct {
	AccountID uuid.UUID
}

func (e ErrAccountNotFound) Error() string {
	return "account not found: " + e.AccountID.String()
}

func (e ErrAccountNotFound) Kind() shared.ErrorKind { return shared.KindNotFound }

// Is implements the errors.Is interface for ErrAccountNotFound
func (e ErrAccountNotFound) Is(target error) bool {
	t, ok := target.(ErrAccountNotFound)
	if !ok {
		return false
	}
	if t.AccountID == uuid.Nil {
		return true
	}
	return e.AccountID == t.AccountID
}

// ErrInsufficientFunds carries the shortfall so callers can offer an override
type ErrInsufficientFunds struct {
	AccountID uuid.UUID
	Balance   int64
	Requested int64
}

// Shortfall is the amount missing to cover the request
func (e ErrInsufficientFunds) Shortfall() int64 {
	return e.Requested - e.Balance
}

func (e ErrInsufficientFunds) Error() string {
	return fmt.Sprintf("insufficient funds in account %s: balance %s, requested %s, short by %s",
		e.AccountID, shared.FormatAmount(e.Balance), shared.FormatAmount(e.Requested), shared.FormatAmount(e.Shortfall()))
}

func (e ErrInsufficientFunds) Kind() shared.ErrorKind { return shared.KindInsufficientFunds }

// ErrAccountInactive rejects entries against a deactivated account
type ErrAccountInactive struct {
	AccountID uuid.UUID
}

func (e ErrAccountInactive) Error() string {
	return "account is inactive: " + e.AccountID.String()
}

func (e ErrAccountInactive) Kind() shared.ErrorKind { return shared.KindValidation }

// ErrGoalAccountReserved rejects money movements on a goal's savings account
// outside a contribution, which would break the mirror of the goal's progress
type ErrGoalAccountReserved struct {
	AccountID uuid.UUID
}

func (e ErrGoalAccountReserved) Error() string {
	return "goal account only moves through goal contributions: " + e.AccountID.String()
}

func (e ErrGoalAccountReserved) Kind() shared.ErrorKind { return shared.KindValidation }

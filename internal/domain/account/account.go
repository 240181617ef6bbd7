package account

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/personal-finance-ledger/internal/domain/shared"
)

// Type determines the balance sign convention of an account
type Type string

const (
	TypeAsset     Type = "asset"
	TypeLiability Type = "liability"
	TypeIncome    Type = "income"
	TypeExpense   Type = "expense"
)

// ParseType validates a raw account type
func ParseType(raw string) (Type, error) {
	switch t := Type(raw); t {
	case TypeAsset, TypeLiability, TypeIncome, TypeExpense:
		return t, nil
	}
	return "", shared.ValidationError{Field: "account type", Reason: fmt.Sprintf("unknown type %q", raw)}
}

// IsBalanceSheet reports whether balances of this type count towards net worth
func (t Type) IsBalanceSheet() bool {
	return t == TypeAsset || t == TypeLiability
}

// Account is a per-owner bucket of money. Balance is stored in cents and is only
// changed through committed ledger entries.
type Account struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	Name      string    `json:"name"`
	Type      Type      `json:"type"`
	Category  Category  `json:"category"`
	Balance   int64     `json:"balance"`
	Active    bool      `json:"active"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewAccount creates an active zero-balance account. The category must belong to the
// requested type.
func NewAccount(ownerID uuid.UUID, accountType Type, category Category, name string, now time.Time) (*Account, error) {
	if ownerID == uuid.Nil {
		return nil, shared.ValidationError{Field: "owner id", Reason: "is required"}
	}
	if err := category.CheckType(accountType); err != nil {
		return nil, err
	}
	if name == "" {
		name = category.DisplayName()
	}

	return &Account{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Name:      name,
		Type:      accountType,
		Category:  category,
		Balance:   0,
		Active:    true,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// GoalAccountName is the display name of a goal's dedicated savings account
func GoalAccountName(goalName string) string {
	return "Goal: " + goalName
}

// NewGoalAccount creates the dedicated savings account backing a goal
func NewGoalAccount(ownerID uuid.UUID, goalName string, now time.Time) (*Account, error) {
	return NewAccount(ownerID, TypeAsset, CategoryGoal, GoalAccountName(goalName), now)
}

// CheckOwner fails with ErrUnauthorized when the account belongs to someone else
func (a *Account) CheckOwner(ownerID uuid.UUID) error {
	if a.OwnerID != ownerID {
		return shared.ErrUnauthorized{Resource: "account", ResourceID: a.ID, OwnerID: ownerID}
	}
	return nil
}

// CheckFunds verifies an asset account can cover amount. Other account types are not
// funds-limited.
func (a *Account) CheckFunds(amount int64) error {
	if a.Type != TypeAsset || a.Balance >= amount {
		return nil
	}
	return ErrInsufficientFunds{
		AccountID: a.ID,
		Balance:   a.Balance,
		Requested: amount,
	}
}

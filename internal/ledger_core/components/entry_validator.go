package components

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/personal-finance-ledger/internal/domain/account"
	"github.com/personal-finance-ledger/internal/domain/ledger"
	"github.com/personal-finance-ledger/internal/domain/shared"
	"github.com/personal-finance-ledger/internal/ledger_core/service"
)

// EntryValidatorImpl implements the EntryValidator interface
type EntryValidatorImpl struct {
	accountRepo account.Repository
	logger      *slog.Logger
}

// NewEntryValidator creates a new EntryValidatorImpl
func NewEntryValidator(accountRepo account.Repository, logger *slog.Logger) service.EntryValidator {
	return &EntryValidatorImpl{
		accountRepo: accountRepo,
		logger:      logger,
	}
}

// ValidateStructure checks entries without touching the store: at least two
// lines, positive amounts, known kinds and equal debit and credit sums
func (v *EntryValidatorImpl) ValidateStructure(entries []ledger.Entry) error {
	if len(entries) < 2 {
		return shared.ValidationError{Field: "entries", Reason: fmt.Sprintf("need at least 2, got %d", len(entries))}
	}

	for i, e := range entries {
		if e.AccountID == uuid.Nil {
			return shared.ValidationError{Field: fmt.Sprintf("entries[%d].account_id", i), Reason: "is required"}
		}
		if e.Amount <= 0 {
			return shared.ValidationError{Field: fmt.Sprintf("entries[%d].amount", i), Reason: "must be positive"}
		}
		if e.Kind != ledger.Debit && e.Kind != ledger.Credit {
			return shared.ValidationError{Field: fmt.Sprintf("entries[%d].kind", i), Reason: fmt.Sprintf("unknown kind %q", e.Kind)}
		}
	}

	debits, credits, err := ledger.Sums(entries)
	if err != nil {
		return err
	}
	if debits != credits {
		return ledger.ErrUnbalancedTransaction{Debits: debits, Credits: credits}
	}
	return nil
}

// Validate runs the structural checks, then loads every referenced account and
// rejects missing, foreign or inactive ones. Goal accounts are accepted only
// when meta marks a goal transfer.
func (v *EntryValidatorImpl) Validate(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID, meta ledger.Meta, entries []ledger.Entry) (map[uuid.UUID]*account.Account, error) {
	if err := v.ValidateStructure(entries); err != nil {
		return nil, err
	}

	repo := v.accountRepo
	if tx != nil {
		repo = repo.WithTx(tx)
	}

	accounts := make(map[uuid.UUID]*account.Account)
	for _, id := range ledger.AccountIDs(entries) {
		acc, err := repo.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, account.ErrAccountNotFound{}) {
				v.logger.Warn("Entry references unknown account", "owner_id", ownerID.String(), "account_id", id.String())
				return nil, err
			}
			return nil, fmt.Errorf("failed to load account %s: %w", id, err)
		}

		if err := acc.CheckOwner(ownerID); err != nil {
			v.logger.Warn("Entry references account of another owner",
				"security_event", true,
				"owner_id", ownerID.String(),
				"account_id", id.String(),
				"account_owner_id", acc.OwnerID.String(),
			)
			return nil, err
		}

		if !acc.Active {
			return nil, account.ErrAccountInactive{AccountID: id}
		}
		if acc.Category == account.CategoryGoal && !meta.GoalTransfer {
			return nil, account.ErrGoalAccountReserved{AccountID: id}
		}
		accounts[id] = acc
	}

	return accounts, nil
}

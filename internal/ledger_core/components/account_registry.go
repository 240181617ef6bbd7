package components

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/personal-finance-ledger/internal/domain/account"
	"github.com/personal-finance-ledger/internal/domain/goal"
	"github.com/personal-finance-ledger/internal/domain/shared"
	"github.com/personal-finance-ledger/internal/ledger_core/service"
)

// AccountRegistryImpl implements the AccountRegistry interface
type AccountRegistryImpl struct {
	accountRepo account.Repository
	clock       shared.Clock
	logger      *slog.Logger
}

// NewAccountRegistry creates a new AccountRegistryImpl
func NewAccountRegistry(accountRepo account.Repository, clock shared.Clock, logger *slog.Logger) service.AccountRegistry {
	return &AccountRegistryImpl{
		accountRepo: accountRepo,
		clock:       clock,
		logger:      logger,
	}
}

func (r *AccountRegistryImpl) repo(tx pgx.Tx) account.Repository {
	if tx == nil {
		return r.accountRepo
	}
	return r.accountRepo.WithTx(tx)
}

// ResolveOrCreate returns the owner's active account for the pair, creating it
// with a zero balance when absent. Concurrent callers converge on one row.
func (r *AccountRegistryImpl) ResolveOrCreate(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID, accountType account.Type, category account.Category) (*account.Account, error) {
	if category == account.CategoryGoal {
		return nil, shared.ValidationError{Field: "category", Reason: "goal accounts are provisioned by their goal"}
	}
	if err := category.CheckType(accountType); err != nil {
		return nil, err
	}

	repo := r.repo(tx)
	existing, err := repo.FindActive(ctx, ownerID, accountType, category)
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s account: %w", category, err)
	}
	if existing != nil {
		return existing, nil
	}

	acc, err := account.NewAccount(ownerID, accountType, category, "", r.clock.Now())
	if err != nil {
		return nil, err
	}

	created, err := repo.CreateIfAbsent(ctx, acc)
	if err != nil {
		return nil, fmt.Errorf("failed to provision %s account: %w", category, err)
	}
	if created {
		r.logger.Info("Provisioned account",
			"owner_id", ownerID.String(),
			"account_id", acc.ID.String(),
			"type", string(accountType),
			"category", string(category),
		)
		return acc, nil
	}

	// Lost the insert race; the winner's row is committed and visible now
	existing, err = repo.FindActive(ctx, ownerID, accountType, category)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read %s account: %w", category, err)
	}
	if existing == nil {
		return nil, shared.NewPersistenceError("resolve account",
			fmt.Errorf("no active %s account after conflicting insert", category))
	}
	return existing, nil
}

// ProvisionGoalAccount returns the goal's dedicated savings account, creating it
// and linking it on g when missing. The caller persists g. A goal holding
// progress is never moved to a fresh account, since the new balance could not
// mirror it.
func (r *AccountRegistryImpl) ProvisionGoalAccount(ctx context.Context, tx pgx.Tx, g *goal.Goal) (*account.Account, error) {
	repo := r.repo(tx)

	if g.AccountID != nil {
		acc, err := repo.GetByID(ctx, *g.AccountID)
		switch {
		case err == nil && acc.Active:
			return acc, nil
		case g.CurrentAmount != 0 && (err == nil || errors.Is(err, account.ErrAccountNotFound{})):
			r.logger.Error("Goal account unavailable while goal holds progress",
				"goal_id", g.ID.String(), "account_id", g.AccountID.String(), "current_amount", g.CurrentAmount)
			return nil, shared.NewPersistenceError("provision goal account",
				fmt.Errorf("goal %s holds %d but its account %s is unavailable", g.ID, g.CurrentAmount, *g.AccountID))
		case err == nil:
			r.logger.Warn("Goal account inactive, provisioning a new one", "goal_id", g.ID.String(), "account_id", acc.ID.String())
		case errors.Is(err, account.ErrAccountNotFound{}):
			r.logger.Warn("Goal account missing, provisioning a new one", "goal_id", g.ID.String())
		default:
			return nil, fmt.Errorf("failed to load goal account: %w", err)
		}
	}

	acc, err := account.NewGoalAccount(g.OwnerID, g.Name, r.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := repo.Create(ctx, acc); err != nil {
		return nil, fmt.Errorf("failed to create goal account: %w", err)
	}

	g.AccountID = &acc.ID
	r.logger.Info("Provisioned goal account", "goal_id", g.ID.String(), "account_id", acc.ID.String())
	return acc, nil
}

// GetByID loads an account the owner holds
func (r *AccountRegistryImpl) GetByID(ctx context.Context, ownerID, accountID uuid.UUID) (*account.Account, error) {
	acc, err := r.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := acc.CheckOwner(ownerID); err != nil {
		r.logger.Warn("Account read by another owner",
			"security_event", true,
			"owner_id", ownerID.String(),
			"account_id", accountID.String(),
		)
		return nil, err
	}
	return acc, nil
}

// ListByOwner returns the owner's accounts, deactivated ones included
func (r *AccountRegistryImpl) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*account.Account, error) {
	return r.accountRepo.ListByOwner(ctx, ownerID)
}

// Deactivate soft-deletes an owner's account. Goal accounts follow their goal and
// cannot be deactivated directly.
func (r *AccountRegistryImpl) Deactivate(ctx context.Context, ownerID, accountID uuid.UUID) error {
	acc, err := r.GetByID(ctx, ownerID, accountID)
	if err != nil {
		return err
	}
	if acc.Category == account.CategoryGoal {
		return shared.ValidationError{Field: "account", Reason: "goal accounts cannot be deactivated directly"}
	}
	if err := r.accountRepo.Deactivate(ctx, accountID); err != nil {
		return err
	}

	r.logger.Info("Deactivated account", "owner_id", ownerID.String(), "account_id", accountID.String())
	return nil
}

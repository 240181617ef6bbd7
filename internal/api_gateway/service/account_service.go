package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/personal-finance-ledger/internal/domain/account"
	ledgersvc "github.com/personal-finance-ledger/internal/ledger_core/service"
)

// AccountResolver resolves an account in its own atomic scope
type AccountResolver interface {
	ResolveAccount(ctx context.Context, ownerID uuid.UUID, accountType account.Type, category account.Category) (*account.Account, error)
}

// AccountServiceImpl implements AccountService over the ledger core
type AccountServiceImpl struct {
	registry ledgersvc.AccountRegistry
	resolver AccountResolver
	logger   *slog.Logger
}

func NewAccountService(logger *slog.Logger, registry ledgersvc.AccountRegistry, resolver AccountResolver) AccountService {
	return &AccountServiceImpl{
		registry: registry,
		resolver: resolver,
		logger:   logger,
	}
}

func (s *AccountServiceImpl) ResolveAccount(ctx context.Context, ownerID uuid.UUID, accountType account.Type, category account.Category) (*account.Account, error) {
	acc, err := s.resolver.ResolveAccount(ctx, ownerID, accountType, category)
	if err != nil {
		s.logger.Error("Failed to resolve account",
			"owner_id", ownerID.String(),
			"type", string(accountType),
			"category", string(category),
			"error", err,
		)
		return nil, err
	}
	return acc, nil
}

func (s *AccountServiceImpl) GetAccount(ctx context.Context, ownerID, accountID uuid.UUID) (*account.Account, error) {
	return s.registry.GetByID(ctx, ownerID, accountID)
}

func (s *AccountServiceImpl) ListAccounts(ctx context.Context, ownerID uuid.UUID) ([]*account.Account, error) {
	return s.registry.ListByOwner(ctx, ownerID)
}

func (s *AccountServiceImpl) DeactivateAccount(ctx context.Context, ownerID, accountID uuid.UUID) error {
	if err := s.registry.Deactivate(ctx, ownerID, accountID); err != nil {
		return err
	}
	s.logger.Info("Account deactivated", "owner_id", ownerID.String(), "account_id", accountID.String())
	return nil
}

package components

import (
	"log/slog"

	"github.com/personal-finance-ledger/internal/config"
	"github.com/personal-finance-ledger/internal/domain/account"
	"github.com/personal-finance-ledger/internal/domain/goal"
	"github.com/personal-finance-ledger/internal/domain/ledger"
	"github.com/personal-finance-ledger/internal/domain/outbox"
	"github.com/personal-finance-ledger/internal/domain/shared"
	"github.com/personal-finance-ledger/internal/ledger_core/service"
	"github.com/personal-finance-ledger/internal/platform/persistence"
)

// Repositories bundles the stores the ledger core writes through
type Repositories struct {
	Accounts     account.Repository
	Transactions ledger.Repository
	Goals        goal.Repository
	Outbox       outbox.Repository
}

// LedgerCore holds the wired ledger services
type LedgerCore struct {
	Registry      service.AccountRegistry
	Orchestrator  *service.Orchestrator
	Contributions *service.ContributionService
	Goals         *service.GoalLifecycle
}

// CreateLedgerCore wires the orchestrator, contribution engine and goal lifecycle
// over one transaction manager
func CreateLedgerCore(
	txManager persistence.TxManager,
	repos Repositories,
	metrics service.Metrics,
	clock shared.Clock,
	logger *slog.Logger,
	cfg *config.Config,
) *LedgerCore {
	if clock == nil {
		clock = shared.SystemClock
	}

	registry := NewAccountRegistry(repos.Accounts, clock, logger.With("component", "account_registry"))
	validator := NewEntryValidator(repos.Accounts, logger.With("component", "entry_validator"))
	outboxWriter := NewOutboxWriter(repos.Outbox, clock, logger.With("component", "outbox_writer"))

	orchestrator := service.NewOrchestrator(service.OrchestratorDeps{
		TxManager:   txManager,
		Registry:    registry,
		Validator:   validator,
		Projector:   NewBalanceProjector(),
		Outbox:      outboxWriter,
		AccountRepo: repos.Accounts,
		TxRepo:      repos.Transactions,
		Clock:       clock,
		Currency:    cfg.Application.Currency,
		Metrics:     metrics,
	}, logger.With("component", "orchestrator"))

	contributions := service.NewContributionService(service.ContributionDeps{
		TxManager:   txManager,
		Committer:   orchestrator,
		Registry:    registry,
		Outbox:      outboxWriter,
		GoalRepo:    repos.Goals,
		AccountRepo: repos.Accounts,
		Clock:       clock,
		Currency:    cfg.Application.Currency,
		Metrics:     metrics,
	}, logger.With("component", "contribution_engine"))

	goals := service.NewGoalLifecycle(txManager, repos.Goals, clock, logger.With("component", "goal_lifecycle"))

	logger.Info("Created ledger core", "currency", cfg.Application.Currency)
	return &LedgerCore{
		Registry:      registry,
		Orchestrator:  orchestrator,
		Contributions: contributions,
		Goals:         goals,
	}
}

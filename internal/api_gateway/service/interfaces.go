package service

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/personal-finance-ledger/internal/domain/account"
	"github.com/personal-finance-ledger/internal/domain/goal"
	"github.com/personal-finance-ledger/internal/domain/ledger"
	"github.com/personal-finance-ledger/internal/ledger_core/importer"
	ledgersvc "github.com/personal-finance-ledger/internal/ledger_core/service"
)

// AccountService exposes the owner's accounts
type AccountService interface {
	// ResolveAccount returns the owner's active account of the given category,
	// creating it on first use
	ResolveAccount(ctx context.Context, ownerID uuid.UUID, accountType account.Type, category account.Category) (*account.Account, error)

	// GetAccount returns ErrAccountNotFound for unknown ids and ErrUnauthorized
	// for another owner's account
	GetAccount(ctx context.Context, ownerID, accountID uuid.UUID) (*account.Account, error)

	ListAccounts(ctx context.Context, ownerID uuid.UUID) ([]*account.Account, error)

	// DeactivateAccount keeps the account and its history but rejects new entries
	DeactivateAccount(ctx context.Context, ownerID, accountID uuid.UUID) error
}

// TransactionService commits and reads ledger transactions
type TransactionService interface {
	CommitTransaction(ctx context.Context, ownerID uuid.UUID, meta ledger.Meta, entries []ledger.Entry) (*ledger.Transaction, error)
	QuickDeal(ctx context.Context, ownerID uuid.UUID, req ledgersvc.QuickDealRequest) (*ledger.Transaction, error)
	ReverseTransaction(ctx context.Context, ownerID uuid.UUID, req ledgersvc.ReversalRequest) (*ledger.Transaction, error)
	GetTransaction(ctx context.Context, ownerID, transactionID uuid.UUID) (*ledger.Transaction, error)
	ListTransactions(ctx context.Context, ownerID uuid.UUID, from, to time.Time) ([]*ledger.Transaction, error)

	// ImportCSV commits a bank statement; per-row failures land in the report
	ImportCSV(ctx context.Context, ownerID uuid.UUID, r io.Reader, req importer.Request) (*importer.Report, error)
}

// GoalService runs savings goals and their contributions
type GoalService interface {
	CreateGoal(ctx context.Context, ownerID uuid.UUID, params goal.Params) (*goal.Goal, error)
	GetGoal(ctx context.Context, ownerID, goalID uuid.UUID) (*goal.Goal, error)
	ListGoals(ctx context.Context, ownerID uuid.UUID) ([]*goal.Goal, error)
	Contribute(ctx context.Context, ownerID uuid.UUID, req ledgersvc.ContributionRequest) (*ledgersvc.ContributionResult, error)
	PauseGoal(ctx context.Context, ownerID, goalID uuid.UUID) (*goal.Goal, error)
	ResumeGoal(ctx context.Context, ownerID, goalID uuid.UUID) (*goal.Goal, error)
	CancelGoal(ctx context.Context, ownerID, goalID uuid.UUID) (*goal.Goal, error)
}

// HistoryService reads the transaction history read model
type HistoryService interface {
	// GetHistory returns one page of records and the total count in range
	GetHistory(ctx context.Context, ownerID uuid.UUID, from, to time.Time, page, perPage int) ([]*ledger.HistoryRecord, int64, error)
}

package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/personal-finance-ledger/internal/domain/account"
	"github.com/personal-finance-ledger/internal/domain/goal"
	"github.com/personal-finance-ledger/internal/domain/ledger"
	"github.com/personal-finance-ledger/internal/domain/outbox"
)

// AccountRegistry resolves, provisions and reads owner accounts. Methods taking a
// pgx.Tx run inside the caller's scope; a nil tx uses the pool.
type AccountRegistry interface {
	ResolveOrCreate(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID, accountType account.Type, category account.Category) (*account.Account, error)
	ProvisionGoalAccount(ctx context.Context, tx pgx.Tx, g *goal.Goal) (*account.Account, error)
	GetByID(ctx context.Context, ownerID, accountID uuid.UUID) (*account.Account, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*account.Account, error)
	Deactivate(ctx context.Context, ownerID, accountID uuid.UUID) error
}

// EntryValidator checks entries before anything is written
type EntryValidator interface {
	ValidateStructure(entries []ledger.Entry) error
	// Validate returns the referenced accounts keyed by id
	Validate(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID, meta ledger.Meta, entries []ledger.Entry) (map[uuid.UUID]*account.Account, error)
}

// AccountDelta is the net balance change of one account within a commit
type AccountDelta struct {
	AccountID uuid.UUID
	Delta     int64
}

// Projection is the balance effect of a set of entries
type Projection struct {
	Deltas      []AccountDelta // first-seen account order
	SignedTotal int64          // net change over asset and liability accounts
}

// BalanceProjector turns entries into per-account balance deltas
type BalanceProjector interface {
	ProjectEntries(accounts map[uuid.UUID]*account.Account, entries []ledger.Entry) (*Projection, error)
}

// OutboxWriter enqueues post-commit events inside the commit scope
type OutboxWriter interface {
	Enqueue(ctx context.Context, tx pgx.Tx, eventType outbox.EventType, transactionID, ownerID uuid.UUID, payload any) error
}

// TransactionCommitter commits balanced transactions
type TransactionCommitter interface {
	CommitTransaction(ctx context.Context, ownerID uuid.UUID, meta ledger.Meta, entries []ledger.Entry) (*ledger.Transaction, error)
	// CommitInTx runs the commit steps against a caller-owned scope
	CommitInTx(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID, meta ledger.Meta, entries []ledger.Entry) (*ledger.Transaction, error)
}

// Metrics is the slice of observability.Metrics the ledger core records into
type Metrics interface {
	RecordCommit(flow string, err error, d time.Duration)
	IncrContribution(status string)
	IncrMilestone(milestone string)
	IncrImportRow(result string)
}

type noopMetrics struct{}

func (noopMetrics) RecordCommit(string, error, time.Duration) {}
func (noopMetrics) IncrContribution(string) {}
func (noopMetrics) IncrMilestone(string) {}
func (noopMetrics) IncrImportRow(string) {}

// NoopMetrics discards every observation
var NoopMetrics Metrics = noopMetrics{}

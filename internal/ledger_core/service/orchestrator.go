package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/personal-finance-ledger/internal/domain/account"
	"github.com/personal-finance-ledger/internal/domain/ledger"
	"github.com/personal-finance-ledger/internal/domain/outbox"
	"github.com/personal-finance-ledger/internal/domain/shared"
	"github.com/personal-finance-ledger/internal/platform/persistence"
)

// Commit flows, used as the metrics label
const (
	FlowTransaction  = "transaction"
	FlowQuickDeal    = "quick_deal"
	FlowReversal     = "reversal"
	FlowContribution = "contribution"
	FlowImport       = "import"
)

const transactionKeyConstraint = "transactions_owner_idempotency_key"

// DealType selects the direction of a quick deal
type DealType string

const (
	DealIncome  DealType = "income"
	DealExpense DealType = "expense"
)

// QuickDealRequest is a one-step income or expense against a cash account
type QuickDealRequest struct {
	Type           DealType
	Amount         int64
	Category       account.Category
	AccountID      uuid.UUID // cash account paid from or deposited into
	Date           time.Time
	Description    string
	Notes          string
	Location       *ledger.Location
	IdempotencyKey string
	CorrelationID  string
}

// ReversalRequest asks for a compensating transaction
type ReversalRequest struct {
	TransactionID  uuid.UUID
	Reason         string
	IdempotencyKey string
	CorrelationID  string
}

// Orchestrator commits balanced transactions atomically: entries, balance
// updates and the outbox event either all persist or none do
type Orchestrator struct {
	txManager   persistence.TxManager
	registry    AccountRegistry
	validator   EntryValidator
	projector   BalanceProjector
	outbox      OutboxWriter
	accountRepo account.Repository
	txRepo      ledger.Repository
	clock       shared.Clock
	currency    string
	metrics     Metrics
	logger      *slog.Logger
}

// OrchestratorDeps groups the collaborators of an Orchestrator
type OrchestratorDeps struct {
	TxManager   persistence.TxManager
	Registry    AccountRegistry
	Validator   EntryValidator
	Projector   BalanceProjector
	Outbox      OutboxWriter
	AccountRepo account.Repository
	TxRepo      ledger.Repository
	Clock       shared.Clock
	Currency    string
	Metrics     Metrics
}

func NewOrchestrator(deps OrchestratorDeps, logger *slog.Logger) *Orchestrator {
	clock := deps.Clock
	if clock == nil {
		clock = shared.SystemClock
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = NoopMetrics
	}
	return &Orchestrator{
		txManager:   deps.TxManager,
		registry:    deps.Registry,
		validator:   deps.Validator,
		projector:   deps.Projector,
		outbox:      deps.Outbox,
		accountRepo: deps.AccountRepo,
		txRepo:      deps.TxRepo,
		clock:       clock,
		currency:    deps.Currency,
		metrics:     metrics,
		logger:      logger,
	}
}

func (o *Orchestrator) loggerFor(correlationID string) *slog.Logger {
	if correlationID == "" {
		return o.logger
	}
	return o.logger.With("correlation_id", correlationID)
}

// CommitTransaction validates entries and commits them in a new scope
func (o *Orchestrator) CommitTransaction(ctx context.Context, ownerID uuid.UUID, meta ledger.Meta, entries []ledger.Entry) (*ledger.Transaction, error) {
	start := time.Now()
	tx, err := o.commit(ctx, ownerID, meta, entries)
	o.metrics.RecordCommit(FlowTransaction, err, time.Since(start))
	return tx, err
}

func (o *Orchestrator) commit(ctx context.Context, ownerID uuid.UUID, meta ledger.Meta, entries []ledger.Entry) (*ledger.Transaction, error) {
	if err := o.validator.ValidateStructure(entries); err != nil {
		return nil, err
	}

	var committed *ledger.Transaction
	err := o.txManager.ExecuteTx(ctx, func(tx pgx.Tx) error {
		var err error
		committed, err = o.CommitInTx(ctx, tx, ownerID, meta, entries)
		return err
	})
	if err != nil {
		return o.recoverKeyRace(ctx, ownerID, meta.IdempotencyKey, err)
	}
	return committed, nil
}

// recoverKeyRace returns the winner of a concurrent commit that carried the same
// idempotency key. Any other error passes through.
func (o *Orchestrator) recoverKeyRace(ctx context.Context, ownerID uuid.UUID, key string, err error) (*ledger.Transaction, error) {
	if key == "" || !persistence.IsUniqueViolation(err, transactionKeyConstraint) {
		return nil, err
	}

	existing, lookupErr := o.txRepo.GetByIdempotencyKey(ctx, ownerID, key)
	if lookupErr != nil {
		return nil, fmt.Errorf("failed to load transaction for idempotency key %q: %w", key, lookupErr)
	}
	if existing == nil {
		return nil, err
	}
	o.logger.Info("Concurrent commit with same idempotency key, returning existing transaction",
		"owner_id", ownerID.String(), "transaction_id", existing.ID.String())
	return existing, nil
}

// CommitInTx runs the commit steps inside tx. A transaction already recorded
// under meta.IdempotencyKey is returned unchanged.
func (o *Orchestrator) CommitInTx(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID, meta ledger.Meta, entries []ledger.Entry) (*ledger.Transaction, error) {
	logger := o.loggerFor(meta.CorrelationID)
	txRepo := o.txRepo.WithTx(tx)

	if meta.IdempotencyKey != "" {
		existing, err := txRepo.GetByIdempotencyKey(ctx, ownerID, meta.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("failed to check idempotency key: %w", err)
		}
		if existing != nil {
			logger.Info("Transaction already committed for idempotency key",
				"transaction_id", existing.ID.String(),
				"idempotency_key", meta.IdempotencyKey,
			)
			return existing, nil
		}
	}

	accounts, err := o.validator.Validate(ctx, tx, ownerID, meta, entries)
	if err != nil {
		return nil, err
	}

	projection, err := o.projector.ProjectEntries(accounts, entries)
	if err != nil {
		return nil, err
	}

	committed := ledger.NewTransaction(ownerID, meta, entries, o.clock.Now())
	committed.SignedTotal = projection.SignedTotal

	if err := txRepo.Create(ctx, committed); err != nil {
		return nil, err
	}
	if err := txRepo.CreateEntries(ctx, committed.Entries); err != nil {
		return nil, err
	}

	accountRepo := o.accountRepo.WithTx(tx)
	for _, d := range projection.Deltas {
		if d.Delta == 0 {
			continue
		}
		if err := accountRepo.UpdateBalance(ctx, d.AccountID, d.Delta); err != nil {
			logger.Error("Failed to apply balance delta",
				"transaction_id", committed.ID.String(),
				"account_id", d.AccountID.String(),
				"delta", d.Delta,
				"error", err,
			)
			return nil, err
		}
	}

	event := outbox.TransactionCommitted{
		Transaction:   committed,
		Display:       shared.DisplayAmount(committed.SignedTotal, o.currency),
		CorrelationID: meta.CorrelationID,
	}
	if err := o.outbox.Enqueue(ctx, tx, outbox.EventTransactionCommitted, committed.ID, ownerID, event); err != nil {
		return nil, err
	}

	logger.Info("Transaction committed",
		"transaction_id", committed.ID.String(),
		"owner_id", ownerID.String(),
		"entries", len(committed.Entries),
		"signed_total", committed.SignedTotal,
	)
	return committed, nil
}

func (r QuickDealRequest) validate() error {
	if r.Type != DealIncome && r.Type != DealExpense {
		return shared.ValidationError{Field: "type", Reason: fmt.Sprintf("must be income or expense, got %q", r.Type)}
	}
	if r.Amount <= 0 {
		return shared.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if r.AccountID == uuid.Nil {
		return shared.ValidationError{Field: "account_id", Reason: "is required"}
	}
	return r.Category.CheckType(r.Type.accountType())
}

func (t DealType) accountType() account.Type {
	if t == DealIncome {
		return account.TypeIncome
	}
	return account.TypeExpense
}

// QuickDeal records an income or expense against a cash account, resolving the
// category account inside the same scope
func (o *Orchestrator) QuickDeal(ctx context.Context, ownerID uuid.UUID, req QuickDealRequest) (*ledger.Transaction, error) {
	start := time.Now()
	tx, err := o.quickDeal(ctx, ownerID, req)
	o.metrics.RecordCommit(FlowQuickDeal, err, time.Since(start))
	return tx, err
}

func (o *Orchestrator) quickDeal(ctx context.Context, ownerID uuid.UUID, req QuickDealRequest) (*ledger.Transaction, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = req.Category.DisplayName()
	}
	meta := ledger.Meta{
		Date:           req.Date,
		Description:    description,
		Category:       string(req.Category),
		Notes:          req.Notes,
		Location:       req.Location,
		IdempotencyKey: req.IdempotencyKey,
		CorrelationID:  req.CorrelationID,
	}

	var committed *ledger.Transaction
	err := o.txManager.ExecuteTx(ctx, func(tx pgx.Tx) error {
		cash, err := o.accountRepo.WithTx(tx).GetByID(ctx, req.AccountID)
		if err != nil {
			return err
		}
		if err := cash.CheckOwner(ownerID); err != nil {
			o.loggerFor(req.CorrelationID).Warn("Quick deal against account of another owner",
				"security_event", true,
				"owner_id", ownerID.String(),
				"account_id", cash.ID.String(),
			)
			return err
		}
		if !cash.Type.IsBalanceSheet() {
			return shared.ValidationError{
				Field:  "account_id",
				Reason: fmt.Sprintf("quick deals need an asset or liability account, got %s", cash.Type),
			}
		}
		if cash.Category == account.CategoryGoal {
			return account.ErrGoalAccountReserved{AccountID: cash.ID}
		}

		target, err := o.registry.ResolveOrCreate(ctx, tx, ownerID, req.Type.accountType(), req.Category)
		if err != nil {
			return err
		}

		entries := []ledger.Entry{
			{AccountID: target.ID, Kind: ledger.Debit, Amount: req.Amount},
			{AccountID: cash.ID, Kind: ledger.Credit, Amount: req.Amount},
		}
		if req.Type == DealIncome {
			entries = []ledger.Entry{
				{AccountID: cash.ID, Kind: ledger.Debit, Amount: req.Amount},
				{AccountID: target.ID, Kind: ledger.Credit, Amount: req.Amount},
			}
		}

		committed, err = o.CommitInTx(ctx, tx, ownerID, meta, entries)
		return err
	})
	if err != nil {
		return o.recoverKeyRace(ctx, ownerID, req.IdempotencyKey, err)
	}
	return committed, nil
}

// ReverseTransaction commits the mirror image of a transaction and links the two.
// Reversals themselves cannot be reversed.
func (o *Orchestrator) ReverseTransaction(ctx context.Context, ownerID uuid.UUID, req ReversalRequest) (*ledger.Transaction, error) {
	start := time.Now()
	tx, err := o.reverse(ctx, ownerID, req)
	o.metrics.RecordCommit(FlowReversal, err, time.Since(start))
	return tx, err
}

func (o *Orchestrator) reverse(ctx context.Context, ownerID uuid.UUID, req ReversalRequest) (*ledger.Transaction, error) {
	logger := o.loggerFor(req.CorrelationID)

	var reversal *ledger.Transaction
	err := o.txManager.ExecuteTx(ctx, func(tx pgx.Tx) error {
		txRepo := o.txRepo.WithTx(tx)

		if req.IdempotencyKey != "" {
			existing, err := txRepo.GetByIdempotencyKey(ctx, ownerID, req.IdempotencyKey)
			if err != nil {
				return fmt.Errorf("failed to check idempotency key: %w", err)
			}
			if existing != nil {
				reversal = existing
				return nil
			}
		}

		original, err := txRepo.GetByID(ctx, req.TransactionID)
		if err != nil {
			return err
		}
		if err := original.CheckOwner(ownerID); err != nil {
			logger.Warn("Reversal requested for transaction of another owner",
				"security_event", true,
				"owner_id", ownerID.String(),
				"transaction_id", original.ID.String(),
			)
			return err
		}
		if original.ReversalOf != nil {
			return shared.ValidationError{Field: "transaction", Reason: "a reversal cannot be reversed"}
		}
		if original.IsReversed() {
			return ledger.ErrAlreadyReversed{TransactionID: original.ID}
		}
		if original.Category == string(account.CategoryGoal) {
			return shared.ValidationError{Field: "transaction", Reason: "goal contributions cannot be reversed"}
		}

		meta := ledger.Meta{
			Date:           o.clock.Now(),
			Description:    "Reversal: " + original.Description,
			Category:       original.Category,
			Notes:          req.Reason,
			IdempotencyKey: req.IdempotencyKey,
			CorrelationID:  req.CorrelationID,
			ReversalOf:     &original.ID,
		}
		reversal, err = o.CommitInTx(ctx, tx, ownerID, meta, ledger.ReversalEntries(original.Entries))
		if err != nil {
			return err
		}

		return txRepo.MarkReversed(ctx, original.ID, reversal.ID)
	})
	if err != nil {
		return o.recoverKeyRace(ctx, ownerID, req.IdempotencyKey, err)
	}

	logger.Info("Transaction reversed",
		"transaction_id", req.TransactionID.String(),
		"reversal_id", reversal.ID.String(),
	)
	return reversal, nil
}

// GetTransaction loads one of the owner's transactions with its entries
func (o *Orchestrator) GetTransaction(ctx context.Context, ownerID, transactionID uuid.UUID) (*ledger.Transaction, error) {
	t, err := o.txRepo.GetByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if err := t.CheckOwner(ownerID); err != nil {
		o.logger.Warn("Transaction read by another owner",
			"security_event", true,
			"owner_id", ownerID.String(),
			"transaction_id", transactionID.String(),
		)
		return nil, err
	}
	return t, nil
}

// ListTransactions returns the owner's transactions dated within [from, to]
func (o *Orchestrator) ListTransactions(ctx context.Context, ownerID uuid.UUID, from, to time.Time) ([]*ledger.Transaction, error) {
	from, to = shared.DateOf(from), shared.DateOf(to)
	if to.Before(from) {
		return nil, shared.ValidationError{Field: "date range", Reason: "from must not be after to"}
	}
	return o.txRepo.ListByOwner(ctx, ownerID, from, to)
}

// ResolveAccount exposes the registry's resolve-or-create in its own scope
func (o *Orchestrator) ResolveAccount(ctx context.Context, ownerID uuid.UUID, accountType account.Type, category account.Category) (*account.Account, error) {
	var acc *account.Account
	err := o.txManager.ExecuteTx(ctx, func(tx pgx.Tx) error {
		var err error
		acc, err = o.registry.ResolveOrCreate(ctx, tx, ownerID, accountType, category)
		return err
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// IsBusinessRejection reports whether err is a caller-side failure that retrying
// cannot fix
func IsBusinessRejection(err error) bool {
	switch shared.KindOf(err) {
	case shared.KindValidation, shared.KindNotFound, shared.KindAuthorization, shared.KindInsufficientFunds:
		return true
	}
	return false
}

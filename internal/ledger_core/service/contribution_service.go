package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/personal-finance-ledger/internal/domain/account"
	"github.com/personal-finance-ledger/internal/domain/goal"
	"github.com/personal-finance-ledger/internal/domain/ledger"
	"github.com/personal-finance-ledger/internal/domain/outbox"
	"github.com/personal-finance-ledger/internal/domain/shared"
	"github.com/personal-finance-ledger/internal/platform/persistence"
)

const contributionKeyConstraint = "goal_contributions_goal_idempotency_key"

// Contribution outcomes, used as the metrics label
const (
	ContributionSuccess  = "success"
	ContributionReplayed = "replayed"
	ContributionRejected = "rejected"
	ContributionFailed   = "failed"
)

// ContributionRequest moves money from a source account into a goal
type ContributionRequest struct {
	GoalID          uuid.UUID
	Amount          int64
	SourceAccountID *uuid.UUID // falls back to the goal's default source
	Notes           string
	IdempotencyKey  string
	CorrelationID   string
}

// ContributionResult is the outcome of one contribution
type ContributionResult struct {
	Goal          *goal.Goal          `json:"goal"`
	Contribution  *goal.Contribution  `json:"contribution"`
	Transaction   *ledger.Transaction `json:"transaction,omitempty"`
	NewMilestones []int               `json:"new_milestones"`
	IsCompleted   bool                `json:"is_completed"`
	Replayed      bool                `json:"replayed,omitempty"`
}

// ContributionService runs goal contributions and goal creation. A contribution
// commits its transaction, contribution row, goal progress and events in one
// scope.
type ContributionService struct {
	txManager   persistence.TxManager
	committer   TransactionCommitter
	registry    AccountRegistry
	outbox      OutboxWriter
	goalRepo    goal.Repository
	accountRepo account.Repository
	clock       shared.Clock
	currency    string
	metrics     Metrics
	logger      *slog.Logger
}

// ContributionDeps groups the collaborators of a ContributionService
type ContributionDeps struct {
	TxManager   persistence.TxManager
	Committer   TransactionCommitter
	Registry    AccountRegistry
	Outbox      OutboxWriter
	GoalRepo    goal.Repository
	AccountRepo account.Repository
	Clock       shared.Clock
	Currency    string
	Metrics     Metrics
}

func NewContributionService(deps ContributionDeps, logger *slog.Logger) *ContributionService {
	clock := deps.Clock
	if clock == nil {
		clock = shared.SystemClock
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = NoopMetrics
	}
	return &ContributionService{
		txManager:   deps.TxManager,
		committer:   deps.Committer,
		registry:    deps.Registry,
		outbox:      deps.Outbox,
		goalRepo:    deps.GoalRepo,
		accountRepo: deps.AccountRepo,
		clock:       clock,
		currency:    deps.Currency,
		metrics:     metrics,
		logger:      logger,
	}
}

// Contribute moves req.Amount from the source account into the goal's savings
// account and advances the goal. Nothing persists unless every step succeeds.
func (s *ContributionService) Contribute(ctx context.Context, ownerID uuid.UUID, req ContributionRequest) (*ContributionResult, error) {
	start := time.Now()
	result, err := s.contribute(ctx, ownerID, req)
	s.metrics.RecordCommit(FlowContribution, err, time.Since(start))

	switch {
	case err == nil && result.Replayed:
		s.metrics.IncrContribution(ContributionReplayed)
	case err == nil:
		s.metrics.IncrContribution(ContributionSuccess)
		for _, m := range result.NewMilestones {
			s.metrics.IncrMilestone(strconv.Itoa(m))
		}
	case IsBusinessRejection(err):
		s.metrics.IncrContribution(ContributionRejected)
	default:
		s.metrics.IncrContribution(ContributionFailed)
	}
	return result, err
}

func (s *ContributionService) contribute(ctx context.Context, ownerID uuid.UUID, req ContributionRequest) (*ContributionResult, error) {
	if req.Amount <= 0 {
		return nil, shared.ValidationError{Field: "amount", Reason: "must be positive"}
	}

	logger := s.logger.With("goal_id", req.GoalID.String())
	if req.CorrelationID != "" {
		logger = logger.With("correlation_id", req.CorrelationID)
	}

	var result *ContributionResult
	err := s.txManager.ExecuteTx(ctx, func(tx pgx.Tx) error {
		var err error
		result, err = s.contributeInTx(ctx, tx, ownerID, req, logger)
		return err
	})
	if err != nil {
		if req.IdempotencyKey != "" && persistence.IsUniqueViolation(err, contributionKeyConstraint) {
			return s.replay(ctx, ownerID, req)
		}
		return nil, err
	}

	logger.Info("Contribution recorded",
		"contribution_id", result.Contribution.ID.String(),
		"amount", req.Amount,
		"current_amount", result.Goal.CurrentAmount,
		"new_milestones", result.NewMilestones,
		"completed", result.IsCompleted,
		"replayed", result.Replayed,
	)
	return result, nil
}

func (s *ContributionService) contributeInTx(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID, req ContributionRequest, logger *slog.Logger) (*ContributionResult, error) {
	goalRepo := s.goalRepo.WithTx(tx)

	g, err := goalRepo.LockForUpdate(ctx, req.GoalID)
	if err != nil {
		return nil, err
	}
	if err := g.CheckOwner(ownerID); err != nil {
		logger.Warn("Contribution to goal of another owner", "security_event", true, "owner_id", ownerID.String())
		return nil, err
	}

	if req.IdempotencyKey != "" {
		existing, err := goalRepo.GetContributionByIdempotencyKey(ctx, g.ID, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("failed to check contribution idempotency key: %w", err)
		}
		if existing != nil {
			logger.Info("Contribution already recorded for idempotency key", "contribution_id", existing.ID.String())
			return replayedResult(g, existing), nil
		}
	}

	if g.Status != goal.StatusActive {
		return nil, goal.ErrGoalNotActive{GoalID: g.ID, Status: g.Status}
	}

	sourceID := req.SourceAccountID
	if sourceID == nil {
		sourceID = g.SourceAccountID
	}
	if sourceID == nil {
		return nil, goal.ErrNoSourceAccount{GoalID: g.ID}
	}

	source, err := s.accountRepo.WithTx(tx).LockForUpdate(ctx, *sourceID)
	if err != nil {
		return nil, err
	}
	if err := source.CheckOwner(g.OwnerID); err != nil {
		logger.Warn("Contribution source belongs to another owner",
			"security_event", true,
			"owner_id", g.OwnerID.String(),
			"account_id", source.ID.String(),
		)
		return nil, err
	}
	if !source.Active {
		return nil, account.ErrAccountInactive{AccountID: source.ID}
	}
	if source.Category == account.CategoryGoal {
		return nil, account.ErrGoalAccountReserved{AccountID: source.ID}
	}
	if err := source.CheckFunds(req.Amount); err != nil {
		logger.Info("Contribution rejected for insufficient funds", "account_id", source.ID.String(), "balance", source.Balance, "amount", req.Amount)
		return nil, err
	}

	goalAccount, err := s.registry.ProvisionGoalAccount(ctx, tx, g)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	meta := ledger.Meta{
		Date:          now,
		Description:   "Contribution: " + g.Name,
		Category:      string(account.CategoryGoal),
		Notes:         req.Notes,
		CorrelationID: req.CorrelationID,
		GoalTransfer:  true,
	}
	if req.IdempotencyKey != "" {
		meta.IdempotencyKey = "goal:" + g.ID.String() + ":" + req.IdempotencyKey
	}
	entries := []ledger.Entry{
		{AccountID: goalAccount.ID, Kind: ledger.Debit, Amount: req.Amount},
		{AccountID: source.ID, Kind: ledger.Credit, Amount: req.Amount},
	}

	committed, err := s.committer.CommitInTx(ctx, tx, g.OwnerID, meta, entries)
	if err != nil {
		return nil, err
	}

	contribution := goal.NewContribution(g.ID, source.ID, committed.ID, req.Amount, req.Notes, req.IdempotencyKey, now)
	if err := goalRepo.CreateContribution(ctx, contribution); err != nil {
		return nil, err
	}

	outcome, err := g.ApplyContribution(req.Amount, now)
	if err != nil {
		return nil, err
	}
	if err := goalRepo.Update(ctx, g); err != nil {
		return nil, err
	}

	if err := s.enqueueEvents(ctx, tx, g, contribution, outcome, req.CorrelationID); err != nil {
		return nil, err
	}

	newMilestones := outcome.NewMilestones
	if newMilestones == nil {
		newMilestones = []int{}
	}
	return &ContributionResult{
		Goal:          g,
		Contribution:  contribution,
		Transaction:   committed,
		NewMilestones: newMilestones,
		IsCompleted:   outcome.Completed,
	}, nil
}

func (s *ContributionService) enqueueEvents(ctx context.Context, tx pgx.Tx, g *goal.Goal, c *goal.Contribution, outcome goal.Outcome, correlationID string) error {
	recorded := outbox.ContributionRecorded{
		GoalID:         g.ID,
		ContributionID: c.ID,
		TransactionID:  c.TransactionID,
		Amount:         c.Amount,
		Display:        shared.DisplayAmount(c.Amount, s.currency),
		CurrentAmount:  g.CurrentAmount,
		TargetAmount:   g.TargetAmount,
		Date:           c.Date,
		CorrelationID:  correlationID,
	}
	if err := s.outbox.Enqueue(ctx, tx, outbox.EventContributionRecorded, c.TransactionID, g.OwnerID, recorded); err != nil {
		return err
	}

	for _, m := range outcome.NewMilestones {
		reached := outbox.MilestoneReached{
			GoalID:        g.ID,
			GoalName:      g.Name,
			Milestone:     m,
			CurrentAmount: g.CurrentAmount,
			TargetAmount:  g.TargetAmount,
			CorrelationID: correlationID,
		}
		if err := s.outbox.Enqueue(ctx, tx, outbox.EventGoalMilestoneReached, c.TransactionID, g.OwnerID, reached); err != nil {
			return err
		}
	}

	if outcome.Completed {
		completed := outbox.GoalCompleted{
			GoalID:        g.ID,
			GoalName:      g.Name,
			FinalAmount:   g.CurrentAmount,
			TargetAmount:  g.TargetAmount,
			CorrelationID: correlationID,
		}
		if err := s.outbox.Enqueue(ctx, tx, outbox.EventGoalCompleted, c.TransactionID, g.OwnerID, completed); err != nil {
			return err
		}
	}
	return nil
}

// replay loads the contribution a concurrent request committed under the same key
func (s *ContributionService) replay(ctx context.Context, ownerID uuid.UUID, req ContributionRequest) (*ContributionResult, error) {
	g, err := s.goalRepo.GetByID(ctx, req.GoalID)
	if err != nil {
		return nil, err
	}
	if err := g.CheckOwner(ownerID); err != nil {
		return nil, err
	}
	existing, err := s.goalRepo.GetContributionByIdempotencyKey(ctx, g.ID, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, shared.NewPersistenceError("replay contribution",
			fmt.Errorf("no contribution for key %q after conflicting insert", req.IdempotencyKey))
	}
	return replayedResult(g, existing), nil
}

func replayedResult(g *goal.Goal, c *goal.Contribution) *ContributionResult {
	return &ContributionResult{
		Goal:          g,
		Contribution:  c,
		NewMilestones: []int{},
		IsCompleted:   g.Status == goal.StatusCompleted,
		Replayed:      true,
	}
}

// CreateGoal validates params, provisions the goal's savings account and stores
// the goal in one scope
func (s *ContributionService) CreateGoal(ctx context.Context, ownerID uuid.UUID, params goal.Params) (*goal.Goal, error) {
	g, err := goal.NewGoal(ownerID, params, s.clock.Now())
	if err != nil {
		return nil, err
	}

	err = s.txManager.ExecuteTx(ctx, func(tx pgx.Tx) error {
		if g.SourceAccountID != nil {
			source, err := s.accountRepo.WithTx(tx).GetByID(ctx, *g.SourceAccountID)
			if err != nil {
				return err
			}
			if err := source.CheckOwner(ownerID); err != nil {
				s.logger.Warn("Goal source belongs to another owner",
					"security_event", true,
					"owner_id", ownerID.String(),
					"account_id", source.ID.String(),
				)
				return err
			}
			if !source.Type.IsBalanceSheet() || source.Category == account.CategoryGoal {
				return shared.ValidationError{Field: "source_account_id", Reason: "must be an asset or liability account outside a goal"}
			}
		}

		// the scope may be retried
		g.AccountID = nil
		if _, err := s.registry.ProvisionGoalAccount(ctx, tx, g); err != nil {
			return err
		}
		return s.goalRepo.WithTx(tx).Create(ctx, g)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Goal created",
		"goal_id", g.ID.String(),
		"owner_id", ownerID.String(),
		"target_amount", g.TargetAmount,
		"frequency", string(g.Frequency),
	)
	return g, nil
}

// GetGoal loads one of the owner's goals
func (s *ContributionService) GetGoal(ctx context.Context, ownerID, goalID uuid.UUID) (*goal.Goal, error) {
	g, err := s.goalRepo.GetByID(ctx, goalID)
	if err != nil {
		return nil, err
	}
	if err := g.CheckOwner(ownerID); err != nil {
		return nil, err
	}
	return g, nil
}

// ListGoals returns every goal the owner holds
func (s *ContributionService) ListGoals(ctx context.Context, ownerID uuid.UUID) ([]*goal.Goal, error) {
	return s.goalRepo.ListByOwner(ctx, ownerID)
}

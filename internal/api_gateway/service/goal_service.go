package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/personal-finance-ledger/internal/domain/goal"
	ledgersvc "github.com/personal-finance-ledger/internal/ledger_core/service"
)

// GoalServiceImpl implements GoalService over the contribution engine and the
// goal lifecycle
type GoalServiceImpl struct {
	contributions *ledgersvc.ContributionService
	lifecycle     *ledgersvc.GoalLifecycle
	logger        *slog.Logger
}

func NewGoalService(logger *slog.Logger, contributions *ledgersvc.ContributionService, lifecycle *ledgersvc.GoalLifecycle) GoalService {
	return &GoalServiceImpl{
		contributions: contributions,
		lifecycle:     lifecycle,
		logger:        logger,
	}
}

func (s *GoalServiceImpl) CreateGoal(ctx context.Context, ownerID uuid.UUID, params goal.Params) (*goal.Goal, error) {
	return s.contributions.CreateGoal(ctx, ownerID, params)
}

func (s *GoalServiceImpl) GetGoal(ctx context.Context, ownerID, goalID uuid.UUID) (*goal.Goal, error) {
	return s.contributions.GetGoal(ctx, ownerID, goalID)
}

func (s *GoalServiceImpl) ListGoals(ctx context.Context, ownerID uuid.UUID) ([]*goal.Goal, error) {
	return s.contributions.ListGoals(ctx, ownerID)
}

func (s *GoalServiceImpl) Contribute(ctx context.Context, ownerID uuid.UUID, req ledgersvc.ContributionRequest) (*ledgersvc.ContributionResult, error) {
	return s.contributions.Contribute(ctx, ownerID, req)
}

func (s *GoalServiceImpl) PauseGoal(ctx context.Context, ownerID, goalID uuid.UUID) (*goal.Goal, error) {
	return s.lifecycle.Pause(ctx, ownerID, goalID)
}

func (s *GoalServiceImpl) ResumeGoal(ctx context.Context, ownerID, goalID uuid.UUID) (*goal.Goal, error) {
	return s.lifecycle.Resume(ctx, ownerID, goalID)
}

func (s *GoalServiceImpl) CancelGoal(ctx context.Context, ownerID, goalID uuid.UUID) (*goal.Goal, error) {
	return s.lifecycle.Cancel(ctx, ownerID, goalID)
}

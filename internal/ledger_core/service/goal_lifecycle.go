package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/personal-finance-ledger/internal/domain/goal"
	"github.com/personal-finance-ledger/internal/domain/shared"
	"github.com/personal-finance-ledger/internal/platform/persistence"
)

// GoalLifecycle applies the explicit goal transitions under the goal's row lock
type GoalLifecycle struct {
	txManager persistence.TxManager
	goalRepo  goal.Repository
	clock     shared.Clock
	logger    *slog.Logger
}

func NewGoalLifecycle(txManager persistence.TxManager, goalRepo goal.Repository, clock shared.Clock, logger *slog.Logger) *GoalLifecycle {
	if clock == nil {
		clock = shared.SystemClock
	}
	return &GoalLifecycle{
		txManager: txManager,
		goalRepo:  goalRepo,
		clock:     clock,
		logger:    logger,
	}
}

// Pause stops scheduled contributions until the goal is resumed
func (l *GoalLifecycle) Pause(ctx context.Context, ownerID, goalID uuid.UUID) (*goal.Goal, error) {
	return l.transition(ctx, ownerID, goalID, "pause", (*goal.Goal).Pause)
}

// Resume reactivates a paused goal and shifts its deadline by the paused days
func (l *GoalLifecycle) Resume(ctx context.Context, ownerID, goalID uuid.UUID) (*goal.Goal, error) {
	return l.transition(ctx, ownerID, goalID, "resume", (*goal.Goal).Resume)
}

// Cancel ends the goal. Money already saved stays in the goal account.
func (l *GoalLifecycle) Cancel(ctx context.Context, ownerID, goalID uuid.UUID) (*goal.Goal, error) {
	return l.transition(ctx, ownerID, goalID, "cancel", (*goal.Goal).Cancel)
}

func (l *GoalLifecycle) transition(ctx context.Context, ownerID, goalID uuid.UUID, action string, apply func(*goal.Goal, time.Time) error) (*goal.Goal, error) {
	var updated *goal.Goal
	err := l.txManager.ExecuteTx(ctx, func(tx pgx.Tx) error {
		repo := l.goalRepo.WithTx(tx)

		g, err := repo.LockForUpdate(ctx, goalID)
		if err != nil {
			return err
		}
		if err := g.CheckOwner(ownerID); err != nil {
			l.logger.Warn("Goal transition by another owner",
				"security_event", true,
				"owner_id", ownerID.String(),
				"goal_id", goalID.String(),
				"action", action,
			)
			return err
		}

		from := g.Status
		if err := apply(g, l.clock.Now()); err != nil {
			return err
		}
		if err := repo.Update(ctx, g); err != nil {
			return err
		}

		l.logger.Info("Goal transitioned",
			"goal_id", g.ID.String(),
			"action", action,
			"from", string(from),
			"to", string(g.Status),
		)
		updated = g
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/personal-finance-ledger/internal/domain/goal"
	"github.com/personal-finance-ledger/internal/domain/shared"
	"github.com/personal-finance-ledger/internal/platform/persistence"
)

const goalColumns = `id, owner_id, name, target_amount, current_amount, status, source_account_id, account_id,
	deadline, paused_at, frequency, day_of_week, day_of_month, contribution_amount, next_contribution_date,
	milestones_reached, version, created_at, updated_at`

// GoalRepository implements the goal.Repository interface for PostgreSQL
type GoalRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewGoalRepository creates a new PostgreSQL goal repository
func NewGoalRepository(logger *slog.Logger, db *persistence.PostgresDB) goal.Repository {
	return &GoalRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx returns a repository bound to tx
func (r *GoalRepository) WithTx(tx pgx.Tx) goal.Repository {
	return &GoalRepository{
		querier: tx,
		logger:  r.logger,
	}
}

func scanGoal(row pgx.Row) (*goal.Goal, error) {
	var g goal.Goal
	err := row.Scan(
		&g.ID,
		&g.OwnerID,
		&g.Name,
		&g.TargetAmount,
		&g.CurrentAmount,
		&g.Status,
		&g.SourceAccountID,
		&g.AccountID,
		&g.Deadline,
		&g.PausedAt,
		&g.Frequency,
		&g.DayOfWeek,
		&g.DayOfMonth,
		&g.ContributionAmount,
		&g.NextContributionDate,
		&g.MilestonesReached,
		&g.Version,
		&g.CreatedAt,
		&g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if g.MilestonesReached == nil {
		g.MilestonesReached = []int{}
	}
	return &g, nil
}

// Create stores a new goal
func (r *GoalRepository) Create(ctx context.Context, g *goal.Goal) error {
	query := `
		INSERT INTO goals (` + goalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`

	milestones := g.MilestonesReached
	if milestones == nil {
		milestones = []int{}
	}

	_, err := r.querier.Exec(ctx, query,
		g.ID,
		g.OwnerID,
		g.Name,
		g.TargetAmount,
		g.CurrentAmount,
		g.Status,
		g.SourceAccountID,
		g.AccountID,
		g.Deadline,
		g.PausedAt,
		g.Frequency,
		g.DayOfWeek,
		g.DayOfMonth,
		g.ContributionAmount,
		g.NextContributionDate,
		milestones,
		g.Version,
		g.CreatedAt,
		g.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create goal", "owner_id", g.OwnerID.String(), "error", err)
		return shared.NewPersistenceError("create goal", err)
	}

	return nil
}

func (r *GoalRepository) getOne(ctx context.Context, op, query string, id uuid.UUID) (*goal.Goal, error) {
	g, err := scanGoal(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, goal.ErrGoalNotFound{GoalID: id}
		}
		r.logger.Error("Failed to "+op, "goal_id", id.String(), "error", err)
		return nil, shared.NewPersistenceError(op, err)
	}
	return g, nil
}

// GetByID retrieves a goal by its ID
func (r *GoalRepository) GetByID(ctx context.Context, id uuid.UUID) (*goal.Goal, error) {
	return r.getOne(ctx, "get goal", `SELECT `+goalColumns+` FROM goals WHERE id = $1`, id)
}

// LockForUpdate reads the goal holding its row lock
func (r *GoalRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*goal.Goal, error) {
	return r.getOne(ctx, "lock goal", `SELECT `+goalColumns+` FROM goals WHERE id = $1 FOR UPDATE`, id)
}

func (r *GoalRepository) list(ctx context.Context, op, query string, args ...any) ([]*goal.Goal, error) {
	rows, err := r.querier.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to "+op, "error", err)
		return nil, shared.NewPersistenceError(op, err)
	}
	defer rows.Close()

	goals := []*goal.Goal{}
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			r.logger.Error("Failed to scan goal", "error", err)
			return nil, shared.NewPersistenceError("scan goal", err)
		}
		goals = append(goals, g)
	}

	if err := rows.Err(); err != nil {
		return nil, shared.NewPersistenceError("iterate goals", err)
	}
	return goals, nil
}

// ListByOwner returns all goals of an owner, oldest first
func (r *GoalRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*goal.Goal, error) {
	query := `SELECT ` + goalColumns + `
		FROM goals
		WHERE owner_id = $1
		ORDER BY created_at ASC
	`
	return r.list(ctx, "list goals", query, ownerID)
}

// ListDue returns one keyset page of active scheduled goals due on or before day
func (r *GoalRepository) ListDue(ctx context.Context, day time.Time, after uuid.UUID, limit int) ([]*goal.Goal, error) {
	query := `SELECT ` + goalColumns + `
		FROM goals
		WHERE status = 'active' AND frequency <> 'none' AND contribution_amount > 0
			AND next_contribution_date <= $1 AND id > $2
		ORDER BY id ASC
		LIMIT $3
	`
	return r.list(ctx, "list due goals", query, day, after, limit)
}

// Update writes the mutable goal fields and bumps the version
func (r *GoalRepository) Update(ctx context.Context, g *goal.Goal) error {
	query := `
		UPDATE goals
		SET current_amount = $1, status = $2, account_id = $3, deadline = $4, paused_at = $5,
			next_contribution_date = $6, milestones_reached = $7, version = version + 1, updated_at = $8
		WHERE id = $9
	`

	result, err := r.querier.Exec(ctx, query,
		g.CurrentAmount,
		g.Status,
		g.AccountID,
		g.Deadline,
		g.PausedAt,
		g.NextContributionDate,
		g.MilestonesReached,
		g.UpdatedAt,
		g.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update goal",
			"goal_id", g.ID.String(),
			"status", string(g.Status),
			"error", err)
		return shared.NewPersistenceError("update goal", err)
	}

	if result.RowsAffected() == 0 {
		return goal.ErrGoalNotFound{GoalID: g.ID}
	}

	g.Version++
	return nil
}

// CreateContribution stores a contribution row
func (r *GoalRepository) CreateContribution(ctx context.Context, c *goal.Contribution) error {
	query := `
		INSERT INTO goal_contributions (id, goal_id, amount, source_account_id, transaction_id, date, notes, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.querier.Exec(ctx, query,
		c.ID,
		c.GoalID,
		c.Amount,
		c.SourceAccountID,
		c.TransactionID,
		c.Date,
		c.Notes,
		nullableString(c.IdempotencyKey),
		c.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create contribution",
			"goal_id", c.GoalID.String(),
			"transaction_id", c.TransactionID.String(),
			"error", err)
		return shared.NewPersistenceError("create contribution", err)
	}

	return nil
}

// GetContributionByIdempotencyKey returns the contribution recorded under key for the goal
func (r *GoalRepository) GetContributionByIdempotencyKey(ctx context.Context, goalID uuid.UUID, key string) (*goal.Contribution, error) {
	if key == "" {
		return nil, nil
	}

	query := `
		SELECT id, goal_id, amount, source_account_id, transaction_id, date, notes, idempotency_key, created_at
		FROM goal_contributions
		WHERE goal_id = $1 AND idempotency_key = $2
	`

	var (
		c         goal.Contribution
		storedKey *string
	)
	err := r.querier.QueryRow(ctx, query, goalID, key).Scan(
		&c.ID,
		&c.GoalID,
		&c.Amount,
		&c.SourceAccountID,
		&c.TransactionID,
		&c.Date,
		&c.Notes,
		&storedKey,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get contribution by idempotency key",
			"goal_id", goalID.String(),
			"idempotency_key", key,
			"error", err)
		return nil, shared.NewPersistenceError("get contribution", err)
	}
	if storedKey != nil {
		c.IdempotencyKey = *storedKey
	}

	return &c, nil
}

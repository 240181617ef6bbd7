package goal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/personal-finance-ledger/internal/domain/shared"
)

// Repository defines goal and contribution persistence operations
type Repository interface {
	Create(ctx context.Context, goal *Goal) error
	GetByID(ctx context.Context, id uuid.UUID) (*Goal, error)

	// LockForUpdate loads the goal and holds its row lock until the database
	// transaction ends
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Goal, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*Goal, error)

	// ListDue returns up to limit active scheduled goals whose next contribution
	// date is on or before day, ordered by id and starting after the given id.
	// uuid.Nil starts from the first goal.
	ListDue(ctx context.Context, day time.Time, after uuid.UUID, limit int) ([]*Goal, error)

	// Update writes the mutable fields and bumps the version
	Update(ctx context.Context, goal *Goal) error

	CreateContribution(ctx context.Context, c *Contribution) error

	// GetContributionByIdempotencyKey returns nil, nil when no contribution carries the key
	GetContributionByIdempotencyKey(ctx context.Context, goalID uuid.UUID, key string) (*Contribution, error)
	WithTx(tx pgx.Tx) Repository
}

// ErrGoalNotFound indicates missing goal
type ErrGoalNotFound struct {
	GoalID uuid.UUID
}

func (e ErrGoalNotFound) Error() string {
	return "goal not found: " + e.GoalID.String()
}

func (e ErrGoalNotFound) Kind() shared.ErrorKind { return shared.KindNotFound }

// Is implements the errors.Is interface for ErrGoalNotFound
func (e ErrGoalNotFound) Is(target error) bool {
	t, ok := target.(ErrGoalNotFound)
	if !ok {
		return false
	}
	if t.GoalID == uuid.Nil {
		return true
	}
	return e.GoalID == t.GoalID
}

// ErrNoSourceAccount is returned when a contribution names no source and the
// goal has no default
type ErrNoSourceAccount struct {
	GoalID uuid.UUID
}

func (e ErrNoSourceAccount) Error() string {
	return "no source account for goal " + e.GoalID.String()
}

func (e ErrNoSourceAccount) Kind() shared.ErrorKind { return shared.KindValidation }

// ErrInvalidGoalTransition rejects a move the goal state machine does not allow
type ErrInvalidGoalTransition struct {
	GoalID uuid.UUID
	From   Status
	To     Status
}

func (e ErrInvalidGoalTransition) Error() string {
	return fmt.Sprintf("goal %s cannot move from %s to %s", e.GoalID, e.From, e.To)
}

func (e ErrInvalidGoalTransition) Kind() shared.ErrorKind { return shared.KindValidation }

// ErrGoalNotActive rejects contributions to paused or finished goals
type ErrGoalNotActive struct {
	GoalID uuid.UUID
	Status Status
}

func (e ErrGoalNotActive) Error() string {
	return fmt.Sprintf("goal %s is %s", e.GoalID, e.Status)
}

func (e ErrGoalNotActive) Kind() shared.ErrorKind { return shared.KindValidation }

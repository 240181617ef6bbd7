package goal

import (
	"time"

	"github.com/google/uuid"
	"github.com/personal-finance-ledger/internal/domain/shared"
)

// ScheduledContribution is the command emitted for a goal whose scheduled
// contribution date has come
type ScheduledContribution struct {
	GoalID         uuid.UUID `json:"goal_id"`
	OwnerID        uuid.UUID `json:"owner_id"`
	Amount         int64     `json:"amount"` // cents
	DueDate        time.Time `json:"due_date"`
	IdempotencyKey string    `json:"idempotency_key"`
	CorrelationID  string    `json:"correlation_id"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewScheduledContribution builds the command for g due on day. The key is
// stable per goal and day, so re-emitting the same schedule never contributes
// twice.
func NewScheduledContribution(g *Goal, day time.Time, now time.Time) ScheduledContribution {
	due := shared.DateOf(day)
	return ScheduledContribution{
		GoalID:         g.ID,
		OwnerID:        g.OwnerID,
		Amount:         g.ContributionAmount,
		DueDate:        due,
		IdempotencyKey: "schedule:" + g.ID.String() + ":" + due.Format(time.DateOnly),
		CorrelationID:  uuid.NewString(),
		Timestamp:      now,
	}
}

func (c ScheduledContribution) Validate() error {
	switch {
	case c.GoalID == uuid.Nil:
		return shared.ValidationError{Field: "goal_id", Reason: "is required"}
	case c.OwnerID == uuid.Nil:
		return shared.ValidationError{Field: "owner_id", Reason: "is required"}
	case c.Amount <= 0:
		return shared.ValidationError{Field: "amount", Reason: "must be positive"}
	case c.IdempotencyKey == "":
		return shared.ValidationError{Field: "idempotency_key", Reason: "is required"}
	}
	return nil
}

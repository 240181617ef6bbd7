package goal

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/personal-finance-ledger/internal/domain/shared"
)

// Status is a goal lifecycle state
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no further transition is possible
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Frequency controls scheduled contributions
type Frequency string

const (
	FrequencyNone     Frequency = "none"
	FrequencyDaily    Frequency = "daily"
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiweekly Frequency = "biweekly"
	FrequencyMonthly  Frequency = "monthly"
)

// ParseFrequency validates a raw frequency. Empty means none.
func ParseFrequency(raw string) (Frequency, error) {
	f := Frequency(strings.ToLower(strings.TrimSpace(raw)))
	switch f {
	case "":
		return FrequencyNone, nil
	case FrequencyNone, FrequencyDaily, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly:
		return f, nil
	}
	return "", shared.ValidationError{Field: "frequency", Reason: fmt.Sprintf("unknown frequency %q", raw)}
}

// Milestones are the progress percentages recorded once when first reached
var Milestones = []int{10, 25, 40, 60, 75, 90}

// Goal is a savings target backed by a dedicated asset account whose balance
// mirrors CurrentAmount
type Goal struct {
	ID                   uuid.UUID  `json:"id"`
	OwnerID              uuid.UUID  `json:"owner_id"`
	Name                 string     `json:"name"`
	TargetAmount         int64      `json:"target_amount"`
	CurrentAmount        int64      `json:"current_amount"`
	Status               Status     `json:"status"`
	SourceAccountID      *uuid.UUID `json:"source_account_id,omitempty"`
	AccountID            *uuid.UUID `json:"account_id,omitempty"`
	Deadline             *time.Time `json:"deadline,omitempty"`
	PausedAt             *time.Time `json:"paused_at,omitempty"`
	Frequency            Frequency  `json:"frequency"`
	DayOfWeek            *int       `json:"day_of_week,omitempty"`
	DayOfMonth           *int       `json:"day_of_month,omitempty"`
	ContributionAmount   int64      `json:"contribution_amount"`
	NextContributionDate *time.Time `json:"next_contribution_date,omitempty"`
	MilestonesReached    []int      `json:"milestones_reached"`
	Version              int        `json:"version"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// Params holds the user-supplied fields of a new goal
type Params struct {
	Name               string
	TargetAmount       int64
	SourceAccountID    *uuid.UUID
	Deadline           *time.Time
	Frequency          Frequency
	DayOfWeek          *int
	DayOfMonth         *int
	ContributionAmount int64
}

// NewGoal validates params and builds an active goal with no progress
func NewGoal(ownerID uuid.UUID, p Params, now time.Time) (*Goal, error) {
	if ownerID == uuid.Nil {
		return nil, shared.ValidationError{Field: "owner id", Reason: "is required"}
	}
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return nil, shared.ValidationError{Field: "name", Reason: "is required"}
	}
	if p.TargetAmount <= 0 {
		return nil, shared.ValidationError{Field: "target amount", Reason: "must be positive"}
	}
	if p.ContributionAmount < 0 {
		return nil, shared.ValidationError{Field: "contribution amount", Reason: "must not be negative"}
	}
	if p.DayOfWeek != nil && (*p.DayOfWeek < 0 || *p.DayOfWeek > 6) {
		return nil, shared.ValidationError{Field: "day of week", Reason: "must be between 0 (Sunday) and 6"}
	}
	if p.DayOfMonth != nil && (*p.DayOfMonth < 1 || *p.DayOfMonth > 31) {
		return nil, shared.ValidationError{Field: "day of month", Reason: "must be between 1 and 31"}
	}
	freq := p.Frequency
	if freq == "" {
		freq = FrequencyNone
	}
	if freq != FrequencyNone && p.ContributionAmount == 0 {
		return nil, shared.ValidationError{Field: "contribution amount", Reason: "is required for scheduled goals"}
	}
	if freq != FrequencyNone && p.SourceAccountID == nil {
		return nil, shared.ValidationError{Field: "source account", Reason: "is required for scheduled goals"}
	}

	g := &Goal{
		ID:                 uuid.New(),
		OwnerID:            ownerID,
		Name:               name,
		TargetAmount:       p.TargetAmount,
		Status:             StatusActive,
		SourceAccountID:    p.SourceAccountID,
		Deadline:           p.Deadline,
		Frequency:          freq,
		DayOfWeek:          p.DayOfWeek,
		DayOfMonth:         p.DayOfMonth,
		ContributionAmount: p.ContributionAmount,
		MilestonesReached:  []int{},
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	g.NextContributionDate = NextContributionDate(freq, p.DayOfWeek, p.DayOfMonth, now)
	return g, nil
}

// CheckOwner fails with ErrUnauthorized when the goal belongs to someone else
func (g *Goal) CheckOwner(ownerID uuid.UUID) error {
	if g.OwnerID != ownerID {
		return shared.ErrUnauthorized{Resource: "goal", ResourceID: g.ID, OwnerID: ownerID}
	}
	return nil
}

// HasMilestone reports whether threshold is already recorded
func (g *Goal) HasMilestone(threshold int) bool {
	return slices.Contains(g.MilestonesReached, threshold)
}

// ProgressPercent is the whole-percent progress towards the target
func (g *Goal) ProgressPercent() int64 {
	if g.TargetAmount <= 0 {
		return 0
	}
	return g.CurrentAmount * 100 / g.TargetAmount
}

// NewMilestones returns the thresholds reached at newAmount that are not yet
// recorded, in ascending order
func NewMilestones(newAmount, target int64, recorded []int) []int {
	var out []int
	for _, t := range Milestones {
		if newAmount*100 >= int64(t)*target && !slices.Contains(recorded, t) {
			out = append(out, t)
		}
	}
	return out
}

// Outcome is the goal-side effect of one contribution
type Outcome struct {
	NewMilestones []int
	Completed     bool
}

// ApplyContribution adds amount to the goal's progress, records new milestones,
// completes the goal when the target is reached, and advances the schedule
func (g *Goal) ApplyContribution(amount int64, now time.Time) (Outcome, error) {
	if g.Status != StatusActive {
		return Outcome{}, ErrGoalNotActive{GoalID: g.ID, Status: g.Status}
	}
	if amount <= 0 {
		return Outcome{}, shared.ValidationError{Field: "amount", Reason: "must be positive"}
	}

	g.CurrentAmount += amount
	out := Outcome{NewMilestones: NewMilestones(g.CurrentAmount, g.TargetAmount, g.MilestonesReached)}
	g.MilestonesReached = append(g.MilestonesReached, out.NewMilestones...)
	slices.Sort(g.MilestonesReached)

	if g.CurrentAmount >= g.TargetAmount {
		g.Status = StatusCompleted
		g.NextContributionDate = nil
		out.Completed = true
	} else {
		g.NextContributionDate = NextContributionDate(g.Frequency, g.DayOfWeek, g.DayOfMonth, now)
	}
	g.UpdatedAt = now
	return out, nil
}

// Contribution records one contribution and the transaction that carried it
type Contribution struct {
	ID              uuid.UUID `json:"id"`
	GoalID          uuid.UUID `json:"goal_id"`
	Amount          int64     `json:"amount"`
	SourceAccountID uuid.UUID `json:"source_account_id"`
	TransactionID   uuid.UUID `json:"transaction_id"`
	Date            time.Time `json:"date"`
	Notes           string    `json:"notes,omitempty"`
	IdempotencyKey  string    `json:"idempotency_key,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// NewContribution builds the contribution row for a committed transaction
func NewContribution(goalID, sourceAccountID, transactionID uuid.UUID, amount int64, notes, idempotencyKey string, now time.Time) *Contribution {
	return &Contribution{
		ID:              uuid.New(),
		GoalID:          goalID,
		Amount:          amount,
		SourceAccountID: sourceAccountID,
		TransactionID:   transactionID,
		Date:            shared.DateOf(now),
		Notes:           notes,
		IdempotencyKey:  idempotencyKey,
		CreatedAt:       now,
	}
}

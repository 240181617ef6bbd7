package outbox

import (
	"time"

	"github.com/google/uuid"
	"github.com/personal-finance-ledger/internal/domain/ledger"
)

// EventType names the post-commit events fanned out from the outbox
type EventType string

const (
	EventTransactionCommitted EventType = "transaction.committed"
	EventContributionRecorded EventType = "goal.contribution_recorded"
	EventGoalMilestoneReached EventType = "goal.milestone_reached"
	EventGoalCompleted        EventType = "goal.completed"
)

// TransactionCommitted describes a committed ledger transaction
type TransactionCommitted struct {
	Transaction   *ledger.Transaction `json:"transaction"`
	Display       string              `json:"display"`
	CorrelationID string              `json:"correlation_id,omitempty"`
}

// ContributionRecorded describes a goal contribution
type ContributionRecorded struct {
	GoalID         uuid.UUID `json:"goal_id"`
	ContributionID uuid.UUID `json:"contribution_id"`
	TransactionID  uuid.UUID `json:"transaction_id"`
	Amount         int64     `json:"amount"`
	Display        string    `json:"display"`
	CurrentAmount  int64     `json:"current_amount"`
	TargetAmount   int64     `json:"target_amount"`
	Date           time.Time `json:"date"`
	CorrelationID  string    `json:"correlation_id,omitempty"`
}

// MilestoneReached is emitted once per newly recorded milestone
type MilestoneReached struct {
	GoalID        uuid.UUID `json:"goal_id"`
	GoalName      string    `json:"goal_name"`
	Milestone     int       `json:"milestone"`
	CurrentAmount int64     `json:"current_amount"`
	TargetAmount  int64     `json:"target_amount"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// GoalCompleted is emitted when a goal reaches its target
type GoalCompleted struct {
	GoalID        uuid.UUID `json:"goal_id"`
	GoalName      string    `json:"goal_name"`
	FinalAmount   int64     `json:"final_amount"`
	TargetAmount  int64     `json:"target_amount"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// Notification is the envelope published to the notification topic
type Notification struct {
	MessageID     int64     `json:"message_id"`
	EventType     EventType `json:"event_type"`
	OwnerID       uuid.UUID `json:"owner_id"`
	TransactionID uuid.UUID `json:"transaction_id"`
	Payload       []byte    `json:"payload"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewNotification wraps a message for publishing
func NewNotification(m *Message) Notification {
	return Notification{
		MessageID:     m.ID,
		EventType:     m.EventType,
		OwnerID:       m.OwnerID,
		TransactionID: m.TransactionID,
		Payload:       m.Payload,
		CreatedAt:     m.CreatedAt,
	}
}

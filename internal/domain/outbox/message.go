package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/personal-finance-ledger/internal/domain/shared"
)

// Message stores a post-commit event for reliable publishing. It is written in
// the same database transaction as the change it describes.
type Message struct {
	ID            int64               `json:"id"`
	TransactionID uuid.UUID           `json:"transaction_id"`
	OwnerID       uuid.UUID           `json:"owner_id"`
	EventType     EventType           `json:"event_type"`
	Payload       json.RawMessage     `json:"payload"`
	Status        shared.OutboxStatus `json:"status"`
	Attempts      int                 `json:"attempts"`
	CreatedAt     time.Time           `json:"created_at"`
	LastAttemptAt *time.Time          `json:"last_attempt_at,omitempty"`
}

// NewMessage marshals payload into a pending message
func NewMessage(eventType EventType, transactionID, ownerID uuid.UUID, payload any, now time.Time) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Message{
		TransactionID: transactionID,
		OwnerID:       ownerID,
		EventType:     eventType,
		Payload:       raw,
		Status:        shared.OutboxStatusPending,
		Attempts:      0,
		CreatedAt:     now,
	}, nil
}

func (m *Message) IncrementAttempts(now time.Time) {
	m.Attempts++
	m.LastAttemptAt = &now
}

func (m *Message) MarkAsProcessed(now time.Time) {
	m.Status = shared.OutboxStatusProcessed
	m.LastAttemptAt = &now
}

func (m *Message) MarkAsFailed(now time.Time) {
	m.Status = shared.OutboxStatusFailedToPublish
	m.LastAttemptAt = &now
}

// DecodePayload unmarshals the payload into out
func (m *Message) DecodePayload(out any) error {
	return json.Unmarshal(m.Payload, out)
}

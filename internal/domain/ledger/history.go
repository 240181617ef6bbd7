package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// HistoryLine is a denormalised entry in the history read model
type HistoryLine struct {
	AccountID uuid.UUID `json:"account_id" bson:"account_id"`
	Kind      EntryKind `json:"kind" bson:"kind"`
	Amount    int64     `json:"amount" bson:"amount"`
}

// HistoryRecord is the read-model projection of a committed transaction, fed from
// the outbox after commit. It never participates in balance computation.
type HistoryRecord struct {
	TransactionID uuid.UUID     `json:"transaction_id" bson:"_id"`
	OwnerID       uuid.UUID     `json:"owner_id" bson:"owner_id"`
	Date          time.Time     `json:"date" bson:"date"`
	Description   string        `json:"description" bson:"description"`
	Category      string        `json:"category,omitempty" bson:"category,omitempty"`
	SignedTotal   int64         `json:"signed_total" bson:"signed_total"`
	Display       string        `json:"display" bson:"display"`
	ReversalOf    *uuid.UUID    `json:"reversal_of,omitempty" bson:"reversal_of,omitempty"`
	CorrelationID string        `json:"correlation_id,omitempty" bson:"correlation_id,omitempty"`
	Lines         []HistoryLine `json:"lines" bson:"lines"`
	RecordedAt    time.Time     `json:"recorded_at" bson:"recorded_at"`
}

// HistoryRepository stores the transaction history read model
type HistoryRepository interface {
	// Upsert replaces the record for its transaction, so replays are harmless
	Upsert(ctx context.Context, record *HistoryRecord) error
	ListByOwner(ctx context.Context, ownerID uuid.UUID, from, to time.Time, limit, offset int) ([]*HistoryRecord, error)
	CountByOwner(ctx context.Context, ownerID uuid.UUID, from, to time.Time) (int64, error)
}

// NewHistoryRecord projects a committed transaction into the read model
func NewHistoryRecord(tx *Transaction, display, correlationID string, now time.Time) *HistoryRecord {
	lines := make([]HistoryLine, 0, len(tx.Entries))
	for _, e := range tx.Entries {
		lines = append(lines, HistoryLine{AccountID: e.AccountID, Kind: e.Kind, Amount: e.Amount})
	}
	return &HistoryRecord{
		TransactionID: tx.ID,
		OwnerID:       tx.OwnerID,
		Date:          tx.Date,
		Description:   tx.Description,
		Category:      tx.Category,
		SignedTotal:   tx.SignedTotal,
		Display:       display,
		ReversalOf:    tx.ReversalOf,
		CorrelationID: correlationID,
		Lines:         lines,
		RecordedAt:    now,
	}
}

package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/personal-finance-ledger/internal/domain/shared"
)

// EntryKind is the side of a double-entry line item
type EntryKind string

const (
	Debit  EntryKind = "debit"
	Credit EntryKind = "credit"
)

// ParseEntryKind validates a raw entry kind
func ParseEntryKind(raw string) (EntryKind, error) {
	switch k := EntryKind(strings.ToLower(strings.TrimSpace(raw))); k {
	case Debit, Credit:
		return k, nil
	}
	return "", shared.ValidationError{Field: "entry kind", Reason: fmt.Sprintf("unknown kind %q", raw)}
}

// Opposite returns the kind that undoes this one
func (k EntryKind) Opposite() EntryKind {
	if k == Debit {
		return Credit
	}
	return Debit
}

// Entry is one line item of a transaction. Amount is unsigned, in cents.
type Entry struct {
	ID            uuid.UUID `json:"id"`
	TransactionID uuid.UUID `json:"transaction_id"`
	AccountID     uuid.UUID `json:"account_id"`
	Kind          EntryKind `json:"kind"`
	Amount        int64     `json:"amount"`
	Position      int       `json:"position"`
}

// Location is optional place metadata attached to a transaction
type Location struct {
	Name      string   `json:"name,omitempty"`
	Latitude  *float64 `json:"lat,omitempty"`
	Longitude *float64 `json:"lng,omitempty"`
}

// Meta carries the descriptive fields of a transaction request
type Meta struct {
	Date           time.Time
	Description    string
	Category       string
	Notes          string
	Location       *Location
	IdempotencyKey string
	CorrelationID  string
	ReversalOf     *uuid.UUID
	// GoalTransfer is set by goal contributions, the only commits allowed to
	// post to goal accounts
	GoalTransfer bool
}

// Transaction is one real-world money event. It is immutable once committed;
// corrections are recorded as a compensating reversal.
type Transaction struct {
	ID             uuid.UUID  `json:"id"`
	OwnerID        uuid.UUID  `json:"owner_id"`
	Date           time.Time  `json:"date"`
	Description    string     `json:"description"`
	Category       string     `json:"category,omitempty"`
	SignedTotal    int64      `json:"signed_total"`
	Notes          string     `json:"notes,omitempty"`
	Location       *Location  `json:"location,omitempty"`
	IdempotencyKey string     `json:"idempotency_key,omitempty"`
	ReversalOf     *uuid.UUID `json:"reversal_of,omitempty"`
	ReversedBy     *uuid.UUID `json:"reversed_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	Entries        []Entry    `json:"entries"`
}

// NewTransaction stamps ids on the transaction and its entries. A zero meta date
// defaults to the calendar day of now.
func NewTransaction(ownerID uuid.UUID, meta Meta, entries []Entry, now time.Time) *Transaction {
	date := meta.Date
	if date.IsZero() {
		date = now
	}

	tx := &Transaction{
		ID:             uuid.New(),
		OwnerID:        ownerID,
		Date:           shared.DateOf(date),
		Description:    meta.Description,
		Category:       meta.Category,
		Notes:          meta.Notes,
		Location:       meta.Location,
		IdempotencyKey: meta.IdempotencyKey,
		ReversalOf:     meta.ReversalOf,
		CreatedAt:      now,
		Entries:        make([]Entry, len(entries)),
	}
	for i, e := range entries {
		tx.Entries[i] = Entry{
			ID:            uuid.New(),
			TransactionID: tx.ID,
			AccountID:     e.AccountID,
			Kind:          e.Kind,
			Amount:        e.Amount,
			Position:      i,
		}
	}
	return tx
}

// IsReversed reports whether a compensating transaction has been recorded
func (t *Transaction) IsReversed() bool {
	return t.ReversedBy != nil
}

// CheckOwner fails with ErrUnauthorized when the transaction belongs to someone else
func (t *Transaction) CheckOwner(ownerID uuid.UUID) error {
	if t.OwnerID != ownerID {
		return shared.ErrUnauthorized{Resource: "transaction", ResourceID: t.ID, OwnerID: ownerID}
	}
	return nil
}

// ReversalEntries mirrors entries with every kind flipped
func ReversalEntries(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = Entry{AccountID: e.AccountID, Kind: e.Kind.Opposite(), Amount: e.Amount}
	}
	return out
}

// Sums returns the debit and credit totals of entries. A total that overflows
// int64 is a ValidationError.
func Sums(entries []Entry) (debits, credits int64, err error) {
	for _, e := range entries {
		switch e.Kind {
		case Debit:
			debits, err = shared.AddCents(debits, e.Amount)
		case Credit:
			credits, err = shared.AddCents(credits, e.Amount)
		}
		if err != nil {
			return 0, 0, shared.ValidationError{Field: "entries", Reason: "debit or credit total out of range"}
		}
	}
	return debits, credits, nil
}

// AccountIDs lists the distinct accounts referenced by entries in first-seen order
func AccountIDs(entries []Entry) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(entries))
	ids := make([]uuid.UUID, 0, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.AccountID]; ok {
			continue
		}
		seen[e.AccountID] = struct{}{}
		ids = append(ids, e.AccountID)
	}
	return ids
}

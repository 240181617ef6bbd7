package components

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/personal-finance-ledger/internal/domain/account"
	"github.com/personal-finance-ledger/internal/domain/ledger"
	"github.com/personal-finance-ledger/internal/domain/shared"
	"github.com/personal-finance-ledger/internal/ledger_core/service"
)

// Project returns the signed balance change an entry causes on an account of the
// given type. Debits raise asset, expense and liability balances; credits raise
// income. Liability balances are therefore stored as negative debt.
func Project(accountType account.Type, kind ledger.EntryKind, amount int64) (int64, error) {
	var sign int64
	switch accountType {
	case account.TypeAsset, account.TypeExpense, account.TypeLiability:
		sign = 1
	case account.TypeIncome:
		sign = -1
	default:
		return 0, fmt.Errorf("cannot project entry onto account type %q", accountType)
	}

	switch kind {
	case ledger.Debit:
		return sign * amount, nil
	case ledger.Credit:
		return -sign * amount, nil
	}
	return 0, fmt.Errorf("cannot project entry kind %q", kind)
}

// DeltaAccumulator sums deltas per account for one commit, remembering the order
// accounts were first seen so balance updates run in a stable order
type DeltaAccumulator struct {
	order  []uuid.UUID
	deltas map[uuid.UUID]int64
}

func NewDeltaAccumulator() *DeltaAccumulator {
	return &DeltaAccumulator{deltas: make(map[uuid.UUID]int64)}
}

// Add merges delta into the account's running total. A total leaving the int64
// range is rejected and leaves the accumulator unchanged.
func (a *DeltaAccumulator) Add(accountID uuid.UUID, delta int64) error {
	total, err := shared.AddCents(a.deltas[accountID], delta)
	if err != nil {
		return err
	}
	if _, ok := a.deltas[accountID]; !ok {
		a.order = append(a.order, accountID)
	}
	a.deltas[accountID] = total
	return nil
}

// Deltas lists the accumulated totals in first-seen order
func (a *DeltaAccumulator) Deltas() []service.AccountDelta {
	out := make([]service.AccountDelta, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, service.AccountDelta{AccountID: id, Delta: a.deltas[id]})
	}
	return out
}

// BalanceProjectorImpl implements the BalanceProjector interface
type BalanceProjectorImpl struct{}

func NewBalanceProjector() service.BalanceProjector {
	return BalanceProjectorImpl{}
}

// ProjectEntries accumulates the per-account deltas of entries and the
// transaction's net-worth impact. Every entry's account must be in accounts.
func (BalanceProjectorImpl) ProjectEntries(accounts map[uuid.UUID]*account.Account, entries []ledger.Entry) (*service.Projection, error) {
	acc := NewDeltaAccumulator()
	var signedTotal int64

	for _, e := range entries {
		a, ok := accounts[e.AccountID]
		if !ok {
			return nil, account.ErrAccountNotFound{AccountID: e.AccountID}
		}
		delta, err := Project(a.Type, e.Kind, e.Amount)
		if err != nil {
			return nil, err
		}
		if err := acc.Add(a.ID, delta); err != nil {
			return nil, err
		}
		if a.Type.IsBalanceSheet() {
			if signedTotal, err = shared.AddCents(signedTotal, delta); err != nil {
				return nil, err
			}
		}
	}

	return &service.Projection{Deltas: acc.Deltas(), SignedTotal: signedTotal}, nil
}

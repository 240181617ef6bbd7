package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/personal-finance-ledger/internal/domain/account"
	"github.com/personal-finance-ledger/internal/domain/ledger"
	"github.com/personal-finance-ledger/internal/domain/outbox"
	"github.com/personal-finance-ledger/internal/domain/shared"
	"github.com/personal-finance-ledger/internal/ledger_core/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrchestrator_QuickDealExpense(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	owner := uuid.New()
	checking := f.store.SeedAccount(owner, account.CategoryChecking, 10000)

	tx, err := f.core.Orchestrator.QuickDeal(ctx, owner, service.QuickDealRequest{
		Type:          service.DealExpense,
		Amount:        450,
		Category:      account.CategoryFood,
		AccountID:     checking.ID,
		Description:   "Coffee",
		CorrelationID: "corr-1",
	})

	require.NoError(t, err)
	assert.Equal(t, int64(9550), f.store.Balance(checking.ID))
	assert.Equal(t, int64(-450), tx.SignedTotal)
	assert.Equal(t, "Coffee", tx.Description)
	assert.Equal(t, "food", tx.Category)
	assert.Equal(t, shared.DateOf(fixedNow), tx.Date)

	food, err := f.core.Registry.ResolveOrCreate(ctx, nil, owner, account.TypeExpense, account.CategoryFood)
	require.NoError(t, err)
	assert.Equal(t, int64(450), f.store.Balance(food.ID))

	require.Len(t, tx.Entries, 2)
	assert.Equal(t, ledger.Entry{ID: tx.Entries[0].ID, TransactionID: tx.ID, AccountID: food.ID, Kind: ledger.Debit, Amount: 450, Position: 0}, tx.Entries[0])
	assert.Equal(t, checking.ID, tx.Entries[1].AccountID)
	assert.Equal(t, ledger.Credit, tx.Entries[1].Kind)

	messages := f.store.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, outbox.EventTransactionCommitted, messages[0].EventType)
	var event outbox.TransactionCommitted
	require.NoError(t, messages[0].DecodePayload(&event))
	assert.Equal(t, "-$4.50", event.Display)
	assert.Equal(t, "corr-1", event.CorrelationID)
	assert.Equal(t, 1, f.metrics.commits["quick_deal/true"])
}

func TestOrchestrator_QuickDealIncome(t *testing.T) {
	f := newFixture()
	owner := uuid.New()
	checking := f.store.SeedAccount(owner, account.CategoryChecking, 0)

	tx, err := f.core.Orchestrator.QuickDeal(context.Background(), owner, service.QuickDealRequest{
		Type:      service.DealIncome,
		Amount:    250000,
		Category:  account.CategorySalary,
		AccountID: checking.ID,
	})

	require.NoError(t, err)
	assert.Equal(t, "Salary", tx.Description)
	assert.Equal(t, int64(250000), tx.SignedTotal)
	assert.Equal(t, int64(250000), f.store.Balance(checking.ID))
	assert.Equal(t, ledger.Debit, tx.Entries[0].Kind)
	assert.Equal(t, checking.ID, tx.Entries[0].AccountID)
}

func TestOrchestrator_QuickDealRejections(t *testing.T) {
	owner := uuid.New()

	tests := []struct {
		name       string
		req        func(f *fixture) service.QuickDealRequest
		expectKind shared.ErrorKind
	}{
		{
			name: "income category on expense deal",
			req: func(f *fixture) service.QuickDealRequest {
				acc := f.store.SeedAccount(owner, account.CategoryChecking, 100)
				return service.QuickDealRequest{Type: service.DealExpense, Amount: 1, Category: account.CategorySalary, AccountID: acc.ID}
			},
			expectKind: shared.KindValidation,
		},
		{
			name: "zero amount",
			req: func(f *fixture) service.QuickDealRequest {
				acc := f.store.SeedAccount(owner, account.CategoryChecking, 100)
				return service.QuickDealRequest{Type: service.DealExpense, Category: account.CategoryFood, AccountID: acc.ID}
			},
			expectKind: shared.KindValidation,
		},
		{
			name: "unknown deal type",
			req: func(f *fixture) service.QuickDealRequest {
				acc := f.store.SeedAccount(owner, account.CategoryChecking, 100)
				return service.QuickDealRequest{Type: "transfer", Amount: 1, Category: account.CategoryFood, AccountID: acc.ID}
			},
			expectKind: shared.KindValidation,
		},
		{
			name: "cash account of another owner",
			req: func(f *fixture) service.QuickDealRequest {
				acc := f.store.SeedAccount(uuid.New(), account.CategoryChecking, 100)
				return service.QuickDealRequest{Type: service.DealExpense, Amount: 1, Category: account.CategoryFood, AccountID: acc.ID}
			},
			expectKind: shared.KindAuthorization,
		},
		{
			name: "cash account is an expense account",
			req: func(f *fixture) service.QuickDealRequest {
				acc := f.store.SeedAccount(owner, account.CategoryTravel, 0)
				return service.QuickDealRequest{Type: service.DealExpense, Amount: 1, Category: account.CategoryFood, AccountID: acc.ID}
			},
			expectKind: shared.KindValidation,
		},
		{
			name: "missing cash account",
			req: func(f *fixture) service.QuickDealRequest {
				return service.QuickDealRequest{Type: service.DealExpense, Amount: 1, Category: account.CategoryFood, AccountID: uuid.New()}
			},
			expectKind: shared.KindNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			req := tt.req(f)
			accountsBefore := f.store.AccountCount()

			_, err := f.core.Orchestrator.QuickDeal(context.Background(), owner, req)

			assert.Equal(t, tt.expectKind, shared.KindOf(err))
			assert.Equal(t, accountsBefore, f.store.AccountCount())
			assert.Zero(t, f.store.TransactionCount())
			assert.Empty(t, f.store.Messages())
		})
	}
}

func TestOrchestrator_LiabilityPayment(t *testing.T) {
	f := newFixture()
	owner := uuid.New()
	checking := f.store.SeedAccount(owner, account.CategoryChecking, 500000)
	card := f.store.SeedAccount(owner, account.CategoryCreditCard, -100000)

	tx, err := f.core.Orchestrator.CommitTransaction(context.Background(), owner,
		ledger.Meta{Description: "Card payment"},
		[]ledger.Entry{
			{AccountID: card.ID, Kind: ledger.Debit, Amount: 10000},
			{AccountID: checking.ID, Kind: ledger.Credit, Amount: 10000},
		})

	require.NoError(t, err)
	assert.Equal(t, int64(-90000), f.store.Balance(card.ID))
	assert.Equal(t, int64(490000), f.store.Balance(checking.ID))
	assert.Zero(t, tx.SignedTotal)
}

func TestOrchestrator_UnbalancedRejected(t *testing.T) {
	f := newFixture()
	owner := uuid.New()
	checking := f.store.SeedAccount(owner, account.CategoryChecking, 10000)
	food := f.store.SeedAccount(owner, account.CategoryFood, 0)
	travel := f.store.SeedAccount(owner, account.CategoryTravel, 0)

	_, err := f.core.Orchestrator.CommitTransaction(context.Background(), owner, ledger.Meta{Description: "Split"},
		[]ledger.Entry{
			{AccountID: checking.ID, Kind: ledger.Credit, Amount: 5000},
			{AccountID: food.ID, Kind: ledger.Debit, Amount: 3000},
			{AccountID: travel.ID, Kind: ledger.Debit, Amount: 1900},
		})

	assert.ErrorAs(t, err, &ledger.ErrUnbalancedTransaction{})
	assert.Zero(t, f.store.TransactionCount())
	assert.Zero(t, f.store.EntryCount())
	assert.Equal(t, int64(10000), f.store.Balance(checking.ID))
	assert.Equal(t, 1, f.metrics.commits["transaction/false"])
}

func TestOrchestrator_ForeignAccountRejected(t *testing.T) {
	f := newFixture()
	owner := uuid.New()
	mine := f.store.SeedAccount(owner, account.CategoryChecking, 10000)
	theirs := f.store.SeedAccount(uuid.New(), account.CategoryChecking, 10000)

	_, err := f.core.Orchestrator.CommitTransaction(context.Background(), owner, ledger.Meta{},
		[]ledger.Entry{
			{AccountID: theirs.ID, Kind: ledger.Debit, Amount: 100},
			{AccountID: mine.ID, Kind: ledger.Credit, Amount: 100},
		})

	assert.ErrorIs(t, err, shared.ErrUnauthorized{})
	assert.Equal(t, int64(10000), f.store.Balance(theirs.ID))
	assert.Zero(t, f.store.TransactionCount())
}

func TestOrchestrator_AtomicityUnderFault(t *testing.T) {
	tests := []struct {
		name   string
		inject func(f *fixture)
	}{
		{"balance update fails", func(f *fixture) { f.store.FailUpdateBalance = errors.New("injected fault") }},
		{"outbox insert fails", func(f *fixture) { f.store.FailOutbox = errors.New("injected fault") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			owner := uuid.New()
			checking := f.store.SeedAccount(owner, account.CategoryChecking, 10000)
			accountsBefore := f.store.AccountCount()
			tt.inject(f)

			_, err := f.core.Orchestrator.QuickDeal(context.Background(), owner, service.QuickDealRequest{
				Type:      service.DealExpense,
				Amount:    450,
				Category:  account.CategoryFood,
				AccountID: checking.ID,
			})

			require.Error(t, err)
			assert.Equal(t, shared.KindPersistence, shared.KindOf(err))
			assert.Zero(t, f.store.TransactionCount())
			assert.Zero(t, f.store.EntryCount())
			assert.Empty(t, f.store.Messages())
			assert.Equal(t, accountsBefore, f.store.AccountCount(), "provisioned expense account must roll back")
			assert.Equal(t, int64(10000), f.store.Balance(checking.ID))
			assert.Equal(t, 1, f.store.Rollbacks)
		})
	}
}

func TestOrchestrator_IdempotentCommit(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	owner := uuid.New()
	checking := f.store.SeedAccount(owner, account.CategoryChecking, 10000)
	req := service.QuickDealRequest{
		Type:           service.DealExpense,
		Amount:         450,
		Category:       account.CategoryFood,
		AccountID:      checking.ID,
		IdempotencyKey: "coffee-1",
	}

	first, err := f.core.Orchestrator.QuickDeal(ctx, owner, req)
	require.NoError(t, err)
	second, err := f.core.Orchestrator.QuickDeal(ctx, owner, req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, f.store.TransactionCount())
	assert.Equal(t, int64(9550), f.store.Balance(checking.ID))
	assert.Len(t, f.store.Messages(), 1)

	t.Run("key is scoped per owner", func(t *testing.T) {
		other := uuid.New()
		otherChecking := f.store.SeedAccount(other, account.CategoryChecking, 10000)
		req := req
		req.AccountID = otherChecking.ID

		tx, err := f.core.Orchestrator.QuickDeal(ctx, other, req)

		require.NoError(t, err)
		assert.NotEqual(t, first.ID, tx.ID)
	})
}

func TestOrchestrator_ConcurrentSameKeyCommitsOnce(t *testing.T) {
	f := newFixture()
	owner := uuid.New()
	checking := f.store.SeedAccount(owner, account.CategoryChecking, 10000)
	req := service.QuickDealRequest{
		Type:           service.DealExpense,
		Amount:         100,
		Category:       account.CategoryTransport,
		AccountID:      checking.ID,
		IdempotencyKey: "bus-ticket",
	}

	var wg sync.WaitGroup
	ids := make([]uuid.UUID, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tx, err := f.core.Orchestrator.QuickDeal(context.Background(), owner, req)
			if assert.NoError(t, err) {
				ids[i] = tx.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, int64(9900), f.store.Balance(checking.ID))
	assert.Equal(t, 1, f.store.TransactionCount())
}

func TestOrchestrator_ResolveAccountIsIdempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	owner := uuid.New()

	first, err := f.core.Orchestrator.ResolveAccount(ctx, owner, account.TypeExpense, account.CategoryGroceries)
	require.NoError(t, err)
	second, err := f.core.Orchestrator.ResolveAccount(ctx, owner, account.TypeExpense, account.CategoryGroceries)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Groceries", first.Name)
	assert.Zero(t, first.Balance)
	assert.Equal(t, 1, f.store.AccountCount())

	_, err = f.core.Orchestrator.ResolveAccount(ctx, owner, account.TypeIncome, account.CategoryGroceries)
	assert.Equal(t, shared.KindValidation, shared.KindOf(err))
}

func TestOrchestrator_ReverseTransaction(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	owner := uuid.New()
	checking := f.store.SeedAccount(owner, account.CategoryChecking, 10000)

	original, err := f.core.Orchestrator.QuickDeal(ctx, owner, service.QuickDealRequest{
		Type:        service.DealExpense,
		Amount:      450,
		Category:    account.CategoryFood,
		AccountID:   checking.ID,
		Description: "Coffee",
	})
	require.NoError(t, err)

	f.now = fixedNow.Add(48 * time.Hour)
	reversal, err := f.core.Orchestrator.ReverseTransaction(ctx, owner, service.ReversalRequest{
		TransactionID: original.ID,
		Reason:        "duplicate",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(10000), f.store.Balance(checking.ID))
	assert.Equal(t, int64(450), reversal.SignedTotal)
	assert.Equal(t, "Reversal: Coffee", reversal.Description)
	assert.Equal(t, "duplicate", reversal.Notes)
	assert.Equal(t, shared.DateOf(f.now), reversal.Date)
	require.NotNil(t, reversal.ReversalOf)
	assert.Equal(t, original.ID, *reversal.ReversalOf)

	stored, err := f.core.Orchestrator.GetTransaction(ctx, owner, original.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ReversedBy)
	assert.Equal(t, reversal.ID, *stored.ReversedBy)

	t.Run("second reversal rejected", func(t *testing.T) {
		_, err := f.core.Orchestrator.ReverseTransaction(ctx, owner, service.ReversalRequest{TransactionID: original.ID})
		assert.ErrorAs(t, err, &ledger.ErrAlreadyReversed{})
		assert.Equal(t, int64(10000), f.store.Balance(checking.ID))
	})

	t.Run("reversal of a reversal rejected", func(t *testing.T) {
		_, err := f.core.Orchestrator.ReverseTransaction(ctx, owner, service.ReversalRequest{TransactionID: reversal.ID})
		assert.Equal(t, shared.KindValidation, shared.KindOf(err))
	})

	t.Run("other owner cannot reverse", func(t *testing.T) {
		_, err := f.core.Orchestrator.ReverseTransaction(ctx, uuid.New(), service.ReversalRequest{TransactionID: original.ID})
		assert.ErrorIs(t, err, shared.ErrUnauthorized{})
	})

	t.Run("unknown transaction", func(t *testing.T) {
		_, err := f.core.Orchestrator.ReverseTransaction(ctx, owner, service.ReversalRequest{TransactionID: uuid.New()})
		assert.ErrorIs(t, err, ledger.ErrTransactionNotFound{})
	})

	assert.Equal(t, 2, f.store.TransactionCount())
}

func TestOrchestrator_ListTransactions(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	owner := uuid.New()
	checking := f.store.SeedAccount(owner, account.CategoryChecking, 10000)

	for _, day := range []int{1, 3, 5} {
		_, err := f.core.Orchestrator.QuickDeal(ctx, owner, service.QuickDealRequest{
			Type:      service.DealExpense,
			Amount:    100,
			Category:  account.CategoryFood,
			AccountID: checking.ID,
			Date:      time.Date(2024, 6, day, 9, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
	}

	txs, err := f.core.Orchestrator.ListTransactions(ctx, owner,
		time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC), time.Date(2024, 6, 5, 23, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, 5, txs[0].Date.Day())
	assert.Equal(t, 3, txs[1].Date.Day())

	others, err := f.core.Orchestrator.ListTransactions(ctx, uuid.New(), fixedNow.AddDate(-1, 0, 0), fixedNow)
	require.NoError(t, err)
	assert.Empty(t, others)

	_, err = f.core.Orchestrator.ListTransactions(ctx, owner, fixedNow, fixedNow.AddDate(0, 0, -1))
	assert.Equal(t, shared.KindValidation, shared.KindOf(err))
}

func TestIsBusinessRejection(t *testing.T) {
	assert.True(t, service.IsBusinessRejection(shared.ValidationError{Field: "amount", Reason: "must be positive"}))
	assert.True(t, service.IsBusinessRejection(account.ErrInsufficientFunds{}))
	assert.True(t, service.IsBusinessRejection(account.ErrAccountNotFound{}))
	assert.True(t, service.IsBusinessRejection(shared.ErrUnauthorized{}))
	assert.False(t, service.IsBusinessRejection(shared.NewPersistenceError("update", errors.New("timeout"))))
	assert.False(t, service.IsBusinessRejection(context.Canceled))
}

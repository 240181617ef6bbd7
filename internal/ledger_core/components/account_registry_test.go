package components

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/personal-finance-ledger/internal/domain/account"
	"github.com/personal-finance-ledger/internal/domain/goal"
	"github.com/personal-finance-ledger/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockAccountRepo struct {
	mock.Mock
}

func (m *MockAccountRepo) Create(ctx context.Context, acc *account.Account) error {
	args := m.Called(ctx, acc)
	return args.Error(0)
}

func (m *MockAccountRepo) CreateIfAbsent(ctx context.Context, acc *account.Account) (bool, error) {
	args := m.Called(ctx, acc)
	return args.Bool(0), args.Error(1)
}

func (m *MockAccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.Account), args.Error(1)
}

func (m *MockAccountRepo) FindActive(ctx context.Context, ownerID uuid.UUID, accountType account.Type, category account.Category) (*account.Account, error) {
	args := m.Called(ctx, ownerID, accountType, category)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.Account), args.Error(1)
}

func (m *MockAccountRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*account.Account, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*account.Account), args.Error(1)
}

func (m *MockAccountRepo) UpdateBalance(ctx context.Context, id uuid.UUID, delta int64) error {
	args := m.Called(ctx, id, delta)
	return args.Error(0)
}

func (m *MockAccountRepo) LockForUpdate(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.Account), args.Error(1)
}

func (m *MockAccountRepo) Deactivate(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockAccountRepo) WithTx(tx pgx.Tx) account.Repository {
	args := m.Called(tx)
	return args.Get(0).(account.Repository)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var fixedNow = time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)

func fixedClock() shared.Clock {
	return shared.ClockFunc(func() time.Time { return fixedNow })
}

func TestAccountRegistry_ResolveOrCreate(t *testing.T) {
	ownerID := uuid.New()
	existing := &account.Account{ID: uuid.New(), OwnerID: ownerID, Type: account.TypeExpense, Category: account.CategoryFood, Active: true}
	dbErr := errors.New("connection refused")

	tests := []struct {
		name        string
		accountType account.Type
		category    account.Category
		setupMocks  func(repo *MockAccountRepo)
		expectID    *uuid.UUID
		expectKind  shared.ErrorKind
	}{
		{
			name:        "returns existing active account",
			accountType: account.TypeExpense,
			category:    account.CategoryFood,
			setupMocks: func(repo *MockAccountRepo) {
				repo.On("FindActive", mock.Anything, ownerID, account.TypeExpense, account.CategoryFood).Return(existing, nil).Once()
			},
			expectID: &existing.ID,
		},
		{
			name:        "creates when absent",
			accountType: account.TypeExpense,
			category:    account.CategoryFood,
			setupMocks: func(repo *MockAccountRepo) {
				repo.On("FindActive", mock.Anything, ownerID, account.TypeExpense, account.CategoryFood).Return(nil, nil).Once()
				repo.On("CreateIfAbsent", mock.Anything, mock.MatchedBy(func(a *account.Account) bool {
					return a.OwnerID == ownerID && a.Name == "Food & Dining" && a.Balance == 0 && a.CreatedAt.Equal(fixedNow)
				})).Return(true, nil).Once()
			},
		},
		{
			name:        "lost insert race re-reads winner",
			accountType: account.TypeExpense,
			category:    account.CategoryFood,
			setupMocks: func(repo *MockAccountRepo) {
				repo.On("FindActive", mock.Anything, ownerID, account.TypeExpense, account.CategoryFood).Return(nil, nil).Once()
				repo.On("CreateIfAbsent", mock.Anything, mock.Anything).Return(false, nil).Once()
				repo.On("FindActive", mock.Anything, ownerID, account.TypeExpense, account.CategoryFood).Return(existing, nil).Once()
			},
			expectID: &existing.ID,
		},
		{
			name:        "vanished after conflict",
			accountType: account.TypeExpense,
			category:    account.CategoryFood,
			setupMocks: func(repo *MockAccountRepo) {
				repo.On("FindActive", mock.Anything, ownerID, account.TypeExpense, account.CategoryFood).Return(nil, nil).Twice()
				repo.On("CreateIfAbsent", mock.Anything, mock.Anything).Return(false, nil).Once()
			},
			expectKind: shared.KindPersistence,
		},
		{
			name:        "type mismatch",
			accountType: account.TypeAsset,
			category:    account.CategoryFood,
			setupMocks:  func(repo *MockAccountRepo) {},
			expectKind:  shared.KindValidation,
		},
		{
			name:        "goal category rejected",
			accountType: account.TypeAsset,
			category:    account.CategoryGoal,
			setupMocks:  func(repo *MockAccountRepo) {},
			expectKind:  shared.KindValidation,
		},
		{
			name:        "lookup failure",
			accountType: account.TypeExpense,
			category:    account.CategoryFood,
			setupMocks: func(repo *MockAccountRepo) {
				repo.On("FindActive", mock.Anything, ownerID, account.TypeExpense, account.CategoryFood).
					Return(nil, shared.NewPersistenceError("find active account", dbErr)).Once()
			},
			expectKind: shared.KindPersistence,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &MockAccountRepo{}
			repo.On("WithTx", mock.Anything).Return(repo).Maybe()
			tt.setupMocks(repo)
			registry := NewAccountRegistry(repo, fixedClock(), newTestLogger())

			acc, err := registry.ResolveOrCreate(context.Background(), nil, ownerID, tt.accountType, tt.category)

			if tt.expectKind != "" {
				require.Error(t, err)
				assert.Nil(t, acc)
				assert.Equal(t, tt.expectKind, shared.KindOf(err))
			} else {
				require.NoError(t, err)
				assert.Equal(t, ownerID, acc.OwnerID)
				if tt.expectID != nil {
					assert.Equal(t, *tt.expectID, acc.ID)
				}
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestAccountRegistry_ProvisionGoalAccount(t *testing.T) {
	ownerID := uuid.New()
	newGoal := func() *goal.Goal {
		return &goal.Goal{ID: uuid.New(), OwnerID: ownerID, Name: "Vacation"}
	}

	t.Run("creates and links", func(t *testing.T) {
		repo := &MockAccountRepo{}
		g := newGoal()
		repo.On("Create", mock.Anything, mock.MatchedBy(func(a *account.Account) bool {
			return a.Category == account.CategoryGoal && a.Name == "Goal: Vacation" && a.Type == account.TypeAsset
		})).Return(nil).Once()

		acc, err := NewAccountRegistry(repo, fixedClock(), newTestLogger()).ProvisionGoalAccount(context.Background(), nil, g)

		require.NoError(t, err)
		require.NotNil(t, g.AccountID)
		assert.Equal(t, acc.ID, *g.AccountID)
		repo.AssertExpectations(t)
	})

	t.Run("reuses active linked account", func(t *testing.T) {
		repo := &MockAccountRepo{}
		g := newGoal()
		linked := &account.Account{ID: uuid.New(), OwnerID: ownerID, Category: account.CategoryGoal, Active: true}
		g.AccountID = &linked.ID
		repo.On("GetByID", mock.Anything, linked.ID).Return(linked, nil).Once()

		acc, err := NewAccountRegistry(repo, fixedClock(), newTestLogger()).ProvisionGoalAccount(context.Background(), nil, g)

		require.NoError(t, err)
		assert.Same(t, linked, acc)
		repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("replaces missing linked account", func(t *testing.T) {
		repo := &MockAccountRepo{}
		g := newGoal()
		stale := uuid.New()
		g.AccountID = &stale
		repo.On("GetByID", mock.Anything, stale).Return(nil, account.ErrAccountNotFound{AccountID: stale}).Once()
		repo.On("Create", mock.Anything, mock.Anything).Return(nil).Once()

		_, err := NewAccountRegistry(repo, fixedClock(), newTestLogger()).ProvisionGoalAccount(context.Background(), nil, g)

		require.NoError(t, err)
		assert.NotEqual(t, stale, *g.AccountID)
	})

	t.Run("goal with progress is not moved to a fresh account", func(t *testing.T) {
		for name, lookup := range map[string]func(id uuid.UUID) (*account.Account, error){
			"missing": func(id uuid.UUID) (*account.Account, error) { return nil, account.ErrAccountNotFound{AccountID: id} },
			"inactive": func(id uuid.UUID) (*account.Account, error) {
				return &account.Account{ID: id, OwnerID: ownerID, Category: account.CategoryGoal, Balance: 20000}, nil
			},
		} {
			t.Run(name, func(t *testing.T) {
				repo := &MockAccountRepo{}
				g := newGoal()
				linked := uuid.New()
				g.AccountID = &linked
				g.CurrentAmount = 20000
				acc, lookupErr := lookup(linked)
				repo.On("GetByID", mock.Anything, linked).Return(acc, lookupErr).Once()

				_, err := NewAccountRegistry(repo, fixedClock(), newTestLogger()).ProvisionGoalAccount(context.Background(), nil, g)

				assert.Equal(t, shared.KindPersistence, shared.KindOf(err))
				assert.Equal(t, linked, *g.AccountID)
				repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
			})
		}
	})

	t.Run("create failure", func(t *testing.T) {
		repo := &MockAccountRepo{}
		g := newGoal()
		repo.On("Create", mock.Anything, mock.Anything).Return(errors.New("disk full")).Once()

		_, err := NewAccountRegistry(repo, fixedClock(), newTestLogger()).ProvisionGoalAccount(context.Background(), nil, g)

		assert.ErrorContains(t, err, "failed to create goal account")
		assert.Nil(t, g.AccountID)
	})
}

func TestAccountRegistry_GetByIDAndDeactivate(t *testing.T) {
	ownerID := uuid.New()
	checking := &account.Account{ID: uuid.New(), OwnerID: ownerID, Type: account.TypeAsset, Category: account.CategoryChecking, Active: true}
	goalAcc := &account.Account{ID: uuid.New(), OwnerID: ownerID, Type: account.TypeAsset, Category: account.CategoryGoal, Active: true}

	repo := &MockAccountRepo{}
	repo.On("GetByID", mock.Anything, checking.ID).Return(checking, nil)
	repo.On("GetByID", mock.Anything, goalAcc.ID).Return(goalAcc, nil)
	repo.On("Deactivate", mock.Anything, checking.ID).Return(nil).Once()
	registry := NewAccountRegistry(repo, fixedClock(), newTestLogger())
	ctx := context.Background()

	acc, err := registry.GetByID(ctx, ownerID, checking.ID)
	require.NoError(t, err)
	assert.Equal(t, checking.ID, acc.ID)

	_, err = registry.GetByID(ctx, uuid.New(), checking.ID)
	assert.ErrorIs(t, err, shared.ErrUnauthorized{})

	assert.NoError(t, registry.Deactivate(ctx, ownerID, checking.ID))
	assert.Equal(t, shared.KindValidation, shared.KindOf(registry.Deactivate(ctx, ownerID, goalAcc.ID)))
	assert.Equal(t, shared.KindAuthorization, shared.KindOf(registry.Deactivate(ctx, uuid.New(), checking.ID)))

	repo.AssertNumberOfCalls(t, "Deactivate", 1)
}

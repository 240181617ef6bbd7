package components

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/personal-finance-ledger/internal/domain/outbox"
	"github.com/personal-finance-ledger/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockOutboxRepo struct {
	mock.Mock
}

func (m *MockOutboxRepo) Create(ctx context.Context, message *outbox.Message) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

func (m *MockOutboxRepo) GetPending(ctx context.Context, limit int) ([]*outbox.Message, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*outbox.Message), args.Error(1)
}

func (m *MockOutboxRepo) UpdateStatus(ctx context.Context, id int64, status shared.OutboxStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockOutboxRepo) IncrementAttempts(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxRepo) WithTx(tx pgx.Tx) outbox.Repository {
	args := m.Called(tx)
	return args.Get(0).(outbox.Repository)
}

func TestOutboxWriter_Enqueue(t *testing.T) {
	txID := uuid.New()
	ownerID := uuid.New()
	dbError := errors.New("db error")

	tests := []struct {
		name          string
		payload       any
		setupMocks    func(repo *MockOutboxRepo)
		errorContains string
	}{
		{
			name:    "stores pending message",
			payload: outbox.GoalCompleted{GoalID: uuid.New(), GoalName: "Vacation", FinalAmount: 5100, TargetAmount: 5000},
			setupMocks: func(repo *MockOutboxRepo) {
				repo.On("Create", mock.Anything, mock.MatchedBy(func(m *outbox.Message) bool {
					return m.EventType == outbox.EventGoalCompleted &&
						m.TransactionID == txID &&
						m.OwnerID == ownerID &&
						m.Status == shared.OutboxStatusPending &&
						m.CreatedAt.Equal(fixedNow)
				})).Return(nil).Once()
			},
		},
		{
			name:    "repository failure",
			payload: outbox.GoalCompleted{},
			setupMocks: func(repo *MockOutboxRepo) {
				repo.On("Create", mock.Anything, mock.Anything).Return(dbError).Once()
			},
			errorContains: "failed to enqueue goal.completed",
		},
		{
			name:          "unmarshalable payload",
			payload:       make(chan int),
			setupMocks:    func(repo *MockOutboxRepo) {},
			errorContains: "failed to create outbox payload",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &MockOutboxRepo{}
			tt.setupMocks(repo)
			writer := NewOutboxWriter(repo, fixedClock(), newTestLogger())

			err := writer.Enqueue(context.Background(), nil, outbox.EventGoalCompleted, txID, ownerID, tt.payload)

			if tt.errorContains != "" {
				assert.ErrorContains(t, err, tt.errorContains)
			} else {
				assert.NoError(t, err)
			}
			repo.AssertExpectations(t)
			repo.AssertNotCalled(t, "WithTx", mock.Anything)
		})
	}
}

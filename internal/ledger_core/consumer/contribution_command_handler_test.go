package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/personal-finance-ledger/internal/domain/account"
	"github.com/personal-finance-ledger/internal/domain/goal"
	"github.com/personal-finance-ledger/internal/domain/shared"
	"github.com/personal-finance-ledger/internal/ledger_core/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockContributor struct {
	mock.Mock
}

func (m *MockContributor) Contribute(ctx context.Context, ownerID uuid.UUID, req service.ContributionRequest) (*service.ContributionResult, error) {
	args := m.Called(ctx, ownerID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ContributionResult), args.Error(1)
}

type MockDeadLetterPublisher struct {
	mock.Mock
}

func (m *MockDeadLetterPublisher) PublishToDLQ(ctx context.Context, key string, value []byte, reason string) error {
	args := m.Called(ctx, key, value, reason)
	return args.Error(0)
}

func (m *MockDeadLetterPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

type MockCommandMetrics struct {
	mock.Mock
}

func (m *MockCommandMetrics) IncrCommand(result string) {
	m.Called(result)
}

func TestHandleMessage(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	g := &goal.Goal{ID: uuid.New(), OwnerID: uuid.New(), ContributionAmount: 2500}
	cmd := goal.NewScheduledContribution(g, time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), time.Now())
	validJSON, err := json.Marshal(cmd)
	assert.NoError(t, err)

	matchesCommand := mock.MatchedBy(func(req service.ContributionRequest) bool {
		return req.GoalID == cmd.GoalID && req.Amount == 2500 && req.IdempotencyKey == cmd.IdempotencyKey &&
			req.CorrelationID == cmd.CorrelationID && req.SourceAccountID == nil
	})
	invalidJSON := []byte("invalid json")
	missingOwner, _ := json.Marshal(goal.ScheduledContribution{GoalID: g.ID, Amount: 100, IdempotencyKey: "k"})

	tests := []struct {
		name          string
		value         []byte
		setupMocks    func(c *MockContributor, d *MockDeadLetterPublisher, m *MockCommandMetrics)
		expectedError string
	}{
		{
			name:  "successful contribution",
			value: validJSON,
			setupMocks: func(c *MockContributor, d *MockDeadLetterPublisher, m *MockCommandMetrics) {
				c.On("Contribute", mock.Anything, g.OwnerID, matchesCommand).
					Return(&service.ContributionResult{Contribution: &goal.Contribution{ID: uuid.New()}}, nil)
				m.On("IncrCommand", CommandProcessed).Once()
			},
		},
		{
			name:  "insufficient funds is acknowledged",
			value: validJSON,
			setupMocks: func(c *MockContributor, d *MockDeadLetterPublisher, m *MockCommandMetrics) {
				c.On("Contribute", mock.Anything, g.OwnerID, matchesCommand).
					Return(nil, account.ErrInsufficientFunds{AccountID: uuid.New(), Balance: 1000, Requested: 2500})
				m.On("IncrCommand", CommandRejected).Once()
			},
		},
		{
			name:  "paused goal is acknowledged",
			value: validJSON,
			setupMocks: func(c *MockContributor, d *MockDeadLetterPublisher, m *MockCommandMetrics) {
				c.On("Contribute", mock.Anything, g.OwnerID, matchesCommand).
					Return(nil, goal.ErrGoalNotActive{GoalID: g.ID, Status: goal.StatusPaused})
				m.On("IncrCommand", CommandRejected).Once()
			},
		},
		{
			name:  "store failure is retried",
			value: validJSON,
			setupMocks: func(c *MockContributor, d *MockDeadLetterPublisher, m *MockCommandMetrics) {
				c.On("Contribute", mock.Anything, g.OwnerID, matchesCommand).
					Return(nil, shared.NewPersistenceError("lock goal", errors.New("connection reset")))
				m.On("IncrCommand", CommandFailed).Once()
			},
			expectedError: "processing scheduled contribution",
		},
		{
			name:  "malformed message goes to DLQ",
			value: invalidJSON,
			setupMocks: func(c *MockContributor, d *MockDeadLetterPublisher, m *MockCommandMetrics) {
				d.On("PublishToDLQ", mock.Anything, "goal-key", invalidJSON, mock.Anything).Return(nil)
				m.On("IncrCommand", CommandDeadLetter).Once()
			},
		},
		{
			name:  "invalid command goes to DLQ",
			value: missingOwner,
			setupMocks: func(c *MockContributor, d *MockDeadLetterPublisher, m *MockCommandMetrics) {
				d.On("PublishToDLQ", mock.Anything, "goal-key", missingOwner,
					mock.MatchedBy(func(reason string) bool { return strings.Contains(reason, "invalid owner_id") })).Return(nil)
				m.On("IncrCommand", CommandDeadLetter).Once()
			},
		},
		{
			name:  "DLQ failure is retried",
			value: invalidJSON,
			setupMocks: func(c *MockContributor, d *MockDeadLetterPublisher, m *MockCommandMetrics) {
				d.On("PublishToDLQ", mock.Anything, "goal-key", invalidJSON, mock.Anything).Return(errors.New("dlq error"))
				m.On("IncrCommand", CommandFailed).Once()
			},
			expectedError: "failed to decode scheduled contribution",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			contributor := &MockContributor{}
			dlq := &MockDeadLetterPublisher{}
			metrics := &MockCommandMetrics{}
			tt.setupMocks(contributor, dlq, metrics)

			handler := NewContributionCommandHandler(logger, contributor, dlq, metrics)
			err := handler.HandleMessage(context.Background(), []byte("goal-key"), tt.value)

			if tt.expectedError != "" {
				assert.ErrorContains(t, err, tt.expectedError)
			} else {
				assert.NoError(t, err)
			}
			contributor.AssertExpectations(t)
			dlq.AssertExpectations(t)
			metrics.AssertExpectations(t)
		})
	}
}

func TestHandleMessage_WithoutDLQ(t *testing.T) {
	metrics := &MockCommandMetrics{}
	metrics.On("IncrCommand", CommandFailed).Once()
	handler := NewContributionCommandHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), &MockContributor{}, nil, metrics)

	err := handler.HandleMessage(context.Background(), nil, []byte("{"))

	assert.ErrorContains(t, err, "failed to decode scheduled contribution")
	metrics.AssertExpectations(t)
}

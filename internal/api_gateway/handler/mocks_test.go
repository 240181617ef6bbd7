package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/personal-finance-ledger/internal/api_gateway/middleware"
	"github.com/personal-finance-ledger/internal/domain/account"
	"github.com/personal-finance-ledger/internal/domain/goal"
	"github.com/personal-finance-ledger/internal/domain/ledger"
	"github.com/personal-finance-ledger/internal/ledger_core/importer"
	ledgersvc "github.com/personal-finance-ledger/internal/ledger_core/service"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
	testOwner  = uuid.MustParse("3f1c9a52-8f0e-4b8e-9a55-1f3b2c4d5e6f")
	testNow    = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
)

type MockAccountService struct {
	mock.Mock
}

func (m *MockAccountService) ResolveAccount(ctx context.Context, ownerID uuid.UUID, accountType account.Type, category account.Category) (*account.Account, error) {
	args := m.Called(ctx, ownerID, accountType, category)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.Account), args.Error(1)
}

func (m *MockAccountService) GetAccount(ctx context.Context, ownerID, accountID uuid.UUID) (*account.Account, error) {
	args := m.Called(ctx, ownerID, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.Account), args.Error(1)
}

func (m *MockAccountService) ListAccounts(ctx context.Context, ownerID uuid.UUID) ([]*account.Account, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*account.Account), args.Error(1)
}

func (m *MockAccountService) DeactivateAccount(ctx context.Context, ownerID, accountID uuid.UUID) error {
	args := m.Called(ctx, ownerID, accountID)
	return args.Error(0)
}

type MockTransactionService struct {
	mock.Mock
}

func (m *MockTransactionService) CommitTransaction(ctx context.Context, ownerID uuid.UUID, meta ledger.Meta, entries []ledger.Entry) (*ledger.Transaction, error) {
	args := m.Called(ctx, ownerID, meta, entries)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Transaction), args.Error(1)
}

func (m *MockTransactionService) QuickDeal(ctx context.Context, ownerID uuid.UUID, req ledgersvc.QuickDealRequest) (*ledger.Transaction, error) {
	args := m.Called(ctx, ownerID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Transaction), args.Error(1)
}

func (m *MockTransactionService) ReverseTransaction(ctx context.Context, ownerID uuid.UUID, req ledgersvc.ReversalRequest) (*ledger.Transaction, error) {
	args := m.Called(ctx, ownerID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Transaction), args.Error(1)
}

func (m *MockTransactionService) GetTransaction(ctx context.Context, ownerID, transactionID uuid.UUID) (*ledger.Transaction, error) {
	args := m.Called(ctx, ownerID, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Transaction), args.Error(1)
}

func (m *MockTransactionService) ListTransactions(ctx context.Context, ownerID uuid.UUID, from, to time.Time) ([]*ledger.Transaction, error) {
	args := m.Called(ctx, ownerID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ledger.Transaction), args.Error(1)
}

func (m *MockTransactionService) ImportCSV(ctx context.Context, ownerID uuid.UUID, r io.Reader, req importer.Request) (*importer.Report, error) {
	body, _ := io.ReadAll(r)
	args := m.Called(ctx, ownerID, string(body), req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*importer.Report), args.Error(1)
}

type MockGoalService struct {
	mock.Mock
}

func (m *MockGoalService) goal(args mock.Arguments) (*goal.Goal, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*goal.Goal), args.Error(1)
}

func (m *MockGoalService) CreateGoal(ctx context.Context, ownerID uuid.UUID, params goal.Params) (*goal.Goal, error) {
	return m.goal(m.Called(ctx, ownerID, params))
}

func (m *MockGoalService) GetGoal(ctx context.Context, ownerID, goalID uuid.UUID) (*goal.Goal, error) {
	return m.goal(m.Called(ctx, ownerID, goalID))
}

func (m *MockGoalService) ListGoals(ctx context.Context, ownerID uuid.UUID) ([]*goal.Goal, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*goal.Goal), args.Error(1)
}

func (m *MockGoalService) Contribute(ctx context.Context, ownerID uuid.UUID, req ledgersvc.ContributionRequest) (*ledgersvc.ContributionResult, error) {
	args := m.Called(ctx, ownerID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledgersvc.ContributionResult), args.Error(1)
}

func (m *MockGoalService) PauseGoal(ctx context.Context, ownerID, goalID uuid.UUID) (*goal.Goal, error) {
	return m.goal(m.Called(ctx, ownerID, goalID))
}

func (m *MockGoalService) ResumeGoal(ctx context.Context, ownerID, goalID uuid.UUID) (*goal.Goal, error) {
	return m.goal(m.Called(ctx, ownerID, goalID))
}

func (m *MockGoalService) CancelGoal(ctx context.Context, ownerID, goalID uuid.UUID) (*goal.Goal, error) {
	return m.goal(m.Called(ctx, ownerID, goalID))
}

type MockHistoryService struct {
	mock.Mock
}

func (m *MockHistoryService) GetHistory(ctx context.Context, ownerID uuid.UUID, from, to time.Time, page, perPage int) ([]*ledger.HistoryRecord, int64, error) {
	args := m.Called(ctx, ownerID, from, to, page, perPage)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*ledger.HistoryRecord), args.Get(1).(int64), args.Error(2)
}

// setupTestRouter mounts the owner middleware so handlers see testOwner
func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.CorrelationID(), middleware.OwnerID())
	return r
}

func performRequest(r http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		encoded, _ := json.Marshal(b)
		reader = bytes.NewBuffer(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.OwnerIDHeader, testOwner.String())
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

// decodeData unmarshals the data field of a standard response into out
func decodeData(t *testing.T, rr *httptest.ResponseRecorder, out any) Response {
	t.Helper()
	var raw struct {
		Data  json.RawMessage `json:"data"`
		Error *ErrorInfo      `json:"error"`
		Meta  *MetaInfo       `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &raw))
	if out != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, out))
	}
	return Response{Error: raw.Error, Meta: raw.Meta}
}

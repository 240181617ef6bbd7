package service

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/personal-finance-ledger/internal/domain/ledger"
	"github.com/personal-finance-ledger/internal/ledger_core/importer"
	ledgersvc "github.com/personal-finance-ledger/internal/ledger_core/service"
)

// TransactionServiceImpl implements TransactionService over the orchestrator
// and the statement importer
type TransactionServiceImpl struct {
	orchestrator *ledgersvc.Orchestrator
	importer     *importer.Importer
	logger       *slog.Logger
}

func NewTransactionService(logger *slog.Logger, orchestrator *ledgersvc.Orchestrator, imp *importer.Importer) TransactionService {
	return &TransactionServiceImpl{
		orchestrator: orchestrator,
		importer:     imp,
		logger:       logger,
	}
}

func (s *TransactionServiceImpl) CommitTransaction(ctx context.Context, ownerID uuid.UUID, meta ledger.Meta, entries []ledger.Entry) (*ledger.Transaction, error) {
	return s.orchestrator.CommitTransaction(ctx, ownerID, meta, entries)
}

func (s *TransactionServiceImpl) QuickDeal(ctx context.Context, ownerID uuid.UUID, req ledgersvc.QuickDealRequest) (*ledger.Transaction, error) {
	return s.orchestrator.QuickDeal(ctx, ownerID, req)
}

func (s *TransactionServiceImpl) ReverseTransaction(ctx context.Context, ownerID uuid.UUID, req ledgersvc.ReversalRequest) (*ledger.Transaction, error) {
	return s.orchestrator.ReverseTransaction(ctx, ownerID, req)
}

func (s *TransactionServiceImpl) GetTransaction(ctx context.Context, ownerID, transactionID uuid.UUID) (*ledger.Transaction, error) {
	return s.orchestrator.GetTransaction(ctx, ownerID, transactionID)
}

func (s *TransactionServiceImpl) ListTransactions(ctx context.Context, ownerID uuid.UUID, from, to time.Time) ([]*ledger.Transaction, error) {
	return s.orchestrator.ListTransactions(ctx, ownerID, from, to)
}

func (s *TransactionServiceImpl) ImportCSV(ctx context.Context, ownerID uuid.UUID, r io.Reader, req importer.Request) (*importer.Report, error) {
	report, err := s.importer.Import(ctx, ownerID, r, req)
	if err != nil {
		s.logger.Error("Statement import failed",
			"owner_id", ownerID.String(),
			"batch_id", req.BatchID,
			"error", err,
		)
		return nil, err
	}
	return report, nil
}

package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/personal-finance-ledger/internal/domain/ledger"
	"github.com/personal-finance-ledger/internal/domain/shared"
)

// HistoryServiceImpl pages through the history read model
type HistoryServiceImpl struct {
	historyRepo ledger.HistoryRepository
	logger      *slog.Logger
}

func NewHistoryService(logger *slog.Logger, historyRepo ledger.HistoryRepository) HistoryService {
	return &HistoryServiceImpl{
		historyRepo: historyRepo,
		logger:      logger,
	}
}

// GetHistory covers whole days: to is extended to the end of its day
func (s *HistoryServiceImpl) GetHistory(ctx context.Context, ownerID uuid.UUID, from, to time.Time, page, perPage int) ([]*ledger.HistoryRecord, int64, error) {
	from = shared.DateOf(from)
	to = shared.DateOf(to).Add(24*time.Hour - time.Nanosecond)
	if to.Before(from) {
		return nil, 0, shared.ValidationError{Field: "date range", Reason: "from must not be after to"}
	}
	offset := (page - 1) * perPage

	records, err := s.historyRepo.ListByOwner(ctx, ownerID, from, to, perPage, offset)
	if err != nil {
		s.logger.Error("Failed to read history", "owner_id", ownerID.String(), "error", err)
		return nil, 0, err
	}

	total, err := s.historyRepo.CountByOwner(ctx, ownerID, from, to)
	if err != nil {
		s.logger.Error("Failed to count history", "owner_id", ownerID.String(), "error", err)
		return nil, 0, err
	}

	return records, total, nil
}

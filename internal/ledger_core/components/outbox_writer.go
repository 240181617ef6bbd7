package components

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/personal-finance-ledger/internal/domain/outbox"
	"github.com/personal-finance-ledger/internal/domain/shared"
	"github.com/personal-finance-ledger/internal/ledger_core/service"
)

type OutboxWriterImpl struct {
	outboxRepo outbox.Repository
	clock      shared.Clock
	logger     *slog.Logger
}

func NewOutboxWriter(outboxRepo outbox.Repository, clock shared.Clock, logger *slog.Logger) service.OutboxWriter {
	return &OutboxWriterImpl{
		outboxRepo: outboxRepo,
		clock:      clock,
		logger:     logger,
	}
}

// Enqueue stores an event in tx so it is published only if the commit succeeds
func (w *OutboxWriterImpl) Enqueue(ctx context.Context, tx pgx.Tx, eventType outbox.EventType, transactionID, ownerID uuid.UUID, payload any) error {
	message, err := outbox.NewMessage(eventType, transactionID, ownerID, payload, w.clock.Now())
	if err != nil {
		w.logger.Error("Failed to create new outbox message (marshal payload)",
			"event_type", string(eventType),
			"transaction_id", transactionID.String(),
			"error", err,
		)
		return fmt.Errorf("failed to create outbox payload for %s: %w", eventType, err)
	}

	repo := w.outboxRepo
	if tx != nil {
		repo = repo.WithTx(tx)
	}
	if err := repo.Create(ctx, message); err != nil {
		return fmt.Errorf("failed to enqueue %s for transaction %s: %w", eventType, transactionID, err)
	}

	w.logger.Debug("Outbox message enqueued",
		"event_type", string(eventType),
		"transaction_id", transactionID.String(),
		"outbox_id", message.ID,
	)
	return nil
}

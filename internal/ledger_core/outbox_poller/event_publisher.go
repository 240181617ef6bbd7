package outbox_poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/personal-finance-ledger/internal/domain/ledger"
	"github.com/personal-finance-ledger/internal/domain/outbox"
	"github.com/personal-finance-ledger/internal/domain/shared"
	"github.com/personal-finance-ledger/internal/platform/messaging/producers"
	"github.com/sony/gobreaker"
)

// ErrUndecodablePayload marks a message that can never be published
var ErrUndecodablePayload = errors.New("undecodable outbox payload")

// EventPublisher fans one outbox message out to the read model and the
// notification topic
type EventPublisher interface {
	Publish(ctx context.Context, message *outbox.Message) error
}

// EventPublisherImpl implements EventPublisher
type EventPublisherImpl struct {
	outboxRepo  outbox.Repository
	historyRepo ledger.HistoryRepository
	producer    producers.MessagePublisher
	breaker     *gobreaker.CircuitBreaker
	clock       shared.Clock
	logger      *slog.Logger
}

func NewEventPublisher(
	outboxRepo outbox.Repository,
	historyRepo ledger.HistoryRepository,
	producer producers.MessagePublisher,
	breaker *gobreaker.CircuitBreaker,
	clock shared.Clock,
	logger *slog.Logger,
) EventPublisher {
	if clock == nil {
		clock = shared.SystemClock
	}
	return &EventPublisherImpl{
		outboxRepo:  outboxRepo,
		historyRepo: historyRepo,
		producer:    producer,
		breaker:     breaker,
		clock:       clock,
		logger:      logger,
	}
}

// Publish projects committed transactions into the history read model, then
// sends the notification and marks the message processed. Every step is safe
// to repeat: the history upsert is keyed by transaction and consumers dedupe
// notifications on message_id.
func (p *EventPublisherImpl) Publish(ctx context.Context, message *outbox.Message) error {
	logger := p.logger.With("outbox_id", message.ID, "event_type", string(message.EventType))

	if message.EventType == outbox.EventTransactionCommitted {
		var event outbox.TransactionCommitted
		if err := message.DecodePayload(&event); err != nil || event.Transaction == nil {
			logger.Error("Failed to decode committed transaction from outbox payload", "error", err)
			return fmt.Errorf("outbox %d: %w", message.ID, ErrUndecodablePayload)
		}
		if event.CorrelationID != "" {
			logger = logger.With("correlation_id", event.CorrelationID)
		}

		record := ledger.NewHistoryRecord(event.Transaction, event.Display, event.CorrelationID, p.clock.Now())
		if err := p.historyRepo.Upsert(ctx, record); err != nil {
			logger.Error("Failed to project transaction into history", "transaction_id", record.TransactionID.String(), "error", err)
			return fmt.Errorf("failed to project transaction %s into history: %w", record.TransactionID, err)
		}
		logger.Debug("Projected transaction into history", "transaction_id", record.TransactionID.String())
	}

	notification := outbox.NewNotification(message)
	_, err := p.breaker.Execute(func() (any, error) {
		return nil, p.producer.Publish(ctx, message.OwnerID.String(), notification)
	})
	if err != nil {
		logger.Error("Failed to publish notification", "breaker_state", p.breaker.State().String(), "error", err)
		return fmt.Errorf("failed to publish notification for outbox %d: %w", message.ID, err)
	}

	if err := p.outboxRepo.UpdateStatus(ctx, message.ID, shared.OutboxStatusProcessed); err != nil {
		logger.Error("Failed to update outbox message status to PROCESSED", "error", err)
		return fmt.Errorf("notification for outbox %d sent, but failed to mark it PROCESSED: %w", message.ID, err)
	}

	logger.Info("Outbox message published and marked as PROCESSED")
	return nil
}

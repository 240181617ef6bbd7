// Package outbox_poller delivers committed outbox messages after the ledger
// scope has closed. Failures here never touch balances.
package outbox_poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/personal-finance-ledger/internal/config"
	"github.com/personal-finance-ledger/internal/domain/outbox"
	"github.com/personal-finance-ledger/internal/domain/shared"
)

// Publish outcomes, used as the metrics label
const (
	PublishSucceeded = "published"
	PublishRetrying  = "retry"
	PublishFailed    = "failed"
)

type PublishMetrics interface {
	IncrOutboxPublish(eventType, result string)
}

// Poller processes pending outbox messages
type Poller struct {
	outboxRepo       outbox.Repository
	publisher        EventPublisher
	metrics          PublishMetrics
	logger           *slog.Logger
	pollInterval     time.Duration
	batchSize        int
	maxRetryAttempts int
}

func NewPoller(
	cfg *config.OutboxConfig,
	outboxRepo outbox.Repository,
	publisher EventPublisher,
	metrics PublishMetrics,
	logger *slog.Logger,
) *Poller {
	return &Poller{
		outboxRepo:       outboxRepo,
		publisher:        publisher,
		metrics:          metrics,
		logger:           logger,
		pollInterval:     cfg.PollingInterval,
		batchSize:        cfg.BatchSize,
		maxRetryAttempts: cfg.MaxRetryAttempts,
	}
}

// Start polls until ctx is cancelled
func (p *Poller) Start(ctx context.Context) {
	p.logger.Info("Starting Outbox Poller",
		"poll_interval", p.pollInterval.String(),
		"batch_size", p.batchSize,
		"max_retry_attempts", p.maxRetryAttempts,
	)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Outbox Poller stopping due to context cancellation.")
			return
		case <-ticker.C:
			if err := p.processPendingMessages(ctx); err != nil {
				p.logger.Error("Error during batch processing of pending outbox messages", "error", err)
			}
		}
	}
}

func correlationIDOf(m *outbox.Message) string {
	var envelope struct {
		CorrelationID string `json:"correlation_id"`
	}
	if err := json.Unmarshal(m.Payload, &envelope); err != nil {
		return ""
	}
	return envelope.CorrelationID
}

func (p *Poller) processPendingMessages(ctx context.Context) error {
	messages, err := p.outboxRepo.GetPending(ctx, p.batchSize)
	if err != nil {
		return fmt.Errorf("failed to get pending outbox messages: %w", err)
	}
	if len(messages) == 0 {
		p.logger.Debug("No pending outbox messages found.")
		return nil
	}

	p.logger.Info("Fetched pending outbox messages", "count", len(messages))

	for _, msg := range messages {
		logger := p.logger
		if correlationID := correlationIDOf(msg); correlationID != "" {
			logger = p.logger.With("correlation_id", correlationID)
		}
		eventType := string(msg.EventType)

		err := p.publisher.Publish(ctx, msg)
		if err == nil {
			p.metrics.IncrOutboxPublish(eventType, PublishSucceeded)
			continue
		}

		logger.Error("Failed to publish outbox message",
			"outbox_id", msg.ID, "event_type", eventType, "current_attempts", msg.Attempts, "error", err,
		)

		if errors.Is(err, ErrUndecodablePayload) {
			p.fail(ctx, logger, msg)
			continue
		}

		if errInc := p.outboxRepo.IncrementAttempts(ctx, msg.ID); errInc != nil {
			logger.Error("Failed to increment attempts for outbox message", "outbox_id", msg.ID, "error", errInc)
			continue
		}

		if msg.Attempts+1 >= p.maxRetryAttempts {
			logger.Warn("Max retry attempts reached for outbox message, marking as FAILED_TO_PUBLISH",
				"outbox_id", msg.ID, "attempts_made", msg.Attempts+1,
			)
			p.fail(ctx, logger, msg)
			continue
		}
		p.metrics.IncrOutboxPublish(eventType, PublishRetrying)
	}
	return nil
}

func (p *Poller) fail(ctx context.Context, logger *slog.Logger, msg *outbox.Message) {
	p.metrics.IncrOutboxPublish(string(msg.EventType), PublishFailed)
	if err := p.outboxRepo.UpdateStatus(ctx, msg.ID, shared.OutboxStatusFailedToPublish); err != nil {
		logger.Error("Failed to update outbox status to FAILED_TO_PUBLISH", "outbox_id", msg.ID, "error", err)
	}
}

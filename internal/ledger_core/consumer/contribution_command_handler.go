package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/personal-finance-ledger/internal/domain/goal"
	"github.com/personal-finance-ledger/internal/ledger_core/service"
	"github.com/personal-finance-ledger/internal/platform/messaging/producers"
)

// Command outcomes, used as the metrics label
const (
	CommandProcessed  = "processed"
	CommandRejected   = "rejected"
	CommandDeadLetter = "dead_letter"
	CommandFailed     = "failed"
)

// Contributor runs one goal contribution
type Contributor interface {
	Contribute(ctx context.Context, ownerID uuid.UUID, req service.ContributionRequest) (*service.ContributionResult, error)
}

type CommandMetrics interface {
	IncrCommand(result string)
}

// ContributionCommandHandler turns scheduled contribution commands from Kafka
// into goal contributions
type ContributionCommandHandler struct {
	contributor Contributor
	producer    producers.DeadLetterPublisher
	metrics     CommandMetrics
	logger      *slog.Logger
}

func NewContributionCommandHandler(
	logger *slog.Logger,
	contributor Contributor,
	producer producers.DeadLetterPublisher,
	metrics CommandMetrics,
) *ContributionCommandHandler {
	return &ContributionCommandHandler{
		contributor: contributor,
		producer:    producer,
		metrics:     metrics,
		logger:      logger,
	}
}

// HandleMessage returns nil when the offset may be committed. Malformed commands
// are parked in the DLQ and business rejections are acknowledged, since neither
// succeeds on redelivery.
func (h *ContributionCommandHandler) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	var cmd goal.ScheduledContribution
	err := json.Unmarshal(value, &cmd)
	if err == nil {
		err = cmd.Validate()
	}
	if err != nil {
		h.logger.Error("Failed to decode scheduled contribution command",
			"error", err,
			"message_key", string(key),
		)
		return h.deadLetter(ctx, key, value, err)
	}

	logger := h.logger.With("goal_id", cmd.GoalID.String(), "idempotency_key", cmd.IdempotencyKey)
	if cmd.CorrelationID != "" {
		logger = logger.With("correlation_id", cmd.CorrelationID)
	}

	logger.Info("Received scheduled contribution",
		"owner_id", cmd.OwnerID.String(),
		"amount", cmd.Amount,
		"due_date", cmd.DueDate.Format("2006-01-02"),
	)

	result, err := h.contributor.Contribute(ctx, cmd.OwnerID, service.ContributionRequest{
		GoalID:         cmd.GoalID,
		Amount:         cmd.Amount,
		Notes:          "Scheduled contribution",
		IdempotencyKey: cmd.IdempotencyKey,
		CorrelationID:  cmd.CorrelationID,
	})
	switch {
	case err == nil:
		h.metrics.IncrCommand(CommandProcessed)
		logger.Info("Scheduled contribution processed",
			"contribution_id", result.Contribution.ID.String(),
			"replayed", result.Replayed,
		)
		return nil
	case service.IsBusinessRejection(err):
		h.metrics.IncrCommand(CommandRejected)
		logger.Warn("Scheduled contribution rejected", "error", err)
		return nil
	default:
		h.metrics.IncrCommand(CommandFailed)
		logger.Error("Failed to process scheduled contribution", "error", err)
		return fmt.Errorf("processing scheduled contribution for goal %s failed: %w", cmd.GoalID, err)
	}
}

func (h *ContributionCommandHandler) deadLetter(ctx context.Context, key, value []byte, cause error) error {
	if h.producer == nil {
		h.metrics.IncrCommand(CommandFailed)
		return fmt.Errorf("failed to decode scheduled contribution: %w", cause)
	}

	reason := "Failed to decode scheduled contribution: " + cause.Error()
	if err := h.producer.PublishToDLQ(ctx, string(key), value, reason); err != nil {
		h.logger.Error("Failed to publish message to DLQ after decode error",
			"dlq_error", err,
			"original_error", cause,
			"message_key", string(key),
		)
		h.metrics.IncrCommand(CommandFailed)
		return fmt.Errorf("failed to decode scheduled contribution: %w", cause)
	}

	h.logger.Info("Published unprocessable command to DLQ", "message_key", string(key), "reason", reason)
	h.metrics.IncrCommand(CommandDeadLetter)
	return nil
}

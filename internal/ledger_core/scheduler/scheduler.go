// Package scheduler emits scheduled goal contribution commands on a cron
// schedule. The commands are consumed by the ledger worker, which runs the
// contribution itself.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/personal-finance-ledger/internal/config"
	"github.com/personal-finance-ledger/internal/domain/goal"
	"github.com/personal-finance-ledger/internal/domain/shared"
	"github.com/personal-finance-ledger/internal/platform/messaging/producers"
	"github.com/robfig/cron/v3"
)

type ScheduleMetrics interface {
	IncrScheduled()
}

type Scheduler struct {
	goalRepo  goal.Repository
	producer  producers.MessagePublisher
	metrics   ScheduleMetrics
	clock     shared.Clock
	logger    *slog.Logger
	spec      string
	batchSize int
	cron      *cron.Cron
}

// NewScheduler rejects an unparseable cron spec up front
func NewScheduler(
	cfg *config.SchedulerConfig,
	goalRepo goal.Repository,
	producer producers.MessagePublisher,
	metrics ScheduleMetrics,
	clock shared.Clock,
	logger *slog.Logger,
) (*Scheduler, error) {
	if _, err := cron.ParseStandard(cfg.Cron); err != nil {
		return nil, fmt.Errorf("invalid scheduler cron spec %q: %w", cfg.Cron, err)
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("scheduler batch size must be positive, got %d", cfg.BatchSize)
	}
	if clock == nil {
		clock = shared.SystemClock
	}
	return &Scheduler{
		goalRepo:  goalRepo,
		producer:  producer,
		metrics:   metrics,
		clock:     clock,
		logger:    logger,
		spec:      cfg.Cron,
		batchSize: cfg.BatchSize,
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
	}, nil
}

// Start runs the schedule until ctx is cancelled, then waits for a running
// pass to finish
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Error("Scheduled contribution pass finished with errors", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to register scheduler job: %w", err)
	}

	s.logger.Info("Starting contribution scheduler", "cron", s.spec, "batch_size", s.batchSize)
	s.cron.Start()

	<-ctx.Done()
	s.logger.Info("Contribution scheduler stopping due to context cancellation.")
	<-s.cron.Stop().Done()
	return nil
}

// RunOnce publishes one command per goal due today and returns how many were
// published. Due goals are read in pages of the batch size until none are left,
// so goals whose contributions keep being rejected cannot crowd out the rest. A
// failed publish does not stop the pass; the goal stays due and is picked up
// again on the next run.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	now := s.clock.Now()
	today := shared.DateOf(now)

	var (
		published int
		pages     int
		errs      []error
		after     = uuid.Nil
	)
	for {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		goals, err := s.goalRepo.ListDue(ctx, today, after, s.batchSize)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to list due goals: %w", err))
			break
		}
		if len(goals) == 0 {
			break
		}
		pages++

		for _, g := range goals {
			if err := s.publish(ctx, g, today, now); err != nil {
				errs = append(errs, fmt.Errorf("goal %s: %w", g.ID, err))
				continue
			}
			published++
		}

		if len(goals) < s.batchSize {
			break
		}
		after = goals[len(goals)-1].ID
	}

	if pages == 0 && len(errs) == 0 {
		s.logger.Debug("No goals due for a scheduled contribution", "day", today.Format(time.DateOnly))
	} else {
		s.logger.Info("Scheduled contribution pass finished",
			"day", today.Format(time.DateOnly),
			"pages", pages,
			"published", published,
			"failed", len(errs),
		)
	}
	return published, errors.Join(errs...)
}

func (s *Scheduler) publish(ctx context.Context, g *goal.Goal, today, now time.Time) error {
	due := today
	if g.NextContributionDate != nil {
		due = *g.NextContributionDate
	}
	cmd := goal.NewScheduledContribution(g, due, now)

	if err := s.producer.Publish(ctx, g.ID.String(), cmd); err != nil {
		s.logger.Error("Failed to publish scheduled contribution",
			"goal_id", g.ID.String(),
			"idempotency_key", cmd.IdempotencyKey,
			"error", err,
		)
		return err
	}
	s.metrics.IncrScheduled()
	s.logger.Info("Scheduled contribution published",
		"goal_id", g.ID.String(),
		"amount", cmd.Amount,
		"idempotency_key", cmd.IdempotencyKey,
		"correlation_id", cmd.CorrelationID,
	)
	return nil
}

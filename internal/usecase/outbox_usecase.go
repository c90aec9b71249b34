package usecase

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/patrickngure45/tradesynapse-core/internal/domain"
	"github.com/patrickngure45/tradesynapse-core/internal/infrastructure/metrics"
)

// OutboxConfig bounds one dispatch invocation and the retry policy.
type OutboxConfig struct {
	BatchSize    int
	LockTTL      time.Duration
	Topics       []string
	MaxAttempts  int
	RetryBackoff time.Duration
	MaxBackoff   time.Duration
}

// DispatchSummary is the structured result of one dispatch invocation.
type DispatchSummary struct {
	Claimed      int
	Published    int
	Failed       int
	DeadLettered int
	StoppedEarly bool
	StopReason   string
}

// OutboxUseCase drains the durable outbox into the publisher with
// at-least-once semantics. Lease fencing: every terminal transition presents
// the lock id issued at claim time, so a worker whose lease expired cannot
// double-ack an event another worker has since reclaimed.
type OutboxUseCase struct {
	outboxRepo OutboxRepository
	publisher  Publisher
	cfg        OutboxConfig
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

func NewOutboxUseCase(
	outboxRepo OutboxRepository,
	publisher Publisher,
	cfg OutboxConfig,
	metrics *metrics.Metrics,
	logger zerolog.Logger,
) *OutboxUseCase {
	return &OutboxUseCase{
		outboxRepo: outboxRepo,
		publisher:  publisher,
		cfg:        cfg,
		metrics:    metrics,
		logger:     logger.With().Str("component", "outbox_dispatcher").Logger(),
	}
}

// Dispatch claims one batch and publishes it. Publish failures reschedule the
// event with exponential delay; events past MaxAttempts are dead-lettered and
// wait for operator action.
func (uc *OutboxUseCase) Dispatch(ctx context.Context, budget time.Duration) (*DispatchSummary, error) {
	deadline := time.Now().Add(budget)
	summary := &DispatchSummary{}

	events, lockID, err := uc.outboxRepo.ClaimBatch(ctx, uc.cfg.BatchSize, uc.cfg.LockTTL, uc.cfg.Topics)
	if err != nil {
		return summary, err
	}
	summary.Claimed = len(events)

	for _, event := range events {
		if time.Now().After(deadline) || ctx.Err() != nil {
			// Unprocessed claims simply expire with the lease.
			summary.StoppedEarly = true
			summary.StopReason = StopReasonTimeBudget
			break
		}

		if err := uc.dispatchOne(ctx, event, lockID, summary); err != nil {
			uc.logger.Error().Err(err).Str("event_id", event.ID).Msg("outbox transition failed")
		}
	}

	return summary, nil
}

func (uc *OutboxUseCase) dispatchOne(ctx context.Context, event *domain.OutboxEvent, lockID string, summary *DispatchSummary) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		// Structurally unprocessable, retrying cannot help.
		summary.DeadLettered++
		return uc.outboxRepo.DeadLetter(ctx, event.ID, lockID, "payload marshal: "+err.Error())
	}

	if err := uc.publisher.Publish(ctx, event.Topic, event.AggregateRef, payload); err != nil {
		attempts := event.Attempts + 1
		if attempts >= uc.cfg.MaxAttempts {
			summary.DeadLettered++
			if uc.metrics != nil {
				uc.metrics.OutboxDeadLettered.Inc()
			}
			return uc.outboxRepo.DeadLetter(ctx, event.ID, lockID, err.Error())
		}

		summary.Failed++
		if uc.metrics != nil {
			uc.metrics.OutboxFailed.Inc()
		}
		return uc.outboxRepo.Fail(ctx, event.ID, lockID, err.Error(), time.Now().Add(uc.backoffFor(attempts)))
	}

	summary.Published++
	if uc.metrics != nil {
		uc.metrics.OutboxPublished.WithLabelValues(event.Topic).Inc()
	}
	return uc.outboxRepo.Ack(ctx, event.ID, lockID)
}

// backoffFor doubles the base delay per attempt, capped at MaxBackoff.
func (uc *OutboxUseCase) backoffFor(attempts int) time.Duration {
	delay := uc.cfg.RetryBackoff
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= uc.cfg.MaxBackoff {
			return uc.cfg.MaxBackoff
		}
	}
	return delay
}

// RetryDeadLetter puts a dead-lettered event back on the queue.
func (uc *OutboxUseCase) RetryDeadLetter(ctx context.Context, id string) error {
	return uc.outboxRepo.RetryDeadLetter(ctx, id)
}

// ResolveDeadLetter marks a dead-lettered event processed without retrying.
func (uc *OutboxUseCase) ResolveDeadLetter(ctx context.Context, id string) error {
	return uc.outboxRepo.ResolveDeadLetter(ctx, id)
}

// PurgeProcessed deletes processed events older than the retention horizon.
func (uc *OutboxUseCase) PurgeProcessed(ctx context.Context, before time.Time) (int64, error) {
	return uc.outboxRepo.PurgeProcessed(ctx, before)
}

package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/patrickngure45/tradesynapse-core/internal/domain"
	"github.com/patrickngure45/tradesynapse-core/internal/usecase"
)

// OutboxRepository implements usecase.OutboxRepository.
type OutboxRepository struct {
	pool dbPool
}

// NewOutboxRepository creates a new OutboxRepository.
func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

// Enqueue inserts an event inside the producing transaction, so the event
// exists if and only if the business mutation committed.
func (r *OutboxRepository) Enqueue(ctx context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal outbox payload: %w", err)
	}

	_, err = querier(tx).Exec(ctx, `
		INSERT INTO outbox_events (id, topic, aggregate_ref, payload, attempts, visible_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.ID, event.Topic, event.AggregateRef, payload, event.Attempts, event.VisibleAt, event.CreatedAt)
	return err
}

// ClaimBatch claims up to limit due events under one fresh lock id.
// FOR UPDATE SKIP LOCKED lets concurrent claimers take disjoint batches
// without blocking on each other's row locks.
func (r *OutboxRepository) ClaimBatch(ctx context.Context, limit int, lockTTL time.Duration, topics []string) ([]*domain.OutboxEvent, string, error) {
	now := time.Now().UTC()
	lockID := uuid.NewString()
	lockCutoff := now.Add(-lockTTL)

	var topicsArg any
	if len(topics) > 0 {
		topicsArg = topics
	}

	rows, err := r.pool.Query(ctx, `
		WITH claimable AS (
			SELECT id FROM outbox_events
			WHERE processed_at IS NULL
			  AND dead_lettered_at IS NULL
			  AND visible_at <= $1
			  AND (locked_at IS NULL OR locked_at < $2)
			  AND ($3::text[] IS NULL OR topic = ANY($3))
			ORDER BY visible_at
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		UPDATE outbox_events o
		SET locked_at = $1, lock_id = $5
		FROM claimable c
		WHERE o.id = c.id
		RETURNING o.id, o.topic, o.aggregate_ref, o.payload, o.attempts, o.last_error,
		          o.visible_at, o.locked_at, o.lock_id, o.processed_at, o.dead_lettered_at, o.created_at`,
		now, lockCutoff, topicsArg, limit, lockID)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	events := make([]*domain.OutboxEvent, 0, limit)
	for rows.Next() {
		event, err := scanOutboxEvent(rows)
		if err != nil {
			return nil, "", err
		}
		events = append(events, event)
	}

	return events, lockID, rows.Err()
}

// Ack marks an event processed. The lock id guard fences out workers whose
// lease expired and was reclaimed.
func (r *OutboxRepository) Ack(ctx context.Context, id, lockID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE outbox_events SET processed_at = $3, locked_at = NULL, lock_id = NULL
		WHERE id = $1 AND lock_id = $2 AND processed_at IS NULL`,
		id, lockID, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOutboxLockMismatch
	}
	return nil
}

// Fail records the error, reschedules visibility and releases the lock.
func (r *OutboxRepository) Fail(ctx context.Context, id, lockID, lastError string, nextVisibleAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE outbox_events
		SET attempts = attempts + 1, last_error = $3, visible_at = $4,
		    locked_at = NULL, lock_id = NULL
		WHERE id = $1 AND lock_id = $2 AND processed_at IS NULL AND dead_lettered_at IS NULL`,
		id, lockID, lastError, nextVisibleAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOutboxLockMismatch
	}
	return nil
}

// DeadLetter parks the event until an operator retries or resolves it.
func (r *OutboxRepository) DeadLetter(ctx context.Context, id, lockID, lastError string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE outbox_events
		SET attempts = attempts + 1, last_error = $3, dead_lettered_at = $4,
		    locked_at = NULL, lock_id = NULL
		WHERE id = $1 AND lock_id = $2 AND processed_at IS NULL AND dead_lettered_at IS NULL`,
		id, lockID, lastError, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOutboxLockMismatch
	}
	return nil
}

// RetryDeadLetter puts a dead-lettered event back on the queue with a fresh
// attempt budget.
func (r *OutboxRepository) RetryDeadLetter(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE outbox_events
		SET dead_lettered_at = NULL, attempts = 0, visible_at = $2
		WHERE id = $1 AND dead_lettered_at IS NOT NULL`,
		id, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOutboxNotDead
	}
	return nil
}

// ResolveDeadLetter marks a dead-lettered event processed without retrying.
// The dead-letter timestamp is kept as history.
func (r *OutboxRepository) ResolveDeadLetter(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE outbox_events SET processed_at = $2
		WHERE id = $1 AND dead_lettered_at IS NOT NULL AND processed_at IS NULL`,
		id, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOutboxNotDead
	}
	return nil
}

// ListDeadLettered returns parked events for operator inspection, oldest
// first. Resolved events are excluded.
func (r *OutboxRepository) ListDeadLettered(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, topic, aggregate_ref, payload, attempts, last_error,
		       visible_at, locked_at, lock_id, processed_at, dead_lettered_at, created_at
		FROM outbox_events
		WHERE dead_lettered_at IS NOT NULL AND processed_at IS NULL
		ORDER BY dead_lettered_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]*domain.OutboxEvent, 0, limit)
	for rows.Next() {
		event, err := scanOutboxEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	return events, rows.Err()
}

// PurgeProcessed deletes processed events older than the given time.
func (r *OutboxRepository) PurgeProcessed(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		"DELETE FROM outbox_events WHERE processed_at IS NOT NULL AND processed_at < $1", before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanOutboxEvent(row pgx.Row) (*domain.OutboxEvent, error) {
	var (
		event   domain.OutboxEvent
		payload []byte
	)
	err := row.Scan(&event.ID, &event.Topic, &event.AggregateRef, &payload, &event.Attempts,
		&event.LastError, &event.VisibleAt, &event.LockedAt, &event.LockID,
		&event.ProcessedAt, &event.DeadLetteredAt, &event.CreatedAt)
	if err != nil {
		return nil, err
	}

	if payload != nil {
		_ = json.Unmarshal(payload, &event.Payload)
	}

	return &event, nil
}

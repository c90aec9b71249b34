package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/patrickngure45/tradesynapse-core/internal/domain"
)

// JobLockRepository implements usecase.JobLockRepository as a leased row per
// job key.
type JobLockRepository struct {
	pool dbPool
}

// NewJobLockRepository creates a new JobLockRepository.
func NewJobLockRepository(pool *pgxpool.Pool) *JobLockRepository {
	return &JobLockRepository{pool: pool}
}

// TryAcquire takes the lease if it is unheld, expired, or already ours
// (re-entrant renewal). On contention it returns the current lock alongside
// domain.ErrJobLockHeld so callers can report who holds it.
func (r *JobLockRepository) TryAcquire(ctx context.Context, key, holderID string, ttl time.Duration) (*domain.JobLock, error) {
	now := time.Now().UTC()

	var lock domain.JobLock
	err := r.pool.QueryRow(ctx, `
		INSERT INTO job_locks (key, holder_id, held_until, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE
		SET holder_id = EXCLUDED.holder_id, held_until = EXCLUDED.held_until, updated_at = EXCLUDED.updated_at
		WHERE job_locks.held_until <= $4 OR job_locks.holder_id = EXCLUDED.holder_id
		RETURNING key, holder_id, held_until, updated_at`,
		key, holderID, now.Add(ttl), now).
		Scan(&lock.Key, &lock.HolderID, &lock.HeldUntil, &lock.UpdatedAt)
	if err == nil {
		return &lock, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	// Conflicted away: another holder has a live lease. Report it.
	current, err := r.get(ctx, key)
	if err != nil {
		return nil, err
	}
	return current, domain.ErrJobLockHeld
}

// Renew extends the lease; only the current holder may do so.
func (r *JobLockRepository) Renew(ctx context.Context, key, holderID string, ttl time.Duration) error {
	now := time.Now().UTC()
	tag, err := r.pool.Exec(ctx, `
		UPDATE job_locks SET held_until = $3, updated_at = $4
		WHERE key = $1 AND holder_id = $2 AND held_until > $4`,
		key, holderID, now.Add(ttl), now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobLockHeld
	}
	return nil
}

// Release drops the lease early; a mismatch (lost or stolen lease) is not an
// error worth failing a completed job over, so only true lock conflicts are
// reported.
func (r *JobLockRepository) Release(ctx context.Context, key, holderID string) error {
	_, err := r.pool.Exec(ctx,
		"DELETE FROM job_locks WHERE key = $1 AND holder_id = $2", key, holderID)
	if err != nil {
		return fmt.Errorf("failed to release job lock: %w", err)
	}
	return nil
}

// List returns all current lock rows for operator inspection.
func (r *JobLockRepository) List(ctx context.Context) ([]*domain.JobLock, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT key, holder_id, held_until, updated_at FROM job_locks ORDER BY key")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locks []*domain.JobLock
	for rows.Next() {
		var lock domain.JobLock
		if err := rows.Scan(&lock.Key, &lock.HolderID, &lock.HeldUntil, &lock.UpdatedAt); err != nil {
			return nil, err
		}
		locks = append(locks, &lock)
	}

	return locks, rows.Err()
}

func (r *JobLockRepository) get(ctx context.Context, key string) (*domain.JobLock, error) {
	var lock domain.JobLock
	err := r.pool.QueryRow(ctx,
		"SELECT key, holder_id, held_until, updated_at FROM job_locks WHERE key = $1", key).
		Scan(&lock.Key, &lock.HolderID, &lock.HeldUntil, &lock.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrJobLockHeld
		}
		return nil, err
	}
	return &lock, nil
}

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/patrickngure45/tradesynapse-core/internal/domain"
	"github.com/patrickngure45/tradesynapse-core/internal/usecase"
)

// DepositRepository implements usecase.DepositRepository.
type DepositRepository struct {
	pool dbPool
}

// NewDepositRepository creates a new DepositRepository.
func NewDepositRepository(pool *pgxpool.Pool) *DepositRepository {
	return &DepositRepository{pool: pool}
}

const depositColumns = "id, chain, tx_hash, log_index, block_number, from_address, to_address, user_id, asset, amount, status, journal_ref, created_at, confirmed_at"

// InsertPending records an observed transfer. The unique key on
// (chain, tx_hash, log_index) makes a duplicate insert a no-op; the returned
// bool reports whether this call created the row.
func (r *DepositRepository) InsertPending(ctx context.Context, event *domain.DepositEvent) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO deposit_events
			(id, chain, tx_hash, log_index, block_number, from_address, to_address, user_id, asset, amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (chain, tx_hash, log_index) DO NOTHING`,
		event.ID, event.Chain, event.TxHash, event.LogIndex, event.BlockNumber,
		event.FromAddress, event.ToAddress, event.UserID, event.Asset,
		decimalToNumeric(event.Amount), string(event.Status), event.CreatedAt)
	if err != nil {
		return false, err
	}

	return tag.RowsAffected() > 0, nil
}

// GetByKey retrieves an event by its idempotency key.
func (r *DepositRepository) GetByKey(ctx context.Context, chain, txHash string, logIndex int) (*domain.DepositEvent, error) {
	row := r.pool.QueryRow(ctx,
		"SELECT "+depositColumns+" FROM deposit_events WHERE chain = $1 AND tx_hash = $2 AND log_index = $3",
		chain, txHash, logIndex)
	return scanDeposit(row)
}

// ListPendingBelow selects pending events at or below the safe tip, oldest
// blocks first.
func (r *DepositRepository) ListPendingBelow(ctx context.Context, chain string, maxBlock int64, limit int) ([]*domain.DepositEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+depositColumns+` FROM deposit_events
		WHERE chain = $1 AND status = 'pending' AND block_number <= $2
		ORDER BY block_number, log_index
		LIMIT $3`, chain, maxBlock, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]*domain.DepositEvent, 0, limit)
	for rows.Next() {
		event, err := scanDeposit(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	return events, rows.Err()
}

// MarkConfirmed moves a pending event to confirmed exactly once. The status
// guard makes a second confirmation attempt a no-op; the returned flag tells
// the caller whether this call performed the transition.
func (r *DepositRepository) MarkConfirmed(ctx context.Context, tx usecase.Transaction, id, journalRef string, at time.Time) (bool, error) {
	tag, err := querier(tx).Exec(ctx, `
		UPDATE deposit_events
		SET status = 'confirmed', journal_ref = $2, confirmed_at = $3
		WHERE id = $1 AND status = 'pending'`,
		id, journalRef, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// GetCursor returns the chain's watermark, or 0 when the chain has never
// been scanned.
func (r *DepositRepository) GetCursor(ctx context.Context, chain string) (int64, error) {
	var block int64
	err := r.pool.QueryRow(ctx,
		"SELECT last_scanned_block FROM deposit_cursors WHERE chain = $1", chain).
		Scan(&block)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}

	return block, nil
}

// AdvanceCursor moves the watermark forward, never backward, even under
// concurrent scans.
func (r *DepositRepository) AdvanceCursor(ctx context.Context, chain string, block int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO deposit_cursors (chain, last_scanned_block, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (chain) DO UPDATE
		SET last_scanned_block = GREATEST(deposit_cursors.last_scanned_block, EXCLUDED.last_scanned_block),
		    updated_at = EXCLUDED.updated_at`,
		chain, block, time.Now().UTC())
	return err
}

// ResetCursor force-sets the watermark in either direction. Operator tooling
// only; moving it backward makes the scanner re-observe the range, which the
// (chain, tx_hash, log_index) key absorbs as duplicates.
func (r *DepositRepository) ResetCursor(ctx context.Context, chain string, block int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO deposit_cursors (chain, last_scanned_block, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (chain) DO UPDATE
		SET last_scanned_block = EXCLUDED.last_scanned_block, updated_at = EXCLUDED.updated_at`,
		chain, block, time.Now().UTC())
	return err
}

func scanDeposit(row pgx.Row) (*domain.DepositEvent, error) {
	var (
		event       domain.DepositEvent
		amount      pgtype.Numeric
		status      string
		journalRef  *string
		confirmedAt *time.Time
	)
	err := row.Scan(&event.ID, &event.Chain, &event.TxHash, &event.LogIndex, &event.BlockNumber,
		&event.FromAddress, &event.ToAddress, &event.UserID, &event.Asset,
		&amount, &status, &journalRef, &event.CreatedAt, &confirmedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDepositNotFound
		}
		return nil, err
	}

	event.Amount = numericToDecimal(amount)
	event.Status = domain.DepositStatus(status)
	event.JournalRef = journalRef
	event.ConfirmedAt = confirmedAt
	return &event, nil
}

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/patrickngure45/tradesynapse-core/internal/domain"
	"github.com/patrickngure45/tradesynapse-core/internal/usecase"
)

// HoldRepository implements usecase.HoldRepository.
type HoldRepository struct {
	pool dbPool
}

// NewHoldRepository creates a new HoldRepository.
func NewHoldRepository(pool *pgxpool.Pool) *HoldRepository {
	return &HoldRepository{pool: pool}
}

const holdColumns = "id, account_id, asset, amount, remaining_amount, reason, status, created_at, updated_at"

// Create inserts a new hold.
func (r *HoldRepository) Create(ctx context.Context, tx usecase.Transaction, hold *domain.Hold) error {
	_, err := querier(tx).Exec(ctx, `
		INSERT INTO holds (id, account_id, asset, amount, remaining_amount, reason, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		hold.ID, hold.AccountID, hold.Asset,
		decimalToNumeric(hold.Amount), decimalToNumeric(hold.RemainingAmount),
		hold.Reason, string(hold.Status), hold.CreatedAt, hold.UpdatedAt)
	return err
}

// GetByID retrieves a hold by id.
func (r *HoldRepository) GetByID(ctx context.Context, id string) (*domain.Hold, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+holdColumns+" FROM holds WHERE id = $1", id)
	return scanHold(row)
}

// GetByIDForUpdate locks and retrieves a hold row.
func (r *HoldRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Hold, error) {
	row := querier(tx).QueryRow(ctx, "SELECT "+holdColumns+" FROM holds WHERE id = $1 FOR UPDATE", id)
	return scanHold(row)
}

// ActiveTotal sums remaining amounts of active holds inside the caller's
// transaction.
func (r *HoldRepository) ActiveTotal(ctx context.Context, tx usecase.Transaction, accountID string) (decimal.Decimal, error) {
	var sum pgtype.Numeric
	err := querier(tx).QueryRow(ctx, `
		SELECT COALESCE(SUM(remaining_amount), 0) FROM holds
		WHERE account_id = $1 AND status = 'active'`, accountID).
		Scan(&sum)
	if err != nil {
		return decimal.Zero, err
	}

	return numericToDecimal(sum), nil
}

// Update persists status and remaining amount.
func (r *HoldRepository) Update(ctx context.Context, tx usecase.Transaction, hold *domain.Hold) error {
	tag, err := querier(tx).Exec(ctx, `
		UPDATE holds SET remaining_amount = $2, status = $3, updated_at = $4 WHERE id = $1`,
		hold.ID, decimalToNumeric(hold.RemainingAmount), string(hold.Status), hold.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrHoldNotFound
	}
	return nil
}

// ListByAccount lists holds for an account, newest first.
func (r *HoldRepository) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.Hold, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT "+holdColumns+" FROM holds WHERE account_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3",
		accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	holds := make([]*domain.Hold, 0, limit)
	for rows.Next() {
		hold, err := scanHold(rows)
		if err != nil {
			return nil, err
		}
		holds = append(holds, hold)
	}

	return holds, rows.Err()
}

func scanHold(row pgx.Row) (*domain.Hold, error) {
	var (
		hold      domain.Hold
		amount    pgtype.Numeric
		remaining pgtype.Numeric
		status    string
	)
	err := row.Scan(&hold.ID, &hold.AccountID, &hold.Asset, &amount, &remaining,
		&hold.Reason, &status, &hold.CreatedAt, &hold.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrHoldNotFound
		}
		return nil, err
	}

	hold.Amount = numericToDecimal(amount)
	hold.RemainingAmount = numericToDecimal(remaining)
	hold.Status = domain.HoldStatus(status)
	return &hold, nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/patrickngure45/tradesynapse-core/internal/domain"
	"github.com/patrickngure45/tradesynapse-core/internal/usecase"
)

// AccountRepository implements usecase.AccountRepository.
type AccountRepository struct {
	pool  dbPool
	idGen usecase.IDGenerator
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(pool *pgxpool.Pool, idGen usecase.IDGenerator) *AccountRepository {
	return &AccountRepository{pool: pool, idGen: idGen}
}

const accountColumns = "id, user_id, asset, created_at"

// GetOrCreate upserts the (user, asset) account. The no-op DO UPDATE makes
// RETURNING yield the surviving row, so concurrent callers converge on it.
func (r *AccountRepository) GetOrCreate(ctx context.Context, tx usecase.Transaction, userID, asset string) (*domain.Account, error) {
	query := `
		INSERT INTO accounts (id, user_id, asset, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, asset) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING ` + accountColumns

	row := querier(tx).QueryRow(ctx, query, r.idGen.Generate(), userID, asset, time.Now().UTC())
	account, err := scanAccount(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert account: %w", err)
	}

	return account, nil
}

// GetByID retrieves an account by id.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = $1", id)
	return mapAccountErr(scanAccount(row))
}

// GetByUserAsset retrieves the (user, asset) account.
func (r *AccountRepository) GetByUserAsset(ctx context.Context, userID, asset string) (*domain.Account, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+accountColumns+" FROM accounts WHERE user_id = $1 AND asset = $2", userID, asset)
	return mapAccountErr(scanAccount(row))
}

// GetByIDForUpdate locks and retrieves an account row.
func (r *AccountRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Account, error) {
	row := querier(tx).QueryRow(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = $1 FOR UPDATE", id)
	return mapAccountErr(scanAccount(row))
}

// GetByIDsForUpdate locks multiple account rows in sorted id order so
// concurrent multi-account transactions cannot deadlock each other.
func (r *AccountRepository) GetByIDsForUpdate(ctx context.Context, tx usecase.Transaction, ids []string) ([]*domain.Account, error) {
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)

	rows, err := querier(tx).Query(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE id = ANY($1) ORDER BY id FOR UPDATE", sorted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]*domain.Account, 0, len(sorted))
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}

	return accounts, rows.Err()
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var account domain.Account
	if err := row.Scan(&account.ID, &account.UserID, &account.Asset, &account.CreatedAt); err != nil {
		return nil, err
	}
	return &account, nil
}

func mapAccountErr(account *domain.Account, err error) (*domain.Account, error) {
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

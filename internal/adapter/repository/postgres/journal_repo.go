package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/patrickngure45/tradesynapse-core/internal/domain"
	"github.com/patrickngure45/tradesynapse-core/internal/usecase"
)

// JournalRepository implements usecase.JournalRepository.
type JournalRepository struct {
	pool dbPool
}

// NewJournalRepository creates a new JournalRepository.
func NewJournalRepository(pool *pgxpool.Pool) *JournalRepository {
	return &JournalRepository{pool: pool}
}

// CreateEntry inserts the entry header and all lines. The unique index on
// reference turns a concurrent duplicate post into ErrDuplicateReference.
func (r *JournalRepository) CreateEntry(ctx context.Context, tx usecase.Transaction, entry *domain.JournalEntry) error {
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal entry metadata: %w", err)
	}

	_, err = querier(tx).Exec(ctx, `
		INSERT INTO journal_entries (id, type, reference, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		entry.ID, entry.Type, entry.Reference, metadata, entry.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return domain.ErrDuplicateReference
		}
		return fmt.Errorf("failed to insert journal entry: %w", err)
	}

	batch := &pgx.Batch{}
	for _, line := range entry.Lines {
		batch.Queue(`
			INSERT INTO journal_lines (id, entry_id, account_id, asset, amount, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			line.ID, line.EntryID, line.AccountID, line.Asset, decimalToNumeric(line.Amount), line.CreatedAt)
	}

	results := querier(tx).SendBatch(ctx, batch)
	defer results.Close()
	for range entry.Lines {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert journal line: %w", err)
		}
	}

	return nil
}

// GetEntryByReference retrieves an entry with its lines by business reference.
func (r *JournalRepository) GetEntryByReference(ctx context.Context, reference string) (*domain.JournalEntry, error) {
	return r.getEntryByReference(ctx, r.pool, reference)
}

// GetEntryByReferenceTx does the same inside the caller's transaction.
func (r *JournalRepository) GetEntryByReferenceTx(ctx context.Context, tx usecase.Transaction, reference string) (*domain.JournalEntry, error) {
	return r.getEntryByReference(ctx, querier(tx), reference)
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *JournalRepository) getEntryByReference(ctx context.Context, q rowQuerier, reference string) (*domain.JournalEntry, error) {
	var (
		entry    domain.JournalEntry
		metadata []byte
	)
	err := q.QueryRow(ctx, `
		SELECT id, type, reference, metadata, created_at
		FROM journal_entries WHERE reference = $1`, reference).
		Scan(&entry.ID, &entry.Type, &entry.Reference, &metadata, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEntryNotFound
		}
		return nil, err
	}

	if metadata != nil {
		_ = json.Unmarshal(metadata, &entry.Metadata)
	}

	rows, err := q.Query(ctx, `
		SELECT id, entry_id, account_id, asset, amount, created_at
		FROM journal_lines WHERE entry_id = $1 ORDER BY id`, entry.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		line, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		entry.Lines = append(entry.Lines, *line)
	}

	return &entry, rows.Err()
}

// PostedBalance sums the account's lines inside the caller's transaction.
func (r *JournalRepository) PostedBalance(ctx context.Context, tx usecase.Transaction, accountID string) (decimal.Decimal, error) {
	var sum pgtype.Numeric
	err := querier(tx).QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM journal_lines WHERE account_id = $1`, accountID).
		Scan(&sum)
	if err != nil {
		return decimal.Zero, err
	}

	return numericToDecimal(sum), nil
}

// ListLinesByAccount returns an account's lines, newest first.
func (r *JournalRepository) ListLinesByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.JournalLine, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, entry_id, account_id, asset, amount, created_at
		FROM journal_lines WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]*domain.JournalLine, 0, limit)
	for rows.Next() {
		line, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}

	return lines, rows.Err()
}

func scanLine(row pgx.Row) (*domain.JournalLine, error) {
	var (
		line   domain.JournalLine
		amount pgtype.Numeric
	)
	if err := row.Scan(&line.ID, &line.EntryID, &line.AccountID, &line.Asset, &amount, &line.CreatedAt); err != nil {
		return nil, err
	}
	line.Amount = numericToDecimal(amount)
	return &line, nil
}

package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/patrickngure45/tradesynapse-core/internal/domain"
	"github.com/patrickngure45/tradesynapse-core/internal/infrastructure/metrics"
)

// LedgerUseCase is the double-entry journal primitive everything else is
// built on.
type LedgerUseCase struct {
	txManager   TransactionManager
	accountRepo AccountRepository
	journalRepo JournalRepository
	holdRepo    HoldRepository
	outboxRepo  OutboxRepository
	idGen       IDGenerator
	metrics     *metrics.Metrics
}

func NewLedgerUseCase(
	txManager TransactionManager,
	accountRepo AccountRepository,
	journalRepo JournalRepository,
	holdRepo HoldRepository,
	outboxRepo OutboxRepository,
	idGen IDGenerator,
	metrics *metrics.Metrics,
) *LedgerUseCase {
	return &LedgerUseCase{
		txManager:   txManager,
		accountRepo: accountRepo,
		journalRepo: journalRepo,
		holdRepo:    holdRepo,
		outboxRepo:  outboxRepo,
		idGen:       idGen,
		metrics:     metrics,
	}
}

// GetOrCreateAccount lazily creates the (user, asset) account. Idempotent;
// concurrent callers converge on one row.
func (uc *LedgerUseCase) GetOrCreateAccount(ctx context.Context, userID, asset string) (*domain.Account, error) {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	account, err := uc.accountRepo.GetOrCreate(txCtx, tx, userID, asset)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}

	return account, nil
}

// LineInput is one signed movement in a journal entry request.
type LineInput struct {
	AccountID string
	Asset     string
	Amount    decimal.Decimal
}

// PostJournalEntryInput describes one atomic business event.
type PostJournalEntryInput struct {
	Type      string
	Reference string
	Metadata  map[string]any
	Lines     []LineInput
}

// PostJournalEntry posts a balanced entry in its own transaction. If an entry
// with the same reference already exists, it is returned as-is; retries are
// safe.
func (uc *LedgerUseCase) PostJournalEntry(ctx context.Context, input PostJournalEntryInput) (*domain.JournalEntry, error) {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	entry, err := uc.PostJournalEntryTx(txCtx, tx, input)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}

	return entry, nil
}

// PostJournalEntryTx posts an entry inside the caller's transaction. It locks
// every touched account row before reading or writing balance-relevant state.
func (uc *LedgerUseCase) PostJournalEntryTx(ctx context.Context, tx Transaction, input PostJournalEntryInput) (*domain.JournalEntry, error) {
	now := time.Now().UTC()

	entry := &domain.JournalEntry{
		ID:        uc.idGen.Generate(),
		Type:      input.Type,
		Reference: input.Reference,
		Metadata:  input.Metadata,
		CreatedAt: now,
	}
	for _, line := range input.Lines {
		entry.Lines = append(entry.Lines, domain.JournalLine{
			ID:        uc.idGen.Generate(),
			EntryID:   entry.ID,
			AccountID: line.AccountID,
			Asset:     line.Asset,
			Amount:    line.Amount,
			CreatedAt: now,
		})
	}

	if err := entry.Validate(); err != nil {
		return nil, err
	}

	// Serialize concurrent spenders of the touched accounts. The repo locks
	// in sorted id order to avoid lock cycles between entries.
	accounts, err := uc.accountRepo.GetByIDsForUpdate(ctx, tx, entry.AccountIDs())
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*domain.Account, len(accounts))
	for _, acc := range accounts {
		byID[acc.ID] = acc
	}
	for _, line := range entry.Lines {
		acc, ok := byID[line.AccountID]
		if !ok {
			return nil, domain.ErrAccountNotFound
		}
		if acc.Asset != line.Asset {
			return nil, domain.ErrAssetMismatch
		}
	}

	// Reference is the business-event idempotency key: an existing entry
	// means a retry, not a conflict.
	existing, err := uc.journalRepo.GetEntryByReferenceTx(ctx, tx, input.Reference)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrEntryNotFound) {
		return nil, err
	}

	if err := uc.journalRepo.CreateEntry(ctx, tx, entry); err != nil {
		return nil, err
	}

	event := &domain.OutboxEvent{
		ID:           uc.idGen.Generate(),
		Topic:        domain.TopicJournalPosted,
		AggregateRef: entry.Reference,
		Payload: map[string]any{
			"entry_id":  entry.ID,
			"type":      entry.Type,
			"reference": entry.Reference,
		},
		VisibleAt: now,
		CreatedAt: now,
	}
	if err := uc.outboxRepo.Enqueue(ctx, tx, event); err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.JournalEntriesPosted.WithLabelValues(entry.Type).Inc()
	}

	return entry, nil
}

// GetAvailableBalance reads posted, held and available under the account's
// row lock so the three numbers are mutually consistent.
func (uc *LedgerUseCase) GetAvailableBalance(ctx context.Context, accountID string) (*domain.Balances, error) {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	if _, err := uc.accountRepo.GetByIDForUpdate(txCtx, tx, accountID); err != nil {
		return nil, err
	}

	balances, err := uc.balancesLocked(txCtx, tx, accountID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}

	return balances, nil
}

func (uc *LedgerUseCase) balancesLocked(ctx context.Context, tx Transaction, accountID string) (*domain.Balances, error) {
	posted, err := uc.journalRepo.PostedBalance(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}

	held, err := uc.holdRepo.ActiveTotal(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}

	return &domain.Balances{
		Posted:    posted,
		Held:      held,
		Available: posted.Sub(held),
	}, nil
}

// GetEntryByReference looks an entry up by its business reference.
func (uc *LedgerUseCase) GetEntryByReference(ctx context.Context, reference string) (*domain.JournalEntry, error) {
	return uc.journalRepo.GetEntryByReference(ctx, reference)
}

// ListJournalLines returns an account's statement, newest first.
func (uc *LedgerUseCase) ListJournalLines(ctx context.Context, accountID string, limit, offset int) ([]*domain.JournalLine, error) {
	if limit <= 0 || limit > DefaultListLimit {
		limit = DefaultListLimit
	}
	return uc.journalRepo.ListLinesByAccount(ctx, accountID, limit, offset)
}

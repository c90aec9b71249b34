package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/patrickngure45/tradesynapse-core/internal/domain"
	"github.com/patrickngure45/tradesynapse-core/internal/infrastructure/metrics"
)

// HoldUseCase implements escrow reservations on top of the ledger's balance
// view. State machine: active -> consumed (funds moved via a paired journal
// entry) or active -> released (capacity returned). Both are terminal.
type HoldUseCase struct {
	txManager   TransactionManager
	accountRepo AccountRepository
	holdRepo    HoldRepository
	outboxRepo  OutboxRepository
	ledger      *LedgerUseCase
	idGen       IDGenerator
	metrics     *metrics.Metrics
}

func NewHoldUseCase(
	txManager TransactionManager,
	accountRepo AccountRepository,
	holdRepo HoldRepository,
	outboxRepo OutboxRepository,
	ledger *LedgerUseCase,
	idGen IDGenerator,
	metrics *metrics.Metrics,
) *HoldUseCase {
	return &HoldUseCase{
		txManager:   txManager,
		accountRepo: accountRepo,
		holdRepo:    holdRepo,
		outboxRepo:  outboxRepo,
		ledger:      ledger,
		idGen:       idGen,
		metrics:     metrics,
	}
}

// CreateHold reserves amount against the account's available balance. The
// available check runs under the account's row lock, so concurrent holds on
// one account serialize and can never jointly overdraw it.
func (uc *HoldUseCase) CreateHold(ctx context.Context, accountID, asset string, amount decimal.Decimal, reason string) (*domain.Hold, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, domain.ErrInvalidAmount
	}

	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	account, err := uc.accountRepo.GetByIDForUpdate(txCtx, tx, accountID)
	if err != nil {
		return nil, err
	}
	if account.Asset != asset {
		return nil, domain.ErrHoldAssetMismatch
	}

	balances, err := uc.ledger.balancesLocked(txCtx, tx, accountID)
	if err != nil {
		return nil, err
	}
	if balances.Available.LessThan(amount) {
		return nil, domain.ErrInsufficientFunds
	}

	now := time.Now().UTC()
	hold := &domain.Hold{
		ID:              uc.idGen.Generate(),
		AccountID:       accountID,
		Asset:           asset,
		Amount:          amount,
		RemainingAmount: amount,
		Reason:          reason,
		Status:          domain.HoldStatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := hold.Validate(); err != nil {
		return nil, err
	}

	if err := uc.holdRepo.Create(txCtx, tx, hold); err != nil {
		return nil, err
	}

	if err := uc.enqueueHoldEvent(txCtx, tx, domain.TopicHoldCreated, hold, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.HoldsCreated.Inc()
	}

	return hold, nil
}

// ConsumeHoldInput identifies the hold and the movement it settles. AccountID
// and Asset are the caller's expectation and are checked against the hold row
// to catch cross-order reuse bugs. A nil Amount consumes the full remaining
// amount.
type ConsumeHoldInput struct {
	HoldID           string
	AccountID        string
	Asset            string
	Amount           *decimal.Decimal
	Reference        string
	EntryType        string
	CounterAccountID string
	Metadata         map[string]any
}

// ConsumeHold moves held funds out of the holder's posted balance via a
// paired journal entry. Idempotent: an already-consumed hold returns success
// without re-posting, which makes crash-recovery retries safe when the
// journal entry committed but the status update did not.
func (uc *HoldUseCase) ConsumeHold(ctx context.Context, input ConsumeHoldInput) error {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	hold, err := uc.holdRepo.GetByIDForUpdate(txCtx, tx, input.HoldID)
	if err != nil {
		return err
	}

	if hold.AccountID != input.AccountID {
		return domain.ErrHoldAccountMismatch
	}
	if hold.Asset != input.Asset {
		return domain.ErrHoldAssetMismatch
	}

	switch hold.Status {
	case domain.HoldStatusConsumed:
		return nil
	case domain.HoldStatusReleased:
		return domain.ErrHoldStatusConflict
	}

	// The journal entry and the hold decrement commit in one transaction, so
	// an entry already existing under this reference means a prior consume
	// fully completed. The replay must leave the hold row untouched.
	_, lookupErr := uc.ledger.journalRepo.GetEntryByReferenceTx(txCtx, tx, input.Reference)
	if lookupErr == nil {
		return nil
	}
	if !errors.Is(lookupErr, domain.ErrEntryNotFound) {
		return lookupErr
	}

	amount := hold.RemainingAmount
	if input.Amount != nil {
		amount = *input.Amount
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return domain.ErrInvalidAmount
	}
	if amount.GreaterThan(hold.RemainingAmount) {
		return domain.ErrHoldAmountExceeded
	}

	entryType := input.EntryType
	if entryType == "" {
		entryType = domain.EntryTypeP2PSettle
	}

	_, err = uc.ledger.PostJournalEntryTx(txCtx, tx, PostJournalEntryInput{
		Type:      entryType,
		Reference: input.Reference,
		Metadata:  input.Metadata,
		Lines: []LineInput{
			{AccountID: hold.AccountID, Asset: hold.Asset, Amount: amount.Neg()},
			{AccountID: input.CounterAccountID, Asset: hold.Asset, Amount: amount},
		},
	})
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	hold.RemainingAmount = hold.RemainingAmount.Sub(amount)
	if hold.RemainingAmount.IsZero() {
		hold.Status = domain.HoldStatusConsumed
	}
	hold.UpdatedAt = now

	if err := uc.holdRepo.Update(txCtx, tx, hold); err != nil {
		return err
	}

	if err := uc.enqueueHoldEvent(txCtx, tx, domain.TopicHoldConsumed, hold, now); err != nil {
		return err
	}

	if err := tx.Commit(txCtx); err != nil {
		return err
	}

	if uc.metrics != nil {
		uc.metrics.HoldsConsumed.Inc()
	}

	return nil
}

// ReleaseHold returns the reserved capacity without moving funds. A hold that
// is already terminal is left untouched.
func (uc *HoldUseCase) ReleaseHold(ctx context.Context, holdID string) error {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	hold, err := uc.holdRepo.GetByIDForUpdate(txCtx, tx, holdID)
	if err != nil {
		return err
	}

	if hold.Terminal() {
		return nil
	}

	now := time.Now().UTC()
	hold.Status = domain.HoldStatusReleased
	hold.UpdatedAt = now

	if err := uc.holdRepo.Update(txCtx, tx, hold); err != nil {
		return err
	}

	if err := uc.enqueueHoldEvent(txCtx, tx, domain.TopicHoldReleased, hold, now); err != nil {
		return err
	}

	if err := tx.Commit(txCtx); err != nil {
		return err
	}

	if uc.metrics != nil {
		uc.metrics.HoldsReleased.Inc()
	}

	return nil
}

// GetHold retrieves a hold by id.
func (uc *HoldUseCase) GetHold(ctx context.Context, holdID string) (*domain.Hold, error) {
	return uc.holdRepo.GetByID(ctx, holdID)
}

// ListHoldsByAccount retrieves holds for an account, newest first.
func (uc *HoldUseCase) ListHoldsByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.Hold, error) {
	if limit <= 0 || limit > DefaultListLimit {
		limit = DefaultListLimit
	}
	return uc.holdRepo.ListByAccount(ctx, accountID, limit, offset)
}

func (uc *HoldUseCase) enqueueHoldEvent(ctx context.Context, tx Transaction, topic string, hold *domain.Hold, now time.Time) error {
	return uc.outboxRepo.Enqueue(ctx, tx, &domain.OutboxEvent{
		ID:           uc.idGen.Generate(),
		Topic:        topic,
		AggregateRef: hold.ID,
		Payload: map[string]any{
			"hold_id":    hold.ID,
			"account_id": hold.AccountID,
			"asset":      hold.Asset,
			"amount":     hold.Amount.String(),
			"remaining":  hold.RemainingAmount.String(),
			"reason":     hold.Reason,
		},
		VisibleAt: now,
		CreatedAt: now,
	})
}

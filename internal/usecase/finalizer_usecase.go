package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/patrickngure45/tradesynapse-core/internal/domain"
	"github.com/patrickngure45/tradesynapse-core/internal/infrastructure/metrics"
)

// FinalizerConfig bounds one scheduled finalize invocation.
type FinalizerConfig struct {
	Chain                 string
	RequiredConfirmations int64
	BatchSize             int
}

// FinalizeSummary is the structured result of one finalize invocation.
type FinalizeSummary struct {
	Chain           string
	SafeTip         int64
	Selected        int
	Credited        int
	AlreadyCredited int
	Skipped         int
	StoppedEarly    bool
	StopReason      string
}

// FinalizerUseCase is the payout phase of deposit ingestion: it credits
// pending deposit events that have dropped below the safe tip, exactly once
// each, and marks them confirmed.
type FinalizerUseCase struct {
	txManager   TransactionManager
	gateway     ChainGateway
	depositRepo DepositRepository
	accountRepo AccountRepository
	outboxRepo  OutboxRepository
	ledger      *LedgerUseCase
	notifier    Notifier
	idGen       IDGenerator
	retrier     Retrier
	cfg         FinalizerConfig
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

func NewFinalizerUseCase(
	txManager TransactionManager,
	gateway ChainGateway,
	depositRepo DepositRepository,
	accountRepo AccountRepository,
	outboxRepo OutboxRepository,
	ledger *LedgerUseCase,
	notifier Notifier,
	idGen IDGenerator,
	retrier Retrier,
	cfg FinalizerConfig,
	metrics *metrics.Metrics,
	logger zerolog.Logger,
) *FinalizerUseCase {
	return &FinalizerUseCase{
		txManager:   txManager,
		gateway:     gateway,
		depositRepo: depositRepo,
		accountRepo: accountRepo,
		outboxRepo:  outboxRepo,
		ledger:      ledger,
		notifier:    notifier,
		idGen:       idGen,
		retrier:     retrier,
		cfg:         cfg,
		metrics:     metrics,
		logger:      logger.With().Str("component", "deposit_finalizer").Str("chain", cfg.Chain).Logger(),
	}
}

// FinalizeDeposits credits every pending event at or below the safe tip,
// within the time budget. Each event is finalized in its own transaction, so
// one bad event cannot poison the batch and a mid-batch stop loses nothing.
func (uc *FinalizerUseCase) FinalizeDeposits(ctx context.Context, budget time.Duration) (*FinalizeSummary, error) {
	deadline := time.Now().Add(budget)
	summary := &FinalizeSummary{Chain: uc.cfg.Chain}

	height, err := uc.gateway.BlockHeight(ctx)
	if err != nil {
		return summary, err
	}
	summary.SafeTip = height - uc.cfg.RequiredConfirmations

	pending, err := uc.depositRepo.ListPendingBelow(ctx, uc.cfg.Chain, summary.SafeTip, uc.cfg.BatchSize)
	if err != nil {
		return summary, err
	}
	summary.Selected = len(pending)

	for _, event := range pending {
		if time.Now().After(deadline) || ctx.Err() != nil {
			summary.StoppedEarly = true
			summary.StopReason = StopReasonTimeBudget
			break
		}

		var credited bool
		err := uc.withRetry(ctx, func() error {
			var oneErr error
			credited, oneErr = uc.finalizeOne(ctx, event)
			return oneErr
		})
		if err != nil {
			summary.Skipped++
			uc.logger.Error().Err(err).
				Str("tx_hash", event.TxHash).Int("log_index", event.LogIndex).
				Msg("failed to finalize deposit, will retry next run")
			continue
		}

		if credited {
			summary.Credited++
		} else {
			summary.AlreadyCredited++
		}
	}

	uc.logger.Info().
		Int("selected", summary.Selected).
		Int("credited", summary.Credited).
		Int("already_credited", summary.AlreadyCredited).
		Int("skipped", summary.Skipped).
		Bool("stopped_early", summary.StoppedEarly).
		Msg("finalize finished")

	return summary, nil
}

func (uc *FinalizerUseCase) withRetry(ctx context.Context, operation func() error) error {
	if uc.retrier == nil {
		return operation()
	}
	return uc.retrier.Retry(ctx, operation)
}

// finalizeOne posts the credit and marks the event confirmed in one
// transaction. Re-running after a crash is safe: the journal lookup by
// reference finds the committed entry and only the status update remains.
func (uc *FinalizerUseCase) finalizeOne(ctx context.Context, event *domain.DepositEvent) (credited bool, err error) {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	userAccount, err := uc.accountRepo.GetOrCreate(txCtx, tx, event.UserID, event.Asset)
	if err != nil {
		return false, err
	}
	systemAccount, err := uc.accountRepo.GetOrCreate(txCtx, tx, domain.SystemUserID, event.Asset)
	if err != nil {
		return false, err
	}

	reference := event.JournalReference()

	_, lookupErr := uc.ledger.journalRepo.GetEntryByReferenceTx(txCtx, tx, reference)
	switch {
	case lookupErr == nil:
		// Journal committed on a prior attempt; just finish marking the
		// event confirmed.
		credited = false
	case errors.Is(lookupErr, domain.ErrEntryNotFound):
		_, err = uc.ledger.PostJournalEntryTx(txCtx, tx, PostJournalEntryInput{
			Type:      domain.EntryTypeDepositCredit,
			Reference: reference,
			Metadata: map[string]any{
				"chain":     event.Chain,
				"tx_hash":   event.TxHash,
				"log_index": event.LogIndex,
			},
			Lines: []LineInput{
				{AccountID: systemAccount.ID, Asset: event.Asset, Amount: event.Amount.Neg()},
				{AccountID: userAccount.ID, Asset: event.Asset, Amount: event.Amount},
			},
		})
		if err != nil {
			return false, err
		}
		credited = true
	default:
		return false, lookupErr
	}

	now := time.Now().UTC()
	updated, err := uc.depositRepo.MarkConfirmed(txCtx, tx, event.ID, reference, now)
	if err != nil {
		return false, err
	}
	if !updated {
		// Another run confirmed the event between selection and here; it has
		// already emitted the outbox event and notification.
		return false, tx.Commit(txCtx)
	}

	outboxEvent := &domain.OutboxEvent{
		ID:           uc.idGen.Generate(),
		Topic:        domain.TopicDepositConfirmed,
		AggregateRef: reference,
		Payload: map[string]any{
			"chain":       event.Chain,
			"tx_hash":     event.TxHash,
			"log_index":   event.LogIndex,
			"user_id":     event.UserID,
			"asset":       event.Asset,
			"amount":      event.Amount.String(),
			"journal_ref": reference,
		},
		VisibleAt: now,
		CreatedAt: now,
	}
	if err := uc.outboxRepo.Enqueue(txCtx, tx, outboxEvent); err != nil {
		return false, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return false, err
	}

	if uc.metrics != nil {
		uc.metrics.DepositsConfirmed.Inc()
	}

	// Best effort: the credit stands whether or not the user hears about it.
	if uc.notifier != nil {
		notifyErr := uc.notifier.Notify(ctx, domain.Notification{
			UserID: event.UserID,
			Type:   domain.NotificationDepositConfirmed,
			Title:  "Deposit confirmed",
			Body:   fmt.Sprintf("%s %s has been credited to your balance", event.Amount.String(), event.Asset),
			Metadata: map[string]any{
				"chain":   event.Chain,
				"tx_hash": event.TxHash,
			},
		})
		if notifyErr != nil {
			uc.logger.Warn().Err(notifyErr).Str("user_id", event.UserID).Msg("deposit notification failed")
		}
	}

	return credited, nil
}

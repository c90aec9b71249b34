package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/patrickngure45/tradesynapse-core/internal/domain"
	"github.com/patrickngure45/tradesynapse-core/internal/infrastructure/metrics"
)

// Stop reasons reported by batch-shaped operations.
const (
	StopReasonTimeBudget    = "time_budget"
	StopReasonBlockBudget   = "block_budget"
	StopReasonProviderError = "provider_error"
)

// ScannerConfig bounds one scheduled scan invocation.
type ScannerConfig struct {
	Chain                 string
	RequiredConfirmations int64
	BatchBlocks           int64
	MaxBlocksPerRun       int64
	LookbackBlocks        int64
	MaxAddresses          int
}

// ScanSummary is the structured result of one scan invocation, returned so
// pipeline health is observable without log scraping.
type ScanSummary struct {
	Chain            string
	SafeTip          int64
	FromBlock        int64
	ToBlock          int64
	LastScanned      int64
	NativeMatched    int
	TokenMatched     int
	Inserted         int
	Duplicates       int
	MalformedSkipped int
	LookbackInserted int
	StoppedEarly     bool
	StopReason       string
}

// ScannerUseCase is the observe phase of deposit ingestion: it records
// transfers into user-owned addresses as pending deposit events, exactly
// once, and advances the per-chain cursor only past fully processed ranges.
type ScannerUseCase struct {
	gateway     ChainGateway
	directory   AddressDirectory
	depositRepo DepositRepository
	idGen       IDGenerator
	cfg         ScannerConfig
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

func NewScannerUseCase(
	gateway ChainGateway,
	directory AddressDirectory,
	depositRepo DepositRepository,
	idGen IDGenerator,
	cfg ScannerConfig,
	metrics *metrics.Metrics,
	logger zerolog.Logger,
) *ScannerUseCase {
	return &ScannerUseCase{
		gateway:     gateway,
		directory:   directory,
		depositRepo: depositRepo,
		idGen:       idGen,
		cfg:         cfg,
		metrics:     metrics,
		logger:      logger.With().Str("component", "deposit_scanner").Str("chain", cfg.Chain).Logger(),
	}
}

// ScanChain runs one bounded scan. A provider error aborts the current
// sub-range without advancing the cursor past it; the summary always reports
// how far the scan got.
func (uc *ScannerUseCase) ScanChain(ctx context.Context, budget time.Duration) (*ScanSummary, error) {
	start := time.Now()
	deadline := start.Add(budget)
	summary := &ScanSummary{Chain: uc.cfg.Chain}

	if uc.metrics != nil {
		defer func() {
			uc.metrics.ScanDuration.Observe(time.Since(start).Seconds())
		}()
	}

	addresses, err := uc.directory.DepositAddresses(ctx, uc.cfg.Chain, uc.cfg.MaxAddresses)
	if err != nil {
		return summary, err
	}
	if len(addresses) == 0 {
		uc.logger.Debug().Msg("no deposit addresses registered, nothing to scan")
		return summary, nil
	}

	native, err := uc.directory.NativeAsset(ctx, uc.cfg.Chain)
	if err != nil {
		return summary, err
	}
	tokens, err := uc.directory.TokenAssets(ctx, uc.cfg.Chain)
	if err != nil {
		return summary, err
	}

	byContract := make(map[string]Asset, len(tokens))
	contracts := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if !token.Enabled || token.ContractAddress == "" {
			continue
		}
		contract := strings.ToLower(token.ContractAddress)
		byContract[contract] = token
		contracts = append(contracts, contract)
	}

	height, err := uc.gateway.BlockHeight(ctx)
	if err != nil {
		return summary, err
	}
	safeTip := height - uc.cfg.RequiredConfirmations
	summary.SafeTip = safeTip

	cursor, err := uc.depositRepo.GetCursor(ctx, uc.cfg.Chain)
	if err != nil {
		return summary, err
	}
	if cursor == 0 && safeTip > 0 {
		// First run on a chain: start at the current safe tip instead of
		// replaying history.
		if err := uc.depositRepo.AdvanceCursor(ctx, uc.cfg.Chain, safeTip); err != nil {
			return summary, err
		}
		summary.LastScanned = safeTip
		uc.logger.Info().Int64("safe_tip", safeTip).Msg("initialized scan cursor")
		return summary, nil
	}
	summary.LastScanned = cursor

	from := cursor + 1
	to := safeTip
	if uc.cfg.MaxBlocksPerRun > 0 && to > cursor+uc.cfg.MaxBlocksPerRun {
		to = cursor + uc.cfg.MaxBlocksPerRun
		summary.StoppedEarly = true
		summary.StopReason = StopReasonBlockBudget
	}
	summary.FromBlock = from
	summary.ToBlock = to

	for start := from; start <= to; start += uc.cfg.BatchBlocks {
		if time.Now().After(deadline) || ctx.Err() != nil {
			summary.StoppedEarly = true
			summary.StopReason = StopReasonTimeBudget
			break
		}

		end := start + uc.cfg.BatchBlocks - 1
		if end > to {
			end = to
		}

		if err := uc.scanRange(ctx, start, end, addresses, native, contracts, byContract, summary); err != nil {
			summary.StoppedEarly = true
			summary.StopReason = StopReasonProviderError
			uc.logger.Warn().Err(err).
				Int64("from", start).Int64("to", end).
				Msg("sub-range scan failed, cursor left before range")
			return summary, err
		}

		if err := uc.depositRepo.AdvanceCursor(ctx, uc.cfg.Chain, end); err != nil {
			return summary, err
		}
		summary.LastScanned = end

		if uc.metrics != nil {
			uc.metrics.BlocksScanned.Add(float64(end - start + 1))
		}
	}

	// Lookback: surface transfers in the not-yet-safe window as pending so
	// users see incoming deposits early. Never credits, never moves the
	// cursor; the confirmed scan above will cover these blocks again.
	if uc.cfg.LookbackBlocks > 0 && !summary.StoppedEarly {
		lbFrom := height - uc.cfg.LookbackBlocks + 1
		if lbFrom <= safeTip {
			lbFrom = safeTip + 1
		}
		if lbFrom <= height {
			before := summary.Inserted
			if err := uc.scanRange(ctx, lbFrom, height, addresses, native, contracts, byContract, summary); err != nil {
				uc.logger.Warn().Err(err).Msg("lookback scan failed")
			} else {
				summary.LookbackInserted = summary.Inserted - before
			}
		}
	}

	uc.logger.Info().
		Int64("from", summary.FromBlock).
		Int64("last_scanned", summary.LastScanned).
		Int("inserted", summary.Inserted).
		Int("duplicates", summary.Duplicates).
		Bool("stopped_early", summary.StoppedEarly).
		Str("stop_reason", summary.StopReason).
		Msg("scan finished")

	return summary, nil
}

func (uc *ScannerUseCase) scanRange(
	ctx context.Context,
	from, to int64,
	addresses map[string]string,
	native *Asset,
	contracts []string,
	byContract map[string]Asset,
	summary *ScanSummary,
) error {
	if native != nil && native.Enabled {
		transfers, err := uc.gateway.NativeTransfers(ctx, from, to)
		if err != nil {
			return err
		}
		for _, transfer := range transfers {
			userID, ok := addresses[strings.ToLower(transfer.To)]
			if !ok {
				continue
			}
			summary.NativeMatched++
			if err := uc.recordTransfer(ctx, transfer, userID, *native, summary); err != nil {
				return err
			}
		}
	}

	if len(contracts) > 0 {
		recipients := make([]string, 0, len(addresses))
		for addr := range addresses {
			recipients = append(recipients, addr)
		}

		transfers, malformed, err := uc.gateway.TokenTransfers(ctx, contracts, recipients, from, to)
		if err != nil {
			return err
		}
		summary.MalformedSkipped += malformed

		for _, transfer := range transfers {
			userID, ok := addresses[strings.ToLower(transfer.To)]
			if !ok {
				continue
			}
			asset, ok := byContract[strings.ToLower(transfer.ContractAddress)]
			if !ok {
				summary.MalformedSkipped++
				continue
			}
			summary.TokenMatched++
			if err := uc.recordTransfer(ctx, transfer, userID, asset, summary); err != nil {
				return err
			}
		}
	}

	return nil
}

// recordTransfer inserts one pending deposit event. The unique key on
// (chain, tx_hash, log_index) makes concurrent or repeated scans of the same
// range converge on a single row.
func (uc *ScannerUseCase) recordTransfer(ctx context.Context, transfer ChainTransfer, userID string, asset Asset, summary *ScanSummary) error {
	event := &domain.DepositEvent{
		ID:          uc.idGen.Generate(),
		Chain:       uc.cfg.Chain,
		TxHash:      transfer.TxHash,
		LogIndex:    transfer.LogIndex,
		BlockNumber: transfer.BlockNumber,
		FromAddress: strings.ToLower(transfer.From),
		ToAddress:   strings.ToLower(transfer.To),
		UserID:      userID,
		Asset:       asset.Symbol,
		Amount:      transfer.Amount.Shift(-asset.Decimals),
		Status:      domain.DepositStatusPending,
		CreatedAt:   time.Now().UTC(),
	}

	inserted, err := uc.depositRepo.InsertPending(ctx, event)
	if err != nil {
		return err
	}

	if inserted {
		summary.Inserted++
		if uc.metrics != nil {
			uc.metrics.DepositsObserved.Inc()
		}
	} else {
		summary.Duplicates++
	}

	return nil
}

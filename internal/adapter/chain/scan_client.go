package chain

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/patrickngure45/tradesynapse-core/internal/infrastructure/metrics"
	"github.com/patrickngure45/tradesynapse-core/internal/usecase"
)

// transferTopic is the keccak hash of the ERC-20 Transfer(address,address,uint256)
// event signature.
const transferTopic = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"

// Config tunes the scan client's provider-adaptive behavior. The provider's
// real limits are unknown and can change, so everything here is a ceiling,
// not a promise.
type Config struct {
	MaxRetries        uint64
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	MaxBisectDepth    int
	ContractChunkSize int
	TopicChunkSize    int
	ChunkConcurrency  int
}

// ScanClient implements usecase.ChainGateway over a raw Provider. It absorbs
// rate limits with jittered exponential backoff and range-size rejections
// with depth-capped bisection, and fans chunked log queries out over a
// bounded worker pool.
type ScanClient struct {
	provider Provider
	pool     *ants.Pool
	cfg      Config
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewScanClient creates a ScanClient with its chunk worker pool.
func NewScanClient(provider Provider, cfg Config, metrics *metrics.Metrics, logger zerolog.Logger) (*ScanClient, error) {
	if cfg.ChunkConcurrency <= 0 {
		cfg.ChunkConcurrency = 1
	}

	pool, err := ants.NewPool(cfg.ChunkConcurrency, ants.WithNonblocking(false))
	if err != nil {
		return nil, err
	}

	return &ScanClient{
		provider: provider,
		pool:     pool,
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger.With().Str("component", "chain_scan_client").Logger(),
	}, nil
}

// Close releases the worker pool.
func (c *ScanClient) Close() {
	c.pool.Release()
}

// BlockHeight returns the chain tip, retrying through rate limits.
func (c *ScanClient) BlockHeight(ctx context.Context) (int64, error) {
	var height int64
	err := c.withBackoff(ctx, func() error {
		var err error
		height, err = c.provider.BlockHeight(ctx)
		return err
	})
	return height, err
}

// NativeTransfers fetches full blocks in [from, to] and returns every
// value-bearing transaction with a destination address.
func (c *ScanClient) NativeTransfers(ctx context.Context, from, to int64) ([]usecase.ChainTransfer, error) {
	transfers := make([]usecase.ChainTransfer, 0)

	for number := from; number <= to; number++ {
		var block *Block
		err := c.withBackoff(ctx, func() error {
			var err error
			block, err = c.provider.BlockByNumber(ctx, number, true)
			return err
		})
		if err != nil {
			return nil, err
		}

		for _, tx := range block.Transactions {
			if tx.To == "" || !tx.Value.IsPositive() {
				continue
			}
			transfers = append(transfers, usecase.ChainTransfer{
				TxHash:      tx.Hash,
				LogIndex:    0,
				BlockNumber: block.Number,
				From:        tx.From,
				To:          tx.To,
				Amount:      tx.Value,
			})
		}
	}

	return transfers, nil
}

// TokenTransfers queries Transfer logs for the given contracts and
// recipients in [from, to]. Both lists are chunked to stay under unknown
// provider size limits; chunk pairs run on the bounded pool. Also returns
// the count of malformed logs skipped.
func (c *ScanClient) TokenTransfers(ctx context.Context, contracts, recipients []string, from, to int64) ([]usecase.ChainTransfer, int, error) {
	topics := make([]string, len(recipients))
	for i, recipient := range recipients {
		topics[i] = addressTopic(recipient)
	}

	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		transfers []usecase.ChainTransfer
		malformed int
		firstErr  error
	)

	for _, contractChunk := range chunk(contracts, c.cfg.ContractChunkSize) {
		for _, topicChunk := range chunk(topics, c.cfg.TopicChunkSize) {
			filter := LogFilter{
				FromBlock:       from,
				ToBlock:         to,
				Addresses:       contractChunk,
				RecipientTopics: topicChunk,
			}

			wg.Add(1)
			submitErr := c.pool.Submit(func() {
				defer wg.Done()

				logs, err := c.filterLogsBisect(ctx, filter, 0)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					if firstErr == nil {
						firstErr = err
					}
					return
				}
				for _, log := range logs {
					transfer, ok := parseTransferLog(log)
					if !ok {
						malformed++
						continue
					}
					transfers = append(transfers, transfer)
				}
			})
			if submitErr != nil {
				wg.Done()
				return nil, 0, submitErr
			}
		}
	}

	wg.Wait()

	if firstErr != nil {
		return nil, 0, firstErr
	}
	return transfers, malformed, nil
}

// filterLogsBisect queries one range, splitting it in two on a range-size
// rejection. Recursion depth is capped so a persistently failing provider
// cannot drive unbounded splitting.
func (c *ScanClient) filterLogsBisect(ctx context.Context, filter LogFilter, depth int) ([]Log, error) {
	var logs []Log
	err := c.withBackoff(ctx, func() error {
		var err error
		logs, err = c.provider.FilterLogs(ctx, filter)
		return err
	})
	if err == nil {
		return logs, nil
	}

	if !errors.Is(err, ErrRangeTooLarge) || depth >= c.cfg.MaxBisectDepth || filter.FromBlock >= filter.ToBlock {
		return nil, err
	}

	if c.metrics != nil {
		c.metrics.RangeBisections.Inc()
	}
	c.logger.Debug().
		Int64("from", filter.FromBlock).Int64("to", filter.ToBlock).Int("depth", depth).
		Msg("bisecting rejected block range")

	mid := filter.FromBlock + (filter.ToBlock-filter.FromBlock)/2

	left := filter
	left.ToBlock = mid
	right := filter
	right.FromBlock = mid + 1

	leftLogs, err := c.filterLogsBisect(ctx, left, depth+1)
	if err != nil {
		return nil, err
	}
	rightLogs, err := c.filterLogsBisect(ctx, right, depth+1)
	if err != nil {
		return nil, err
	}

	return append(leftLogs, rightLogs...), nil
}

// withBackoff retries rate-limited calls with jittered exponential backoff
// and a bounded attempt count. Any other error is permanent for this
// invocation; the caller's cursor discipline handles the retry.
func (c *ScanClient) withBackoff(ctx context.Context, operation func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialBackoff
	b.MaxInterval = c.cfg.MaxBackoff

	return backoff.Retry(func() error {
		err := operation()
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrRateLimited) {
			return backoff.Permanent(err)
		}
		if c.metrics != nil {
			c.metrics.ProviderRetries.Inc()
		}
		return err
	}, backoff.WithMaxRetries(backoff.WithContext(b, ctx), c.cfg.MaxRetries))
}

// parseTransferLog decodes one ERC-20 Transfer log. Malformed entries are
// reported, not fatal.
func parseTransferLog(log Log) (usecase.ChainTransfer, bool) {
	if len(log.Topics) < 3 || !strings.EqualFold(log.Topics[0], transferTopic) {
		return usecase.ChainTransfer{}, false
	}

	raw, ok := new(big.Int).SetString(strings.TrimPrefix(log.Data, "0x"), 16)
	if !ok {
		return usecase.ChainTransfer{}, false
	}

	return usecase.ChainTransfer{
		TxHash:          log.TxHash,
		LogIndex:        log.LogIndex,
		BlockNumber:     log.BlockNumber,
		From:            topicAddress(log.Topics[1]),
		To:              topicAddress(log.Topics[2]),
		ContractAddress: strings.ToLower(log.Address),
		Amount:          decimal.NewFromBigInt(raw, 0),
	}, true
}

// chunk splits items into slices of at most size elements.
func chunk(items []string, size int) [][]string {
	if size <= 0 {
		size = len(items)
	}
	if len(items) == 0 {
		return nil
	}

	chunks := make([][]string, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

// addressTopic left-pads a 20-byte address to the 32-byte topic form. An
// over-length value from the directory is truncated to its low bytes rather
// than producing a negative pad count.
func addressTopic(address string) string {
	hex := strings.ToLower(strings.TrimPrefix(address, "0x"))
	if len(hex) > 64 {
		hex = hex[len(hex)-64:]
	}
	return "0x" + strings.Repeat("0", 64-len(hex)) + hex
}

// topicAddress extracts the 20-byte address from a 32-byte topic.
func topicAddress(topic string) string {
	hex := strings.TrimPrefix(strings.ToLower(topic), "0x")
	if len(hex) < 40 {
		return "0x" + hex
	}
	return "0x" + hex[len(hex)-40:]
}

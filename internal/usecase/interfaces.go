package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/patrickngure45/tradesynapse-core/internal/domain"
)

// AccountRepository defines data access for ledger accounts.
type AccountRepository interface {
	// GetOrCreate upserts the (user, asset) account; concurrent callers
	// converge on one row.
	GetOrCreate(ctx context.Context, tx Transaction, userID, asset string) (*domain.Account, error)
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByUserAsset(ctx context.Context, userID, asset string) (*domain.Account, error)
	GetByIDForUpdate(ctx context.Context, tx Transaction, id string) (*domain.Account, error)
	GetByIDsForUpdate(ctx context.Context, tx Transaction, ids []string) ([]*domain.Account, error)
}

// JournalRepository defines data access for journal entries and lines.
type JournalRepository interface {
	CreateEntry(ctx context.Context, tx Transaction, entry *domain.JournalEntry) error
	GetEntryByReference(ctx context.Context, reference string) (*domain.JournalEntry, error)
	GetEntryByReferenceTx(ctx context.Context, tx Transaction, reference string) (*domain.JournalEntry, error)
	// PostedBalance sums the account's journal lines inside the caller's
	// transaction, i.e. under the account row lock.
	PostedBalance(ctx context.Context, tx Transaction, accountID string) (decimal.Decimal, error)
	ListLinesByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.JournalLine, error)
}

// HoldRepository defines data access for holds.
type HoldRepository interface {
	Create(ctx context.Context, tx Transaction, hold *domain.Hold) error
	GetByID(ctx context.Context, id string) (*domain.Hold, error)
	GetByIDForUpdate(ctx context.Context, tx Transaction, id string) (*domain.Hold, error)
	// ActiveTotal sums remaining amounts of active holds on the account
	// inside the caller's transaction.
	ActiveTotal(ctx context.Context, tx Transaction, accountID string) (decimal.Decimal, error)
	Update(ctx context.Context, tx Transaction, hold *domain.Hold) error
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.Hold, error)
}

// DepositRepository defines data access for deposit events and scan cursors.
type DepositRepository interface {
	// InsertPending inserts the event unless (chain, tx_hash, log_index)
	// already exists. Returns false on duplicate; a duplicate is not an error.
	InsertPending(ctx context.Context, event *domain.DepositEvent) (bool, error)
	GetByKey(ctx context.Context, chain, txHash string, logIndex int) (*domain.DepositEvent, error)
	ListPendingBelow(ctx context.Context, chain string, maxBlock int64, limit int) ([]*domain.DepositEvent, error)
	MarkConfirmed(ctx context.Context, tx Transaction, id, journalRef string, at time.Time) (bool, error)
	GetCursor(ctx context.Context, chain string) (int64, error)
	// AdvanceCursor moves the watermark forward; it never moves it back.
	AdvanceCursor(ctx context.Context, chain string, block int64) error
}

// OutboxRepository defines data access for the durable event outbox.
type OutboxRepository interface {
	Enqueue(ctx context.Context, tx Transaction, event *domain.OutboxEvent) error
	// ClaimBatch selects up to limit visible, unprocessed, non-dead-lettered
	// events whose lock (if any) has expired, skipping rows locked by
	// concurrent claimers, and stamps them with a fresh lock id.
	ClaimBatch(ctx context.Context, limit int, lockTTL time.Duration, topics []string) ([]*domain.OutboxEvent, string, error)
	Ack(ctx context.Context, id, lockID string) error
	Fail(ctx context.Context, id, lockID, lastError string, nextVisibleAt time.Time) error
	DeadLetter(ctx context.Context, id, lockID, lastError string) error
	RetryDeadLetter(ctx context.Context, id string) error
	ResolveDeadLetter(ctx context.Context, id string) error
	PurgeProcessed(ctx context.Context, before time.Time) (int64, error)
}

// JobLockRepository defines the leased mutual-exclusion primitive for
// scheduled jobs.
type JobLockRepository interface {
	// TryAcquire succeeds if the lock is unheld, expired, or already held by
	// this holder. On failure it returns the current lock alongside
	// domain.ErrJobLockHeld.
	TryAcquire(ctx context.Context, key, holderID string, ttl time.Duration) (*domain.JobLock, error)
	Renew(ctx context.Context, key, holderID string, ttl time.Duration) error
	Release(ctx context.Context, key, holderID string) error
}

// ChainTransfer is one observed transfer, native or token. Amount carries the
// raw on-chain integer value; scaling by the asset's decimals happens when
// the deposit event is recorded.
type ChainTransfer struct {
	TxHash          string
	LogIndex        int
	BlockNumber     int64
	From            string
	To              string
	ContractAddress string // empty for native-coin transfers
	Amount          decimal.Decimal
}

// ChainGateway is the provider-adaptive view of one chain's RPC endpoint.
// Implementations absorb rate limits and range-size rejections (backoff,
// bisection, chunking); a returned error means the range genuinely failed
// and must be retried by a later run.
type ChainGateway interface {
	BlockHeight(ctx context.Context) (int64, error)
	// NativeTransfers returns all value-bearing transactions in [from, to].
	NativeTransfers(ctx context.Context, from, to int64) ([]ChainTransfer, error)
	// TokenTransfers returns Transfer logs for the given contracts and
	// recipients in [from, to], plus the count of malformed logs skipped.
	TokenTransfers(ctx context.Context, contracts, recipients []string, from, to int64) ([]ChainTransfer, int, error)
}

// Asset describes one credit-able asset on a chain, as supplied by the
// address/asset directory.
type Asset struct {
	Symbol          string
	ContractAddress string // empty for the chain's native coin
	Decimals        int32
	Enabled         bool
}

// AddressDirectory supplies the active deposit-address and asset sets. It is
// maintained by account-provisioning logic outside this core.
type AddressDirectory interface {
	// DepositAddresses maps lowercase deposit address to owning user id,
	// capped at limit entries.
	DepositAddresses(ctx context.Context, chain string, limit int) (map[string]string, error)
	NativeAsset(ctx context.Context, chain string) (*Asset, error)
	TokenAssets(ctx context.Context, chain string) ([]Asset, error)
}

// Notifier delivers user notifications. Fire and forget: failures are logged
// by callers and never roll back ledger state.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// Publisher is the sink the outbox dispatcher hands claimed events to.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManager handles transaction lifecycle.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// Retrier re-runs an operation that may have lost a transient database race
// (deadlock, serialization failure).
type Retrier interface {
	Retry(ctx context.Context, operation func() error) error
}

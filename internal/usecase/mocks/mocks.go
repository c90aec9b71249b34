package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/patrickngure45/tradesynapse-core/internal/domain"
	"github.com/patrickngure45/tradesynapse-core/internal/usecase"
)

// MockAccountRepository is a mock implementation of AccountRepository.
type MockAccountRepository struct {
	mu       sync.RWMutex
	accounts map[string]*domain.Account
	nextID   int

	GetOrCreateFunc       func(ctx context.Context, tx usecase.Transaction, userID, asset string) (*domain.Account, error)
	GetByIDFunc           func(ctx context.Context, id string) (*domain.Account, error)
	GetByUserAssetFunc    func(ctx context.Context, userID, asset string) (*domain.Account, error)
	GetByIDForUpdateFunc  func(ctx context.Context, tx usecase.Transaction, id string) (*domain.Account, error)
	GetByIDsForUpdateFunc func(ctx context.Context, tx usecase.Transaction, ids []string) ([]*domain.Account, error)
}

func NewMockAccountRepository() *MockAccountRepository {
	return &MockAccountRepository{
		accounts: make(map[string]*domain.Account),
	}
}

// Seed inserts an account directly into the backing map.
func (m *MockAccountRepository) Seed(account *domain.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[account.ID] = account
}

func (m *MockAccountRepository) GetOrCreate(ctx context.Context, tx usecase.Transaction, userID, asset string) (*domain.Account, error) {
	if m.GetOrCreateFunc != nil {
		return m.GetOrCreateFunc(ctx, tx, userID, asset)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, acc := range m.accounts {
		if acc.UserID == userID && acc.Asset == asset {
			return acc, nil
		}
	}
	m.nextID++
	account := &domain.Account{
		ID:        fmt.Sprintf("acct-%d", m.nextID),
		UserID:    userID,
		Asset:     asset,
		CreatedAt: time.Now().UTC(),
	}
	m.accounts[account.ID] = account
	return account, nil
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if acc, ok := m.accounts[id]; ok {
		return acc, nil
	}
	return nil, domain.ErrAccountNotFound
}

func (m *MockAccountRepository) GetByUserAsset(ctx context.Context, userID, asset string) (*domain.Account, error) {
	if m.GetByUserAssetFunc != nil {
		return m.GetByUserAssetFunc(ctx, userID, asset)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, acc := range m.accounts {
		if acc.UserID == userID && acc.Asset == asset {
			return acc, nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

func (m *MockAccountRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Account, error) {
	if m.GetByIDForUpdateFunc != nil {
		return m.GetByIDForUpdateFunc(ctx, tx, id)
	}
	return m.GetByID(ctx, id)
}

func (m *MockAccountRepository) GetByIDsForUpdate(ctx context.Context, tx usecase.Transaction, ids []string) ([]*domain.Account, error) {
	if m.GetByIDsForUpdateFunc != nil {
		return m.GetByIDsForUpdateFunc(ctx, tx, ids)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	accounts := make([]*domain.Account, 0, len(ids))
	for _, id := range ids {
		acc, ok := m.accounts[id]
		if !ok {
			return nil, domain.ErrAccountNotFound
		}
		accounts = append(accounts, acc)
	}
	return accounts, nil
}

// MockJournalRepository is a mock implementation of JournalRepository. The
// default behavior keeps the double-entry semantics: balances derive from
// stored lines and references are unique.
type MockJournalRepository struct {
	mu      sync.RWMutex
	entries map[string]*domain.JournalEntry
	byRef   map[string]*domain.JournalEntry

	CreateEntryFunc           func(ctx context.Context, tx usecase.Transaction, entry *domain.JournalEntry) error
	GetEntryByReferenceFunc   func(ctx context.Context, reference string) (*domain.JournalEntry, error)
	GetEntryByReferenceTxFunc func(ctx context.Context, tx usecase.Transaction, reference string) (*domain.JournalEntry, error)
	PostedBalanceFunc         func(ctx context.Context, tx usecase.Transaction, accountID string) (decimal.Decimal, error)
	ListLinesByAccountFunc    func(ctx context.Context, accountID string, limit, offset int) ([]*domain.JournalLine, error)
}

func NewMockJournalRepository() *MockJournalRepository {
	return &MockJournalRepository{
		entries: make(map[string]*domain.JournalEntry),
		byRef:   make(map[string]*domain.JournalEntry),
	}
}

func (m *MockJournalRepository) CreateEntry(ctx context.Context, tx usecase.Transaction, entry *domain.JournalEntry) error {
	if m.CreateEntryFunc != nil {
		return m.CreateEntryFunc(ctx, tx, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byRef[entry.Reference]; ok {
		return domain.ErrDuplicateReference
	}
	m.entries[entry.ID] = entry
	m.byRef[entry.Reference] = entry
	return nil
}

func (m *MockJournalRepository) GetEntryByReference(ctx context.Context, reference string) (*domain.JournalEntry, error) {
	if m.GetEntryByReferenceFunc != nil {
		return m.GetEntryByReferenceFunc(ctx, reference)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if entry, ok := m.byRef[reference]; ok {
		return entry, nil
	}
	return nil, domain.ErrEntryNotFound
}

func (m *MockJournalRepository) GetEntryByReferenceTx(ctx context.Context, tx usecase.Transaction, reference string) (*domain.JournalEntry, error) {
	if m.GetEntryByReferenceTxFunc != nil {
		return m.GetEntryByReferenceTxFunc(ctx, tx, reference)
	}
	return m.GetEntryByReference(ctx, reference)
}

func (m *MockJournalRepository) PostedBalance(ctx context.Context, tx usecase.Transaction, accountID string) (decimal.Decimal, error) {
	if m.PostedBalanceFunc != nil {
		return m.PostedBalanceFunc(ctx, tx, accountID)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	sum := decimal.Zero
	for _, entry := range m.entries {
		for _, line := range entry.Lines {
			if line.AccountID == accountID {
				sum = sum.Add(line.Amount)
			}
		}
	}
	return sum, nil
}

func (m *MockJournalRepository) ListLinesByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.JournalLine, error) {
	if m.ListLinesByAccountFunc != nil {
		return m.ListLinesByAccountFunc(ctx, accountID, limit, offset)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var lines []*domain.JournalLine
	for _, entry := range m.entries {
		for i := range entry.Lines {
			if entry.Lines[i].AccountID == accountID {
				line := entry.Lines[i]
				lines = append(lines, &line)
			}
		}
	}
	return lines, nil
}

// Entries returns all stored entries, for assertions.
func (m *MockJournalRepository) Entries() []*domain.JournalEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]*domain.JournalEntry, 0, len(m.entries))
	for _, entry := range m.entries {
		entries = append(entries, entry)
	}
	return entries
}

// MockHoldRepository is a mock implementation of HoldRepository.
type MockHoldRepository struct {
	mu    sync.RWMutex
	holds map[string]*domain.Hold

	CreateFunc           func(ctx context.Context, tx usecase.Transaction, hold *domain.Hold) error
	GetByIDFunc          func(ctx context.Context, id string) (*domain.Hold, error)
	GetByIDForUpdateFunc func(ctx context.Context, tx usecase.Transaction, id string) (*domain.Hold, error)
	ActiveTotalFunc      func(ctx context.Context, tx usecase.Transaction, accountID string) (decimal.Decimal, error)
	UpdateFunc           func(ctx context.Context, tx usecase.Transaction, hold *domain.Hold) error
	ListByAccountFunc    func(ctx context.Context, accountID string, limit, offset int) ([]*domain.Hold, error)
}

func NewMockHoldRepository() *MockHoldRepository {
	return &MockHoldRepository{
		holds: make(map[string]*domain.Hold),
	}
}

// Seed inserts a hold directly into the backing map.
func (m *MockHoldRepository) Seed(hold *domain.Hold) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *hold
	m.holds[hold.ID] = &copied
}

func (m *MockHoldRepository) Create(ctx context.Context, tx usecase.Transaction, hold *domain.Hold) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tx, hold)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *hold
	m.holds[hold.ID] = &copied
	return nil
}

func (m *MockHoldRepository) GetByID(ctx context.Context, id string) (*domain.Hold, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if hold, ok := m.holds[id]; ok {
		copied := *hold
		return &copied, nil
	}
	return nil, domain.ErrHoldNotFound
}

func (m *MockHoldRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Hold, error) {
	if m.GetByIDForUpdateFunc != nil {
		return m.GetByIDForUpdateFunc(ctx, tx, id)
	}
	return m.GetByID(ctx, id)
}

func (m *MockHoldRepository) ActiveTotal(ctx context.Context, tx usecase.Transaction, accountID string) (decimal.Decimal, error) {
	if m.ActiveTotalFunc != nil {
		return m.ActiveTotalFunc(ctx, tx, accountID)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	sum := decimal.Zero
	for _, hold := range m.holds {
		if hold.AccountID == accountID && hold.Status == domain.HoldStatusActive {
			sum = sum.Add(hold.RemainingAmount)
		}
	}
	return sum, nil
}

func (m *MockHoldRepository) Update(ctx context.Context, tx usecase.Transaction, hold *domain.Hold) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, tx, hold)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.holds[hold.ID]; !ok {
		return domain.ErrHoldNotFound
	}
	copied := *hold
	m.holds[hold.ID] = &copied
	return nil
}

func (m *MockHoldRepository) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.Hold, error) {
	if m.ListByAccountFunc != nil {
		return m.ListByAccountFunc(ctx, accountID, limit, offset)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var holds []*domain.Hold
	for _, hold := range m.holds {
		if hold.AccountID == accountID {
			copied := *hold
			holds = append(holds, &copied)
		}
	}
	return holds, nil
}

// MockDepositRepository is a mock implementation of DepositRepository. The
// default keeps the (chain, tx_hash, log_index) uniqueness and the
// forward-only cursor.
type MockDepositRepository struct {
	mu      sync.RWMutex
	events  map[string]*domain.DepositEvent
	cursors map[string]int64

	InsertPendingFunc    func(ctx context.Context, event *domain.DepositEvent) (bool, error)
	GetByKeyFunc         func(ctx context.Context, chain, txHash string, logIndex int) (*domain.DepositEvent, error)
	ListPendingBelowFunc func(ctx context.Context, chain string, maxBlock int64, limit int) ([]*domain.DepositEvent, error)
	MarkConfirmedFunc    func(ctx context.Context, tx usecase.Transaction, id, journalRef string, at time.Time) (bool, error)
	GetCursorFunc        func(ctx context.Context, chain string) (int64, error)
	AdvanceCursorFunc    func(ctx context.Context, chain string, block int64) error
}

func NewMockDepositRepository() *MockDepositRepository {
	return &MockDepositRepository{
		events:  make(map[string]*domain.DepositEvent),
		cursors: make(map[string]int64),
	}
}

func depositKey(chain, txHash string, logIndex int) string {
	return fmt.Sprintf("%s:%s:%d", chain, txHash, logIndex)
}

// Seed inserts an event directly into the backing map.
func (m *MockDepositRepository) Seed(event *domain.DepositEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *event
	m.events[depositKey(event.Chain, event.TxHash, event.LogIndex)] = &copied
}

func (m *MockDepositRepository) InsertPending(ctx context.Context, event *domain.DepositEvent) (bool, error) {
	if m.InsertPendingFunc != nil {
		return m.InsertPendingFunc(ctx, event)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := depositKey(event.Chain, event.TxHash, event.LogIndex)
	if _, ok := m.events[key]; ok {
		return false, nil
	}
	copied := *event
	m.events[key] = &copied
	return true, nil
}

func (m *MockDepositRepository) GetByKey(ctx context.Context, chain, txHash string, logIndex int) (*domain.DepositEvent, error) {
	if m.GetByKeyFunc != nil {
		return m.GetByKeyFunc(ctx, chain, txHash, logIndex)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if event, ok := m.events[depositKey(chain, txHash, logIndex)]; ok {
		copied := *event
		return &copied, nil
	}
	return nil, domain.ErrDepositNotFound
}

func (m *MockDepositRepository) ListPendingBelow(ctx context.Context, chain string, maxBlock int64, limit int) ([]*domain.DepositEvent, error) {
	if m.ListPendingBelowFunc != nil {
		return m.ListPendingBelowFunc(ctx, chain, maxBlock, limit)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var events []*domain.DepositEvent
	for _, event := range m.events {
		if event.Chain == chain && event.Status == domain.DepositStatusPending && event.BlockNumber <= maxBlock {
			copied := *event
			events = append(events, &copied)
			if len(events) == limit {
				break
			}
		}
	}
	return events, nil
}

func (m *MockDepositRepository) MarkConfirmed(ctx context.Context, tx usecase.Transaction, id, journalRef string, at time.Time) (bool, error) {
	if m.MarkConfirmedFunc != nil {
		return m.MarkConfirmedFunc(ctx, tx, id, journalRef, at)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, event := range m.events {
		if event.ID == id && event.Status == domain.DepositStatusPending {
			event.Status = domain.DepositStatusConfirmed
			event.JournalRef = &journalRef
			event.ConfirmedAt = &at
			return true, nil
		}
	}
	return false, nil
}

func (m *MockDepositRepository) GetCursor(ctx context.Context, chain string) (int64, error) {
	if m.GetCursorFunc != nil {
		return m.GetCursorFunc(ctx, chain)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cursors[chain], nil
}

func (m *MockDepositRepository) AdvanceCursor(ctx context.Context, chain string, block int64) error {
	if m.AdvanceCursorFunc != nil {
		return m.AdvanceCursorFunc(ctx, chain, block)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if block > m.cursors[chain] {
		m.cursors[chain] = block
	}
	return nil
}

// Events returns all stored deposit events, for assertions.
func (m *MockDepositRepository) Events() []*domain.DepositEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	events := make([]*domain.DepositEvent, 0, len(m.events))
	for _, event := range m.events {
		copied := *event
		events = append(events, &copied)
	}
	return events
}

// MockOutboxRepository is a mock implementation of OutboxRepository with
// lease fencing semantics matching the real one.
type MockOutboxRepository struct {
	mu       sync.RWMutex
	events   map[string]*domain.OutboxEvent
	nextLock int

	EnqueueFunc           func(ctx context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error
	ClaimBatchFunc        func(ctx context.Context, limit int, lockTTL time.Duration, topics []string) ([]*domain.OutboxEvent, string, error)
	AckFunc               func(ctx context.Context, id, lockID string) error
	FailFunc              func(ctx context.Context, id, lockID, lastError string, nextVisibleAt time.Time) error
	DeadLetterFunc        func(ctx context.Context, id, lockID, lastError string) error
	RetryDeadLetterFunc   func(ctx context.Context, id string) error
	ResolveDeadLetterFunc func(ctx context.Context, id string) error
	PurgeProcessedFunc    func(ctx context.Context, before time.Time) (int64, error)
}

func NewMockOutboxRepository() *MockOutboxRepository {
	return &MockOutboxRepository{
		events: make(map[string]*domain.OutboxEvent),
	}
}

// Seed inserts an event directly into the backing map.
func (m *MockOutboxRepository) Seed(event *domain.OutboxEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *event
	m.events[event.ID] = &copied
}

func (m *MockOutboxRepository) Enqueue(ctx context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error {
	if m.EnqueueFunc != nil {
		return m.EnqueueFunc(ctx, tx, event)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *event
	m.events[event.ID] = &copied
	return nil
}

func (m *MockOutboxRepository) ClaimBatch(ctx context.Context, limit int, lockTTL time.Duration, topics []string) ([]*domain.OutboxEvent, string, error) {
	if m.ClaimBatchFunc != nil {
		return m.ClaimBatchFunc(ctx, limit, lockTTL, topics)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextLock++
	lockID := fmt.Sprintf("lock-%d", m.nextLock)
	now := time.Now().UTC()

	topicSet := make(map[string]struct{}, len(topics))
	for _, topic := range topics {
		topicSet[topic] = struct{}{}
	}

	var claimed []*domain.OutboxEvent
	for _, event := range m.events {
		if len(claimed) == limit {
			break
		}
		if !event.Pending() || event.VisibleAt.After(now) {
			continue
		}
		if event.LockedAt != nil && event.LockedAt.After(now.Add(-lockTTL)) {
			continue
		}
		if len(topicSet) > 0 {
			if _, ok := topicSet[event.Topic]; !ok {
				continue
			}
		}
		lockedAt := now
		event.LockedAt = &lockedAt
		id := lockID
		event.LockID = &id
		copied := *event
		claimed = append(claimed, &copied)
	}

	return claimed, lockID, nil
}

func (m *MockOutboxRepository) Ack(ctx context.Context, id, lockID string) error {
	if m.AckFunc != nil {
		return m.AckFunc(ctx, id, lockID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	event, ok := m.events[id]
	if !ok || event.LockID == nil || *event.LockID != lockID || event.ProcessedAt != nil {
		return domain.ErrOutboxLockMismatch
	}
	now := time.Now().UTC()
	event.ProcessedAt = &now
	event.LockedAt = nil
	event.LockID = nil
	return nil
}

func (m *MockOutboxRepository) Fail(ctx context.Context, id, lockID, lastError string, nextVisibleAt time.Time) error {
	if m.FailFunc != nil {
		return m.FailFunc(ctx, id, lockID, lastError, nextVisibleAt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	event, ok := m.events[id]
	if !ok || event.LockID == nil || *event.LockID != lockID || !event.Pending() {
		return domain.ErrOutboxLockMismatch
	}
	event.Attempts++
	event.LastError = &lastError
	event.VisibleAt = nextVisibleAt
	event.LockedAt = nil
	event.LockID = nil
	return nil
}

func (m *MockOutboxRepository) DeadLetter(ctx context.Context, id, lockID, lastError string) error {
	if m.DeadLetterFunc != nil {
		return m.DeadLetterFunc(ctx, id, lockID, lastError)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	event, ok := m.events[id]
	if !ok || event.LockID == nil || *event.LockID != lockID || !event.Pending() {
		return domain.ErrOutboxLockMismatch
	}
	now := time.Now().UTC()
	event.Attempts++
	event.LastError = &lastError
	event.DeadLetteredAt = &now
	event.LockedAt = nil
	event.LockID = nil
	return nil
}

func (m *MockOutboxRepository) RetryDeadLetter(ctx context.Context, id string) error {
	if m.RetryDeadLetterFunc != nil {
		return m.RetryDeadLetterFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	event, ok := m.events[id]
	if !ok || event.DeadLetteredAt == nil {
		return domain.ErrOutboxNotDead
	}
	event.DeadLetteredAt = nil
	event.Attempts = 0
	event.VisibleAt = time.Now().UTC()
	return nil
}

func (m *MockOutboxRepository) ResolveDeadLetter(ctx context.Context, id string) error {
	if m.ResolveDeadLetterFunc != nil {
		return m.ResolveDeadLetterFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	event, ok := m.events[id]
	if !ok || event.DeadLetteredAt == nil || event.ProcessedAt != nil {
		return domain.ErrOutboxNotDead
	}
	now := time.Now().UTC()
	event.ProcessedAt = &now
	return nil
}

func (m *MockOutboxRepository) PurgeProcessed(ctx context.Context, before time.Time) (int64, error) {
	if m.PurgeProcessedFunc != nil {
		return m.PurgeProcessedFunc(ctx, before)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var purged int64
	for id, event := range m.events {
		if event.ProcessedAt != nil && event.ProcessedAt.Before(before) {
			delete(m.events, id)
			purged++
		}
	}
	return purged, nil
}

// Events returns all stored outbox events, for assertions.
func (m *MockOutboxRepository) Events() []*domain.OutboxEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	events := make([]*domain.OutboxEvent, 0, len(m.events))
	for _, event := range m.events {
		copied := *event
		events = append(events, &copied)
	}
	return events
}

// EventsByTopic returns stored events with the given topic.
func (m *MockOutboxRepository) EventsByTopic(topic string) []*domain.OutboxEvent {
	var matched []*domain.OutboxEvent
	for _, event := range m.Events() {
		if event.Topic == topic {
			matched = append(matched, event)
		}
	}
	return matched
}

// MockJobLockRepository is a mock implementation of JobLockRepository.
type MockJobLockRepository struct {
	mu    sync.RWMutex
	locks map[string]*domain.JobLock

	TryAcquireFunc func(ctx context.Context, key, holderID string, ttl time.Duration) (*domain.JobLock, error)
	RenewFunc      func(ctx context.Context, key, holderID string, ttl time.Duration) error
	ReleaseFunc    func(ctx context.Context, key, holderID string) error
}

func NewMockJobLockRepository() *MockJobLockRepository {
	return &MockJobLockRepository{
		locks: make(map[string]*domain.JobLock),
	}
}

func (m *MockJobLockRepository) TryAcquire(ctx context.Context, key, holderID string, ttl time.Duration) (*domain.JobLock, error) {
	if m.TryAcquireFunc != nil {
		return m.TryAcquireFunc(ctx, key, holderID, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if current, ok := m.locks[key]; ok && current.HolderID != holderID && !current.Expired(now) {
		copied := *current
		return &copied, domain.ErrJobLockHeld
	}
	lock := &domain.JobLock{
		Key:       key,
		HolderID:  holderID,
		HeldUntil: now.Add(ttl),
		UpdatedAt: now,
	}
	m.locks[key] = lock
	copied := *lock
	return &copied, nil
}

func (m *MockJobLockRepository) Renew(ctx context.Context, key, holderID string, ttl time.Duration) error {
	if m.RenewFunc != nil {
		return m.RenewFunc(ctx, key, holderID, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	current, ok := m.locks[key]
	if !ok || current.HolderID != holderID || current.Expired(now) {
		return domain.ErrJobLockHeld
	}
	current.HeldUntil = now.Add(ttl)
	current.UpdatedAt = now
	return nil
}

func (m *MockJobLockRepository) Release(ctx context.Context, key, holderID string) error {
	if m.ReleaseFunc != nil {
		return m.ReleaseFunc(ctx, key, holderID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.locks[key]; ok && current.HolderID == holderID {
		delete(m.locks, key)
	}
	return nil
}

// MockChainGateway is a mock implementation of ChainGateway.
type MockChainGateway struct {
	Height    int64
	Native    []usecase.ChainTransfer
	Tokens    []usecase.ChainTransfer
	Malformed int

	BlockHeightFunc     func(ctx context.Context) (int64, error)
	NativeTransfersFunc func(ctx context.Context, from, to int64) ([]usecase.ChainTransfer, error)
	TokenTransfersFunc  func(ctx context.Context, contracts, recipients []string, from, to int64) ([]usecase.ChainTransfer, int, error)
}

func NewMockChainGateway() *MockChainGateway {
	return &MockChainGateway{}
}

func (m *MockChainGateway) BlockHeight(ctx context.Context) (int64, error) {
	if m.BlockHeightFunc != nil {
		return m.BlockHeightFunc(ctx)
	}
	return m.Height, nil
}

func (m *MockChainGateway) NativeTransfers(ctx context.Context, from, to int64) ([]usecase.ChainTransfer, error) {
	if m.NativeTransfersFunc != nil {
		return m.NativeTransfersFunc(ctx, from, to)
	}
	var transfers []usecase.ChainTransfer
	for _, transfer := range m.Native {
		if transfer.BlockNumber >= from && transfer.BlockNumber <= to {
			transfers = append(transfers, transfer)
		}
	}
	return transfers, nil
}

func (m *MockChainGateway) TokenTransfers(ctx context.Context, contracts, recipients []string, from, to int64) ([]usecase.ChainTransfer, int, error) {
	if m.TokenTransfersFunc != nil {
		return m.TokenTransfersFunc(ctx, contracts, recipients, from, to)
	}
	var transfers []usecase.ChainTransfer
	for _, transfer := range m.Tokens {
		if transfer.BlockNumber >= from && transfer.BlockNumber <= to {
			transfers = append(transfers, transfer)
		}
	}
	return transfers, m.Malformed, nil
}

// MockAddressDirectory is a mock implementation of AddressDirectory.
type MockAddressDirectory struct {
	Addresses map[string]string
	Native    *usecase.Asset
	Tokens    []usecase.Asset

	DepositAddressesFunc func(ctx context.Context, chain string, limit int) (map[string]string, error)
	NativeAssetFunc      func(ctx context.Context, chain string) (*usecase.Asset, error)
	TokenAssetsFunc      func(ctx context.Context, chain string) ([]usecase.Asset, error)
}

func NewMockAddressDirectory() *MockAddressDirectory {
	return &MockAddressDirectory{
		Addresses: make(map[string]string),
	}
}

func (m *MockAddressDirectory) DepositAddresses(ctx context.Context, chain string, limit int) (map[string]string, error) {
	if m.DepositAddressesFunc != nil {
		return m.DepositAddressesFunc(ctx, chain, limit)
	}
	return m.Addresses, nil
}

func (m *MockAddressDirectory) NativeAsset(ctx context.Context, chain string) (*usecase.Asset, error) {
	if m.NativeAssetFunc != nil {
		return m.NativeAssetFunc(ctx, chain)
	}
	return m.Native, nil
}

func (m *MockAddressDirectory) TokenAssets(ctx context.Context, chain string) ([]usecase.Asset, error) {
	if m.TokenAssetsFunc != nil {
		return m.TokenAssetsFunc(ctx, chain)
	}
	return m.Tokens, nil
}

// MockNotifier is a mock implementation of Notifier.
type MockNotifier struct {
	mu   sync.Mutex
	Sent []domain.Notification

	NotifyFunc func(ctx context.Context, n domain.Notification) error
}

func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

func (m *MockNotifier) Notify(ctx context.Context, n domain.Notification) error {
	if m.NotifyFunc != nil {
		return m.NotifyFunc(ctx, n)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, n)
	return nil
}

// PublishedMessage is one message captured by MockPublisher.
type PublishedMessage struct {
	Topic   string
	Key     string
	Payload []byte
}

// MockPublisher is a mock implementation of Publisher.
type MockPublisher struct {
	mu        sync.Mutex
	Published []PublishedMessage

	PublishFunc func(ctx context.Context, topic, key string, payload []byte) error
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(ctx context.Context, topic, key string, payload []byte) error {
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, topic, key, payload)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Published = append(m.Published, PublishedMessage{Topic: topic, Key: key, Payload: payload})
	return nil
}

// MockTransactionManager is a mock implementation of TransactionManager.
type MockTransactionManager struct {
	BeginFunc func(ctx context.Context) (usecase.Transaction, error)
}

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

func (m *MockTransactionManager) Begin(ctx context.Context) (usecase.Transaction, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx)
	}
	return &MockTransaction{}, nil
}

// MockTransaction is a mock implementation of Transaction.
type MockTransaction struct {
	CommitFunc   func(ctx context.Context) error
	RollbackFunc func(ctx context.Context) error
}

func (m *MockTransaction) Commit(ctx context.Context) error {
	if m.CommitFunc != nil {
		return m.CommitFunc(ctx)
	}
	return nil
}

func (m *MockTransaction) Rollback(ctx context.Context) error {
	if m.RollbackFunc != nil {
		return m.RollbackFunc(ctx)
	}
	return nil
}

// MockIDGenerator is a mock implementation of IDGenerator.
type MockIDGenerator struct {
	mu      sync.Mutex
	counter int

	GenerateFunc func() string
}

func NewMockIDGenerator() *MockIDGenerator {
	return &MockIDGenerator{}
}

func (m *MockIDGenerator) Generate() string {
	if m.GenerateFunc != nil {
		return m.GenerateFunc()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter++
	return fmt.Sprintf("mock-id-%d", m.counter)
}

// MockRetrier is a mock implementation of Retrier that runs the operation
// once without retrying.
type MockRetrier struct {
	RetryFunc func(ctx context.Context, operation func() error) error
}

func NewMockRetrier() *MockRetrier {
	return &MockRetrier{}
}

func (m *MockRetrier) Retry(ctx context.Context, operation func() error) error {
	if m.RetryFunc != nil {
		return m.RetryFunc(ctx, operation)
	}
	return operation()
}

package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrUnbalancedEntry    = errors.New("journal entry lines do not sum to zero per asset")
	ErrEmptyEntry         = errors.New("journal entry has no lines")
	ErrDuplicateReference = errors.New("journal entry reference already exists")
	ErrEntryNotFound      = errors.New("journal entry not found")
)

// Journal entry types.
const (
	EntryTypeDepositCredit = "deposit_credit"
	EntryTypeP2PEscrow     = "p2p_escrow"
	EntryTypeP2PSettle     = "p2p_settle"
	EntryTypeWithdrawal    = "withdrawal"
	EntryTypeFee           = "fee"
	EntryTypeAdjustment    = "adjustment"
)

// JournalEntry is one atomic business event. Reference is the idempotency key
// for the event (e.g. "bsc:0xabc..:3" for a deposit, "p2p_order:42" for a
// trade leg) and is unique across the journal.
type JournalEntry struct {
	ID        string
	Type      string
	Reference string
	Metadata  map[string]any
	Lines     []JournalLine
	CreatedAt time.Time
}

// JournalLine is a single signed movement against one account. Immutable once
// written.
type JournalLine struct {
	ID        string
	EntryID   string
	AccountID string
	Asset     string
	Amount    decimal.Decimal
	CreatedAt time.Time
}

// Validate checks the double-entry invariant: for every asset touched, the
// line amounts must sum to zero.
func (e *JournalEntry) Validate() error {
	if len(e.Lines) == 0 {
		return ErrEmptyEntry
	}

	sums := make(map[string]decimal.Decimal, 2)
	for _, line := range e.Lines {
		if line.Amount.IsZero() {
			return ErrInvalidAmount
		}
		sums[line.Asset] = sums[line.Asset].Add(line.Amount)
	}

	for _, sum := range sums {
		if !sum.IsZero() {
			return ErrUnbalancedEntry
		}
	}

	return nil
}

// AccountIDs returns the distinct accounts touched by the entry.
func (e *JournalEntry) AccountIDs() []string {
	seen := make(map[string]struct{}, len(e.Lines))
	ids := make([]string, 0, len(e.Lines))
	for _, line := range e.Lines {
		if _, ok := seen[line.AccountID]; ok {
			continue
		}
		seen[line.AccountID] = struct{}{}
		ids = append(ids, line.AccountID)
	}
	return ids
}

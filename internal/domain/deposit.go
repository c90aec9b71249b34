package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrDepositNotFound    = errors.New("deposit event not found")
	ErrCursorNotFound     = errors.New("deposit cursor not found")
	ErrAssetNotConfigured = errors.New("asset not configured for chain")
)

type DepositStatus string

const (
	DepositStatusPending   DepositStatus = "pending"
	DepositStatusConfirmed DepositStatus = "confirmed"
	// DepositStatusReverted is reserved for operator-driven compensation after
	// a chain reorganization. No automatic transition sets it; confirmation
	// counts are chosen per chain so a reorg past the safe tip is not
	// expected in practice.
	DepositStatusReverted DepositStatus = "reverted"
)

// DepositEvent is one observed on-chain transfer into a user-owned address.
// (Chain, TxHash, LogIndex) is globally unique and is the idempotency key for
// the whole ingestion pipeline.
type DepositEvent struct {
	ID          string
	Chain       string
	TxHash      string
	LogIndex    int
	BlockNumber int64
	FromAddress string
	ToAddress   string
	UserID      string
	Asset       string
	Amount      decimal.Decimal
	Status      DepositStatus
	JournalRef  *string
	CreatedAt   time.Time
	ConfirmedAt *time.Time
}

// JournalReference is the journal idempotency key derived from the event's
// on-chain identity.
func (e *DepositEvent) JournalReference() string {
	return fmt.Sprintf("%s:%s:%d", e.Chain, e.TxHash, e.LogIndex)
}

// DepositCursor is the per-chain scan watermark. LastScannedBlock only ever
// moves forward, and only past fully processed ranges.
type DepositCursor struct {
	Chain            string
	LastScannedBlock int64
	UpdatedAt        time.Time
}

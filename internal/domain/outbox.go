package domain

import (
	"errors"
	"time"
)

var (
	ErrOutboxEventNotFound = errors.New("outbox event not found")
	ErrOutboxLockMismatch  = errors.New("outbox lock id does not match current claim")
	ErrOutboxNotDead       = errors.New("outbox event is not dead-lettered")
)

// Outbox topics.
const (
	TopicDepositConfirmed = "deposit.confirmed"
	TopicHoldCreated      = "hold.created"
	TopicHoldConsumed     = "hold.consumed"
	TopicHoldReleased     = "hold.released"
	TopicJournalPosted    = "journal.posted"
)

// OutboxEvent is one durably queued domain event. A claim stamps LockedAt and
// a fresh LockID; every terminal transition must present that LockID, so a
// worker whose lease expired and was reclaimed cannot double-ack.
type OutboxEvent struct {
	ID             string
	Topic          string
	AggregateRef   string
	Payload        map[string]any
	Attempts       int
	LastError      *string
	VisibleAt      time.Time
	LockedAt       *time.Time
	LockID         *string
	ProcessedAt    *time.Time
	DeadLetteredAt *time.Time
	CreatedAt      time.Time
}

// Pending reports whether the event is still awaiting successful processing.
func (e *OutboxEvent) Pending() bool {
	return e.ProcessedAt == nil && e.DeadLetteredAt == nil
}

package domain

// DepositConfirmedEvent is the outbox payload emitted when a deposit is
// credited to the ledger.
type DepositConfirmedEvent struct {
	Chain      string `json:"chain"`
	TxHash     string `json:"tx_hash"`
	LogIndex   int    `json:"log_index"`
	UserID     string `json:"user_id"`
	Asset      string `json:"asset"`
	Amount     string `json:"amount"`
	JournalRef string `json:"journal_ref"`
}

// HoldEvent is the outbox payload for hold lifecycle transitions.
type HoldEvent struct {
	HoldID    string `json:"hold_id"`
	AccountID string `json:"account_id"`
	Asset     string `json:"asset"`
	Amount    string `json:"amount"`
	Remaining string `json:"remaining"`
	Reason    string `json:"reason"`
}

// Notification is a fire-and-forget user message; delivery failure never
// rolls back a ledger mutation.
type Notification struct {
	UserID   string
	Type     string
	Title    string
	Body     string
	Metadata map[string]any
}

// Notification types.
const (
	NotificationDepositPending   = "deposit_pending"
	NotificationDepositConfirmed = "deposit_confirmed"
)

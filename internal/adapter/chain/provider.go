package chain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// Provider errors. RPC implementations adapt their vendor's rate-limit and
// range-size signals to these; the scan client never sees vendor specifics.
var (
	ErrRateLimited   = errors.New("provider rate limited")
	ErrRangeTooLarge = errors.New("provider rejected block range as too large")
)

// Block is a chain block with its transactions.
type Block struct {
	Number       int64
	Transactions []Transaction
}

// Transaction is a native-coin transfer candidate. Value is the raw integer
// amount in the chain's smallest unit.
type Transaction struct {
	Hash  string
	From  string
	To    string
	Value decimal.Decimal
}

// Log is one event log entry as returned by the provider.
type Log struct {
	TxHash      string
	LogIndex    int
	BlockNumber int64
	Address     string
	Topics      []string
	Data        string
}

// LogFilter selects event logs by block range, emitting contract and
// recipient topic.
type LogFilter struct {
	FromBlock       int64
	ToBlock         int64
	Addresses       []string
	RecipientTopics []string
}

// Provider is the raw RPC surface of one chain endpoint. It imposes its own,
// unspecified and variable, rate and range limits.
type Provider interface {
	BlockHeight(ctx context.Context) (int64, error)
	BlockByNumber(ctx context.Context, number int64, withTransactions bool) (*Block, error)
	FilterLogs(ctx context.Context, filter LogFilter) ([]Log, error)
}

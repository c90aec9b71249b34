package usecase

import "time"

const (
	// DefaultTransactionTimeout bounds one balance-mutating transaction.
	DefaultTransactionTimeout = 30 * time.Second

	// DefaultListLimit caps unbounded list reads.
	DefaultListLimit = 100
)

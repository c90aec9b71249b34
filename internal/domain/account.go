package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAssetMismatch   = errors.New("asset does not match account")
	ErrInvalidAmount   = errors.New("amount must be positive")
)

// Account is a per-(user, asset) balance bucket. The balance itself is never
// stored: it is derived as the sum of journal line amounts posted against the
// account.
type Account struct {
	ID        string
	UserID    string
	Asset     string
	CreatedAt time.Time
}

// Balances is a snapshot of an account's balance taken under the account's
// row lock. Available = Posted - Held and is never negative after a committed
// transaction.
type Balances struct {
	Posted    decimal.Decimal
	Held      decimal.Decimal
	Available decimal.Decimal
}

// SystemUserID owns the internal funding accounts that deposit credits are
// drawn against.
const SystemUserID = "system"

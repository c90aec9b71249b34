package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrHoldNotFound        = errors.New("hold not found")
	ErrInsufficientFunds   = errors.New("insufficient available balance")
	ErrHoldStatusConflict  = errors.New("hold is not active")
	ErrHoldAccountMismatch = errors.New("hold does not belong to account")
	ErrHoldAssetMismatch   = errors.New("hold asset does not match")
	ErrHoldAmountExceeded  = errors.New("amount exceeds remaining hold amount")
)

type HoldStatus string

const (
	HoldStatusActive   HoldStatus = "active"
	HoldStatusConsumed HoldStatus = "consumed"
	HoldStatusReleased HoldStatus = "released"
)

// Hold reserves part of an account's posted balance without moving funds.
// RemainingAmount starts equal to Amount and decrements on partial
// consumption; status transitions are one-directional and terminal.
type Hold struct {
	ID              string
	AccountID       string
	Asset           string
	Amount          decimal.Decimal
	RemainingAmount decimal.Decimal
	Reason          string
	Status          HoldStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Terminal reports whether the hold has reached a final state.
func (h *Hold) Terminal() bool {
	return h.Status == HoldStatusConsumed || h.Status == HoldStatusReleased
}

// Validate checks a hold before creation.
func (h *Hold) Validate() error {
	if h.Amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	if h.RemainingAmount.GreaterThan(h.Amount) {
		return ErrHoldAmountExceeded
	}
	return nil
}

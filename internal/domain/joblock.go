package domain

import (
	"errors"
	"time"
)

var ErrJobLockHeld = errors.New("job lock held by another holder")

// JobLock is a lease, not a permanent lock: a crashed holder simply times
// out. Only the holder that acquired the lease may renew or release it.
type JobLock struct {
	Key       string
	HolderID  string
	HeldUntil time.Time
	UpdatedAt time.Time
}

// Expired reports whether the lease has lapsed at the given instant.
func (l *JobLock) Expired(now time.Time) bool {
	return !l.HeldUntil.After(now)
}

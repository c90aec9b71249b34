package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/patrickngure45/tradesynapse-core/internal/domain"
	"github.com/patrickngure45/tradesynapse-core/internal/usecase/mocks"
)

func TestRunner_SingleHolderRunsJob(t *testing.T) {
	locks := mocks.NewMockJobLockRepository()
	runnerA := NewRunner(locks, "replica-a", time.Second, nil, zerolog.Nop())
	runnerB := NewRunner(locks, "replica-b", time.Second, nil, zerolog.Nop())

	var runsA, runsB atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		runnerA.runOnce(ctx, "scan", func(ctx context.Context) error {
			runsA.Add(1)
			// B ticks while A holds the lock.
			runnerB.runOnce(ctx, "scan", func(ctx context.Context) error {
				runsB.Add(1)
				return nil
			}, zerolog.Nop())
			return nil
		}, zerolog.Nop())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("runOnce did not finish")
	}

	if runsA.Load() != 1 {
		t.Errorf("holder must run the job, got %d runs", runsA.Load())
	}
	if runsB.Load() != 0 {
		t.Errorf("second replica must skip while the lock is held, got %d runs", runsB.Load())
	}
}

func TestRunner_ReleasedLockPassesToNextReplica(t *testing.T) {
	locks := mocks.NewMockJobLockRepository()
	runnerA := NewRunner(locks, "replica-a", time.Second, nil, zerolog.Nop())
	runnerB := NewRunner(locks, "replica-b", time.Second, nil, zerolog.Nop())

	ctx := context.Background()
	var ranA, ranB bool

	runnerA.runOnce(ctx, "scan", func(ctx context.Context) error {
		ranA = true
		return nil
	}, zerolog.Nop())
	runnerB.runOnce(ctx, "scan", func(ctx context.Context) error {
		ranB = true
		return nil
	}, zerolog.Nop())

	if !ranA || !ranB {
		t.Errorf("released lock must be acquirable by the next tick, ranA=%v ranB=%v", ranA, ranB)
	}
}

func TestRunner_ExpiredLeaseCanBeTakenOver(t *testing.T) {
	locks := mocks.NewMockJobLockRepository()

	// A dead holder left a lapsed lease behind.
	if _, err := locks.TryAcquire(context.Background(), "scan", "dead-replica", -time.Second); err != nil {
		t.Fatalf("seed acquire failed: %v", err)
	}

	runner := NewRunner(locks, "replica-b", time.Second, nil, zerolog.Nop())
	var ran bool
	runner.runOnce(context.Background(), "scan", func(ctx context.Context) error {
		ran = true
		return nil
	}, zerolog.Nop())

	if !ran {
		t.Error("expired lease must be reacquirable")
	}
}

func TestRunner_HeartbeatRenewsLease(t *testing.T) {
	locks := mocks.NewMockJobLockRepository()
	var renewals atomic.Int32
	locks.RenewFunc = func(ctx context.Context, key, holderID string, ttl time.Duration) error {
		renewals.Add(1)
		return nil
	}

	runner := NewRunner(locks, "replica-a", 40*time.Millisecond, nil, zerolog.Nop())
	runner.runOnce(context.Background(), "scan", func(ctx context.Context) error {
		time.Sleep(150 * time.Millisecond)
		return nil
	}, zerolog.Nop())

	if renewals.Load() < 2 {
		t.Errorf("expected at least 2 renewals during a long job, got %d", renewals.Load())
	}
}

func TestRunner_LostLeaseCancelsJob(t *testing.T) {
	locks := mocks.NewMockJobLockRepository()
	locks.RenewFunc = func(ctx context.Context, key, holderID string, ttl time.Duration) error {
		return domain.ErrJobLockHeld
	}

	runner := NewRunner(locks, "replica-a", 40*time.Millisecond, nil, zerolog.Nop())

	cancelled := make(chan struct{})
	done := make(chan struct{})
	go func() {
		runner.runOnce(context.Background(), "scan", func(ctx context.Context) error {
			<-ctx.Done()
			close(cancelled)
			return ctx.Err()
		}, zerolog.Nop())
		close(done)
	}()

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("job context not cancelled after lease loss")
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runOnce did not return after lease loss")
	}
}

func TestRunner_RunStopsOnContextCancel(t *testing.T) {
	locks := mocks.NewMockJobLockRepository()
	runner := NewRunner(locks, "replica-a", time.Second, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	var runs atomic.Int32

	done := make(chan struct{})
	go func() {
		runner.Run(ctx, "scan", 10*time.Millisecond, func(ctx context.Context) error {
			if runs.Add(1) == 3 {
				cancel()
			}
			return nil
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	if runs.Load() < 3 {
		t.Errorf("expected at least 3 runs before cancel, got %d", runs.Load())
	}
}

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"

	"github.com/patrickngure45/tradesynapse-core/internal/domain"
)

var jobLockColumns = []string{"key", "holder_id", "held_until", "updated_at"}

func TestJobLockRepositoryTryAcquire(t *testing.T) {
	t.Run("acquires free lock", func(t *testing.T) {
		mockPool := newMockPool(t)
		now := time.Now().UTC()
		rows := pgxmock.NewRows(jobLockColumns).
			AddRow("deposit_scan:bsc", "replica-a", now.Add(time.Minute), now)
		mockPool.ExpectQuery(`INSERT INTO job_locks`).
			WithArgs("deposit_scan:bsc", "replica-a", pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnRows(rows)

		repo := &JobLockRepository{pool: mockPool}
		lock, err := repo.TryAcquire(context.Background(), "deposit_scan:bsc", "replica-a", time.Minute)
		if err != nil {
			t.Fatalf("acquire failed: %v", err)
		}
		if lock.HolderID != "replica-a" {
			t.Errorf("holder: expected replica-a, got %s", lock.HolderID)
		}
		assertExpectations(t, mockPool)
	})

	t.Run("live lease conflicts and reports holder", func(t *testing.T) {
		mockPool := newMockPool(t)
		now := time.Now().UTC()
		mockPool.ExpectQuery(`INSERT INTO job_locks`).
			WithArgs("deposit_scan:bsc", "replica-b", pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(pgx.ErrNoRows)
		mockPool.ExpectQuery(`SELECT key, holder_id, held_until, updated_at FROM job_locks WHERE key`).
			WithArgs("deposit_scan:bsc").
			WillReturnRows(pgxmock.NewRows(jobLockColumns).
				AddRow("deposit_scan:bsc", "replica-a", now.Add(time.Minute), now))

		repo := &JobLockRepository{pool: mockPool}
		lock, err := repo.TryAcquire(context.Background(), "deposit_scan:bsc", "replica-b", time.Minute)
		if !errors.Is(err, domain.ErrJobLockHeld) {
			t.Fatalf("expected ErrJobLockHeld, got %v", err)
		}
		if lock == nil || lock.HolderID != "replica-a" {
			t.Errorf("expected the current holder reported, got %+v", lock)
		}
		assertExpectations(t, mockPool)
	})
}

func TestJobLockRepositoryRenew(t *testing.T) {
	t.Run("extends own live lease", func(t *testing.T) {
		mockPool := newMockPool(t)
		mockPool.ExpectExec(`UPDATE job_locks SET held_until`).
			WithArgs("deposit_scan:bsc", "replica-a", pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		repo := &JobLockRepository{pool: mockPool}
		if err := repo.Renew(context.Background(), "deposit_scan:bsc", "replica-a", time.Minute); err != nil {
			t.Fatalf("renew failed: %v", err)
		}
		assertExpectations(t, mockPool)
	})

	t.Run("lapsed or stolen lease rejected", func(t *testing.T) {
		mockPool := newMockPool(t)
		mockPool.ExpectExec(`UPDATE job_locks SET held_until`).
			WithArgs("deposit_scan:bsc", "replica-a", pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		repo := &JobLockRepository{pool: mockPool}
		err := repo.Renew(context.Background(), "deposit_scan:bsc", "replica-a", time.Minute)
		if !errors.Is(err, domain.ErrJobLockHeld) {
			t.Fatalf("expected ErrJobLockHeld, got %v", err)
		}
		assertExpectations(t, mockPool)
	})
}

func TestJobLockRepositoryRelease(t *testing.T) {
	mockPool := newMockPool(t)
	mockPool.ExpectExec(`DELETE FROM job_locks`).
		WithArgs("deposit_scan:bsc", "replica-a").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	repo := &JobLockRepository{pool: mockPool}
	if err := repo.Release(context.Background(), "deposit_scan:bsc", "replica-a"); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	assertExpectations(t, mockPool)
}

func TestJobLockRepositoryList(t *testing.T) {
	mockPool := newMockPool(t)
	now := time.Now().UTC()
	rows := pgxmock.NewRows(jobLockColumns).
		AddRow("deposit_finalize:bsc", "replica-a", now.Add(time.Minute), now).
		AddRow("deposit_scan:bsc", "replica-b", now.Add(-time.Minute), now)
	mockPool.ExpectQuery(`SELECT key, holder_id, held_until, updated_at FROM job_locks ORDER BY key`).
		WillReturnRows(rows)

	repo := &JobLockRepository{pool: mockPool}
	locks, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(locks) != 2 {
		t.Fatalf("expected 2 locks, got %d", len(locks))
	}
	if locks[1].Expired(now) != true {
		t.Error("expected the lapsed lease to report expired")
	}
	assertExpectations(t, mockPool)
}

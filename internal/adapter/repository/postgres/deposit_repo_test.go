package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"

	"github.com/patrickngure45/tradesynapse-core/internal/domain"
)

func pendingDeposit() *domain.DepositEvent {
	return &domain.DepositEvent{
		ID:          "dep-1",
		Chain:       "bsc",
		TxHash:      "0xabc",
		LogIndex:    3,
		BlockNumber: 900,
		FromAddress: "0xsender",
		ToAddress:   "0xdeposit1",
		UserID:      "user-1",
		Asset:       "USDT",
		Amount:      decimal.NewFromInt(25),
		Status:      domain.DepositStatusPending,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestDepositRepositoryInsertPending(t *testing.T) {
	event := pendingDeposit()

	t.Run("new row inserted", func(t *testing.T) {
		mockPool := newMockPool(t)
		mockPool.ExpectExec(`INSERT INTO deposit_events`).
			WithArgs(event.ID, event.Chain, event.TxHash, event.LogIndex, event.BlockNumber,
				event.FromAddress, event.ToAddress, event.UserID, event.Asset,
				pgxmock.AnyArg(), "pending", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		repo := &DepositRepository{pool: mockPool}
		inserted, err := repo.InsertPending(context.Background(), event)
		if err != nil {
			t.Fatalf("insert failed: %v", err)
		}
		if !inserted {
			t.Error("expected inserted=true for a new row")
		}
		assertExpectations(t, mockPool)
	})

	t.Run("duplicate key absorbed", func(t *testing.T) {
		mockPool := newMockPool(t)
		mockPool.ExpectExec(`INSERT INTO deposit_events`).
			WithArgs(event.ID, event.Chain, event.TxHash, event.LogIndex, event.BlockNumber,
				event.FromAddress, event.ToAddress, event.UserID, event.Asset,
				pgxmock.AnyArg(), "pending", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 0))

		repo := &DepositRepository{pool: mockPool}
		inserted, err := repo.InsertPending(context.Background(), event)
		if err != nil {
			t.Fatalf("insert failed: %v", err)
		}
		if inserted {
			t.Error("expected inserted=false when the key already exists")
		}
		assertExpectations(t, mockPool)
	})
}

func TestDepositRepositoryGetByKey(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		mockPool := newMockPool(t)
		mockPool.ExpectQuery(`SELECT (.+) FROM deposit_events WHERE chain`).
			WithArgs("bsc", "0xmissing", 0).
			WillReturnError(pgx.ErrNoRows)

		repo := &DepositRepository{pool: mockPool}
		_, err := repo.GetByKey(context.Background(), "bsc", "0xmissing", 0)
		if !errors.Is(err, domain.ErrDepositNotFound) {
			t.Fatalf("expected ErrDepositNotFound, got %v", err)
		}
		assertExpectations(t, mockPool)
	})

	t.Run("found", func(t *testing.T) {
		mockPool := newMockPool(t)
		now := time.Now().UTC()
		rows := pgxmock.NewRows([]string{
			"id", "chain", "tx_hash", "log_index", "block_number", "from_address", "to_address",
			"user_id", "asset", "amount", "status", "journal_ref", "created_at", "confirmed_at",
		}).AddRow("dep-1", "bsc", "0xabc", 3, int64(900), "0xsender", "0xdeposit1",
			"user-1", "USDT", decimalToNumeric(decimal.NewFromInt(25)), "pending", nil, now, nil)
		mockPool.ExpectQuery(`SELECT (.+) FROM deposit_events WHERE chain`).
			WithArgs("bsc", "0xabc", 3).
			WillReturnRows(rows)

		repo := &DepositRepository{pool: mockPool}
		event, err := repo.GetByKey(context.Background(), "bsc", "0xabc", 3)
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if !event.Amount.Equal(decimal.NewFromInt(25)) {
			t.Errorf("amount: expected 25, got %s", event.Amount)
		}
		if event.Status != domain.DepositStatusPending {
			t.Errorf("status: expected pending, got %s", event.Status)
		}
		assertExpectations(t, mockPool)
	})
}

func TestDepositRepositoryMarkConfirmed(t *testing.T) {
	t.Run("pending row transitions", func(t *testing.T) {
		mockPool := newMockPool(t)
		mockPool.ExpectBegin()
		mockPool.ExpectExec(`UPDATE deposit_events`).
			WithArgs("dep-1", "bsc:0xabc:3", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mockPool.ExpectCommit()

		manager := newTxManagerWithPool(mockPool)
		tx, err := manager.Begin(context.Background())
		if err != nil {
			t.Fatalf("begin failed: %v", err)
		}

		repo := &DepositRepository{}
		updated, err := repo.MarkConfirmed(context.Background(), tx, "dep-1", "bsc:0xabc:3", time.Now().UTC())
		if err != nil {
			t.Fatalf("mark confirmed failed: %v", err)
		}
		if !updated {
			t.Error("expected the transition to be reported")
		}
		if err := tx.Commit(context.Background()); err != nil {
			t.Fatalf("commit failed: %v", err)
		}
		assertExpectations(t, mockPool)
	})

	t.Run("already confirmed row reports no transition", func(t *testing.T) {
		mockPool := newMockPool(t)
		mockPool.ExpectBegin()
		mockPool.ExpectExec(`UPDATE deposit_events`).
			WithArgs("dep-1", "bsc:0xabc:3", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mockPool.ExpectCommit()

		manager := newTxManagerWithPool(mockPool)
		tx, err := manager.Begin(context.Background())
		if err != nil {
			t.Fatalf("begin failed: %v", err)
		}

		repo := &DepositRepository{}
		updated, err := repo.MarkConfirmed(context.Background(), tx, "dep-1", "bsc:0xabc:3", time.Now().UTC())
		if err != nil {
			t.Fatalf("mark confirmed failed: %v", err)
		}
		if updated {
			t.Error("status-guarded update must report zero rows")
		}
		if err := tx.Commit(context.Background()); err != nil {
			t.Fatalf("commit failed: %v", err)
		}
		assertExpectations(t, mockPool)
	})
}

func TestDepositRepositoryCursor(t *testing.T) {
	t.Run("unscanned chain starts at zero", func(t *testing.T) {
		mockPool := newMockPool(t)
		mockPool.ExpectQuery(`SELECT last_scanned_block FROM deposit_cursors`).
			WithArgs("bsc").
			WillReturnError(pgx.ErrNoRows)

		repo := &DepositRepository{pool: mockPool}
		block, err := repo.GetCursor(context.Background(), "bsc")
		if err != nil {
			t.Fatalf("get cursor failed: %v", err)
		}
		if block != 0 {
			t.Errorf("expected 0 for an unscanned chain, got %d", block)
		}
		assertExpectations(t, mockPool)
	})

	t.Run("advance upserts watermark", func(t *testing.T) {
		mockPool := newMockPool(t)
		mockPool.ExpectExec(`INSERT INTO deposit_cursors`).
			WithArgs("bsc", int64(985), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		repo := &DepositRepository{pool: mockPool}
		if err := repo.AdvanceCursor(context.Background(), "bsc", 985); err != nil {
			t.Fatalf("advance failed: %v", err)
		}
		assertExpectations(t, mockPool)
	})

	t.Run("reset forces watermark", func(t *testing.T) {
		mockPool := newMockPool(t)
		mockPool.ExpectExec(`INSERT INTO deposit_cursors`).
			WithArgs("bsc", int64(100), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		repo := &DepositRepository{pool: mockPool}
		if err := repo.ResetCursor(context.Background(), "bsc", 100); err != nil {
			t.Fatalf("reset failed: %v", err)
		}
		assertExpectations(t, mockPool)
	})
}

func TestDepositRepositoryListPendingBelow(t *testing.T) {
	mockPool := newMockPool(t)
	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{
		"id", "chain", "tx_hash", "log_index", "block_number", "from_address", "to_address",
		"user_id", "asset", "amount", "status", "journal_ref", "created_at", "confirmed_at",
	}).
		AddRow("dep-1", "bsc", "0xabc", 3, int64(900), "0xs", "0xd", "user-1", "USDT",
			decimalToNumeric(decimal.NewFromInt(25)), "pending", nil, now, nil).
		AddRow("dep-2", "bsc", "0xdef", 0, int64(901), "0xs", "0xd", "user-2", "USDT",
			decimalToNumeric(decimal.RequireFromString("0.5")), "pending", nil, now, nil)
	mockPool.ExpectQuery(`SELECT (.+) FROM deposit_events`).
		WithArgs("bsc", int64(985), 100).
		WillReturnRows(rows)

	repo := &DepositRepository{pool: mockPool}
	events, err := repo.ListPendingBelow(context.Background(), "bsc", 985, 100)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if !events[1].Amount.Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("fractional amount mangled: %s", events[1].Amount)
	}
	assertExpectations(t, mockPool)
}

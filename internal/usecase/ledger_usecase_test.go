package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/patrickngure45/tradesynapse-core/internal/domain"
	"github.com/patrickngure45/tradesynapse-core/internal/usecase"
	"github.com/patrickngure45/tradesynapse-core/internal/usecase/mocks"
)

type ledgerFixture struct {
	accountRepo *mocks.MockAccountRepository
	journalRepo *mocks.MockJournalRepository
	holdRepo    *mocks.MockHoldRepository
	outboxRepo  *mocks.MockOutboxRepository
	ledger      *usecase.LedgerUseCase
}

func newLedgerFixture() *ledgerFixture {
	f := &ledgerFixture{
		accountRepo: mocks.NewMockAccountRepository(),
		journalRepo: mocks.NewMockJournalRepository(),
		holdRepo:    mocks.NewMockHoldRepository(),
		outboxRepo:  mocks.NewMockOutboxRepository(),
	}
	f.ledger = usecase.NewLedgerUseCase(
		mocks.NewMockTransactionManager(),
		f.accountRepo, f.journalRepo, f.holdRepo, f.outboxRepo,
		mocks.NewMockIDGenerator(), nil)
	return f
}

func (f *ledgerFixture) seedAccount(id, userID, asset string) {
	f.accountRepo.Seed(&domain.Account{ID: id, UserID: userID, Asset: asset})
}

func TestLedgerUseCase_PostJournalEntry(t *testing.T) {
	tests := []struct {
		name    string
		input   usecase.PostJournalEntryInput
		wantErr error
	}{
		{
			name: "balanced transfer",
			input: usecase.PostJournalEntryInput{
				Type:      domain.EntryTypeP2PSettle,
				Reference: "p2p_order:1",
				Lines: []usecase.LineInput{
					{AccountID: "acct-sys", Asset: "USDT", Amount: decimal.NewFromInt(-25)},
					{AccountID: "acct-user", Asset: "USDT", Amount: decimal.NewFromInt(25)},
				},
			},
		},
		{
			name: "unbalanced entry rejected",
			input: usecase.PostJournalEntryInput{
				Type:      domain.EntryTypeP2PSettle,
				Reference: "p2p_order:2",
				Lines: []usecase.LineInput{
					{AccountID: "acct-sys", Asset: "USDT", Amount: decimal.NewFromInt(-25)},
					{AccountID: "acct-user", Asset: "USDT", Amount: decimal.NewFromInt(20)},
				},
			},
			wantErr: domain.ErrUnbalancedEntry,
		},
		{
			name: "no lines rejected",
			input: usecase.PostJournalEntryInput{
				Type:      domain.EntryTypeAdjustment,
				Reference: "adj:1",
			},
			wantErr: domain.ErrEmptyEntry,
		},
		{
			name: "asset mismatch rejected",
			input: usecase.PostJournalEntryInput{
				Type:      domain.EntryTypeP2PSettle,
				Reference: "p2p_order:3",
				Lines: []usecase.LineInput{
					{AccountID: "acct-sys", Asset: "BNB", Amount: decimal.NewFromInt(-1)},
					{AccountID: "acct-user", Asset: "BNB", Amount: decimal.NewFromInt(1)},
				},
			},
			wantErr: domain.ErrAssetMismatch,
		},
		{
			name: "unknown account rejected",
			input: usecase.PostJournalEntryInput{
				Type:      domain.EntryTypeP2PSettle,
				Reference: "p2p_order:4",
				Lines: []usecase.LineInput{
					{AccountID: "acct-ghost", Asset: "USDT", Amount: decimal.NewFromInt(-1)},
					{AccountID: "acct-user", Asset: "USDT", Amount: decimal.NewFromInt(1)},
				},
			},
			wantErr: domain.ErrAccountNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newLedgerFixture()
			f.seedAccount("acct-sys", domain.SystemUserID, "USDT")
			f.seedAccount("acct-user", "user-1", "USDT")

			entry, err := f.ledger.PostJournalEntry(context.Background(), tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if entry == nil || len(entry.Lines) != len(tt.input.Lines) {
				t.Fatal("entry not posted with all lines")
			}

			events := f.outboxRepo.EventsByTopic(domain.TopicJournalPosted)
			if len(events) != 1 {
				t.Errorf("expected 1 journal.posted outbox event, got %d", len(events))
			}
		})
	}
}

func TestLedgerUseCase_PostJournalEntry_DuplicateReferenceReturnsExisting(t *testing.T) {
	f := newLedgerFixture()
	f.seedAccount("acct-sys", domain.SystemUserID, "USDT")
	f.seedAccount("acct-user", "user-1", "USDT")

	input := usecase.PostJournalEntryInput{
		Type:      domain.EntryTypeDepositCredit,
		Reference: "bsc:0xabc:0",
		Lines: []usecase.LineInput{
			{AccountID: "acct-sys", Asset: "USDT", Amount: decimal.NewFromInt(-10)},
			{AccountID: "acct-user", Asset: "USDT", Amount: decimal.NewFromInt(10)},
		},
	}

	first, err := f.ledger.PostJournalEntry(context.Background(), input)
	if err != nil {
		t.Fatalf("first post failed: %v", err)
	}

	second, err := f.ledger.PostJournalEntry(context.Background(), input)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("retry created a new entry: %s vs %s", second.ID, first.ID)
	}
	if len(f.journalRepo.Entries()) != 1 {
		t.Errorf("expected exactly one stored entry, got %d", len(f.journalRepo.Entries()))
	}
}

func TestLedgerUseCase_GetAvailableBalance(t *testing.T) {
	f := newLedgerFixture()
	f.seedAccount("acct-sys", domain.SystemUserID, "USDT")
	f.seedAccount("acct-user", "user-1", "USDT")

	_, err := f.ledger.PostJournalEntry(context.Background(), usecase.PostJournalEntryInput{
		Type:      domain.EntryTypeDepositCredit,
		Reference: "bsc:0xdep:0",
		Lines: []usecase.LineInput{
			{AccountID: "acct-sys", Asset: "USDT", Amount: decimal.NewFromInt(-100)},
			{AccountID: "acct-user", Asset: "USDT", Amount: decimal.NewFromInt(100)},
		},
	})
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}

	f.holdRepo.Seed(&domain.Hold{
		ID: "hold-1", AccountID: "acct-user", Asset: "USDT",
		Amount: decimal.NewFromInt(30), RemainingAmount: decimal.NewFromInt(30),
		Status: domain.HoldStatusActive,
	})
	f.holdRepo.Seed(&domain.Hold{
		ID: "hold-2", AccountID: "acct-user", Asset: "USDT",
		Amount: decimal.NewFromInt(50), RemainingAmount: decimal.NewFromInt(50),
		Status: domain.HoldStatusReleased,
	})

	balances, err := f.ledger.GetAvailableBalance(context.Background(), "acct-user")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !balances.Posted.Equal(decimal.NewFromInt(100)) {
		t.Errorf("posted: expected 100, got %s", balances.Posted)
	}
	if !balances.Held.Equal(decimal.NewFromInt(30)) {
		t.Errorf("held: expected 30 (released holds excluded), got %s", balances.Held)
	}
	if !balances.Available.Equal(decimal.NewFromInt(70)) {
		t.Errorf("available: expected 70, got %s", balances.Available)
	}
}

func TestLedgerUseCase_GetOrCreateAccount(t *testing.T) {
	f := newLedgerFixture()

	first, err := f.ledger.GetOrCreateAccount(context.Background(), "user-1", "USDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second, err := f.ledger.GetOrCreateAccount(context.Background(), "user-1", "USDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("expected same account on repeat call, got %s and %s", first.ID, second.ID)
	}

	other, err := f.ledger.GetOrCreateAccount(context.Background(), "user-1", "BNB")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if other.ID == first.ID {
		t.Error("different asset must map to a different account")
	}
}

package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/patrickngure45/tradesynapse-core/internal/domain"
	"github.com/patrickngure45/tradesynapse-core/internal/usecase"
	"github.com/patrickngure45/tradesynapse-core/internal/usecase/mocks"
)

func newOutboxUseCase(repo *mocks.MockOutboxRepository, pub *mocks.MockPublisher, cfg usecase.OutboxConfig) *usecase.OutboxUseCase {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.LockTTL == 0 {
		cfg.LockTTL = time.Minute
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = time.Second
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = time.Minute
	}
	return usecase.NewOutboxUseCase(repo, pub, cfg, nil, zerolog.Nop())
}

func seedOutboxEvent(repo *mocks.MockOutboxRepository, id, topic string) *domain.OutboxEvent {
	event := &domain.OutboxEvent{
		ID:           id,
		Topic:        topic,
		AggregateRef: "ref-" + id,
		Payload:      map[string]any{"id": id},
		VisibleAt:    time.Now().UTC().Add(-time.Second),
		CreatedAt:    time.Now().UTC(),
	}
	repo.Seed(event)
	return event
}

func TestOutboxUseCase_DispatchPublishesAndAcks(t *testing.T) {
	repo := mocks.NewMockOutboxRepository()
	pub := mocks.NewMockPublisher()
	uc := newOutboxUseCase(repo, pub, usecase.OutboxConfig{})

	seedOutboxEvent(repo, "evt-1", domain.TopicDepositConfirmed)
	seedOutboxEvent(repo, "evt-2", domain.TopicJournalPosted)

	summary, err := uc.Dispatch(context.Background(), time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Claimed != 2 || summary.Published != 2 {
		t.Fatalf("expected 2 claimed and published, got %+v", summary)
	}
	if len(pub.Published) != 2 {
		t.Fatalf("expected 2 publishes, got %d", len(pub.Published))
	}

	for _, event := range repo.Events() {
		if event.ProcessedAt == nil {
			t.Errorf("event %s not acked", event.ID)
		}
	}

	// A second run finds nothing claimable.
	summary, err = uc.Dispatch(context.Background(), time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Claimed != 0 {
		t.Errorf("processed events must not be reclaimed, got %d", summary.Claimed)
	}
}

func TestOutboxUseCase_PublishFailureReschedulesWithBackoff(t *testing.T) {
	repo := mocks.NewMockOutboxRepository()
	pub := mocks.NewMockPublisher()
	uc := newOutboxUseCase(repo, pub, usecase.OutboxConfig{
		MaxAttempts:  5,
		RetryBackoff: time.Second,
		MaxBackoff:   8 * time.Second,
	})

	event := seedOutboxEvent(repo, "evt-1", domain.TopicJournalPosted)
	event.Attempts = 2 // two prior failures already recorded
	repo.Seed(event)

	pub.PublishFunc = func(ctx context.Context, topic, key string, payload []byte) error {
		return errors.New("broker unavailable")
	}
	var nextVisible time.Time
	repo.FailFunc = func(ctx context.Context, id, lockID, lastError string, nextVisibleAt time.Time) error {
		nextVisible = nextVisibleAt
		return nil
	}

	before := time.Now()
	summary, err := uc.Dispatch(context.Background(), time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Failed != 1 || summary.DeadLettered != 0 {
		t.Fatalf("expected 1 failure, got %+v", summary)
	}

	// Third attempt backs off 1s * 2^2 = 4s.
	delay := nextVisible.Sub(before)
	if delay < 3*time.Second || delay > 5*time.Second {
		t.Errorf("expected roughly 4s backoff, got %s", delay)
	}
}

func TestOutboxUseCase_ExhaustedAttemptsDeadLetter(t *testing.T) {
	repo := mocks.NewMockOutboxRepository()
	pub := mocks.NewMockPublisher()
	uc := newOutboxUseCase(repo, pub, usecase.OutboxConfig{MaxAttempts: 3})

	event := seedOutboxEvent(repo, "evt-1", domain.TopicJournalPosted)
	event.Attempts = 2
	repo.Seed(event)

	pub.PublishFunc = func(ctx context.Context, topic, key string, payload []byte) error {
		return errors.New("broker unavailable")
	}

	summary, err := uc.Dispatch(context.Background(), time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.DeadLettered != 1 || summary.Failed != 0 {
		t.Fatalf("expected dead letter at max attempts, got %+v", summary)
	}

	stored := repo.Events()[0]
	if stored.DeadLetteredAt == nil {
		t.Fatal("dead_lettered_at not set")
	}
	if stored.ProcessedAt != nil {
		t.Error("dead-lettered event must stay unprocessed until operator action")
	}

	// Dead-lettered events are out of rotation.
	summary, _ = uc.Dispatch(context.Background(), time.Minute)
	if summary.Claimed != 0 {
		t.Errorf("dead-lettered event must not be reclaimed, got %d claimed", summary.Claimed)
	}
}

func TestOutboxUseCase_UnmarshalablePayloadDeadLetters(t *testing.T) {
	repo := mocks.NewMockOutboxRepository()
	pub := mocks.NewMockPublisher()
	uc := newOutboxUseCase(repo, pub, usecase.OutboxConfig{})

	event := seedOutboxEvent(repo, "evt-1", domain.TopicJournalPosted)
	event.Payload = map[string]any{"bad": make(chan int)}
	repo.Seed(event)

	summary, err := uc.Dispatch(context.Background(), time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.DeadLettered != 1 {
		t.Fatalf("expected immediate dead letter, got %+v", summary)
	}
	if len(pub.Published) != 0 {
		t.Error("unmarshalable payload must not reach the publisher")
	}
}

func TestOutboxUseCase_StaleLockTransitionRejected(t *testing.T) {
	repo := mocks.NewMockOutboxRepository()
	pub := mocks.NewMockPublisher()
	uc := newOutboxUseCase(repo, pub, usecase.OutboxConfig{})

	event := seedOutboxEvent(repo, "evt-1", domain.TopicJournalPosted)

	// Between publish and ack another worker reclaims the event, so the ack
	// presents a lock id that no longer matches and must not land.
	pub.PublishFunc = func(ctx context.Context, topic, key string, payload []byte) error {
		now := time.Now().UTC()
		otherLock := "other-worker-lock"
		event.LockID = &otherLock
		event.LockedAt = &now
		repo.Seed(event)
		return nil
	}

	summary, err := uc.Dispatch(context.Background(), time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Claimed != 1 {
		t.Fatalf("expected 1 claimed, got %+v", summary)
	}

	stored := repo.Events()[0]
	if stored.ProcessedAt != nil {
		t.Error("stale ack must not mark the event processed")
	}
	if stored.LockID == nil || *stored.LockID != "other-worker-lock" {
		t.Error("reclaiming worker's lock must survive the stale ack")
	}
}

func TestOutboxUseCase_TopicFilter(t *testing.T) {
	repo := mocks.NewMockOutboxRepository()
	pub := mocks.NewMockPublisher()
	uc := newOutboxUseCase(repo, pub, usecase.OutboxConfig{
		Topics: []string{domain.TopicDepositConfirmed},
	})

	seedOutboxEvent(repo, "evt-dep", domain.TopicDepositConfirmed)
	seedOutboxEvent(repo, "evt-journal", domain.TopicJournalPosted)

	summary, err := uc.Dispatch(context.Background(), time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Claimed != 1 || summary.Published != 1 {
		t.Fatalf("expected only the filtered topic, got %+v", summary)
	}
	if pub.Published[0].Topic != domain.TopicDepositConfirmed {
		t.Errorf("wrong topic published: %s", pub.Published[0].Topic)
	}
}

func TestOutboxUseCase_DeadLetterOperations(t *testing.T) {
	repo := mocks.NewMockOutboxRepository()
	pub := mocks.NewMockPublisher()
	uc := newOutboxUseCase(repo, pub, usecase.OutboxConfig{MaxAttempts: 1})

	pub.PublishFunc = func(ctx context.Context, topic, key string, payload []byte) error {
		return errors.New("broker unavailable")
	}
	seedOutboxEvent(repo, "evt-1", domain.TopicJournalPosted)

	if _, err := uc.Dispatch(context.Background(), time.Minute); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if repo.Events()[0].DeadLetteredAt == nil {
		t.Fatal("expected event dead-lettered")
	}

	t.Run("retry requeues with reset attempts", func(t *testing.T) {
		if err := uc.RetryDeadLetter(context.Background(), "evt-1"); err != nil {
			t.Fatalf("retry failed: %v", err)
		}
		stored := repo.Events()[0]
		if stored.DeadLetteredAt != nil || stored.Attempts != 0 {
			t.Errorf("expected requeued with reset attempts, got %+v", stored)
		}

		pub.PublishFunc = nil
		summary, err := uc.Dispatch(context.Background(), time.Minute)
		if err != nil {
			t.Fatalf("dispatch failed: %v", err)
		}
		if summary.Published != 1 {
			t.Errorf("retried event must publish, got %+v", summary)
		}
	})

	t.Run("resolve on a live event fails", func(t *testing.T) {
		seedOutboxEvent(repo, "evt-2", domain.TopicJournalPosted)
		if err := uc.ResolveDeadLetter(context.Background(), "evt-2"); !errors.Is(err, domain.ErrOutboxNotDead) {
			t.Fatalf("expected ErrOutboxNotDead, got %v", err)
		}
	})

	t.Run("purge removes old processed events", func(t *testing.T) {
		purged, err := uc.PurgeProcessed(context.Background(), time.Now().Add(time.Hour))
		if err != nil {
			t.Fatalf("purge failed: %v", err)
		}
		if purged != 1 {
			t.Errorf("expected 1 purged, got %d", purged)
		}
	})
}

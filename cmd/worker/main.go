package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/patrickngure45/tradesynapse-core/internal/adapter/chain"
	"github.com/patrickngure45/tradesynapse-core/internal/adapter/publisher"
	postgresRepo "github.com/patrickngure45/tradesynapse-core/internal/adapter/repository/postgres"
	redisRepo "github.com/patrickngure45/tradesynapse-core/internal/adapter/repository/redis"
	"github.com/patrickngure45/tradesynapse-core/internal/infrastructure/config"
	"github.com/patrickngure45/tradesynapse-core/internal/infrastructure/logger"
	"github.com/patrickngure45/tradesynapse-core/internal/infrastructure/metrics"
	"github.com/patrickngure45/tradesynapse-core/internal/infrastructure/postgres"
	"github.com/patrickngure45/tradesynapse-core/internal/infrastructure/redis"
	"github.com/patrickngure45/tradesynapse-core/internal/scheduler"
	"github.com/patrickngure45/tradesynapse-core/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Service: "settlement-worker",
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL and apply migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns, cfg.DatabaseMinConns)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()
	log.Info().Msg("connected to postgres")

	if err := postgres.RunMigrations(cfg.DatabaseURL, log); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	// Connect to Redis (address directory cache).
	redisClient, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("connected to redis")

	m := metrics.New()

	// Repositories.
	idGen := postgresRepo.NewULIDGenerator()
	txManager := postgresRepo.NewTxManager(pool)
	accountRepo := postgresRepo.NewAccountRepository(pool, idGen)
	journalRepo := postgresRepo.NewJournalRepository(pool)
	holdRepo := postgresRepo.NewHoldRepository(pool)
	depositRepo := postgresRepo.NewDepositRepository(pool)
	outboxRepo := postgresRepo.NewOutboxRepository(pool)
	jobLockRepo := postgresRepo.NewJobLockRepository(pool)
	retrier := postgresRepo.NewRetrier(log)

	directory := redisRepo.NewAddressCache(
		postgresRepo.NewAddressDirectoryRepository(pool),
		redisClient, cfg.AddressCacheTTL, log)

	// Chain gateway.
	provider := chain.NewRPCProvider(cfg.ChainRPCURL, 30*time.Second)
	gateway, err := chain.NewScanClient(provider, chain.Config{
		MaxRetries:        cfg.ScanMaxRangeRetries,
		InitialBackoff:    time.Second,
		MaxBackoff:        30 * time.Second,
		MaxBisectDepth:    cfg.ScanMaxBisectDepth,
		ContractChunkSize: cfg.ScanContractChunkSize,
		TopicChunkSize:    cfg.ScanTopicChunkSize,
		ChunkConcurrency:  cfg.ScanChunkConcurrency,
	}, m, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create chain scan client")
	}
	defer gateway.Close()

	// Kafka sink.
	kafkaPublisher := publisher.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopicPrefix, log)
	defer kafkaPublisher.Close()
	notifier := publisher.NewKafkaNotifier(kafkaPublisher)

	// Use cases.
	ledgerUC := usecase.NewLedgerUseCase(txManager, accountRepo, journalRepo, holdRepo, outboxRepo, idGen, m)

	scannerUC := usecase.NewScannerUseCase(gateway, directory, depositRepo, idGen, usecase.ScannerConfig{
		Chain:                 cfg.Chain,
		RequiredConfirmations: cfg.RequiredConfirmations,
		BatchBlocks:           cfg.ScanBatchBlocks,
		MaxBlocksPerRun:       cfg.ScanMaxBlocksPerRun,
		LookbackBlocks:        cfg.ScanLookbackBlocks,
		MaxAddresses:          cfg.ScanMaxAddresses,
	}, m, log)

	finalizerUC := usecase.NewFinalizerUseCase(txManager, gateway, depositRepo, accountRepo, outboxRepo,
		ledgerUC, notifier, idGen, retrier, usecase.FinalizerConfig{
			Chain:                 cfg.Chain,
			RequiredConfirmations: cfg.RequiredConfirmations,
			BatchSize:             cfg.FinalizeBatchSize,
		}, m, log)

	outboxUC := usecase.NewOutboxUseCase(outboxRepo, kafkaPublisher, usecase.OutboxConfig{
		BatchSize:    cfg.OutboxBatchSize,
		LockTTL:      cfg.OutboxLockTTL,
		MaxAttempts:  cfg.OutboxMaxAttempts,
		RetryBackoff: cfg.OutboxRetryBackoff,
		MaxBackoff:   cfg.OutboxMaxBackoff,
	}, m, log)

	// Scheduled jobs, serialized across replicas by the job lock.
	hostname, _ := os.Hostname()
	holderID := hostname + "-" + uuid.NewString()
	runner := scheduler.NewRunner(jobLockRepo, holderID, cfg.JobLockTTL, m, log)

	var wg sync.WaitGroup
	runJob := func(name string, interval time.Duration, job scheduler.Job) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runner.Run(ctx, name, interval, job)
		}()
	}

	runJob("deposit_scan:"+cfg.Chain, cfg.ScanInterval, func(ctx context.Context) error {
		summary, err := scannerUC.ScanChain(ctx, cfg.ScanTimeBudget)
		log.Info().
			Int64("safe_tip", summary.SafeTip).
			Int64("last_scanned", summary.LastScanned).
			Int("inserted", summary.Inserted).
			Int("duplicates", summary.Duplicates).
			Int("malformed_skipped", summary.MalformedSkipped).
			Bool("stopped_early", summary.StoppedEarly).
			Msg("deposit scan finished")
		return err
	})

	runJob("deposit_finalize:"+cfg.Chain, cfg.FinalizeInterval, func(ctx context.Context) error {
		summary, err := finalizerUC.FinalizeDeposits(ctx, cfg.FinalizeTimeBudget)
		log.Info().
			Int("selected", summary.Selected).
			Int("credited", summary.Credited).
			Int("skipped", summary.Skipped).
			Msg("deposit finalize finished")
		return err
	})

	runJob("outbox_dispatch", cfg.OutboxInterval, func(ctx context.Context) error {
		summary, err := outboxUC.Dispatch(ctx, cfg.OutboxTimeBudget)
		if summary.Claimed > 0 {
			log.Info().
				Int("claimed", summary.Claimed).
				Int("published", summary.Published).
				Int("failed", summary.Failed).
				Int("dead_lettered", summary.DeadLettered).
				Msg("outbox dispatch finished")
		}
		return err
	})

	runJob("outbox_purge", time.Hour, func(ctx context.Context) error {
		purged, err := outboxUC.PurgeProcessed(ctx, time.Now().Add(-cfg.OutboxRetention))
		if purged > 0 {
			log.Info().Int64("purged", purged).Msg("outbox retention sweep finished")
		}
		return err
	})

	// Ops surface: metrics and health only.
	router := chi.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "postgres unreachable", http.StatusServiceUnavailable)
			return
		}
		if err := redisClient.Ping(r.Context()).Err(); err != nil {
			http.Error(w, "redis unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:    ":" + cfg.OpsPort,
		Handler: router,
	}

	go func() {
		log.Info().Str("port", cfg.OpsPort).Msg("starting ops server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("ops server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("ops server forced to shutdown")
	}

	wg.Wait()
	log.Info().Msg("worker stopped")
}

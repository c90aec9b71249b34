package config_test

import (
	"testing"
	"time"

	"github.com/patrickngure45/tradesynapse-core/internal/infrastructure/config"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("CHAIN", "")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error loading config: %v", err)
	}

	if cfg.DatabaseURL == "" {
		t.Fatalf("expected default database URL to be set")
	}

	if cfg.Chain != "bsc" {
		t.Fatalf("expected default chain bsc, got %s", cfg.Chain)
	}

	if cfg.RequiredConfirmations != 15 {
		t.Fatalf("expected default 15 confirmations, got %d", cfg.RequiredConfirmations)
	}

	if cfg.OpsPort != "9090" {
		t.Fatalf("expected default ops port 9090, got %s", cfg.OpsPort)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("REDIS_URL", "redis://example")
	t.Setenv("CHAIN", "eth")
	t.Setenv("CHAIN_RPC_URL", "https://rpc.example")
	t.Setenv("REQUIRED_CONFIRMATIONS", "30")
	t.Setenv("SCAN_INTERVAL", "5s")
	t.Setenv("OUTBOX_MAX_ATTEMPTS", "3")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error loading config: %v", err)
	}

	if cfg.DatabaseURL != "postgres://example" {
		t.Fatalf("expected custom database URL, got %s", cfg.DatabaseURL)
	}

	if cfg.RedisURL != "redis://example" {
		t.Fatalf("expected custom redis URL, got %s", cfg.RedisURL)
	}

	if cfg.Chain != "eth" || cfg.ChainRPCURL != "https://rpc.example" {
		t.Fatalf("expected chain overrides, got %s %s", cfg.Chain, cfg.ChainRPCURL)
	}

	if cfg.RequiredConfirmations != 30 {
		t.Fatalf("expected confirmations override, got %d", cfg.RequiredConfirmations)
	}

	if cfg.ScanInterval != 5*time.Second {
		t.Fatalf("expected scan interval override, got %s", cfg.ScanInterval)
	}

	if cfg.OutboxMaxAttempts != 3 {
		t.Fatalf("expected outbox attempts override, got %d", cfg.OutboxMaxAttempts)
	}

	if cfg.KafkaBrokers != "kafka-1:9092,kafka-2:9092" {
		t.Fatalf("expected kafka brokers override, got %s", cfg.KafkaBrokers)
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	t.Setenv("SCAN_INTERVAL", "not-a-duration")

	if _, err := config.Load(); err == nil {
		t.Fatalf("expected error for invalid duration")
	}
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	postgresRepo "github.com/patrickngure45/tradesynapse-core/internal/adapter/repository/postgres"
	"github.com/patrickngure45/tradesynapse-core/internal/infrastructure/postgres"
)

var (
	databaseURL string
	timeout     time.Duration
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "settlement-cli",
		Short: "Settlement core admin tool",
		Long:  `Operator commands for the settlement core: outbox dead letters, scan cursors and job locks.`,
	}

	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url",
		os.Getenv("DATABASE_URL"), "Postgres connection URL")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Command timeout")

	// Outbox commands
	outboxCmd := &cobra.Command{
		Use:   "outbox",
		Short: "Outbox dead-letter operations",
	}

	var deadLimit int
	deadCmd := &cobra.Command{
		Use:   "dead",
		Short: "List dead-lettered events",
		Run: func(cmd *cobra.Command, args []string) {
			withRepos(func(ctx context.Context, repos *repos) error {
				events, err := repos.outbox.ListDeadLettered(ctx, deadLimit)
				if err != nil {
					return err
				}
				if len(events) == 0 {
					fmt.Println("no dead-lettered events")
					return nil
				}
				for _, event := range events {
					lastError := ""
					if event.LastError != nil {
						lastError = *event.LastError
					}
					payload, _ := json.Marshal(event.Payload)
					fmt.Printf("%s  %-20s  attempts=%d  dead_since=%s\n  ref=%s\n  error=%s\n  payload=%s\n",
						event.ID, event.Topic, event.Attempts,
						event.DeadLetteredAt.Format(time.RFC3339),
						event.AggregateRef, lastError, payload)
				}
				return nil
			})
		},
	}
	deadCmd.Flags().IntVar(&deadLimit, "limit", 50, "Maximum events to list")

	retryCmd := &cobra.Command{
		Use:   "retry <event-id>",
		Short: "Put a dead-lettered event back on the queue",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			withRepos(func(ctx context.Context, repos *repos) error {
				if err := repos.outbox.RetryDeadLetter(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("event %s queued for retry\n", args[0])
				return nil
			})
		},
	}

	resolveCmd := &cobra.Command{
		Use:   "resolve <event-id>",
		Short: "Mark a dead-lettered event handled without retrying",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			withRepos(func(ctx context.Context, repos *repos) error {
				if err := repos.outbox.ResolveDeadLetter(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("event %s resolved\n", args[0])
				return nil
			})
		},
	}

	outboxCmd.AddCommand(deadCmd, retryCmd, resolveCmd)
	rootCmd.AddCommand(outboxCmd)

	// Cursor commands
	cursorCmd := &cobra.Command{
		Use:   "cursor",
		Short: "Deposit scan cursor operations",
	}

	cursorGetCmd := &cobra.Command{
		Use:   "get <chain>",
		Short: "Show a chain's scan watermark",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			withRepos(func(ctx context.Context, repos *repos) error {
				block, err := repos.deposits.GetCursor(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("chain=%s last_scanned_block=%d\n", args[0], block)
				return nil
			})
		},
	}

	cursorSetCmd := &cobra.Command{
		Use:   "set <chain> <block>",
		Short: "Force-set a chain's scan watermark (backward moves trigger a rescan)",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			withRepos(func(ctx context.Context, repos *repos) error {
				block, err := strconv.ParseInt(args[1], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid block number %q: %w", args[1], err)
				}
				if err := repos.deposits.ResetCursor(ctx, args[0], block); err != nil {
					return err
				}
				fmt.Printf("chain=%s cursor set to %d\n", args[0], block)
				return nil
			})
		},
	}

	cursorCmd.AddCommand(cursorGetCmd, cursorSetCmd)
	rootCmd.AddCommand(cursorCmd)

	// Lock commands
	lockCmd := &cobra.Command{
		Use:   "locks",
		Short: "List current job locks",
		Run: func(cmd *cobra.Command, args []string) {
			withRepos(func(ctx context.Context, repos *repos) error {
				locks, err := repos.jobLocks.List(ctx)
				if err != nil {
					return err
				}
				if len(locks) == 0 {
					fmt.Println("no job locks held")
					return nil
				}
				now := time.Now()
				for _, lock := range locks {
					state := "live"
					if lock.HeldUntil.Before(now) {
						state = "expired"
					}
					fmt.Printf("%-30s  holder=%s  held_until=%s  (%s)\n",
						lock.Key, lock.HolderID, lock.HeldUntil.Format(time.RFC3339), state)
				}
				return nil
			})
		},
	}
	rootCmd.AddCommand(lockCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

type repos struct {
	outbox   *postgresRepo.OutboxRepository
	deposits *postgresRepo.DepositRepository
	jobLocks *postgresRepo.JobLockRepository
}

// withRepos connects, runs fn and exits non-zero on failure. Each command
// gets a fresh short-lived pool; this is an operator tool, not a service.
func withRepos(fn func(ctx context.Context, repos *repos) error) {
	if databaseURL == "" {
		fmt.Fprintln(os.Stderr, "missing --database-url (or DATABASE_URL)")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	pool, err := postgres.NewPool(ctx, databaseURL, 2, 1)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to postgres: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	err = fn(ctx, &repos{
		outbox:   postgresRepo.NewOutboxRepository(pool),
		deposits: postgresRepo.NewDepositRepository(pool),
		jobLocks: postgresRepo.NewJobLockRepository(pool),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

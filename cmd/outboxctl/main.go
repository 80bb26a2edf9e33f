// Package main provides the outboxctl CLI for operating the outbox: inspect
// dead-lettered entries, requeue them after the underlying fault is fixed,
// and check queue depth and lag.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"kartograph-backend/internal/config"
	"kartograph-backend/internal/observability"
	"kartograph-backend/internal/outbox"
)

var rootCmd = &cobra.Command{
	Use:   "outboxctl",
	Short: "Operate the outbox queue",
	Long: `outboxctl inspects and repairs the outbox queue.

Examples:
  outboxctl status                  # queue depth and lag
  outboxctl dead-letters --limit 10 # list parked entries
  outboxctl requeue <entry-id>      # reset a parked entry for retry`,
	SilenceUsage: true,
}

var deadLettersCmd = &cobra.Command{
	Use:   "dead-letters",
	Short: "List dead-lettered entries as JSON lines",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withRepository(cmd.Context(), func(ctx context.Context, repo *outbox.Repository) error {
			entries, err := repo.ListDeadLettered(ctx, limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("no dead-lettered entries")
				return nil
			}
			for _, entry := range entries {
				line, err := json.Marshal(map[string]any{
					"id":             entry.ID,
					"event_type":     entry.EventType,
					"aggregate_type": entry.AggregateType,
					"aggregate_id":   entry.AggregateID,
					"retry_count":    entry.RetryCount,
					"created_at":     entry.CreatedAt,
				})
				if err != nil {
					return err
				}
				fmt.Println(string(line))
			}
			return nil
		})
	},
}

var requeueCmd = &cobra.Command{
	Use:   "requeue <entry-id>",
	Short: "Reset a dead-lettered entry so the worker retries it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid entry id %q: %w", args[0], err)
		}
		return withRepository(cmd.Context(), func(ctx context.Context, repo *outbox.Repository) error {
			if err := repo.Requeue(ctx, id); err != nil {
				return err
			}
			fmt.Printf("requeued %s\n", id)
			return nil
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue depth and the age of the oldest unprocessed entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRepository(cmd.Context(), func(ctx context.Context, repo *outbox.Repository) error {
			count, err := repo.UnprocessedCount(ctx)
			if err != nil {
				return err
			}
			age, err := repo.OldestUnprocessedAge(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("unprocessed: %d\n", count)
			if age > 0 {
				fmt.Printf("oldest unprocessed age: %s\n", age)
			}
			return nil
		})
	},
}

// withRepository loads configuration, opens a pool, and hands a repository to
// fn. Command output goes to stdout; the logger only carries errors.
func withRepository(ctx context.Context, fn func(context.Context, *outbox.Repository) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(string(cfg.Environment))
	if err != nil {
		return err
	}
	defer logger.Sync()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	return fn(ctx, outbox.NewRepository(pool, outbox.NewIAMRegistry(), logger))
}

func init() {
	deadLettersCmd.Flags().Int("limit", 50, "maximum entries to list")

	rootCmd.AddCommand(deadLettersCmd)
	rootCmd.AddCommand(requeueCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error: "+err.Error())
		os.Exit(1)
	}
}

// Package main provides the loader CLI: it reads a JSONL mutation batch and
// applies it to the property graph in one transaction.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"kartograph-backend/internal/config"
	"kartograph-backend/internal/graph"
	"kartograph-backend/internal/graph/bulk"
	"kartograph-backend/internal/observability"
)

var (
	batchFile string
	graphName string
)

var rootCmd = &cobra.Command{
	Use:   "loader",
	Short: "Apply a JSONL mutation batch to the property graph",
	Long: `loader applies a batch of graph mutations atomically: the whole
batch commits or none of it does. The batch is JSONL, one operation per line.

Examples:
  loader --file batch.jsonl
  cat batch.jsonl | loader
  loader --file batch.jsonl --graph tenants`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVarP(&batchFile, "file", "f", "-", "JSONL batch file; - reads stdin")
	rootCmd.Flags().StringVar(&graphName, "graph", "", "target graph; overrides configuration")
}

func run(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if graphName != "" {
		cfg.Loader.GraphName = graphName
	}

	logger, err := observability.NewLogger(string(cfg.Environment))
	if err != nil {
		return err
	}
	defer logger.Sync()

	metrics := observability.NewCollector(cfg.Metrics.Namespace)

	ops, err := readBatch(batchFile)
	if err != nil {
		return fmt.Errorf("failed to read batch: %w", err)
	}
	if len(ops) == 0 {
		logger.Info("empty batch, nothing to do")
		return nil
	}

	pool, err := newPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	loader := bulk.NewLoader(pool, cfg.Loader.GraphName, metrics, logger)
	if err := loader.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to ensure loader schema: %w", err)
	}

	result, applyErr := loader.ApplyBatch(ctx, ops)
	printResult(result)
	if applyErr != nil {
		logger.Error("batch rolled back", zap.Error(applyErr))
		return applyErr
	}
	return nil
}

func newPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.MinConns = cfg.Database.MinConns
	poolCfg.ConnConfig.ConnectTimeout = cfg.Database.ConnectTimeout
	return pgxpool.NewWithConfig(ctx, poolCfg)
}

func readBatch(file string) ([]graph.Operation, error) {
	var reader io.Reader = os.Stdin
	if file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		reader = f
	}
	return graph.ReadOperations(reader)
}

func printResult(result *bulk.Result) {
	if result == nil {
		return
	}
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Printf("%+v\n", result)
		return
	}
	fmt.Println(string(out))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error: "+err.Error())
		os.Exit(1)
	}
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/phonelens/phonelens/internal/core"
	"github.com/phonelens/phonelens/internal/core/store"
	"github.com/phonelens/phonelens/internal/observability"
	"github.com/phonelens/phonelens/internal/output"
)

var checkCmd = &cobra.Command{
	Use:   "check <phone>...",
	Short: "Check phone numbers",
	Long:  "Look up one or more phone numbers in the logged-in browser and print the results",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().String("output", "table", "Output format: table, json, csv, markdown")
	checkCmd.Flags().Bool("no-store", false, "Do not save results to the store")
}

func runCheck(cmd *cobra.Command, args []string) error {
	formatValue, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	format, err := output.ParseFormat(formatValue)
	if err != nil {
		return err
	}
	noStore, err := cmd.Flags().GetBool("no-store")
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	overrides := map[string]any{}
	if noStore {
		overrides["store"] = map[string]any{"enabled": false}
	}
	cfg, err := loadConfig(ctx, overrides)
	if err != nil {
		return err
	}

	logger, err := observability.NewEngineLogger(cfg.Logging, verbose, os.Stderr)
	if err != nil {
		return err
	}
	defer logger.Sync() // nolint:errcheck // stderr sync errors are not actionable

	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close() // nolint:errcheck // best-effort cleanup; errors logged internally
	}

	runID := uuid.New().String()
	p, err := newPipeline(ctx, cfg, logger, pipelineOptions{
		RunID:  runID,
		Prompt: cmd.InOrStdin(),
		Out:    cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	defer p.Close()

	if err := p.Login(ctx); err != nil {
		return err
	}

	run := startCheckRun(ctx, db, runID, args, logger)
	results := make([]*core.CheckResult, 0, len(args))
	for _, raw := range args {
		if ctx.Err() != nil {
			break
		}
		result, runErr := p.cycle.Run(ctx, raw)
		results = append(results, result)
		run.Record(ctx, result)
		if errors.Is(runErr, core.ErrSessionLost) {
			observability.CLILogger.Error("Browser session lost", zap.Error(runErr))
			break
		}
	}
	run.Finish(ctx)

	rendered, err := output.NewFormatter(format).FormatResults(results)
	if err != nil {
		return err
	}
	if rendered != "" {
		fmt.Fprintln(cmd.OutOrStdout(), rendered)
	}
	return nil
}

// checkRun stores ad-hoc lookups as a run so `results` lists them like a batch.
type checkRun struct {
	db      *store.Store
	logger  *zap.Logger
	summary *core.RunSummary
}

func startCheckRun(ctx context.Context, db *store.Store, runID string, phones []string, logger *zap.Logger) *checkRun {
	run := &checkRun{
		db:      db,
		logger:  logger,
		summary: &core.RunSummary{RunID: runID, Total: len(phones), StartedAt: time.Now()},
	}
	if db != nil {
		if err := db.StartRun(ctx, run.summary, "check "+strings.Join(phones, " ")); err != nil {
			logger.Warn("Failed to record run start", zap.Error(err))
		}
	}
	return run
}

func (r *checkRun) Record(ctx context.Context, result *core.CheckResult) {
	r.summary.Add(result)
	if r.db == nil || result == nil {
		return
	}
	if err := r.db.SaveResult(ctx, result); err != nil {
		r.logger.Warn("Failed to save result", zap.String("phone", result.Phone), zap.Error(err))
	}
}

func (r *checkRun) Finish(ctx context.Context) {
	r.summary.Stopped = r.summary.Processed < r.summary.Total
	r.summary.FinishedAt = time.Now()
	finishRun(ctx, r.db, r.summary, r.logger)
}

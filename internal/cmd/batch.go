package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/phonelens/phonelens/internal/config"
	"github.com/phonelens/phonelens/internal/core"
	"github.com/phonelens/phonelens/internal/core/engine"
	"github.com/phonelens/phonelens/internal/core/store"
	apperrors "github.com/phonelens/phonelens/internal/errors"
	"github.com/phonelens/phonelens/internal/observability"
	"github.com/phonelens/phonelens/internal/output"
	"github.com/phonelens/phonelens/internal/tui"
)

var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Check phone numbers from a CSV file",
	Long: `Read the "phone" column of a CSV file ("-" for stdin) and check every
number in order. Results are saved after every batch, with a randomized pause
between batches.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)
	addBatchFlags(batchCmd)
}

func addBatchFlags(cmd *cobra.Command) {
	cmd.Flags().Int("batch-size", 0, "Numbers per batch (default from config)")
	cmd.Flags().Duration("pause-min", 0, "Minimum pause between batches (default from config)")
	cmd.Flags().Duration("pause-max", 0, "Maximum pause between batches (default from config)")
	cmd.Flags().String("csv", "", "Write results to this CSV file after every batch")
	cmd.Flags().String("json", "", "Write results to this JSON file after every batch")
	cmd.Flags().Bool("no-store", false, "Do not save results to the store")
	cmd.Flags().Bool("tui", false, "Show a live dashboard")
}

// batchOverrides turns explicitly set flags into config overrides.
func batchOverrides(cmd *cobra.Command) (map[string]any, error) {
	flags := cmd.Flags()
	batch := map[string]any{}
	out := map[string]any{}
	overrides := map[string]any{}

	if flags.Changed("batch-size") {
		size, err := flags.GetInt("batch-size")
		if err != nil {
			return nil, err
		}
		batch["size"] = size
	}
	for flag, key := range map[string]string{"pause-min": "pause_min", "pause-max": "pause_max"} {
		if !flags.Changed(flag) {
			continue
		}
		value, err := flags.GetDuration(flag)
		if err != nil {
			return nil, err
		}
		batch[key] = value.String()
	}
	for flag, key := range map[string]string{"csv": "csv_path", "json": "json_path"} {
		if !flags.Changed(flag) {
			continue
		}
		value, err := flags.GetString(flag)
		if err != nil {
			return nil, err
		}
		out[key] = value
	}
	noStore, err := flags.GetBool("no-store")
	if err != nil {
		return nil, err
	}

	if len(batch) > 0 {
		overrides["batch"] = batch
	}
	if len(out) > 0 {
		overrides["output"] = out
	}
	if noStore {
		overrides["store"] = map[string]any{"enabled": false}
	}
	return overrides, nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	overrides, err := batchOverrides(cmd)
	if err != nil {
		return err
	}
	useTUI, err := cmd.Flags().GetBool("tui")
	if err != nil {
		return err
	}

	runID := uuid.New().String()
	ctx := apperrors.WithCorrelationID(cmd.Context(), runID)

	cfg, err := loadConfig(ctx, overrides)
	if err != nil {
		return apperrors.WrapConfigInvalid(ctx, err, "invalid configuration")
	}

	queries, err := readPhoneInput(args[0], cmd.InOrStdin())
	if err != nil {
		return apperrors.WrapInvalidInput(ctx, err, "failed to read input")
	}
	if len(queries) == 0 {
		return apperrors.NewInvalidInputError("no phone numbers found in input")
	}

	var console io.Writer = os.Stderr
	if useTUI {
		console = nil
	}
	logger, err := observability.NewEngineLogger(cfg.Logging, verbose, console)
	if err != nil {
		return apperrors.WrapConfigInvalid(ctx, err, "invalid logging configuration")
	}
	logger = logger.With(zap.String("run_id", runID))
	defer logger.Sync() // nolint:errcheck // stderr sync errors are not actionable

	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close() // nolint:errcheck // best-effort cleanup; errors logged internally
	}

	opts := pipelineOptions{RunID: runID, Prompt: cmd.InOrStdin(), Out: cmd.ErrOrStderr()}
	if db != nil {
		opts.Events = db
	}
	p, err := newPipeline(ctx, cfg, logger, opts)
	if err != nil {
		return err
	}
	defer p.Close()

	if err := p.Login(ctx); err != nil {
		return err
	}

	runCtx, stopSignals := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	runner := &engine.Runner{
		Checker:   p.cycle,
		Clock:     core.SystemClock{},
		Logger:    logger.Named("runner"),
		BatchSize: cfg.Batch.Size,
		PauseMin:  cfg.Batch.PauseMin,
		PauseMax:  cfg.Batch.PauseMax,
		Recover:   p.Recover,
		RunID:     runID,
	}

	sinks, fallbackCSV := batchSinks(cfg, db, runID)
	if fallbackCSV != "" {
		logger.Warn("Store and output files are disabled; writing results to the data directory", zap.String("csv", fallbackCSV))
	}
	var dashboard *tui.Dashboard
	if useTUI {
		// The dashboard owns the terminal from here on.
		p.gate.Prompt = nil
		dashboard = tui.New(runID, len(queries), runner.Stop, tui.Options{
			Input:     cmd.InOrStdin(),
			Output:    cmd.OutOrStdout(),
			AltScreen: true,
		})
		dashboard.Start()
		sinks = append(sinks, dashboard)
	}

	if db != nil {
		started := &core.RunSummary{RunID: runID, Total: len(queries), StartedAt: time.Now()}
		if err := db.StartRun(ctx, started, args[0]); err != nil {
			logger.Warn("Failed to record run start", zap.Error(err))
		}
	}

	summary, runErr := runner.Run(runCtx, queries, sinks)

	if dashboard != nil {
		if err := dashboard.Finish(summary, runErr); err != nil {
			logger.Warn("Dashboard exited with error", zap.Error(err))
		}
	}
	finishRun(ctx, db, summary, logger)

	if summary != nil {
		fmt.Fprintln(cmd.OutOrStdout(), output.FormatSummary(summary))
	}
	if fallbackCSV != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Results written to %s\n", fallbackCSV)
	}
	if runErr != nil {
		return apperrors.WrapOutput(ctx, runErr, "failed to save results")
	}
	if summary != nil && summary.Stopped {
		observability.CLILogger.Info("Run stopped before the end of input", zap.Int("processed", summary.Processed), zap.Int("total", summary.Total))
	}
	return nil
}

// batchSinks returns the destinations for a run. When nothing would keep the
// results it adds a CSV under the data directory and returns its path.
func batchSinks(cfg *config.Config, db *store.Store, runID string) (resultSinks, string) {
	sinks := resultSinks{}
	if db != nil {
		sinks = append(sinks, storeSink{store: db})
	}
	writer := &output.FileWriter{CSVPath: cfg.Output.CSVPath, JSONPath: cfg.Output.JSONPath, RunID: runID}
	fallback := ""
	if !writer.Enabled() && db == nil {
		fallback = config.DefaultRunCSVPath(runID)
		writer.CSVPath = fallback
	}
	if writer.Enabled() {
		sinks = append(sinks, fileSink{writer: writer})
	}
	return sinks, fallback
}

func finishRun(ctx context.Context, db *store.Store, summary *core.RunSummary, logger *zap.Logger) {
	if db == nil || summary == nil {
		return
	}
	if err := db.FinishRun(context.WithoutCancel(ctx), summary); err != nil {
		logger.Warn("Failed to record run summary", zap.Error(err))
	}
}

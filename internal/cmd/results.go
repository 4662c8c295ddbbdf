package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/phonelens/phonelens/internal/core"
	"github.com/phonelens/phonelens/internal/core/store"
	apperrors "github.com/phonelens/phonelens/internal/errors"
	"github.com/phonelens/phonelens/internal/output"
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Show stored results",
	Long:  "List results saved in the store. Defaults to the most recent batch run.",
	Args:  cobra.NoArgs,
	RunE:  runResults,
}

func init() {
	rootCmd.AddCommand(resultsCmd)

	resultsCmd.Flags().String("run", "", "Run ID (default: latest run)")
	resultsCmd.Flags().String("phone", "", "Only results for this number")
	resultsCmd.Flags().String("status", "", "Only results with this status")
	resultsCmd.Flags().Int("limit", 0, "Maximum number of results (0 = all)")
	resultsCmd.Flags().String("output", "table", "Output format: table, json, csv, markdown")
	resultsCmd.Flags().Bool("summary", false, "Print the stored run summary instead of the results")
}

func runResults(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	flags := cmd.Flags()

	runID, _ := flags.GetString("run")
	phone, _ := flags.GetString("phone")
	statusValue, _ := flags.GetString("status")
	limit, _ := flags.GetInt("limit")
	formatValue, _ := flags.GetString("output")
	showSummary, _ := flags.GetBool("summary")

	format, err := output.ParseFormat(formatValue)
	if err != nil {
		return err
	}

	filter := store.ResultFilter{Phone: core.CleanPhone(phone), Limit: limit}
	if strings.TrimSpace(statusValue) != "" {
		status, err := core.ParseStatus(statusValue)
		if err != nil {
			return apperrors.WrapInvalidInput(ctx, err, "invalid --status")
		}
		filter.Status = status
	}

	cfg, err := loadConfig(ctx, nil)
	if err != nil {
		return err
	}
	if !cfg.Store.Enabled {
		return apperrors.NewConfigInvalidError("store is disabled")
	}
	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close() // nolint:errcheck // best-effort cleanup; errors logged internally

	runID = strings.TrimSpace(runID)
	if runID == "" && filter.Phone == "" {
		runID, err = db.LatestRunID(ctx)
		if err != nil {
			return apperrors.WrapDatabaseError(ctx, err, "failed to find latest run")
		}
		if runID == "" {
			return apperrors.NewNotFoundError("no runs recorded yet")
		}
	}
	filter.RunID = runID

	if showSummary {
		if runID == "" {
			return errors.New("--summary needs a run")
		}
		record, err := db.GetRun(ctx, runID)
		if err != nil {
			return apperrors.WrapDatabaseError(ctx, err, "failed to load run")
		}
		if record == nil {
			return apperrors.NewNotFoundError(fmt.Sprintf("run %s not found", runID))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Input: %s\n%s\n", record.Input, output.FormatSummary(&record.Summary))
		return nil
	}

	results, err := db.ListResults(ctx, filter)
	if err != nil {
		return apperrors.WrapDatabaseError(ctx, err, "failed to list results")
	}

	rendered, err := output.NewFormatter(format).FormatResults(results)
	if err != nil {
		return err
	}
	if rendered != "" {
		fmt.Fprintln(cmd.OutOrStdout(), rendered)
	}
	return nil
}

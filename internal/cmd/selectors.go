package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/phonelens/phonelens/internal/core/checker"
	apperrors "github.com/phonelens/phonelens/internal/errors"
)

var selectorsCmd = &cobra.Command{
	Use:   "selectors",
	Short: "Print the effective DOM strategies",
	Long: `Print the DOM strategies used to read the search page, as YAML. The output
includes overrides from checker.strategies_file and can be used as a starting
point for a new strategies file.`,
	Args: cobra.NoArgs,
	RunE: runSelectors,
}

func init() {
	rootCmd.AddCommand(selectorsCmd)
	selectorsCmd.Flags().Bool("defaults", false, "Ignore checker.strategies_file")
}

func runSelectors(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	defaultsOnly, err := cmd.Flags().GetBool("defaults")
	if err != nil {
		return err
	}

	strategies := checker.DefaultStrategies()
	if !defaultsOnly {
		cfg, err := loadConfig(ctx, nil)
		if err != nil {
			return err
		}
		strategies, err = checker.LoadStrategies(cfg.Checker.StrategiesFile)
		if err != nil {
			return apperrors.WrapConfigInvalid(ctx, err, "failed to load DOM strategies")
		}
	}

	rendered, err := strategies.YAML()
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), rendered)
	return nil
}

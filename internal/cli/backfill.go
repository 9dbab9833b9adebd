package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"whalewatch/internal/app"
)

var (
	backfillChain      string
	backfillFromHeight uint64
	backfillToHeight   uint64
	backfillDryRun     bool
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Rescan a historical block range for whale alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		if backfillFromHeight == 0 || backfillToHeight == 0 {
			return fmt.Errorf("--from-height and --to-height must be provided")
		}
		if backfillFromHeight > backfillToHeight {
			return fmt.Errorf("--from-height must not exceed --to-height")
		}

		opts := app.BackfillOptions{
			Chain:      backfillChain,
			FromHeight: backfillFromHeight,
			ToHeight:   backfillToHeight,
			DryRun:     backfillDryRun,
		}

		return getApp().Backfill(cmd.Context(), opts)
	},
}

func init() {
	backfillCmd.Flags().StringVar(&backfillChain, "chain", "BTC", "Chain to rescan (BTC or ETH)")
	backfillCmd.Flags().Uint64Var(&backfillFromHeight, "from-height", 0, "First block height (inclusive)")
	backfillCmd.Flags().Uint64Var(&backfillToHeight, "to-height", 0, "Last block height (inclusive)")
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "Run without writing to storage")
}

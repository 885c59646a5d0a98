package main

import (
	"github.com/spf13/cobra"
	"github.com/wekeepgrowing/payment-reconciler/internal/app"
)

func replayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay-events",
		Short: "Re-apply journaled webhooks that never reached processed",
		Long: `Replays pending and failed webhook journal rows, oldest first.
Rows are re-applied under the same per-event lock the live webhook path uses,
so replay is safe while the server is running.`,
		Args: cobra.NoArgs,
		RunE: runReplay,
	}

	cmd.Flags().IntP("limit", "n", 100, "Maximum rows to replay")

	return cmd
}

func runReplay(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.logger.Sync()

	container, err := app.New(e.config, e.logger, false)
	if err != nil {
		return err
	}
	defer container.Close()

	report, err := container.Ingestor.Replay(cmd.Context(), e.settings.GetInt("limit"))
	if err != nil {
		return err
	}
	return printJSON(cmd, report)
}

package main

import (
	"github.com/spf13/cobra"
	"github.com/wekeepgrowing/payment-reconciler/internal/app"
)

func sessionStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "session-status [session-id]",
		Short: "Show the stored state of a payment session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd, func(c *app.Container) (interface{}, error) {
				return c.Orchestrator.SessionStatus(cmd.Context(), args[0])
			})
		},
	}
}

func webhookStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "webhook-status [event-id]",
		Short: "Show the journal entry for a webhook event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd, func(c *app.Container) (interface{}, error) {
				return c.Ingestor.EventStatus(cmd.Context(), args[0])
			})
		},
	}
}

func withContainer(cmd *cobra.Command, fn func(c *app.Container) (interface{}, error)) error {
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

	result, err := fn(container)
	if err != nil {
		return err
	}
	return printJSON(cmd, result)
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/wekeepgrowing/payment-reconciler/internal/infrastructure/database"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the reconciler tables and indexes",
		Args:  cobra.NoArgs,
		RunE:  runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.logger.Sync()

	db, err := database.NewConnection(&e.config.Database, e.logger)
	if err != nil {
		return err
	}
	defer database.Close(db, e.logger)

	if err := database.Migrate(db, e.logger); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Migrated %d tables (%s)\n", len(database.Models()), e.config.Database.Driver)
	return nil
}

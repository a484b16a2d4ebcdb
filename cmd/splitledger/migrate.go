package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Create or update the database schema. Migrations are idempotent and
also run automatically when the server starts.`,
		RunE: runMigrate,
	}
	cmd.Flags().Bool("reset", false, "Delete all ledger, directory and activity data after migrating")
	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	reset, _ := cmd.Flags().GetBool("reset")
	ctx := cmd.Context()

	// openStore migrates on open
	st, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	if reset {
		if err := st.Reset(ctx); err != nil {
			return fmt.Errorf("reset failed: %w", err)
		}
		slog.Warn("database reset", "dialect", st.Dialect())
	}

	slog.Info("database migrations completed", "dialect", st.Dialect())
	return nil
}

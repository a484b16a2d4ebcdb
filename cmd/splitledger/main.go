/*
main.go - splitledger command-line entry point

PURPOSE:
  Root cobra command. Loads configuration and sets up logging before any
  subcommand runs, and cancels the command context on SIGINT/SIGTERM so
  long-running commands shut down gracefully.

COMMANDS:
  serve      Run the HTTP API
  migrate    Create or update the database schema
  balances   Print a party's balances
  token      Issue a bearer token for a party
  version    Print version information

CONFIGURATION:
  --config FILE, else ./splitledger.yaml or /etc/splitledger/splitledger.yaml
  when present. Every key can be overridden with SPLITLEDGER_* variables,
  e.g. SPLITLEDGER_DATABASE_DRIVER=pgx.

SEE ALSO:
  - config/config.go: Keys and defaults
  - serve.go: Server wiring
*/
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/warp/splitledger/config"
)

var (
	cfgFile string
	version = "dev"

	v   = config.NewViper()
	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:   "splitledger",
		Short: "Shared-expense ledger",
		Long: `splitledger records shared expenses and settlements between people,
in groups or one-to-one, and answers who owes whom.`,
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
	}
)

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./splitledger.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format (console, json)")

	// Bind flags to viper
	_ = v.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))

	// Add commands
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(balancesCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(versionCmd())
}

func main() {
	// Set up signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := rootCmd.ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig(_ *cobra.Command, _ []string) error {
	loaded, err := config.Load(v, cfgFile)
	if err != nil {
		return err
	}
	cfg = loaded

	if _, err := config.SetupLogger(cfg.Logging); err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	slog.Debug("configuration loaded", "config_file", v.ConfigFileUsed(), "driver", cfg.Database.Driver)
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "splitledger %s\n", version)
		},
	}
}

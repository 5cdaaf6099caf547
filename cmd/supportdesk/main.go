// Command supportdesk runs the customer support chat backend.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xiaot623/supportdesk/internal/config"
	"github.com/xiaot623/supportdesk/internal/logging"
	"github.com/xiaot623/supportdesk/internal/repository"
)

var (
	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "supportdesk",
	Short: "Customer support chat backend with routed AI responders",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
			cfg.LogLevel = lvl
		}
		logger, err = logging.New(cfg.LogLevel)
		if err != nil {
			return err
		}
		zap.ReplaceGlobals(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	SilenceUsage: true,
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the demo user, orders, invoices and conversation",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := repository.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer store.Close()

		seeded, err := repository.Seed(cmd.Context(), store)
		if err != nil {
			return err
		}
		if seeded {
			logger.Info("demo data seeded", zap.String("user_id", repository.DemoUserID))
		} else {
			logger.Info("demo user already exists, skipping seed")
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	serveCmd.Flags().Bool("seed", true, "seed demo data on startup")
	serveCmd.Flags().Bool("no-rpc", false, "disable the JSON-RPC listener")

	rootCmd.AddCommand(serveCmd, seedCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

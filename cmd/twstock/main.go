package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"

	"github.com/trogers1052/twstock-service/internal/common"
	"github.com/trogers1052/twstock-service/internal/config"
)

var (
	logLevel string

	cfg    *config.Config
	logger arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:   "twstock",
	Short: "Taiwan equity price acquisition and reconciliation service",
	Long: `Fetches daily prices for TWSE, TPEx and index symbols, reconciles them into
one series per symbol, computes returns and upserts both into Postgres.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		logger = common.NewLogger(cfg.Logging.Level)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides LOG_LEVEL")
	rootCmd.AddCommand(serveCmd, updateCmd, migrateCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

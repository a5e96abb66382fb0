package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"facturas/internal/config"
	"facturas/internal/logger"
)

var (
	version = "1.0.0"

	// Global flags
	verbose      bool
	outputFormat string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "facturas",
	Short: "Normalize DIAN electronic invoices and reconcile accounting ledgers",
	Long: `Facturas is a backend engine for electronic-invoice normalization and
ledger reconciliation.

It parses DIAN (UBL 2.1) invoice XML into canonical records, stores them
in a deduplicating vault, re-exports them to xlsx, and validates ledger
spreadsheets for folio continuity and tax ratio consistency.

Examples:
  # Start the HTTP API
  facturas serve

  # Normalize XML files from the command line
  facturas process invoices/*.xml -o results.json

  # Validate a ledger spreadsheet
  facturas reconcile libro_auxiliar.xlsx -o checked.xlsx`,
	Version: version,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "json", "Output format (json, table)")

	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env is optional; real deployments configure via environment.
	_ = godotenv.Load()

	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	logCfg := logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}
	if verbose {
		logCfg.Level = "debug"
	}
	if err := logger.Setup(logCfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logger: %v\n", err)
		os.Exit(1)
	}
}

func printVerbose(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

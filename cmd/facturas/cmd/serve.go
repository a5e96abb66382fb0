package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"facturas/internal/ledger"
	"facturas/internal/server"
	"facturas/internal/vault"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the HTTP API server.

The API provides endpoints for:
  - POST   /api/xml/upload    - Upload an invoice XML batch
  - GET    /api/xml/list      - List stored invoices (paginated)
  - DELETE /api/xml/:id       - Delete one stored invoice
  - GET    /api/xml/export    - Export the vault to xlsx
  - POST   /api/excel/process - Validate a ledger spreadsheet
  - GET    /health            - Health check

The vault backend is chosen by configuration: "memory" (default) or
"postgres" (requires db.dsn / FACTURAS_DB_DSN).

Examples:
  facturas serve
  facturas serve --address :9090
  FACTURAS_VAULT_BACKEND=postgres FACTURAS_DB_DSN=postgres://... facturas serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "address", "", "Server listen address (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	store, closeStore, err := openVault()
	if err != nil {
		return err
	}
	defer closeStore()

	rates, err := ledger.NewRateTable(cfg.Ledger.Rates, cfg.Ledger.Tolerance)
	if err != nil {
		return fmt.Errorf("invalid ledger rate configuration: %w", err)
	}

	address := cfg.Server.Address
	if serveAddr != "" {
		address = serveAddr
	}

	srv := server.NewServer(&server.Config{
		Address:            address,
		ReadTimeout:        cfg.Server.ReadTimeout,
		WriteTimeout:       cfg.Server.WriteTimeout,
		Debug:              cfg.Server.Debug,
		Workers:            cfg.Ingest.Workers,
		Rates:              rates,
		AdvanceOnDuplicate: cfg.Ledger.AdvanceOnDuplicate,
	}, store)

	// Handle graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		fmt.Println("\nShutting down server...")
		os.Exit(0)
	}()

	fmt.Printf("Starting server on %s (vault backend: %s)\n", address, cfg.Vault.Backend)
	return srv.Run()
}

func openVault() (vault.Vault, func(), error) {
	switch cfg.Vault.Backend {
	case "", "memory":
		return vault.NewMemory(), func() {}, nil
	case "postgres":
		if cfg.DB.DSN == "" {
			return nil, nil, fmt.Errorf("vault backend is postgres but db.dsn is empty")
		}
		pg, err := vault.NewPostgres(cfg.DB.DSN)
		if err != nil {
			return nil, nil, err
		}
		return pg, func() { _ = pg.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown vault backend %q", cfg.Vault.Backend)
	}
}

package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"facturas/internal/export"
	"facturas/internal/ledger"
	"facturas/internal/logger"
)

var reconcileOutput string

var reconcileCmd = &cobra.Command{
	Use:   "reconcile <spreadsheet.xlsx>",
	Short: "Validate a ledger spreadsheet",
	Long: `Validate an accounting ledger spreadsheet.

Each row is checked for folio continuity against the previous rows
(START, OK, JUMP DETECTED, DUPLICATE) and for tax ratio consistency
against the configured rate table (OK, CHECK).

With -o the annotated rows are written back as xlsx; otherwise the
result goes to stdout in the selected format.

Examples:
  facturas reconcile libro_auxiliar.xlsx
  facturas reconcile libro_auxiliar.xlsx -f table
  facturas reconcile libro_auxiliar.xlsx -o checked.xlsx`,
	Args: cobra.ExactArgs(1),
	RunE: runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().StringVarP(&reconcileOutput, "output", "o", "", "Write annotated rows to this xlsx file")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("reconcile")

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer f.Close()

	raw, err := ledger.ReadRows(f)
	if err != nil {
		return fmt.Errorf("failed to read spreadsheet: %w", err)
	}
	printVerbose("Read %d rows from %s\n", len(raw), args[0])

	rates, err := ledger.NewRateTable(cfg.Ledger.Rates, cfg.Ledger.Tolerance)
	if err != nil {
		return fmt.Errorf("invalid ledger rate configuration: %w", err)
	}
	validator := ledger.NewValidator(rates,
		ledger.WithAdvanceOnDuplicate(cfg.Ledger.AdvanceOnDuplicate))

	rows := validator.Validate(raw)
	log.Info().Int("rows", len(rows)).Msg("ledger validated")

	if reconcileOutput != "" {
		out, err := os.Create(reconcileOutput)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer out.Close()
		if err := export.WriteLedgerRows(out, rows); err != nil {
			return fmt.Errorf("failed to write xlsx: %w", err)
		}
		fmt.Printf("Wrote %d annotated rows to %s\n", len(rows), reconcileOutput)
		return nil
	}

	switch outputFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(rows)
	case "table":
		return outputReconcileTable(rows)
	default:
		return fmt.Errorf("unsupported output format: %s", outputFormat)
	}
}

func outputReconcileTable(rows []ledger.Row) error {
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIPO\tFECHA\tFOLIO\tBASE\tIMPUESTO\tVERIF\tCOMCON")
	fmt.Fprintln(tw, "----\t-----\t-----\t----\t--------\t-----\t------")

	flagged := 0
	for _, row := range rows {
		if row.Verif != ledger.VerifOK || (row.COMCON != ledger.ComconOK && row.COMCON != ledger.ComconStart) {
			flagged++
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			row.Tipo,
			row.Fecha,
			row.Folio,
			row.Base.String(),
			row.Impuesto.String(),
			row.Verif,
			row.COMCON,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Printf("\n%d rows, %d flagged\n", len(rows), flagged)
	if flagged > 0 {
		fmt.Println(strings.Repeat("-", 24))
		fmt.Println("Review rows marked CHECK, JUMP DETECTED, DUPLICATE or ERROR.")
	}
	return nil
}

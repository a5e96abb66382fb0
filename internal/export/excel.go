// Package export serializes invoice and ledger records to xlsx.
// Column order is fixed; numeric cells are written as numbers so the
// output round-trips through a spreadsheet application.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"facturas/internal/ledger"
	"facturas/internal/model"
)

// ContentType is the xlsx MIME type for download responses.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// invoiceColumns is the flattened invoice layout: one row per line item,
// header fields repeated, UUID last.
var invoiceColumns = []string{
	"Número Factura",
	"Fecha",
	"Emisor NIT",
	"Emisor Nombre",
	"Receptor NIT",
	"Receptor Nombre",
	"Forma Pago",
	"Medio Pago",
	"Impuestos (Desglose)",
	"Total Factura",
	"Descripción Ítem",
	"Cantidad",
	"Precio Unitario",
	"Total Línea",
	"UUID (CUFE)",
}

var ledgerColumns = []string{"Tipo", "Fecha", "Folio", "Base", "Impuesto", "Verif", "COMCON"}

// WriteInvoices writes the full invoice collection to w as xlsx. Each
// line item becomes one row; an invoice without items still gets a row
// with empty item cells so it is not lost from the export.
func WriteInvoices(w io.Writer, invoices []model.Invoice) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	const sheet = "Detalle Facturas"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("renaming sheet: %w", err)
	}

	if err := writeRow(f, sheet, 1, toCells(invoiceColumns)); err != nil {
		return err
	}

	rowNo := 2
	for i := range invoices {
		inv := &invoices[i]
		if len(inv.Items) == 0 {
			if err := writeRow(f, sheet, rowNo, invoiceCells(inv, nil)); err != nil {
				return err
			}
			rowNo++
			continue
		}
		for j := range inv.Items {
			if err := writeRow(f, sheet, rowNo, invoiceCells(inv, &inv.Items[j])); err != nil {
				return err
			}
			rowNo++
		}
	}

	return f.Write(w)
}

// WriteLedgerRows writes validated ledger rows to w as xlsx, preserving
// row order.
func WriteLedgerRows(w io.Writer, rows []ledger.Row) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	const sheet = "Verificación"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("renaming sheet: %w", err)
	}

	if err := writeRow(f, sheet, 1, toCells(ledgerColumns)); err != nil {
		return err
	}

	for i, row := range rows {
		cells := []interface{}{
			row.Tipo,
			row.Fecha,
			row.Folio,
			row.Base.InexactFloat64(),
			row.Impuesto.InexactFloat64(),
			string(row.Verif),
			string(row.COMCON),
		}
		if err := writeRow(f, sheet, i+2, cells); err != nil {
			return err
		}
	}

	return f.Write(w)
}

func invoiceCells(inv *model.Invoice, item *model.LineItem) []interface{} {
	number := inv.InvoiceNumber
	if number == "" {
		number = shortUUID(inv.UUID)
	}
	issueDate := ""
	if !inv.IssueDate.IsZero() {
		issueDate = inv.IssueDate.Format("2006-01-02")
	}

	cells := []interface{}{
		number,
		issueDate,
		inv.Issuer.NIT,
		inv.Issuer.Name,
		inv.Receiver.NIT,
		inv.Receiver.Name,
		inv.PaymentForm,
		inv.PaymentMethod,
		taxBreakdown(inv.Taxes),
		inv.TotalAmount.InexactFloat64(),
	}

	if item == nil {
		cells = append(cells, "", 0.0, 0.0, 0.0)
	} else {
		cells = append(cells,
			item.Description,
			item.Quantity.InexactFloat64(),
			item.UnitPrice.InexactFloat64(),
			item.TotalLine.InexactFloat64(),
		)
	}

	return append(cells, inv.UUID)
}

// taxBreakdown renders the tax map as "IVA 19%: 190, INC: 50" in
// insertion order.
func taxBreakdown(taxes model.TaxMap) string {
	parts := make([]string, 0, taxes.Len())
	for _, line := range taxes.Lines() {
		parts = append(parts, line.Name+": "+line.Amount.String())
	}
	return strings.Join(parts, ", ")
}

func shortUUID(uuid string) string {
	if len(uuid) > 12 {
		return uuid[:12]
	}
	return uuid
}

func writeRow(f *excelize.File, sheet string, rowNo int, cells []interface{}) error {
	for i, value := range cells {
		cellName, err := excelize.CoordinatesToCellName(i+1, rowNo)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cellName, value); err != nil {
			return fmt.Errorf("writing %s: %w", cellName, err)
		}
	}
	return nil
}

func toCells(values []string) []interface{} {
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}

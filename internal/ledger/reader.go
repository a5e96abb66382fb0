package ledger

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// ErrMalformedSpreadsheet marks a whole-request failure: the workbook is
// unreadable or its schema is wrong. Nothing partial is returned.
var ErrMalformedSpreadsheet = errors.New("malformed spreadsheet")

// Required header columns, matched case-insensitively on the first row.
var requiredColumns = []string{"Fecha", "Folio", "Tipo", "Total", "Impuesto"}

// ReadRows reads the first sheet of an xlsx workbook into raw ledger
// rows. Base is computed as Total minus Impuesto. Row order is preserved
// exactly as it appears in the sheet.
func ReadRows(r io.Reader) ([]RawRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSpreadsheet, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrMalformedSpreadsheet)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSpreadsheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: sheet %q is empty", ErrMalformedSpreadsheet, sheets[0])
	}

	cols, err := locateColumns(rows[0])
	if err != nil {
		return nil, err
	}

	var out []RawRow
	for _, cells := range rows[1:] {
		if blankRow(cells) {
			continue
		}
		total := parseAmount(cell(cells, cols["Total"]))
		impuesto := parseAmount(cell(cells, cols["Impuesto"]))
		out = append(out, RawRow{
			Tipo:     cell(cells, cols["Tipo"]),
			Fecha:    cell(cells, cols["Fecha"]),
			Folio:    cell(cells, cols["Folio"]),
			Base:     total.Sub(impuesto),
			Impuesto: impuesto,
		})
	}
	return out, nil
}

func locateColumns(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(requiredColumns))
	for i, name := range header {
		name = strings.TrimSpace(name)
		for _, want := range requiredColumns {
			if strings.EqualFold(name, want) {
				cols[want] = i
			}
		}
	}

	var missing []string
	for _, want := range requiredColumns {
		if _, ok := cols[want]; !ok {
			missing = append(missing, want)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required columns: %s",
			ErrMalformedSpreadsheet, strings.Join(missing, ", "))
	}
	return cols, nil
}

func cell(cells []string, idx int) string {
	if idx >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[idx])
}

func blankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// parseAmount reads a numeric cell, tolerating thousands separators and
// currency symbols. Empty or unreadable cells count as zero, matching
// how an accountant treats a blank amount.
func parseAmount(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	cleaned := strings.NewReplacer(",", "", "$", "", " ", "").Replace(s)
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero
	}
	return d
}

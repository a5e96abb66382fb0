package ledger_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facturas/internal/ledger"
)

func rawRows(folios ...string) []ledger.RawRow {
	rows := make([]ledger.RawRow, len(folios))
	for i, f := range folios {
		rows[i] = ledger.RawRow{
			Tipo:     "Factura",
			Fecha:    "2024-03-15",
			Folio:    f,
			Base:     decimal.NewFromInt(1000),
			Impuesto: decimal.NewFromInt(190),
		}
	}
	return rows
}

func comcons(rows []ledger.Row) []ledger.Comcon {
	out := make([]ledger.Comcon, len(rows))
	for i, r := range rows {
		out[i] = r.COMCON
	}
	return out
}

func TestValidate_Continuity(t *testing.T) {
	tests := []struct {
		name   string
		folios []string
		want   []ledger.Comcon
	}{
		{
			name:   "consecutive sequence",
			folios: []string{"100", "101", "102"},
			want:   []ledger.Comcon{ledger.ComconStart, ledger.ComconOK, ledger.ComconOK},
		},
		{
			name:   "gap is a jump",
			folios: []string{"100", "101", "105"},
			want:   []ledger.Comcon{ledger.ComconStart, ledger.ComconOK, ledger.ComconJump},
		},
		{
			name:   "repeated folio is a duplicate",
			folios: []string{"100", "101", "101"},
			want:   []ledger.Comcon{ledger.ComconStart, ledger.ComconOK, ledger.ComconDuplicate},
		},
		{
			name:   "duplicate of an older folio",
			folios: []string{"100", "101", "100"},
			want:   []ledger.Comcon{ledger.ComconStart, ledger.ComconOK, ledger.ComconDuplicate},
		},
		{
			name:   "descending restart is a jump",
			folios: []string{"200", "150"},
			want:   []ledger.Comcon{ledger.ComconStart, ledger.ComconJump},
		},
		{
			name:   "single row",
			folios: []string{"7"},
			want:   []ledger.Comcon{ledger.ComconStart},
		},
	}

	v := ledger.NewValidator(ledger.DefaultRateTable())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := v.Validate(rawRows(tt.folios...))
			assert.Equal(t, tt.want, comcons(rows))
		})
	}
}

func TestValidate_RowOrderIsAuthoritative(t *testing.T) {
	// Rows are never sorted: an out-of-order but complete sequence
	// still reports jumps.
	v := ledger.NewValidator(ledger.DefaultRateTable())
	rows := v.Validate(rawRows("102", "100", "101"))

	assert.Equal(t, []ledger.Comcon{
		ledger.ComconStart, ledger.ComconJump, ledger.ComconOK,
	}, comcons(rows))
}

func TestValidate_DuplicateAdvancesCursor(t *testing.T) {
	// Default: the duplicate advances the cursor, so 102 after a
	// duplicated 101 still reads as consecutive.
	v := ledger.NewValidator(ledger.DefaultRateTable())
	rows := v.Validate(rawRows("100", "101", "101", "102"))

	assert.Equal(t, []ledger.Comcon{
		ledger.ComconStart, ledger.ComconOK, ledger.ComconDuplicate, ledger.ComconOK,
	}, comcons(rows))
}

func TestValidate_DuplicateWithoutAdvance(t *testing.T) {
	// With advance disabled, continuity is judged against the last
	// non-duplicate folio: 100, 100, 101 stays consecutive.
	v := ledger.NewValidator(ledger.DefaultRateTable(),
		ledger.WithAdvanceOnDuplicate(false))
	rows := v.Validate(rawRows("100", "100", "101"))

	assert.Equal(t, []ledger.Comcon{
		ledger.ComconStart, ledger.ComconDuplicate, ledger.ComconOK,
	}, comcons(rows))
}

func TestValidate_NoRetroactiveChanges(t *testing.T) {
	// A later duplicate never rewrites the flag of the earlier row.
	v := ledger.NewValidator(ledger.DefaultRateTable())
	rows := v.Validate(rawRows("100", "101", "101"))

	assert.Equal(t, ledger.ComconOK, rows[1].COMCON)
	assert.Equal(t, ledger.ComconDuplicate, rows[2].COMCON)
}

func TestValidate_PrefixedFolios(t *testing.T) {
	v := ledger.NewValidator(ledger.DefaultRateTable())
	rows := v.Validate(rawRows("SETT123", "SETT124"))

	require.Len(t, rows, 2)
	assert.Equal(t, 123, rows[0].Folio)
	assert.Equal(t, 124, rows[1].Folio)
	assert.Equal(t, []ledger.Comcon{ledger.ComconStart, ledger.ComconOK}, comcons(rows))
}

func TestValidate_MalformedFolio(t *testing.T) {
	// The malformed row is flagged ERROR and the sequence resumes
	// around it as if it were not there.
	v := ledger.NewValidator(ledger.DefaultRateTable())
	rows := v.Validate(rawRows("100", "SIN-FOLIO", "101"))

	require.Len(t, rows, 3)
	assert.Equal(t, []ledger.Comcon{
		ledger.ComconStart, ledger.ComconError, ledger.ComconOK,
	}, comcons(rows))
	assert.Zero(t, rows[1].Folio)
}

func TestValidate_Empty(t *testing.T) {
	v := ledger.NewValidator(ledger.DefaultRateTable())
	assert.Empty(t, v.Validate(nil))
}

func TestValidate_IndependentPasses(t *testing.T) {
	// State never leaks between Validate calls.
	v := ledger.NewValidator(ledger.DefaultRateTable())
	v.Validate(rawRows("100", "101"))
	rows := v.Validate(rawRows("101"))

	assert.Equal(t, ledger.ComconStart, rows[0].COMCON)
}

func TestParseFolio(t *testing.T) {
	tests := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{"123", 123, false},
		{"SETT123", 123, false},
		{"FE-45-10", 4510, false}, // digit groups concatenate
		{"007", 7, false},
		{"", 0, true},
		{"SIN NUMERO", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ledger.ParseFolio(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				var folioErr *ledger.FolioError
				assert.ErrorAs(t, err, &folioErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

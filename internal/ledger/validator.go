package ledger

import (
	"regexp"
	"strconv"

	"github.com/shopspring/decimal"
)

// Comcon is the folio continuity flag, computed relative to the
// previous row in document order.
type Comcon string

const (
	ComconStart     Comcon = "START"
	ComconOK        Comcon = "OK"
	ComconJump      Comcon = "JUMP DETECTED"
	ComconDuplicate Comcon = "DUPLICATE"
	// ComconError marks a row whose folio could not be parsed. The row
	// is still emitted and the pass continues.
	ComconError Comcon = "ERROR"
)

// RawRow is one spreadsheet row before validation. Folio is kept as the
// raw cell text; digit extraction happens during the pass.
type RawRow struct {
	Tipo     string
	Fecha    string
	Folio    string
	Base     decimal.Decimal
	Impuesto decimal.Decimal
}

// Row is a validated ledger row. The JSON field names are part of the
// external contract and must not change.
type Row struct {
	Tipo     string          `json:"Tipo"`
	Fecha    string          `json:"Fecha"`
	Folio    int             `json:"Folio"`
	Base     decimal.Decimal `json:"Base"`
	Impuesto decimal.Decimal `json:"Impuesto"`
	Verif    Verif           `json:"Verif"`
	COMCON   Comcon          `json:"COMCON"`
}

// Validator runs the sequential reconciliation pass.
type Validator struct {
	rates              RateTable
	advanceOnDuplicate bool
}

// Option configures a Validator.
type Option func(*Validator)

// WithAdvanceOnDuplicate controls whether a duplicate folio advances the
// continuity cursor. The default is true: a duplicate then never masks a
// real jump right after it. With false, continuity is judged against the
// last non-duplicate folio instead.
func WithAdvanceOnDuplicate(advance bool) Option {
	return func(v *Validator) {
		v.advanceOnDuplicate = advance
	}
}

// NewValidator creates a Validator using the given rate table.
func NewValidator(rates RateTable, opts ...Option) *Validator {
	v := &Validator{rates: rates, advanceOnDuplicate: true}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// accumulator is the state carried across one pass. It is local to each
// Validate call, so independent requests never share state.
type accumulator struct {
	started   bool
	lastFolio int
	seen      map[int]struct{}
}

// Validate classifies rows in the order given. Row order is
// authoritative; rows are never sorted. The result is deterministic for
// a given input sequence.
func (v *Validator) Validate(rows []RawRow) []Row {
	out := make([]Row, 0, len(rows))
	acc := accumulator{seen: make(map[int]struct{})}

	for _, raw := range rows {
		row := Row{
			Tipo:     raw.Tipo,
			Fecha:    raw.Fecha,
			Base:     raw.Base,
			Impuesto: raw.Impuesto,
			Verif:    v.rates.Classify(raw.Base, raw.Impuesto),
		}

		folio, err := ParseFolio(raw.Folio)
		if err != nil {
			// Malformed folio: emit the row, leave the sequence state
			// untouched, keep going.
			row.COMCON = ComconError
			out = append(out, row)
			continue
		}
		row.Folio = folio
		row.COMCON = v.classify(&acc, folio)
		out = append(out, row)
	}

	return out
}

// classify computes COMCON for folio and updates the accumulator.
// DUPLICATE wins over JUMP DETECTED: a repeated folio is reported as a
// duplicate even when it happens to extend the sequence.
func (v *Validator) classify(acc *accumulator, folio int) Comcon {
	var result Comcon
	switch {
	case !acc.started:
		result = ComconStart
	case seen(acc, folio):
		result = ComconDuplicate
	case folio == acc.lastFolio+1:
		result = ComconOK
	default:
		result = ComconJump
	}

	acc.seen[folio] = struct{}{}
	if result != ComconDuplicate || v.advanceOnDuplicate {
		acc.lastFolio = folio
	}
	acc.started = true
	return result
}

func seen(acc *accumulator, folio int) bool {
	_, ok := acc.seen[folio]
	return ok
}

var folioDigits = regexp.MustCompile(`\d+`)

// ParseFolio extracts the numeric part of a folio cell. Prefixed folios
// like "SETT123" yield 123; split digit groups are concatenated. A cell
// with no digits is malformed.
func ParseFolio(raw string) (int, error) {
	groups := folioDigits.FindAllString(raw, -1)
	if len(groups) == 0 {
		return 0, &FolioError{Raw: raw}
	}
	joined := ""
	for _, g := range groups {
		joined += g
	}
	n, err := strconv.Atoi(joined)
	if err != nil {
		return 0, &FolioError{Raw: raw, Cause: err}
	}
	return n, nil
}

// FolioError reports a folio cell that carries no usable sequence number.
type FolioError struct {
	Raw   string
	Cause error
}

func (e *FolioError) Error() string {
	return "folio has no numeric part: " + strconv.Quote(e.Raw)
}

func (e *FolioError) Unwrap() error {
	return e.Cause
}

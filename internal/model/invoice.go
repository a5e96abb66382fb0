package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Monetary fields are serialized as JSON numbers, not quoted strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// Invoice is the canonical record produced by normalizing one DIAN
// electronic-invoice document. The UUID (CUFE) is the business key;
// ID is assigned by the vault on insert. Records are never mutated
// after insertion.
type Invoice struct {
	ID            int64           `json:"id"`
	UUID          string          `json:"uuid"`
	InvoiceNumber string          `json:"invoice_number"`
	IssueDate     Date            `json:"issue_date"`
	Issuer        Party           `json:"issuer"`
	Receiver      Party           `json:"receiver"`
	PaymentForm   string          `json:"payment_form"`
	PaymentMethod string          `json:"payment_method"`
	Items         []LineItem      `json:"items"`
	Taxes         TaxMap          `json:"taxes"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	BaseAmount    decimal.Decimal `json:"base_amount"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Party identifies an invoice participant. NIT is the Colombian tax ID;
// it is a string because it may carry a check digit suffix.
type Party struct {
	Name string `json:"name"`
	NIT  string `json:"nit"`
}

// LineItem is one invoice line in original document order.
type LineItem struct {
	Quantity    decimal.Decimal `json:"quantity"`
	Description string          `json:"description"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Taxes       TaxMap          `json:"taxes"`
	TotalLine   decimal.Decimal `json:"total_line"`
}

// Date is a calendar date serialized as "2006-01-02", or null when unset.
type Date struct {
	time.Time
}

// NewDate creates a Date from year, month, day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a "2006-01-02" string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return Date{t}, nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.Format("2006-01-02") + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := string(bytes.Trim(b, `"`))
	if s == "null" || s == "" {
		d.Time = time.Time{}
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", s, err)
	}
	d.Time = t
	return nil
}

// TaxLine is one named tax entry with its amount.
type TaxLine struct {
	Name   string
	Amount decimal.Decimal
}

// TaxMap is an insertion-order-preserving mapping of tax name to amount.
// Export and preview consumers rely on stable ordering, so a plain Go map
// is not suitable. It serializes as a JSON object; an empty map serializes
// as {} so that "no tax" stays distinguishable from absent fields.
type TaxMap struct {
	lines []TaxLine
}

// Add adds amount under name, accumulating onto an existing entry.
func (m *TaxMap) Add(name string, amount decimal.Decimal) {
	for i := range m.lines {
		if m.lines[i].Name == name {
			m.lines[i].Amount = m.lines[i].Amount.Add(amount)
			return
		}
	}
	m.lines = append(m.lines, TaxLine{Name: name, Amount: amount})
}

// Get returns the amount stored under name.
func (m TaxMap) Get(name string) (decimal.Decimal, bool) {
	for _, l := range m.lines {
		if l.Name == name {
			return l.Amount, true
		}
	}
	return decimal.Zero, false
}

// Len returns the number of entries.
func (m TaxMap) Len() int {
	return len(m.lines)
}

// Lines returns the entries in insertion order.
func (m TaxMap) Lines() []TaxLine {
	return m.lines
}

// Total sums all tax amounts.
func (m TaxMap) Total() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range m.lines {
		sum = sum.Add(l.Amount)
	}
	return sum
}

// MarshalJSON writes a JSON object with keys in insertion order.
func (m TaxMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, l := range m.lines {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(l.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(l.Amount)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object, preserving the key order of the input.
func (m *TaxMap) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("taxes: expected JSON object, got %v", tok)
	}
	m.lines = nil
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("taxes: expected string key, got %v", keyTok)
		}
		var amount decimal.Decimal
		if err := dec.Decode(&amount); err != nil {
			return fmt.Errorf("taxes[%s]: %w", name, err)
		}
		m.lines = append(m.lines, TaxLine{Name: name, Amount: amount})
	}
	_, err = dec.Token() // closing brace
	return err
}

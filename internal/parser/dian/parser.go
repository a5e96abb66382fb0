// Package dian parses DIAN electronic invoices (UBL 2.1) into the
// canonical Invoice record.
//
// Two document shapes exist in the wild: a bare <Invoice> root, and an
// <AttachedDocument> envelope that carries the real invoice XML as CDATA
// text under Attachment/ExternalReference/Description. Both are handled.
package dian

import (
	"context"
	"encoding/xml"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"facturas/internal/model"
	"facturas/internal/money"
)

// paymentFormNames maps DIAN payment form codes to display names.
// Unknown codes pass through unchanged.
var paymentFormNames = map[string]string{
	"1": "Contado",
	"2": "Crédito",
}

// UBL 2.1 document structures. encoding/xml matches on local element
// names, so the cac:/cbc: prefixes in source documents are irrelevant.

type ublAttachedDocument struct {
	XMLName     xml.Name `xml:"AttachedDocument"`
	Description string   `xml:"Attachment>ExternalReference>Description"`
}

type ublInvoice struct {
	XMLName      xml.Name          `xml:"Invoice"`
	ID           string            `xml:"ID"`
	UUID         string            `xml:"UUID"`
	IssueDate    string            `xml:"IssueDate"`
	Supplier     ublPartyContainer `xml:"AccountingSupplierParty"`
	Customer     ublPartyContainer `xml:"AccountingCustomerParty"`
	PaymentMeans []ublPaymentMeans `xml:"PaymentMeans"`
	TaxTotals    []ublTaxTotal     `xml:"TaxTotal"`
	Totals       ublMonetaryTotal  `xml:"LegalMonetaryTotal"`
	Lines        []ublInvoiceLine  `xml:"InvoiceLine"`
}

type ublPartyContainer struct {
	Party ublParty `xml:"Party"`
}

type ublParty struct {
	Name      string            `xml:"PartyName>Name"`
	TaxScheme ublPartyTaxScheme `xml:"PartyTaxScheme"`
}

type ublPartyTaxScheme struct {
	RegistrationName string `xml:"RegistrationName"`
	CompanyID        string `xml:"CompanyID"`
}

type ublPaymentMeans struct {
	ID               string `xml:"ID"`
	PaymentMeansCode string `xml:"PaymentMeansCode"`
}

type ublTaxTotal struct {
	TaxAmount string           `xml:"TaxAmount"`
	Subtotals []ublTaxSubtotal `xml:"TaxSubtotal"`
}

type ublTaxSubtotal struct {
	TaxAmount string         `xml:"TaxAmount"`
	Category  ublTaxCategory `xml:"TaxCategory"`
}

type ublTaxCategory struct {
	Percent    string `xml:"Percent"`
	SchemeName string `xml:"TaxScheme>Name"`
}

type ublMonetaryTotal struct {
	LineExtensionAmount string `xml:"LineExtensionAmount"`
	PayableAmount       string `xml:"PayableAmount"`
}

type ublInvoiceLine struct {
	InvoicedQuantity    string        `xml:"InvoicedQuantity"`
	LineExtensionAmount string        `xml:"LineExtensionAmount"`
	Description         string        `xml:"Item>Description"`
	PriceAmount         string        `xml:"Price>PriceAmount"`
	TaxTotals           []ublTaxTotal `xml:"TaxTotal"`
}

// Parse reads one document and normalizes it into an Invoice.
func Parse(ctx context.Context, r io.Reader) (*model.Invoice, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, model.NewParseError("content", "failed to read content", err)
	}
	return ParseBytes(ctx, content)
}

// ParseBytes normalizes raw document bytes into an Invoice.
func ParseBytes(ctx context.Context, content []byte) (*model.Invoice, error) {
	if len(content) == 0 {
		return nil, model.NewParseError("content", "empty document", nil)
	}

	// Unwrap AttachedDocument envelopes before invoice parsing.
	if isAttachedDocument(content) {
		inner, err := unwrapAttachedDocument(content)
		if err != nil {
			return nil, err
		}
		content = inner
	}

	var doc ublInvoice
	if err := xml.Unmarshal(content, &doc); err != nil {
		return nil, model.NewParseError("xml", "failed to parse XML", err)
	}

	return convertInvoice(&doc)
}

func isAttachedDocument(content []byte) bool {
	dec := xml.NewDecoder(strings.NewReader(string(content)))
	for {
		tok, err := dec.Token()
		if err != nil {
			return false
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name.Local == "AttachedDocument"
		}
	}
}

func unwrapAttachedDocument(content []byte) ([]byte, error) {
	var env ublAttachedDocument
	if err := xml.Unmarshal(content, &env); err != nil {
		return nil, model.NewParseError("attached_document", "failed to parse envelope", err)
	}
	inner := strings.TrimSpace(env.Description)
	if inner == "" {
		return nil, model.NewParseError("attached_document", "envelope carries no embedded invoice", nil)
	}
	return []byte(inner), nil
}

func convertInvoice(doc *ublInvoice) (*model.Invoice, error) {
	uuid := strings.TrimSpace(doc.UUID)
	if uuid == "" {
		return nil, model.NewParseError("uuid", "document has no UUID (CUFE)", nil)
	}

	inv := &model.Invoice{
		UUID:          uuid,
		InvoiceNumber: strings.TrimSpace(doc.ID),
		Issuer:        convertParty(doc.Supplier.Party),
		Receiver:      convertParty(doc.Customer.Party),
		BaseAmount:    money.FromStringOrZero(doc.Totals.LineExtensionAmount),
		TotalAmount:   money.FromStringOrZero(doc.Totals.PayableAmount),
	}

	if doc.IssueDate != "" {
		if date, err := model.ParseDate(strings.TrimSpace(doc.IssueDate)); err == nil {
			inv.IssueDate = date
		}
	}

	if len(doc.PaymentMeans) > 0 {
		pm := doc.PaymentMeans[0]
		if code := strings.TrimSpace(pm.ID); code != "" {
			if name, ok := paymentFormNames[code]; ok {
				inv.PaymentForm = name
			} else {
				inv.PaymentForm = code
			}
		}
		inv.PaymentMethod = strings.TrimSpace(pm.PaymentMeansCode)
	}

	for _, total := range doc.TaxTotals {
		if inv.TaxAmount.IsZero() {
			inv.TaxAmount = money.FromStringOrZero(total.TaxAmount)
		}
		addSubtotals(&inv.Taxes, total.Subtotals)
	}

	for _, line := range doc.Lines {
		inv.Items = append(inv.Items, convertLine(line))
	}

	return inv, nil
}

func convertParty(p ublParty) model.Party {
	name := strings.TrimSpace(p.TaxScheme.RegistrationName)
	if name == "" {
		name = strings.TrimSpace(p.Name)
	}
	return model.Party{
		Name: name,
		NIT:  strings.TrimSpace(p.TaxScheme.CompanyID),
	}
}

func convertLine(line ublInvoiceLine) model.LineItem {
	item := model.LineItem{
		Description: strings.TrimSpace(line.Description),
		Quantity:    money.FromStringOrZero(line.InvoicedQuantity),
		UnitPrice:   money.FromStringOrZero(line.PriceAmount),
		TotalLine:   money.FromStringOrZero(line.LineExtensionAmount),
	}
	if item.Description == "" {
		item.Description = "Sin descripción"
	}
	for _, total := range line.TaxTotals {
		addSubtotals(&item.Taxes, total.Subtotals)
	}
	return item
}

// addSubtotals folds tax subtotals into a TaxMap. Keys are "Name Percent%"
// when a percent is declared ("IVA 19%"), otherwise the bare scheme name.
// Subtotals without an amount are dropped; zero amounts keep their key so
// "tax present but zero" stays visible downstream.
func addSubtotals(taxes *model.TaxMap, subtotals []ublTaxSubtotal) {
	for _, sub := range subtotals {
		name := strings.TrimSpace(sub.Category.SchemeName)
		rawAmount := strings.TrimSpace(sub.TaxAmount)
		if name == "" || rawAmount == "" {
			continue
		}
		amount, err := decimal.NewFromString(rawAmount)
		if err != nil {
			continue
		}
		taxes.Add(taxKey(name, sub.Category.Percent), amount)
	}
}

func taxKey(name, percent string) string {
	percent = strings.TrimSpace(percent)
	if percent == "" {
		return name
	}
	// "19.00" and "19" label the same rate; normalize through decimal.
	if p, err := decimal.NewFromString(percent); err == nil {
		percent = p.String()
	}
	return name + " " + percent + "%"
}

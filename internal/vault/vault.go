// Package vault stores canonical invoices keyed by document UUID.
// Insert is idempotent: re-ingesting a known UUID reports AlreadyExists
// instead of duplicating or overwriting the stored record.
package vault

import (
	"context"

	"facturas/internal/model"
)

// Outcome is the result of an Insert attempt.
type Outcome int

const (
	// Inserted means a new record was stored.
	Inserted Outcome = iota
	// AlreadyExists means the UUID was already present. This is a normal
	// outcome, not an error; batch ingestion counts it as "skipped".
	AlreadyExists
)

// Page is one page of a listing, newest insertions first.
type Page struct {
	Items       []model.Invoice
	Total       int
	Pages       int
	CurrentPage int
}

// Vault is the invoice store. Implementations must keep Insert safe under
// concurrent calls racing on the same UUID: exactly one caller observes
// Inserted, every other one AlreadyExists.
type Vault interface {
	Insert(ctx context.Context, inv *model.Invoice) (Outcome, error)

	// List returns the requested 1-indexed page. A page past the end
	// yields an empty item slice, not an error.
	List(ctx context.Context, page, perPage int) (*Page, error)

	// Delete removes the record with the given id, or returns
	// model.ErrInvoiceNotFound.
	Delete(ctx context.Context, id int64) error

	// All returns a consistent snapshot of every stored invoice,
	// newest first.
	All(ctx context.Context) ([]model.Invoice, error)
}

// DefaultPerPage is used when a caller requests a non-positive page size.
const DefaultPerPage = 20

func normalizePaging(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	return page, perPage
}

func pageCount(total, perPage int) int {
	if total == 0 {
		return 0
	}
	return (total + perPage - 1) / perPage
}

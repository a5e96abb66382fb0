package vault

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"facturas/internal/model"
)

// Postgres is a Vault backed by PostgreSQL through sqlx over the pgx
// stdlib driver. The uuid column carries a unique constraint, so the
// at-most-one-record-per-uuid invariant holds even across processes.
type Postgres struct {
	db *sqlx.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS invoices (
	id             BIGSERIAL PRIMARY KEY,
	uuid           TEXT NOT NULL UNIQUE,
	invoice_number TEXT NOT NULL DEFAULT '',
	issue_date     DATE,
	issuer_name    TEXT NOT NULL DEFAULT '',
	issuer_nit     TEXT NOT NULL DEFAULT '',
	receiver_name  TEXT NOT NULL DEFAULT '',
	receiver_nit   TEXT NOT NULL DEFAULT '',
	payment_form   TEXT NOT NULL DEFAULT '',
	payment_method TEXT NOT NULL DEFAULT '',
	items          JSONB NOT NULL DEFAULT '[]',
	taxes          JSONB NOT NULL DEFAULT '{}',
	tax_amount     NUMERIC(18,2) NOT NULL DEFAULT 0,
	base_amount    NUMERIC(18,2) NOT NULL DEFAULT 0,
	total_amount   NUMERIC(18,2) NOT NULL DEFAULT 0,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// NewPostgres connects to the database and ensures the schema exists.
func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return &Postgres{db: db}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// invoiceRow mirrors the invoices table.
type invoiceRow struct {
	ID            int64           `db:"id"`
	UUID          string          `db:"uuid"`
	InvoiceNumber string          `db:"invoice_number"`
	IssueDate     sql.NullTime    `db:"issue_date"`
	IssuerName    string          `db:"issuer_name"`
	IssuerNIT     string          `db:"issuer_nit"`
	ReceiverName  string          `db:"receiver_name"`
	ReceiverNIT   string          `db:"receiver_nit"`
	PaymentForm   string          `db:"payment_form"`
	PaymentMethod string          `db:"payment_method"`
	Items         []byte          `db:"items"`
	Taxes         []byte          `db:"taxes"`
	TaxAmount     decimal.Decimal `db:"tax_amount"`
	BaseAmount    decimal.Decimal `db:"base_amount"`
	TotalAmount   decimal.Decimal `db:"total_amount"`
	CreatedAt     time.Time       `db:"created_at"`
}

func (r *invoiceRow) toInvoice() (model.Invoice, error) {
	inv := model.Invoice{
		ID:            r.ID,
		UUID:          r.UUID,
		InvoiceNumber: r.InvoiceNumber,
		Issuer:        model.Party{Name: r.IssuerName, NIT: r.IssuerNIT},
		Receiver:      model.Party{Name: r.ReceiverName, NIT: r.ReceiverNIT},
		PaymentForm:   r.PaymentForm,
		PaymentMethod: r.PaymentMethod,
		TaxAmount:     r.TaxAmount,
		BaseAmount:    r.BaseAmount,
		TotalAmount:   r.TotalAmount,
		CreatedAt:     r.CreatedAt,
	}
	if r.IssueDate.Valid {
		inv.IssueDate = model.Date{Time: r.IssueDate.Time}
	}
	if len(r.Items) > 0 {
		if err := json.Unmarshal(r.Items, &inv.Items); err != nil {
			return inv, fmt.Errorf("decoding items for %s: %w", r.UUID, err)
		}
	}
	if len(r.Taxes) > 0 {
		if err := json.Unmarshal(r.Taxes, &inv.Taxes); err != nil {
			return inv, fmt.Errorf("decoding taxes for %s: %w", r.UUID, err)
		}
	}
	return inv, nil
}

// Insert stores inv unless its UUID already exists. The conflict clause
// makes concurrent identical uploads race safely inside the database.
func (p *Postgres) Insert(ctx context.Context, inv *model.Invoice) (Outcome, error) {
	items, err := json.Marshal(inv.Items)
	if err != nil {
		return AlreadyExists, fmt.Errorf("encoding items: %w", err)
	}
	taxes, err := json.Marshal(inv.Taxes)
	if err != nil {
		return AlreadyExists, fmt.Errorf("encoding taxes: %w", err)
	}

	var issueDate sql.NullTime
	if !inv.IssueDate.IsZero() {
		issueDate = sql.NullTime{Time: inv.IssueDate.Time, Valid: true}
	}

	query := `INSERT INTO invoices (
		uuid, invoice_number, issue_date,
		issuer_name, issuer_nit, receiver_name, receiver_nit,
		payment_form, payment_method, items, taxes,
		tax_amount, base_amount, total_amount, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now())
	ON CONFLICT (uuid) DO NOTHING
	RETURNING id, created_at`

	err = p.db.QueryRowxContext(ctx, query,
		inv.UUID, inv.InvoiceNumber, issueDate,
		inv.Issuer.Name, inv.Issuer.NIT, inv.Receiver.Name, inv.Receiver.NIT,
		inv.PaymentForm, inv.PaymentMethod, items, taxes,
		inv.TaxAmount, inv.BaseAmount, inv.TotalAmount,
	).Scan(&inv.ID, &inv.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return AlreadyExists, nil
	}
	if err != nil {
		return AlreadyExists, fmt.Errorf("vault insert: %w", err)
	}
	return Inserted, nil
}

// List returns one page, most recent insertion first.
func (p *Postgres) List(ctx context.Context, page, perPage int) (*Page, error) {
	page, perPage = normalizePaging(page, perPage)

	var total int
	if err := p.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM invoices"); err != nil {
		return nil, fmt.Errorf("vault count: %w", err)
	}

	var rows []invoiceRow
	err := p.db.SelectContext(ctx, &rows,
		"SELECT * FROM invoices ORDER BY id DESC LIMIT $1 OFFSET $2",
		perPage, (page-1)*perPage)
	if err != nil {
		return nil, fmt.Errorf("vault list: %w", err)
	}

	items := make([]model.Invoice, 0, len(rows))
	for i := range rows {
		inv, err := rows[i].toInvoice()
		if err != nil {
			return nil, err
		}
		items = append(items, inv)
	}

	return &Page{
		Items:       items,
		Total:       total,
		Pages:       pageCount(total, perPage),
		CurrentPage: page,
	}, nil
}

// Delete removes the record with the given id.
func (p *Postgres) Delete(ctx context.Context, id int64) error {
	res, err := p.db.ExecContext(ctx, "DELETE FROM invoices WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("vault delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("vault delete: %w", err)
	}
	if n == 0 {
		return model.ErrInvoiceNotFound
	}
	return nil
}

// All returns every stored invoice, newest first.
func (p *Postgres) All(ctx context.Context) ([]model.Invoice, error) {
	var rows []invoiceRow
	err := p.db.SelectContext(ctx, &rows, "SELECT * FROM invoices ORDER BY id DESC")
	if err != nil {
		return nil, fmt.Errorf("vault export: %w", err)
	}
	items := make([]model.Invoice, 0, len(rows))
	for i := range rows {
		inv, err := rows[i].toInvoice()
		if err != nil {
			return nil, err
		}
		items = append(items, inv)
	}
	return items, nil
}

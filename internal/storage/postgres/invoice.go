package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/vendor-promo/internal/domain/invoice"
)

const (
	invoiceColumns = `id, site, profile_id, status, items, subtotal, global_discount, total`

	getInvoiceSQL = `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`

	getInvoiceForUpdateSQL = `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1 FOR UPDATE`

	updateInvoiceSQL = `UPDATE invoices SET
		status = $2, items = $3, subtotal = $4, global_discount = $5, total = $6,
		updated = now()
		WHERE id = $1`

	hasOwnedProductSQL = `SELECT EXISTS (
		SELECT 1
		FROM invoices i,
			jsonb_array_elements(i.items) AS item,
			jsonb_array_elements_text(item->'offer'->'products') AS product
		WHERE i.profile_id = $1
			AND i.status = 'complete'
			AND product = ANY($2)
	)`
)

var _ invoice.Repository = (*InvoiceRepository)(nil)

// InvoiceRepository implements invoice.Repository backed by PostgreSQL.
// Line items are stored as a JSONB document; the discount engine always
// reads and writes the invoice as a whole under a row lock.
type InvoiceRepository struct {
	pool *pgxpool.Pool
}

// NewInvoiceRepository returns an InvoiceRepository using the given pool.
func NewInvoiceRepository(pool *pgxpool.Pool) *InvoiceRepository {
	return &InvoiceRepository{pool: pool}
}

// GetByID loads an invoice.
func (r *InvoiceRepository) GetByID(ctx context.Context, id uuid.UUID) (*invoice.Invoice, error) {
	return r.get(ctx, getInvoiceSQL, id)
}

// GetForUpdate loads an invoice holding its row lock. Must be called
// inside a transaction.
func (r *InvoiceRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*invoice.Invoice, error) {
	return r.get(ctx, getInvoiceForUpdateSQL, id)
}

func (r *InvoiceRepository) get(ctx context.Context, sql string, id uuid.UUID) (*invoice.Invoice, error) {
	rows, err := queryFrom(ctx, r.pool).Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("loading invoice %q: %w", id, err)
	}

	inv, err := pgx.CollectExactlyOneRow(rows, scanInvoice)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, invoice.ErrNotFound
		}
		return nil, fmt.Errorf("loading invoice %q: %w", id, err)
	}
	return &inv, nil
}

// Update persists the invoice's status, line items and totals.
func (r *InvoiceRepository) Update(ctx context.Context, inv *invoice.Invoice) error {
	items, err := json.Marshal(inv.Items)
	if err != nil {
		return fmt.Errorf("marshaling invoice items: %w", err)
	}

	tag, err := queryFrom(ctx, r.pool).Exec(ctx, updateInvoiceSQL,
		inv.ID, string(inv.Status), items, inv.Subtotal, inv.GlobalDiscount, inv.Total,
	)
	if err != nil {
		return fmt.Errorf("updating invoice %q: %w", inv.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return invoice.ErrNotFound
	}
	return nil
}

func scanInvoice(row pgx.CollectableRow) (invoice.Invoice, error) {
	var (
		inv    invoice.Invoice
		status string
		items  []byte
	)
	err := row.Scan(
		&inv.ID, &inv.Site, &inv.ProfileID, &status, &items,
		&inv.Subtotal, &inv.GlobalDiscount, &inv.Total,
	)
	if err != nil {
		return invoice.Invoice{}, err
	}

	inv.Status = invoice.Status(status)
	if len(items) > 0 {
		if err := json.Unmarshal(items, &inv.Items); err != nil {
			return invoice.Invoice{}, fmt.Errorf("unmarshaling invoice items: %w", err)
		}
	}
	return inv, nil
}

var _ invoice.ProfileRepository = (*ProfileRepository)(nil)

// ProfileRepository answers product ownership questions from the
// profile's completed invoices.
type ProfileRepository struct {
	pool *pgxpool.Pool
}

// NewProfileRepository returns a ProfileRepository using the given pool.
func NewProfileRepository(pool *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{pool: pool}
}

// HasOwnedProduct reports whether the profile has a completed invoice
// containing any of the given products.
func (r *ProfileRepository) HasOwnedProduct(ctx context.Context, profileID uuid.UUID, products []string) (bool, error) {
	if len(products) == 0 {
		return false, nil
	}

	var owned bool
	err := queryFrom(ctx, r.pool).QueryRow(ctx, hasOwnedProductSQL, profileID, products).Scan(&owned)
	if err != nil {
		return false, fmt.Errorf("checking owned products for profile %q: %w", profileID, err)
	}
	return owned, nil
}

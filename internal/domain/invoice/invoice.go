// Package invoice models the billing subsystem's invoice aggregate as
// consumed by the discount engine. Ownership of invoices stays with the
// billing side; this package only touches the discount-relevant fields.
package invoice

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/vendor-promo/internal/domain/offer"
)

// Status tracks an invoice through checkout.
type Status string

const (
	// StatusCart is an open checkout session.
	StatusCart Status = "cart"
	// StatusComplete is a paid, terminal invoice. Only completed invoices
	// count toward redemption caps.
	StatusComplete Status = "complete"
)

var (
	// ErrNotFound is returned when an invoice does not exist.
	ErrNotFound = errors.New("invoice not found")
)

// OrderItem is a single line item on an invoice.
type OrderItem struct {
	ID       uuid.UUID       `json:"id"`
	Offer    offer.Offer     `json:"offer"`
	Quantity int             `json:"quantity"`
	Total    decimal.Decimal `json:"total"`
}

// Invoice is the checkout aggregate. Subtotal and Total are derived via
// UpdateTotals; GlobalDiscount is the invoice-level aggregate discount
// adjusted by the discount engine.
type Invoice struct {
	ID             uuid.UUID
	Site           string
	ProfileID      uuid.UUID
	Status         Status
	Items          []OrderItem
	Subtotal       decimal.Decimal
	GlobalDiscount decimal.Decimal
	Total          decimal.Decimal
}

// AddOffer appends a new line item for the given offer and returns it.
// Promotional offers are added with a zero total: their effect on the
// invoice is realized through GlobalDiscount, never their own price.
func (inv *Invoice) AddOffer(o offer.Offer) *OrderItem {
	item := OrderItem{
		ID:       uuid.New(),
		Offer:    o,
		Quantity: 1,
	}
	if !o.Promotional {
		item.Total = o.CurrentPrice()
	}
	inv.Items = append(inv.Items, item)
	return &inv.Items[len(inv.Items)-1]
}

// UpdateTotals recomputes Subtotal and Total from the line items and the
// current global discount. The total is floored at zero.
func (inv *Invoice) UpdateTotals() {
	subtotal := decimal.Zero
	for _, item := range inv.Items {
		subtotal = subtotal.Add(item.Total)
	}
	inv.Subtotal = subtotal

	total := subtotal.Sub(inv.GlobalDiscount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	inv.Total = total.Round(2)
}

// Products returns the distinct products across all line items.
func (inv *Invoice) Products() []string {
	seen := make(map[string]struct{})
	var products []string
	for _, item := range inv.Items {
		for _, p := range item.Offer.Products {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			products = append(products, p)
		}
	}
	return products
}

// HasPromotionalItem reports whether a promotional line item has already
// been applied to the invoice.
func (inv *Invoice) HasPromotionalItem() bool {
	for _, item := range inv.Items {
		if item.Offer.Promotional {
			return true
		}
	}
	return false
}

// Repository persists invoices. GetForUpdate must only be called inside
// a transaction; it locks the invoice row so concurrent coupon
// applications serialize.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Invoice, error)
	Update(ctx context.Context, inv *Invoice) error
}

// ProfileRepository answers customer ownership questions for the
// first-time-purchase restriction.
type ProfileRepository interface {
	// HasOwnedProduct reports whether the profile has a completed invoice
	// containing any of the given products.
	HasOwnedProduct(ctx context.Context, profileID uuid.UUID, products []string) (bool, error)
}

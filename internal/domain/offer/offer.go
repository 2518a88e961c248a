package offer

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when an offer does not exist.
var ErrNotFound = errors.New("offer not found")

// Offer is a sellable catalog entry referencing zero or more products.
// Campaigns link to an offer whose current price carries the discount
// magnitude; invoices reference offers through their line items.
type Offer struct {
	ID   uuid.UUID `json:"id"`
	Site string    `json:"site"`
	Name string    `json:"name"`
	// Promotional marks offers that exist only to materialize a coupon
	// discount on an invoice. At most one promotional line item may be
	// present per open checkout.
	Promotional bool            `json:"promotional"`
	Price       decimal.Decimal `json:"price"`
	Products    []string        `json:"products"`
}

// CurrentPrice returns the offer's active price. For campaign-linked
// offers this value is interpreted as the discount magnitude.
func (o *Offer) CurrentPrice() decimal.Decimal {
	return o.Price
}

// HasAnyProduct reports whether the offer targets at least one of the
// given products.
func (o *Offer) HasAnyProduct(products []string) bool {
	for _, p := range o.Products {
		for _, q := range products {
			if p == q {
				return true
			}
		}
	}
	return false
}

// Repository provides offer lookups.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Offer, error)
}

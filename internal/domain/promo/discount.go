package promo

import (
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/vendor-promo/internal/domain/campaign"
	"github.com/xenking/vendor-promo/internal/domain/invoice"
)

// Scope says which part of the invoice a discount applies to.
type Scope string

const (
	// ScopeWholeInvoice discounts the invoice subtotal as a whole.
	ScopeWholeInvoice Scope = "whole_invoice"
	// ScopePerLineItem discounts only line items whose products intersect
	// the campaign's targeted products.
	ScopePerLineItem Scope = "per_line_item"
)

// ErrScopeMismatch indicates the admission checks passed but no line
// item matched at computation time. The invoice must be left unmodified.
var ErrScopeMismatch = errors.New("no matching line item at computation time")

var hundred = decimal.NewFromInt(100)

// Discount is the computed outcome of applying a campaign's rule to an
// invoice.
type Discount struct {
	Amount decimal.Decimal
	Scope  Scope
	// UnitCount is the summed quantity of matching line items. Only
	// meaningful for fixed per-line-item discounts, where the coupon's
	// own line quantity is set to it.
	UnitCount int
	// MatchedItems are the ids of the line items the discount was
	// computed from. Empty for whole-invoice scope.
	MatchedItems []uuid.UUID
}

// Compute calculates the discount for the campaign against the invoice's
// current line items. couponLine is the id of the just-added promotional
// line item; it is excluded from the match set so a discount never feeds
// on itself. The magnitude is read as an absolute value, defensive
// against historically negative stored values.
//
// The four kind x scope cases:
//
//	percent / whole invoice: subtotal * magnitude / 100
//	percent / per line item: sum(item.total * magnitude / 100)
//	fixed   / whole invoice: magnitude, applied once
//	fixed   / per line item: magnitude * sum(item.quantity) — per-unit
func Compute(c *campaign.Campaign, inv *invoice.Invoice, couponLine uuid.UUID) (Discount, error) {
	magnitude := c.Magnitude.Abs()

	if !c.TargetsProducts() {
		return computeWholeInvoice(c.Kind, magnitude, inv)
	}
	return computePerLineItem(c, magnitude, inv, couponLine)
}

func computeWholeInvoice(kind campaign.DiscountKind, magnitude decimal.Decimal, inv *invoice.Invoice) (Discount, error) {
	d := Discount{Scope: ScopeWholeInvoice}

	switch kind {
	case campaign.KindPercent:
		d.Amount = inv.Subtotal.Mul(magnitude).Div(hundred).Round(2)
	case campaign.KindFixed:
		d.Amount = magnitude.Round(2)
	default:
		return Discount{}, errors.Errorf("unsupported discount kind: %q", kind)
	}

	return d, nil
}

func computePerLineItem(c *campaign.Campaign, magnitude decimal.Decimal, inv *invoice.Invoice, couponLine uuid.UUID) (Discount, error) {
	d := Discount{Scope: ScopePerLineItem}

	for i := range inv.Items {
		item := &inv.Items[i]
		if item.ID == couponLine || !item.Offer.HasAnyProduct(c.AppliesTo.Products) {
			continue
		}
		d.MatchedItems = append(d.MatchedItems, item.ID)
		d.UnitCount += item.Quantity

		if c.Kind == campaign.KindPercent {
			d.Amount = d.Amount.Add(item.Total.Mul(magnitude).Div(hundred))
		}
	}

	if len(d.MatchedItems) == 0 {
		// Admission saw an intersection; the cart changed underneath us.
		return Discount{}, ErrScopeMismatch
	}

	switch c.Kind {
	case campaign.KindPercent:
		d.Amount = d.Amount.Round(2)
	case campaign.KindFixed:
		d.Amount = magnitude.Mul(decimal.NewFromInt(int64(d.UnitCount))).Round(2)
	default:
		return Discount{}, errors.Errorf("unsupported discount kind: %q", c.Kind)
	}

	return d, nil
}

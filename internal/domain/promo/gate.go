package promo

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/vendor-promo/internal/domain/campaign"
	"github.com/xenking/vendor-promo/internal/domain/invoice"
	"github.com/xenking/vendor-promo/internal/processor"
)

// CouponFinder is the coupon lookup the gate needs.
type CouponFinder interface {
	FindByCode(ctx context.Context, site, code string) (*campaign.CouponCode, error)
}

// Associations answers whether a coupon is already linked to an invoice.
type Associations interface {
	Exists(ctx context.Context, couponID, invoiceID uuid.UUID) (bool, error)
}

// Gate runs the admission checks for a submitted code, in order,
// short-circuiting on the first failure. The processor instance is
// injected per call so the gate itself stays site-agnostic.
type Gate struct {
	coupons  CouponFinder
	assoc    Associations
	profiles invoice.ProfileRepository
	now      func() time.Time
}

// NewGate creates a validation gate.
func NewGate(coupons CouponFinder, assoc Associations, profiles invoice.ProfileRepository) *Gate {
	return &Gate{coupons: coupons, assoc: assoc, profiles: profiles, now: time.Now}
}

// Validate admits or rejects a submitted code against an invoice.
// On success it returns the validated coupon for the discount engine.
func (g *Gate) Validate(ctx context.Context, proc processor.Processor, codeText string, inv *invoice.Invoice) (*campaign.CouponCode, error) {
	// 1. Lookup, case-insensitive within the invoice's site.
	code, err := g.coupons.FindByCode(ctx, inv.Site, strings.TrimSpace(codeText))
	if err != nil {
		if errors.Is(err, campaign.ErrCouponNotFound) {
			return nil, ErrCodeNotFound
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	camp := code.Campaign
	now := g.now()

	// 2. Temporal window: campaign bounds, then the coupon's own expiry.
	if camp.StartDate != nil && now.Before(*camp.StartDate) {
		return nil, ErrNotYetActive
	}
	if camp.EndDate != nil && now.After(*camp.EndDate) {
		return nil, ErrExpired
	}
	if code.Expired(now) {
		return nil, ErrExpired
	}

	// 3. Exclusivity: one discount coupon per checkout session. The same
	// coupon submitted again is a no-op re-association, not a violation.
	if inv.HasPromotionalItem() {
		applied, err := g.assoc.Exists(ctx, code.ID, inv.ID)
		if err != nil {
			return nil, errors.Wrap(err, "check coupon association")
		}
		if !applied {
			return nil, ErrOneCodePerCheckout
		}
		return code, nil
	}

	// 4 + 5. Product applicability and first-purchase restriction. Both
	// only apply when the campaign targets specific products; an empty
	// target set means the discount covers the whole invoice.
	if camp.TargetsProducts() {
		applicable := intersect(camp.AppliesTo.Products, inv.Products())
		if len(applicable) == 0 {
			return nil, ErrNoApplicableProduct
		}

		owned, err := g.profiles.HasOwnedProduct(ctx, inv.ProfileID, applicable)
		if err != nil {
			return nil, errors.Wrap(err, "check owned products")
		}
		if owned {
			return nil, ErrAlreadyOwned
		}
	}

	// 6. Backend-level validity.
	resp, err := proc.IsCodeValid(ctx, code, inv)
	if err != nil {
		return nil, errors.Wrapf(err, "processor %s validity check", proc.Name())
	}
	if !resp.Success {
		return nil, &ProcessorRejectedError{
			Processor: proc.Name(),
			Message:   resp.Message,
			Detail:    resp.Error,
		}
	}

	return code, nil
}

func intersect(a, b []string) []string {
	inB := make(map[string]struct{}, len(b))
	for _, s := range b {
		inB[s] = struct{}{}
	}
	var out []string
	for _, s := range a {
		if _, ok := inB[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

package processor

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/vendor-promo/internal/domain/campaign"
	"github.com/xenking/vendor-promo/internal/domain/invoice"
	"github.com/xenking/vendor-promo/internal/domain/offer"
)

// BaseName is the processor name for the local backend.
const BaseName = "base"

// RedemptionCounter exposes the completed-redemption counts the base
// processor needs for cap checks.
type RedemptionCounter interface {
	CountCompletedForCoupon(ctx context.Context, couponID uuid.UUID) (int, error)
	CountCompletedForCampaign(ctx context.Context, campaignID uuid.UUID) (int, error)
}

// Base is the local processor: no external system, direct persistence.
// Validity is decided entirely from local state (active flag and
// redemption caps).
type Base struct {
	campaigns campaign.Repository
	coupons   campaign.CouponRepository
	offers    offer.Repository
	ledger    RedemptionCounter
}

var _ Processor = (*Base)(nil)

// NewBase creates the local processor.
func NewBase(
	campaigns campaign.Repository,
	coupons campaign.CouponRepository,
	offers offer.Repository,
	ledger RedemptionCounter,
) *Base {
	return &Base{
		campaigns: campaigns,
		coupons:   coupons,
		offers:    offers,
		ledger:    ledger,
	}
}

// Name implements Processor.
func (p *Base) Name() string { return BaseName }

// Campaigns exposes the campaign repository to embedding processors.
func (p *Base) Campaigns() campaign.Repository { return p.campaigns }

// Coupons exposes the coupon repository to embedding processors.
func (p *Base) Coupons() campaign.CouponRepository { return p.coupons }

// CreatePromo validates the form and persists a new campaign.
func (p *Base) CreatePromo(ctx context.Context, form *campaign.Form) (*campaign.Campaign, error) {
	if err := form.Validate(); err != nil {
		return nil, err
	}

	target, err := p.offers.GetByID(ctx, form.AppliesToOffer)
	if err != nil {
		return nil, errors.Wrap(err, "load applies-to offer")
	}

	c := &campaign.Campaign{ID: uuid.New(), AppliesTo: *target}
	form.Apply(c)

	if err := p.campaigns.Create(ctx, c); err != nil {
		return nil, errors.Wrap(err, "create campaign")
	}
	return c, nil
}

// UpdatePromo validates the form and persists the changes in place.
func (p *Base) UpdatePromo(ctx context.Context, form *campaign.Form) (*campaign.Campaign, error) {
	if err := form.Validate(); err != nil {
		return nil, err
	}

	c, err := p.campaigns.GetByID(ctx, form.ID)
	if err != nil {
		return nil, err
	}

	if form.AppliesToOffer != uuid.Nil && form.AppliesToOffer != c.AppliesTo.ID {
		target, err := p.offers.GetByID(ctx, form.AppliesToOffer)
		if err != nil {
			return nil, errors.Wrap(err, "load applies-to offer")
		}
		c.AppliesTo = *target
	}
	form.Apply(c)

	if err := p.campaigns.Update(ctx, c); err != nil {
		return nil, errors.Wrap(err, "update campaign")
	}
	return c, nil
}

// DeletePromo removes the campaign; coupon codes cascade.
func (p *Base) DeletePromo(ctx context.Context, c *campaign.Campaign) error {
	return p.campaigns.Delete(ctx, c.ID)
}

// CreateCouponCode persists a new coupon code under its campaign.
func (p *Base) CreateCouponCode(ctx context.Context, form *campaign.CouponForm) (*campaign.CouponCode, error) {
	if err := form.Validate(); err != nil {
		return nil, err
	}

	c := &campaign.CouponCode{ID: uuid.New()}
	form.Apply(c)

	if err := p.coupons.Create(ctx, c); err != nil {
		return nil, errors.Wrap(err, "create coupon code")
	}
	return c, nil
}

// UpdateCouponCode persists changes to an existing coupon code.
func (p *Base) UpdateCouponCode(ctx context.Context, form *campaign.CouponForm) (*campaign.CouponCode, error) {
	if err := form.Validate(); err != nil {
		return nil, err
	}

	c, err := p.coupons.GetByID(ctx, form.ID)
	if err != nil {
		return nil, err
	}
	form.Apply(c)

	if err := p.coupons.Update(ctx, c); err != nil {
		return nil, errors.Wrap(err, "update coupon code")
	}
	return c, nil
}

// DeleteCouponCode removes the coupon code.
func (p *Base) DeleteCouponCode(ctx context.Context, c *campaign.CouponCode) error {
	return p.coupons.Delete(ctx, c.ID)
}

// SetActiveCouponCode toggles the coupon's activation flag.
func (p *Base) SetActiveCouponCode(ctx context.Context, c *campaign.CouponCode, active bool) error {
	return p.coupons.SetActive(ctx, c.ID, active)
}

// IsCodeValid checks the active flag and the coupon and campaign
// redemption caps against completed redemptions in the ledger.
func (p *Base) IsCodeValid(ctx context.Context, c *campaign.CouponCode, _ *invoice.Invoice) (*Response, error) {
	if !c.Active {
		return Rejected("coupon code is not active", "inactive"), nil
	}

	if c.MaxRedemptions > 0 {
		used, err := p.ledger.CountCompletedForCoupon(ctx, c.ID)
		if err != nil {
			return nil, errors.Wrap(err, "count coupon redemptions")
		}
		if used >= c.MaxRedemptions {
			return Rejected("coupon code redemption limit reached", "coupon_limit"), nil
		}
	}

	if c.Campaign != nil && c.Campaign.MaxRedemptions > 0 {
		used, err := p.ledger.CountCompletedForCampaign(ctx, c.CampaignID)
		if err != nil {
			return nil, errors.Wrap(err, "count campaign redemptions")
		}
		if used >= c.Campaign.MaxRedemptions {
			return Rejected("campaign redemption limit reached", "campaign_limit"), nil
		}
	}

	return Accepted(""), nil
}

// RedeemCode is a no-op for the local backend; the redemption ledger is
// written by the discount engine's apply transaction.
func (p *Base) RedeemCode(_ context.Context, _ *campaign.CouponCode, _ *invoice.Invoice) (*Response, error) {
	return Accepted(""), nil
}

// ConfirmRedeemedCode is a no-op for the local backend.
func (p *Base) ConfirmRedeemedCode(_ context.Context, _ *campaign.CouponCode, _ *invoice.Invoice) (*Response, error) {
	return Accepted(""), nil
}

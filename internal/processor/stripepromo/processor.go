package stripepromo

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/vendor-promo/internal/domain/campaign"
	"github.com/xenking/vendor-promo/internal/domain/invoice"
	"github.com/xenking/vendor-promo/internal/processor"
)

// Name is the processor name for the payments backend.
const Name = "stripe"

// Meta keys where provider object ids are mirrored.
const (
	MetaCouponID    = "stripe_id"
	MetaPromoCodeID = "stripe_promo_id"
)

var hundred = decimal.NewFromInt(100)

// Processor mirrors campaigns as provider coupons and coupon codes as
// provider promotion codes. Local persistence is delegated to the base
// processor and only happens after the external write succeeds.
type Processor struct {
	*processor.Base
	client   *Client
	currency string
}

var _ processor.Processor = (*Processor)(nil)

// New creates a payments-backed processor. currency is the ISO code used
// for fixed-amount coupons.
func New(base *processor.Base, client *Client, currency string) *Processor {
	if currency == "" {
		currency = "usd"
	}
	return &Processor{Base: base, client: client, currency: currency}
}

// Name implements processor.Processor.
func (p *Processor) Name() string { return Name }

func providerID(content json.RawMessage) (string, error) {
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(content, &obj); err != nil {
		return "", errors.Wrap(err, "decode provider id")
	}
	if obj.ID == "" {
		return "", errors.New("provider payload has no id")
	}
	return obj.ID, nil
}

// couponForm builds the provider coupon parameters from a campaign form.
// Fixed magnitudes are sent in the currency's minor unit.
func (p *Processor) couponForm(f *campaign.Form) url.Values {
	form := url.Values{}
	form.Set("name", f.Name)
	form.Set("duration", "forever")
	form.Set("metadata[site]", f.Site)

	switch f.Kind {
	case campaign.KindPercent:
		form.Set("percent_off", f.Magnitude.Abs().String())
	case campaign.KindFixed:
		cents := f.Magnitude.Abs().Mul(hundred).IntPart()
		form.Set("amount_off", strconv.FormatInt(cents, 10))
		form.Set("currency", p.currency)
	}

	if f.MaxRedemptions > 0 {
		form.Set("max_redemptions", strconv.Itoa(f.MaxRedemptions))
	}
	if f.EndDate != nil {
		form.Set("redeem_by", strconv.FormatInt(f.EndDate.Unix(), 10))
	}
	return form
}

// CreatePromo creates the provider coupon, then persists the campaign
// locally carrying the provider id in its meta.
func (p *Processor) CreatePromo(ctx context.Context, form *campaign.Form) (*campaign.Campaign, error) {
	if err := form.Validate(); err != nil {
		return nil, err
	}

	resp, err := p.client.CreateCoupon(ctx, p.couponForm(form))
	if err != nil {
		return nil, errors.Wrap(err, "create provider coupon")
	}
	if !resp.Success {
		return nil, errors.Errorf("create provider coupon rejected: %s", resp.Message)
	}
	id, err := providerID(resp.Content)
	if err != nil {
		return nil, err
	}

	if form.Meta == nil {
		form.Meta = map[string]string{}
	}
	form.Meta[MetaCouponID] = id

	return p.Base.CreatePromo(ctx, form)
}

// UpdatePromo patches the provider coupon's mutable fields. Amount,
// percentage and currency are immutable upstream and never resent.
func (p *Processor) UpdatePromo(ctx context.Context, form *campaign.Form) (*campaign.Campaign, error) {
	if err := form.Validate(); err != nil {
		return nil, err
	}

	id := form.Meta[MetaCouponID]
	if id == "" {
		return nil, errors.New("campaign is not mirrored to the payments provider")
	}

	upstream := url.Values{}
	upstream.Set("name", form.Name)
	upstream.Set("metadata[site]", form.Site)

	resp, err := p.client.UpdateCoupon(ctx, id, upstream)
	if err != nil {
		return nil, errors.Wrap(err, "update provider coupon")
	}
	if !resp.Success {
		return nil, errors.Errorf("update provider coupon rejected: %s", resp.Message)
	}

	return p.Base.UpdatePromo(ctx, form)
}

// DeletePromo removes the provider coupon (tolerating already-gone
// coupons), then deletes locally with coupon codes cascading.
func (p *Processor) DeletePromo(ctx context.Context, c *campaign.Campaign) error {
	if id := c.Meta[MetaCouponID]; id != "" {
		resp, err := p.client.DeleteCoupon(ctx, id)
		if err != nil {
			return errors.Wrap(err, "delete provider coupon")
		}
		if !resp.Success && !resp.NotFound() {
			return errors.Errorf("delete provider coupon rejected: %s", resp.Message)
		}
	}
	return p.Base.DeletePromo(ctx, c)
}

// CreateCouponCode creates the provider promotion code, then persists
// locally carrying the provider id in its meta.
func (p *Processor) CreateCouponCode(ctx context.Context, form *campaign.CouponForm) (*campaign.CouponCode, error) {
	if err := form.Validate(); err != nil {
		return nil, err
	}

	camp, err := p.Campaigns().GetByID(ctx, form.CampaignID)
	if err != nil {
		return nil, err
	}
	couponID := camp.Meta[MetaCouponID]
	if couponID == "" {
		return nil, errors.New("campaign is not mirrored to the payments provider")
	}

	upstream := url.Values{}
	upstream.Set("coupon", couponID)
	upstream.Set("code", form.Code)
	upstream.Set("active", strconv.FormatBool(form.Active))
	if form.MaxRedemptions > 0 {
		upstream.Set("max_redemptions", strconv.Itoa(form.MaxRedemptions))
	}
	if form.EndDate != nil {
		upstream.Set("expires_at", strconv.FormatInt(form.EndDate.Unix(), 10))
	}

	resp, err := p.client.CreatePromotionCode(ctx, upstream)
	if err != nil {
		return nil, errors.Wrap(err, "create promotion code")
	}
	if !resp.Success {
		return nil, errors.Errorf("create promotion code rejected: %s", resp.Message)
	}
	id, err := providerID(resp.Content)
	if err != nil {
		return nil, err
	}

	if form.Meta == nil {
		form.Meta = map[string]string{}
	}
	form.Meta[MetaPromoCodeID] = id

	return p.Base.CreateCouponCode(ctx, form)
}

// UpdateCouponCode syncs the active flag upstream, then updates locally.
// The code itself is immutable upstream and rejected on change.
func (p *Processor) UpdateCouponCode(ctx context.Context, form *campaign.CouponForm) (*campaign.CouponCode, error) {
	if err := form.Validate(); err != nil {
		return nil, err
	}

	current, err := p.Coupons().GetByID(ctx, form.ID)
	if err != nil {
		return nil, err
	}
	if current.Code != form.Code {
		return nil, errors.New("promotion codes are immutable upstream; delete and recreate instead")
	}

	if id := current.Meta[MetaPromoCodeID]; id != "" && current.Active != form.Active {
		if err := p.setUpstreamActive(ctx, id, form.Active); err != nil {
			return nil, err
		}
	}

	return p.Base.UpdateCouponCode(ctx, form)
}

// DeleteCouponCode deactivates the promotion code upstream (the provider
// has no delete for them), then deletes locally.
func (p *Processor) DeleteCouponCode(ctx context.Context, c *campaign.CouponCode) error {
	if id := c.Meta[MetaPromoCodeID]; id != "" {
		if err := p.setUpstreamActive(ctx, id, false); err != nil {
			return err
		}
	}
	return p.Base.DeleteCouponCode(ctx, c)
}

// SetActiveCouponCode toggles the flag upstream and locally.
func (p *Processor) SetActiveCouponCode(ctx context.Context, c *campaign.CouponCode, active bool) error {
	if id := c.Meta[MetaPromoCodeID]; id != "" {
		if err := p.setUpstreamActive(ctx, id, active); err != nil {
			return err
		}
	}
	return p.Base.SetActiveCouponCode(ctx, c, active)
}

func (p *Processor) setUpstreamActive(ctx context.Context, id string, active bool) error {
	form := url.Values{}
	form.Set("active", strconv.FormatBool(active))

	resp, err := p.client.UpdatePromotionCode(ctx, id, form)
	if err != nil {
		return errors.Wrap(err, "update promotion code")
	}
	if !resp.Success && !resp.NotFound() {
		return errors.Errorf("update promotion code rejected: %s", resp.Message)
	}
	return nil
}

// IsCodeValid requires the coupon to be mirrored upstream, then applies
// the local activation and cap checks. Actual charging happens in the
// provider's own checkout, so there is no redemption to reserve here.
func (p *Processor) IsCodeValid(ctx context.Context, c *campaign.CouponCode, inv *invoice.Invoice) (*processor.Response, error) {
	if c.Meta[MetaPromoCodeID] == "" {
		return processor.Rejected("coupon code is not registered with the payments provider", "unmirrored"), nil
	}
	return p.Base.IsCodeValid(ctx, c, inv)
}

package vouchery

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/vendor-promo/internal/domain/campaign"
	"github.com/xenking/vendor-promo/internal/domain/invoice"
	"github.com/xenking/vendor-promo/internal/processor"
)

// Name is the processor name for the voucher backend.
const Name = "vouchery"

// Campaign meta keys where the backend's object graph ids are mirrored.
const (
	MetaCampaignID    = "campaign_id"
	MetaSubCampaignID = "subcampaign_id"
	MetaRewardID      = "reward_id"
)

// Processor mirrors campaigns and coupon codes to the voucher backend.
// A local campaign maps to a sub-campaign (with one reward) nested under
// a per-site main campaign; a coupon code maps to a voucher. Local
// persistence is delegated to the base processor and only happens after
// the external write succeeds.
type Processor struct {
	*processor.Base
	client *Client
}

var _ processor.Processor = (*Processor)(nil)

// New creates a voucher-backed processor.
func New(base *processor.Base, client *Client) *Processor {
	return &Processor{Base: base, client: client}
}

// Name implements processor.Processor.
func (p *Processor) Name() string { return Name }

// transactionID derives the backend redemption key from the invoice and
// code, so the same (invoice, code) pair always addresses the same
// redemption.
func transactionID(inv *invoice.Invoice, c *campaign.CouponCode) string {
	return inv.ID.String() + "__" + c.Code
}

// backendID pulls the numeric id out of a backend payload.
func backendID(content json.RawMessage) (string, error) {
	var obj struct {
		ID json.Number `json:"id"`
	}
	if err := json.Unmarshal(content, &obj); err != nil {
		return "", errors.Wrap(err, "decode backend id")
	}
	if obj.ID.String() == "" {
		return "", errors.New("backend payload has no id")
	}
	return obj.ID.String(), nil
}

// mainCampaignID finds the per-site main campaign, creating it on first
// use.
func (p *Processor) mainCampaignID(ctx context.Context, site string) (string, error) {
	resp, err := p.client.GetCampaigns(ctx, url.Values{"name_cont": {site}})
	if err != nil {
		return "", errors.Wrap(err, "list main campaigns")
	}
	if resp.Success && len(resp.Content) > 0 {
		var existing []struct {
			ID json.Number `json:"id"`
		}
		if err := json.Unmarshal(resp.Content, &existing); err == nil && len(existing) > 0 {
			return existing[0].ID.String(), nil
		}
	}

	resp, err = p.client.CreateCampaign(ctx, site, map[string]any{
		"type":          "MainCampaign",
		"template":      "discount",
		"budget_type":   "unlimited",
		"active":        true,
		"status":        "active",
		"voucher_type":  "unique",
		"triggers_on":   "redemption",
		"currency_code": "USD",
	})
	if err != nil {
		return "", errors.Wrap(err, "create main campaign")
	}
	if !resp.Success {
		return "", errors.Errorf("create main campaign rejected: %s", resp.Message)
	}
	return backendID(resp.Content)
}

// CreatePromo builds the backend graph (main campaign, sub-campaign,
// reward), then persists the campaign locally carrying the backend ids
// in its meta.
func (p *Processor) CreatePromo(ctx context.Context, form *campaign.Form) (*campaign.Campaign, error) {
	if err := form.Validate(); err != nil {
		return nil, err
	}

	mainID, err := p.mainCampaignID(ctx, form.Site)
	if err != nil {
		return nil, err
	}

	sub, err := p.client.CreateCampaign(ctx, form.Name, map[string]any{
		"type":         "SubCampaign",
		"parent_id":    json.Number(mainID),
		"description":  form.Description,
		"active":       true,
		"status":       "active",
		"voucher_type": "unique",
	})
	if err != nil {
		return nil, errors.Wrap(err, "create sub-campaign")
	}
	if !sub.Success {
		return nil, errors.Errorf("create sub-campaign rejected: %s", sub.Message)
	}
	subID, err := backendID(sub.Content)
	if err != nil {
		return nil, err
	}

	magnitude, _ := form.Magnitude.Abs().Float64()
	rewardType := "SetDiscount"
	if form.Kind == campaign.KindPercent {
		rewardType = "PercentageDiscount"
	}
	reward, err := p.client.CreateReward(ctx, subID, map[string]any{
		"type":            rewardType,
		"discount_value":  magnitude,
		"per_transaction": true,
		"only_once":       false,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create reward")
	}
	if !reward.Success {
		return nil, errors.Errorf("create reward rejected: %s", reward.Message)
	}
	rewardID, err := backendID(reward.Content)
	if err != nil {
		return nil, err
	}

	if form.Meta == nil {
		form.Meta = map[string]string{}
	}
	form.Meta[MetaCampaignID] = mainID
	form.Meta[MetaSubCampaignID] = subID
	form.Meta[MetaRewardID] = rewardID

	return p.Base.CreatePromo(ctx, form)
}

// UpdatePromo patches the backend sub-campaign before updating locally.
func (p *Processor) UpdatePromo(ctx context.Context, form *campaign.Form) (*campaign.Campaign, error) {
	if err := form.Validate(); err != nil {
		return nil, err
	}

	subID := form.Meta[MetaSubCampaignID]
	if subID == "" {
		return nil, errors.New("campaign is not mirrored to the voucher backend")
	}

	resp, err := p.client.UpdateCampaign(ctx, subID, map[string]any{
		"name":        form.Name,
		"description": form.Description,
	})
	if err != nil {
		return nil, errors.Wrap(err, "update sub-campaign")
	}
	if !resp.Success {
		return nil, errors.Errorf("update sub-campaign rejected: %s", resp.Message)
	}

	return p.Base.UpdatePromo(ctx, form)
}

// DeletePromo revokes the backend sub-campaign (tolerating already-gone
// resources), then deletes locally with coupon codes cascading.
func (p *Processor) DeletePromo(ctx context.Context, c *campaign.Campaign) error {
	if subID := c.Meta[MetaSubCampaignID]; subID != "" {
		resp, err := p.client.DeleteCampaign(ctx, subID)
		if err != nil {
			return errors.Wrap(err, "delete sub-campaign")
		}
		if !resp.Success && !resp.NotFound() {
			return errors.Errorf("delete sub-campaign rejected: %s", resp.Message)
		}
	}
	return p.Base.DeletePromo(ctx, c)
}

// CreateCouponCode creates the voucher upstream, then persists locally.
func (p *Processor) CreateCouponCode(ctx context.Context, form *campaign.CouponForm) (*campaign.CouponCode, error) {
	if err := form.Validate(); err != nil {
		return nil, err
	}

	camp, err := p.campaignFor(ctx, form.CampaignID)
	if err != nil {
		return nil, err
	}
	subID := camp.Meta[MetaSubCampaignID]
	if subID == "" {
		return nil, errors.New("campaign is not mirrored to the voucher backend")
	}

	resp, err := p.client.CreateVoucher(ctx, form.Code, subID)
	if err != nil {
		return nil, errors.Wrap(err, "create voucher")
	}
	if !resp.Success {
		return nil, errors.Errorf("create voucher rejected: %s", resp.Message)
	}

	return p.Base.CreateCouponCode(ctx, form)
}

// UpdateCouponCode updates local fields only. The backend keys vouchers
// by code, so a code change cannot be mirrored and is rejected.
func (p *Processor) UpdateCouponCode(ctx context.Context, form *campaign.CouponForm) (*campaign.CouponCode, error) {
	if err := form.Validate(); err != nil {
		return nil, err
	}

	current, err := p.Coupons().GetByID(ctx, form.ID)
	if err != nil {
		return nil, err
	}
	if current.Code != form.Code {
		return nil, errors.New("voucher codes are immutable upstream; delete and recreate instead")
	}

	return p.Base.UpdateCouponCode(ctx, form)
}

// DeleteCouponCode removes the voucher upstream (tolerating already-gone
// vouchers), then deletes locally.
func (p *Processor) DeleteCouponCode(ctx context.Context, c *campaign.CouponCode) error {
	resp, err := p.client.DeleteVoucher(ctx, c.Code)
	if err != nil {
		return errors.Wrap(err, "delete voucher")
	}
	if !resp.Success && !resp.NotFound() {
		return errors.Errorf("delete voucher rejected: %s", resp.Message)
	}
	return p.Base.DeleteCouponCode(ctx, c)
}

// IsCodeValid asks the backend whether the code can be redeemed for this
// invoice. An existing pending redemption for the same transaction means
// the code was already admitted and remains valid; otherwise one is
// reserved now.
func (p *Processor) IsCodeValid(ctx context.Context, c *campaign.CouponCode, inv *invoice.Invoice) (*processor.Response, error) {
	txID := transactionID(inv, c)

	resp, err := p.client.GetRedemption(ctx, c.Code, txID)
	if err != nil {
		return nil, errors.Wrap(err, "get redemption")
	}
	if resp.Success && len(resp.Content) > 0 {
		return resp, nil
	}

	total, _ := inv.Total.Float64()
	return p.client.CreateRedemption(ctx, c.Code, txID, total)
}

// RedeemCode is a no-op: the redemption was reserved by IsCodeValid.
func (p *Processor) RedeemCode(_ context.Context, _ *campaign.CouponCode, _ *invoice.Invoice) (*processor.Response, error) {
	return processor.Accepted(""), nil
}

// ConfirmRedeemedCode confirms the reserved redemption after payment.
func (p *Processor) ConfirmRedeemedCode(ctx context.Context, c *campaign.CouponCode, inv *invoice.Invoice) (*processor.Response, error) {
	return p.client.ConfirmRedemption(ctx, c.Code, transactionID(inv, c))
}

func (p *Processor) campaignFor(ctx context.Context, id uuid.UUID) (*campaign.Campaign, error) {
	c, err := p.Campaigns().GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "load campaign %s", id)
	}
	return c, nil
}

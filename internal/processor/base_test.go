package processor

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/vendor-promo/internal/domain/campaign"
	"github.com/xenking/vendor-promo/internal/domain/offer"
)

type memCampaigns struct {
	byID map[uuid.UUID]*campaign.Campaign
}

func (m *memCampaigns) Create(_ context.Context, c *campaign.Campaign) error {
	m.byID[c.ID] = c
	return nil
}

func (m *memCampaigns) Update(_ context.Context, c *campaign.Campaign) error {
	m.byID[c.ID] = c
	return nil
}

func (m *memCampaigns) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.byID, id)
	return nil
}

func (m *memCampaigns) GetByID(_ context.Context, id uuid.UUID) (*campaign.Campaign, error) {
	c, ok := m.byID[id]
	if !ok {
		return nil, campaign.ErrNotFound
	}
	return c, nil
}

type memCoupons struct {
	byID map[uuid.UUID]*campaign.CouponCode
}

func (m *memCoupons) Create(_ context.Context, c *campaign.CouponCode) error {
	m.byID[c.ID] = c
	return nil
}

func (m *memCoupons) Update(_ context.Context, c *campaign.CouponCode) error {
	m.byID[c.ID] = c
	return nil
}

func (m *memCoupons) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.byID, id)
	return nil
}

func (m *memCoupons) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	if c, ok := m.byID[id]; ok {
		c.Active = active
	}
	return nil
}

func (m *memCoupons) GetByID(_ context.Context, id uuid.UUID) (*campaign.CouponCode, error) {
	c, ok := m.byID[id]
	if !ok {
		return nil, campaign.ErrCouponNotFound
	}
	return c, nil
}

func (m *memCoupons) FindByCode(_ context.Context, _, _ string) (*campaign.CouponCode, error) {
	return nil, campaign.ErrCouponNotFound
}

type memOffers struct {
	byID map[uuid.UUID]*offer.Offer
}

func (m *memOffers) GetByID(_ context.Context, id uuid.UUID) (*offer.Offer, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, offer.ErrNotFound
	}
	return o, nil
}

type memCounter struct {
	perCoupon   map[uuid.UUID]int
	perCampaign map[uuid.UUID]int
}

func (m *memCounter) CountCompletedForCoupon(_ context.Context, id uuid.UUID) (int, error) {
	return m.perCoupon[id], nil
}

func (m *memCounter) CountCompletedForCampaign(_ context.Context, id uuid.UUID) (int, error) {
	return m.perCampaign[id], nil
}

type baseFixture struct {
	base      *Base
	campaigns *memCampaigns
	coupons   *memCoupons
	offers    *memOffers
	counter   *memCounter
}

func newBaseFixture(t *testing.T) *baseFixture {
	t.Helper()

	f := &baseFixture{
		campaigns: &memCampaigns{byID: map[uuid.UUID]*campaign.Campaign{}},
		coupons:   &memCoupons{byID: map[uuid.UUID]*campaign.CouponCode{}},
		offers:    &memOffers{byID: map[uuid.UUID]*offer.Offer{}},
		counter: &memCounter{
			perCoupon:   map[uuid.UUID]int{},
			perCampaign: map[uuid.UUID]int{},
		},
	}
	f.base = NewBase(f.campaigns, f.coupons, f.offers, f.counter)
	return f
}

func TestBaseCreatePromo(t *testing.T) {
	t.Parallel()

	f := newBaseFixture(t)
	target := &offer.Offer{ID: uuid.New(), Site: "site-a", Name: "Pro"}
	f.offers.byID[target.ID] = target

	created, err := f.base.CreatePromo(context.Background(), &campaign.Form{
		Site:           "site-a",
		Name:           "Sale",
		Kind:           campaign.KindPercent,
		Magnitude:      decimal.NewFromInt(10),
		AppliesToOffer: target.ID,
	})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, target.ID, created.AppliesTo.ID)
	assert.Contains(t, f.campaigns.byID, created.ID)
}

func TestBaseCreatePromoUnknownOffer(t *testing.T) {
	t.Parallel()

	f := newBaseFixture(t)
	_, err := f.base.CreatePromo(context.Background(), &campaign.Form{
		Site:           "site-a",
		Name:           "Sale",
		Kind:           campaign.KindPercent,
		Magnitude:      decimal.NewFromInt(10),
		AppliesToOffer: uuid.New(),
	})
	require.ErrorIs(t, err, offer.ErrNotFound)
}

func TestBaseIsCodeValid(t *testing.T) {
	t.Parallel()

	campID := uuid.New()
	camp := &campaign.Campaign{ID: campID, MaxRedemptions: 10}

	tests := []struct {
		name      string
		coupon    campaign.CouponCode
		usedCode  int
		usedCamp  int
		wantOK    bool
		wantError string
	}{
		{
			name:   "active under caps",
			coupon: campaign.CouponCode{Active: true, MaxRedemptions: 5},
			wantOK: true,
		},
		{
			name:      "inactive",
			coupon:    campaign.CouponCode{Active: false},
			wantError: "inactive",
		},
		{
			name:      "coupon cap reached",
			coupon:    campaign.CouponCode{Active: true, MaxRedemptions: 3},
			usedCode:  3,
			wantError: "coupon_limit",
		},
		{
			name:      "campaign cap reached",
			coupon:    campaign.CouponCode{Active: true},
			usedCamp:  10,
			wantError: "campaign_limit",
		},
		{
			name:     "unlimited coupon",
			coupon:   campaign.CouponCode{Active: true, MaxRedemptions: 0},
			usedCode: 1000,
			wantOK:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newBaseFixture(t)
			c := tt.coupon
			c.ID = uuid.New()
			c.CampaignID = campID
			c.Campaign = camp
			f.counter.perCoupon[c.ID] = tt.usedCode
			f.counter.perCampaign[campID] = tt.usedCamp

			resp, err := f.base.IsCodeValid(context.Background(), &c, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, resp.Success)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, resp.Error)
			}
		})
	}
}

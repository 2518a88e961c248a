package stripepromo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/vendor-promo/internal/domain/campaign"
	"github.com/xenking/vendor-promo/internal/domain/offer"
	"github.com/xenking/vendor-promo/internal/processor"
)

type fakeCampaigns struct {
	byID map[uuid.UUID]*campaign.Campaign
}

func (f *fakeCampaigns) Create(_ context.Context, c *campaign.Campaign) error {
	f.byID[c.ID] = c
	return nil
}

func (f *fakeCampaigns) Update(_ context.Context, c *campaign.Campaign) error {
	f.byID[c.ID] = c
	return nil
}

func (f *fakeCampaigns) Delete(_ context.Context, id uuid.UUID) error {
	delete(f.byID, id)
	return nil
}

func (f *fakeCampaigns) GetByID(_ context.Context, id uuid.UUID) (*campaign.Campaign, error) {
	c, ok := f.byID[id]
	if !ok {
		return nil, campaign.ErrNotFound
	}
	return c, nil
}

type fakeCoupons struct {
	byID map[uuid.UUID]*campaign.CouponCode
}

func (f *fakeCoupons) Create(_ context.Context, c *campaign.CouponCode) error {
	f.byID[c.ID] = c
	return nil
}

func (f *fakeCoupons) Update(_ context.Context, c *campaign.CouponCode) error {
	f.byID[c.ID] = c
	return nil
}

func (f *fakeCoupons) Delete(_ context.Context, id uuid.UUID) error {
	delete(f.byID, id)
	return nil
}

func (f *fakeCoupons) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	if c, ok := f.byID[id]; ok {
		c.Active = active
	}
	return nil
}

func (f *fakeCoupons) GetByID(_ context.Context, id uuid.UUID) (*campaign.CouponCode, error) {
	c, ok := f.byID[id]
	if !ok {
		return nil, campaign.ErrCouponNotFound
	}
	return c, nil
}

func (f *fakeCoupons) FindByCode(_ context.Context, _, _ string) (*campaign.CouponCode, error) {
	return nil, campaign.ErrCouponNotFound
}

type fakeOffers struct {
	byID map[uuid.UUID]*offer.Offer
}

func (f *fakeOffers) GetByID(_ context.Context, id uuid.UUID) (*offer.Offer, error) {
	o, ok := f.byID[id]
	if !ok {
		return nil, offer.ErrNotFound
	}
	return o, nil
}

type fakeCounter struct{}

func (fakeCounter) CountCompletedForCoupon(context.Context, uuid.UUID) (int, error)   { return 0, nil }
func (fakeCounter) CountCompletedForCampaign(context.Context, uuid.UUID) (int, error) { return 0, nil }

type recordedCall struct {
	Method string
	Path   string
	Form   url.Values
}

func newTestProcessor(t *testing.T, handler http.Handler) (*Processor, *fakeCampaigns, *fakeCoupons, *fakeOffers) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	campaigns := &fakeCampaigns{byID: map[uuid.UUID]*campaign.Campaign{}}
	coupons := &fakeCoupons{byID: map[uuid.UUID]*campaign.CouponCode{}}
	offers := &fakeOffers{byID: map[uuid.UUID]*offer.Offer{}}
	base := processor.NewBase(campaigns, coupons, offers, fakeCounter{})

	return New(base, NewClient(srv.URL, "sk_test"), "usd"), campaigns, coupons, offers
}

func record(calls *[]recordedCall, next func(w http.ResponseWriter, call recordedCall)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		call := recordedCall{Method: r.Method, Path: r.URL.Path, Form: r.PostForm}
		*calls = append(*calls, call)
		next(w, call)
	})
}

func TestCreatePromoFixedSendsMinorUnits(t *testing.T) {
	t.Parallel()

	var calls []recordedCall
	handler := record(&calls, func(w http.ResponseWriter, _ recordedCall) {
		_, _ = w.Write([]byte(`{"id": "co_123", "object": "coupon"}`))
	})

	proc, campaigns, _, offers := newTestProcessor(t, handler)

	target := &offer.Offer{ID: uuid.New(), Site: "site-a", Name: "Pro Plan"}
	offers.byID[target.ID] = target

	end := time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC)
	created, err := proc.CreatePromo(context.Background(), &campaign.Form{
		Site:           "site-a",
		Name:           "Holiday",
		Kind:           campaign.KindFixed,
		Magnitude:      decimal.NewFromFloat(12.50),
		MaxRedemptions: 100,
		EndDate:        &end,
		AppliesToOffer: target.ID,
	})
	require.NoError(t, err)

	assert.Equal(t, "co_123", created.Meta[MetaCouponID])
	assert.Contains(t, campaigns.byID, created.ID)

	require.Len(t, calls, 1)
	form := calls[0].Form
	assert.Equal(t, "/v1/coupons", calls[0].Path)
	assert.Equal(t, "1250", form.Get("amount_off"))
	assert.Equal(t, "usd", form.Get("currency"))
	assert.Equal(t, "forever", form.Get("duration"))
	assert.Equal(t, "100", form.Get("max_redemptions"))
	assert.Equal(t, "site-a", form.Get("metadata[site]"))
	assert.NotEmpty(t, form.Get("redeem_by"))
	assert.Empty(t, form.Get("percent_off"))
}

func TestCreatePromoPercentSendsPercentOff(t *testing.T) {
	t.Parallel()

	var calls []recordedCall
	handler := record(&calls, func(w http.ResponseWriter, _ recordedCall) {
		_, _ = w.Write([]byte(`{"id": "co_456"}`))
	})

	proc, _, _, offers := newTestProcessor(t, handler)

	target := &offer.Offer{ID: uuid.New(), Site: "site-a"}
	offers.byID[target.ID] = target

	_, err := proc.CreatePromo(context.Background(), &campaign.Form{
		Site:           "site-a",
		Name:           "Spring",
		Kind:           campaign.KindPercent,
		Magnitude:      decimal.NewFromInt(15),
		AppliesToOffer: target.ID,
	})
	require.NoError(t, err)

	form := calls[0].Form
	assert.Equal(t, "15", form.Get("percent_off"))
	assert.Empty(t, form.Get("amount_off"))
	assert.Empty(t, form.Get("currency"))
}

func TestUpdatePromoNeverResendsAmount(t *testing.T) {
	t.Parallel()

	var calls []recordedCall
	handler := record(&calls, func(w http.ResponseWriter, _ recordedCall) {
		_, _ = w.Write([]byte(`{"id": "co_123"}`))
	})

	proc, campaigns, _, _ := newTestProcessor(t, handler)

	existing := &campaign.Campaign{
		ID:        uuid.New(),
		Site:      "site-a",
		Name:      "Holiday",
		Kind:      campaign.KindFixed,
		Magnitude: decimal.NewFromFloat(12.50),
		Meta:      map[string]string{MetaCouponID: "co_123"},
	}
	campaigns.byID[existing.ID] = existing

	_, err := proc.UpdatePromo(context.Background(), &campaign.Form{
		ID:        existing.ID,
		Site:      "site-a",
		Name:      "Holiday Renamed",
		Kind:      campaign.KindFixed,
		Magnitude: decimal.NewFromFloat(12.50),
		Meta:      map[string]string{MetaCouponID: "co_123"},
	})
	require.NoError(t, err)

	require.Len(t, calls, 1)
	form := calls[0].Form
	assert.Equal(t, "/v1/coupons/co_123", calls[0].Path)
	assert.Equal(t, "Holiday Renamed", form.Get("name"))
	assert.Empty(t, form.Get("amount_off"))
	assert.Empty(t, form.Get("currency"))
	assert.Empty(t, form.Get("duration"))
}

func TestCreateCouponCodeMirrorsPromotionCode(t *testing.T) {
	t.Parallel()

	var calls []recordedCall
	handler := record(&calls, func(w http.ResponseWriter, _ recordedCall) {
		_, _ = w.Write([]byte(`{"id": "promo_789"}`))
	})

	proc, campaigns, coupons, _ := newTestProcessor(t, handler)

	camp := &campaign.Campaign{
		ID:   uuid.New(),
		Site: "site-a",
		Meta: map[string]string{MetaCouponID: "co_123"},
	}
	campaigns.byID[camp.ID] = camp

	code, err := proc.CreateCouponCode(context.Background(), &campaign.CouponForm{
		CampaignID: camp.ID,
		Code:       "SAVE10",
		Active:     true,
	})
	require.NoError(t, err)

	assert.Equal(t, "promo_789", code.Meta[MetaPromoCodeID])
	assert.Contains(t, coupons.byID, code.ID)

	form := calls[0].Form
	assert.Equal(t, "/v1/promotion_codes", calls[0].Path)
	assert.Equal(t, "co_123", form.Get("coupon"))
	assert.Equal(t, "SAVE10", form.Get("code"))
	assert.Equal(t, "true", form.Get("active"))
}

func TestDeleteCouponCodeDeactivatesUpstream(t *testing.T) {
	t.Parallel()

	var calls []recordedCall
	handler := record(&calls, func(w http.ResponseWriter, _ recordedCall) {
		_, _ = w.Write([]byte(`{"id": "promo_789", "active": false}`))
	})

	proc, _, coupons, _ := newTestProcessor(t, handler)

	code := &campaign.CouponCode{
		ID:   uuid.New(),
		Code: "SAVE10",
		Meta: map[string]string{MetaPromoCodeID: "promo_789"},
	}
	coupons.byID[code.ID] = code

	require.NoError(t, proc.DeleteCouponCode(context.Background(), code))

	require.Len(t, calls, 1)
	assert.Equal(t, "/v1/promotion_codes/promo_789", calls[0].Path)
	assert.Equal(t, "false", calls[0].Form.Get("active"))
	assert.NotContains(t, coupons.byID, code.ID)
}

func TestDeletePromoToleratesMissingCoupon(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": {"message": "No such coupon", "code": "resource_missing"}}`))
	})

	proc, campaigns, _, _ := newTestProcessor(t, handler)

	camp := &campaign.Campaign{
		ID:   uuid.New(),
		Meta: map[string]string{MetaCouponID: "co_gone"},
	}
	campaigns.byID[camp.ID] = camp

	require.NoError(t, proc.DeletePromo(context.Background(), camp))
	assert.NotContains(t, campaigns.byID, camp.ID)
}

func TestIsCodeValidRequiresMirroredCode(t *testing.T) {
	t.Parallel()

	proc, _, _, _ := newTestProcessor(t, http.NotFoundHandler())

	unmirrored := &campaign.CouponCode{ID: uuid.New(), Code: "LOCAL", Active: true}
	resp, err := proc.IsCodeValid(context.Background(), unmirrored, nil)
	require.NoError(t, err)
	assert.False(t, resp.Success)

	mirrored := &campaign.CouponCode{
		ID:     uuid.New(),
		Code:   "SAVE10",
		Active: true,
		Meta:   map[string]string{MetaPromoCodeID: "promo_789"},
	}
	resp, err = proc.IsCodeValid(context.Background(), mirrored, nil)
	require.NoError(t, err)
	assert.True(t, resp.Success)
}

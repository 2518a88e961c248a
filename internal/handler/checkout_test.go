package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/vendor-promo/internal/domain/campaign"
	"github.com/xenking/vendor-promo/internal/domain/invoice"
	"github.com/xenking/vendor-promo/internal/domain/offer"
	"github.com/xenking/vendor-promo/internal/domain/promo"
	"github.com/xenking/vendor-promo/internal/processor"
)

type memInvoices struct {
	byID map[uuid.UUID]*invoice.Invoice
}

func (m *memInvoices) GetByID(_ context.Context, id uuid.UUID) (*invoice.Invoice, error) {
	inv, ok := m.byID[id]
	if !ok {
		return nil, invoice.ErrNotFound
	}
	cp := *inv
	cp.Items = append([]invoice.OrderItem(nil), inv.Items...)
	return &cp, nil
}

func (m *memInvoices) GetForUpdate(ctx context.Context, id uuid.UUID) (*invoice.Invoice, error) {
	return m.GetByID(ctx, id)
}

func (m *memInvoices) Update(_ context.Context, inv *invoice.Invoice) error {
	m.byID[inv.ID] = inv
	return nil
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

func (m *memCoupons) FindByCode(_ context.Context, site, code string) (*campaign.CouponCode, error) {
	for _, c := range m.byID {
		if c.Campaign != nil && c.Campaign.Site == site && strings.EqualFold(c.Code, code) {
			return c, nil
		}
	}
	return nil, campaign.ErrCouponNotFound
}

type memCampaignRepo struct {
	byID map[uuid.UUID]*campaign.Campaign
}

func (m *memCampaignRepo) Create(_ context.Context, c *campaign.Campaign) error {
	m.byID[c.ID] = c
	return nil
}

func (m *memCampaignRepo) Update(_ context.Context, c *campaign.Campaign) error {
	m.byID[c.ID] = c
	return nil
}

func (m *memCampaignRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.byID, id)
	return nil
}

func (m *memCampaignRepo) GetByID(_ context.Context, id uuid.UUID) (*campaign.Campaign, error) {
	c, ok := m.byID[id]
	if !ok {
		return nil, campaign.ErrNotFound
	}
	return c, nil
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

type memLedger struct {
	associations map[[2]uuid.UUID]bool
}

func (m *memLedger) Associate(_ context.Context, couponID, invoiceID uuid.UUID) (bool, error) {
	key := [2]uuid.UUID{couponID, invoiceID}
	if m.associations[key] {
		return false, nil
	}
	m.associations[key] = true
	return true, nil
}

func (m *memLedger) Exists(_ context.Context, couponID, invoiceID uuid.UUID) (bool, error) {
	return m.associations[[2]uuid.UUID{couponID, invoiceID}], nil
}

func (m *memLedger) MarkCompleted(_ context.Context, invoiceID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for key := range m.associations {
		if key[1] == invoiceID {
			ids = append(ids, key[0])
		}
	}
	return ids, nil
}

func (m *memLedger) CountCompletedForCoupon(context.Context, uuid.UUID) (int, error) {
	return 0, nil
}

func (m *memLedger) CountCompletedForCampaign(context.Context, uuid.UUID) (int, error) {
	return 0, nil
}

type memProfiles struct{}

func (memProfiles) HasOwnedProduct(context.Context, uuid.UUID, []string) (bool, error) {
	return false, nil
}

type memSiteConfig struct{}

func (memSiteConfig) GetValue(context.Context, string, string) (string, error) {
	return "", nil
}

type directTx struct{}

func (directTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fixture struct {
	srv        *httptest.Server
	inv        *invoice.Invoice
	camp       *campaign.Campaign
	coupon     *campaign.CouponCode
	coupons    *memCoupons
	campaigns  *memCampaignRepo
	offers     *memOffers
	affiliates *memAffiliates
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	invoices := &memInvoices{byID: map[uuid.UUID]*invoice.Invoice{}}
	coupons := &memCoupons{byID: map[uuid.UUID]*campaign.CouponCode{}}
	campaigns := &memCampaignRepo{byID: map[uuid.UUID]*campaign.Campaign{}}
	offers := &memOffers{byID: map[uuid.UUID]*offer.Offer{}}
	ledger := &memLedger{associations: map[[2]uuid.UUID]bool{}}
	affiliates := newMemAffiliates()

	base := processor.NewBase(campaigns, coupons, offers, ledger)
	resolver := processor.NewResolver(memSiteConfig{}, processor.BaseName)
	resolver.Register(processor.BaseName, func(string) (processor.Processor, error) {
		return base, nil
	})

	gate := promo.NewGate(coupons, ledger, memProfiles{})
	service := promo.NewService(gate, invoices, coupons, ledger, resolver, directTx{})

	target := offer.Offer{ID: uuid.New(), Site: "site-a", Name: "Pro", Products: []string{"pro"}}
	offers.byID[target.ID] = &target

	camp := &campaign.Campaign{
		ID:        uuid.New(),
		Site:      "site-a",
		Name:      "Sale",
		Kind:      campaign.KindPercent,
		Magnitude: decimal.NewFromInt(10),
		AppliesTo: target,
	}
	campaigns.byID[camp.ID] = camp

	coupon := &campaign.CouponCode{
		ID:         uuid.New(),
		Code:       "SAVE10",
		Active:     true,
		CampaignID: camp.ID,
		Campaign:   camp,
	}
	coupons.byID[coupon.ID] = coupon

	inv := &invoice.Invoice{
		ID:        uuid.New(),
		Site:      "site-a",
		ProfileID: uuid.New(),
		Status:    invoice.StatusCart,
	}
	inv.AddOffer(offer.Offer{ID: uuid.New(), Products: []string{"pro"}, Price: decimal.NewFromInt(100)})
	inv.UpdateTotals()
	invoices.byID[inv.ID] = inv

	h := NewHandler(service, resolver, campaigns, coupons, affiliates)
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)

	return &fixture{
		srv:        srv,
		inv:        inv,
		camp:       camp,
		coupon:     coupon,
		coupons:    coupons,
		campaigns:  campaigns,
		offers:     offers,
		affiliates: affiliates,
	}
}

func (f *fixture) post(t *testing.T, path, body string) (*http.Response, envelope) {
	t.Helper()

	resp, err := http.Post(f.srv.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp, env
}

func TestApplyCouponSuccess(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	resp, env := f.post(t, "/api/checkout/"+f.inv.ID.String()+"/coupon", `{"code": "save10"}`)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, env.IsRequestSuccess)

	content, err := json.Marshal(env.ResponseContent)
	require.NoError(t, err)
	var applied appliedCouponResponse
	require.NoError(t, json.Unmarshal(content, &applied))

	assert.Equal(t, "SAVE10", applied.Code)
	assert.Equal(t, "10", applied.Discount.String())
	assert.Equal(t, "90", applied.Invoice.Total.String())
}

func TestApplyCouponUnknownCode(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	resp, env := f.post(t, "/api/checkout/"+f.inv.ID.String()+"/coupon", `{"code": "NOPE"}`)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.False(t, env.IsRequestSuccess)
	assert.Equal(t, "invalid_code", env.ResponseError)
}

func TestApplyCouponSecondCodeConflicts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	other := &campaign.CouponCode{
		ID:         uuid.New(),
		Code:       "OTHER20",
		Active:     true,
		CampaignID: f.camp.ID,
		Campaign:   f.camp,
	}
	f.coupons.byID[other.ID] = other

	resp, _ := f.post(t, "/api/checkout/"+f.inv.ID.String()+"/coupon", `{"code": "SAVE10"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Same code again: idempotent no-op.
	resp, env := f.post(t, "/api/checkout/"+f.inv.ID.String()+"/coupon", `{"code": "SAVE10"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, env.IsRequestSuccess)

	// A different code on the same checkout is the exclusivity violation.
	resp, env = f.post(t, "/api/checkout/"+f.inv.ID.String()+"/coupon", `{"code": "OTHER20"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "code_already_applied", env.ResponseError)
}

func TestApplyCouponMissingBody(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	resp, env := f.post(t, "/api/checkout/"+f.inv.ID.String()+"/coupon", `{}`)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.False(t, env.IsRequestSuccess)
}

func TestApplyCouponUnknownInvoice(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	resp, env := f.post(t, "/api/checkout/"+uuid.NewString()+"/coupon", `{"code": "SAVE10"}`)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", env.ResponseError)
}

func TestCompleteCheckout(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	resp, _ := f.post(t, "/api/checkout/"+f.inv.ID.String()+"/coupon", `{"code": "SAVE10"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, env := f.post(t, "/api/checkout/"+f.inv.ID.String()+"/complete", ``)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, env.IsRequestSuccess)
}

package promo

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/vendor-promo/internal/domain/campaign"
	"github.com/xenking/vendor-promo/internal/domain/invoice"
	"github.com/xenking/vendor-promo/internal/domain/offer"
	"github.com/xenking/vendor-promo/internal/processor"
)

type fakeCoupons struct {
	bySiteCode map[string]*campaign.CouponCode
}

func (f *fakeCoupons) FindByCode(_ context.Context, site, code string) (*campaign.CouponCode, error) {
	c, ok := f.bySiteCode[site+"/"+strings.ToUpper(code)]
	if !ok {
		return nil, campaign.ErrCouponNotFound
	}
	return c, nil
}

type fakeAssociations struct {
	existing map[[2]uuid.UUID]bool
}

func (f *fakeAssociations) Exists(_ context.Context, couponID, invoiceID uuid.UUID) (bool, error) {
	return f.existing[[2]uuid.UUID{couponID, invoiceID}], nil
}

type fakeProfiles struct {
	owned map[uuid.UUID][]string
}

func (f *fakeProfiles) HasOwnedProduct(_ context.Context, profileID uuid.UUID, products []string) (bool, error) {
	for _, owned := range f.owned[profileID] {
		for _, p := range products {
			if owned == p {
				return true, nil
			}
		}
	}
	return false, nil
}

type stubProcessor struct {
	processor.Processor

	validResp *processor.Response
	validErr  error
}

func (s *stubProcessor) Name() string { return "stub" }

func (s *stubProcessor) IsCodeValid(context.Context, *campaign.CouponCode, *invoice.Invoice) (*processor.Response, error) {
	if s.validResp == nil && s.validErr == nil {
		return processor.Accepted(""), nil
	}
	return s.validResp, s.validErr
}

type gateFixture struct {
	gate     *Gate
	coupons  *fakeCoupons
	assoc    *fakeAssociations
	profiles *fakeProfiles
	now      time.Time
}

func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()

	f := &gateFixture{
		coupons:  &fakeCoupons{bySiteCode: map[string]*campaign.CouponCode{}},
		assoc:    &fakeAssociations{existing: map[[2]uuid.UUID]bool{}},
		profiles: &fakeProfiles{owned: map[uuid.UUID][]string{}},
		now:      time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC),
	}
	f.gate = NewGate(f.coupons, f.assoc, f.profiles)
	f.gate.now = func() time.Time { return f.now }
	return f
}

func (f *gateFixture) addCoupon(site, code string, camp *campaign.Campaign) *campaign.CouponCode {
	c := &campaign.CouponCode{
		ID:         uuid.New(),
		Code:       code,
		Active:     true,
		CampaignID: camp.ID,
		Campaign:   camp,
	}
	f.coupons.bySiteCode[site+"/"+strings.ToUpper(code)] = c
	return c
}

func targetedCampaign(products ...string) *campaign.Campaign {
	return &campaign.Campaign{
		ID:        uuid.New(),
		Site:      "site-a",
		Kind:      campaign.KindPercent,
		Magnitude: dec("10"),
		AppliesTo: offer.Offer{ID: uuid.New(), Products: products},
	}
}

func cartWith(products ...string) *invoice.Invoice {
	inv := &invoice.Invoice{
		ID:        uuid.New(),
		Site:      "site-a",
		ProfileID: uuid.New(),
		Status:    invoice.StatusCart,
	}
	for _, p := range products {
		inv.AddOffer(offer.Offer{ID: uuid.New(), Products: []string{p}, Price: dec("10")})
	}
	inv.UpdateTotals()
	return inv
}

func TestGateUnknownCode(t *testing.T) {
	t.Parallel()

	f := newGateFixture(t)
	_, err := f.gate.Validate(context.Background(), &stubProcessor{}, "NOPE", cartWith("pro"))
	require.ErrorIs(t, err, ErrCodeNotFound)
}

func TestGateCaseInsensitiveLookup(t *testing.T) {
	t.Parallel()

	f := newGateFixture(t)
	want := f.addCoupon("site-a", "SAVE10", targetedCampaign("pro"))

	got, err := f.gate.Validate(context.Background(), &stubProcessor{}, "  save10 ", cartWith("pro"))
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
}

func TestGateTemporalWindow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		start   time.Duration
		end     time.Duration
		wantErr error
	}{
		{name: "inside window", start: -time.Hour, end: time.Hour},
		{name: "one second before start", start: time.Second, end: time.Hour, wantErr: ErrNotYetActive},
		{name: "one second after end", start: -time.Hour, end: -time.Second, wantErr: ErrExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newGateFixture(t)
			camp := targetedCampaign("pro")
			start := f.now.Add(tt.start)
			end := f.now.Add(tt.end)
			camp.StartDate = &start
			camp.EndDate = &end
			f.addCoupon("site-a", "SAVE10", camp)

			_, err := f.gate.Validate(context.Background(), &stubProcessor{}, "SAVE10", cartWith("pro"))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestGateCouponOwnExpiry(t *testing.T) {
	t.Parallel()

	f := newGateFixture(t)
	c := f.addCoupon("site-a", "SAVE10", targetedCampaign("pro"))
	expired := f.now.Add(-time.Second)
	c.EndDate = &expired

	_, err := f.gate.Validate(context.Background(), &stubProcessor{}, "SAVE10", cartWith("pro"))
	require.ErrorIs(t, err, ErrExpired)
}

func TestGateOneCodePerCheckout(t *testing.T) {
	t.Parallel()

	f := newGateFixture(t)
	f.addCoupon("site-a", "SAVE10", targetedCampaign("pro"))

	inv := cartWith("pro")
	inv.AddOffer(offer.Offer{ID: uuid.New(), Promotional: true})

	_, err := f.gate.Validate(context.Background(), &stubProcessor{}, "SAVE10", inv)
	require.ErrorIs(t, err, ErrOneCodePerCheckout)
}

func TestGateSameCouponReappliedIsNoop(t *testing.T) {
	t.Parallel()

	f := newGateFixture(t)
	c := f.addCoupon("site-a", "SAVE10", targetedCampaign("pro"))

	inv := cartWith("pro")
	inv.AddOffer(offer.Offer{ID: uuid.New(), Promotional: true})
	f.assoc.existing[[2]uuid.UUID{c.ID, inv.ID}] = true

	got, err := f.gate.Validate(context.Background(), &stubProcessor{}, "SAVE10", inv)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
}

func TestGateNoApplicableProduct(t *testing.T) {
	t.Parallel()

	f := newGateFixture(t)
	f.addCoupon("site-a", "SAVE10", targetedCampaign("pro"))

	_, err := f.gate.Validate(context.Background(), &stubProcessor{}, "SAVE10", cartWith("other"))
	require.ErrorIs(t, err, ErrNoApplicableProduct)
}

func TestGateWholeInvoiceSkipsProductChecks(t *testing.T) {
	t.Parallel()

	f := newGateFixture(t)
	camp := targetedCampaign() // no targeted products
	f.addCoupon("site-a", "SITEWIDE", camp)

	inv := cartWith("anything")
	f.profiles.owned[inv.ProfileID] = []string{"anything"}

	_, err := f.gate.Validate(context.Background(), &stubProcessor{}, "SITEWIDE", inv)
	require.NoError(t, err)
}

func TestGateAlreadyOwned(t *testing.T) {
	t.Parallel()

	f := newGateFixture(t)
	f.addCoupon("site-a", "SAVE10", targetedCampaign("pro"))

	inv := cartWith("pro")
	f.profiles.owned[inv.ProfileID] = []string{"pro"}

	_, err := f.gate.Validate(context.Background(), &stubProcessor{}, "SAVE10", inv)
	require.ErrorIs(t, err, ErrAlreadyOwned)
}

func TestGateProcessorRejection(t *testing.T) {
	t.Parallel()

	f := newGateFixture(t)
	f.addCoupon("site-a", "SAVE10", targetedCampaign("pro"))

	proc := &stubProcessor{validResp: processor.Rejected("limit reached", "coupon_limit")}
	_, err := f.gate.Validate(context.Background(), proc, "SAVE10", cartWith("pro"))

	var rejected *ProcessorRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "stub", rejected.Processor)
	assert.Equal(t, "limit reached", rejected.Message)
}

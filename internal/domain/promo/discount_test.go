package promo

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/vendor-promo/internal/domain/campaign"
	"github.com/xenking/vendor-promo/internal/domain/invoice"
	"github.com/xenking/vendor-promo/internal/domain/offer"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func invoiceWith(items ...invoice.OrderItem) *invoice.Invoice {
	inv := &invoice.Invoice{ID: uuid.New(), Site: "site-a", Status: invoice.StatusCart, Items: items}
	inv.UpdateTotals()
	return inv
}

func lineItem(products []string, qty int, total string) invoice.OrderItem {
	return invoice.OrderItem{
		ID:       uuid.New(),
		Offer:    offer.Offer{ID: uuid.New(), Products: products},
		Quantity: qty,
		Total:    dec(total),
	}
}

func TestComputePercentWholeInvoice(t *testing.T) {
	t.Parallel()

	c := &campaign.Campaign{
		Kind:      campaign.KindPercent,
		Magnitude: dec("10"),
	}
	inv := invoiceWith(
		lineItem([]string{"basic"}, 1, "60"),
		lineItem([]string{"extra"}, 1, "40"),
	)

	d, err := Compute(c, inv, uuid.Nil)
	require.NoError(t, err)

	assert.Equal(t, ScopeWholeInvoice, d.Scope)
	assert.True(t, d.Amount.Equal(dec("10")), "10%% of 100, got %s", d.Amount)
	assert.Empty(t, d.MatchedItems)
}

func TestComputeFixedWholeInvoice(t *testing.T) {
	t.Parallel()

	c := &campaign.Campaign{
		Kind:      campaign.KindFixed,
		Magnitude: dec("5"),
	}
	inv := invoiceWith(
		lineItem([]string{"basic"}, 3, "90"),
	)

	d, err := Compute(c, inv, uuid.Nil)
	require.NoError(t, err)

	// Fixed whole-invoice is applied once regardless of quantities.
	assert.True(t, d.Amount.Equal(dec("5")), "got %s", d.Amount)
}

func TestComputePercentPerLineItem(t *testing.T) {
	t.Parallel()

	c := &campaign.Campaign{
		Kind:      campaign.KindPercent,
		Magnitude: dec("25"),
		AppliesTo: offer.Offer{Products: []string{"pro"}},
	}
	inv := invoiceWith(
		lineItem([]string{"pro"}, 1, "80"),
		lineItem([]string{"other"}, 1, "50"),
	)

	d, err := Compute(c, inv, uuid.Nil)
	require.NoError(t, err)

	assert.Equal(t, ScopePerLineItem, d.Scope)
	assert.True(t, d.Amount.Equal(dec("20")), "25%% of the matching 80, got %s", d.Amount)
	assert.Len(t, d.MatchedItems, 1)
}

func TestComputeFixedPerLineItemIsPerUnit(t *testing.T) {
	t.Parallel()

	c := &campaign.Campaign{
		Kind:      campaign.KindFixed,
		Magnitude: dec("1.50"),
		AppliesTo: offer.Offer{Products: []string{"pro"}},
	}
	inv := invoiceWith(
		lineItem([]string{"pro"}, 2, "40"),
		lineItem([]string{"pro", "addon"}, 3, "60"),
		lineItem([]string{"other"}, 10, "5"),
	)

	d, err := Compute(c, inv, uuid.Nil)
	require.NoError(t, err)

	// 1.50 per matching unit: quantities 2 + 3.
	assert.True(t, d.Amount.Equal(dec("7.50")), "got %s", d.Amount)
	assert.Equal(t, 5, d.UnitCount)
	assert.Len(t, d.MatchedItems, 2)
}

func TestComputeExcludesCouponLine(t *testing.T) {
	t.Parallel()

	promoLine := invoice.OrderItem{
		ID:       uuid.New(),
		Offer:    offer.Offer{ID: uuid.New(), Promotional: true, Products: []string{"pro"}},
		Quantity: 1,
	}
	c := &campaign.Campaign{
		Kind:      campaign.KindPercent,
		Magnitude: dec("10"),
		AppliesTo: offer.Offer{Products: []string{"pro"}},
	}
	inv := invoiceWith(
		lineItem([]string{"pro"}, 1, "100"),
		promoLine,
	)

	d, err := Compute(c, inv, promoLine.ID)
	require.NoError(t, err)

	assert.True(t, d.Amount.Equal(dec("10")), "discount must not feed on its own line, got %s", d.Amount)
	assert.Len(t, d.MatchedItems, 1)
}

func TestComputeNoMatchingLineFailsClosed(t *testing.T) {
	t.Parallel()

	c := &campaign.Campaign{
		Kind:      campaign.KindFixed,
		Magnitude: dec("5"),
		AppliesTo: offer.Offer{Products: []string{"pro"}},
	}
	inv := invoiceWith(
		lineItem([]string{"other"}, 1, "50"),
	)

	_, err := Compute(c, inv, uuid.Nil)
	require.ErrorIs(t, err, ErrScopeMismatch)
}

func TestComputeNegativeMagnitudeNormalized(t *testing.T) {
	t.Parallel()

	c := &campaign.Campaign{
		Kind:      campaign.KindPercent,
		Magnitude: dec("-10"),
	}
	inv := invoiceWith(lineItem([]string{"basic"}, 1, "100"))

	d, err := Compute(c, inv, uuid.Nil)
	require.NoError(t, err)
	assert.True(t, d.Amount.Equal(dec("10")), "got %s", d.Amount)
}

func TestComputeUnknownKind(t *testing.T) {
	t.Parallel()

	c := &campaign.Campaign{Kind: "bogus", Magnitude: dec("10")}
	inv := invoiceWith(lineItem([]string{"basic"}, 1, "100"))

	_, err := Compute(c, inv, uuid.Nil)
	require.Error(t, err)
}

func TestComputeRoundsToCents(t *testing.T) {
	t.Parallel()

	c := &campaign.Campaign{
		Kind:      campaign.KindPercent,
		Magnitude: dec("33"),
	}
	inv := invoiceWith(lineItem([]string{"basic"}, 1, "9.99"))

	d, err := Compute(c, inv, uuid.Nil)
	require.NoError(t, err)
	assert.True(t, d.Amount.Equal(dec("3.30")), "33%% of 9.99 rounded, got %s", d.Amount)
}

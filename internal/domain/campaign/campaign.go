// Package campaign defines promotional campaigns and the coupon codes
// issued under them.
package campaign

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/vendor-promo/internal/domain/offer"
)

// DiscountKind enumerates the supported campaign discount strategies.
type DiscountKind string

const (
	// KindPercent applies a percentage of the matched amount.
	KindPercent DiscountKind = "percent"
	// KindFixed applies a flat currency amount, per matched unit when the
	// campaign targets specific products.
	KindFixed DiscountKind = "fixed"
)

var (
	// ErrNotFound is returned when a campaign does not exist.
	ErrNotFound = errors.New("campaign not found")
	// ErrCouponNotFound is returned when no coupon matches a submitted code.
	ErrCouponNotFound = errors.New("coupon code not found")
	// ErrDuplicateCode is returned when a coupon code already exists for
	// the site.
	ErrDuplicateCode = errors.New("coupon code already exists")
)

// Campaign is a named discount definition: a validity window, an optional
// redemption cap, and a discount kind and magnitude, scoped to the
// products of its applies-to offer. An empty product set means the
// discount applies to the whole invoice.
type Campaign struct {
	ID          uuid.UUID
	Site        string
	Name        string
	Description string
	StartDate   *time.Time
	EndDate     *time.Time
	Kind        DiscountKind
	// Magnitude is stored sign-normalized: always positive. Direction is
	// applied at computation time only.
	Magnitude decimal.Decimal
	// MaxRedemptions caps completed redemptions across all coupon codes.
	// Zero means unlimited.
	MaxRedemptions int
	AppliesTo      offer.Offer
	// Meta is backend-owned storage for external identifiers. The discount
	// engine never reads it.
	Meta    map[string]string
	Created time.Time
	Updated time.Time
}

// TargetsProducts reports whether the campaign discounts specific
// products rather than the whole invoice.
func (c *Campaign) TargetsProducts() bool {
	return len(c.AppliesTo.Products) > 0
}

// InWindow reports whether t falls inside the campaign's validity window.
// Absent bounds are unbounded.
func (c *Campaign) InWindow(t time.Time) bool {
	if c.StartDate != nil && t.Before(*c.StartDate) {
		return false
	}
	if c.EndDate != nil && t.After(*c.EndDate) {
		return false
	}
	return true
}

// CouponCode is a redeemable token issued under a campaign. Its cap and
// expiry are independent of the campaign's.
type CouponCode struct {
	ID     uuid.UUID
	Code   string
	Active bool
	// MaxRedemptions caps completed redemptions of this specific code.
	// Zero means unlimited.
	MaxRedemptions int
	EndDate        *time.Time
	Meta           map[string]string
	CampaignID     uuid.UUID
	Campaign       *Campaign
	Created        time.Time
	Updated        time.Time
}

// DisplayCode returns the code as shown to customers.
func (c *CouponCode) DisplayCode() string {
	return strings.ToUpper(c.Code)
}

// Expired reports whether the coupon's own end date has passed at t.
func (c *CouponCode) Expired(t time.Time) bool {
	return c.EndDate != nil && t.After(*c.EndDate)
}

// Repository persists campaigns.
type Repository interface {
	Create(ctx context.Context, c *Campaign) error
	Update(ctx context.Context, c *Campaign) error
	// Delete removes the campaign and cascades to its coupon codes.
	Delete(ctx context.Context, id uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*Campaign, error)
}

// CouponRepository persists coupon codes.
type CouponRepository interface {
	Create(ctx context.Context, c *CouponCode) error
	Update(ctx context.Context, c *CouponCode) error
	Delete(ctx context.Context, id uuid.UUID) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	GetByID(ctx context.Context, id uuid.UUID) (*CouponCode, error)
	// FindByCode looks up a coupon by its code for one site, matched
	// case-insensitively, with its campaign loaded.
	// Returns ErrCouponNotFound when no match exists.
	FindByCode(ctx context.Context, site, code string) (*CouponCode, error)
}

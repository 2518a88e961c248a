package campaign

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidMagnitude is returned when a form's discount magnitude is
	// zero or, for percent campaigns, outside (0,100) exclusive.
	ErrInvalidMagnitude = errors.New("invalid discount magnitude")
	// ErrInvalidKind is returned for an unknown discount kind.
	ErrInvalidKind = errors.New("invalid discount kind")
	// ErrMissingName is returned when a campaign form has no name.
	ErrMissingName = errors.New("campaign name is required")
	// ErrMissingCode is returned when a coupon form has no code.
	ErrMissingCode = errors.New("coupon code is required")
)

var hundred = decimal.NewFromInt(100)

// Form holds the input for creating or updating a campaign. Processors
// receive forms rather than entities so external synchronization happens
// before anything is persisted locally.
type Form struct {
	// ID is set for updates, zero for creates.
	ID             uuid.UUID
	Site           string
	Name           string
	Description    string
	StartDate      *time.Time
	EndDate        *time.Time
	Kind           DiscountKind
	Magnitude      decimal.Decimal
	MaxRedemptions int
	AppliesToOffer uuid.UUID
	Meta           map[string]string
}

// Validate normalizes and checks the form. Magnitude signs are
// normalized to positive; percent magnitudes must fall in (0,100)
// exclusive and fixed magnitudes must be positive.
func (f *Form) Validate() error {
	if f.Name == "" {
		return ErrMissingName
	}

	switch f.Kind {
	case KindPercent, KindFixed:
	default:
		return ErrInvalidKind
	}

	f.Magnitude = f.Magnitude.Abs()
	if f.Magnitude.IsZero() {
		return ErrInvalidMagnitude
	}
	if f.Kind == KindPercent && f.Magnitude.GreaterThanOrEqual(hundred) {
		return ErrInvalidMagnitude
	}

	return nil
}

// Apply copies the form's fields onto a campaign.
func (f *Form) Apply(c *Campaign) {
	c.Site = f.Site
	c.Name = f.Name
	c.Description = f.Description
	c.StartDate = f.StartDate
	c.EndDate = f.EndDate
	c.Kind = f.Kind
	c.Magnitude = f.Magnitude
	c.MaxRedemptions = f.MaxRedemptions
	if c.Meta == nil {
		c.Meta = map[string]string{}
	}
	for k, v := range f.Meta {
		c.Meta[k] = v
	}
}

// CouponForm holds the input for creating or updating a coupon code.
type CouponForm struct {
	// ID is set for updates, zero for creates.
	ID             uuid.UUID
	CampaignID     uuid.UUID
	Code           string
	Active         bool
	MaxRedemptions int
	EndDate        *time.Time
	Meta           map[string]string
}

// Validate checks the coupon form.
func (f *CouponForm) Validate() error {
	if f.Code == "" {
		return ErrMissingCode
	}
	if f.CampaignID == uuid.Nil {
		return errors.Wrap(ErrNotFound, "coupon form requires a campaign")
	}
	return nil
}

// Apply copies the form's fields onto a coupon code.
func (f *CouponForm) Apply(c *CouponCode) {
	c.CampaignID = f.CampaignID
	c.Code = f.Code
	c.Active = f.Active
	c.MaxRedemptions = f.MaxRedemptions
	c.EndDate = f.EndDate
	if c.Meta == nil {
		c.Meta = map[string]string{}
	}
	for k, v := range f.Meta {
		c.Meta[k] = v
	}
}

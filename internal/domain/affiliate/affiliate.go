// Package affiliate links a customer profile or a general contact to
// promotional campaigns. An affiliate either references a profile or
// carries free-form contact details; a profile can back at most one
// affiliate.
package affiliate

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when an affiliate does not exist.
	ErrNotFound = errors.New("affiliate not found")
	// ErrMissingContact is returned when neither a profile nor any
	// contact detail is given.
	ErrMissingContact = errors.New("a customer profile, contact name, email or company is required")
	// ErrProfileTaken is returned when the profile already backs another
	// affiliate.
	ErrProfileTaken = errors.New("the customer profile is already linked to an affiliate")
	// ErrDuplicateSlug is returned when the slug is already used on the
	// site.
	ErrDuplicateSlug = errors.New("affiliate slug already exists for this site")
)

// Affiliate is a referral partner scoped to one site. Slug identifies
// it in referral links, unique per site case-insensitively.
type Affiliate struct {
	ID          uuid.UUID
	Site        string
	Slug        string
	ContactName string
	Email       string
	Company     string
	// ProfileID links the affiliate to a customer profile; nil for
	// external contacts.
	ProfileID *uuid.UUID
	// Campaigns are the promotional campaigns this affiliate promotes.
	Campaigns []uuid.UUID
	Created   time.Time
	Updated   time.Time
}

// DisplayName returns the most specific identity available.
func (a *Affiliate) DisplayName() string {
	switch {
	case a.ContactName != "":
		return a.ContactName
	case a.Email != "":
		return a.Email
	case a.Company != "":
		return a.Company
	}
	return a.ID.String()
}

// Form carries affiliate create/update input.
type Form struct {
	ID          uuid.UUID
	Site        string
	Slug        string
	ContactName string
	Email       string
	Company     string
	ProfileID   *uuid.UUID
	Campaigns   []uuid.UUID
}

// Validate checks the contact requirement and derives a slug from the
// contact details when none is given.
func (f *Form) Validate() error {
	f.Slug = strings.TrimSpace(f.Slug)
	f.ContactName = strings.TrimSpace(f.ContactName)
	f.Email = strings.TrimSpace(f.Email)
	f.Company = strings.TrimSpace(f.Company)

	if f.ProfileID == nil && f.ContactName == "" && f.Email == "" && f.Company == "" {
		return ErrMissingContact
	}

	if f.Slug == "" {
		f.Slug = Slugify(firstNonEmpty(f.ContactName, f.Email, f.Company))
	} else {
		f.Slug = Slugify(f.Slug)
	}
	return nil
}

// Apply copies the form onto the affiliate. A profile-only form (no
// contact details) ends up with an empty slug; the id keeps it unique.
func (f *Form) Apply(a *Affiliate) {
	a.Site = f.Site
	a.Slug = f.Slug
	a.ContactName = f.ContactName
	a.Email = f.Email
	a.Company = f.Company
	a.ProfileID = f.ProfileID
	a.Campaigns = f.Campaigns
}

// Slugify lowercases s and collapses every non-alphanumeric run into a
// single hyphen.
func Slugify(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	lastHyphen := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Repository persists affiliates and their campaign links. Create and
// Update return ErrProfileTaken when the profile already backs another
// affiliate and ErrDuplicateSlug on a per-site slug collision.
type Repository interface {
	Create(ctx context.Context, a *Affiliate) error
	Update(ctx context.Context, a *Affiliate) error
	Delete(ctx context.Context, id uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*Affiliate, error)
	// GetBySlug looks up an affiliate by slug for one site, matched
	// case-insensitively.
	GetBySlug(ctx context.Context, site, slug string) (*Affiliate, error)
}

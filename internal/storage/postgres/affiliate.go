package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/vendor-promo/internal/domain/affiliate"
)

const (
	createAffiliateSQL = `INSERT INTO affiliates
		(id, site, slug, contact_name, email, company, profile_id, created, updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())`

	updateAffiliateSQL = `UPDATE affiliates SET
		slug = $2, contact_name = $3, email = $4, company = $5, profile_id = $6,
		updated = now()
		WHERE id = $1`

	deleteAffiliateSQL = `DELETE FROM affiliates WHERE id = $1`

	affiliateColumns = `a.id, a.site, a.slug, a.contact_name, a.email, a.company,
		a.profile_id, a.created, a.updated,
		COALESCE(array_agg(ac.campaign_id) FILTER (WHERE ac.campaign_id IS NOT NULL), '{}')`

	affiliateJoins = ` FROM affiliates a
		LEFT JOIN affiliate_campaigns ac ON ac.affiliate_id = a.id`

	affiliateGroup = ` GROUP BY a.id`

	getAffiliateSQL = `SELECT ` + affiliateColumns + affiliateJoins +
		` WHERE a.id = $1` + affiliateGroup

	getAffiliateBySlugSQL = `SELECT ` + affiliateColumns + affiliateJoins +
		` WHERE a.site = $1 AND LOWER(a.slug) = LOWER($2)` + affiliateGroup

	deleteAffiliateCampaignsSQL = `DELETE FROM affiliate_campaigns WHERE affiliate_id = $1`

	insertAffiliateCampaignSQL = `INSERT INTO affiliate_campaigns (affiliate_id, campaign_id)
		VALUES ($1, $2)
		ON CONFLICT (affiliate_id, campaign_id) DO NOTHING`
)

var _ affiliate.Repository = (*AffiliateRepository)(nil)

// AffiliateRepository implements affiliate.Repository backed by
// PostgreSQL. The one-affiliate-per-profile and per-site slug
// invariants are enforced by partial unique indexes.
type AffiliateRepository struct {
	pool *pgxpool.Pool
}

// NewAffiliateRepository returns an AffiliateRepository using the given
// pool.
func NewAffiliateRepository(pool *pgxpool.Pool) *AffiliateRepository {
	return &AffiliateRepository{pool: pool}
}

// Create persists a new affiliate and its campaign links.
func (r *AffiliateRepository) Create(ctx context.Context, a *affiliate.Affiliate) error {
	_, err := queryFrom(ctx, r.pool).Exec(ctx, createAffiliateSQL,
		a.ID, a.Site, a.Slug, a.ContactName, a.Email, a.Company, a.ProfileID,
	)
	if err != nil {
		if mapped := mapAffiliateConstraint(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("creating affiliate %q: %w", a.ID, err)
	}
	return r.syncCampaigns(ctx, a)
}

// Update persists changes to an existing affiliate and replaces its
// campaign links.
func (r *AffiliateRepository) Update(ctx context.Context, a *affiliate.Affiliate) error {
	tag, err := queryFrom(ctx, r.pool).Exec(ctx, updateAffiliateSQL,
		a.ID, a.Slug, a.ContactName, a.Email, a.Company, a.ProfileID,
	)
	if err != nil {
		if mapped := mapAffiliateConstraint(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("updating affiliate %q: %w", a.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return affiliate.ErrNotFound
	}

	if _, err := queryFrom(ctx, r.pool).Exec(ctx, deleteAffiliateCampaignsSQL, a.ID); err != nil {
		return fmt.Errorf("clearing affiliate %q campaigns: %w", a.ID, err)
	}
	return r.syncCampaigns(ctx, a)
}

// Delete removes the affiliate; campaign links cascade.
func (r *AffiliateRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := queryFrom(ctx, r.pool).Exec(ctx, deleteAffiliateSQL, id)
	if err != nil {
		return fmt.Errorf("deleting affiliate %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return affiliate.ErrNotFound
	}
	return nil
}

// GetByID loads an affiliate with its linked campaign ids.
func (r *AffiliateRepository) GetByID(ctx context.Context, id uuid.UUID) (*affiliate.Affiliate, error) {
	rows, err := queryFrom(ctx, r.pool).Query(ctx, getAffiliateSQL, id)
	if err != nil {
		return nil, fmt.Errorf("loading affiliate %q: %w", id, err)
	}

	a, err := pgx.CollectExactlyOneRow(rows, scanAffiliate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, affiliate.ErrNotFound
		}
		return nil, fmt.Errorf("loading affiliate %q: %w", id, err)
	}
	return &a, nil
}

// GetBySlug looks up an affiliate by slug for one site, matched
// case-insensitively.
func (r *AffiliateRepository) GetBySlug(ctx context.Context, site, slug string) (*affiliate.Affiliate, error) {
	rows, err := queryFrom(ctx, r.pool).Query(ctx, getAffiliateBySlugSQL, site, slug)
	if err != nil {
		return nil, fmt.Errorf("finding affiliate %q: %w", slug, err)
	}

	a, err := pgx.CollectExactlyOneRow(rows, scanAffiliate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, affiliate.ErrNotFound
		}
		return nil, fmt.Errorf("finding affiliate %q: %w", slug, err)
	}
	return &a, nil
}

func (r *AffiliateRepository) syncCampaigns(ctx context.Context, a *affiliate.Affiliate) error {
	for _, campaignID := range a.Campaigns {
		if _, err := queryFrom(ctx, r.pool).Exec(ctx, insertAffiliateCampaignSQL, a.ID, campaignID); err != nil {
			return fmt.Errorf("linking affiliate %q to campaign %q: %w", a.ID, campaignID, err)
		}
	}
	return nil
}

func scanAffiliate(row pgx.CollectableRow) (affiliate.Affiliate, error) {
	var a affiliate.Affiliate
	err := row.Scan(
		&a.ID, &a.Site, &a.Slug, &a.ContactName, &a.Email, &a.Company,
		&a.ProfileID, &a.Created, &a.Updated,
		&a.Campaigns,
	)
	if err != nil {
		return affiliate.Affiliate{}, err
	}
	return a, nil
}

func mapAffiliateConstraint(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return nil
	}
	switch pgErr.ConstraintName {
	case "affiliates_profile_idx":
		return affiliate.ErrProfileTaken
	case "affiliates_site_slug_idx":
		return affiliate.ErrDuplicateSlug
	}
	return nil
}

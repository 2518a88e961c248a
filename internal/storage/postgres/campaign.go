package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/vendor-promo/internal/domain/campaign"
	"github.com/xenking/vendor-promo/internal/domain/offer"
)

const (
	createCampaignSQL = `INSERT INTO campaigns
		(id, site, name, description, start_date, end_date, kind, magnitude,
		 max_redemptions, offer_id, meta, created, updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())`

	updateCampaignSQL = `UPDATE campaigns SET
		site = $2, name = $3, description = $4, start_date = $5, end_date = $6,
		kind = $7, magnitude = $8, max_redemptions = $9, offer_id = $10,
		meta = $11, updated = now()
		WHERE id = $1`

	deleteCampaignSQL = `DELETE FROM campaigns WHERE id = $1`

	getCampaignSQL = `SELECT
		c.id, c.site, c.name, c.description, c.start_date, c.end_date,
		c.kind, c.magnitude, c.max_redemptions, c.meta, c.created, c.updated,
		o.id, o.site, o.name, o.promotional, o.price, o.products
		FROM campaigns c
		JOIN offers o ON o.id = c.offer_id
		WHERE c.id = $1`
)

var _ campaign.Repository = (*CampaignRepository)(nil)

// CampaignRepository implements campaign.Repository backed by PostgreSQL.
type CampaignRepository struct {
	pool *pgxpool.Pool
}

// NewCampaignRepository returns a CampaignRepository using the given pool.
func NewCampaignRepository(pool *pgxpool.Pool) *CampaignRepository {
	return &CampaignRepository{pool: pool}
}

// Create persists a new campaign.
func (r *CampaignRepository) Create(ctx context.Context, c *campaign.Campaign) error {
	meta, err := json.Marshal(c.Meta)
	if err != nil {
		return fmt.Errorf("marshaling campaign meta: %w", err)
	}

	_, err = queryFrom(ctx, r.pool).Exec(ctx, createCampaignSQL,
		c.ID, c.Site, c.Name, c.Description, c.StartDate, c.EndDate,
		string(c.Kind), c.Magnitude, c.MaxRedemptions, c.AppliesTo.ID, meta,
	)
	if err != nil {
		return fmt.Errorf("creating campaign %q: %w", c.Name, err)
	}
	return nil
}

// Update persists changes to an existing campaign.
func (r *CampaignRepository) Update(ctx context.Context, c *campaign.Campaign) error {
	meta, err := json.Marshal(c.Meta)
	if err != nil {
		return fmt.Errorf("marshaling campaign meta: %w", err)
	}

	tag, err := queryFrom(ctx, r.pool).Exec(ctx, updateCampaignSQL,
		c.ID, c.Site, c.Name, c.Description, c.StartDate, c.EndDate,
		string(c.Kind), c.Magnitude, c.MaxRedemptions, c.AppliesTo.ID, meta,
	)
	if err != nil {
		return fmt.Errorf("updating campaign %q: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

// Delete removes the campaign; coupon codes cascade via the schema.
func (r *CampaignRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := queryFrom(ctx, r.pool).Exec(ctx, deleteCampaignSQL, id)
	if err != nil {
		return fmt.Errorf("deleting campaign %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

// GetByID loads a campaign with its applies-to offer.
func (r *CampaignRepository) GetByID(ctx context.Context, id uuid.UUID) (*campaign.Campaign, error) {
	rows, err := queryFrom(ctx, r.pool).Query(ctx, getCampaignSQL, id)
	if err != nil {
		return nil, fmt.Errorf("loading campaign %q: %w", id, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCampaign)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, campaign.ErrNotFound
		}
		return nil, fmt.Errorf("loading campaign %q: %w", id, err)
	}
	return &c, nil
}

func scanCampaign(row pgx.CollectableRow) (campaign.Campaign, error) {
	var (
		c         campaign.Campaign
		kind      string
		magnitude decimal.Decimal
		meta      []byte
		maxRed    int32
		o         offer.Offer
	)
	err := row.Scan(
		&c.ID, &c.Site, &c.Name, &c.Description, &c.StartDate, &c.EndDate,
		&kind, &magnitude, &maxRed, &meta, &c.Created, &c.Updated,
		&o.ID, &o.Site, &o.Name, &o.Promotional, &o.Price, &o.Products,
	)
	if err != nil {
		return campaign.Campaign{}, err
	}

	c.Kind = campaign.DiscountKind(kind)
	c.Magnitude = magnitude
	c.MaxRedemptions = int(maxRed)
	c.AppliesTo = o
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &c.Meta); err != nil {
			return campaign.Campaign{}, fmt.Errorf("unmarshaling campaign meta: %w", err)
		}
	}
	return c, nil
}

package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/vendor-promo/internal/domain/campaign"
)

const (
	createCouponSQL = `INSERT INTO coupon_codes
		(id, campaign_id, site, code, active, max_redemptions, end_date, meta, created, updated)
		VALUES ($1, $2,
			(SELECT site FROM campaigns WHERE id = $2),
			$3, $4, $5, $6, $7, now(), now())`

	updateCouponSQL = `UPDATE coupon_codes SET
		code = $2, active = $3, max_redemptions = $4, end_date = $5, meta = $6,
		updated = now()
		WHERE id = $1`

	deleteCouponSQL = `DELETE FROM coupon_codes WHERE id = $1`

	setCouponActiveSQL = `UPDATE coupon_codes SET active = $2, updated = now() WHERE id = $1`

	couponColumns = `cc.id, cc.code, cc.active, cc.max_redemptions, cc.end_date,
		cc.meta, cc.campaign_id, cc.created, cc.updated,
		c.id, c.site, c.name, c.description, c.start_date, c.end_date,
		c.kind, c.magnitude, c.max_redemptions, c.meta, c.created, c.updated,
		o.id, o.site, o.name, o.promotional, o.price, o.products`

	couponJoins = ` FROM coupon_codes cc
		JOIN campaigns c ON c.id = cc.campaign_id
		JOIN offers o ON o.id = c.offer_id`

	getCouponSQL = `SELECT ` + couponColumns + couponJoins + ` WHERE cc.id = $1`

	// LOWER on both sides so the (site, LOWER(code)) unique index serves
	// the lookup.
	findCouponByCodeSQL = `SELECT ` + couponColumns + couponJoins + `
		WHERE cc.site = $1 AND LOWER(cc.code) = LOWER($2)`
)

var _ campaign.CouponRepository = (*CouponRepository)(nil)

// CouponRepository implements campaign.CouponRepository backed by
// PostgreSQL. The site is denormalized onto the coupon row so the
// per-site uniqueness of codes is enforced by the schema.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository using the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// Create persists a new coupon code under its campaign. Returns
// campaign.ErrDuplicateCode when the code already exists for the site.
func (r *CouponRepository) Create(ctx context.Context, c *campaign.CouponCode) error {
	meta, err := json.Marshal(c.Meta)
	if err != nil {
		return fmt.Errorf("marshaling coupon meta: %w", err)
	}

	_, err = queryFrom(ctx, r.pool).Exec(ctx, createCouponSQL,
		c.ID, c.CampaignID, c.Code, c.Active, c.MaxRedemptions, c.EndDate, meta,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return campaign.ErrDuplicateCode
		}
		return fmt.Errorf("creating coupon code %q: %w", c.Code, err)
	}
	return nil
}

// Update persists changes to an existing coupon code.
func (r *CouponRepository) Update(ctx context.Context, c *campaign.CouponCode) error {
	meta, err := json.Marshal(c.Meta)
	if err != nil {
		return fmt.Errorf("marshaling coupon meta: %w", err)
	}

	tag, err := queryFrom(ctx, r.pool).Exec(ctx, updateCouponSQL,
		c.ID, c.Code, c.Active, c.MaxRedemptions, c.EndDate, meta,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return campaign.ErrDuplicateCode
		}
		return fmt.Errorf("updating coupon code %q: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return campaign.ErrCouponNotFound
	}
	return nil
}

// Delete removes the coupon code.
func (r *CouponRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := queryFrom(ctx, r.pool).Exec(ctx, deleteCouponSQL, id)
	if err != nil {
		return fmt.Errorf("deleting coupon code %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return campaign.ErrCouponNotFound
	}
	return nil
}

// SetActive toggles the coupon's activation flag.
func (r *CouponRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := queryFrom(ctx, r.pool).Exec(ctx, setCouponActiveSQL, id, active)
	if err != nil {
		return fmt.Errorf("toggling coupon code %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return campaign.ErrCouponNotFound
	}
	return nil
}

// GetByID loads a coupon with its campaign and the campaign's offer.
func (r *CouponRepository) GetByID(ctx context.Context, id uuid.UUID) (*campaign.CouponCode, error) {
	rows, err := queryFrom(ctx, r.pool).Query(ctx, getCouponSQL, id)
	if err != nil {
		return nil, fmt.Errorf("loading coupon code %q: %w", id, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, campaign.ErrCouponNotFound
		}
		return nil, fmt.Errorf("loading coupon code %q: %w", id, err)
	}
	return &c, nil
}

// FindByCode looks up a coupon by its code for one site, matched
// case-insensitively. Returns campaign.ErrCouponNotFound when no match
// exists.
func (r *CouponRepository) FindByCode(ctx context.Context, site, code string) (*campaign.CouponCode, error) {
	rows, err := queryFrom(ctx, r.pool).Query(ctx, findCouponByCodeSQL, site, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, campaign.ErrCouponNotFound
		}
		return nil, fmt.Errorf("finding coupon code %q: %w", code, err)
	}
	return &c, nil
}

func scanCoupon(row pgx.CollectableRow) (campaign.CouponCode, error) {
	var (
		cc         campaign.CouponCode
		ccMeta     []byte
		ccMaxRed   int32
		camp       campaign.Campaign
		campKind   string
		campMeta   []byte
		campMaxRed int32
	)
	err := row.Scan(
		&cc.ID, &cc.Code, &cc.Active, &ccMaxRed, &cc.EndDate,
		&ccMeta, &cc.CampaignID, &cc.Created, &cc.Updated,
		&camp.ID, &camp.Site, &camp.Name, &camp.Description, &camp.StartDate, &camp.EndDate,
		&campKind, &camp.Magnitude, &campMaxRed, &campMeta, &camp.Created, &camp.Updated,
		&camp.AppliesTo.ID, &camp.AppliesTo.Site, &camp.AppliesTo.Name,
		&camp.AppliesTo.Promotional, &camp.AppliesTo.Price, &camp.AppliesTo.Products,
	)
	if err != nil {
		return campaign.CouponCode{}, err
	}

	cc.MaxRedemptions = int(ccMaxRed)
	camp.Kind = campaign.DiscountKind(campKind)
	camp.MaxRedemptions = int(campMaxRed)
	if len(ccMeta) > 0 {
		if err := json.Unmarshal(ccMeta, &cc.Meta); err != nil {
			return campaign.CouponCode{}, fmt.Errorf("unmarshaling coupon meta: %w", err)
		}
	}
	if len(campMeta) > 0 {
		if err := json.Unmarshal(campMeta, &camp.Meta); err != nil {
			return campaign.CouponCode{}, fmt.Errorf("unmarshaling campaign meta: %w", err)
		}
	}
	cc.Campaign = &camp
	return cc, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

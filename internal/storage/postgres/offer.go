package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/vendor-promo/internal/domain/offer"
)

const getOfferSQL = `SELECT id, site, name, promotional, price, products
	FROM offers WHERE id = $1`

var _ offer.Repository = (*OfferRepository)(nil)

// OfferRepository implements offer.Repository backed by PostgreSQL.
type OfferRepository struct {
	pool *pgxpool.Pool
}

// NewOfferRepository returns an OfferRepository using the given pool.
func NewOfferRepository(pool *pgxpool.Pool) *OfferRepository {
	return &OfferRepository{pool: pool}
}

// GetByID loads an offer.
func (r *OfferRepository) GetByID(ctx context.Context, id uuid.UUID) (*offer.Offer, error) {
	rows, err := queryFrom(ctx, r.pool).Query(ctx, getOfferSQL, id)
	if err != nil {
		return nil, fmt.Errorf("loading offer %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (offer.Offer, error) {
		var o offer.Offer
		err := row.Scan(&o.ID, &o.Site, &o.Name, &o.Promotional, &o.Price, &o.Products)
		return o, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, offer.ErrNotFound
		}
		return nil, fmt.Errorf("loading offer %q: %w", id, err)
	}
	return &o, nil
}

package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const getSiteConfigSQL = `SELECT value FROM site_config WHERE site = $1 AND key = $2`

// SiteConfigRepository reads per-site configuration values, such as the
// processor override the resolver consults.
type SiteConfigRepository struct {
	pool *pgxpool.Pool
}

// NewSiteConfigRepository returns a SiteConfigRepository using the given
// pool.
func NewSiteConfigRepository(pool *pgxpool.Pool) *SiteConfigRepository {
	return &SiteConfigRepository{pool: pool}
}

// GetValue returns the configured value for the site and key, or empty
// when none is set.
func (r *SiteConfigRepository) GetValue(ctx context.Context, site, key string) (string, error) {
	var value string
	err := queryFrom(ctx, r.pool).QueryRow(ctx, getSiteConfigSQL, site, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("loading site config %s/%s: %w", site, key, err)
	}
	return value, nil
}

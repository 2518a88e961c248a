// Command seed-db loads development fixtures: a catalog of offers from
// a JSON file, a demo campaign with a coupon code, an open invoice, and
// the per-site processor override.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/vendor-promo/internal/domain/invoice"
	"github.com/xenking/vendor-promo/internal/domain/offer"
	"github.com/xenking/vendor-promo/internal/storage/postgres"
)

type offerJSON struct {
	ID       uuid.UUID       `json:"id"`
	Site     string          `json:"site"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Products []string        `json:"products"`
}

const (
	upsertOfferSQL = `INSERT INTO offers (id, site, name, promotional, price, products)
		VALUES ($1, $2, $3, FALSE, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			site = EXCLUDED.site, name = EXCLUDED.name,
			price = EXCLUDED.price, products = EXCLUDED.products,
			updated = now()`

	upsertCampaignSQL = `INSERT INTO campaigns
		(id, site, name, description, kind, magnitude, max_redemptions, offer_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`

	upsertCouponSQL = `INSERT INTO coupon_codes (id, campaign_id, site, code, active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (site, LOWER(code)) DO NOTHING`

	upsertInvoiceSQL = `INSERT INTO invoices (id, site, profile_id, status, items, subtotal, total)
		VALUES ($1, $2, $3, 'cart', $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`

	upsertSiteConfigSQL = `INSERT INTO site_config (site, key, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (site, key) DO UPDATE SET value = EXCLUDED.value, updated = now()`
)

func main() {
	var (
		databaseURL string
		offersFile  string
		site        string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&offersFile, "offers-file", "db/seed/offers.json", "path to offers JSON file")
	flag.StringVar(&site, "site", "demo", "site to seed fixtures for")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, offersFile, site); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, offersFile, site string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	offers, err := seedOffers(ctx, pool, offersFile)
	if err != nil {
		return errors.Wrap(err, "seed offers")
	}

	if err := seedDemoCampaign(ctx, pool, site, offers); err != nil {
		return errors.Wrap(err, "seed demo campaign")
	}

	if err := seedSiteConfig(ctx, pool, site); err != nil {
		return errors.Wrap(err, "seed site config")
	}

	return nil
}

func seedOffers(ctx context.Context, pool *pgxpool.Pool, offersFile string) ([]offerJSON, error) {
	slog.Info("reading offers file", slog.String("path", offersFile))

	data, err := os.ReadFile(offersFile)
	if err != nil {
		return nil, errors.Wrap(err, "read offers file")
	}

	var offers []offerJSON
	if err := json.Unmarshal(data, &offers); err != nil {
		return nil, errors.Wrap(err, "parse offers JSON")
	}

	slog.Info("upserting offers", slog.Int("count", len(offers)))

	for _, o := range offers {
		if _, err := pool.Exec(ctx, upsertOfferSQL, o.ID, o.Site, o.Name, o.Price, o.Products); err != nil {
			return nil, errors.Wrapf(err, "upsert offer %s", o.ID)
		}
		slog.Info("upserted offer", slog.String("id", o.ID.String()), slog.String("name", o.Name))
	}

	return offers, nil
}

func seedDemoCampaign(ctx context.Context, pool *pgxpool.Pool, site string, offers []offerJSON) error {
	if len(offers) == 0 {
		slog.Info("no offers, skipping demo campaign")
		return nil
	}

	slog.Info("seeding demo campaign")

	campaignID := uuid.NewSHA1(uuid.NameSpaceOID, []byte(site+"/demo-campaign"))
	if _, err := pool.Exec(ctx, upsertCampaignSQL,
		campaignID, site, "Demo 10% off", "Development fixture campaign",
		"percent", decimal.NewFromInt(10), 0, offers[0].ID,
	); err != nil {
		return errors.Wrap(err, "upsert demo campaign")
	}

	couponID := uuid.NewSHA1(uuid.NameSpaceOID, []byte(site+"/demo-coupon"))
	if _, err := pool.Exec(ctx, upsertCouponSQL, couponID, campaignID, site, "WELCOME10"); err != nil {
		return errors.Wrap(err, "upsert demo coupon")
	}

	// An open invoice holding the first offer, so the demo coupon has
	// something to discount.
	inv := &invoice.Invoice{
		ID:        uuid.NewSHA1(uuid.NameSpaceOID, []byte(site+"/demo-invoice")),
		Site:      site,
		ProfileID: uuid.NewSHA1(uuid.NameSpaceOID, []byte(site+"/demo-profile")),
		Status:    invoice.StatusCart,
	}
	inv.AddOffer(offer.Offer{
		ID:       offers[0].ID,
		Site:     offers[0].Site,
		Name:     offers[0].Name,
		Price:    offers[0].Price,
		Products: offers[0].Products,
	})
	inv.UpdateTotals()

	items, err := json.Marshal(inv.Items)
	if err != nil {
		return errors.Wrap(err, "marshal invoice items")
	}
	if _, err := pool.Exec(ctx, upsertInvoiceSQL,
		inv.ID, inv.Site, inv.ProfileID, items, inv.Subtotal, inv.Total,
	); err != nil {
		return errors.Wrap(err, "upsert demo invoice")
	}

	slog.Info("seeded demo campaign",
		slog.String("campaign_id", campaignID.String()),
		slog.String("coupon", "WELCOME10"),
		slog.String("invoice_id", inv.ID.String()),
	)
	return nil
}

func seedSiteConfig(ctx context.Context, pool *pgxpool.Pool, site string) error {
	if _, err := pool.Exec(ctx, upsertSiteConfigSQL, site, "promo_processor", "base"); err != nil {
		return errors.Wrap(err, "upsert site config")
	}
	slog.Info("seeded site config", slog.String("site", site), slog.String("processor", "base"))
	return nil
}

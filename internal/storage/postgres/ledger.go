package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	associateSQL = `INSERT INTO promo_redemptions (coupon_id, invoice_id, created)
		VALUES ($1, $2, now())
		ON CONFLICT (coupon_id, invoice_id) DO NOTHING`

	associationExistsSQL = `SELECT EXISTS (
		SELECT 1 FROM promo_redemptions WHERE coupon_id = $1 AND invoice_id = $2
	)`

	countCompletedForCouponSQL = `SELECT COUNT(*) FROM promo_redemptions
		WHERE coupon_id = $1 AND completed`

	countCompletedForCampaignSQL = `SELECT COUNT(*)
		FROM promo_redemptions pr
		JOIN coupon_codes cc ON cc.id = pr.coupon_id
		WHERE cc.campaign_id = $1 AND pr.completed`

	// Concurrent completions of different invoices each see their own
	// snapshot of the completed counts, so the campaign rows are locked
	// first: the second transaction blocks until the first commits and
	// then counts its rows.
	lockCampaignsForInvoiceSQL = `SELECT c.id FROM campaigns c
		WHERE c.id IN (
			SELECT cc.campaign_id FROM promo_redemptions pr
			JOIN coupon_codes cc ON cc.id = pr.coupon_id
			WHERE pr.invoice_id = $1 AND NOT pr.completed)
		ORDER BY c.id
		FOR UPDATE`

	// Completion is bounded by both caps in the same statement, so the
	// completed count can never exceed a cap even under concurrent
	// checkouts.
	markCompletedSQL = `UPDATE promo_redemptions pr
		SET completed = TRUE, completed_at = now()
		FROM coupon_codes cc
		JOIN campaigns c ON c.id = cc.campaign_id
		WHERE pr.invoice_id = $1
			AND pr.coupon_id = cc.id
			AND NOT pr.completed
			AND (cc.max_redemptions = 0 OR cc.max_redemptions > (
				SELECT COUNT(*) FROM promo_redemptions p
				WHERE p.coupon_id = cc.id AND p.completed))
			AND (c.max_redemptions = 0 OR c.max_redemptions > (
				SELECT COUNT(*) FROM promo_redemptions p
				JOIN coupon_codes c2 ON c2.id = p.coupon_id
				WHERE c2.campaign_id = c.id AND p.completed))
		RETURNING pr.coupon_id`
)

// RedemptionLedger records coupon-to-invoice associations and their
// completion, backed by PostgreSQL. It implements both the discount
// engine's ledger and the counters the local processor uses for cap
// checks.
type RedemptionLedger struct {
	pool *pgxpool.Pool
}

// NewRedemptionLedger returns a RedemptionLedger using the given pool.
func NewRedemptionLedger(pool *pgxpool.Pool) *RedemptionLedger {
	return &RedemptionLedger{pool: pool}
}

// Associate links a coupon to an invoice. It reports false when the
// association already exists.
func (r *RedemptionLedger) Associate(ctx context.Context, couponID, invoiceID uuid.UUID) (bool, error) {
	tag, err := queryFrom(ctx, r.pool).Exec(ctx, associateSQL, couponID, invoiceID)
	if err != nil {
		return false, fmt.Errorf("associating coupon %q with invoice %q: %w", couponID, invoiceID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Exists reports whether the coupon is already associated with the
// invoice.
func (r *RedemptionLedger) Exists(ctx context.Context, couponID, invoiceID uuid.UUID) (bool, error) {
	var exists bool
	err := queryFrom(ctx, r.pool).QueryRow(ctx, associationExistsSQL, couponID, invoiceID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking association: %w", err)
	}
	return exists, nil
}

// CountCompletedForCoupon counts completed redemptions of one coupon.
func (r *RedemptionLedger) CountCompletedForCoupon(ctx context.Context, couponID uuid.UUID) (int, error) {
	var n int
	err := queryFrom(ctx, r.pool).QueryRow(ctx, countCompletedForCouponSQL, couponID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting coupon redemptions: %w", err)
	}
	return n, nil
}

// CountCompletedForCampaign counts completed redemptions across all of a
// campaign's coupons.
func (r *RedemptionLedger) CountCompletedForCampaign(ctx context.Context, campaignID uuid.UUID) (int, error) {
	var n int
	err := queryFrom(ctx, r.pool).QueryRow(ctx, countCompletedForCampaignSQL, campaignID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting campaign redemptions: %w", err)
	}
	return n, nil
}

// MarkCompleted flags the invoice's associations as completed, bounded
// by the coupon and campaign redemption caps, and returns the coupon ids
// that were marked. Must run inside a transaction: the campaign rows
// are locked so concurrent completions serialize on the cap check.
func (r *RedemptionLedger) MarkCompleted(ctx context.Context, invoiceID uuid.UUID) ([]uuid.UUID, error) {
	q := queryFrom(ctx, r.pool)

	lockRows, err := q.Query(ctx, lockCampaignsForInvoiceSQL, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("locking campaigns for invoice %q: %w", invoiceID, err)
	}
	if _, err := pgx.CollectRows(lockRows, func(row pgx.CollectableRow) (uuid.UUID, error) {
		var id uuid.UUID
		err := row.Scan(&id)
		return id, err
	}); err != nil {
		return nil, fmt.Errorf("locking campaigns for invoice %q: %w", invoiceID, err)
	}

	rows, err := q.Query(ctx, markCompletedSQL, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("completing redemptions for invoice %q: %w", invoiceID, err)
	}

	ids, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (uuid.UUID, error) {
		var id uuid.UUID
		err := row.Scan(&id)
		return id, err
	})
	if err != nil {
		return nil, fmt.Errorf("completing redemptions for invoice %q: %w", invoiceID, err)
	}
	return ids, nil
}

package promo

import (
	"context"
	"time"

	"github.com/avast/retry-go"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/vendor-promo/internal/domain/campaign"
	"github.com/xenking/vendor-promo/internal/domain/invoice"
	"github.com/xenking/vendor-promo/internal/processor"
)

const (
	confirmAttempts = 5
	confirmTimeout  = 2 * time.Minute
)

// Ledger records coupon-to-invoice associations. Associations are the
// unit of idempotence for coupon application; completed associations are
// the unit of cap accounting.
type Ledger interface {
	// Associate links a coupon to an invoice. It reports false when the
	// association already exists, making re-application a no-op.
	Associate(ctx context.Context, couponID, invoiceID uuid.UUID) (bool, error)
	// MarkCompleted flags the invoice's associations as completed, bounded
	// by each campaign's redemption cap, and returns the coupon ids that
	// were marked.
	MarkCompleted(ctx context.Context, invoiceID uuid.UUID) ([]uuid.UUID, error)
}

// ProcessorResolver selects the active processor for a site.
type ProcessorResolver interface {
	For(ctx context.Context, site string) (processor.Processor, error)
}

// TxRunner executes fn inside a database transaction carried through the
// context, so repositories called from fn share one transaction.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ApplyResult is the outcome of a coupon application.
type ApplyResult struct {
	Coupon   *campaign.CouponCode
	Discount Discount
	Invoice  *invoice.Invoice
	// Reapplied is true when the same coupon was already associated with
	// the invoice and the application was a no-op.
	Reapplied bool
}

// Service orchestrates the redemption flow: admission via the gate,
// transactional discount application, completion bookkeeping, and
// post-payment confirmation.
type Service struct {
	gate     *Gate
	invoices invoice.Repository
	coupons  campaign.CouponRepository
	ledger   Ledger
	resolver ProcessorResolver
	tx       TxRunner
}

// NewService creates a redemption service.
func NewService(
	gate *Gate,
	invoices invoice.Repository,
	coupons campaign.CouponRepository,
	ledger Ledger,
	resolver ProcessorResolver,
	tx TxRunner,
) *Service {
	return &Service{
		gate:     gate,
		invoices: invoices,
		coupons:  coupons,
		ledger:   ledger,
		resolver: resolver,
		tx:       tx,
	}
}

// ApplyCode validates a submitted code against the invoice and, when
// admitted, applies the discount. Application is idempotent per
// (coupon, invoice): re-applying the same coupon is a no-op
// re-association. All invoice mutation happens inside one row-locked
// transaction; admission failures leave the invoice untouched.
func (s *Service) ApplyCode(ctx context.Context, invoiceID uuid.UUID, codeText string) (*ApplyResult, error) {
	inv, err := s.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	proc, err := s.resolver.For(ctx, inv.Site)
	if err != nil {
		return nil, errors.Wrap(err, "resolve processor")
	}

	code, err := s.gate.Validate(ctx, proc, codeText, inv)
	if err != nil {
		return nil, err
	}

	// Reserve upstream before touching the invoice; a rejection here is
	// an admission failure like any other.
	resp, err := proc.RedeemCode(ctx, code, inv)
	if err != nil {
		return nil, errors.Wrapf(err, "processor %s redeem", proc.Name())
	}
	if !resp.Success {
		return nil, &ProcessorRejectedError{Processor: proc.Name(), Message: resp.Message, Detail: resp.Error}
	}

	result := &ApplyResult{Coupon: code}
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		locked, err := s.invoices.GetForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}

		inserted, err := s.ledger.Associate(ctx, code.ID, invoiceID)
		if err != nil {
			return errors.Wrap(err, "associate coupon")
		}
		if !inserted {
			result.Invoice = locked
			result.Reapplied = true
			return nil
		}

		// Re-check under the lock: a concurrent request may have applied a
		// different coupon between admission and here.
		if locked.HasPromotionalItem() {
			return ErrOneCodePerCheckout
		}

		// Materialize the discount as a promotional line. Its own price
		// never feeds the subtotal; the effect lands in GlobalDiscount.
		promoOffer := code.Campaign.AppliesTo
		promoOffer.Promotional = true
		line := locked.AddOffer(promoOffer)

		d, err := Compute(code.Campaign, locked, line.ID)
		if err != nil {
			// Fail closed: rollback leaves the invoice unmodified.
			return err
		}

		if code.Campaign.Kind == campaign.KindFixed && d.Scope == ScopePerLineItem {
			line.Quantity = d.UnitCount
		}

		locked.GlobalDiscount = locked.GlobalDiscount.Add(d.Amount)
		locked.UpdateTotals()

		if err := s.invoices.Update(ctx, locked); err != nil {
			return errors.Wrap(err, "persist invoice")
		}

		result.Discount = d
		result.Invoice = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Complete marks the invoice as paid, completes its ledger associations
// (bounded by campaign caps), and confirms the redemption upstream.
// Confirmation is fire-and-forget: its failure never rolls back the
// already-applied discount.
func (s *Service) Complete(ctx context.Context, invoiceID uuid.UUID) error {
	var (
		inv       *invoice.Invoice
		completed []uuid.UUID
	)

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		locked, err := s.invoices.GetForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if locked.Status == invoice.StatusComplete {
			inv = locked
			return nil
		}

		locked.Status = invoice.StatusComplete
		if err := s.invoices.Update(ctx, locked); err != nil {
			return errors.Wrap(err, "persist invoice")
		}

		completed, err = s.ledger.MarkCompleted(ctx, invoiceID)
		if err != nil {
			return errors.Wrap(err, "complete redemptions")
		}

		inv = locked
		return nil
	})
	if err != nil {
		return err
	}

	if len(completed) > 0 {
		// Detach from the request: the checkout response must not wait on
		// upstream confirmation.
		go s.ConfirmRedemptions(context.WithoutCancel(ctx), inv, completed)
	}
	return nil
}

// ConfirmRedemptions notifies the processor that the given coupons'
// redemptions completed, retrying with backoff. Terminal failures are
// logged for out-of-band reconciliation, never surfaced to the checkout.
func (s *Service) ConfirmRedemptions(ctx context.Context, inv *invoice.Invoice, couponIDs []uuid.UUID) {
	ctx, cancel := context.WithTimeout(ctx, confirmTimeout)
	defer cancel()

	lg := zctx.From(ctx)

	proc, err := s.resolver.For(ctx, inv.Site)
	if err != nil {
		lg.Error("Confirm redemption: resolve processor",
			zap.String("invoice_id", inv.ID.String()),
			zap.Error(err),
		)
		return
	}

	for _, id := range couponIDs {
		code, err := s.coupons.GetByID(ctx, id)
		if err != nil {
			lg.Error("Confirm redemption: load coupon",
				zap.String("coupon_id", id.String()),
				zap.Error(err),
			)
			continue
		}

		err = retry.Do(
			func() error {
				resp, err := proc.ConfirmRedeemedCode(ctx, code, inv)
				if err != nil {
					return err
				}
				if !resp.Success {
					return errors.Errorf("confirm rejected: %s", resp.Message)
				}
				return nil
			},
			retry.Attempts(confirmAttempts),
			retry.DelayType(retry.BackOffDelay),
			retry.LastErrorOnly(true),
			retry.Context(ctx),
		)
		if err != nil {
			lg.Error("Confirm redemption failed",
				zap.String("coupon_id", id.String()),
				zap.String("invoice_id", inv.ID.String()),
				zap.String("processor", proc.Name()),
				zap.Error(err),
			)
		}
	}
}

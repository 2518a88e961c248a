// Package processor defines the pluggable promo-processor strategy: the
// backend responsible for mirroring campaign/coupon lifecycle to an
// external system and for backend-level code validity checks.
package processor

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"

	"github.com/xenking/vendor-promo/internal/domain/campaign"
	"github.com/xenking/vendor-promo/internal/domain/invoice"
)

// ErrUnknownProcessor is returned when a site is configured with a
// processor name that has no registered factory.
var ErrUnknownProcessor = errors.New("unknown promo processor")

// Response is the uniform envelope every processor call populates.
// Ordinary business rejections (code already used, duplicate campaign
// name) are reported here rather than as errors; only transport-level
// failures surface as Go errors.
type Response struct {
	Success bool
	// Content is the raw backend payload, when there is one.
	Content json.RawMessage
	// Message is the backend's human-readable status message.
	Message string
	// Error carries backend error details on rejection.
	Error string
	// Status is the HTTP status from remote backends; zero for local
	// processors. Lets callers tolerate already-gone (404) deletes.
	Status int
}

// NotFound reports whether the backend answered 404. Deletes treat this
// as success: the external resource is already gone.
func (r *Response) NotFound() bool {
	return r.Status == http.StatusNotFound
}

// Accepted returns a successful envelope with an optional message.
func Accepted(message string) *Response {
	return &Response{Success: true, Message: message}
}

// Rejected returns a failed envelope carrying the rejection reason.
func Rejected(message, errDetail string) *Response {
	return &Response{Message: message, Error: errDetail}
}

// Processor is implemented by every promo backend. Lifecycle calls
// receive forms so the external mirror is written before local
// persistence; a failed external write aborts the local one.
type Processor interface {
	// Name identifies the processor in site configuration.
	Name() string

	CreatePromo(ctx context.Context, form *campaign.Form) (*campaign.Campaign, error)
	UpdatePromo(ctx context.Context, form *campaign.Form) (*campaign.Campaign, error)
	// DeletePromo revokes any external resource and deletes the campaign,
	// cascading to its coupon codes. Already-gone external resources are
	// treated as success.
	DeletePromo(ctx context.Context, c *campaign.Campaign) error

	CreateCouponCode(ctx context.Context, form *campaign.CouponForm) (*campaign.CouponCode, error)
	UpdateCouponCode(ctx context.Context, form *campaign.CouponForm) (*campaign.CouponCode, error)
	DeleteCouponCode(ctx context.Context, c *campaign.CouponCode) error
	SetActiveCouponCode(ctx context.Context, c *campaign.CouponCode, active bool) error

	// IsCodeValid is the backend-level admission gate run after all local
	// checks pass. A rejection envelope fails validation without error.
	IsCodeValid(ctx context.Context, c *campaign.CouponCode, inv *invoice.Invoice) (*Response, error)
	// RedeemCode reserves the code against the invoice for backends that
	// track redemptions upstream.
	RedeemCode(ctx context.Context, c *campaign.CouponCode, inv *invoice.Invoice) (*Response, error)
	// ConfirmRedeemedCode confirms a pending redemption after payment.
	ConfirmRedeemedCode(ctx context.Context, c *campaign.CouponCode, inv *invoice.Invoice) (*Response, error)
}

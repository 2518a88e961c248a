package promo

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Admission errors are user-correctable: they surface directly to the
// customer and leave the invoice untouched.
var (
	// ErrCodeNotFound is returned when no coupon matches the submitted
	// code for the invoice's site.
	ErrCodeNotFound = errors.New("coupon code not found")
	// ErrNotYetActive is returned before the campaign's start date.
	ErrNotYetActive = errors.New("coupon code is not active yet")
	// ErrExpired is returned after the campaign's or coupon's end date.
	ErrExpired = errors.New("coupon code expired")
	// ErrOneCodePerCheckout is returned when the invoice already carries a
	// promotional line item.
	ErrOneCodePerCheckout = errors.New("only one promo code may be applied per checkout session")
	// ErrNoApplicableProduct is returned when none of the campaign's
	// targeted products are present on the invoice.
	ErrNoApplicableProduct = errors.New("no applicable product in cart")
	// ErrAlreadyOwned is returned when the customer already owns one of
	// the applicable products.
	ErrAlreadyOwned = errors.New("an applicable product was already purchased")
)

// ProcessorRejectedError is returned when the backend processor rejects
// an otherwise admissible code. It carries the backend's diagnostic
// fields.
type ProcessorRejectedError struct {
	Processor string
	Message   string
	Detail    string
}

func (e *ProcessorRejectedError) Error() string {
	return fmt.Sprintf("processor %s rejected code: %s", e.Processor, e.Message)
}

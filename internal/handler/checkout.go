package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/vendor-promo/internal/domain/invoice"
	"github.com/xenking/vendor-promo/internal/domain/promo"
)

type applyCouponRequest struct {
	Code string `json:"code"`
}

type appliedCouponResponse struct {
	Code      string              `json:"code"`
	Reapplied bool                `json:"reapplied"`
	Discount  json.Number         `json:"discount"`
	Scope     promo.Scope         `json:"scope,omitempty"`
	Invoice   invoiceView         `json:"invoice"`
	Items     []invoice.OrderItem `json:"items"`
}

type invoiceView struct {
	ID             uuid.UUID   `json:"id"`
	Status         string      `json:"status"`
	Subtotal       json.Number `json:"subtotal"`
	GlobalDiscount json.Number `json:"global_discount"`
	Total          json.Number `json:"total"`
}

func viewOf(inv *invoice.Invoice) invoiceView {
	return invoiceView{
		ID:             inv.ID,
		Status:         string(inv.Status),
		Subtotal:       json.Number(inv.Subtotal.String()),
		GlobalDiscount: json.Number(inv.GlobalDiscount.String()),
		Total:          json.Number(inv.Total.String()),
	}
}

// ApplyCoupon validates a submitted code against the invoice and applies
// its discount.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := uuid.Parse(chi.URLParam(r, "invoiceID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid invoice id", "bad_request")
		return
	}

	var req applyCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		writeError(w, http.StatusBadRequest, "a coupon code is required", "bad_request")
		return
	}

	result, err := h.service.ApplyCode(r.Context(), invoiceID, req.Code)
	if err != nil {
		h.writeApplyError(w, r, err)
		return
	}

	writeContent(w, http.StatusOK, appliedCouponResponse{
		Code:      result.Coupon.DisplayCode(),
		Reapplied: result.Reapplied,
		Discount:  json.Number(result.Discount.Amount.String()),
		Scope:     result.Discount.Scope,
		Invoice:   viewOf(result.Invoice),
		Items:     result.Invoice.Items,
	})
}

// CompleteCheckout marks the invoice as paid and completes its
// redemptions.
func (h *Handler) CompleteCheckout(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := uuid.Parse(chi.URLParam(r, "invoiceID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid invoice id", "bad_request")
		return
	}

	if err := h.service.Complete(r.Context(), invoiceID); err != nil {
		if errors.Is(err, invoice.ErrNotFound) {
			writeError(w, http.StatusNotFound, "invoice not found", "not_found")
			return
		}
		h.internalError(w, r, err)
		return
	}

	writeContent(w, http.StatusOK, map[string]string{"status": string(invoice.StatusComplete)})
}

// writeApplyError maps admission and application failures onto HTTP
// statuses: lookup, expiry, applicability and backend rejections are 404
// so codes cannot be probed apart; the exclusivity violation is 409.
func (h *Handler) writeApplyError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, invoice.ErrNotFound):
		writeError(w, http.StatusNotFound, "invoice not found", "not_found")
	case errors.Is(err, promo.ErrCodeNotFound),
		errors.Is(err, promo.ErrNotYetActive),
		errors.Is(err, promo.ErrExpired),
		errors.Is(err, promo.ErrNoApplicableProduct),
		errors.Is(err, promo.ErrAlreadyOwned),
		errors.Is(err, promo.ErrScopeMismatch):
		writeError(w, http.StatusNotFound, err.Error(), "invalid_code")
	case errors.Is(err, promo.ErrOneCodePerCheckout):
		writeError(w, http.StatusConflict, err.Error(), "code_already_applied")
	default:
		var rejected *promo.ProcessorRejectedError
		if errors.As(err, &rejected) {
			writeError(w, http.StatusNotFound, rejected.Message, rejected.Detail)
			return
		}
		h.internalError(w, r, err)
	}
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	zctx.From(r.Context()).Error("Request failed",
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal error", "internal")
}

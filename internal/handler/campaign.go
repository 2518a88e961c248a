package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/vendor-promo/internal/domain/campaign"
	"github.com/xenking/vendor-promo/internal/domain/offer"
	"github.com/xenking/vendor-promo/internal/processor"
)

type campaignRequest struct {
	Name           string            `json:"name"`
	Description    string            `json:"description"`
	Kind           string            `json:"kind"`
	Magnitude      decimal.Decimal   `json:"magnitude"`
	MaxRedemptions int               `json:"max_redemptions"`
	StartDate      *time.Time        `json:"start_date"`
	EndDate        *time.Time        `json:"end_date"`
	OfferID        uuid.UUID         `json:"offer_id"`
	Meta           map[string]string `json:"meta"`
}

func (req *campaignRequest) form(site string) *campaign.Form {
	return &campaign.Form{
		Site:           site,
		Name:           req.Name,
		Description:    req.Description,
		Kind:           campaign.DiscountKind(req.Kind),
		Magnitude:      req.Magnitude,
		MaxRedemptions: req.MaxRedemptions,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		AppliesToOffer: req.OfferID,
		Meta:           req.Meta,
	}
}

type campaignResponse struct {
	ID             uuid.UUID         `json:"id"`
	Site           string            `json:"site"`
	Name           string            `json:"name"`
	Description    string            `json:"description"`
	Kind           string            `json:"kind"`
	Magnitude      json.Number       `json:"magnitude"`
	MaxRedemptions int               `json:"max_redemptions"`
	StartDate      *time.Time        `json:"start_date,omitempty"`
	EndDate        *time.Time        `json:"end_date,omitempty"`
	OfferID        uuid.UUID         `json:"offer_id"`
	Meta           map[string]string `json:"meta,omitempty"`
}

func campaignViewOf(c *campaign.Campaign) campaignResponse {
	return campaignResponse{
		ID:             c.ID,
		Site:           c.Site,
		Name:           c.Name,
		Description:    c.Description,
		Kind:           string(c.Kind),
		Magnitude:      json.Number(c.Magnitude.String()),
		MaxRedemptions: c.MaxRedemptions,
		StartDate:      c.StartDate,
		EndDate:        c.EndDate,
		OfferID:        c.AppliesTo.ID,
		Meta:           c.Meta,
	}
}

type couponRequest struct {
	Code           string            `json:"code"`
	Active         *bool             `json:"active"`
	MaxRedemptions int               `json:"max_redemptions"`
	EndDate        *time.Time        `json:"end_date"`
	Meta           map[string]string `json:"meta"`
}

func (req *couponRequest) form(campaignID uuid.UUID) *campaign.CouponForm {
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return &campaign.CouponForm{
		CampaignID:     campaignID,
		Code:           req.Code,
		Active:         active,
		MaxRedemptions: req.MaxRedemptions,
		EndDate:        req.EndDate,
		Meta:           req.Meta,
	}
}

type couponResponse struct {
	ID             uuid.UUID         `json:"id"`
	CampaignID     uuid.UUID         `json:"campaign_id"`
	Code           string            `json:"code"`
	Active         bool              `json:"active"`
	MaxRedemptions int               `json:"max_redemptions"`
	EndDate        *time.Time        `json:"end_date,omitempty"`
	Meta           map[string]string `json:"meta,omitempty"`
}

func couponViewOf(c *campaign.CouponCode) couponResponse {
	return couponResponse{
		ID:             c.ID,
		CampaignID:     c.CampaignID,
		Code:           c.DisplayCode(),
		Active:         c.Active,
		MaxRedemptions: c.MaxRedemptions,
		EndDate:        c.EndDate,
		Meta:           c.Meta,
	}
}

func (h *Handler) processorFor(w http.ResponseWriter, r *http.Request) (processor.Processor, string, bool) {
	site := chi.URLParam(r, "site")
	proc, err := h.resolver.For(r.Context(), site)
	if err != nil {
		if errors.Is(err, processor.ErrUnknownProcessor) {
			writeError(w, http.StatusConflict, "site has no usable promo processor", "unknown_processor")
			return nil, "", false
		}
		h.internalError(w, r, err)
		return nil, "", false
	}
	return proc, site, true
}

// CreateCampaign creates a campaign through the site's processor.
func (h *Handler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	proc, site, ok := h.processorFor(w, r)
	if !ok {
		return
	}

	var req campaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "bad_request")
		return
	}

	created, err := proc.CreatePromo(r.Context(), req.form(site))
	if err != nil {
		h.writeLifecycleError(w, r, err)
		return
	}
	writeContent(w, http.StatusCreated, campaignViewOf(created))
}

// UpdateCampaign updates a campaign through the site's processor.
func (h *Handler) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	proc, site, ok := h.processorFor(w, r)
	if !ok {
		return
	}

	campaignID, err := uuid.Parse(chi.URLParam(r, "campaignID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid campaign id", "bad_request")
		return
	}

	var req campaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "bad_request")
		return
	}

	form := req.form(site)
	form.ID = campaignID

	updated, err := proc.UpdatePromo(r.Context(), form)
	if err != nil {
		h.writeLifecycleError(w, r, err)
		return
	}
	writeContent(w, http.StatusOK, campaignViewOf(updated))
}

// DeleteCampaign deletes a campaign through the site's processor; its
// coupon codes cascade.
func (h *Handler) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	proc, _, ok := h.processorFor(w, r)
	if !ok {
		return
	}

	campaignID, err := uuid.Parse(chi.URLParam(r, "campaignID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid campaign id", "bad_request")
		return
	}

	c, err := h.campaigns.GetByID(r.Context(), campaignID)
	if err != nil {
		h.writeLifecycleError(w, r, err)
		return
	}

	if err := proc.DeletePromo(r.Context(), c); err != nil {
		h.writeLifecycleError(w, r, err)
		return
	}
	writeContent(w, http.StatusOK, map[string]string{"deleted": campaignID.String()})
}

// CreateCoupon creates a coupon code through the site's processor.
func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	proc, _, ok := h.processorFor(w, r)
	if !ok {
		return
	}

	campaignID, err := uuid.Parse(chi.URLParam(r, "campaignID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid campaign id", "bad_request")
		return
	}

	var req couponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "bad_request")
		return
	}

	created, err := proc.CreateCouponCode(r.Context(), req.form(campaignID))
	if err != nil {
		h.writeLifecycleError(w, r, err)
		return
	}
	writeContent(w, http.StatusCreated, couponViewOf(created))
}

// UpdateCoupon updates a coupon code through the site's processor.
func (h *Handler) UpdateCoupon(w http.ResponseWriter, r *http.Request) {
	proc, _, ok := h.processorFor(w, r)
	if !ok {
		return
	}

	couponID, err := uuid.Parse(chi.URLParam(r, "couponID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid coupon id", "bad_request")
		return
	}

	current, err := h.coupons.GetByID(r.Context(), couponID)
	if err != nil {
		h.writeLifecycleError(w, r, err)
		return
	}

	var req couponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "bad_request")
		return
	}

	form := req.form(current.CampaignID)
	form.ID = couponID

	updated, err := proc.UpdateCouponCode(r.Context(), form)
	if err != nil {
		h.writeLifecycleError(w, r, err)
		return
	}
	writeContent(w, http.StatusOK, couponViewOf(updated))
}

// DeleteCoupon deletes a coupon code through the site's processor.
func (h *Handler) DeleteCoupon(w http.ResponseWriter, r *http.Request) {
	proc, _, ok := h.processorFor(w, r)
	if !ok {
		return
	}

	couponID, err := uuid.Parse(chi.URLParam(r, "couponID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid coupon id", "bad_request")
		return
	}

	c, err := h.coupons.GetByID(r.Context(), couponID)
	if err != nil {
		h.writeLifecycleError(w, r, err)
		return
	}

	if err := proc.DeleteCouponCode(r.Context(), c); err != nil {
		h.writeLifecycleError(w, r, err)
		return
	}
	writeContent(w, http.StatusOK, map[string]string{"deleted": couponID.String()})
}

// SetCouponActive toggles a coupon's activation flag through the site's
// processor.
func (h *Handler) SetCouponActive(w http.ResponseWriter, r *http.Request) {
	proc, _, ok := h.processorFor(w, r)
	if !ok {
		return
	}

	couponID, err := uuid.Parse(chi.URLParam(r, "couponID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid coupon id", "bad_request")
		return
	}

	var req struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "bad_request")
		return
	}

	c, err := h.coupons.GetByID(r.Context(), couponID)
	if err != nil {
		h.writeLifecycleError(w, r, err)
		return
	}

	if err := proc.SetActiveCouponCode(r.Context(), c, req.Active); err != nil {
		h.writeLifecycleError(w, r, err)
		return
	}
	writeContent(w, http.StatusOK, map[string]bool{"active": req.Active})
}

func (h *Handler) writeLifecycleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, campaign.ErrNotFound),
		errors.Is(err, campaign.ErrCouponNotFound),
		errors.Is(err, offer.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error(), "not_found")
	case errors.Is(err, campaign.ErrDuplicateCode):
		writeError(w, http.StatusConflict, err.Error(), "duplicate_code")
	case errors.Is(err, campaign.ErrInvalidMagnitude),
		errors.Is(err, campaign.ErrInvalidKind),
		errors.Is(err, campaign.ErrMissingName),
		errors.Is(err, campaign.ErrMissingCode):
		writeError(w, http.StatusBadRequest, err.Error(), "validation")
	default:
		h.internalError(w, r, err)
	}
}

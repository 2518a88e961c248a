package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/vendor-promo/internal/domain/affiliate"
)

type affiliateRequest struct {
	Slug        string      `json:"slug"`
	ContactName string      `json:"contact_name"`
	Email       string      `json:"email"`
	Company     string      `json:"company"`
	ProfileID   *uuid.UUID  `json:"profile_id"`
	Campaigns   []uuid.UUID `json:"campaigns"`
}

func (req *affiliateRequest) form(site string) *affiliate.Form {
	return &affiliate.Form{
		Site:        site,
		Slug:        req.Slug,
		ContactName: req.ContactName,
		Email:       req.Email,
		Company:     req.Company,
		ProfileID:   req.ProfileID,
		Campaigns:   req.Campaigns,
	}
}

type affiliateResponse struct {
	ID          uuid.UUID   `json:"id"`
	Site        string      `json:"site"`
	Slug        string      `json:"slug"`
	ContactName string      `json:"contact_name,omitempty"`
	Email       string      `json:"email,omitempty"`
	Company     string      `json:"company,omitempty"`
	ProfileID   *uuid.UUID  `json:"profile_id,omitempty"`
	Campaigns   []uuid.UUID `json:"campaigns"`
	Created     time.Time   `json:"created"`
}

func affiliateViewOf(a *affiliate.Affiliate) affiliateResponse {
	campaigns := a.Campaigns
	if campaigns == nil {
		campaigns = []uuid.UUID{}
	}
	return affiliateResponse{
		ID:          a.ID,
		Site:        a.Site,
		Slug:        a.Slug,
		ContactName: a.ContactName,
		Email:       a.Email,
		Company:     a.Company,
		ProfileID:   a.ProfileID,
		Campaigns:   campaigns,
		Created:     a.Created,
	}
}

// CreateAffiliate creates an affiliate for the site.
func (h *Handler) CreateAffiliate(w http.ResponseWriter, r *http.Request) {
	site := chi.URLParam(r, "site")

	var req affiliateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "bad_request")
		return
	}

	form := req.form(site)
	if err := form.Validate(); err != nil {
		h.writeAffiliateError(w, r, err)
		return
	}

	a := &affiliate.Affiliate{ID: uuid.New()}
	form.Apply(a)

	if err := h.affiliates.Create(r.Context(), a); err != nil {
		h.writeAffiliateError(w, r, err)
		return
	}
	writeContent(w, http.StatusCreated, affiliateViewOf(a))
}

// GetAffiliate returns one affiliate with its campaign links.
func (h *Handler) GetAffiliate(w http.ResponseWriter, r *http.Request) {
	affiliateID, err := uuid.Parse(chi.URLParam(r, "affiliateID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid affiliate id", "bad_request")
		return
	}

	a, err := h.affiliates.GetByID(r.Context(), affiliateID)
	if err != nil {
		h.writeAffiliateError(w, r, err)
		return
	}
	writeContent(w, http.StatusOK, affiliateViewOf(a))
}

// UpdateAffiliate updates an affiliate and replaces its campaign links.
func (h *Handler) UpdateAffiliate(w http.ResponseWriter, r *http.Request) {
	site := chi.URLParam(r, "site")

	affiliateID, err := uuid.Parse(chi.URLParam(r, "affiliateID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid affiliate id", "bad_request")
		return
	}

	var req affiliateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "bad_request")
		return
	}

	form := req.form(site)
	form.ID = affiliateID
	if err := form.Validate(); err != nil {
		h.writeAffiliateError(w, r, err)
		return
	}

	a, err := h.affiliates.GetByID(r.Context(), affiliateID)
	if err != nil {
		h.writeAffiliateError(w, r, err)
		return
	}
	form.Apply(a)

	if err := h.affiliates.Update(r.Context(), a); err != nil {
		h.writeAffiliateError(w, r, err)
		return
	}
	writeContent(w, http.StatusOK, affiliateViewOf(a))
}

// DeleteAffiliate removes an affiliate; its campaign links cascade.
func (h *Handler) DeleteAffiliate(w http.ResponseWriter, r *http.Request) {
	affiliateID, err := uuid.Parse(chi.URLParam(r, "affiliateID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid affiliate id", "bad_request")
		return
	}

	if err := h.affiliates.Delete(r.Context(), affiliateID); err != nil {
		h.writeAffiliateError(w, r, err)
		return
	}
	writeContent(w, http.StatusOK, map[string]string{"deleted": affiliateID.String()})
}

func (h *Handler) writeAffiliateError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, affiliate.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error(), "not_found")
	case errors.Is(err, affiliate.ErrProfileTaken):
		writeError(w, http.StatusConflict, err.Error(), "profile_taken")
	case errors.Is(err, affiliate.ErrDuplicateSlug):
		writeError(w, http.StatusConflict, err.Error(), "duplicate_slug")
	case errors.Is(err, affiliate.ErrMissingContact):
		writeError(w, http.StatusBadRequest, err.Error(), "validation")
	default:
		h.internalError(w, r, err)
	}
}

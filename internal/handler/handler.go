// Package handler exposes the promo system over HTTP: checkout coupon
// application and completion, plus campaign and coupon lifecycle
// management delegated to the site's resolved processor.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/vendor-promo/internal/domain/affiliate"
	"github.com/xenking/vendor-promo/internal/domain/campaign"
	"github.com/xenking/vendor-promo/internal/domain/promo"
	"github.com/xenking/vendor-promo/internal/processor"
)

// Handler wires the HTTP routes to the domain services.
type Handler struct {
	service    *promo.Service
	resolver   *processor.Resolver
	campaigns  campaign.Repository
	coupons    campaign.CouponRepository
	affiliates affiliate.Repository
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	service *promo.Service,
	resolver *processor.Resolver,
	campaigns campaign.Repository,
	coupons campaign.CouponRepository,
	affiliates affiliate.Repository,
) *Handler {
	return &Handler{
		service:    service,
		resolver:   resolver,
		campaigns:  campaigns,
		coupons:    coupons,
		affiliates: affiliates,
	}
}

// Routes returns the API router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Route("/checkout/{invoiceID}", func(r chi.Router) {
			r.Post("/coupon", h.ApplyCoupon)
			r.Post("/complete", h.CompleteCheckout)
		})

		r.Route("/sites/{site}", func(r chi.Router) {
			r.Route("/campaigns", func(r chi.Router) {
				r.Post("/", h.CreateCampaign)
				r.Route("/{campaignID}", func(r chi.Router) {
					r.Put("/", h.UpdateCampaign)
					r.Delete("/", h.DeleteCampaign)

					r.Post("/coupons", h.CreateCoupon)
				})
			})

			r.Route("/coupons/{couponID}", func(r chi.Router) {
				r.Put("/", h.UpdateCoupon)
				r.Delete("/", h.DeleteCoupon)
				r.Patch("/active", h.SetCouponActive)
			})

			r.Route("/affiliates", func(r chi.Router) {
				r.Post("/", h.CreateAffiliate)
				r.Route("/{affiliateID}", func(r chi.Router) {
					r.Get("/", h.GetAffiliate)
					r.Put("/", h.UpdateAffiliate)
					r.Delete("/", h.DeleteAffiliate)
				})
			})
		})
	})

	return r
}

// envelope is the uniform response body. Business rejections ride in it
// with is_request_success=false; transport and server failures use plain
// HTTP status codes.
type envelope struct {
	IsRequestSuccess bool   `json:"is_request_success"`
	ResponseContent  any    `json:"response_content,omitempty"`
	ResponseMessage  string `json:"response_message,omitempty"`
	ResponseError    string `json:"response_error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeContent(w http.ResponseWriter, status int, content any) {
	writeJSON(w, status, envelope{IsRequestSuccess: true, ResponseContent: content})
}

func writeError(w http.ResponseWriter, status int, message, detail string) {
	writeJSON(w, status, envelope{ResponseMessage: message, ResponseError: detail})
}

// Package stripepromo mirrors campaigns and coupon codes to a
// payments-provider promotion API. A campaign maps to a provider coupon
// object; a coupon code maps to a promotion code referencing it.
package stripepromo

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/vendor-promo/internal/processor"
)

const defaultTimeout = 10 * time.Second

// Client is a minimal form-encoded client for the provider's coupon and
// promotion-code endpoints.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

// NewClient creates a client for the given API base URL and secret key.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		http:    &http.Client{Timeout: defaultTimeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values) (*processor.Response, error) {
	var body io.Reader
	if len(form) > 0 {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response body")
	}

	out := &processor.Response{
		Status:  resp.StatusCode,
		Success: resp.StatusCode >= 200 && resp.StatusCode < 300,
	}
	if len(raw) > 0 {
		out.Content = json.RawMessage(raw)
	}
	if !out.Success {
		var failure struct {
			Error struct {
				Message string `json:"message"`
				Code    string `json:"code"`
			} `json:"error"`
		}
		if err := json.Unmarshal(raw, &failure); err == nil {
			out.Message = failure.Error.Message
			out.Error = failure.Error.Code
		}
	}
	return out, nil
}

// CreateCoupon creates a provider coupon.
func (c *Client) CreateCoupon(ctx context.Context, form url.Values) (*processor.Response, error) {
	return c.do(ctx, http.MethodPost, "/v1/coupons", form)
}

// UpdateCoupon updates mutable coupon fields. The provider rejects
// resending amount or currency on update, so callers must omit them.
func (c *Client) UpdateCoupon(ctx context.Context, id string, form url.Values) (*processor.Response, error) {
	return c.do(ctx, http.MethodPost, "/v1/coupons/"+id, form)
}

// GetCoupon fetches a provider coupon by id.
func (c *Client) GetCoupon(ctx context.Context, id string) (*processor.Response, error) {
	return c.do(ctx, http.MethodGet, "/v1/coupons/"+id, nil)
}

// DeleteCoupon removes a provider coupon.
func (c *Client) DeleteCoupon(ctx context.Context, id string) (*processor.Response, error) {
	return c.do(ctx, http.MethodDelete, "/v1/coupons/"+id, nil)
}

// CreatePromotionCode creates a customer-facing promotion code for a
// coupon.
func (c *Client) CreatePromotionCode(ctx context.Context, form url.Values) (*processor.Response, error) {
	return c.do(ctx, http.MethodPost, "/v1/promotion_codes", form)
}

// UpdatePromotionCode updates a promotion code; only the active flag and
// metadata are mutable upstream.
func (c *Client) UpdatePromotionCode(ctx context.Context, id string, form url.Values) (*processor.Response, error) {
	return c.do(ctx, http.MethodPost, "/v1/promotion_codes/"+id, form)
}

// GetPromotionCode fetches a promotion code by id.
func (c *Client) GetPromotionCode(ctx context.Context, id string) (*processor.Response, error) {
	return c.do(ctx, http.MethodGet, "/v1/promotion_codes/"+id, nil)
}

// Package vouchery adapts a Vouchery-style voucher management backend
// to the promo processor contract. The backend models a promotion as a
// MainCampaign > SubCampaign > {Reward, Vouchers} object graph; a coupon
// code is a voucher, and a redemption is reserved at validation time and
// confirmed after payment.
package vouchery

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/vendor-promo/internal/processor"
)

const defaultTimeout = 10 * time.Second

// Client is a minimal Vouchery API client. Every call returns the
// uniform response envelope; only transport-level failures (connection,
// timeout, unreadable body) return an error.
type Client struct {
	http    *http.Client
	baseURL string
	bearer  string
}

// NewClient creates a client for the given API base URL and bearer key.
func NewClient(baseURL, bearer string) *Client {
	return &Client{
		http:    &http.Client{Timeout: defaultTimeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		bearer:  bearer,
	}
}

func (c *Client) do(ctx context.Context, method string, path []string, query url.Values, payload any) (*processor.Response, error) {
	u := c.baseURL + "/" + strings.Join(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrap(err, "encode payload")
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.bearer)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, u)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response body")
	}

	return parseEnvelope(resp.StatusCode, raw), nil
}

// parseEnvelope applies the backend's success heuristic: an empty (or
// empty-list) body with a 2xx status is success; a JSON object with
// type=Error is a rejection carrying message and error details; a JSON
// array is success on 200; anything else is inferred from the status.
func parseEnvelope(status int, body []byte) *processor.Response {
	resp := &processor.Response{Status: status}
	ok2xx := status >= 200 && status < 300

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("[]")) {
		resp.Success = ok2xx
		return resp
	}

	resp.Content = json.RawMessage(trimmed)

	d := jx.DecodeBytes(trimmed)
	switch d.Next() {
	case jx.Object:
		var typ string
		_ = d.Obj(func(d *jx.Decoder, key string) error {
			switch key {
			case "type":
				typ, _ = d.Str()
			case "message":
				resp.Message, _ = d.Str()
			case "error", "errors":
				raw, err := d.Raw()
				if err != nil {
					return err
				}
				resp.Error = raw.String()
			default:
				return d.Skip()
			}
			return nil
		})
		resp.Success = typ != "Error" && ok2xx
	case jx.Array:
		resp.Success = status == http.StatusOK
	default:
		resp.Success = ok2xx
	}

	return resp
}

// Campaigns.

// CreateCampaign creates a campaign (or sub-campaign when params carry a
// parent_id).
func (c *Client) CreateCampaign(ctx context.Context, name string, params map[string]any) (*processor.Response, error) {
	if name == "" {
		return nil, errors.New("name is required to create a campaign")
	}
	payload := map[string]any{"name": name}
	for k, v := range params {
		payload[k] = v
	}
	return c.do(ctx, http.MethodPost, []string{"campaigns"}, nil, payload)
}

// GetCampaigns lists campaigns filtered by the given query.
func (c *Client) GetCampaigns(ctx context.Context, query url.Values) (*processor.Response, error) {
	return c.do(ctx, http.MethodGet, []string{"campaigns"}, query, nil)
}

// GetSubCampaigns lists sub-campaigns filtered by the given query.
func (c *Client) GetSubCampaigns(ctx context.Context, query url.Values) (*processor.Response, error) {
	return c.do(ctx, http.MethodGet, []string{"campaigns", "sub"}, query, nil)
}

// GetCampaign fetches one campaign by id.
func (c *Client) GetCampaign(ctx context.Context, id string) (*processor.Response, error) {
	return c.do(ctx, http.MethodGet, []string{"campaigns", id}, nil, nil)
}

// UpdateCampaign patches campaign fields.
func (c *Client) UpdateCampaign(ctx context.Context, id string, params map[string]any) (*processor.Response, error) {
	return c.do(ctx, http.MethodPatch, []string{"campaigns", id}, nil, params)
}

// DeleteCampaign removes a campaign.
func (c *Client) DeleteCampaign(ctx context.Context, id string) (*processor.Response, error) {
	if id == "" {
		return nil, errors.New("campaign id is required to delete a campaign")
	}
	return c.do(ctx, http.MethodDelete, []string{"campaigns", id}, nil, nil)
}

// Rewards.

// CreateReward attaches a reward to a campaign.
func (c *Client) CreateReward(ctx context.Context, campaignID string, params map[string]any) (*processor.Response, error) {
	return c.do(ctx, http.MethodPost, []string{"campaigns", campaignID, "rewards"}, nil, params)
}

// DeleteReward removes a reward.
func (c *Client) DeleteReward(ctx context.Context, id string) (*processor.Response, error) {
	return c.do(ctx, http.MethodDelete, []string{"rewards", id}, nil, nil)
}

// Vouchers.

// CreateVoucher creates an active voucher with the given code under a
// campaign.
func (c *Client) CreateVoucher(ctx context.Context, code, campaignID string) (*processor.Response, error) {
	payload := map[string]any{
		"type":   "Voucher",
		"active": true,
		"code":   code,
		"status": "active",
	}
	return c.do(ctx, http.MethodPost, []string{"campaigns", campaignID, "vouchers"}, nil, payload)
}

// GetVouchers lists a campaign's vouchers.
func (c *Client) GetVouchers(ctx context.Context, campaignID string) (*processor.Response, error) {
	return c.do(ctx, http.MethodGet, []string{"campaigns", campaignID, "vouchers"}, nil, nil)
}

// GetVoucher fetches a voucher by code.
func (c *Client) GetVoucher(ctx context.Context, code string) (*processor.Response, error) {
	return c.do(ctx, http.MethodGet, []string{"vouchers", code}, nil, nil)
}

// DeleteVoucher removes a voucher by code.
func (c *Client) DeleteVoucher(ctx context.Context, code string) (*processor.Response, error) {
	return c.do(ctx, http.MethodDelete, []string{"vouchers", code}, nil, nil)
}

// Redemptions.

// CreateRedemption reserves a redemption of the voucher for the given
// transaction.
func (c *Client) CreateRedemption(ctx context.Context, code, transactionID string, totalCost float64) (*processor.Response, error) {
	payload := map[string]any{
		"transaction_id":         transactionID,
		"total_transaction_cost": totalCost,
	}
	return c.do(ctx, http.MethodPost, []string{"vouchers", code, "redemptions"}, nil, payload)
}

// GetRedemption fetches a pending redemption by transaction.
func (c *Client) GetRedemption(ctx context.Context, code, transactionID string) (*processor.Response, error) {
	q := url.Values{"transaction_id": {transactionID}}
	return c.do(ctx, http.MethodGet, []string{"vouchers", code, "redemptions"}, q, nil)
}

// DeleteRedemption releases a pending redemption.
func (c *Client) DeleteRedemption(ctx context.Context, code, transactionID string) (*processor.Response, error) {
	q := url.Values{"transaction_id": {transactionID}}
	return c.do(ctx, http.MethodDelete, []string{"vouchers", code, "redemptions"}, q, nil)
}

// ConfirmRedemption confirms a pending redemption after payment.
func (c *Client) ConfirmRedemption(ctx context.Context, code, transactionID string) (*processor.Response, error) {
	q := url.Values{"transaction_id": {transactionID}}
	return c.do(ctx, http.MethodPatch, []string{"vouchers", code, "redemptions"}, q, nil)
}

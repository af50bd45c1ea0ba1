// Package upstream is the typed REST client for the commerce backend that owns
// carts, orders, shipping rates, tax calculation, and behavioral analytics.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bookbharat/checkout-api/internal/domain"
)

const defaultRequestTimeout = 15 * time.Second

// StatusError carries the HTTP status of a failed upstream call so callers can
// classify the failure without parsing message text.
type StatusError struct {
	StatusCode int
	Endpoint   string
	Message    string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("upstream %s: %s (status %d)", e.Endpoint, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("upstream %s: status %d", e.Endpoint, e.StatusCode)
}

// Client talks to the commerce backend over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// Options configures a Client.
type Options struct {
	BaseURL string
	Timeout time.Duration
	Logger  *zap.Logger
}

// NewClient constructs an upstream client validating required options.
func NewClient(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("upstream client: base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("upstream client: invalid base URL: %w", err)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// OrderPayload is the order-creation request body.
type OrderPayload struct {
	ShippingAddress domain.Address    `json:"shipping_address"`
	BillingAddress  *domain.Address   `json:"billing_address"`
	PaymentMethod   string            `json:"payment_method"`
	Items           []domain.CartItem `json:"items"`
	Subtotal        float64           `json:"subtotal"`
	ShippingCost    float64           `json:"shipping_cost"`
	TotalAmount     float64           `json:"total_amount"`
}

// TaxRequest is the cart tax calculation request body, shared with the local
// fallback estimator.
type TaxRequest struct {
	Items        []domain.CartItem `json:"items"`
	ShippingCost float64           `json:"shipping_cost"`
	State        string            `json:"state"`
	IsInterState bool              `json:"is_inter_state"`
	Pincode      string            `json:"pincode"`
}

// TaxResponse is the tax calculation response envelope, shared with the local
// fallback estimator.
type TaxResponse struct {
	Success bool              `json:"success"`
	Data    *domain.TaxResult `json:"data,omitempty"`
	Message string            `json:"message,omitempty"`
}

// CalculateShipping looks up the shipping cost and delivery estimate for a postal code.
func (c *Client) CalculateShipping(ctx context.Context, postalCode string) (domain.ShippingQuote, error) {
	var quote domain.ShippingQuote
	payload := map[string]string{"postal_code": strings.TrimSpace(postalCode)}
	if err := c.post(ctx, "/shipping/calculate", payload, &quote); err != nil {
		return domain.ShippingQuote{}, err
	}
	return quote, nil
}

// CreateOrder submits the assembled order payload and returns the created order.
func (c *Client) CreateOrder(ctx context.Context, payload OrderPayload) (domain.OrderData, error) {
	var order domain.OrderData
	if err := c.post(ctx, "/orders", payload, &order); err != nil {
		return domain.OrderData{}, err
	}
	return order, nil
}

// CalculateCartTax asks the backend to compute tax for the given cart snapshot.
func (c *Client) CalculateCartTax(ctx context.Context, req TaxRequest) (TaxResponse, error) {
	var resp TaxResponse
	if err := c.post(ctx, "/tax/calculate-cart", req, &resp); err != nil {
		return TaxResponse{}, err
	}
	if !resp.Success || resp.Data == nil {
		message := strings.TrimSpace(resp.Message)
		if message == "" {
			message = "tax calculation rejected"
		}
		return TaxResponse{}, fmt.Errorf("upstream tax: %s", message)
	}
	return resp, nil
}

// TrackUserBehavior reports an engagement sample. Best effort: the caller is
// expected to drop the error after logging it.
func (c *Client) TrackUserBehavior(ctx context.Context, sample domain.BehaviorSample) error {
	return c.post(ctx, "/analytics/behavior", sample, nil)
}

// GetCart fetches the current cart items for the given session reference.
func (c *Client) GetCart(ctx context.Context, sessionRef string) ([]domain.CartItem, error) {
	var payload struct {
		Items []domain.CartItem `json:"items"`
	}
	endpoint := "/cart?session=" + url.QueryEscape(strings.TrimSpace(sessionRef))
	if err := c.get(ctx, endpoint, &payload); err != nil {
		return nil, err
	}
	return payload.Items, nil
}

// ClearCart empties the cart after a completed cash-on-delivery order.
func (c *Client) ClearCart(ctx context.Context, sessionRef string) error {
	payload := map[string]string{"session": strings.TrimSpace(sessionRef)}
	return c.post(ctx, "/cart/clear", payload, nil)
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("upstream %s: encode request: %w", endpoint, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("upstream %s: build request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, endpoint, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("upstream %s: build request: %w", endpoint, err)
	}
	return c.do(req, endpoint, out)
}

func (c *Client) do(req *http.Request, endpoint string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upstream %s: network error: %w", endpoint, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{
			StatusCode: resp.StatusCode,
			Endpoint:   endpoint,
			Message:    readErrorMessage(resp.Body),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("upstream %s: decode response: %w", endpoint, err)
	}
	return nil
}

func readErrorMessage(body io.Reader) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(body, 4096)).Decode(&payload); err != nil {
		return ""
	}
	if msg := strings.TrimSpace(payload.Message); msg != "" {
		return msg
	}
	return strings.TrimSpace(payload.Error)
}

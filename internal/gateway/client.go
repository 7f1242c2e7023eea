// Package gateway talks to the remote cart API on behalf of the reconciler.
package gateway

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

	"github.com/bloomhouse/cartsync/internal/cart"
	"github.com/bloomhouse/cartsync/pkg/logger"
)

// TokenSource yields the current bearer token, "" when signed out.
type TokenSource interface {
	Token(ctx context.Context) string
}

// Config represents the configuration for the cart API client
type Config struct {
	// BaseURL is the API root, e.g. https://shop.example/api/v1
	BaseURL string

	// Timeout bounds every request. Zero means 15s.
	Timeout time.Duration
}

// Client is a stateless wrapper around the remote cart resource. No call is
// retried.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
}

// NewClient creates a cart API client with the given configuration
func NewClient(cfg Config, tokens TokenSource) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("invalid config: empty base url")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
	}, nil
}

// FetchCart returns the canonical server cart.
func (c *Client) FetchCart(ctx context.Context) (*RemoteCart, error) {
	return c.cartRequest(ctx, http.MethodGet, "/cart", nil)
}

// AddItem adds quantity of productID; the server merges by product+variant.
func (c *Client) AddItem(ctx context.Context, productID string, quantity int, opts AddOptions) (*RemoteCart, error) {
	return c.cartRequest(ctx, http.MethodPost, "/cart/add", addRequest{
		ProductID:       productID,
		Quantity:        quantity,
		SelectedVariant: opts.SelectedVariant,
		DeliveryDate:    opts.DeliveryDate,
		DeliveryTime:    opts.DeliveryTime,
		CardMessage:     opts.CardMessage,
		SenderInfo:      opts.SenderInfo,
	})
}

// UpdateItem sets the quantity of a server line.
func (c *Client) UpdateItem(ctx context.Context, cartItemID string, quantity int) (*RemoteCart, error) {
	return c.cartRequest(ctx, http.MethodPut, "/cart/update", updateRequest{
		CartItemID: cartItemID,
		Quantity:   quantity,
	})
}

// RemoveItem deletes a server line by id.
func (c *Client) RemoveItem(ctx context.Context, cartItemID string) (*RemoteCart, error) {
	return c.cartRequest(ctx, http.MethodDelete, "/cart/remove/"+url.PathEscape(cartItemID), nil)
}

// RemoveByProduct deletes the line of productID with exactly this variant;
// an empty variant matches only the plain line. Used when the line id is not
// known yet.
func (c *Client) RemoveByProduct(ctx context.Context, productID, variant string) (*RemoteCart, error) {
	path := "/cart/remove-product/" + url.PathEscape(productID) + "?variant=" + url.QueryEscape(variant)
	return c.cartRequest(ctx, http.MethodDelete, path, nil)
}

// ClearCart deletes every server line.
func (c *Client) ClearCart(ctx context.Context) (*RemoteCart, error) {
	return c.cartRequest(ctx, http.MethodDelete, "/cart/clear", nil)
}

// SyncCart pushes every local line; the server upserts them and returns the
// merged cart.
func (c *Client) SyncCart(ctx context.Context, items cart.Snapshot) (*RemoteCart, error) {
	req := syncRequest{Items: make([]syncItem, 0, len(items))}
	for _, item := range items {
		req.Items = append(req.Items, syncItem{
			ProductID:       item.ProductID,
			Quantity:        item.Quantity,
			SelectedVariant: item.SelectedVariant,
			Price:           item.Price,
			DeliveryDate:    item.DeliveryDate,
			DeliveryTime:    item.DeliveryTime,
			CardMessage:     item.CardMessage,
			SenderInfo:      item.SenderInfo,
		})
	}
	return c.cartRequest(ctx, http.MethodPost, "/cart/sync", req)
}

// Count returns the number of units in the server cart.
func (c *Client) Count(ctx context.Context) (int, error) {
	token := c.tokens.Token(ctx)
	if token == "" {
		return 0, ErrNotAuthenticated
	}
	var resp countResponse
	if err := c.do(ctx, http.MethodGet, "/cart/count", token, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// FetchProduct reads one catalog product. The catalog is public, so a
// missing token is not an error.
func (c *Client) FetchProduct(ctx context.Context, productID string) (cart.RawProduct, error) {
	var raw cart.RawProduct
	err := c.do(ctx, http.MethodGet, "/products/"+url.PathEscape(productID), c.tokens.Token(ctx), nil, &raw)
	return raw, err
}

func (c *Client) cartRequest(ctx context.Context, method, path string, payload interface{}) (*RemoteCart, error) {
	token := c.tokens.Token(ctx)
	if token == "" {
		return nil, ErrNotAuthenticated
	}
	var rc *RemoteCart
	if err := c.do(ctx, method, path, token, payload, &rc); err != nil {
		return nil, err
	}
	if rc == nil {
		return nil, fmt.Errorf("%w: response carried no cart", ErrMalformedResponse)
	}
	return rc, nil
}

type envelope struct {
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// do performs one request and decodes the data member of the response into out.
func (c *Client) do(ctx context.Context, method, path, token string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		reqBody, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(reqBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	logger.Debug("Cart API request", map[string]interface{}{
		"method": method,
		"path":   path,
	})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response body: %v", ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: genericFailureMessage}
		var env envelope
		if json.Unmarshal(raw, &env) == nil && env.Message != "" {
			apiErr.Message = env.Message
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

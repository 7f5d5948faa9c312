// Package api is the client for the external storefront backend. The backend
// owns catalog, accounts, orders, and the payment gateway handoff; this client
// only records results, it implements no business rules of its own.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/avolkov/skycart/internal/errs"
	"github.com/avolkov/skycart/internal/model"
)

// Client talks JSON over HTTP to the backend and attaches the bearer token to
// authenticated calls.
type Client struct {
	base  string
	http  *http.Client
	token string
	log   *zap.Logger
}

// New constructs a client for the given base URL, e.g. "https://api.example.com".
func New(base string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		base: base,
		http: &http.Client{Timeout: 30 * time.Second},
		log:  log,
	}
}

// SetToken attaches a bearer credential to subsequent requests; empty clears it.
func (c *Client) SetToken(token string) { c.token = token }

type apiError struct {
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	c.log.Debug("api",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("dur", time.Since(start)),
	)

	if resp.StatusCode == http.StatusNotFound {
		return errs.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var ae apiError
		if json.NewDecoder(resp.Body).Decode(&ae) == nil && ae.Message != "" {
			return fmt.Errorf("%s %s: %s", method, path, ae.Message)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type credentials struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	User  model.User `json:"user"`
	Token string     `json:"token"`
}

// Register creates an account and returns the new user with its bearer token.
func (c *Client) Register(ctx context.Context, name, email, password string) (model.User, string, error) {
	var out authResponse
	err := c.do(ctx, http.MethodPost, "/api/users/register", credentials{Name: name, Email: email, Password: password}, &out)
	if err != nil {
		return model.User{}, "", err
	}
	return out.User, out.Token, nil
}

// Login authenticates and returns the user record with its bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (model.User, string, error) {
	var out authResponse
	err := c.do(ctx, http.MethodPost, "/api/users/login", credentials{Email: email, Password: password}, &out)
	if err != nil {
		return model.User{}, "", err
	}
	return out.User, out.Token, nil
}

// Products lists the catalog.
func (c *Client) Products(ctx context.Context) ([]model.Product, error) {
	var out struct {
		Products []model.Product `json:"products"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/products", nil, &out); err != nil {
		return nil, err
	}
	return out.Products, nil
}

// Product fetches a single catalog entry.
func (c *Client) Product(ctx context.Context, id string) (model.Product, error) {
	var out model.Product
	if err := c.do(ctx, http.MethodGet, "/api/products/"+id, nil, &out); err != nil {
		return model.Product{}, err
	}
	return out, nil
}

type checkoutLine struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type checkoutRequest struct {
	IdempotencyKey string         `json:"idempotency_key"`
	Items          []checkoutLine `json:"items"`
}

// Checkout submits the cart lines as an order. The generated idempotency key
// lets the backend dedupe retried submissions; the returned order carries the
// payment gateway redirect URL.
func (c *Client) Checkout(ctx context.Context, items []model.CartItem) (model.Order, error) {
	if len(items) == 0 {
		return model.Order{}, fmt.Errorf("checkout: empty cart")
	}
	key, err := uuid.NewV4()
	if err != nil {
		return model.Order{}, err
	}
	req := checkoutRequest{IdempotencyKey: key.String()}
	for _, it := range items {
		req.Items = append(req.Items, checkoutLine{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price})
	}
	var out model.Order
	if err := c.do(ctx, http.MethodPost, "/api/orders", req, &out); err != nil {
		return model.Order{}, err
	}
	return out, nil
}

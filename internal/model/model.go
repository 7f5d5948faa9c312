// Package model defines domain entities shared by the stores and the API client.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is the authenticated account as returned by the backend. Fields beyond
// identity and role are opaque to the stores.
type User struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Role    string `json:"role"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// Session couples the user record with its bearer token.
// Invariant: User == nil exactly when Token == "".
type Session struct {
	User      *User     `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at,omitzero"` // zero when the token carries no exp claim
}

// Anonymous reports whether the session has no active identity.
func (s Session) Anonymous() bool { return s.User == nil }

// Product is a catalog entry. Price is the current unit price.
type Product struct {
	ID    string          `json:"id"`
	Title string          `json:"title"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock,omitempty"`
}

// CartItem is a single cart line. Price is a snapshot taken when the item was
// first added, not live-synced with the catalog. UserID denormalizes the owner
// onto each line.
type CartItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	UserID    string          `json:"user_id"`
	AddedAt   time.Time       `json:"added_at"`
}

// Subtotal returns price*quantity for this line.
func (it CartItem) Subtotal() decimal.Decimal {
	return it.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// Order is the backend's record of a placed checkout.
type Order struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	Total      decimal.Decimal `json:"total"`
	Currency   string          `json:"currency"`
	Status     string          `json:"status"`
	PaymentURL string          `json:"payment_url,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

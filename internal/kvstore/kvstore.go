// Package kvstore defines the durable key-value bridge and its backends.
// Keys are namespaced per concern: "auth" for the session snapshot,
// "cart_<userID>" for cart snapshots. Only the owning store writes its
// namespace.
package kvstore

import "context"

// Store is the durable key-value bridge shared process-wide.
// Get must tolerate absent keys: a miss is (nil, false, nil), never an error.
// Delete is idempotent.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// AuthKey is the session snapshot key.
const AuthKey = "auth"

// cartKeyPrefix is a fixed convention; changing it breaks existing persisted carts.
const cartKeyPrefix = "cart_"

// CartKey returns the snapshot key for a user's cart.
func CartKey(userID string) string { return cartKeyPrefix + userID }

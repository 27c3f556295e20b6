// Package session reads and writes the device's persisted key-value state:
// the access token, the logged-in user and the active work order and route.
package session

import "context"

// Storage keys shared with the order flow
const (
	KeyAccessToken = "token"
	KeyUserData    = "user_data"
	KeyWorkOrder   = "work_order_data"
	KeyRoute       = "route_data"
)

// AllKeys is everything a logout clears
var AllKeys = []string{KeyUserData, KeyWorkOrder, KeyRoute, KeyAccessToken}

// Store is an atomic string key-value store. Individual reads and writes are
// atomic; there is no cross-key transaction.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	MultiRemove(ctx context.Context, keys ...string) error
}

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"paraderos-agent/internal/models"
)

// ErrCorrupt is returned when a stored JSON value cannot be decoded
var ErrCorrupt = errors.New("session: corrupt stored value")

// ReadSession loads the token and user id. Missing or undecodable entries
// leave the matching field empty; only store failures are returned as errors.
func ReadSession(ctx context.Context, store Store) (models.Session, error) {
	var s models.Session

	token, ok, err := store.Get(ctx, KeyAccessToken)
	if err != nil {
		return s, err
	}
	if ok {
		s.AccessToken = token
	}

	user, err := ReadUser(ctx, store)
	if err != nil && !errors.Is(err, ErrCorrupt) {
		return s, err
	}
	if user != nil {
		s.UserID = user.ID
	}
	return s, nil
}

// ReadUser returns the stored user, or nil when no user is stored
func ReadUser(ctx context.Context, store Store) (*models.User, error) {
	var user models.User
	found, err := readJSON(ctx, store, KeyUserData, &user)
	if err != nil || !found {
		return nil, err
	}
	return &user, nil
}

// ReadActiveWorkOrder returns the active work order, or nil when none is stored
func ReadActiveWorkOrder(ctx context.Context, store Store) (*models.WorkOrder, error) {
	var wo models.WorkOrder
	found, err := readJSON(ctx, store, KeyWorkOrder, &wo)
	if err != nil || !found {
		return nil, err
	}
	return &wo, nil
}

// ReadRoute returns the route cached for the active order
func ReadRoute(ctx context.Context, store Store) (*models.Route, error) {
	var route models.Route
	found, err := readJSON(ctx, store, KeyRoute, &route)
	if err != nil || !found {
		return nil, err
	}
	return &route, nil
}

// SaveLogin stores a fresh token and the identity decoded from it
func SaveLogin(ctx context.Context, store Store, token string, user models.User) error {
	if err := writeJSON(ctx, store, KeyUserData, user); err != nil {
		return err
	}
	return store.Set(ctx, KeyAccessToken, token)
}

// SaveActiveOrder stores the order and, when known, its route
func SaveActiveOrder(ctx context.Context, store Store, wo models.WorkOrder, route *models.Route) error {
	if err := writeJSON(ctx, store, KeyWorkOrder, wo); err != nil {
		return err
	}
	if route == nil {
		return store.MultiRemove(ctx, KeyRoute)
	}
	return writeJSON(ctx, store, KeyRoute, route)
}

// ClearActiveOrder removes the order and its route
func ClearActiveOrder(ctx context.Context, store Store) error {
	return store.MultiRemove(ctx, KeyWorkOrder, KeyRoute)
}

// ClearAll removes every session entry
func ClearAll(ctx context.Context, store Store) error {
	return store.MultiRemove(ctx, AllKeys...)
}

func readJSON(ctx context.Context, store Store, key string, v interface{}) (bool, error) {
	raw, ok, err := store.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !ok || raw == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		log.Printf("⚠️  Stored %s is not valid JSON: %v", key, err)
		return false, fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	return true, nil
}

func writeJSON(ctx context.Context, store Store, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return store.Set(ctx, key, string(raw))
}

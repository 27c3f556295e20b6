package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"paraderos-agent/internal/backend"
	"paraderos-agent/internal/models"
	"paraderos-agent/internal/session"
)

var (
	ErrNoSession          = errors.New("no active session, log in again")
	ErrOrderAlreadyActive = errors.New("another work order is already active")
	ErrOrderNotFound      = errors.New("work order is not assigned to this user")
	ErrOrderCompleted     = errors.New("work order is already completed")
	ErrNoActiveOrder      = errors.New("no active work order")
)

// Backend is the subset of the REST API the order flow uses
type Backend interface {
	Login(ctx context.Context, username, password string) (string, error)
	VerifyToken(ctx context.Context, token string) (bool, error)
	WorkOrdersByUser(ctx context.Context, token string, userID int) ([]models.WorkOrder, error)
	RouteByID(ctx context.Context, token string, routeID int) (*models.Route, error)
}

// Tracker starts and stops location tracking
type Tracker interface {
	StartTracking(ctx context.Context) error
	StopTracking(ctx context.Context) error
}

// WorkOrderService keeps the stored session and active order in step with
// the backend, and tracking in step with the active order
type WorkOrderService struct {
	backend Backend
	store   session.Store
	tracker Tracker
}

func NewWorkOrderService(b Backend, store session.Store, tracker Tracker) *WorkOrderService {
	return &WorkOrderService{backend: b, store: store, tracker: tracker}
}

// Login stores the token and the identity decoded from it
func (s *WorkOrderService) Login(ctx context.Context, username, password string) (*models.User, error) {
	token, err := s.backend.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}
	user, _, err := session.ClaimsFromToken(token)
	if err != nil {
		return nil, fmt.Errorf("login returned an unusable token: %w", err)
	}
	if err := session.SaveLogin(ctx, s.store, token, user); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	log.Printf("✅ Logged in as %s (user #%d)", user.Username, user.ID)
	return &user, nil
}

// VerifySession checks the stored token with the backend. An invalid token is
// removed; the rest of the session stays so an order in progress survives.
func (s *WorkOrderService) VerifySession(ctx context.Context) (bool, error) {
	token, ok, err := s.store.Get(ctx, session.KeyAccessToken)
	if err != nil {
		return false, err
	}
	if !ok || token == "" {
		return false, nil
	}

	user, _, err := session.ClaimsFromToken(token)
	if err == nil {
		// refresh the identity from the token, as a fresh login would
		if err := session.SaveLogin(ctx, s.store, token, user); err != nil {
			return false, err
		}
	}

	valid, err := s.backend.VerifyToken(ctx, token)
	if err != nil && !errors.Is(err, backend.ErrUnauthorized) {
		return false, err
	}
	if !valid || err != nil {
		log.Printf("⚠️  Stored token rejected, removing it")
		return false, s.store.MultiRemove(ctx, session.KeyAccessToken)
	}
	return true, nil
}

// Take makes orderID the active order, caches its route and starts tracking.
// Taking the order that is already active again restarts tracking if needed.
func (s *WorkOrderService) Take(ctx context.Context, orderID int) (*models.WorkOrder, error) {
	sess, err := s.requireSession(ctx)
	if err != nil {
		return nil, err
	}

	current, err := session.ReadActiveWorkOrder(ctx, s.store)
	if err != nil && !errors.Is(err, session.ErrCorrupt) {
		return nil, err
	}
	if current.Active() && current.ID != orderID {
		return nil, fmt.Errorf("%w (#%d)", ErrOrderAlreadyActive, current.ID)
	}

	orders, err := s.backend.WorkOrdersByUser(ctx, sess.AccessToken, sess.UserID)
	if err != nil {
		return nil, s.handleBackendError(ctx, err)
	}

	var wo *models.WorkOrder
	for i := range orders {
		if orders[i].ID == orderID {
			wo = &orders[i]
			break
		}
	}
	if wo == nil {
		return nil, fmt.Errorf("%w: #%d", ErrOrderNotFound, orderID)
	}
	if wo.Completed {
		return nil, fmt.Errorf("%w: #%d", ErrOrderCompleted, orderID)
	}

	var route *models.Route
	if wo.RouteID != nil {
		route, err = s.backend.RouteByID(ctx, sess.AccessToken, *wo.RouteID)
		if err != nil {
			// the order is still usable without its route
			log.Printf("⚠️  Failed to fetch route #%d for order #%d: %v", *wo.RouteID, wo.ID, err)
			route = nil
		}
	}

	if err := session.SaveActiveOrder(ctx, s.store, *wo, route); err != nil {
		return nil, fmt.Errorf("failed to store active order: %w", err)
	}
	log.Printf("📦 Order #%d is now active", wo.ID)

	if err := s.tracker.StartTracking(ctx); err != nil {
		return wo, err
	}
	return wo, nil
}

// Complete clears the active order and stops tracking
func (s *WorkOrderService) Complete(ctx context.Context) (*models.WorkOrder, error) {
	current, err := session.ReadActiveWorkOrder(ctx, s.store)
	if err != nil && !errors.Is(err, session.ErrCorrupt) {
		return nil, err
	}
	if err := session.ClearActiveOrder(ctx, s.store); err != nil {
		return nil, err
	}
	if err := s.tracker.StopTracking(ctx); err != nil {
		return current, err
	}
	if current == nil {
		return nil, ErrNoActiveOrder
	}

	log.Printf("🏁 Order #%d completed, tracking stopped", current.ID)
	return current, nil
}

// Sync refreshes the user's orders. The stored order is dropped, and tracking
// stopped, when the backend no longer lists it or lists it as completed.
func (s *WorkOrderService) Sync(ctx context.Context) ([]models.WorkOrder, error) {
	sess, err := s.requireSession(ctx)
	if err != nil {
		return nil, err
	}

	orders, err := s.backend.WorkOrdersByUser(ctx, sess.AccessToken, sess.UserID)
	if err != nil {
		return nil, s.handleBackendError(ctx, err)
	}

	current, err := session.ReadActiveWorkOrder(ctx, s.store)
	if err != nil && !errors.Is(err, session.ErrCorrupt) {
		return nil, err
	}
	if current == nil {
		return orders, nil
	}

	stale := true
	for _, wo := range orders {
		if wo.ID == current.ID && !wo.Completed {
			stale = false
			break
		}
	}
	if stale {
		log.Printf("⚠️  Active order #%d is no longer assigned, clearing it", current.ID)
		if err := session.ClearActiveOrder(ctx, s.store); err != nil {
			return nil, err
		}
		if err := s.tracker.StopTracking(ctx); err != nil {
			return orders, err
		}
	}
	return orders, nil
}

// Logout stops tracking and clears every session entry
func (s *WorkOrderService) Logout(ctx context.Context) error {
	if err := s.tracker.StopTracking(ctx); err != nil {
		log.Printf("⚠️  Failed to stop tracking on logout: %v", err)
	}
	return session.ClearAll(ctx, s.store)
}

func (s *WorkOrderService) requireSession(ctx context.Context) (models.Session, error) {
	sess, err := session.ReadSession(ctx, s.store)
	if err != nil {
		return sess, err
	}
	if !sess.Complete() {
		return sess, ErrNoSession
	}
	return sess, nil
}

// handleBackendError logs the user out when the backend rejects the token
func (s *WorkOrderService) handleBackendError(ctx context.Context, err error) error {
	if !errors.Is(err, backend.ErrUnauthorized) {
		return err
	}
	log.Printf("🔒 Backend rejected the session, logging out")
	if logoutErr := s.Logout(ctx); logoutErr != nil {
		log.Printf("❌ Failed to clear session: %v", logoutErr)
	}
	return err
}

// Package backend is a minimal client for the REST endpoints the agent needs
// around the location feed: login, token verification, the user's work
// orders and routes.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"paraderos-agent/internal/models"
)

var ErrUnauthorized = errors.New("backend: unauthorized")

// APIError is an envelope with error set, or a non-2xx response
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend: status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend: %s (status %d)", e.Message, e.StatusCode)
}

const (
	pathLogin       = "/auth/v1/login"
	pathVerifyToken = "/auth/v1/verificar-token"
)

func pathOrdersByUser(userID int) string { return fmt.Sprintf("/ordenes/v1/usuario/%d", userID) }
func pathRouteByID(routeID int) string   { return fmt.Sprintf("/rutas/v1/find/%d", routeID) }

// Client calls the backend REST API
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Login exchanges credentials for an access token
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var token string
	if err := c.do(ctx, http.MethodPost, pathLogin, "", models.LoginRequest{Username: username, Password: password}, &token); err != nil {
		return "", err
	}
	if token == "" {
		return "", errors.New("backend: login returned no token")
	}
	return token, nil
}

// VerifyToken asks the backend whether token is still valid
func (c *Client) VerifyToken(ctx context.Context, token string) (bool, error) {
	var valid bool
	if err := c.do(ctx, http.MethodPost, pathVerifyToken, "", models.VerifyTokenRequest{Token: token}, &valid); err != nil {
		return false, err
	}
	return valid, nil
}

// WorkOrdersByUser lists the orders assigned to userID
func (c *Client) WorkOrdersByUser(ctx context.Context, token string, userID int) ([]models.WorkOrder, error) {
	var orders []models.WorkOrder
	if err := c.do(ctx, http.MethodGet, pathOrdersByUser(userID), token, nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// RouteByID fetches one route
func (c *Client) RouteByID(ctx context.Context, token string, routeID int) (*models.Route, error) {
	var route models.Route
	if err := c.do(ctx, http.MethodGet, pathRouteByID(routeID), token, nil, &route); err != nil {
		return nil, err
	}
	return &route, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}

	var envelope models.ResponsePayload[json.RawMessage]
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		if resp.StatusCode >= 300 {
			return &APIError{StatusCode: resp.StatusCode}
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if envelope.Message == "Unauthorized" {
		return ErrUnauthorized
	}
	if envelope.Error || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: envelope.Message}
	}

	if out == nil || len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"paraderos-agent/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envelope(w http.ResponseWriter, status int, errFlag bool, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   errFlag,
		"message": message,
		"data":    data,
	})
}

func fakeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()

	r.Post("/auth/v1/login", func(w http.ResponseWriter, r *http.Request) {
		var req models.LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Username != "driver" || req.Password != "secret" {
			envelope(w, http.StatusOK, true, "Credenciales invalidas", nil)
			return
		}
		envelope(w, http.StatusOK, false, "ok", "jwt-token")
	})
	r.Post("/auth/v1/verificar-token", func(w http.ResponseWriter, r *http.Request) {
		var req models.VerifyTokenRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		envelope(w, http.StatusOK, false, "", req.Token == "jwt-token")
	})
	r.Get("/ordenes/v1/usuario/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Authorization") {
		case "Bearer jwt-token":
		case "Bearer stale":
			envelope(w, http.StatusOK, true, "Unauthorized", nil)
			return
		default:
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		routeID := 3
		envelope(w, http.StatusOK, false, "", []models.WorkOrder{
			{ID: 41, RouteID: &routeID},
			{ID: 42, Completed: true},
		})
	})
	r.Get("/rutas/v1/find/{id}", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "id") != "3" {
			envelope(w, http.StatusNotFound, true, "Ruta no encontrada", nil)
			return
		}
		envelope(w, http.StatusOK, false, "", models.Route{ID: 3, Name: "Ruta 3", Points: []int{10, 11, 12}})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestLogin(t *testing.T) {
	c := NewClient(fakeBackend(t).URL + "/")

	token, err := c.Login(context.Background(), "driver", "secret")
	require.NoError(t, err)
	assert.Equal(t, "jwt-token", token)

	_, err = c.Login(context.Background(), "driver", "wrong")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Credenciales invalidas", apiErr.Message)
}

func TestVerifyToken(t *testing.T) {
	c := NewClient(fakeBackend(t).URL)

	ok, err := c.VerifyToken(context.Background(), "jwt-token")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.VerifyToken(context.Background(), "other")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWorkOrdersByUser(t *testing.T) {
	c := NewClient(fakeBackend(t).URL)

	orders, err := c.WorkOrdersByUser(context.Background(), "jwt-token", 7)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, 41, orders[0].ID)
	require.NotNil(t, orders[0].RouteID)
	assert.Equal(t, 3, *orders[0].RouteID)
	assert.True(t, orders[1].Completed)
}

func TestUnauthorized(t *testing.T) {
	c := NewClient(fakeBackend(t).URL)

	_, err := c.WorkOrdersByUser(context.Background(), "", 7)
	assert.ErrorIs(t, err, ErrUnauthorized, "HTTP 401")

	_, err = c.WorkOrdersByUser(context.Background(), "stale", 7)
	assert.ErrorIs(t, err, ErrUnauthorized, "envelope message")
}

func TestRouteByID(t *testing.T) {
	c := NewClient(fakeBackend(t).URL)

	route, err := c.RouteByID(context.Background(), "jwt-token", 3)
	require.NoError(t, err)
	assert.Equal(t, "Ruta 3", route.Name)
	assert.Equal(t, []int{10, 11, 12}, route.Points)

	_, err = c.RouteByID(context.Background(), "jwt-token", 9)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestServerDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url).Login(context.Background(), "driver", "secret")
	assert.Error(t, err)
}

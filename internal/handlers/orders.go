package handlers

import (
	"context"
	"net/http"
	"strconv"

	"paraderos-agent/internal/models"
	"paraderos-agent/pkg/utils"

	"github.com/go-chi/chi/v5"
)

// Orders is the order and session flow
type Orders interface {
	Login(ctx context.Context, username, password string) (*models.User, error)
	VerifySession(ctx context.Context) (bool, error)
	Logout(ctx context.Context) error
	Take(ctx context.Context, orderID int) (*models.WorkOrder, error)
	Complete(ctx context.Context) (*models.WorkOrder, error)
	Sync(ctx context.Context) ([]models.WorkOrder, error)
}

func Login(orders Orders) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.LoginRequest
		if err := utils.DecodeJSON(r, &req); err != nil {
			utils.Error(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.Username == "" || req.Password == "" {
			utils.Error(w, http.StatusBadRequest, "username and password are required")
			return
		}

		user, err := orders.Login(r.Context(), req.Username, req.Password)
		if err != nil {
			respondError(w, "login", err)
			return
		}
		utils.Success(w, "logged in", user)
	}
}

func VerifySession(orders Orders) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		valid, err := orders.VerifySession(r.Context())
		if err != nil {
			respondError(w, "verify session", err)
			return
		}
		utils.Success(w, "", valid)
	}
}

func Logout(orders Orders) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := orders.Logout(r.Context()); err != nil {
			respondError(w, "logout", err)
			return
		}
		utils.Success(w, "logged out", nil)
	}
}

// TakeOrder makes the order in the path the active one and starts tracking
func TakeOrder(orders Orders) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil || id <= 0 {
			utils.Error(w, http.StatusBadRequest, "Invalid order id")
			return
		}

		wo, err := orders.Take(r.Context(), id)
		if err != nil {
			respondError(w, "take order", err)
			return
		}
		utils.Success(w, "order taken", wo)
	}
}

func CompleteOrder(orders Orders) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wo, err := orders.Complete(r.Context())
		if err != nil {
			respondError(w, "complete order", err)
			return
		}
		utils.Success(w, "order completed", wo)
	}
}

func SyncOrders(orders Orders) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := orders.Sync(r.Context())
		if err != nil {
			respondError(w, "sync orders", err)
			return
		}
		if list == nil {
			list = []models.WorkOrder{}
		}
		utils.Success(w, "", list)
	}
}

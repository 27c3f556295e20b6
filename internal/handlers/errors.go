package handlers

import (
	"errors"
	"log"
	"net/http"

	"paraderos-agent/internal/backend"
	"paraderos-agent/internal/services"
	"paraderos-agent/internal/tracking"
	"paraderos-agent/pkg/utils"
)

// statusFor maps domain errors onto HTTP statuses
func statusFor(err error) int {
	var apiErr *backend.APIError
	switch {
	case errors.Is(err, services.ErrNoSession), errors.Is(err, backend.ErrUnauthorized):
		return http.StatusUnauthorized
	case tracking.KindOf(err) == tracking.KindPermissionDenied:
		return http.StatusForbidden
	case errors.Is(err, services.ErrOrderNotFound), errors.Is(err, services.ErrNoActiveOrder):
		return http.StatusNotFound
	case errors.Is(err, services.ErrOrderAlreadyActive), errors.Is(err, services.ErrOrderCompleted):
		return http.StatusConflict
	case errors.As(err, &apiErr):
		if apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			return apiErr.StatusCode
		}
		if apiErr.StatusCode < 300 {
			// backend flagged the request itself, e.g. wrong credentials
			return http.StatusUnprocessableEntity
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Printf("❌ %s failed: %v", op, err)
	} else {
		log.Printf("⚠️  %s rejected (%d): %v", op, status, err)
	}
	utils.Error(w, status, err.Error())
}

package utils

import (
	"encoding/json"
	"net/http"
)

func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Success wraps data in the same envelope the backend uses
func Success(w http.ResponseWriter, message string, data interface{}) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"error":   false,
		"message": message,
		"data":    data,
	})
}

// Error sends an error envelope
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]interface{}{
		"error":   true,
		"message": message,
		"data":    nil,
	})
}

// DecodeJSON reads a JSON request body into v
func DecodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

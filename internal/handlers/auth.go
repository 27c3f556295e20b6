package handlers

import (
	"log"
	"net/http"
	"time"

	"paraderos-agent/internal/middleware"
	"paraderos-agent/pkg/utils"

	"golang.org/x/crypto/bcrypt"
)

// ControlTokenTTL is the lifetime of tokens issued by IssueControlToken
const ControlTokenTTL = 7 * 24 * time.Hour

type ControlLoginRequest struct {
	Password string `json:"password"`
}

type ControlLoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// IssueControlToken trades the operator password for a control API token.
// Password login is disabled when no hash is configured.
func IssueControlToken(secret, passwordHash string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if passwordHash == "" {
			utils.Error(w, http.StatusNotFound, "password login is not configured")
			return
		}

		var req ControlLoginRequest
		if err := utils.DecodeJSON(r, &req); err != nil {
			utils.Error(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(req.Password)); err != nil {
			log.Printf("❌ Invalid control password from %s", r.RemoteAddr)
			utils.Error(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		token, err := middleware.SignToken(secret, "order-ui", "operator", ControlTokenTTL)
		if err != nil {
			log.Printf("❌ Failed to create control token: %v", err)
			utils.Error(w, http.StatusInternalServerError, "Failed to create token")
			return
		}

		log.Printf("✅ Control token issued to %s", r.RemoteAddr)
		utils.Success(w, "", ControlLoginResponse{
			Token:     token,
			ExpiresAt: time.Now().Add(ControlTokenTTL).UTC().Format(time.RFC3339),
		})
	}
}

// HashPassword produces the value expected in CONTROL_PASSWORD_HASH
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

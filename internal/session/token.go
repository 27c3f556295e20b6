package session

import (
	"fmt"
	"time"

	"paraderos-agent/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// ClaimsFromToken decodes the identity carried by a backend access token.
// The signature is not verified: the device does not hold the backend secret.
func ClaimsFromToken(token string) (models.User, jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return models.User{}, nil, fmt.Errorf("failed to decode token: %w", err)
	}

	user := models.User{
		FullName: stringClaim(claims, "full_name"),
		Email:    stringClaim(claims, "email"),
		Username: stringClaim(claims, "username"),
		UserType: stringClaim(claims, "user_type"),
	}

	switch id := claims["id"].(type) {
	case float64:
		user.ID = int(id)
	case nil:
		return user, claims, fmt.Errorf("token has no id claim")
	default:
		return user, claims, fmt.Errorf("token id claim has type %T", id)
	}

	return user, claims, nil
}

// TokenExpired reports whether the token carries an exp claim in the past.
// Tokens that cannot be decoded or have no exp are not considered expired;
// the backend is the authority on those.
func TokenExpired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !now.Before(exp.Time)
}

func stringClaim(claims jwt.MapClaims, key string) string {
	s, _ := claims[key].(string)
	return s
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "control-secret"

func protected(mw ...func(http.Handler) http.Handler) http.Handler {
	var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, _ := GetCallerFromContext(r)
		w.Write([]byte(caller.Subject + "/" + caller.Role))
	})
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}

func request(t *testing.T, h http.Handler, authorization string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuthAcceptsSignedToken(t *testing.T) {
	token, err := SignToken(secret, "order-ui", "operator", time.Hour)
	require.NoError(t, err)

	rec := request(t, protected(Auth(secret)), "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "order-ui/operator", rec.Body.String())
}

func TestAuthRejects(t *testing.T) {
	wrongSecret, err := SignToken("other", "order-ui", "operator", time.Hour)
	require.NoError(t, err)
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "order-ui",
		"exp": time.Now().Add(-time.Minute).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc"},
		{"extra parts", "Bearer a b"},
		{"garbage", "Bearer not-a-jwt"},
		{"wrong secret", "Bearer " + wrongSecret},
		{"expired", "Bearer " + expired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := request(t, protected(Auth(secret)), tt.header)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestAuthWithoutSecret(t *testing.T) {
	token, err := SignToken(secret, "order-ui", "", 0)
	require.NoError(t, err)

	rec := request(t, protected(Auth("")), "Bearer "+token)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	_, err = SignToken("", "order-ui", "", 0)
	assert.Error(t, err)
}

func TestRequireRole(t *testing.T) {
	admin, err := SignToken(secret, "ops", "admin", time.Hour)
	require.NoError(t, err)
	operator, err := SignToken(secret, "order-ui", "operator", time.Hour)
	require.NoError(t, err)

	h := protected(Auth(secret), RequireRole("admin"))
	assert.Equal(t, http.StatusOK, request(t, h, "Bearer "+admin).Code)
	assert.Equal(t, http.StatusForbidden, request(t, h, "Bearer "+operator).Code)

	assert.Equal(t, http.StatusUnauthorized, request(t, protected(RequireRole("admin")), "").Code)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc.def", "abc.def", true},
		{"", "", false},
		{"Basic abc", "", false},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"Bearer a b", "", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		token, ok := BearerToken(r)
		assert.Equal(t, tt.ok, ok, tt.header)
		assert.Equal(t, tt.token, token, tt.header)
	}
}

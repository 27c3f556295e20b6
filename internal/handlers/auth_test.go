package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"paraderos-agent/internal/middleware"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postLogin(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(body)))
	return rec
}

func TestIssueControlToken(t *testing.T) {
	hash, err := HashPassword("operator-pass")
	require.NoError(t, err)
	h := IssueControlToken("control-secret", hash)

	rec := postLogin(h, `{"password":"operator-pass"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Error bool                 `json:"error"`
		Data  ControlLoginResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Error)
	assert.NotEmpty(t, resp.Data.ExpiresAt)

	caller, err := middleware.ParseToken("control-secret", resp.Data.Token)
	require.NoError(t, err)
	assert.Equal(t, "order-ui", caller.Subject)
	assert.Equal(t, "operator", caller.Role)
}

func TestIssueControlTokenRejects(t *testing.T) {
	hash, err := HashPassword("operator-pass")
	require.NoError(t, err)

	tests := []struct {
		name string
		hash string
		body string
		want int
	}{
		{"wrong password", hash, `{"password":"nope"}`, http.StatusUnauthorized},
		{"bad body", hash, `{"password":`, http.StatusBadRequest},
		{"unknown field", hash, `{"password":"operator-pass","user":"x"}`, http.StatusBadRequest},
		{"login disabled", "", `{"password":"operator-pass"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postLogin(IssueControlToken("control-secret", tt.hash), tt.body)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

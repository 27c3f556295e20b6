package models

// ResponsePayload is the envelope every backend REST response uses
type ResponsePayload[T any] struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

// LoginRequest is the request body for POST /auth/v1/login
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// VerifyTokenRequest is the request body for POST /auth/v1/verificar-token
type VerifyTokenRequest struct {
	Token string `json:"token"`
}

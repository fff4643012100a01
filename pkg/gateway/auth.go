package gateway

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// AuthHandler verifies the shared secret on the upgrade request.
type AuthHandler struct {
	sharedSecret string
}

// NewAuthHandler creates a new authentication handler.
func NewAuthHandler(sharedSecret string) *AuthHandler {
	return &AuthHandler{
		sharedSecret: sharedSecret,
	}
}

// Authorize checks the Authorization bearer token or token query parameter.
func (a *AuthHandler) Authorize(r *http.Request) bool {
	token := r.URL.Query().Get("token")
	if token == "" {
		header := r.Header.Get("Authorization")
		token = strings.TrimPrefix(header, "Bearer ")
	}
	if token == "" {
		return false
	}

	// Constant-time comparison to prevent timing attacks
	return subtle.ConstantTimeCompare([]byte(a.sharedSecret), []byte(token)) == 1
}

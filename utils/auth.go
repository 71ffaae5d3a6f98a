package utils

import (
	"net/http"
	"strings"
)

// WWW-Authenticate challenges for bearer tokens
const (
	ChallengeBearer       = "Bearer"
	ChallengeInvalidToken = `Bearer error="invalid_token"`
)

// Request parameters that may carry a token when no Authorization header is sent
const (
	AuthorizationParam = "Authorization"
	AccessTokenParam   = "access_token"
)

// ExtractBearerToken returns the bearer token from the Authorization header,
// falling back to the Authorization and access_token query parameters.
func ExtractBearerToken(r *http.Request) string {
	if tok := stripBearer(r.Header.Get("Authorization")); tok != "" {
		return tok
	}
	q := r.URL.Query()
	if tok := stripBearer(q.Get(AuthorizationParam)); tok != "" {
		return tok
	}
	return strings.TrimSpace(q.Get(AccessTokenParam))
}

// stripBearer removes a case-insensitive "Bearer " scheme from a credential
func stripBearer(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// SetChallenge sets the WWW-Authenticate header
func SetChallenge(w http.ResponseWriter, challenge string) {
	w.Header().Set("WWW-Authenticate", challenge)
}

// WriteUnauthorizedChallenge writes a 401 response carrying a WWW-Authenticate challenge
func WriteUnauthorizedChallenge(w http.ResponseWriter, challenge, message string) error {
	SetChallenge(w, challenge)
	return WriteUnauthorized(w, message)
}

package token

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingClaims is returned when signing is attempted without a claim set
	ErrMissingClaims = errors.New("missing claims")

	// ErrMissingSecret is returned when signing is attempted without a secret
	ErrMissingSecret = errors.New("missing signing secret")

	// ErrSigningFailed wraps failures of the underlying signer
	ErrSigningFailed = errors.New("failed to sign token")

	// ErrMalformedToken is returned when a token cannot be parsed
	ErrMalformedToken = errors.New("malformed token")

	// ErrMissingClaim is returned when a required claim is missing
	ErrMissingClaim = errors.New("missing required claim")
)

// Codec signs and verifies HS256 session tokens
type Codec struct {
	method jwt.SigningMethod
}

// NewCodec creates a codec using HMAC-SHA256
func NewCodec() *Codec {
	return &Codec{method: jwt.SigningMethodHS256}
}

// Sign serializes and signs claims with secret
func (c *Codec) Sign(claims *Claims, secret string) (string, error) {
	if claims == nil {
		return "", ErrMissingClaims
	}
	if secret == "" {
		return "", ErrMissingSecret
	}

	signed, err := jwt.NewWithClaims(c.method, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}
	return signed, nil
}

// VerifySignature checks only the MAC of tokenString against secret.
// Expiry and other time-based claims are ignored.
func (c *Codec) VerifySignature(tokenString, secret string) bool {
	if tokenString == "" || secret == "" {
		return false
	}

	parser := jwt.NewParser(
		jwt.WithoutClaimsValidation(),
		jwt.WithValidMethods([]string{c.method.Alg()}),
	)
	tok, err := parser.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	return err == nil && tok.Valid
}

// Parse extracts claims from tokenString without verifying the signature
func (c *Codec) Parse(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMalformedToken
	}

	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	claims := &Claims{}
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if err := claims.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	return claims, nil
}

package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Precision is the resolution of iat and exp. Revocation cutovers are stored
// in epoch milliseconds, so issue times must be comparable at that resolution.
const Precision = time.Millisecond

func init() {
	// NumericDate decodes through float64, which can land a hair below the
	// encoded millisecond. Serializing microseconds keeps that error well
	// inside half a millisecond so reads can round back exactly.
	jwt.TimePrecision = time.Microsecond
}

// Claims is the claim set carried by a session token
type Claims struct {
	jwt.RegisteredClaims
	AppID string `json:"appid"`
}

// NewClaims builds a claim set for userID in appID, issued at now and valid for
// ttl. Times are truncated to Precision.
func NewClaims(userID, appID string, now time.Time, ttl time.Duration) *Claims {
	issued := jwt.NewNumericDate(now.Truncate(Precision))
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  issued,
			NotBefore: issued,
			ExpiresAt: jwt.NewNumericDate(issued.Time.Add(ttl).Truncate(Precision)),
		},
		AppID: appID,
	}
}

// Reissue returns a fresh claim set with the same subject and app, and new timestamps
func (c *Claims) Reissue(now time.Time, ttl time.Duration) *Claims {
	return NewClaims(c.Subject, c.AppID, now, ttl)
}

// IssuedAtTime returns the issue time, or the zero time when absent
func (c *Claims) IssuedAtTime() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time.Round(Precision)
}

// ExpiresAtTime returns the expiry, or the zero time when absent
func (c *Claims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time.Round(Precision)
}

// validate checks the claims every session token must carry
func (c *Claims) validate() error {
	switch {
	case c.Subject == "":
		return fmt.Errorf("%w: sub", ErrMissingClaim)
	case c.AppID == "":
		return fmt.Errorf("%w: appid", ErrMissingClaim)
	case c.IssuedAt == nil:
		return fmt.Errorf("%w: iat", ErrMissingClaim)
	case c.ExpiresAt == nil:
		return fmt.Errorf("%w: exp", ErrMissingClaim)
	}
	return nil
}

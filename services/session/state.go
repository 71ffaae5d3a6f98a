// Package session implements the session token lifecycle: issuance through an
// identity provider, refresh, revocation and passive validation.
//
// Tokens are not stored. Their state is recomputed on every use from the
// claims, the owning app's current secret and the user's revocation cutover.
package session

import (
	"time"

	"github.com/JalalSordo/para/token"
)

// State is the lifecycle state of a presented token
type State int

const (
	// StateInvalid means the token did not parse or its signature does not verify
	StateInvalid State = iota
	// StateValid means the token is signed, unexpired and not revoked
	StateValid
	// StateExpired means the token is signed and not revoked but past its expiry
	StateExpired
	// StateRevoked means the token was issued before the user's revocation cutover
	StateRevoked
)

func (s State) String() string {
	switch s {
	case StateValid:
		return "valid"
	case StateExpired:
		return "expired"
	case StateRevoked:
		return "revoked"
	default:
		return "invalid"
	}
}

// Evaluate derives a token's state. revokeTokensAt is the user's cutover in
// epoch milliseconds; a token issued strictly before it is revoked, one issued
// at the same millisecond is not.
func Evaluate(claims *token.Claims, signatureOK bool, revokeTokensAt *int64, now time.Time) State {
	if claims == nil || !signatureOK {
		return StateInvalid
	}
	if revokeTokensAt != nil && claims.IssuedAtTime().UnixMilli() < *revokeTokensAt {
		return StateRevoked
	}
	if !now.Before(claims.ExpiresAtTime()) {
		return StateExpired
	}
	return StateValid
}

package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// User represents an end user owned by exactly one app.
// Identifier is "<provider>:<external id>" and is unique within the owning app.
type User struct {
	ID             string    `json:"id" db:"id"`
	AppID          string    `json:"appid" db:"app_id"`
	Identifier     string    `json:"identifier" db:"identifier"`
	Name           string    `json:"name" db:"name"`
	Email          string    `json:"email,omitempty" db:"email"`
	Picture        string    `json:"picture,omitempty" db:"picture"`
	Active         bool      `json:"active" db:"active"`
	RevokeTokensAt *int64    `json:"revokeTokensAt,omitempty" db:"revoke_tokens_at"` // epoch millis
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the User model
func (User) TableName() string {
	return "users"
}

// NewUser creates a new active User owned by appID
func NewUser(appID, identifier, name, email string) *User {
	now := time.Now()
	return &User{
		ID:         uuid.New().String(),
		AppID:      appID,
		Identifier: identifier,
		Name:       name,
		Email:      email,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// ProviderIdentifier builds the identifier stored for a user authenticated by provider
func ProviderIdentifier(provider, externalID string) string {
	return strings.ToLower(provider) + ":" + externalID
}

// RevokedAt returns the revocation cutover, if one is set
func (u *User) RevokedAt() (time.Time, bool) {
	if u.RevokeTokensAt == nil {
		return time.Time{}, false
	}
	return time.UnixMilli(*u.RevokeTokensAt), true
}

// SetRevokeTokensAt sets the revocation cutover; nil clears it
func (u *User) SetRevokeTokensAt(at *time.Time) {
	if at == nil {
		u.RevokeTokensAt = nil
		return
	}
	ms := at.UnixMilli()
	u.RevokeTokensAt = &ms
}

// ClearRevocation removes a standing revocation and reports whether one was set
func (u *User) ClearRevocation() bool {
	if u.RevokeTokensAt == nil {
		return false
	}
	u.RevokeTokensAt = nil
	return true
}

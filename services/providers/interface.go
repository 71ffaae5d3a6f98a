package providers

import (
	"context"

	"github.com/JalalSordo/para/models"
	"github.com/JalalSordo/para/services/users"
)

// Provider authenticates a user with an external identity provider and maps
// them onto a tenant-scoped user record
type Provider interface {
	// Name returns the provider name used in issue requests (e.g., "facebook", "twitter")
	Name() string

	// Arity is the number of credential parts the provider expects.
	// Compound credentials arrive joined by the configured separator.
	Arity() int

	// GetOrCreateUser verifies the credentials and returns the matching user in appID
	GetOrCreateUser(ctx context.Context, appID string, credentials ...string) (*models.User, error)
}

// UserResolver finds or creates the user behind a provider profile
type UserResolver interface {
	GetOrCreate(ctx context.Context, appID string, profile users.Profile) (*models.User, error)
}

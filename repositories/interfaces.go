package repositories

import (
	"context"

	"github.com/JalalSordo/para/models"
)

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns a context bound to the transaction.
	// Repository calls made with it run inside the transaction.
	Context() context.Context
}

// AppRepository handles tenant registry data operations
type AppRepository interface {
	// Create inserts app unless one with the same identifier exists.
	// It returns the new identifier, or "" when the app already exists.
	Create(ctx context.Context, app *models.App) (string, error)

	// GetByID retrieves an app by its identifier ("app:<appid>")
	GetByID(ctx context.Context, id string) (*models.App, error)

	// Update overwrites the mutable fields of an app
	Update(ctx context.Context, app *models.App) error
}

// UserRepository handles user data operations
type UserRepository interface {
	// Create creates a new user
	Create(ctx context.Context, user *models.User) error

	// Read retrieves a user by id within a tenant
	Read(ctx context.Context, appID, id string) (*models.User, error)

	// GetByIdentifier retrieves a user by provider identifier within a tenant
	GetByIdentifier(ctx context.Context, appID, identifier string) (*models.User, error)

	// Overwrite replaces the stored user record
	Overwrite(ctx context.Context, user *models.User) error
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Apps  AppRepository
	Users UserRepository
}
